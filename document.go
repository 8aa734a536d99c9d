// Licensed under the Apache License, Version 2.0 (the "License"); you may not
// use this file except in compliance with the License. You may obtain a copy of
// the License at
//
//  http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations under
// the License.

package recliner

import (
	"encoding/json"
	"net/http"

	"github.com/icza/dyno"
)

// Document is a snapshot of a stored document. Rev is the revision as of the
// last successful request which produced or refreshed the snapshot.
type Document struct {
	ID   string
	Rev  string
	body *Body
}

// Data returns a copy of the document fields, without _id, _rev or
// _attachments.
func (d *Document) Data() map[string]interface{} {
	return d.Body().Data()
}

// Attachments returns a copy of the document's attachments. Attachments on
// a stored document are always stubs.
func (d *Document) Attachments() Attachments {
	return d.Body().Attachments()
}

// Body returns the document body.
func (d *Document) Body() *Body {
	if d.body == nil {
		return &Body{data: map[string]interface{}{}}
	}
	return d.body
}

// Field returns the value at path, where each element is a field name (string)
// or an array index (int). For example Field("address", "city").
func (d *Document) Field(path ...interface{}) (interface{}, error) {
	v, err := dyno.Get(d.Body().data, path...)
	if err != nil {
		return nil, &Error{Scope: ScopeDoc, Name: NameNotFound, Status: http.StatusNotFound, Message: err.Error(), Err: err}
	}
	return v, nil
}

// ForDoc renders the full document, including _id, _rev and attachment
// stubs.
func (d *Document) ForDoc() map[string]interface{} {
	doc := d.Body().ForDoc()
	if d.ID != "" {
		doc[fieldID] = d.ID
	}
	if d.Rev != "" {
		doc[fieldRev] = d.Rev
	}
	return doc
}

var _ json.Marshaler = (*Document)(nil)

// MarshalJSON satisfies the json.Marshaler interface.
func (d *Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.ForDoc())
}

// decodeDocument parses a document as returned by the server.
func decodeDocument(raw map[string]interface{}) (*Document, error) {
	doc := &Document{}
	doc.ID, _ = raw[fieldID].(string)
	doc.Rev, _ = raw[fieldRev].(string)
	body, err := NewBody(raw)
	if err != nil {
		return nil, err
	}
	doc.body = body
	return doc, nil
}

// writeResult is the response to a successful PUT, POST or DELETE.
type writeResult struct {
	ID  string `json:"id"`
	Rev string `json:"rev"`
}
