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

	"github.com/go-kivik/recliner/chttp"
)

// Reserved document fields.
const (
	fieldID          = "_id"
	fieldRev         = "_rev"
	fieldAttachments = "_attachments"
)

// Body is the content of a document: its fields, less _id and _rev, and its
// attachments.
type Body struct {
	data        map[string]interface{}
	attachments Attachments
	// clear is set when the source explicitly set _attachments to null.
	clear bool
}

// NewBody returns a Body from doc, which must be a map[string]interface{} or
// a value which marshals to a JSON object. _id and _rev are discarded. An
// _attachments value of nil clears all attachments; an _attachments object is
// parsed into Attachments.
func NewBody(doc interface{}) (*Body, error) {
	raw, err := toMap(doc)
	if err != nil {
		return nil, err
	}
	b := &Body{data: make(map[string]interface{}, len(raw))}
	for k, v := range raw {
		switch k {
		case fieldID, fieldRev:
			continue
		case fieldAttachments:
			if v == nil {
				b.clear = true
				continue
			}
			atts, err := parseAttachments(v)
			if err != nil {
				return nil, err
			}
			b.attachments = atts
		default:
			b.data[k] = deepCopy(v)
		}
	}
	return b, nil
}

func toMap(doc interface{}) (map[string]interface{}, error) {
	switch t := doc.(type) {
	case nil:
		return nil, missingParam(ScopeDoc, "document body")
	case map[string]interface{}:
		return t, nil
	case *Body:
		return t.ForDoc(), nil
	case json.RawMessage:
		return decodeObject(t)
	case []byte:
		return decodeObject(t)
	}
	buf, err := json.Marshal(doc)
	if err != nil {
		return nil, invalidParam(ScopeDoc, "document body: %s", err)
	}
	return decodeObject(buf)
}

func decodeObject(buf []byte) (map[string]interface{}, error) {
	var m map[string]interface{}
	if err := json.Unmarshal(buf, &m); err != nil || m == nil {
		return nil, invalidParam(ScopeDoc, "document body must be a JSON object")
	}
	return m, nil
}

// Data returns a copy of the document fields.
func (b *Body) Data() map[string]interface{} {
	return copyMap(b.data)
}

// Attachments returns a copy of the attachments.
func (b *Body) Attachments() Attachments {
	return b.attachments.clone()
}

// Extend returns a new Body with b merged over base. Fields are deep merged
// with b winning on conflict. Attachments are the union of both sets, with
// b's winning by name, unless b cleared its attachments, in which case the
// result has none.
func (b *Body) Extend(base *Body) *Body {
	out := &Body{
		data: mergeMaps(base.data, b.data),
	}
	if b.clear {
		out.clear = true
		return out
	}
	if len(base.attachments)+len(b.attachments) > 0 {
		out.attachments = base.attachments.clone()
		if out.attachments == nil {
			out.attachments = Attachments{}
		}
		for name, att := range b.attachments {
			out.attachments[name] = att.clone()
		}
	}
	return out
}

// ForDoc renders the body as it is stored, with every attachment as a stub.
func (b *Body) ForDoc() map[string]interface{} {
	doc := copyMap(b.data)
	if len(b.attachments) > 0 {
		atts := make(map[string]interface{}, len(b.attachments))
		for name, att := range b.attachments {
			atts[name] = att.ToStub()
		}
		doc[fieldAttachments] = atts
	}
	return doc
}

// Payload is a rendered write request.
type Payload struct {
	// Doc is the document JSON. When Parts is non-empty, it is the first
	// section of a multipart/related body.
	Doc []byte
	// Parts holds one section per attachment with data, in the same order as
	// the attachment descriptors appear in Doc.
	Parts []chttp.Part
}

// Multipart reports whether the payload must be sent as multipart/related.
func (p *Payload) Multipart() bool {
	return len(p.Parts) > 0
}

// ForHTTP renders the body for a write, with _rev set to rev if it is not
// empty. Stubs are sent as stubs; attachments with data are sent as follows
// descriptors, with the data in Parts.
func (b *Body) ForHTTP(rev string) (*Payload, error) {
	doc := copyMap(b.data)
	if rev != "" {
		doc[fieldRev] = rev
	}
	p := &Payload{}
	if len(b.attachments) > 0 {
		atts := make(map[string]interface{}, len(b.attachments))
		for _, name := range b.attachments.Names() {
			att := b.attachments[name]
			atts[name] = att.ForHTTP()
			if !att.Stub {
				p.Parts = append(p.Parts, att.ForMultipart())
			}
		}
		doc[fieldAttachments] = atts
	}
	var err error
	p.Doc, err = json.Marshal(doc)
	if err != nil {
		return nil, invalidParam(ScopeDoc, "document body: %s", err)
	}
	return p, nil
}

func (p *Payload) options() (*chttp.Options, error) {
	if !p.Multipart() {
		return &chttp.Options{
			GetBody: chttp.BodyEncoder(p.Doc),
		}, nil
	}
	m, err := chttp.NewMultipart(p.Doc, p.Parts)
	if err != nil {
		return nil, &Error{Scope: ScopeAttachment, Name: NameInvalidParam, Status: http.StatusBadRequest, Message: err.Error(), Err: err}
	}
	opts := m.Options()
	// Multipart bodies are sent uncompressed with an exact Content-Length.
	opts.NoGzip = true
	return opts, nil
}

// stored returns the body as it is known after a successful write: every
// attachment becomes a stub.
func (b *Body) stored() *Body {
	out := &Body{data: copyMap(b.data)}
	if len(b.attachments) > 0 {
		out.attachments = make(Attachments, len(b.attachments))
		for name, att := range b.attachments {
			out.attachments[name] = att.stored()
		}
	}
	return out
}
