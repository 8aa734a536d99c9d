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
	"encoding/base64"
	"encoding/json"
	"math"
	"sort"
	"strings"

	"github.com/go-kivik/recliner/chttp"
)

// Attachment represents a file attachment on a CouchDB document. An
// attachment either carries a Body which has not yet been stored, or is a
// Stub referring to data the server already has.
type Attachment struct {
	Name        string
	ContentType string
	// Body is the attachment content. A nil Body means no content was
	// supplied; an empty, non-nil Body is a zero-length attachment.
	Body []byte
	Stub bool
	// Length is the declared length. When nil, the length of Body is used.
	Length *int64
	Digest string
	RevPos int64
}

// AttachmentFromBytes returns a new, unstored attachment.
func AttachmentFromBytes(name, contentType string, body []byte) *Attachment {
	if body == nil {
		body = []byte{}
	}
	return &Attachment{
		Name:        name,
		ContentType: contentType,
		Body:        body,
	}
}

// NewAttachment parses an attachment from its JSON-style representation.
// The content type may be given under any of content_type, content-type or
// contentType, in any letter case. Raw content is read from "body" (string
// or []byte); "data" holds base64-encoded content, as in CouchDB inline
// attachments.
func NewAttachment(name string, data map[string]interface{}) (*Attachment, error) {
	att := &Attachment{Name: name}
	for k, v := range data {
		switch normalizeKey(k) {
		case "contenttype":
			ct, ok := v.(string)
			if !ok {
				return nil, invalidParam(ScopeAttachment, "%s: content type must be a string", name)
			}
			att.ContentType = ct
		case "body":
			switch t := v.(type) {
			case string:
				att.Body = []byte(t)
			case []byte:
				att.Body = t
			default:
				return nil, invalidParam(ScopeAttachment, "%s: body must be a string or byte slice", name)
			}
		case "data":
			switch t := v.(type) {
			case string:
				b, err := base64.StdEncoding.DecodeString(t)
				if err != nil {
					return nil, invalidParam(ScopeAttachment, "%s: data: %s", name, err)
				}
				att.Body = b
			case []byte:
				att.Body = t
			default:
				return nil, invalidParam(ScopeAttachment, "%s: data must be a base64 string", name)
			}
		case "stub":
			stub, _ := v.(bool)
			att.Stub = stub
		case "length":
			n, ok := integer(v)
			if !ok {
				return nil, invalidParam(ScopeAttachment, "%s: length must be an integer", name)
			}
			att.Length = &n
		case "digest":
			att.Digest, _ = v.(string)
		case "revpos":
			att.RevPos, _ = integer(v)
		}
	}
	if !att.IsValid() {
		return nil, invalidParam(ScopeAttachment, "%s: attachment requires a content type and a body or stub", name)
	}
	return att, nil
}

func normalizeKey(k string) string {
	return strings.NewReplacer("_", "", "-", "").Replace(strings.ToLower(k))
}

func integer(v interface{}) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int64:
		return t, true
	case int32:
		return int64(t), true
	case float64:
		if t != math.Trunc(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return int64(t), true
	case json.Number:
		n, err := t.Int64()
		return n, err == nil
	}
	return 0, false
}

// IsValid reports whether a has a content type, and is either a stub or has
// a body.
func (a *Attachment) IsValid() bool {
	if a == nil || a.ContentType == "" {
		return false
	}
	return a.Stub || a.Body != nil
}

// Len returns the declared length if set, or else the length of the body.
func (a *Attachment) Len() int64 {
	if a.Length != nil {
		return *a.Length
	}
	return int64(len(a.Body))
}

// ToStub renders a as a reference to already-stored data.
func (a *Attachment) ToStub() map[string]interface{} {
	return map[string]interface{}{
		"stub":         true,
		"content_type": a.ContentType,
		"length":       a.Len(),
	}
}

// ToFollows renders a as a descriptor whose data follows in a separate
// multipart section.
func (a *Attachment) ToFollows() map[string]interface{} {
	return map[string]interface{}{
		"follows":      true,
		"content_type": a.ContentType,
		"length":       a.Len(),
	}
}

// ForHTTP renders the descriptor sent in the document JSON of a write.
func (a *Attachment) ForHTTP() map[string]interface{} {
	if a.Stub {
		return a.ToStub()
	}
	return a.ToFollows()
}

// ForMultipart returns the binary multipart section for a.
func (a *Attachment) ForMultipart() chttp.Part {
	return chttp.Part{
		ContentType: a.ContentType,
		Body:        a.Body,
	}
}

// stored returns a copy of a as it is known once the server has stored it.
func (a *Attachment) stored() *Attachment {
	n := a.Len()
	return &Attachment{
		Name:        a.Name,
		ContentType: a.ContentType,
		Stub:        true,
		Length:      &n,
		Digest:      a.Digest,
		RevPos:      a.RevPos,
	}
}

func (a *Attachment) clone() *Attachment {
	c := *a
	if a.Length != nil {
		n := *a.Length
		c.Length = &n
	}
	return &c
}

// Attachments is a collection of attachments, keyed by name.
type Attachments map[string]*Attachment

// Names returns the attachment names in sorted order. This is the order in
// which descriptors are encoded in document JSON, and therefore the order of
// multipart sections.
func (a Attachments) Names() []string {
	names := make([]string, 0, len(a))
	for name := range a {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (a Attachments) clone() Attachments {
	if a == nil {
		return nil
	}
	c := make(Attachments, len(a))
	for name, att := range a {
		c[name] = att.clone()
	}
	return c
}

// parseAttachments reads an _attachments value.
func parseAttachments(v interface{}) (Attachments, error) {
	switch t := v.(type) {
	case Attachments:
		return t.validated()
	case map[string]*Attachment:
		return Attachments(t).validated()
	case map[string]interface{}:
		atts := make(Attachments, len(t))
		for name, raw := range t {
			data, ok := raw.(map[string]interface{})
			if !ok {
				return nil, invalidParam(ScopeAttachment, "%s: attachment must be an object", name)
			}
			att, err := NewAttachment(name, data)
			if err != nil {
				return nil, err
			}
			atts[name] = att
		}
		return atts, nil
	}
	return nil, invalidParam(ScopeAttachment, "_attachments must be an object")
}

func (a Attachments) validated() (Attachments, error) {
	c := make(Attachments, len(a))
	for name, att := range a {
		if !att.IsValid() {
			return nil, invalidParam(ScopeAttachment, "%s: attachment requires a content type and a body or stub", name)
		}
		att = att.clone()
		att.Name = name
		c[name] = att
	}
	return c, nil
}
