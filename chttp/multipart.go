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

package chttp

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"

	"github.com/google/uuid"
)

// TypeMultipartRelated is the content type of a document upload with inline
// attachment bodies.
const TypeMultipartRelated = "multipart/related"

// Part is a single binary section of a multipart/related upload.
type Part struct {
	ContentType string
	Body        []byte
}

// Multipart is a fully rendered multipart/related request body. The same
// bytes are produced every time the body is requested, so it may be sent
// again without being recomposed.
type Multipart struct {
	boundary string
	data     []byte
}

// NewMultipart renders doc, the JSON-encoded document, as the first part,
// followed by one part per entry in parts, in order.
func NewMultipart(doc []byte, parts []Part) (*Multipart, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	boundary := strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := w.SetBoundary(boundary); err != nil {
		return nil, err
	}
	docPart, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type": {typeJSON},
	})
	if err != nil {
		return nil, err
	}
	if _, err := docPart.Write(doc); err != nil {
		return nil, err
	}
	for _, p := range parts {
		part, err := w.CreatePart(textproto.MIMEHeader{
			"Content-Type": {p.ContentType},
		})
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(p.Body); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return &Multipart{
		boundary: boundary,
		data:     buf.Bytes(),
	}, nil
}

// Boundary returns the multipart boundary.
func (m *Multipart) Boundary() string { return m.boundary }

// ContentType returns the value for the request's Content-Type header.
func (m *Multipart) ContentType() string {
	return fmt.Sprintf("%s; boundary=%q", TypeMultipartRelated, m.boundary)
}

// Len returns the length of the rendered body.
func (m *Multipart) Len() int64 { return int64(len(m.data)) }

// Bytes returns the rendered body.
func (m *Multipart) Bytes() []byte { return m.data }

// GetBody returns a fresh reader over the rendered body. It is suitable for
// use as [Options.GetBody].
func (m *Multipart) GetBody() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(m.data)), nil
}

// Options returns request options that send m as the request body.
func (m *Multipart) Options() *Options {
	return &Options{
		GetBody:       m.GetBody,
		ContentType:   m.ContentType(),
		ContentLength: m.Len(),
	}
}
