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

package fakecouch

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
)

const (
	typeJSON             = "application/json"
	typeMultipartRelated = "multipart/related"
)

// readBody reads the request body, decompressing it if needed.
func readBody(r *http.Request) ([]byte, error) {
	var body io.Reader = r.Body
	if r.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(r.Body)
		if err != nil {
			return nil, badRequest(err.Error())
		}
		defer gz.Close()
		body = gz
	}
	buf, err := io.ReadAll(body)
	if err != nil {
		return nil, badRequest(err.Error())
	}
	return buf, nil
}

// splitMultipart returns the JSON section and attachment sections of a
// multipart/related body.
func splitMultipart(contentType string, body []byte) ([]byte, []Part, error) {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, nil, badRequest(err.Error())
	}
	mr := multipart.NewReader(bytes.NewReader(body), params["boundary"])
	var doc []byte
	var parts []Part
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, badRequest(err.Error())
		}
		content, err := io.ReadAll(p)
		if err != nil {
			return nil, nil, badRequest(err.Error())
		}
		if doc == nil {
			if ct := p.Header.Get("Content-Type"); !strings.HasPrefix(ct, typeJSON) {
				return nil, nil, badRequest("first multipart section must be " + typeJSON)
			}
			doc = content
			continue
		}
		parts = append(parts, Part{
			ContentType: p.Header.Get("Content-Type"),
			Body:        content,
		})
	}
	if doc == nil {
		return nil, nil, badRequest("empty multipart body")
	}
	return doc, parts, nil
}

// decodeWrite reads a document write request, returning the document and
// any attachment sections that follow it.
func decodeWrite(r *http.Request) (map[string]interface{}, []Part, error) {
	body, err := readBody(r)
	if err != nil {
		return nil, nil, err
	}
	var parts []Part
	if ct := r.Header.Get("Content-Type"); strings.HasPrefix(ct, typeMultipartRelated) {
		body, parts, err = splitMultipart(ct, body)
		if err != nil {
			return nil, nil, err
		}
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(body, &doc); err != nil || doc == nil {
		return nil, nil, badRequest("Document must be a JSON object")
	}
	return doc, parts, nil
}
