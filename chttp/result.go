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
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
)

// Result is a fully-read response from the server.
type Result struct {
	// Status is the HTTP status code.
	Status int
	// Header holds the response headers.
	Header http.Header
	// Body is the raw response body. It is empty for HEAD requests.
	Body []byte
	// ContentType is the base content type, parsed from the response headers.
	ContentType string
}

func readResult(res *http.Response) (*Result, error) {
	defer CloseBody(res.Body)
	r := &Result{
		Status: res.StatusCode,
		Header: res.Header,
	}
	if ct := res.Header.Get("Content-Type"); ct != "" {
		r.ContentType, _, _ = mime.ParseMediaType(ct)
	}
	if res.Body == nil {
		return r, nil
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &TransportError{Status: http.StatusBadGateway, Err: err}
	}
	r.Body = body
	return r, nil
}

// Decode unmarshals the JSON response body into i.
func (r *Result) Decode(i interface{}) error {
	if err := json.Unmarshal(r.Body, i); err != nil {
		return &TransportError{Status: http.StatusBadGateway, Err: err}
	}
	return nil
}

// ErrorBody is the error envelope CouchDB sends with failed requests.
type ErrorBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

// ErrorBody parses the CouchDB error envelope from the response body, if
// present. The second return value is false if the body is not a JSON object
// carrying an "error" field.
func (r *Result) ErrorBody() (ErrorBody, bool) {
	var eb ErrorBody
	if r == nil || len(r.Body) == 0 {
		return eb, false
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(r.Body, &raw); err != nil {
		return eb, false
	}
	if _, ok := raw["error"]; !ok {
		return eb, false
	}
	// error is sometimes not a string, as in some CouchDB 1.x 500 responses.
	if err := json.Unmarshal(raw["error"], &eb.Error); err != nil {
		eb.Error = string(raw["error"])
	}
	if reason, ok := raw["reason"]; ok {
		if err := json.Unmarshal(reason, &eb.Reason); err != nil {
			eb.Reason = string(reason)
		}
	}
	return eb, true
}

// TransportError is an error produced before or while talking to the server,
// as opposed to an error status returned by the server.
type TransportError struct {
	// Status is an HTTP status code that best describes the failure.
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	return e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the embedded status code.
func (e *TransportError) HTTPStatus() int {
	return e.Status
}

// CloseBody drains and closes the body, ignoring errors.
func CloseBody(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}

var _ fmt.Stringer = (*Result)(nil)

func (r *Result) String() string {
	return fmt.Sprintf("%d %s", r.Status, http.StatusText(r.Status))
}
