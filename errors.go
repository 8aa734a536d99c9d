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
	"errors"
	"fmt"
	"net/http"
	"strings"
	"syscall"

	"github.com/go-kivik/recliner/chttp"
)

// Scope labels the kind of resource an operation addressed when it failed.
type Scope int

// Scopes. ScopeDB has classification meaning: a 404 at database scope always
// means the database is missing.
const (
	ScopeDoc Scope = iota
	ScopeDB
	ScopeView
	ScopeAttachment
)

func (s Scope) String() string {
	switch s {
	case ScopeDB:
		return "db"
	case ScopeView:
		return "view"
	case ScopeAttachment:
		return "attachment"
	default:
		return "doc"
	}
}

// Error names. These are the only values retry decisions are made on.
const (
	NameMissingParam      = "missing_param"
	NameInvalidParam      = "invalid_param"
	NameNotFound          = "not_found"
	NameConflict          = "conflict"
	NameNoDBFile          = "no_db_file"
	NameDBAlreadyExists   = "db_already_exists"
	NameConnectionRefused = "connection_refused"
	NameMissingRev        = "missing_rev"
	NameTransportError    = "transport_error"
	NameBadResponse       = "bad_response"
)

// Error is a classified failure.
type Error struct {
	Scope   Scope
	Name    string
	Message string
	// Status is the HTTP status of the response, or 0 if no response was
	// received.
	Status int
	// Body is the raw response body, if any.
	Body json.RawMessage
	// Err is the underlying transport error, if any.
	Err error
}

var _ error = (*Error)(nil)

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %s", e.Scope, e.Name)
	}
	return fmt.Sprintf("%s: %s: %s", e.Scope, e.Name, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the status of the failed response, or the closest
// equivalent for failures which never reached the server.
func (e *Error) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	switch e.Name {
	case NameMissingParam, NameInvalidParam:
		return http.StatusBadRequest
	case NameNotFound, NameNoDBFile:
		return http.StatusNotFound
	case NameConflict:
		return http.StatusConflict
	case NameConnectionRefused, NameTransportError, NameMissingRev, NameBadResponse:
		return http.StatusBadGateway
	}
	var statuser interface{ HTTPStatus() int }
	if errors.As(e.Err, &statuser) {
		return statuser.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// Name returns the classified name of err, or "" if err is nil or was not
// classified.
func Name(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Name
	}
	return ""
}

// HTTPStatus returns the HTTP status associated with err, or 0 if there is
// none.
func HTTPStatus(err error) int {
	if err == nil {
		return 0
	}
	var statuser interface{ HTTPStatus() int }
	if errors.As(err, &statuser) {
		return statuser.HTTPStatus()
	}
	return http.StatusInternalServerError
}

const reasonNoDB = "Database does not exist."

// Classify maps the outcome of a single request to an *Error, or nil if the
// request succeeded. Conditions are checked in order:
//
//	412                                      db_already_exists
//	404 at ScopeDB, or a missing database    no_db_file
//	404                                      not_found
//	409                                      conflict
//	500 with a malformed not_found body      not_found
//	connection refused                       connection_refused
//	anything else                            the body's error and reason
func Classify(scope Scope, transportErr error, res *chttp.Result) *Error {
	if transportErr == nil && res == nil {
		return nil
	}
	var body chttp.ErrorBody
	var hasError bool
	if res != nil {
		body, hasError = res.ErrorBody()
		if transportErr == nil && res.Status >= 200 && res.Status < 400 && !hasError {
			return nil
		}
	}
	e := &Error{
		Scope:   scope,
		Message: body.Reason,
		Err:     transportErr,
	}
	if res != nil {
		e.Status = res.Status
		if len(res.Body) > 0 {
			e.Body = json.RawMessage(res.Body)
		}
	}
	switch {
	case e.Status == http.StatusPreconditionFailed:
		e.Name = NameDBAlreadyExists
	case e.Status == http.StatusNotFound && scope == ScopeDB, missingDatabase(body):
		e.Name = NameNoDBFile
	case e.Status == http.StatusNotFound:
		e.Name = NameNotFound
	case e.Status == http.StatusConflict:
		e.Name = NameConflict
	case e.Status == http.StatusInternalServerError && malformedNotFound(body):
		e.Name = NameNotFound
	case transportErr != nil && errors.Is(transportErr, syscall.ECONNREFUSED):
		e.Name = NameConnectionRefused
		e.Message = transportErr.Error()
	case transportErr != nil:
		e.Name = NameTransportError
		e.Message = transportErr.Error()
	case body.Error != "":
		e.Name = body.Error
	default:
		e.Name = snakeCase(http.StatusText(e.Status))
		if e.Name == "" {
			e.Name = fmt.Sprintf("status_%d", e.Status)
		}
	}
	return e
}

// check is Classify for call sites that return error, so that a nil *Error
// never becomes a non-nil error.
func check(scope Scope, transportErr error, res *chttp.Result) error {
	if e := Classify(scope, transportErr, res); e != nil {
		return e
	}
	return nil
}

// decode unmarshals the body of a successful response into v. A body which
// cannot be decoded fails with bad_response.
func decode(scope Scope, res *chttp.Result, v interface{}) error {
	if err := res.Decode(v); err != nil {
		return &Error{
			Scope:   scope,
			Name:    NameBadResponse,
			Message: err.Error(),
			Err:     err,
		}
	}
	return nil
}

// classified returns err as an *Error. Failures which never reached Classify,
// such as a context cancelled between retries, become transport_error.
func classified(scope Scope, err error) error {
	if err == nil || Name(err) != "" {
		return err
	}
	return &Error{
		Scope:   scope,
		Name:    NameTransportError,
		Message: err.Error(),
		Err:     err,
	}
}

func missingDatabase(body chttp.ErrorBody) bool {
	return body.Reason == NameNoDBFile || body.Reason == reasonNoDB
}

// malformedNotFound matches the Erlang-term error bodies CouchDB 1.x sends
// with some 500 responses, such as {"error":"{not_found,missing}"}.
func malformedNotFound(body chttp.ErrorBody) bool {
	return body.Error == NameNotFound ||
		strings.HasPrefix(body.Error, "{not_found") ||
		strings.HasPrefix(body.Error, `["not_found"`)
}

func snakeCase(s string) string {
	s = strings.ToLower(s)
	return strings.NewReplacer(" ", "_", "-", "_", "'", "").Replace(s)
}

func missingParam(scope Scope, param string) error {
	return &Error{
		Scope:   scope,
		Name:    NameMissingParam,
		Message: fmt.Sprintf("%s required", param),
	}
}

func invalidParam(scope Scope, format string, args ...interface{}) error {
	return &Error{
		Scope:   scope,
		Name:    NameInvalidParam,
		Message: fmt.Sprintf(format, args...),
	}
}
