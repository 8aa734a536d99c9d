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

// Package errors maps failures to process exit codes.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-kivik/recliner"
)

// Exit codes. Server statuses in the 4xx range map to status-390; the rest
// follow sysexits(3).
const (
	ErrUsage               = 2 // bad flags, arguments or configuration
	ErrUnknown             = 3 // unexpected server status
	ErrInternalServerError = 4 // server answered 500

	ErrBadRequest         = 10 // 400
	ErrUnauthorized       = 11 // 401
	ErrForbidden          = 13 // 403
	ErrNotFound           = 14 // 404
	ErrConflict           = 19 // 409, retries exhausted
	ErrPreconditionFailed = 22 // 412

	ErrData        = 65 // malformed JSON or YAML input
	ErrNoInput     = 66 // input file missing or unreadable
	ErrUnavailable = 69 // server unreachable
	ErrCantCreate  = 73 // output file cannot be created
	ErrIO          = 74
	ErrProtocol    = 76 // missing revision, or a response that is not JSON
)

type statusErr struct {
	error
	code int
}

func (e *statusErr) Unwrap() error {
	return e.error
}

func (e *statusErr) ExitStatus() int {
	return e.code
}

// WithCode wraps err with an exit code.
func WithCode(err error, code int) error {
	if err == nil {
		return nil
	}
	return &statusErr{error: err, code: code}
}

// InspectErrorCode returns the exit code for err, or 0 if none can be
// determined.
func InspectErrorCode(err error) int {
	if err == nil {
		return 0
	}
	var coded interface{ ExitStatus() int }
	if errors.As(err, &coded) {
		return coded.ExitStatus()
	}

	switch recliner.Name(err) {
	case "":
	case recliner.NameMissingParam, recliner.NameInvalidParam:
		return ErrUsage
	case recliner.NameConnectionRefused, recliner.NameTransportError:
		return ErrUnavailable
	case recliner.NameMissingRev, recliner.NameBadResponse:
		return ErrProtocol
	default:
		return fromHTTPStatus(recliner.HTTPStatus(err))
	}

	var syntax *json.SyntaxError
	if errors.As(err, &syntax) {
		return ErrProtocol
	}
	var status interface{ HTTPStatus() int }
	if errors.As(err, &status) {
		return fromHTTPStatus(status.HTTPStatus())
	}

	return 0
}

func fromHTTPStatus(status int) int {
	switch {
	case status == http.StatusBadGateway:
		return ErrUnavailable
	case status == http.StatusInternalServerError:
		return ErrInternalServerError
	case status >= 400 && status < 500:
		return status - 390 // nolint:gomnd
	default:
		return ErrUnknown
	}
}

// Code attaches code to an error built from args. A single error argument
// is wrapped as is; a single nil yields nil. Anything else goes through
// fmt.Sprint.
func Code(code int, args ...interface{}) error {
	if len(args) == 1 {
		switch t := args[0].(type) {
		case nil:
			return nil
		case error:
			return WithCode(t, code)
		}
	}
	return WithCode(errors.New(fmt.Sprint(args...)), code)
}

// Codef is [Code] for fmt.Errorf.
func Codef(code int, format string, args ...interface{}) error {
	return WithCode(fmt.Errorf(format, args...), code)
}
