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

package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	pkgerrs "github.com/pkg/errors"

	"github.com/go-kivik/recliner"
	"github.com/go-kivik/recliner/chttp"
)

func TestInspectErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil"},
		{name: "unknown", err: errors.New("foo")},
		{name: "explicit code", err: Code(ErrData, "bad input"), want: ErrData},
		{name: "wrapped code", err: fmt.Errorf("foo: %w", Codef(ErrNoInput, "no %s", "file")), want: ErrNoInput},
		{name: "missing param", err: &recliner.Error{Name: recliner.NameMissingParam}, want: ErrUsage},
		{name: "connection refused", err: &recliner.Error{Name: recliner.NameConnectionRefused}, want: ErrUnavailable},
		{name: "missing rev", err: &recliner.Error{Name: recliner.NameMissingRev}, want: ErrProtocol},
		{name: "bad response", err: &recliner.Error{Name: recliner.NameBadResponse, Status: http.StatusBadGateway}, want: ErrProtocol},
		{name: "not found", err: &recliner.Error{Name: recliner.NameNotFound, Status: http.StatusNotFound}, want: ErrNotFound},
		{name: "no db", err: &recliner.Error{Name: recliner.NameNoDBFile}, want: ErrNotFound},
		{name: "conflict", err: pkgerrs.Wrap(&recliner.Error{Name: recliner.NameConflict}, "write"), want: ErrConflict},
		{name: "db exists", err: &recliner.Error{Name: recliner.NameDBAlreadyExists, Status: http.StatusPreconditionFailed}, want: ErrPreconditionFailed},
		{name: "server error", err: &recliner.Error{Name: "unknown_error", Status: http.StatusInternalServerError}, want: ErrInternalServerError},
		{name: "unauthorized", err: &recliner.Error{Name: "unauthorized", Status: http.StatusUnauthorized}, want: ErrUnauthorized},
		{name: "transport", err: &chttp.TransportError{Status: http.StatusBadGateway, Err: errors.New("eof")}, want: ErrUnavailable},
		{name: "json syntax", err: &json.SyntaxError{}, want: ErrProtocol},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := InspectErrorCode(test.err); got != test.want {
				t.Errorf("Unexpected code %d, want %d", got, test.want)
			}
		})
	}
}

func TestCode(t *testing.T) {
	if err := Code(ErrUsage, nil); err != nil {
		t.Errorf("Expected nil, got %v", err)
	}
	err := Code(ErrUsage, "foo ", 3)
	if err.Error() != "foo 3" {
		t.Errorf("Unexpected message %q", err.Error())
	}
	if WithCode(nil, ErrIO) != nil {
		t.Error("WithCode(nil) should be nil")
	}
}
