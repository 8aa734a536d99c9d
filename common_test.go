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
	"testing"

	"github.com/go-kivik/recliner/internal/fakecouch"
)

// newTestDB returns a handle on database "test" of a fresh fake server.
func newTestDB(t *testing.T, options ...Option) (*DB, *fakecouch.Server) {
	t.Helper()
	s, dsn := fakecouch.NewTestServer(t)
	c, err := New(dsn)
	if err != nil {
		t.Fatal(err)
	}
	return c.DB("test", options...), s
}

func wantName(t *testing.T, name string, err error) {
	t.Helper()
	if got := Name(err); got != name {
		t.Fatalf("Unexpected error name %q, want %q (err: %v)", got, name, err)
	}
}
