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

package cmd

import (
	"testing"

	"gitlab.com/flimzy/testy"

	"github.com/go-kivik/recliner/cmd/recliner/errors"
	"github.com/go-kivik/recliner/internal/fakecouch"
)

func wantDoc(t *testing.T, s *fakecouch.Server, db, id string, want map[string]interface{}) {
	t.Helper()
	got, ok := s.Get(db, id)
	if !ok {
		t.Fatalf("%s/%s not stored", db, id)
	}
	delete(got, "_rev")
	if d := testy.DiffAsJSON(want, got); d != nil {
		t.Error(d)
	}
}

func Test_get_RunE(t *testing.T) {
	tests := testy.NewTable()
	tests.Add("no document", cmdTest{
		args:   []string{"get", "http://localhost:5984/foo"},
		status: errors.ErrUsage,
	})
	tests.Add("found", func(t *testing.T) interface{} {
		s, url := fakecouch.NewTestServer(t)
		s.Put("foo", "bob", map[string]interface{}{"name": "Bob"})
		return cmdTest{
			args:   []string{"get", url + "/foo/bob"},
			stdout: `{"_id":"bob","_rev":"1-XXX","name":"Bob"}` + "\n",
		}
	})
	tests.Add("path merged with env", func(t *testing.T) interface{} {
		s, url := fakecouch.NewTestServer(t)
		s.Put("foo", "bob", map[string]interface{}{"name": "Bob"})
		return cmdTest{
			args:   []string{"get", "foo/bob"},
			env:    map[string]string{"RECLINER_DSN": url},
			stdout: `{"_id":"bob","_rev":"1-XXX","name":"Bob"}` + "\n",
		}
	})
	tests.Add("yaml", func(t *testing.T) interface{} {
		s, url := fakecouch.NewTestServer(t)
		s.Put("foo", "bob", map[string]interface{}{"name": "Bob"})
		return cmdTest{
			args:   []string{"get", url + "/foo/bob", "-f", "yaml"},
			stdout: "_id: bob\n_rev: 1-XXX\nname: Bob\n",
		}
	})
	tests.Add("not found", func(t *testing.T) interface{} {
		s, url := fakecouch.NewTestServer(t)
		s.CreateDB("foo")
		return cmdTest{
			args:   []string{"get", url + "/foo/bob"},
			status: errors.ErrNotFound,
		}
	})
	tests.Add("no database", func(t *testing.T) interface{} {
		_, url := fakecouch.NewTestServer(t)
		return cmdTest{
			args:   []string{"get", url + "/foo/bob"},
			status: errors.ErrNotFound,
		}
	})

	tests.Run(t, func(t *testing.T, tt cmdTest) {
		tt.Test(t)
	})
}

func Test_head_RunE(t *testing.T) {
	s, url := fakecouch.NewTestServer(t)
	s.Put("foo", "bob", map[string]interface{}{"name": "Bob"})
	tt := cmdTest{
		args:   []string{"head", url + "/foo/bob"},
		stdout: `{"id":"bob","rev":"1-XXX"}` + "\n",
	}
	tt.Test(t)
}

func Test_put_RunE(t *testing.T) {
	tests := testy.NewTable()
	tests.Add("missing data", cmdTest{
		args:   []string{"put", "http://localhost:5984/foo/bob"},
		status: errors.ErrUsage,
	})
	tests.Add("invalid json", cmdTest{
		args:   []string{"put", "http://localhost:5984/foo/bob", "-d", "{"},
		status: errors.ErrData,
	})
	tests.Add("new database", func(t *testing.T) interface{} {
		s, url := fakecouch.NewTestServer(t)
		return cmdTest{
			args:   []string{"put", url + "/foo/bob", "-d", `{"name":"Bob"}`},
			stdout: `{"ok":true,"id":"bob","rev":"1-XXX"}` + "\n",
			check: func(t *testing.T) {
				wantDoc(t, s, "foo", "bob", map[string]interface{}{"_id": "bob", "name": "Bob"})
			},
		}
	})
	tests.Add("replace", func(t *testing.T) interface{} {
		s, url := fakecouch.NewTestServer(t)
		s.Put("foo", "bob", map[string]interface{}{"name": "Bob", "age": 40})
		return cmdTest{
			args:   []string{"put", url + "/foo/bob", "--yaml", "-d", "name: Robert"},
			stdout: `{"ok":true,"id":"bob","rev":"2-XXX"}` + "\n",
			check: func(t *testing.T) {
				wantDoc(t, s, "foo", "bob", map[string]interface{}{"_id": "bob", "name": "Robert"})
			},
		}
	})
	tests.Add("stdin", func(t *testing.T) interface{} {
		_, url := fakecouch.NewTestServer(t)
		return cmdTest{
			args:   []string{"put", url + "/foo/bob", "-D", "-"},
			stdin:  `{"name":"Bob"}`,
			stdout: `{"ok":true,"id":"bob","rev":"1-XXX"}` + "\n",
		}
	})
	tests.Add("conflicts exhaust retries", func(t *testing.T) interface{} {
		s, url := fakecouch.NewTestServer(t)
		s.CreateDB("foo")
		s.ForceConflicts(10)
		return cmdTest{
			args:   []string{"--max-retries", "2", "put", url + "/foo/bob", "-d", `{"name":"Bob"}`},
			status: errors.ErrConflict,
			check: func(t *testing.T) {
				if n := s.CountRequests("PUT", "/foo/bob"); n != 3 {
					t.Errorf("Expected 3 attempts, got %d", n)
				}
			},
		}
	})
	tests.Add("retries from env", func(t *testing.T) interface{} {
		s, url := fakecouch.NewTestServer(t)
		s.CreateDB("foo")
		s.ForceConflicts(10)
		return cmdTest{
			args:   []string{"put", url + "/foo/bob", "-d", `{"name":"Bob"}`},
			env:    map[string]string{"RECLINER_MAX_RETRIES": "0"},
			status: errors.ErrConflict,
			check: func(t *testing.T) {
				if n := s.CountRequests("PUT", "/foo/bob"); n != 1 {
					t.Errorf("Expected 1 attempt, got %d", n)
				}
			},
		}
	})
	tests.Add("conflict recovered", func(t *testing.T) interface{} {
		s, url := fakecouch.NewTestServer(t)
		s.CreateDB("foo")
		s.ForceConflicts(2)
		return cmdTest{
			args:   []string{"put", url + "/foo/bob", "-d", `{"name":"Bob"}`},
			stdout: `{"ok":true,"id":"bob","rev":"1-XXX"}` + "\n",
		}
	})
	tests.Add("array", func(t *testing.T) interface{} {
		s, url := fakecouch.NewTestServer(t)
		return cmdTest{
			args:   []string{"put", url + "/foo", "--concurrency", "2", "-d", `[{"_id":"a","n":1},{"_id":"b","n":2},{"_id":"c","n":3}]`},
			stdout: `[{"ok":true,"id":"a","rev":"1-XXX"},{"ok":true,"id":"b","rev":"1-XXX"},{"ok":true,"id":"c","rev":"1-XXX"}]` + "\n",
			check: func(t *testing.T) {
				wantDoc(t, s, "foo", "b", map[string]interface{}{"_id": "b", "n": 2})
			},
		}
	})
	tests.Add("array without id", cmdTest{
		args:   []string{"put", "http://localhost:5984/foo", "-d", `[{"_id":"a"},{"n":2}]`},
		status: errors.ErrData,
	})
	tests.Add("array with doc url", cmdTest{
		args:   []string{"put", "http://localhost:5984/foo/bob", "-d", `[{"_id":"a"}]`},
		status: errors.ErrUsage,
	})
	tests.Add("scalar", cmdTest{
		args:   []string{"put", "http://localhost:5984/foo/bob", "-d", `3`},
		status: errors.ErrData,
	})

	tests.Run(t, func(t *testing.T, tt cmdTest) {
		tt.Test(t)
	})
}

func Test_post_RunE(t *testing.T) {
	tests := testy.NewTable()
	tests.Add("doc in url", cmdTest{
		args:   []string{"post", "http://localhost:5984/foo/bob", "-d", "{}"},
		status: errors.ErrUsage,
	})
	tests.Add("array", cmdTest{
		args:   []string{"post", "http://localhost:5984/foo", "-d", "[]"},
		status: errors.ErrData,
	})
	tests.Add("create", func(t *testing.T) interface{} {
		_, url := fakecouch.NewTestServer(t)
		return cmdTest{
			args:   []string{"post", url + "/foo", "-d", `{"name":"Bob"}`},
			stdout: `{"ok":true,"id":"XXX","rev":"1-XXX"}` + "\n",
		}
	})

	tests.Run(t, func(t *testing.T, tt cmdTest) {
		tt.Test(t)
	})
}

func Test_update_RunE(t *testing.T) {
	tests := testy.NewTable()
	tests.Add("merge", func(t *testing.T) interface{} {
		s, url := fakecouch.NewTestServer(t)
		s.Put("foo", "bob", map[string]interface{}{
			"name":    "Bob",
			"address": map[string]interface{}{"city": "Paris"},
		})
		return cmdTest{
			args:   []string{"update", url + "/foo/bob", "-d", `{"address":{"zip":"75001"}}`},
			stdout: `{"ok":true,"id":"bob","rev":"2-XXX"}` + "\n",
			check: func(t *testing.T) {
				wantDoc(t, s, "foo", "bob", map[string]interface{}{
					"_id":     "bob",
					"name":    "Bob",
					"address": map[string]interface{}{"city": "Paris", "zip": "75001"},
				})
			},
		}
	})
	tests.Add("missing", func(t *testing.T) interface{} {
		s, url := fakecouch.NewTestServer(t)
		s.CreateDB("foo")
		return cmdTest{
			args:   []string{"update", url + "/foo/bob", "-d", `{"name":"Bob"}`},
			status: errors.ErrNotFound,
		}
	})
	tests.Add("upsert missing", func(t *testing.T) interface{} {
		s, url := fakecouch.NewTestServer(t)
		return cmdTest{
			args:   []string{"upsert", url + "/foo/bob", "-d", `{"name":"Bob"}`},
			stdout: `{"ok":true,"id":"bob","rev":"1-XXX"}` + "\n",
			check: func(t *testing.T) {
				wantDoc(t, s, "foo", "bob", map[string]interface{}{"_id": "bob", "name": "Bob"})
			},
		}
	})
	tests.Add("upsert existing", func(t *testing.T) interface{} {
		s, url := fakecouch.NewTestServer(t)
		s.Put("foo", "bob", map[string]interface{}{"name": "Bob", "age": 40})
		return cmdTest{
			args:   []string{"upsert", url + "/foo/bob", "-d", `{"age":41}`},
			stdout: `{"ok":true,"id":"bob","rev":"2-XXX"}` + "\n",
			check: func(t *testing.T) {
				wantDoc(t, s, "foo", "bob", map[string]interface{}{"_id": "bob", "name": "Bob", "age": 41})
			},
		}
	})

	tests.Run(t, func(t *testing.T, tt cmdTest) {
		tt.Test(t)
	})
}

func Test_delete_RunE(t *testing.T) {
	tests := testy.NewTable()
	tests.Add("existing", func(t *testing.T) interface{} {
		s, url := fakecouch.NewTestServer(t)
		s.Put("foo", "bob", map[string]interface{}{"name": "Bob"})
		return cmdTest{
			args:   []string{"delete", url + "/foo/bob"},
			stdout: `{"ok":true,"id":"bob","rev":"2-XXX"}` + "\n",
			check: func(t *testing.T) {
				if _, ok := s.Get("foo", "bob"); ok {
					t.Error("document still exists")
				}
			},
		}
	})
	tests.Add("absent", func(t *testing.T) interface{} {
		s, url := fakecouch.NewTestServer(t)
		s.CreateDB("foo")
		return cmdTest{
			args:   []string{"delete", url + "/foo/bob"},
			stdout: `{"ok":true,"id":"bob","rev":""}` + "\n",
		}
	})
	tests.Add("no database", func(t *testing.T) interface{} {
		_, url := fakecouch.NewTestServer(t)
		return cmdTest{
			args:   []string{"destroy", url + "/foo/bob"},
			stdout: `{"ok":true,"id":"bob","rev":""}` + "\n",
		}
	})

	tests.Run(t, func(t *testing.T, tt cmdTest) {
		tt.Test(t)
	})
}
