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

func seedUsers(t *testing.T) (*fakecouch.Server, string) {
	t.Helper()
	s, url := fakecouch.NewTestServer(t)
	s.Put("foo", "a", map[string]interface{}{"type": "user", "name": "Ann"})
	s.Put("foo", "b", map[string]interface{}{"type": "user", "name": "Ben"})
	s.Put("foo", "c", map[string]interface{}{"type": "post", "title": "Hello"})
	return s, url
}

func wantView(t *testing.T, s *fakecouch.Server, design, view string) {
	t.Helper()
	ddoc, ok := s.Get("foo", "_design/"+design)
	if !ok {
		t.Fatalf("_design/%s not installed", design)
	}
	views, _ := ddoc["views"].(map[string]interface{})
	if _, ok := views[view]; !ok {
		t.Errorf("view %s not installed", view)
	}
}

func Test_view_RunE(t *testing.T) {
	tests := testy.NewTable()
	tests.Add("no key", cmdTest{
		args:   []string{"view", "http://localhost:5984/foo"},
		status: errors.ErrUsage,
	})
	tests.Add("invalid match", cmdTest{
		args:   []string{"view", "http://localhost:5984/foo", "--key", "type", "--match", "user"},
		status: errors.ErrUsage,
	})
	tests.Add("invalid path", cmdTest{
		args:   []string{"view", "http://localhost:5984/foo", "--key", "address..city"},
		status: errors.ErrUsage,
	})
	tests.Add("key and value", func(t *testing.T) interface{} {
		s, url := seedUsers(t)
		return cmdTest{
			args:   []string{"view", url + "/foo", "--key", "type", "--value", "name", "--match", `"user"`},
			stdout: `{"total_rows":2,"offset":0,"rows":[{"id":"a","key":"user","value":{"name":"Ann"}},{"id":"b","key":"user","value":{"name":"Ben"}}]}` + "\n",
			check: func(t *testing.T) {
				wantView(t, s, "recliner", "by_type_with_name")
			},
		}
	})
	tests.Add("descending with limit", func(t *testing.T) interface{} {
		_, url := seedUsers(t)
		return cmdTest{
			args:   []string{"view", url + "/foo", "--key", "type", "--descending", "--limit", "2"},
			stdout: `{"total_rows":3,"offset":0,"rows":[{"id":"b","key":"user","value":null},{"id":"a","key":"user","value":null}]}` + "\n",
		}
	})
	tests.Add("include docs", func(t *testing.T) interface{} {
		_, url := seedUsers(t)
		return cmdTest{
			args:   []string{"view", url + "/foo", "--key", "name", "--match", `"Ann"`, "--include-docs"},
			stdout: `{"total_rows":2,"offset":0,"rows":[{"id":"a","key":"Ann","value":null,"doc":{"_id":"a","_rev":"1-XXX","name":"Ann","type":"user"}}]}` + "\n",
		}
	})
	tests.Add("design flag", func(t *testing.T) interface{} {
		s, url := seedUsers(t)
		return cmdTest{
			args:   []string{"--design", "widgets", "view", url + "/foo", "--key", "title"},
			stdout: `{"total_rows":1,"offset":0,"rows":[{"id":"c","key":"Hello","value":null}]}` + "\n",
			check: func(t *testing.T) {
				wantView(t, s, "widgets", "by_title")
			},
		}
	})
	tests.Add("design from env", func(t *testing.T) interface{} {
		s, url := seedUsers(t)
		return cmdTest{
			args:   []string{"view", url + "/foo", "--key", "title"},
			env:    map[string]string{"RECLINER_DESIGN": "people"},
			stdout: `{"total_rows":1,"offset":0,"rows":[{"id":"c","key":"Hello","value":null}]}` + "\n",
			check: func(t *testing.T) {
				wantView(t, s, "people", "by_title")
			},
		}
	})

	tests.Run(t, func(t *testing.T, tt cmdTest) {
		tt.Test(t)
	})
}

func Test_find_RunE(t *testing.T) {
	tests := testy.NewTable()
	tests.Add("missing selector", cmdTest{
		args:   []string{"find", "http://localhost:5984/foo", "-d", `{}`},
		status: errors.ErrUsage,
	})
	tests.Add("invalid limit", cmdTest{
		args:   []string{"find", "http://localhost:5984/foo", "-d", `{"selector":{},"limit":0}`},
		status: errors.ErrUsage,
	})
	tests.Add("no database", func(t *testing.T) interface{} {
		_, url := fakecouch.NewTestServer(t)
		return cmdTest{
			args:   []string{"find", url + "/foo", "-d", `{"selector":{}}`},
			status: errors.ErrNotFound,
		}
	})
	tests.Add("fields", func(t *testing.T) interface{} {
		_, url := seedUsers(t)
		return cmdTest{
			args:   []string{"find", url + "/foo", "-d", `{"selector":{"type":"user"},"fields":["name"]}`},
			stdout: `[{"_id":"a","_rev":"1-XXX","name":"Ann"},{"_id":"b","_rev":"1-XXX","name":"Ben"}]` + "\n",
		}
	})
	tests.Add("yaml query", func(t *testing.T) interface{} {
		_, url := seedUsers(t)
		return cmdTest{
			args:   []string{"find", url + "/foo", "--yaml", "-d", "selector:\n  type: post\n"},
			stdout: `[{"_id":"c","_rev":"1-XXX","title":"Hello","type":"post"}]` + "\n",
		}
	})

	tests.Run(t, func(t *testing.T, tt cmdTest) {
		tt.Test(t)
	})
}
