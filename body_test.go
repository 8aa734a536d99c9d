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
	"testing"

	"gitlab.com/flimzy/testy"
)

func TestMerge(t *testing.T) {
	type tt struct {
		base, override interface{}
		want           interface{}
	}

	tests := testy.NewTable()
	tests.Add("disjoint", tt{
		base:     map[string]interface{}{"a": 1.0},
		override: map[string]interface{}{"b": 2.0},
		want:     map[string]interface{}{"a": 1.0, "b": 2.0},
	})
	tests.Add("override wins", tt{
		base:     map[string]interface{}{"a": 1.0},
		override: map[string]interface{}{"a": "x"},
		want:     map[string]interface{}{"a": "x"},
	})
	tests.Add("nested", tt{
		base: map[string]interface{}{
			"address": map[string]interface{}{"city": "Paris", "zip": "75001"},
		},
		override: map[string]interface{}{
			"address": map[string]interface{}{"city": "Lyon"},
		},
		want: map[string]interface{}{
			"address": map[string]interface{}{"city": "Lyon", "zip": "75001"},
		},
	})
	tests.Add("arrays replace", tt{
		base:     map[string]interface{}{"tags": []interface{}{"a", "b"}},
		override: map[string]interface{}{"tags": []interface{}{"c"}},
		want:     map[string]interface{}{"tags": []interface{}{"c"}},
	})
	tests.Add("object replaces scalar", tt{
		base:     map[string]interface{}{"a": 1.0},
		override: map[string]interface{}{"a": map[string]interface{}{"b": true}},
		want:     map[string]interface{}{"a": map[string]interface{}{"b": true}},
	})
	tests.Add("null overrides", tt{
		base:     map[string]interface{}{"a": 1.0},
		override: map[string]interface{}{"a": nil},
		want:     map[string]interface{}{"a": nil},
	})

	tests.Run(t, func(t *testing.T, tt tt) {
		got := merge(tt.base, tt.override)
		if d := testy.DiffInterface(tt.want, got); d != nil {
			t.Error(d)
		}
	})
}

func TestMergeDoesNotAlias(t *testing.T) {
	base := map[string]interface{}{"n": map[string]interface{}{"x": 1.0}}
	override := map[string]interface{}{"l": []interface{}{1.0}}
	got := mergeMaps(base, override)
	got["n"].(map[string]interface{})["x"] = 2.0
	got["l"].([]interface{})[0] = 2.0
	if base["n"].(map[string]interface{})["x"] != 1.0 {
		t.Error("base was modified")
	}
	if override["l"].([]interface{})[0] != 1.0 {
		t.Error("override was modified")
	}
}

func TestNewBody(t *testing.T) {
	type tt struct {
		doc     interface{}
		data    map[string]interface{}
		atts    []string
		cleared bool
		err     string
	}

	tests := testy.NewTable()
	tests.Add("map", tt{
		doc:  map[string]interface{}{"_id": "foo", "_rev": "1-abc", "name": "Bob"},
		data: map[string]interface{}{"name": "Bob"},
	})
	tests.Add("struct", tt{
		doc: struct {
			Name string `json:"name"`
			Age  int    `json:"age"`
		}{Name: "Bob", Age: 42},
		data: map[string]interface{}{"name": "Bob", "age": 42.0},
	})
	tests.Add("raw json", tt{
		doc:  json.RawMessage(`{"a":[1,2]}`),
		data: map[string]interface{}{"a": []interface{}{1.0, 2.0}},
	})
	tests.Add("bytes", tt{
		doc:  []byte(`{"a":true}`),
		data: map[string]interface{}{"a": true},
	})
	tests.Add("attachments", tt{
		doc: map[string]interface{}{
			"a": 1.0,
			"_attachments": map[string]interface{}{
				"x.txt": map[string]interface{}{"content_type": "text/plain", "body": "x"},
				"y.txt": map[string]interface{}{"content_type": "text/plain", "stub": true, "length": 3.0},
			},
		},
		data: map[string]interface{}{"a": 1.0},
		atts: []string{"x.txt", "y.txt"},
	})
	tests.Add("null attachments clear", tt{
		doc:     map[string]interface{}{"_attachments": nil},
		data:    map[string]interface{}{},
		cleared: true,
	})
	tests.Add("nil", tt{
		err: "doc: missing_param: document body required",
	})
	tests.Add("array", tt{
		doc: []byte(`[1,2]`),
		err: "doc: invalid_param: document body must be a JSON object",
	})
	tests.Add("json null", tt{
		doc: json.RawMessage(`null`),
		err: "doc: invalid_param: document body must be a JSON object",
	})
	tests.Add("bad attachments", tt{
		doc: map[string]interface{}{"_attachments": "foo"},
		err: "attachment: invalid_param: _attachments must be an object",
	})

	tests.Run(t, func(t *testing.T, tt tt) {
		body, err := NewBody(tt.doc)
		if !testy.ErrorMatches(tt.err, err) {
			t.Errorf("Unexpected error: %s", err)
		}
		if err != nil {
			return
		}
		if d := testy.DiffInterface(tt.data, body.Data()); d != nil {
			t.Error(d)
		}
		if d := testy.DiffInterface(tt.atts, namesOrNil(body.Attachments())); d != nil {
			t.Error(d)
		}
		if body.clear != tt.cleared {
			t.Errorf("Unexpected clear flag: %v", body.clear)
		}
	})
}

func namesOrNil(atts Attachments) []string {
	if len(atts) == 0 {
		return nil
	}
	return atts.Names()
}

func TestBodyExtend(t *testing.T) {
	base, err := NewBody(map[string]interface{}{
		"name": "Bob",
		"address": map[string]interface{}{
			"city": "Paris",
			"zip":  "75001",
		},
		"_attachments": map[string]interface{}{
			"keep.txt":    map[string]interface{}{"content_type": "text/plain", "stub": true, "length": 4.0},
			"replace.txt": map[string]interface{}{"content_type": "text/plain", "stub": true, "length": 1.0},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	override, err := NewBody(map[string]interface{}{
		"address": map[string]interface{}{"city": "Lyon"},
		"_attachments": map[string]interface{}{
			"replace.txt": map[string]interface{}{"content_type": "text/html", "body": "<p>"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	t.Run("merge", func(t *testing.T) {
		got := override.Extend(base)
		wantData := map[string]interface{}{
			"name":    "Bob",
			"address": map[string]interface{}{"city": "Lyon", "zip": "75001"},
		}
		if d := testy.DiffInterface(wantData, got.Data()); d != nil {
			t.Error(d)
		}
		atts := got.Attachments()
		if d := testy.DiffInterface([]string{"keep.txt", "replace.txt"}, atts.Names()); d != nil {
			t.Error(d)
		}
		if !atts["keep.txt"].Stub {
			t.Error("keep.txt should remain a stub")
		}
		if atts["replace.txt"].Stub || atts["replace.txt"].ContentType != "text/html" {
			t.Errorf("replace.txt should be overridden, got %+v", atts["replace.txt"])
		}
	})
	t.Run("clear", func(t *testing.T) {
		clear, err := NewBody(map[string]interface{}{"_attachments": nil})
		if err != nil {
			t.Fatal(err)
		}
		got := clear.Extend(base)
		if len(got.Attachments()) != 0 {
			t.Errorf("Expected no attachments, got %v", got.Attachments().Names())
		}
		if got.Data()["name"] != "Bob" {
			t.Error("fields should survive clearing attachments")
		}
	})
	t.Run("inputs untouched", func(t *testing.T) {
		_ = override.Extend(base)
		if base.Data()["address"].(map[string]interface{})["city"] != "Paris" {
			t.Error("base was modified")
		}
	})
}

func TestBodyForHTTP(t *testing.T) {
	body, err := NewBody(map[string]interface{}{
		"a": 1.0,
		"_attachments": Attachments{
			"z.txt": AttachmentFromBytes("", "text/plain", []byte("zzz")),
			"m.txt": {ContentType: "text/plain", Stub: true, Length: int64p(2)},
			"b.bin": AttachmentFromBytes("", "application/octet-stream", []byte{0, 1}),
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	payload, err := body.ForHTTP("3-abc")
	if err != nil {
		t.Fatal(err)
	}
	if !payload.Multipart() {
		t.Fatal("Expected a multipart payload")
	}
	wantDoc := `{
		"_attachments": {
			"b.bin": {"content_type":"application/octet-stream","follows":true,"length":2},
			"m.txt": {"content_type":"text/plain","length":2,"stub":true},
			"z.txt": {"content_type":"text/plain","follows":true,"length":3}
		},
		"_rev": "3-abc",
		"a": 1
	}`
	if d := testy.DiffJSON([]byte(wantDoc), payload.Doc); d != nil {
		t.Error(d)
	}
	// Sections follow the descriptor order: sorted by name, stubs skipped.
	if len(payload.Parts) != 2 {
		t.Fatalf("Unexpected part count: %d", len(payload.Parts))
	}
	if string(payload.Parts[0].Body) != "\x00\x01" || string(payload.Parts[1].Body) != "zzz" {
		t.Errorf("Unexpected part order: %q, %q", payload.Parts[0].Body, payload.Parts[1].Body)
	}
	opts, err := payload.options()
	if err != nil {
		t.Fatal(err)
	}
	if !opts.NoGzip {
		t.Error("multipart payloads must not be compressed")
	}
}

func TestBodyForHTTPPlain(t *testing.T) {
	body, err := NewBody(map[string]interface{}{"a": "b"})
	if err != nil {
		t.Fatal(err)
	}
	payload, err := body.ForHTTP("")
	if err != nil {
		t.Fatal(err)
	}
	if payload.Multipart() {
		t.Error("Expected a plain payload")
	}
	if d := testy.DiffJSON([]byte(`{"a":"b"}`), payload.Doc); d != nil {
		t.Error(d)
	}
}
