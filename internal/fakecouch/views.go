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
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/icza/dyno"
	"gitlab.com/flimzy/httpe"
)

// Row is a single emitted view row.
type Row struct {
	Key   interface{}
	Value interface{}
}

// ViewFunc stands in for a view's map function. It returns the rows emitted
// for doc.
type ViewFunc func(doc map[string]interface{}) []Row

// SetView registers fn as the implementation of a view. Views without a
// registered implementation must have a generated name of the form
// by_<keys>[_with_<values>].
func (s *Server) SetView(ddoc, view string, fn ViewFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.views[strings.TrimPrefix(ddoc, prefixDesign)+"/"+view] = fn
}

// generatedView emulates the map function of a view named by key and value
// paths.
func generatedView(name string) (ViewFunc, bool) {
	if !strings.HasPrefix(name, "by_") {
		return nil, false
	}
	keyPart, valuePart, hasValues := strings.Cut(strings.TrimPrefix(name, "by_"), "_with_")
	keys := strings.Split(keyPart, "_and_")
	var values []string
	if hasValues {
		values = strings.Split(valuePart, "_plus_")
	}
	return func(doc map[string]interface{}) []Row {
		emitted := make([]interface{}, len(keys))
		for i, path := range keys {
			v, ok := field(doc, path)
			if !ok {
				return nil
			}
			emitted[i] = v
		}
		var value interface{}
		if len(values) > 0 {
			obj := map[string]interface{}{}
			for _, path := range values {
				v, ok := field(doc, path)
				if !ok {
					return nil
				}
				segments := strings.Split(path, ".")
				node := obj
				for _, s := range segments[:len(segments)-1] {
					child, ok := node[s].(map[string]interface{})
					if !ok {
						child = map[string]interface{}{}
						node[s] = child
					}
					node = child
				}
				node[segments[len(segments)-1]] = v
			}
			value = obj
		}
		var key interface{} = emitted
		if len(keys) == 1 {
			key = emitted[0]
		}
		return []Row{{Key: key, Value: value}}
	}, true
}

// field returns the value at a dotted path.
func field(doc map[string]interface{}, path string) (interface{}, bool) {
	segments := strings.Split(path, ".")
	p := make([]interface{}, len(segments))
	for i, s := range segments {
		p[i] = s
	}
	v, err := dyno.Get(doc, p...)
	return v, err == nil
}

type viewRow struct {
	ID    string                 `json:"id"`
	Key   interface{}            `json:"key"`
	Value interface{}            `json:"value"`
	Doc   map[string]interface{} `json:"doc,omitempty"`
}

func jsonParam(r *http.Request, name string) (interface{}, bool, error) {
	raw, ok := r.URL.Query()[name]
	if !ok {
		return nil, false, nil
	}
	var v interface{}
	if err := json.Unmarshal([]byte(raw[0]), &v); err != nil {
		return nil, false, badRequest("invalid JSON in " + name)
	}
	return v, true, nil
}

func (s *Server) queryView() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		dbName, ddoc, view := param(r, "db"), param(r, "docid"), param(r, "view")
		s.mu.Lock()
		defer s.mu.Unlock()
		design, err := s.lookup(dbName, prefixDesign+ddoc)
		if err != nil {
			if err == errNoDB {
				return err
			}
			return errMissing
		}
		views, _ := design.data["views"].(map[string]interface{})
		if _, ok := views[view]; !ok {
			return errNoView
		}
		fn, ok := s.views[ddoc+"/"+view]
		if !ok {
			if fn, ok = generatedView(view); !ok {
				return &couchError{status: http.StatusInternalServerError, Err: "not_implemented", Reason: "no emulation for view " + view}
			}
		}

		rows := []viewRow{}
		for id, doc := range s.dbs[dbName].docs {
			if doc.deleted || strings.HasPrefix(id, prefixDesign) {
				continue
			}
			rendered := doc.render(id)
			for _, row := range fn(rendered) {
				rows = append(rows, viewRow{ID: id, Key: row.Key, Value: row.Value})
			}
		}
		sort.Slice(rows, func(i, j int) bool {
			if c := collate(rows[i].Key, rows[j].Key); c != 0 {
				return c < 0
			}
			return rows[i].ID < rows[j].ID
		})
		total := len(rows)

		q := r.URL.Query()
		if q.Get("descending") == "true" {
			for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
				rows[i], rows[j] = rows[j], rows[i]
			}
		}
		if rows, err = filterRows(r, rows); err != nil {
			return err
		}
		offset := 0
		if skip, err := strconv.Atoi(q.Get("skip")); err == nil && skip > 0 {
			offset = skip
			if skip > len(rows) {
				skip = len(rows)
			}
			rows = rows[skip:]
		}
		if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit >= 0 && limit < len(rows) {
			rows = rows[:limit]
		}
		if q.Get("include_docs") == "true" {
			for i := range rows {
				rows[i].Doc = s.dbs[dbName].docs[rows[i].ID].render(rows[i].ID)
			}
		}
		return serveJSON(w, http.StatusOK, map[string]interface{}{
			"total_rows": total,
			"offset":     offset,
			"rows":       rows,
		})
	})
}

func filterRows(r *http.Request, rows []viewRow) ([]viewRow, error) {
	descending := r.URL.Query().Get("descending") == "true"
	if key, ok, err := jsonParam(r, "key"); err != nil {
		return nil, err
	} else if ok {
		return selectRows(rows, func(row viewRow) bool { return collate(row.Key, key) == 0 }), nil
	}
	if keys, ok, err := jsonParam(r, "keys"); err != nil {
		return nil, err
	} else if ok {
		list, _ := keys.([]interface{})
		var out []viewRow
		for _, key := range list {
			out = append(out, selectRows(rows, func(row viewRow) bool { return collate(row.Key, key) == 0 })...)
		}
		return out, nil
	}
	start, hasStart, err := jsonParam(r, "startkey")
	if err != nil {
		return nil, err
	}
	end, hasEnd, err := jsonParam(r, "endkey")
	if err != nil {
		return nil, err
	}
	return selectRows(rows, func(row viewRow) bool {
		if hasStart {
			c := collate(row.Key, start)
			if (!descending && c < 0) || (descending && c > 0) {
				return false
			}
		}
		if hasEnd {
			c := collate(row.Key, end)
			if (!descending && c > 0) || (descending && c < 0) {
				return false
			}
		}
		return true
	}), nil
}

func selectRows(rows []viewRow, keep func(viewRow) bool) []viewRow {
	out := []viewRow{}
	for _, row := range rows {
		if keep(row) {
			out = append(out, row)
		}
	}
	return out
}
