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
	"strings"

	"gitlab.com/flimzy/httpe"
)

type findQuery struct {
	Selector map[string]interface{} `json:"selector"`
	Fields   []string               `json:"fields"`
	Limit    *int                   `json:"limit"`
	Skip     int                    `json:"skip"`
	Sort     []interface{}          `json:"sort"`
}

const defaultFindLimit = 25

func (s *Server) find() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		dbName := param(r, "db")
		body, err := readBody(r)
		if err != nil {
			return err
		}
		var q findQuery
		if err := json.Unmarshal(body, &q); err != nil {
			return badRequest("invalid query")
		}
		if q.Selector == nil {
			return badRequest("Missing required key: selector")
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		db, ok := s.dbs[dbName]
		if !ok {
			return errNoDB
		}
		docs := []map[string]interface{}{}
		for id, doc := range db.docs {
			if doc.deleted || strings.HasPrefix(id, prefixDesign) {
				continue
			}
			rendered := doc.render(id)
			if matches(rendered, q.Selector) {
				docs = append(docs, rendered)
			}
		}
		sortDocs(docs, q.Sort)
		if q.Skip > 0 {
			if q.Skip > len(docs) {
				q.Skip = len(docs)
			}
			docs = docs[q.Skip:]
		}
		limit := defaultFindLimit
		if q.Limit != nil {
			limit = *q.Limit
		}
		if limit < len(docs) {
			docs = docs[:limit]
		}
		if len(q.Fields) > 0 {
			for i, doc := range docs {
				docs[i] = project(doc, q.Fields)
			}
		}
		return serveJSON(w, http.StatusOK, map[string]interface{}{
			"docs":     docs,
			"bookmark": "nil",
			"warning":  "No matching index found, create an index to optimize query time.",
		})
	})
}

func isOperator(cond map[string]interface{}) bool {
	for k := range cond {
		if strings.HasPrefix(k, "$") {
			return true
		}
	}
	return false
}

func matches(doc map[string]interface{}, selector map[string]interface{}) bool {
	for key, cond := range selector {
		switch key {
		case "$and", "$or":
			list, _ := cond.([]interface{})
			matched := false
			for _, sub := range list {
				subSel, _ := sub.(map[string]interface{})
				m := matches(doc, subSel)
				if key == "$and" && !m {
					return false
				}
				matched = matched || m
			}
			if key == "$or" && !matched {
				return false
			}
			continue
		}
		value, ok := field(doc, key)
		c, isMap := cond.(map[string]interface{})
		switch {
		case isMap && isOperator(c):
			for op, arg := range c {
				if !evalOp(op, value, ok, arg) {
					return false
				}
			}
		case isMap:
			sub, isSub := value.(map[string]interface{})
			if !isSub || !matches(sub, c) {
				return false
			}
		default:
			if !ok || collate(value, cond) != 0 {
				return false
			}
		}
	}
	return true
}

func evalOp(op string, value interface{}, exists bool, arg interface{}) bool {
	switch op {
	case "$exists":
		want, _ := arg.(bool)
		return exists == want
	case "$ne":
		return !exists || collate(value, arg) != 0
	case "$in", "$nin":
		list, _ := arg.([]interface{})
		found := false
		for _, v := range list {
			if exists && collate(value, v) == 0 {
				found = true
				break
			}
		}
		return found == (op == "$in")
	}
	if !exists {
		return false
	}
	c := collate(value, arg)
	switch op {
	case "$eq":
		return c == 0
	case "$gt":
		return c > 0
	case "$gte":
		return c >= 0
	case "$lt":
		return c < 0
	case "$lte":
		return c <= 0
	}
	return false
}

func sortDocs(docs []map[string]interface{}, spec []interface{}) {
	type sortField struct {
		path string
		desc bool
	}
	fields := make([]sortField, 0, len(spec))
	for _, s := range spec {
		switch t := s.(type) {
		case string:
			fields = append(fields, sortField{path: t})
		case map[string]interface{}:
			for path, dir := range t {
				fields = append(fields, sortField{path: path, desc: dir == "desc"})
			}
		}
	}
	fields = append(fields, sortField{path: "_id"})
	sort.SliceStable(docs, func(i, j int) bool {
		for _, f := range fields {
			a, _ := field(docs[i], f.path)
			b, _ := field(docs[j], f.path)
			c := collate(a, b)
			if c == 0 {
				continue
			}
			if f.desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func project(doc map[string]interface{}, fields []string) map[string]interface{} {
	out := map[string]interface{}{}
	for _, path := range fields {
		v, ok := field(doc, path)
		if !ok {
			continue
		}
		segments := strings.Split(path, ".")
		node := out
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
	return out
}
