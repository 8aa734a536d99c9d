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
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-kivik/recliner/chttp"
)

// Separators used in generated view names.
const (
	viewPrefix   = "by_"
	keySep       = "_and_"
	keyValueSep  = "_with_"
	valueSep     = "_plus_"
	pathSep      = "."
	prefixDesign = "_design/"
)

// GenerateName returns the name of the view which indexes documents by the
// given key paths and emits the given value paths. Paths are dotted, as in
// "address.city". The result depends only on the arguments, so equal
// requests share one view. Distinct arguments give distinct names as long as
// every path passes the checks [DB.FindStrict] applies.
func GenerateName(keys, values []string) string {
	name := viewPrefix + strings.Join(keys, keySep)
	if len(values) > 0 {
		name += keyValueSep + strings.Join(values, valueSep)
	}
	return name
}

// ParseName reverses GenerateName. ok is false if name was not produced by
// GenerateName.
func ParseName(name string) (keys, values []string, ok bool) {
	if !strings.HasPrefix(name, viewPrefix) {
		return nil, nil, false
	}
	name = strings.TrimPrefix(name, viewPrefix)
	keyPart, valuePart, hasValues := strings.Cut(name, keyValueSep)
	if keyPart == "" {
		return nil, nil, false
	}
	keys = strings.Split(keyPart, keySep)
	if hasValues {
		if valuePart == "" {
			return nil, nil, false
		}
		values = strings.Split(valuePart, valueSep)
	}
	for _, path := range append(append([]string{}, keys...), values...) {
		if validatePath(path) != nil {
			return nil, nil, false
		}
	}
	return keys, values, true
}

// MapFunction returns the JavaScript source of a map function which emits
// the key paths, as a single key or an array, and either null or an object
// rebuilt from the value paths. Documents missing any of the paths are
// skipped. With no keys there is nothing to emit, and the result is "".
func MapFunction(keys, values []string) string {
	if len(keys) == 0 {
		return ""
	}
	var guards []string
	seen := map[string]bool{}
	for _, path := range append(append([]string{}, keys...), values...) {
		segments := strings.Split(path, pathSep)
		for i := range segments {
			expr := accessor(segments[:i+1])
			if i < len(segments)-1 {
				if !seen[expr] {
					seen[expr] = true
					guards = append(guards, expr)
				}
				continue
			}
			leaf := expr + " !== undefined"
			if !seen[leaf] {
				seen[leaf] = true
				guards = append(guards, leaf)
			}
		}
	}

	emitKeys := make([]string, len(keys))
	for i, path := range keys {
		emitKeys[i] = accessor(strings.Split(path, pathSep))
	}
	key := emitKeys[0]
	if len(emitKeys) > 1 {
		key = "[" + strings.Join(emitKeys, ", ") + "]"
	}

	value := "null"
	if len(values) > 0 {
		tree := &valueNode{}
		for _, path := range values {
			tree.add(strings.Split(path, pathSep), nil)
		}
		value = tree.literal()
	}

	var b strings.Builder
	b.WriteString("function (doc) {\n")
	if len(guards) > 0 {
		b.WriteString("  if (" + strings.Join(guards, " && ") + ") {\n")
		b.WriteString("    emit(" + key + ", " + value + ");\n")
		b.WriteString("  }\n")
	} else {
		b.WriteString("  emit(" + key + ", " + value + ");\n")
	}
	b.WriteString("}")
	return b.String()
}

func quote(s string) string {
	q, _ := json.Marshal(s)
	return string(q)
}

func accessor(segments []string) string {
	var b strings.Builder
	b.WriteString("doc")
	for _, s := range segments {
		b.WriteString("[" + quote(s) + "]")
	}
	return b.String()
}

// valueNode is one level of the emitted value object. Children are kept in
// the order their paths were first requested.
type valueNode struct {
	names    []string
	children map[string]*valueNode
	// path is set on leaves.
	path []string
}

func (n *valueNode) add(segments, parent []string) {
	path := append(append([]string{}, parent...), segments[0])
	if n.children == nil {
		n.children = map[string]*valueNode{}
	}
	child, ok := n.children[segments[0]]
	if !ok {
		child = &valueNode{}
		n.children[segments[0]] = child
		n.names = append(n.names, segments[0])
	}
	if child.path != nil {
		// The whole value is already emitted.
		return
	}
	if len(segments) == 1 {
		*child = valueNode{path: path}
		return
	}
	child.add(segments[1:], path)
}

func (n *valueNode) literal() string {
	if n.path != nil {
		return accessor(n.path)
	}
	fields := make([]string, len(n.names))
	for i, name := range n.names {
		fields[i] = quote(name) + ": " + n.children[name].literal()
	}
	return "{" + strings.Join(fields, ", ") + "}"
}

// ViewParams are the query parameters of a view request. Keys are JSON
// encoded.
type ViewParams struct {
	Key         interface{}
	Keys        []interface{}
	StartKey    interface{}
	EndKey      interface{}
	Limit       int
	Skip        int
	Descending  bool
	IncludeDocs bool
	Reduce      *bool
}

func (p *ViewParams) values() (url.Values, error) {
	v := url.Values{}
	if p == nil {
		return v, nil
	}
	for name, key := range map[string]interface{}{
		"key":      p.Key,
		"startkey": p.StartKey,
		"endkey":   p.EndKey,
	} {
		if key == nil {
			continue
		}
		enc, err := encodeKey(key)
		if err != nil {
			return nil, err
		}
		v.Set(name, enc)
	}
	if p.Keys != nil {
		enc, err := encodeKey(p.Keys)
		if err != nil {
			return nil, err
		}
		v.Set("keys", enc)
	}
	if p.Limit < 0 || p.Skip < 0 {
		return nil, invalidParam(ScopeView, "limit and skip must not be negative")
	}
	if p.Limit > 0 {
		v.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Skip > 0 {
		v.Set("skip", strconv.Itoa(p.Skip))
	}
	if p.Descending {
		v.Set("descending", "true")
	}
	if p.IncludeDocs {
		v.Set("include_docs", "true")
	}
	if p.Reduce != nil {
		v.Set("reduce", strconv.FormatBool(*p.Reduce))
	}
	return v, nil
}

// encodeKey encodes a key to a view query to be passed to CouchDB.
func encodeKey(i interface{}) (string, error) {
	if raw, ok := i.(json.RawMessage); ok {
		return string(raw), nil
	}
	raw, err := json.Marshal(i)
	if err != nil {
		return "", invalidParam(ScopeView, "key: %s", err)
	}
	return string(raw), nil
}

// ViewResult is the response to a view query.
type ViewResult struct {
	TotalRows int64     `json:"total_rows"`
	Offset    int64     `json:"offset"`
	Rows      []ViewRow `json:"rows"`
}

// ViewRow is a single row of a view result.
type ViewRow struct {
	ID    string                 `json:"id,omitempty"`
	Key   interface{}            `json:"key"`
	Value interface{}            `json:"value"`
	Doc   map[string]interface{} `json:"doc,omitempty"`
}

// Document returns the row's document. The query must have set
// IncludeDocs.
func (r *ViewRow) Document() (*Document, error) {
	if r.Doc == nil {
		return nil, &Error{Scope: ScopeView, Name: NameNotFound, Status: http.StatusNotFound, Message: "row has no document"}
	}
	return decodeDocument(r.Doc)
}

// Query runs the named view of the named design document.
func (db *DB) Query(ctx context.Context, design, view string, params *ViewParams) (*ViewResult, error) {
	if err := db.begin("query"); err != nil {
		return nil, err
	}
	if design == "" {
		return nil, missingParam(ScopeView, "design")
	}
	if view == "" {
		return nil, missingParam(ScopeView, "view")
	}
	return db.query(ctx, design, view, params)
}

func (db *DB) query(ctx context.Context, design, view string, params *ViewParams) (*ViewResult, error) {
	query, err := params.values()
	if err != nil {
		return nil, err
	}
	path := chttp.DocPath(db.name, prefixDesign+strings.TrimPrefix(design, prefixDesign)) + "/_view/" + chttp.EncodeDocID(view)
	res, err := db.client.Request(ctx, http.MethodGet, path, &chttp.Options{Query: query})
	if err := check(ScopeView, err, res); err != nil {
		return nil, err
	}
	result := &ViewResult{}
	if err := decode(ScopeView, res, result); err != nil {
		return nil, err
	}
	return result, nil
}

// FindStrict queries the generated view indexing documents by keys and
// emitting values, as named by [GenerateName]. If the view, its design
// document or the database does not exist, the view is added to the DB's
// design document and the query is made once more.
func (db *DB) FindStrict(ctx context.Context, keys, values []string, params *ViewParams) (*ViewResult, error) {
	if err := db.begin("find_strict"); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, missingParam(ScopeView, "keys")
	}
	for _, path := range append(append([]string{}, keys...), values...) {
		if err := validatePath(path); err != nil {
			return nil, err
		}
	}
	name := GenerateName(keys, values)
	return db.queryOrInstall(ctx, db.design, name, params, func(ctx context.Context) error {
		return db.installView(ctx, name, View{Map: MapFunction(keys, values)})
	})
}

// validatePath rejects paths which could not be told apart from their
// neighbours in a generated name: those containing a separator, and those
// which, next to a separator, would complete another one, such as "a_and"
// followed by "_and_", or "with" between two separators.
func validatePath(path string) error {
	for _, s := range strings.Split(path, pathSep) {
		if s == "" {
			return invalidParam(ScopeView, "invalid field path %q", path)
		}
	}
	for _, sep := range []string{keySep, keyValueSep, valueSep} {
		word := strings.Trim(sep, "_")
		switch {
		case strings.Contains(path, sep):
			return invalidParam(ScopeView, "field path %q must not contain %q", path, sep)
		case path == word:
			return invalidParam(ScopeView, "field path must not be %q", word)
		case strings.HasPrefix(path, word+"_"), strings.HasSuffix(path, "_"+word):
			return invalidParam(ScopeView, "field path %q must not start with %q or end with %q", path, word+"_", "_"+word)
		}
	}
	return nil
}

// queryOrInstall runs the view, and if it is missing calls install and runs
// it exactly once more.
func (db *DB) queryOrInstall(ctx context.Context, design, view string, params *ViewParams, install func(context.Context) error) (*ViewResult, error) {
	result, err := db.query(ctx, design, view, params)
	switch Name(err) {
	case NameNoDBFile, NameNotFound:
	default:
		return result, err
	}
	db.log.Debugf("%s: view %s/%s unavailable (%s), installing", db.name, design, view, Name(err))
	if err := install(ctx); err != nil {
		return nil, err
	}
	db.metrics.viewInstalled()
	return db.query(ctx, design, view, params)
}
