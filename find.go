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
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/go-kivik/recliner/chttp"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// FindSpec is a Mango query.
type FindSpec struct {
	Selector map[string]interface{} `json:"selector" validate:"required"`
	// Fields limits the fields returned. _id and _rev are always added.
	Fields []string      `json:"fields,omitempty" validate:"omitempty,dive,required"`
	Limit  *int          `json:"limit,omitempty" validate:"omitempty,gt=0"`
	Skip   int           `json:"skip,omitempty" validate:"gte=0"`
	Sort   []interface{} `json:"sort,omitempty"`
}

// ParseFindSpec reads a query in its JSON form. The selector must be an
// object, limit a positive integer, skip a non-negative integer, sort an
// array and fields an array of strings.
func ParseFindSpec(raw map[string]interface{}) (*FindSpec, error) {
	spec := &FindSpec{}
	sel, ok := raw["selector"]
	if !ok || sel == nil {
		return nil, missingParam(ScopeView, "selector")
	}
	if spec.Selector, ok = sel.(map[string]interface{}); !ok {
		return nil, invalidParam(ScopeView, "selector must be an object")
	}
	if v, ok := raw["limit"]; ok {
		n, isInt := integer(v)
		if !isInt || n <= 0 {
			return nil, invalidParam(ScopeView, "limit must be a positive integer")
		}
		limit := int(n)
		spec.Limit = &limit
	}
	if v, ok := raw["skip"]; ok {
		n, isInt := integer(v)
		if !isInt || n < 0 {
			return nil, invalidParam(ScopeView, "skip must be a non-negative integer")
		}
		spec.Skip = int(n)
	}
	if v, ok := raw["sort"]; ok {
		if spec.Sort, ok = v.([]interface{}); !ok {
			return nil, invalidParam(ScopeView, "sort must be an array")
		}
	}
	if v, ok := raw["fields"]; ok {
		fields, isArray := v.([]interface{})
		if !isArray {
			return nil, invalidParam(ScopeView, "fields must be an array")
		}
		for _, f := range fields {
			name, isString := f.(string)
			if !isString {
				return nil, invalidParam(ScopeView, "fields must be strings")
			}
			spec.Fields = append(spec.Fields, name)
		}
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}

// Validate checks the constraints ParseFindSpec enforces, for specs built in
// Go.
func (s *FindSpec) Validate() error {
	if s == nil {
		return missingParam(ScopeView, "query")
	}
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return invalidParam(ScopeView, "%s", err)
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		msgs[i] = fmt.Sprintf("%s failed %q", strings.ToLower(fe.Field()), fe.Tag())
	}
	return invalidParam(ScopeView, "%s", strings.Join(msgs, "; "))
}

// withIdentity returns a copy of s whose field list, if any, includes _id and
// _rev.
func (s *FindSpec) withIdentity() *FindSpec {
	c := *s
	if len(s.Fields) == 0 {
		return &c
	}
	c.Fields = append([]string{}, s.Fields...)
	for _, f := range []string{fieldID, fieldRev} {
		var found bool
		for _, existing := range c.Fields {
			if existing == f {
				found = true
				break
			}
		}
		if !found {
			c.Fields = append(c.Fields, f)
		}
	}
	return &c
}

// Find runs a Mango query and returns the matching documents.
func (db *DB) Find(ctx context.Context, spec *FindSpec) ([]*Document, error) {
	if err := db.begin("find"); err != nil {
		return nil, err
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	res, err := db.client.Request(ctx, http.MethodPost, chttp.EncodeDBName(db.name)+"/_find", &chttp.Options{
		GetBody: chttp.BodyEncoder(spec.withIdentity()),
	})
	if err := check(ScopeView, err, res); err != nil {
		return nil, err
	}
	var result struct {
		Docs    []map[string]interface{} `json:"docs"`
		Warning string                   `json:"warning"`
	}
	if err := decode(ScopeView, res, &result); err != nil {
		return nil, err
	}
	if result.Warning != "" {
		db.log.Debugf("%s: find: %s", db.name, result.Warning)
	}
	docs := make([]*Document, 0, len(result.Docs))
	for _, raw := range result.Docs {
		doc, err := decodeDocument(raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
