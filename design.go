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
	"strings"
)

// LanguageJavaScript is the default design document language.
const LanguageJavaScript = "javascript"

// DesignDoc is a design document.
type DesignDoc struct {
	Language string            `json:"language,omitempty"`
	Views    map[string]View   `json:"views,omitempty"`
	Shows    map[string]string `json:"shows,omitempty"`
}

// View is a single view definition.
type View struct {
	Map    string `json:"map"`
	Reduce string `json:"reduce,omitempty"`
}

func (d *DesignDoc) toMap() map[string]interface{} {
	lang := d.Language
	if lang == "" {
		lang = LanguageJavaScript
	}
	doc := map[string]interface{}{
		"language": lang,
	}
	if len(d.Views) > 0 {
		views := make(map[string]interface{}, len(d.Views))
		for name, v := range d.Views {
			view := map[string]interface{}{"map": v.Map}
			if v.Reduce != "" {
				view["reduce"] = v.Reduce
			}
			views[name] = view
		}
		doc["views"] = views
	}
	if len(d.Shows) > 0 {
		shows := make(map[string]interface{}, len(d.Shows))
		for name, src := range d.Shows {
			shows[name] = src
		}
		doc["shows"] = shows
	}
	return doc
}

func designID(name string) string {
	return prefixDesign + strings.TrimPrefix(name, prefixDesign)
}

// Catalog queries a view of a design document declared with
// [OptionDesign]. If the view, the design document or the database does not
// exist, the declared design document is installed and the query is made
// once more.
func (db *DB) Catalog(ctx context.Context, design, view string, params *ViewParams) (*ViewResult, error) {
	if err := db.begin("catalog"); err != nil {
		return nil, err
	}
	dd, err := db.declared(design)
	if err != nil {
		return nil, err
	}
	if view == "" {
		return nil, missingParam(ScopeView, "view")
	}
	if _, ok := dd.Views[view]; !ok {
		return nil, invalidParam(ScopeView, "design %q declares no view %q", design, view)
	}
	return db.queryOrInstall(ctx, design, view, params, func(ctx context.Context) error {
		_, err := db.installDesign(ctx, design, dd)
		return err
	})
}

// InstallDesign stores the declared design document, replacing the stored
// one.
func (db *DB) InstallDesign(ctx context.Context, design string) (*Document, error) {
	if err := db.begin("install_design"); err != nil {
		return nil, err
	}
	dd, err := db.declared(design)
	if err != nil {
		return nil, err
	}
	return db.installDesign(ctx, design, dd)
}

func (db *DB) declared(design string) (*DesignDoc, error) {
	if design == "" {
		return nil, missingParam(ScopeView, "design")
	}
	dd, ok := db.designs[strings.TrimPrefix(design, prefixDesign)]
	if !ok || dd == nil {
		return nil, invalidParam(ScopeView, "design %q is not declared", design)
	}
	return dd, nil
}

func (db *DB) installDesign(ctx context.Context, design string, dd *DesignDoc) (*Document, error) {
	db.log.Debugf("%s: installing %s", db.name, designID(design))
	return db.Write(ctx, designID(design), dd.toMap())
}

// installView adds view to the DB's generated design document, keeping any
// views already stored there.
func (db *DB) installView(ctx context.Context, name string, view View) error {
	body, err := NewBody((&DesignDoc{Views: map[string]View{name: view}}).toMap())
	if err != nil {
		return err
	}
	_, err = db.updateOrWrite(ctx, designID(db.design), body)
	return err
}
