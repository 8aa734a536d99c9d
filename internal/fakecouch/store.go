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
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gitlab.com/flimzy/httpe"
)

const prefixDesign = "_design/"

type database struct {
	docs map[string]*document
}

type document struct {
	gen         int
	rev         string
	deleted     bool
	data        map[string]interface{}
	attachments map[string]*attachment
}

type attachment struct {
	contentType string
	data        []byte
	revPos      int
	digest      string
}

func newRev(gen int) string {
	return fmt.Sprintf("%d-%s", gen, strings.ReplaceAll(uuid.NewString(), "-", ""))
}

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func digest(data []byte) string {
	sum := md5.Sum(data)
	return "md5-" + base64.StdEncoding.EncodeToString(sum[:])
}

// render returns the document as CouchDB serves it, with attachment stubs.
func (d *document) render(id string) map[string]interface{} {
	out := make(map[string]interface{}, len(d.data)+3)
	for k, v := range d.data {
		out[k] = v
	}
	out["_id"] = id
	out["_rev"] = d.rev
	if len(d.attachments) > 0 {
		atts := make(map[string]interface{}, len(d.attachments))
		for name, att := range d.attachments {
			atts[name] = map[string]interface{}{
				"content_type": att.contentType,
				"revpos":       att.revPos,
				"digest":       att.digest,
				"length":       len(att.data),
				"stub":         true,
			}
		}
		out["_attachments"] = atts
	}
	return out
}

// write stores doc under id, checking rev unless force is set. It must be
// called with s.mu held.
func (s *Server) write(dbName, id string, doc map[string]interface{}, parts []Part, rev string, force bool) (string, error) {
	db, ok := s.dbs[dbName]
	if !ok {
		return "", errNoDB
	}
	current := db.docs[id]
	live := current != nil && !current.deleted
	if !force {
		switch {
		case live && rev != current.rev:
			return "", errConflict
		case !live && rev != "" && (current == nil || rev != current.rev):
			return "", errConflict
		}
	}
	gen := 1
	if current != nil {
		gen = current.gen + 1
	}
	next := &document{
		gen:  gen,
		rev:  newRev(gen),
		data: map[string]interface{}{},
	}
	for k, v := range doc {
		switch k {
		case "_id", "_rev", "_attachments":
			continue
		}
		next.data[k] = v
	}
	if deleted, _ := doc["_deleted"].(bool); deleted {
		next.deleted = true
		next.data = map[string]interface{}{}
	}
	atts, err := buildAttachments(doc["_attachments"], parts, current, live, gen)
	if err != nil {
		return "", err
	}
	next.attachments = atts
	db.docs[id] = next
	return next.rev, nil
}

// buildAttachments resolves the _attachments descriptors of a write. Follows
// descriptors consume multipart sections in name order, which is the order
// the descriptors appear in the document JSON.
func buildAttachments(raw interface{}, parts []Part, current *document, live bool, gen int) (map[string]*attachment, error) {
	if raw == nil {
		if len(parts) > 0 {
			return nil, badRequest("multipart sections without attachments")
		}
		return nil, nil
	}
	descs, ok := raw.(map[string]interface{})
	if !ok {
		return nil, badRequest("_attachments must be an object")
	}
	names := make([]string, 0, len(descs))
	for name := range descs {
		names = append(names, name)
	}
	sort.Strings(names)
	atts := make(map[string]*attachment, len(descs))
	var used int
	for _, name := range names {
		desc, ok := descs[name].(map[string]interface{})
		if !ok {
			return nil, badRequest("attachment " + name + " must be an object")
		}
		ct, _ := desc["content_type"].(string)
		if stub, _ := desc["stub"].(bool); stub {
			if !live || current.attachments[name] == nil {
				return nil, errMissingStb
			}
			atts[name] = current.attachments[name]
			continue
		}
		var data []byte
		switch {
		case desc["follows"] == true:
			if used >= len(parts) {
				return nil, badRequest("attachment " + name + " follows, but no section remains")
			}
			data = parts[used].Body
			if ct == "" {
				ct = parts[used].ContentType
			}
			used++
			if length, ok := desc["length"].(float64); ok && int(length) != len(data) {
				return nil, badRequest("attachment " + name + " length mismatch")
			}
		case desc["data"] != nil:
			enc, _ := desc["data"].(string)
			var err error
			if data, err = base64.StdEncoding.DecodeString(enc); err != nil {
				return nil, badRequest("attachment " + name + ": invalid base64")
			}
		default:
			return nil, badRequest("attachment " + name + " has no data")
		}
		atts[name] = &attachment{
			contentType: ct,
			data:        data,
			revPos:      gen,
			digest:      digest(data),
		}
	}
	if used != len(parts) {
		return nil, badRequest("unused multipart sections")
	}
	return atts, nil
}

func (s *Server) createDB() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		name := param(r, "db")
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.dbs[name]; ok {
			return errDBExists
		}
		s.dbs[name] = &database{docs: map[string]*document{}}
		return serveJSON(w, http.StatusCreated, map[string]bool{"ok": true})
	})
}

func (s *Server) deleteDB() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		name := param(r, "db")
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.dbs[name]; !ok {
			return errNoDB
		}
		delete(s.dbs, name)
		return serveJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
}

func (s *Server) dbInfo() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		name := param(r, "db")
		s.mu.Lock()
		defer s.mu.Unlock()
		db, ok := s.dbs[name]
		if !ok {
			return errNoDB
		}
		var count int
		for _, doc := range db.docs {
			if !doc.deleted {
				count++
			}
		}
		return serveJSON(w, http.StatusOK, map[string]interface{}{
			"db_name":   name,
			"doc_count": count,
		})
	})
}

func (s *Server) postDoc() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		dbName := param(r, "db")
		doc, parts, err := decodeWrite(r)
		if err != nil {
			return err
		}
		id, _ := doc["_id"].(string)
		if id == "" {
			id = newID()
		}
		rev, _ := doc["_rev"].(string)
		s.mu.Lock()
		newRev, err := s.write(dbName, id, doc, parts, rev, false)
		s.mu.Unlock()
		if err != nil {
			return err
		}
		return serveJSON(w, http.StatusCreated, map[string]interface{}{"ok": true, "id": id, "rev": newRev})
	})
}

func (s *Server) getDoc(prefix string) httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		dbName, id := param(r, "db"), prefix+param(r, "docid")
		s.mu.Lock()
		defer s.mu.Unlock()
		doc, err := s.lookup(dbName, id)
		if err != nil {
			return err
		}
		w.Header().Set("ETag", `"`+doc.rev+`"`)
		return serveJSON(w, http.StatusOK, doc.render(id))
	})
}

// lookup returns the live document id. It must be called with s.mu held.
func (s *Server) lookup(dbName, id string) (*document, error) {
	db, ok := s.dbs[dbName]
	if !ok {
		return nil, errNoDB
	}
	doc, ok := db.docs[id]
	switch {
	case !ok:
		return nil, errMissing
	case doc.deleted:
		return nil, errDeleted
	}
	return doc, nil
}

func (s *Server) putDoc(prefix string) httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		dbName, id := param(r, "db"), prefix+param(r, "docid")
		doc, parts, err := decodeWrite(r)
		if err != nil {
			return err
		}
		if err := s.beforeDocWrite(dbName, id); err != nil {
			return err
		}
		rev := r.URL.Query().Get("rev")
		if rev == "" {
			rev, _ = doc["_rev"].(string)
		}
		s.mu.Lock()
		newRev, err := s.write(dbName, id, doc, parts, rev, false)
		s.mu.Unlock()
		if err != nil {
			return err
		}
		w.Header().Set("ETag", `"`+newRev+`"`)
		return serveJSON(w, http.StatusCreated, map[string]interface{}{"ok": true, "id": id, "rev": newRev})
	})
}

func (s *Server) deleteDoc(prefix string) httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		dbName, id := param(r, "db"), prefix+param(r, "docid")
		if err := s.beforeDocWrite(dbName, id); err != nil {
			return err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		doc, err := s.lookup(dbName, id)
		if err != nil {
			return err
		}
		if r.URL.Query().Get("rev") != doc.rev {
			return errConflict
		}
		gen := doc.gen + 1
		tomb := &document{
			gen:     gen,
			rev:     newRev(gen),
			deleted: true,
			data:    map[string]interface{}{},
		}
		s.dbs[dbName].docs[id] = tomb
		return serveJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "id": id, "rev": tomb.rev})
	})
}

// CreateDB creates the named database, if it does not already exist.
func (s *Server) CreateDB(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dbs[name]; !ok {
		s.dbs[name] = &database{docs: map[string]*document{}}
	}
}

// HasDB reports whether the named database exists.
func (s *Server) HasDB(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.dbs[name]
	return ok
}

// Put stores doc under id without any revision check, creating the database
// if necessary, and returns the new revision. It simulates a write by
// another client. _attachments may contain stubs of the current attachments,
// or inline base64 data.
func (s *Server) Put(dbName, id string, doc map[string]interface{}) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dbs[dbName]; !ok {
		s.dbs[dbName] = &database{docs: map[string]*document{}}
	}
	rev, err := s.write(dbName, id, doc, nil, "", true)
	if err != nil {
		panic(fmt.Sprintf("fakecouch: put %s/%s: %s", dbName, id, err))
	}
	return rev
}

// Get returns the live document id as it would be served, and whether it
// exists.
func (s *Server) Get(dbName, id string) (map[string]interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.lookup(dbName, id)
	if err != nil {
		return nil, false
	}
	return doc.render(id), true
}

// Rev returns the current revision of id, or "" if it does not exist.
func (s *Server) Rev(dbName, id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.lookup(dbName, id)
	if err != nil {
		return ""
	}
	return doc.rev
}

// Attachment returns the stored content and content type of an attachment.
func (s *Server) Attachment(dbName, id, name string) ([]byte, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.lookup(dbName, id)
	if err != nil {
		return nil, "", false
	}
	att, ok := doc.attachments[name]
	if !ok {
		return nil, "", false
	}
	return att.data, att.contentType, true
}
