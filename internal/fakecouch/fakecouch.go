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

// Package fakecouch provides an in-memory CouchDB stand-in for tests. It
// implements revision checking, multipart attachment uploads, stubs, Mango
// find and the views generated by the recliner package, and lets tests
// interfere with requests in flight.
package fakecouch

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"gitlab.com/flimzy/httpe"
)

// Server is a fake CouchDB server.
type Server struct {
	mux *chi.Mux

	mu       sync.Mutex
	dbs      map[string]*database
	requests []Request
	views    map[string]ViewFunc

	hookMu         sync.Mutex
	beforeWrite    func(db, id string)
	intercept      func(w http.ResponseWriter, r *http.Request) bool
	forceConflicts int
}

// Request is a record of a request received by the server.
type Request struct {
	Method      string
	Path        string
	Query       url.Values
	ContentType string
	// Parts holds the attachment sections of a multipart/related request, in
	// the order received. The leading JSON section is not included.
	Parts []Part
}

// Part is a single multipart section.
type Part struct {
	ContentType string
	Body        []byte
}

// New returns a new, empty server.
func New() *Server {
	s := &Server{
		mux:   chi.NewMux(),
		dbs:   map[string]*database{},
		views: map[string]ViewFunc{},
	}
	s.routes(s.mux)
	return s
}

// NewTestServer starts s on a local port for the duration of the test, and
// returns the server and its URL.
func NewTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	s := New()
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)
	return s, ts.URL
}

func (s *Server) routes(mux *chi.Mux) {
	mux.Use(
		s.record,
		s.interceptMiddleware,
		GetHead,
		httpe.ToMiddleware(s.handleErrors),
	)
	mux.Get("/", httpe.ToHandler(s.root()).ServeHTTP)

	// Databases
	mux.Get("/{db}", httpe.ToHandler(s.dbInfo()).ServeHTTP)
	mux.Put("/{db}", httpe.ToHandler(s.createDB()).ServeHTTP)
	mux.Delete("/{db}", httpe.ToHandler(s.deleteDB()).ServeHTTP)
	mux.Post("/{db}", httpe.ToHandler(s.postDoc()).ServeHTTP)
	mux.Post("/{db}/_find", httpe.ToHandler(s.find()).ServeHTTP)

	// Documents
	mux.Get("/{db}/{docid}", httpe.ToHandler(s.getDoc("")).ServeHTTP)
	mux.Put("/{db}/{docid}", httpe.ToHandler(s.putDoc("")).ServeHTTP)
	mux.Delete("/{db}/{docid}", httpe.ToHandler(s.deleteDoc("")).ServeHTTP)

	// Design docs
	mux.Get("/{db}/_design/{docid}", httpe.ToHandler(s.getDoc(prefixDesign)).ServeHTTP)
	mux.Put("/{db}/_design/{docid}", httpe.ToHandler(s.putDoc(prefixDesign)).ServeHTTP)
	mux.Delete("/{db}/_design/{docid}", httpe.ToHandler(s.deleteDoc(prefixDesign)).ServeHTTP)
	mux.Get("/{db}/_design/{docid}/_view/{view}", httpe.ToHandler(s.queryView()).ServeHTTP)
}

func (s *Server) handleErrors(next httpe.HandlerWithError) httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		if err := next.ServeHTTPWithError(w, r); err != nil {
			ce := &couchError{}
			if !errors.As(err, &ce) {
				ce = &couchError{
					status: http.StatusInternalServerError,
					Err:    "unknown_error",
					Reason: err.Error(),
				}
			}
			return serveJSON(w, ce.status, ce)
		}
		return nil
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func serveJSON(w http.ResponseWriter, status int, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = io.Copy(w, bytes.NewReader(body))
	return err
}

func (s *Server) root() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, _ *http.Request) error {
		return serveJSON(w, http.StatusOK, map[string]interface{}{
			"couchdb": "Welcome",
			"vendor":  map[string]string{"name": "fakecouch"},
			"version": "3.3.3",
		})
	})
}

// param returns the unescaped value of a URL parameter.
func param(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if u, err := url.PathUnescape(v); err == nil {
		return u
	}
	return v
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := Request{
			Method:      r.Method,
			Path:        r.URL.EscapedPath(),
			Query:       r.URL.Query(),
			ContentType: r.Header.Get("Content-Type"),
		}
		if strings.HasPrefix(req.ContentType, typeMultipartRelated) {
			body, err := readBody(r)
			if err == nil {
				r.Body = io.NopCloser(bytes.NewReader(body))
				r.Header.Del("Content-Encoding")
				if _, parts, err := splitMultipart(req.ContentType, body); err == nil {
					req.Parts = parts
				}
			}
		}
		s.mu.Lock()
		s.requests = append(s.requests, req)
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) interceptMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hookMu.Lock()
		intercept := s.intercept
		s.hookMu.Unlock()
		if intercept != nil && intercept(w, r) {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Requests returns the requests received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request{}, s.requests...)
}

// CountRequests returns the number of requests received with the given
// method, whose path ends with suffix.
func (s *Server) CountRequests(method, suffix string) int {
	var n int
	for _, r := range s.Requests() {
		if r.Method == method && strings.HasSuffix(r.Path, suffix) {
			n++
		}
	}
	return n
}

// ResetRequests clears the request log.
func (s *Server) ResetRequests() {
	s.mu.Lock()
	s.requests = nil
	s.mu.Unlock()
}

// BeforeWrite sets fn to be called at the start of every document PUT or
// DELETE, before the request's revision is checked. fn may modify the
// database with Put.
func (s *Server) BeforeWrite(fn func(db, id string)) {
	s.hookMu.Lock()
	s.beforeWrite = fn
	s.hookMu.Unlock()
}

// Intercept sets fn to be called before every request is routed. If fn
// returns true, it has written the response and the request is not
// processed further.
func (s *Server) Intercept(fn func(w http.ResponseWriter, r *http.Request) bool) {
	s.hookMu.Lock()
	s.intercept = fn
	s.hookMu.Unlock()
}

// ForceConflicts makes the next n document PUT or DELETE requests fail with
// 409 Conflict, regardless of the revision they carry.
func (s *Server) ForceConflicts(n int) {
	s.hookMu.Lock()
	s.forceConflicts = n
	s.hookMu.Unlock()
}

func (s *Server) beforeDocWrite(db, id string) error {
	s.hookMu.Lock()
	fn := s.beforeWrite
	forced := s.forceConflicts > 0
	if forced {
		s.forceConflicts--
	}
	s.hookMu.Unlock()
	if fn != nil {
		fn(db, id)
	}
	if forced {
		return errConflict
	}
	return nil
}
