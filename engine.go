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
	"net/http"
	"net/url"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/go-kivik/recliner/chttp"
)

// Create stores doc as a new document and returns it. The server assigns the
// ID, unless doc has attachments with data, which can only be uploaded by
// PUT, in which case a random ID is generated. A missing database is created.
func (db *DB) Create(ctx context.Context, doc interface{}) (*Document, error) {
	if err := db.begin("create"); err != nil {
		return nil, err
	}
	body, err := NewBody(doc)
	if err != nil {
		return nil, err
	}
	payload, err := body.ForHTTP("")
	if err != nil {
		return nil, err
	}
	var result *Document
	err = db.withDatabase(ctx, func(ctx context.Context) error {
		if payload.Multipart() {
			id := strings.ReplaceAll(uuid.NewString(), "-", "")
			rev, err := db.put(ctx, id, payload, "")
			if err != nil {
				return err
			}
			result = &Document{ID: id, Rev: rev, body: body.stored()}
			return nil
		}
		res, err := db.client.Request(ctx, http.MethodPost, chttp.EncodeDBName(db.name), &chttp.Options{
			GetBody: chttp.BodyEncoder(payload.Doc),
		})
		if err := check(ScopeDoc, err, res); err != nil {
			return err
		}
		var wr writeResult
		if err := decode(ScopeDoc, res, &wr); err != nil {
			return err
		}
		result = &Document{ID: wr.ID, Rev: wr.Rev, body: body.stored()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Read fetches the current revision of the document. A missing database is
// reported as not_found, and is not created.
func (db *DB) Read(ctx context.Context, id string) (*Document, error) {
	if err := db.begin("read"); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, missingParam(ScopeDoc, "id")
	}
	return db.read(ctx, id)
}

func (db *DB) read(ctx context.Context, id string) (*Document, error) {
	res, err := db.client.Request(ctx, http.MethodGet, chttp.DocPath(db.name, id), nil)
	if err := check(ScopeDoc, err, res); err != nil {
		if e := err.(*Error); e.Name == NameNoDBFile {
			nf := *e
			nf.Name = NameNotFound
			return nil, &nf
		}
		return nil, err
	}
	var raw map[string]interface{}
	if err := decode(ScopeDoc, res, &raw); err != nil {
		return nil, err
	}
	return decodeDocument(raw)
}

// Refresh re-reads doc in place, replacing its body and revision.
func (db *DB) Refresh(ctx context.Context, doc *Document) error {
	if err := db.begin("refresh"); err != nil {
		return err
	}
	if doc == nil || doc.ID == "" {
		return missingParam(ScopeDoc, "id")
	}
	fresh, err := db.read(ctx, doc.ID)
	if err != nil {
		return err
	}
	doc.Rev = fresh.Rev
	doc.body = fresh.body
	return nil
}

// Head returns the current revision of the document. A response without a
// revision fails with missing_rev.
func (db *DB) Head(ctx context.Context, id string) (string, error) {
	if err := db.begin("head"); err != nil {
		return "", err
	}
	if id == "" {
		return "", missingParam(ScopeDoc, "id")
	}
	return db.head(ctx, id)
}

func (db *DB) head(ctx context.Context, id string) (string, error) {
	res, err := db.client.Request(ctx, http.MethodHead, chttp.DocPath(db.name, id), nil)
	if err := check(ScopeDoc, err, res); err != nil {
		return "", err
	}
	rev, ok := chttp.ETag(res.Header)
	if !ok || rev == "" {
		return "", &Error{
			Scope:   ScopeDoc,
			Name:    NameMissingRev,
			Status:  res.Status,
			Message: "no revision in response to HEAD " + id,
		}
	}
	return rev, nil
}

// Write stores doc under id, replacing whatever revision is current. The
// current revision is read before every attempt, so a concurrent change
// causes a retry rather than a lost write, until the retry budget is spent.
// A missing database is created.
func (db *DB) Write(ctx context.Context, id string, doc interface{}) (*Document, error) {
	if err := db.begin("write"); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, missingParam(ScopeDoc, "id")
	}
	body, err := NewBody(doc)
	if err != nil {
		return nil, err
	}
	var rev string
	err = db.withDatabase(ctx, func(ctx context.Context) error {
		return db.withConflictRetry(ctx, "write", func(ctx context.Context) error {
			current, err := db.head(ctx, id)
			if err != nil && Name(err) != NameNotFound {
				return err
			}
			payload, err := body.ForHTTP(current)
			if err != nil {
				return err
			}
			rev, err = db.put(ctx, id, payload, current)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return &Document{ID: id, Rev: rev, body: body.stored()}, nil
}

// Update merges partial into the current revision of the document and
// stores the result. On conflict, the document is re-read and the merge
// recomputed against the new revision. The document must exist.
func (db *DB) Update(ctx context.Context, id string, partial interface{}) (*Document, error) {
	if err := db.begin("update"); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, missingParam(ScopeDoc, "id")
	}
	override, err := NewBody(partial)
	if err != nil {
		return nil, err
	}
	return db.update(ctx, id, override)
}

func (db *DB) update(ctx context.Context, id string, override *Body) (*Document, error) {
	var result *Document
	err := db.withConflictRetry(ctx, "update", func(ctx context.Context) error {
		current, err := db.read(ctx, id)
		if err != nil {
			return err
		}
		merged := override.Extend(current.body)
		payload, err := merged.ForHTTP(current.Rev)
		if err != nil {
			return err
		}
		rev, err := db.put(ctx, id, payload, current.Rev)
		if err != nil {
			return err
		}
		result = &Document{ID: id, Rev: rev, body: merged.stored()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateOrWrite updates the document as [DB.Update] does, or creates it if
// it does not exist. If another writer creates the document first, the
// whole operation is retried, so that the update applies to their version.
// A missing database is created.
func (db *DB) UpdateOrWrite(ctx context.Context, id string, doc interface{}) (*Document, error) {
	if err := db.begin("update_or_write"); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, missingParam(ScopeDoc, "id")
	}
	body, err := NewBody(doc)
	if err != nil {
		return nil, err
	}
	return db.updateOrWrite(ctx, id, body)
}

func (db *DB) updateOrWrite(ctx context.Context, id string, body *Body) (*Document, error) {
	var result *Document
	err := db.withConflictRetry(ctx, "update_or_write", func(ctx context.Context) error {
		doc, err := db.update(ctx, id, body)
		if err == nil {
			result = doc
			return nil
		}
		if Name(err) != NameNotFound {
			// update has already spent its own conflict budget.
			return backoff.Permanent(err)
		}
		payload, err := body.ForHTTP("")
		if err != nil {
			return err
		}
		return db.withDatabase(ctx, func(ctx context.Context) error {
			rev, err := db.put(ctx, id, payload, "")
			if err != nil {
				return err
			}
			result = &Document{ID: id, Rev: rev, body: body.stored()}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Destroy deletes the current revision of the document, and returns the
// revision of the deletion. A document which does not exist fails with
// not_found.
func (db *DB) Destroy(ctx context.Context, id string) (string, error) {
	if err := db.begin("destroy"); err != nil {
		return "", err
	}
	if id == "" {
		return "", missingParam(ScopeDoc, "id")
	}
	var rev string
	err := db.withConflictRetry(ctx, "destroy", func(ctx context.Context) error {
		current, err := db.head(ctx, id)
		if err != nil {
			return err
		}
		res, err := db.client.Request(ctx, http.MethodDelete, chttp.DocPath(db.name, id), &chttp.Options{
			Query: url.Values{"rev": {current}},
		})
		if err := check(ScopeDoc, err, res); err != nil {
			return err
		}
		var wr writeResult
		if err := decode(ScopeDoc, res, &wr); err != nil {
			return err
		}
		rev = wr.Rev
		return nil
	})
	return rev, err
}

// put sends payload to id. An empty rev creates the document, and fails with
// conflict if it already exists.
func (db *DB) put(ctx context.Context, id string, payload *Payload, rev string) (string, error) {
	opts, err := payload.options()
	if err != nil {
		return "", err
	}
	if rev != "" {
		opts.Query = url.Values{"rev": {rev}}
	}
	res, err := db.client.Request(ctx, http.MethodPut, chttp.DocPath(db.name, id), opts)
	if err := check(ScopeDoc, err, res); err != nil {
		return "", err
	}
	var wr writeResult
	if err := decode(ScopeDoc, res, &wr); err != nil {
		return "", err
	}
	return wr.Rev, nil
}
