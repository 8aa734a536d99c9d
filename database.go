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

	"github.com/go-kivik/recliner/chttp"
)

// CreateDatabase creates the database. It fails with db_already_exists if
// the database exists.
func (db *DB) CreateDatabase(ctx context.Context) error {
	if err := db.begin("create_db"); err != nil {
		return err
	}
	if err := db.createDatabase(ctx); err != nil {
		return err
	}
	db.metrics.databaseCreated()
	return nil
}

func (db *DB) createDatabase(ctx context.Context) error {
	res, err := db.client.Request(ctx, http.MethodPut, chttp.EncodeDBName(db.name), nil)
	return check(ScopeDB, err, res)
}

// DestroyDatabase deletes the database and every document in it. It fails
// with no_db_file if the database does not exist.
func (db *DB) DestroyDatabase(ctx context.Context) error {
	if err := db.begin("destroy_db"); err != nil {
		return err
	}
	res, err := db.client.Request(ctx, http.MethodDelete, chttp.EncodeDBName(db.name), nil)
	return check(ScopeDB, err, res)
}

// ResetDatabase destroys the database, if it exists, and creates it empty.
func (db *DB) ResetDatabase(ctx context.Context) error {
	if err := db.DestroyDatabase(ctx); err != nil && Name(err) != NameNoDBFile {
		return err
	}
	return db.CreateDatabase(ctx)
}

// DatabaseExists reports whether the database exists.
func (db *DB) DatabaseExists(ctx context.Context) (bool, error) {
	if err := db.begin("db_exists"); err != nil {
		return false, err
	}
	res, err := db.client.Request(ctx, http.MethodHead, chttp.EncodeDBName(db.name), nil)
	switch err := check(ScopeDB, err, res); Name(err) {
	case "":
		return true, nil
	case NameNoDBFile:
		return false, nil
	default:
		return false, err
	}
}

// ensureDatabase creates the database on behalf of an operation which found
// it missing. Concurrent callers on the same handle share one request, and a
// database created by someone else in the meantime counts as success.
func (db *DB) ensureDatabase(ctx context.Context) error {
	_, err, _ := db.create.Do(db.name, func() (interface{}, error) {
		err := db.createDatabase(ctx)
		switch Name(err) {
		case "":
			db.metrics.databaseCreated()
			return nil, nil
		case NameDBAlreadyExists:
			return nil, nil
		}
		return nil, err
	})
	return err
}
