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
	"net/http"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"

	"github.com/go-kivik/recliner/chttp"
	"github.com/go-kivik/recliner/log"
)

// DefaultDesign is the design document which holds generated views.
const DefaultDesign = "recliner"

// Client is a connection to a CouchDB server.
type Client struct {
	client *chttp.Client
	opts   allOptions
}

// New returns a client for the server at dsn. Credentials in the DSN select
// cookie authentication.
func New(dsn string, options ...Option) (*Client, error) {
	c, err := chttp.New(dsn, options...)
	if err != nil {
		return nil, &Error{
			Scope:   ScopeDB,
			Name:    NameInvalidParam,
			Status:  http.StatusBadRequest,
			Message: err.Error(),
			Err:     err,
		}
	}
	return &Client{
		client: c,
		opts:   options,
	}, nil
}

// DSN returns the DSN the client was created with.
func (c *Client) DSN() string {
	return c.client.DSN()
}

// DB is a handle to a single database. It carries every setting the engine
// needs, so that no state is shared between handles. A DB is safe for
// concurrent use.
type DB struct {
	client *chttp.Client
	name   string
	err    error

	maxRetries uint64
	newBackOff func() backoff.BackOff
	log        log.Logger
	metrics    *Metrics
	design     string
	designs    map[string]*DesignDoc

	create singleflight.Group
}

// DB returns a handle to the named database. The database need not exist;
// writes create it on demand. Options passed to [New] are applied first.
func (c *Client) DB(name string, options ...Option) *DB {
	db := &DB{
		client:     c.client,
		name:       name,
		maxRetries: DefaultMaxRetries,
		newBackOff: func() backoff.BackOff { return &backoff.ZeroBackOff{} },
		log:        log.NewNil(),
		design:     DefaultDesign,
	}
	if name == "" {
		db.err = missingParam(ScopeDB, "database name")
	}
	c.opts.Apply(db)
	allOptions(options).Apply(db)
	return db
}

// Name returns the database name.
func (db *DB) Name() string {
	return db.name
}

// Err returns the error, if any, that occurred while constructing the DB
// handle.
func (db *DB) Err() error {
	return db.err
}

// begin is called at the start of every public operation.
func (db *DB) begin(op string) error {
	db.metrics.request(op)
	return db.err
}
