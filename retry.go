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

	"github.com/cenkalti/backoff/v4"
)

// DefaultMaxRetries is the number of times a conflicting write is retried
// before the conflict is returned to the caller.
const DefaultMaxRetries = 5

// withConflictRetry calls attempt until it succeeds, fails with anything other
// than a conflict, or has been retried db.maxRetries times. attempt must read
// the revision it writes with on every call. The last conflict is returned
// once the budget is spent.
func (db *DB) withConflictRetry(ctx context.Context, op string, attempt func(context.Context) error) error {
	bo := backoff.WithContext(backoff.WithMaxRetries(db.newBackOff(), db.maxRetries), ctx)
	var count int
	err := backoff.Retry(func() error {
		if count > 0 {
			db.metrics.conflictRetry(op)
			db.log.Debugf("%s: conflict on %s, retry %d of %d", db.name, op, count, db.maxRetries)
		}
		count++
		err := attempt(ctx)
		switch {
		case err == nil:
			return nil
		case Name(err) == NameConflict:
			return err
		default:
			return backoff.Permanent(err)
		}
	}, bo)
	return classified(ScopeDoc, err)
}

// withDatabase calls op, and if it fails because the database does not
// exist, creates the database and calls op once more. This does not touch
// any conflict retry budget op maintains.
func (db *DB) withDatabase(ctx context.Context, op func(context.Context) error) error {
	err := op(ctx)
	if Name(err) != NameNoDBFile {
		return classified(ScopeDoc, err)
	}
	db.log.Debugf("%s: database does not exist, creating it", db.name)
	if err := db.ensureDatabase(ctx); err != nil {
		return err
	}
	return classified(ScopeDoc, op(ctx))
}
