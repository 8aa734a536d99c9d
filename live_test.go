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

package recliner_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"gitlab.com/flimzy/testy"

	"github.com/go-kivik/recliner"
	"github.com/go-kivik/recliner/internal/couchtest"
)

func liveDB(t *testing.T) *recliner.DB {
	t.Helper()
	c, err := recliner.New(couchtest.DSN(t))
	if err != nil {
		t.Fatal(err)
	}
	name := fmt.Sprintf("recliner_%s_%d", strings.ToLower(strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())), time.Now().UnixNano())
	db := c.DB(name)
	t.Cleanup(func() {
		_ = db.DestroyDatabase(context.Background())
	})
	return db
}

func TestLiveDocuments(t *testing.T) {
	db := liveDB(t)
	ctx := context.Background()

	doc, err := db.Write(ctx, "bob", map[string]interface{}{
		"name":    "Bob",
		"address": map[string]interface{}{"city": "Paris"},
		"_attachments": recliner.Attachments{
			"hello.txt": recliner.AttachmentFromBytes("", "text/plain", []byte("hello")),
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(doc.Rev, "1-") {
		t.Errorf("Unexpected rev %s", doc.Rev)
	}

	doc, err = db.Update(ctx, "bob", map[string]interface{}{
		"address": map[string]interface{}{"zip": "75001"},
		"_attachments": recliner.Attachments{
			"bye.txt": recliner.AttachmentFromBytes("", "text/plain", []byte("bye")),
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := db.Read(ctx, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if got.Rev != doc.Rev {
		t.Errorf("Read rev %s, updated to %s", got.Rev, doc.Rev)
	}
	if d := testy.DiffInterface(map[string]interface{}{
		"name":    "Bob",
		"address": map[string]interface{}{"city": "Paris", "zip": "75001"},
	}, got.Data()); d != nil {
		t.Error(d)
	}
	atts := got.Attachments()
	if atts["hello.txt"].Len() != 5 || atts["bye.txt"].Len() != 3 {
		t.Errorf("Unexpected attachments: %v", atts.Names())
	}

	if _, err := db.Destroy(ctx, "bob"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Read(ctx, "bob"); recliner.Name(err) != recliner.NameNotFound {
		t.Errorf("Unexpected error after destroy: %v", err)
	}
}

func TestLiveViews(t *testing.T) {
	db := liveDB(t)
	ctx := context.Background()
	for id, age := range map[string]int{"alice": 31, "bob": 17, "carol": 45} {
		if _, err := db.Write(ctx, id, map[string]interface{}{"age": age}); err != nil {
			t.Fatal(err)
		}
	}

	res, err := db.FindStrict(ctx, []string{"age"}, nil, &recliner.ViewParams{StartKey: 18})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Rows) != 2 || res.Rows[0].ID != "alice" {
		t.Errorf("Unexpected rows: %+v", res.Rows)
	}

	docs, err := db.Find(ctx, &recliner.FindSpec{
		Selector: map[string]interface{}{"age": map[string]interface{}{"$lt": 18}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 || docs[0].ID != "bob" {
		t.Errorf("Unexpected find result: %v", docs)
	}
}
