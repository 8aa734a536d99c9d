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

package cmd

import (
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/go-kivik/recliner/cmd/recliner/errors"
	"github.com/go-kivik/recliner/cmd/recliner/input"
)

// defaultConcurrency bounds the writes in flight when putting an array of
// documents.
const defaultConcurrency = 4

type put struct {
	*root
	in          *input.Input
	concurrency int
}

func putCmd(r *root) *cobra.Command {
	c := &put{
		root: r,
	}
	cmd := &cobra.Command{
		Use:   "put [dsn]/[database]/[document]",
		Short: "Write a document",
		Long: `Store a document, replacing its current revision. A conflict with a
concurrent writer is retried.

If the input is an array, each element is written under its own _id, and the
URL must name only the database.`,
		Args: cobra.MaximumNArgs(1),
		RunE: c.RunE,
	}
	c.in = r.input(cmd)
	cmd.Flags().IntVar(&c.concurrency, "concurrency", defaultConcurrency, "Maximum number of concurrent writes, when the input is an array.")
	return cmd
}

type writeResult struct {
	OK  bool   `json:"ok"`
	ID  string `json:"id"`
	Rev string `json:"rev"`
}

func (c *put) RunE(cmd *cobra.Command, _ []string) error {
	v, err := c.in.Value()
	if err != nil {
		return err
	}
	switch t := v.(type) {
	case []interface{}:
		return c.putMany(cmd, t)
	case map[string]interface{}:
		db, docID, err := c.dbDoc()
		if err != nil {
			return err
		}
		c.log.Debugf("[put] Will write document: %s/%s", db.Name(), docID)
		doc, err := db.Write(cmd.Context(), docID, t)
		if err != nil {
			return err
		}
		return c.fmt.UpdateResult(doc.ID, doc.Rev)
	}
	return errors.Code(errors.ErrData, "document data must be an object or an array")
}

func (c *put) putMany(cmd *cobra.Command, docs []interface{}) error {
	if c.concurrency < 1 {
		return errors.Code(errors.ErrUsage, "concurrency must be positive")
	}
	ids := make([]string, len(docs))
	for i, doc := range docs {
		obj, _ := doc.(map[string]interface{})
		id, _ := obj["_id"].(string)
		if id == "" {
			return errors.Codef(errors.ErrData, "document %d: _id required", i)
		}
		ids[i] = id
	}
	db, err := c.db()
	if err != nil {
		return err
	}
	c.log.Debugf("[put] Will write %d documents to %s", len(docs), db.Name())

	results := make([]writeResult, len(docs))
	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(c.concurrency)
	for i := range docs {
		i := i
		g.Go(func() error {
			doc, err := db.Write(ctx, ids[i], docs[i])
			if err != nil {
				return err
			}
			results[i] = writeResult{OK: true, ID: doc.ID, Rev: doc.Rev}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return c.fmt.Output(results)
}
