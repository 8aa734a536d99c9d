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
	"context"

	"github.com/spf13/cobra"

	"github.com/go-kivik/recliner"
	"github.com/go-kivik/recliner/cmd/recliner/input"
)

type update struct {
	*root
	in    *input.Input
	write func(db *recliner.DB, ctx context.Context, id string, doc interface{}) (*recliner.Document, error)
}

func updateCmd(r *root) *cobra.Command {
	c := &update{
		root:  r,
		write: (*recliner.DB).Update,
	}
	cmd := &cobra.Command{
		Use:   "update [dsn]/[database]/[document]",
		Short: "Merge fields into a document",
		Long: `Merge the input into the current revision of an existing document. Nested
objects are merged, other values replaced.`,
		Args: cobra.MaximumNArgs(1),
		RunE: c.RunE,
	}
	c.in = r.input(cmd)
	return cmd
}

func upsertCmd(r *root) *cobra.Command {
	c := &update{
		root:  r,
		write: (*recliner.DB).UpdateOrWrite,
	}
	cmd := &cobra.Command{
		Use:   "upsert [dsn]/[database]/[document]",
		Short: "Merge fields into a document, creating it if needed",
		Long:  `Merge the input into the current revision of a document, or create the document from the input if it does not exist`,
		Args:  cobra.MaximumNArgs(1),
		RunE:  c.RunE,
	}
	c.in = r.input(cmd)
	return cmd
}

func (c *update) RunE(cmd *cobra.Command, _ []string) error {
	obj, err := c.in.Object()
	if err != nil {
		return err
	}
	db, docID, err := c.dbDoc()
	if err != nil {
		return err
	}
	doc, err := c.write(db, cmd.Context(), docID, obj)
	if err != nil {
		return err
	}
	return c.fmt.UpdateResult(doc.ID, doc.Rev)
}
