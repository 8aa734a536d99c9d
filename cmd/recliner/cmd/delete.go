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

	"github.com/go-kivik/recliner"
)

type del struct {
	*root
}

func deleteCmd(r *root) *cobra.Command {
	c := &del{
		root: r,
	}
	return &cobra.Command{
		Use:     "delete [dsn]/[database]/[document]",
		Aliases: []string{"del", "destroy"},
		Short:   "Delete a document",
		Long:    `Delete the current revision of a document. A document which does not exist is not an error.`,
		Args:    cobra.MaximumNArgs(1),
		RunE:    c.RunE,
	}
}

func (c *del) RunE(cmd *cobra.Command, _ []string) error {
	db, docID, err := c.dbDoc()
	if err != nil {
		return err
	}
	rev, err := db.Destroy(cmd.Context(), docID)
	switch {
	case err == nil:
	case recliner.Name(err) == recliner.NameNotFound, recliner.Name(err) == recliner.NameNoDBFile:
		c.log.Debugf("[delete] %s/%s does not exist", db.Name(), docID)
	default:
		return err
	}
	return c.fmt.UpdateResult(docID, rev)
}
