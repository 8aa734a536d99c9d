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

	"github.com/go-kivik/recliner/cmd/recliner/input"
)

type post struct {
	*root
	in *input.Input
}

func postCmd(r *root) *cobra.Command {
	c := &post{
		root: r,
	}
	cmd := &cobra.Command{
		Use:   "post [dsn]/[database]",
		Short: "Create a document",
		Long:  `Create a new document with a server-assigned ID`,
		Args:  cobra.MaximumNArgs(1),
		RunE:  c.RunE,
	}
	c.in = r.input(cmd)
	return cmd
}

func (c *post) RunE(cmd *cobra.Command, _ []string) error {
	obj, err := c.in.Object()
	if err != nil {
		return err
	}
	db, err := c.db()
	if err != nil {
		return err
	}
	doc, err := db.Create(cmd.Context(), obj)
	if err != nil {
		return err
	}
	return c.fmt.UpdateResult(doc.ID, doc.Rev)
}
