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
)

type get struct {
	*root
}

func getCmd(r *root) *cobra.Command {
	c := &get{
		root: r,
	}
	return &cobra.Command{
		Use:   "get [dsn]/[database]/[document]",
		Short: "Get a document",
		Long:  `Fetch the current revision of a document, with attachment stubs`,
		Args:  cobra.MaximumNArgs(1),
		RunE:  c.RunE,
	}
}

func (c *get) RunE(cmd *cobra.Command, _ []string) error {
	db, docID, err := c.dbDoc()
	if err != nil {
		return err
	}
	c.log.Debugf("[get] Will fetch document: %s/%s", db.Name(), docID)
	doc, err := db.Read(cmd.Context(), docID)
	if err != nil {
		return err
	}
	return c.fmt.Output(doc)
}
