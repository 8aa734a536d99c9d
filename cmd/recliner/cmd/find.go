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
	"github.com/go-kivik/recliner/cmd/recliner/input"
)

type find struct {
	*root
	in *input.Input
}

func findCmd(r *root) *cobra.Command {
	c := &find{
		root: r,
	}
	cmd := &cobra.Command{
		Use:   "find [dsn]/[database]",
		Short: "Run a Mango query",
		Long: `Run a Mango query, given as input, and output the matching documents. The
query must have a selector, and may have fields, sort, limit and skip.`,
		Args: cobra.MaximumNArgs(1),
		RunE: c.RunE,
	}
	c.in = r.input(cmd)
	return cmd
}

func (c *find) RunE(cmd *cobra.Command, _ []string) error {
	raw, err := c.in.Object()
	if err != nil {
		return err
	}
	spec, err := recliner.ParseFindSpec(raw)
	if err != nil {
		return err
	}
	db, err := c.db()
	if err != nil {
		return err
	}
	docs, err := db.Find(cmd.Context(), spec)
	if err != nil {
		return err
	}
	return c.fmt.Output(docs)
}
