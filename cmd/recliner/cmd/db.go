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
)

type dbOp struct {
	*root
	op func(*recliner.DB, context.Context) error
}

func (c *dbOp) RunE(cmd *cobra.Command, _ []string) error {
	db, err := c.db()
	if err != nil {
		return err
	}
	if err := c.op(db, cmd.Context()); err != nil {
		return err
	}
	return c.fmt.OK()
}

func createDBCmd(r *root) *cobra.Command {
	c := &dbOp{root: r, op: (*recliner.DB).CreateDatabase}
	return &cobra.Command{
		Use:   "create-db [dsn]/[database]",
		Short: "Create a database",
		Args:  cobra.MaximumNArgs(1),
		RunE:  c.RunE,
	}
}

func destroyDBCmd(r *root) *cobra.Command {
	c := &dbOp{root: r, op: (*recliner.DB).DestroyDatabase}
	return &cobra.Command{
		Use:   "destroy-db [dsn]/[database]",
		Short: "Delete a database and all its documents",
		Args:  cobra.MaximumNArgs(1),
		RunE:  c.RunE,
	}
}

func resetDBCmd(r *root) *cobra.Command {
	c := &dbOp{root: r, op: (*recliner.DB).ResetDatabase}
	return &cobra.Command{
		Use:   "reset-db [dsn]/[database]",
		Short: "Delete and recreate a database",
		Long:  `Delete a database, if it exists, and create it empty`,
		Args:  cobra.MaximumNArgs(1),
		RunE:  c.RunE,
	}
}
