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
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/go-kivik/recliner"
	"github.com/go-kivik/recliner/cmd/recliner/errors"
)

type view struct {
	*root
	keys        []string
	values      []string
	match       string
	startKey    string
	endKey      string
	limit       int
	skip        int
	descending  bool
	includeDocs bool
}

func viewCmd(r *root) *cobra.Command {
	c := &view{
		root: r,
	}
	cmd := &cobra.Command{
		Use:   "view [dsn]/[database]",
		Short: "Query documents by field",
		Long: `Query the generated view which indexes documents by the --key fields and
emits the --value fields. Fields are dotted paths, as in address.city. The
view is added to the design document if it does not exist yet.

Key arguments (--match, --start-key, --end-key) are JSON.`,
		Args: cobra.MaximumNArgs(1),
		RunE: c.RunE,
	}

	f := cmd.Flags()
	f.StringArrayVar(&c.keys, "key", nil, "Field to index by. May be repeated.")
	f.StringArrayVar(&c.values, "value", nil, "Field to emit. May be repeated.")
	f.StringVar(&c.match, "match", "", "Return only rows with this key.")
	f.StringVar(&c.startKey, "start-key", "", "Return rows starting with this key.")
	f.StringVar(&c.endKey, "end-key", "", "Stop returning rows after this key.")
	f.IntVar(&c.limit, "limit", 0, "Maximum number of rows to return.")
	f.IntVar(&c.skip, "skip", 0, "Number of rows to skip.")
	f.BoolVar(&c.descending, "descending", false, "Return rows in descending key order.")
	f.BoolVar(&c.includeDocs, "include-docs", false, "Include each row's document.")
	return cmd
}

func jsonKey(flag, raw string) (interface{}, error) {
	if raw == "" {
		return nil, nil
	}
	if !json.Valid([]byte(raw)) {
		return nil, errors.Codef(errors.ErrUsage, "--%s: invalid JSON", flag)
	}
	return json.RawMessage(raw), nil
}

func (c *view) params() (*recliner.ViewParams, error) {
	p := &recliner.ViewParams{
		Limit:       c.limit,
		Skip:        c.skip,
		Descending:  c.descending,
		IncludeDocs: c.includeDocs,
	}
	var err error
	if p.Key, err = jsonKey("match", c.match); err != nil {
		return nil, err
	}
	if p.StartKey, err = jsonKey("start-key", c.startKey); err != nil {
		return nil, err
	}
	if p.EndKey, err = jsonKey("end-key", c.endKey); err != nil {
		return nil, err
	}
	return p, nil
}

func (c *view) RunE(cmd *cobra.Command, _ []string) error {
	if len(c.keys) == 0 {
		return errors.Code(errors.ErrUsage, "at least one --key is required")
	}
	params, err := c.params()
	if err != nil {
		return err
	}
	db, err := c.db()
	if err != nil {
		return err
	}
	c.log.Debugf("[view] Will query %s/_design/%s/_view/%s", db.Name(), c.conf.Design(), recliner.GenerateName(c.keys, c.values))
	result, err := db.FindStrict(cmd.Context(), c.keys, c.values, params)
	if err != nil {
		return err
	}
	return c.fmt.Output(result)
}
