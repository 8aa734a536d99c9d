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

// Package input reads document data given on the command line, from a file
// or from stdin, as JSON or YAML.
package input

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/icza/dyno"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/go-kivik/recliner/cmd/recliner/errors"
)

// Input holds the input flags of a command.
type Input struct {
	data  string
	file  string
	yaml  bool
	stdin io.Reader
}

// New returns an Input which reads "-" from stdin.
func New(stdin io.Reader) *Input {
	return &Input{stdin: stdin}
}

// ConfigFlags adds the input flags to pf.
func (i *Input) ConfigFlags(pf *pflag.FlagSet) {
	pf.StringVarP(&i.data, "data", "d", "", "JSON document data.")
	pf.StringVarP(&i.file, "data-file", "D", "", "Read document data from the named file. Use - for stdin. Assumed to be JSON, unless the file extension is .yaml or .yml, or the --yaml flag is used.")
	pf.BoolVar(&i.yaml, "yaml", false, "Treat input data as YAML")
}

// HasInput returns true if some input has been provided.
func (i *Input) HasInput() bool {
	return i.data != "" || i.file != ""
}

func (i *Input) isYAML() bool {
	return i.yaml || strings.HasSuffix(i.file, ".yaml") || strings.HasSuffix(i.file, ".yml")
}

func (i *Input) raw() ([]byte, error) {
	if i.data != "" {
		return []byte(i.data), nil
	}
	var r io.Reader
	switch i.file {
	case "":
		return nil, errors.Code(errors.ErrUsage, "no document data provided")
	case "-":
		r = i.stdin
	default:
		f, err := os.Open(i.file)
		if err != nil {
			return nil, errors.Code(errors.ErrNoInput, err)
		}
		defer f.Close() // nolint:errcheck
		r = f
	}
	buf, err := io.ReadAll(r)
	return buf, errors.Code(errors.ErrIO, err)
}

// Value decodes the input. The result is a map[string]interface{} for an
// object, or a []interface{} for an array.
func (i *Input) Value() (interface{}, error) {
	buf, err := i.raw()
	if err != nil {
		return nil, err
	}
	var v interface{}
	if i.isYAML() {
		if err := yaml.Unmarshal(buf, &v); err != nil {
			return nil, errors.Code(errors.ErrData, err)
		}
		return dyno.ConvertMapI2MapS(v), nil
	}
	dec := json.NewDecoder(bytes.NewReader(buf))
	if err := dec.Decode(&v); err != nil {
		return nil, errors.Code(errors.ErrData, err)
	}
	return v, nil
}

// Object decodes the input, which must be an object.
func (i *Input) Object() (map[string]interface{}, error) {
	v, err := i.Value()
	if err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]interface{})
	if !ok {
		return nil, errors.Code(errors.ErrData, "document data must be an object")
	}
	return obj, nil
}
