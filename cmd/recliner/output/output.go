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

// Package output renders command results.
package output

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/pflag"

	"github.com/go-kivik/recliner/cmd/recliner/errors"
)

// DefaultFormat is used when no format is requested.
const DefaultFormat = "json"

// Formatter manages output formatting.
type Formatter struct {
	mu      sync.Mutex
	formats map[string]Format
	stdout  io.Writer

	format    string
	output    string
	overwrite bool
}

// New returns an output formatter which writes to stdout, with the json
// format registered.
func New(stdout io.Writer) *Formatter {
	f := &Formatter{
		formats: map[string]Format{},
		stdout:  stdout,
	}
	f.Register(DefaultFormat, jsonFormat{})
	return f
}

// Format is the output format interface. r yields a single JSON value.
type Format interface {
	Output(w io.Writer, r io.Reader) error
}

// Register registers an output formatter.
func (f *Formatter) Register(name string, fmt Format) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.formats[name]; ok {
		panic(name + " already registered")
	}
	f.formats[name] = fmt
}

func (f *Formatter) options() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	opts := make([]string, 0, len(f.formats))
	for name := range f.formats {
		opts = append(opts, name)
	}
	sort.Strings(opts)
	return opts
}

// ConfigFlags sets up the CLI flags based on the registered formatters.
func (f *Formatter) ConfigFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&f.format, "format", "f", DefaultFormat, "Output format. One of: "+strings.Join(f.options(), "|"))
	fs.StringVarP(&f.output, "output", "o", "", "Output file.")
	fs.BoolVarP(&f.overwrite, "overwrite", "F", false, "Overwrite output file")
}

// Output renders v, which is first marshaled to JSON.
func (f *Formatter) Output(v interface{}) error {
	format, err := f.formatter()
	if err != nil {
		return err
	}
	buf, err := json.Marshal(v)
	if err != nil {
		return errors.Code(errors.ErrData, err)
	}
	out, err := f.writer()
	if err != nil {
		return err
	}
	if err := format.Output(out, bytes.NewReader(buf)); err != nil {
		_ = out.Close()
		return errors.Code(errors.ErrIO, err)
	}
	return errors.Code(errors.ErrIO, out.Close())
}

func (f *Formatter) formatter() (Format, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := f.format
	if name == "" {
		name = DefaultFormat
	}
	if format, ok := f.formats[name]; ok {
		return format, nil
	}
	return nil, errors.Codef(errors.ErrUsage, "unrecognized output format option: %s", name)
}

func (f *Formatter) writer() (io.WriteCloser, error) {
	switch f.output {
	case "", "-":
		return ensureNewlineEnding(f.stdout), nil
	}
	file, err := f.createFile(f.output)
	if err != nil {
		return nil, errors.Code(errors.ErrCantCreate, err)
	}
	return ensureNewlineEnding(file), nil
}

func (f *Formatter) createFile(path string) (*os.File, error) {
	if f.overwrite {
		return os.Create(path)
	}
	return os.OpenFile(path, os.O_EXCL|os.O_CREATE|os.O_WRONLY, 0o666) //nolint:gomnd
}

// OK renders a bare success.
func (f *Formatter) OK() error {
	return f.Output(map[string]bool{"ok": true})
}

// UpdateResult renders the outcome of a write.
func (f *Formatter) UpdateResult(id, rev string) error {
	return f.Output(struct {
		OK  bool   `json:"ok"`
		ID  string `json:"id"`
		Rev string `json:"rev"`
	}{
		OK:  true,
		ID:  id,
		Rev: rev,
	})
}

type jsonFormat struct{}

func (jsonFormat) Output(w io.Writer, r io.Reader) error {
	_, err := io.Copy(w, r)
	return err
}

func ensureNewlineEnding(w io.Writer) io.WriteCloser {
	return &addNewlineEnding{Writer: w}
}

type addNewlineEnding struct {
	io.Writer
	last byte
}

func (w *addNewlineEnding) Write(p []byte) (int, error) {
	if len(p) > 0 {
		w.last = p[len(p)-1]
	}
	return w.Writer.Write(p)
}

// Close writes a final newline if needed. A wrapped file is closed.
func (w *addNewlineEnding) Close() error {
	if w.last != '\n' {
		if _, err := w.Writer.Write([]byte{'\n'}); err != nil {
			return err
		}
	}
	if f, ok := w.Writer.(*os.File); ok && f != os.Stdout {
		return f.Close()
	}
	return nil
}
