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

// Package config resolves the server, database and document a command acts
// on, from the config file, the environment and the command line.
package config

import (
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/go-kivik/recliner"
	"github.com/go-kivik/recliner/cmd/recliner/errors"
	"github.com/go-kivik/recliner/log"
)

const envPrefix = "recliner"

// Setting keys, also readable from the environment as RECLINER_<KEY>, with
// dashes replaced by underscores.
const (
	KeyDSN        = "dsn"
	KeyMaxRetries = "max-retries"
	KeyDesign     = "design"
)

// DefaultFile is the config file read when none is given.
const DefaultFile = "~/.recliner/config"

// Config is the full app configuration file.
type Config struct {
	Contexts       map[string]*Context `yaml:"contexts"`
	CurrentContext string              `yaml:"current-context"`
	log            log.Logger
	v              *viper.Viper
}

// Context is a complete or partial CouchDB DSN.
type Context struct {
	Scheme   string `yaml:"scheme"`
	Host     string `yaml:"host"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	DocID    string `yaml:"-"`
}

func (c *Context) String() string {
	return c.DSN()
}

func (c *Context) dsn() *url.URL {
	var user *url.Userinfo
	if c.User != "" || c.Password != "" {
		user = url.UserPassword(c.User, c.Password)
	}
	return &url.URL{
		Scheme: c.Scheme,
		Host:   c.Host,
		Path:   path.Join(c.Database, c.DocID),
		User:   user,
	}
}

// DSN returns the full DSN, including database and document ID.
func (c *Context) DSN() string {
	return c.dsn().String()
}

// ServerDSN returns just the server DSN, with no database or document ID.
func (c *Context) ServerDSN() (string, error) {
	if c.Host == "" {
		return "", errors.Code(errors.ErrUsage, "server hostname required")
	}
	dsn := c.dsn()
	dsn.Path = ""
	if dsn.Scheme == "" {
		dsn.Scheme = "http"
	}
	return dsn.String(), nil
}

// DBDoc splits the context path into a database name and a document ID.
// A document under _design keeps its prefix.
func (c *Context) DBDoc() (db, doc string) {
	p := strings.Trim(path.Join(c.Database, c.DocID), "/")
	if p == "" {
		return "", ""
	}
	db, doc, _ = strings.Cut(p, "/")
	return db, doc
}

// UnmarshalYAML handles parsing of a Context from YAML input, either as a
// single dsn key or as separate fields.
func (c *Context) UnmarshalYAML(v *yaml.Node) error {
	dsn := struct {
		DSN string `yaml:"dsn"`
	}{}
	if err := v.Decode(&dsn); err != nil {
		return err
	}
	if dsn.DSN == "" {
		type alias Context
		intl := alias{}
		err := v.Decode(&intl)
		*c = Context(intl)
		return err
	}
	cx, err := ContextFromDSN(dsn.DSN)
	if err != nil {
		return err
	}
	*c = *cx
	return nil
}

// New returns an empty configuration object. Call Read() to populate it.
func New() *Config {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	v.SetDefault(KeyMaxRetries, recliner.DefaultMaxRetries)
	v.SetDefault(KeyDesign, recliner.DefaultDesign)
	return &Config{
		Contexts: make(map[string]*Context),
		log:      log.NewNil(),
		v:        v,
	}
}

// BindFlags binds the named flags so that a flag set on the command line
// overrides the environment, which overrides the default.
func (c *Config) BindFlags(flags *pflag.FlagSet, keys ...string) error {
	for _, key := range keys {
		if err := c.v.BindPFlag(key, flags.Lookup(key)); err != nil {
			return errors.WithCode(err, errors.ErrUsage)
		}
	}
	return nil
}

// MaxRetries returns the conflict retry budget.
func (c *Config) MaxRetries() uint64 {
	return c.v.GetUint64(KeyMaxRetries)
}

// Design returns the design document which holds generated views.
func (c *Config) Design() string {
	return c.v.GetString(KeyDesign)
}

// Read populates c with app configuration found in filename. If RECLINER_DSN
// is set, it becomes the current context.
func (c *Config) Read(filename string, lg log.Logger) error {
	c.log = lg
	if err := c.readYAML(filename); err != nil {
		return errors.WithCode(err, errors.ErrUsage)
	}
	if dsn := c.v.GetString(KeyDSN); dsn != "" {
		if err := c.setDefaultDSN(dsn); err != nil {
			return err
		}
		lg.Debug("set default DSN from environment")
	}
	return nil
}

func (c *Config) readYAML(filename string) error {
	if filename == "" {
		c.log.Debug("no config file specified")
		return nil
	}
	filename, err := resolveHome(filename)
	if err != nil {
		return err
	}
	f, err := os.Open(filename)
	if err != nil {
		c.log.Debugf("failed to read config: %s", err)
		if os.IsNotExist(err) {
			err = nil
		}
		return err
	}
	defer f.Close() // nolint:errcheck
	if err := yaml.NewDecoder(f).Decode(c); err != nil {
		c.log.Debugf("YAML parse error: %s", err)
		return err
	}
	c.log.Debugf("successfully read config file %q", filename)
	return nil
}

func resolveHome(filename string) (string, error) {
	if !strings.HasPrefix(filename, "~/") {
		return filename, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, filename[2:]), nil
}

// CurrentCx returns the current context.
func (c *Config) CurrentCx() (*Context, error) {
	if c.CurrentContext == "" {
		if len(c.Contexts) == 1 {
			for _, cx := range c.Contexts {
				return cx, nil
			}
		}
		return nil, errors.Code(errors.ErrUsage, "no context specified")
	}
	cx, ok := c.Contexts[c.CurrentContext]
	if !ok {
		return nil, errors.Codef(errors.ErrUsage, "context %q not found", c.CurrentContext)
	}
	return cx, nil
}

// ServerDSN returns the server DSN of the current context.
func (c *Config) ServerDSN() (string, error) {
	cx, err := c.CurrentCx()
	if err != nil {
		return "", err
	}
	return cx.ServerDSN()
}

// DB returns the database of the current context, which must not name a
// document.
func (c *Config) DB() (string, error) {
	cx, err := c.CurrentCx()
	if err != nil {
		return "", err
	}
	db, doc := cx.DBDoc()
	if db == "" {
		return "", errors.Code(errors.ErrUsage, "database name required")
	}
	if doc != "" {
		return "", errors.Code(errors.ErrUsage, "URL expected to contain only the database")
	}
	return db, nil
}

// DBDoc returns the database and document ID of the current context, both of
// which are required.
func (c *Config) DBDoc() (db, doc string, err error) {
	cx, err := c.CurrentCx()
	if err != nil {
		return "", "", err
	}
	db, doc = cx.DBDoc()
	if db == "" {
		return "", "", errors.Code(errors.ErrUsage, "database name required")
	}
	if doc == "" {
		return "", "", errors.Code(errors.ErrUsage, "document ID required")
	}
	return db, doc, nil
}

// setDefaultDSN sets the default DSN, from the environment or command line.
func (c *Config) setDefaultDSN(dsn string) error {
	cx, err := ContextFromDSN(dsn)
	if err != nil {
		return err
	}
	c.Contexts["*"] = cx
	c.CurrentContext = "*"
	return nil
}

// ContextFromDSN parses a DSN into a context. A DSN without a scheme and host
// is a path of database and document ID.
func ContextFromDSN(dsn string) (*Context, error) {
	uri, err := url.Parse(dsn)
	if err != nil {
		return nil, errors.WithCode(err, errors.ErrUsage)
	}
	var user, password string
	if u := uri.User; u != nil {
		user = u.Username()
		password, _ = u.Password()
	}
	db, docid, _ := strings.Cut(strings.Trim(uri.Path, "/"), "/")
	return &Context{
		Scheme:   uri.Scheme,
		Host:     uri.Host,
		User:     user,
		Password: password,
		Database: db,
		DocID:    docid,
	}, nil
}

// SetURL sets the current context based on a URL argument passed on the
// command line.
//
// Supported formats and examples:
//
//   - Full DSN     -- http://localhost:5984/database/docid
//   - Path only    -- database/docid
//   - Design doc   -- database/_design/name
//
// A path only URL is merged with the current context's server.
func (c *Config) SetURL(dsn string) error {
	if dsn == "" {
		return nil
	}
	cx, err := ContextFromDSN(dsn)
	if err != nil {
		return err
	}
	curCx, _ := c.CurrentCx()
	if cx.Host == "" && curCx != nil {
		c.log.Debugf("Incomplete DSN provided: %q, merging with current context: %q", dsn, curCx)
		cx.Scheme = curCx.Scheme
		cx.Host = curCx.Host
		cx.User = curCx.User
		cx.Password = curCx.Password
	}
	c.Contexts["*"] = cx
	c.CurrentContext = "*"
	return nil
}
