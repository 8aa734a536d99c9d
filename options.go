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

package recliner

import (
	"fmt"
	"net/http"

	"github.com/cenkalti/backoff/v4"

	"github.com/go-kivik/recliner/chttp"
	"github.com/go-kivik/recliner/log"
)

// Option configures a Client or DB. Transport options, such as BasicAuth,
// are passed to [New]; all others may be passed to either [New], where they
// become defaults for every DB, or to [Client.DB].
type Option = chttp.Option

type allOptions []Option

var _ Option = (allOptions)(nil)

func (o allOptions) Apply(t interface{}) {
	for _, opt := range o {
		if opt != nil {
			opt.Apply(t)
		}
	}
}

type maxRetriesOption uint64

func (o maxRetriesOption) Apply(t interface{}) {
	if db, ok := t.(*DB); ok {
		db.maxRetries = uint64(o)
	}
}

func (o maxRetriesOption) String() string {
	return fmt.Sprintf("[MaxRetries:%d]", uint64(o))
}

// OptionMaxRetries sets the number of times a write which fails with a
// revision conflict is retried. A value of 0 disables retries. The default
// is [DefaultMaxRetries].
func OptionMaxRetries(n uint64) Option {
	return maxRetriesOption(n)
}

type backOffOption func() backoff.BackOff

func (o backOffOption) Apply(t interface{}) {
	if db, ok := t.(*DB); ok {
		db.newBackOff = o
	}
}

// OptionBackOff sets the pacing of conflict retries. fn is called once per
// operation, and must return a fresh BackOff each time. Retries are not
// delayed by default.
func OptionBackOff(fn func() backoff.BackOff) Option {
	return backOffOption(fn)
}

type loggerOption struct {
	log.Logger
}

func (o loggerOption) Apply(t interface{}) {
	if db, ok := t.(*DB); ok {
		db.log = o.Logger
	}
}

// OptionLogger sets the logger which receives debug messages about retries,
// database creation and view installation.
func OptionLogger(l log.Logger) Option {
	return loggerOption{l}
}

type metricsOption struct {
	*Metrics
}

func (o metricsOption) Apply(t interface{}) {
	if db, ok := t.(*DB); ok {
		db.metrics = o.Metrics
	}
}

// OptionMetrics attaches Prometheus counters.
func OptionMetrics(m *Metrics) Option {
	return metricsOption{m}
}

type designNameOption string

func (o designNameOption) Apply(t interface{}) {
	if db, ok := t.(*DB); ok {
		db.design = string(o)
	}
}

// OptionDesignName sets the name of the design document, without the
// _design/ prefix, which holds views generated by [DB.FindStrict]. The
// default is [DefaultDesign].
func OptionDesignName(name string) Option {
	return designNameOption(name)
}

type designOption struct {
	name string
	doc  *DesignDoc
}

func (o designOption) Apply(t interface{}) {
	if db, ok := t.(*DB); ok {
		if db.designs == nil {
			db.designs = map[string]*DesignDoc{}
		}
		db.designs[o.name] = o.doc
	}
}

// OptionDesign declares a design document, named without the _design/
// prefix, for use by [DB.Catalog] and [DB.InstallDesign].
func OptionDesign(name string, doc *DesignDoc) Option {
	return designOption{name: name, doc: doc}
}

// BasicAuth authenticates every request with HTTP Basic Auth.
func BasicAuth(username, password string) Option {
	return chttp.BasicAuth(username, password)
}

// CookieAuth authenticates with a CouchDB session cookie. This is the default
// when credentials are included in the DSN.
func CookieAuth(username, password string) Option {
	return chttp.CookieAuth(username, password)
}

// OptionHTTPClient sets the *http.Client used for requests.
func OptionHTTPClient(client *http.Client) Option {
	return chttp.OptionHTTPClient(client)
}

// OptionUserAgent appends ua to the User-Agent header.
func OptionUserAgent(ua string) Option {
	return chttp.OptionUserAgent(ua)
}

// OptionNoRequestCompression disables gzip compression of request bodies.
func OptionNoRequestCompression() Option {
	return chttp.OptionNoRequestCompression()
}
