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

package chttp

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Options are optional parameters which may be sent with a request.
type Options struct {
	// ContentType sets the Content-Type header. Defaults to "application/json".
	ContentType string

	// ContentLength is the length of the body GetBody produces, if known.
	// It is ignored when the body is compressed.
	ContentLength int64

	// GetBody returns the request body. It is called once per attempt.
	GetBody func() (io.ReadCloser, error)

	// Query is appended to any query string already present in the path.
	Query url.Values

	// NoGzip disables gzip compression of the request body.
	NoGzip bool
}

// clientOption adapts a function on *Client to an Option.
type clientOption struct {
	name string
	fn   func(*Client)
}

var _ Option = clientOption{}

func (o clientOption) Apply(target interface{}) {
	if c, ok := target.(*Client); ok {
		o.fn(c)
	}
}

func (o clientOption) String() string { return o.name }

// OptionNoRequestCompression disables gzip compression of request bodies.
func OptionNoRequestCompression() Option {
	return clientOption{"NoRequestCompression", func(c *Client) { c.noGzip = true }}
}

// OptionUserAgent appends ua to the User-Agent header.
func OptionUserAgent(ua string) Option {
	return clientOption{"[UserAgent:" + ua + "]", func(c *Client) {
		c.UserAgents = append(c.UserAgents, ua)
	}}
}

// OptionHTTPClient replaces the underlying *http.Client. Auth options wrap
// its transport.
func OptionHTTPClient(client *http.Client) Option {
	return clientOption{fmt.Sprintf("[HTTPClient:%p]", client), func(c *Client) { c.Client = client }}
}
