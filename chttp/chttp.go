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

// Package chttp is the HTTP transport recliner uses to talk to CouchDB. Every
// call reads the full response into a [Result]; error statuses are data, not
// errors.
package chttp

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const typeJSON = "application/json"

// Version is reported in the User-Agent header.
const Version = "1.0.0"

// HeaderRequestID carries a fresh UUID on every outbound request, so server
// logs can be correlated with client logs.
const HeaderRequestID = "X-Request-ID"

// Client is a connection to one CouchDB server.
type Client struct {
	*http.Client

	// UserAgents are appended to the User-Agent header.
	UserAgents []string

	rawDSN   string
	dsn      *url.URL
	basePath string
	auth     authenticator
	authMU   sync.Mutex
	noGzip   bool
}

// Option configures a Client. An option ignores targets it does not know.
type Option interface {
	Apply(target interface{})
}

// New returns a client for the server at dsn. Credentials embedded in the
// URL enable cookie authentication; pass [BasicAuth] to use basic auth
// instead.
func New(dsn string, options ...Option) (*Client, error) {
	u, err := parseDSN(dsn)
	if err != nil {
		return nil, err
	}
	c := &Client{
		Client:     &http.Client{},
		UserAgents: []string{"Recliner/" + Version},
		rawDSN:     dsn,
		dsn:        u,
		basePath:   strings.TrimSuffix(u.Path, "/"),
	}
	var auth authenticator
	if u.User != nil {
		password, _ := u.User.Password()
		auth = &cookieAuth{credentials: credentials{Username: u.User.Username(), Password: password}}
		u.User = nil
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt.Apply(c)
		opt.Apply(&auth)
	}
	if auth == nil {
		return c, nil
	}
	if err := auth.Authenticate(c); err != nil {
		return nil, err
	}
	c.auth = auth
	return c, nil
}

func parseDSN(dsn string) (*url.URL, error) {
	if dsn == "" {
		return nil, &TransportError{Status: http.StatusBadRequest, Err: errors.New("no URL specified")}
	}
	if !strings.HasPrefix(dsn, "http://") && !strings.HasPrefix(dsn, "https://") {
		dsn = "http://" + dsn
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return nil, &TransportError{Status: http.StatusBadRequest, Err: err}
	}
	return u, nil
}

// DSN returns the URL the client was created with.
func (c *Client) DSN() string {
	return c.rawDSN
}

// path joins the server base path and an already-escaped request path.
func (c *Client) path(p string) string {
	return c.basePath + "/" + strings.TrimPrefix(p, "/")
}

// Request sends a request and reads the whole response. path is relative to
// the server URL, escaped, and may carry a query string. A non-nil error
// means no response was received.
func (c *Client) Request(ctx context.Context, method, path string, opts *Options) (*Result, error) {
	if method == "" {
		return nil, errors.New("chttp: method required")
	}
	if opts == nil {
		opts = &Options{}
	}
	req, err := c.newRequest(ctx, method, path, opts)
	if err != nil {
		return nil, err
	}
	res, err := c.Do(req)
	if err != nil {
		return nil, netError(err)
	}
	return readResult(res)
}

func (c *Client) newRequest(ctx context.Context, method, path string, opts *Options) (*http.Request, error) {
	ref, err := url.Parse(c.path(path))
	if err != nil {
		return nil, &TransportError{Status: http.StatusBadRequest, Err: err}
	}
	u := *c.dsn
	u.Path, u.RawPath = ref.Path, ref.RawPath
	u.RawQuery = joinQuery(ref.RawQuery, opts.Query)

	var body io.Reader
	if opts.GetBody != nil {
		rc, err := opts.GetBody()
		if err != nil {
			return nil, err
		}
		body = rc
	}
	gz := body != nil && !c.noGzip && !opts.NoGzip
	if gz {
		body = gzipBody(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, &TransportError{Status: http.StatusBadRequest, Err: err}
	}
	contentType := typeJSON
	if opts.ContentType != "" {
		contentType = opts.ContentType
	}
	req.Header.Set("Accept", typeJSON)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", c.userAgent())
	req.Header.Set(HeaderRequestID, uuid.NewString())
	if gz {
		req.Header.Set("Content-Encoding", "gzip")
	} else {
		if opts.ContentLength > 0 {
			req.ContentLength = opts.ContentLength
		}
		req.GetBody = opts.GetBody
	}
	return req, nil
}

func joinQuery(raw string, q url.Values) string {
	switch {
	case len(q) == 0:
		return raw
	case raw == "":
		return q.Encode()
	}
	return raw + "&" + q.Encode()
}

// gzipBody streams body through a gzip writer.
func gzipBody(body io.Reader) io.Reader {
	r, w := io.Pipe()
	go func() {
		if closer, ok := body.(io.Closer); ok {
			defer closer.Close()
		}
		gz := gzip.NewWriter(w)
		_, err := io.Copy(gz, body)
		if cerr := gz.Close(); err == nil {
			err = cerr
		}
		_ = w.CloseWithError(err)
	}()
	return r
}

func netError(err error) error {
	status := http.StatusBadGateway
	var te *TransportError
	if errors.As(err, &te) {
		status = te.Status
	}
	return &TransportError{Status: status, Err: err}
}

// BodyEncoder returns a GetBody function yielding the JSON encoding of i.
// Byte slices, raw messages and strings are sent as they are. Encoding
// happens on each call, so the function may be used for retries.
func BodyEncoder(i interface{}) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) {
		var b []byte
		switch t := i.(type) {
		case []byte:
			b = t
		case json.RawMessage:
			b = t
		case string:
			b = []byte(t)
		default:
			var err error
			if b, err = json.Marshal(i); err != nil {
				return nil, &TransportError{Status: http.StatusBadRequest, Err: err}
			}
		}
		return io.NopCloser(bytes.NewReader(b)), nil
	}
}

// ETag returns the unquoted ETag header value, if present.
func ETag(header http.Header) (string, bool) {
	v := header.Values("Etag")
	if len(v) == 0 {
		v = header["ETag"]
	}
	if len(v) == 0 || v[0] == "" {
		return "", false
	}
	return strings.Trim(v[0], `"`), true
}

func (c *Client) userAgent() string {
	ua := fmt.Sprintf("Recliner chttp/%s (Language=%s; Platform=%s/%s)",
		Version, runtime.Version(), runtime.GOARCH, runtime.GOOS)
	return strings.Join(append([]string{ua}, c.UserAgents...), " ")
}
