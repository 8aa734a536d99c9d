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
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// SessionCookieName is the name of the CouchDB session cookie.
const SessionCookieName = "AuthSession"

// authenticator installs itself on a client, normally by wrapping its
// transport.
type authenticator interface {
	Authenticate(*Client) error
}

type credentials struct {
	Username string `json:"name"`
	Password string `json:"password"`
}

func (c credentials) String() string {
	return fmt.Sprintf("{user:%s,pass:%s}", c.Username, strings.Repeat("*", len(c.Password)))
}

// wrap makes rt the client transport and returns the one it replaced.
func wrap(c *Client, rt http.RoundTripper) http.RoundTripper {
	next := c.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	c.Transport = rt
	return next
}

// BasicAuth sends HTTP basic auth credentials with every request.
func BasicAuth(username, password string) Option {
	return &basicAuth{credentials: credentials{Username: username, Password: password}}
}

type basicAuth struct {
	credentials
	transport http.RoundTripper
}

var _ authenticator = &basicAuth{}

// Apply installs a copy, so one option may serve several clients.
func (a *basicAuth) Apply(target interface{}) {
	if auth, ok := target.(*authenticator); ok {
		*auth = &basicAuth{credentials: a.credentials}
	}
}

func (a *basicAuth) String() string { return "[BasicAuth" + a.credentials.String() + "]" }

func (a *basicAuth) Authenticate(c *Client) error {
	a.transport = wrap(c, a)
	return nil
}

func (a *basicAuth) RoundTrip(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(a.Username, a.Password)
	return a.transport.RoundTrip(req)
}

// CookieAuth logs in through /_session and sends the resulting session
// cookie. It is what [New] uses when the URL carries credentials.
func CookieAuth(username, password string) Option {
	return &cookieAuth{credentials: credentials{Username: username, Password: password}}
}

// cookieAuth holds session state and belongs to a single client.
type cookieAuth struct {
	credentials
	client    *Client
	transport http.RoundTripper
}

var _ authenticator = &cookieAuth{}

func (a *cookieAuth) Apply(target interface{}) {
	if auth, ok := target.(*authenticator); ok {
		*auth = &cookieAuth{credentials: a.credentials}
	}
}

func (a *cookieAuth) String() string { return "[CookieAuth" + a.credentials.String() + "]" }

func (a *cookieAuth) Authenticate(c *Client) error {
	a.client = c
	if c.Jar == nil {
		// cookiejar.New never fails.
		c.Jar, _ = cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	}
	a.transport = wrap(c, a)
	return nil
}

// Cookie returns the current session cookie, or nil.
func (a *cookieAuth) Cookie() *http.Cookie {
	if a.client == nil {
		return nil
	}
	for _, cookie := range a.client.Jar.Cookies(a.client.dsn) {
		if cookie.Name == SessionCookieName {
			return cookie
		}
	}
	return nil
}

// expired reports whether a new session is needed before sending req.
func (a *cookieAuth) expired(req *http.Request) bool {
	if _, err := req.Cookie(SessionCookieName); err == nil {
		return false
	}
	cookie := a.Cookie()
	if cookie == nil {
		return true
	}
	return !cookie.Expires.IsZero() && cookie.Expires.Before(time.Now().Add(time.Minute))
}

type sessionKey struct{}

// RoundTrip logs in when needed. A 401 discards the session cookie so the
// next request logs in again.
func (a *cookieAuth) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := a.login(req); err != nil {
		return nil, err
	}
	res, err := a.transport.RoundTrip(req)
	if err != nil || res.StatusCode != http.StatusUnauthorized {
		return res, err
	}
	if cookie := a.Cookie(); cookie != nil {
		cookie.Expires = time.Now().AddDate(0, 0, -1)
		a.client.Jar.SetCookies(a.client.dsn, []*http.Cookie{cookie})
	}
	return res, nil
}

func (a *cookieAuth) login(req *http.Request) error {
	ctx := req.Context()
	if ctx.Value(sessionKey{}) != nil || !a.expired(req) {
		return nil
	}
	a.client.authMU.Lock()
	defer a.client.authMU.Unlock()
	if cookie := a.Cookie(); cookie == nil {
		// Nobody else logged in while we waited for the lock.
		res, err := a.client.Request(context.WithValue(ctx, sessionKey{}, true), http.MethodPost, "/_session", &Options{
			GetBody: BodyEncoder(a.credentials),
			NoGzip:  true,
		})
		if err != nil {
			return err
		}
		if res.Status >= http.StatusBadRequest {
			return &TransportError{Status: res.Status, Err: fmt.Errorf("session: %s", res)}
		}
	}
	if cookie := a.Cookie(); cookie != nil {
		req.AddCookie(cookie)
	}
	return nil
}
