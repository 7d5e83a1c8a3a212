// Package httpclient provides an HTTP client that refuses to reach private
// networks. Outbound calls made on behalf of a case (model API, company
// websites, research sources) go through it.
package httpclient

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/teranos/dealflow/errors"
)

// Options configures a SaferClient. Zero values take the defaults.
type Options struct {
	Timeout        time.Duration // default 30s
	AllowedSchemes []string      // default http, https
	MaxRedirects   int           // default 10
	AllowPrivate   bool          // allow loopback and private ranges (tests only)
	MaxBodyBytes   int64         // GetBody limit, default 5MB
	UserAgent      string
}

// SaferClient wraps http.Client with SSRF protection.
type SaferClient struct {
	*http.Client
	opts Options
}

// New creates a client with SSRF protection on the initial URL, every
// redirect and every dialed address.
func New(opts Options) *SaferClient {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if len(opts.AllowedSchemes) == 0 {
		opts.AllowedSchemes = []string{"http", "https"}
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = 10
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 5 << 20
	}

	c := &SaferClient{Client: &http.Client{Timeout: opts.Timeout}, opts: opts}
	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= c.opts.MaxRedirects {
			return errors.Newf("stopped after %d redirects", c.opts.MaxRedirects)
		}
		if err := c.validateURL(req.URL); err != nil {
			return errors.Wrap(err, "redirect blocked")
		}
		return nil
	}

	if !opts.AllowPrivate {
		dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
		c.Transport = &http.Transport{
			// Resolve and check before dialing so DNS rebinding cannot slip a
			// private address past validateURL.
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				host, port, err := net.SplitHostPort(addr)
				if err != nil {
					return nil, errors.Wrap(err, "invalid address")
				}
				addrs, err := net.DefaultResolver.LookupNetIP(ctx, "ip", host)
				if err != nil {
					return nil, errors.Wrapf(err, "failed to resolve host %q", host)
				}
				for _, a := range addrs {
					if IsPrivateAddr(a) {
						return nil, errors.Newf("private IP address blocked: %s", a)
					}
				}
				if len(addrs) == 0 {
					return nil, errors.Newf("no addresses for host %q", host)
				}
				return dialer.DialContext(ctx, network, net.JoinHostPort(addrs[0].String(), port))
			},
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: time.Second,
		}
	}
	return c
}

// Wrap adapts an existing client with private-range checks disabled. Used
// with httptest servers, which listen on loopback.
func Wrap(client *http.Client) *SaferClient {
	c := New(Options{AllowPrivate: true})
	c.Client = client
	return c
}

func (c *SaferClient) validateURL(u *url.URL) error {
	scheme := strings.ToLower(u.Scheme)
	if !slices.Contains(c.opts.AllowedSchemes, scheme) {
		return errors.Newf("scheme %q not allowed (allowed: %v)", scheme, c.opts.AllowedSchemes)
	}
	if u.User != nil {
		return errors.New("URL contains credentials")
	}
	host := u.Hostname()
	if host == "" {
		return errors.New("URL missing hostname")
	}
	if c.opts.AllowPrivate {
		return nil
	}
	if isLocalhost(host) {
		return errors.New("localhost access blocked")
	}
	if a, err := netip.ParseAddr(host); err == nil && IsPrivateAddr(a) {
		return errors.Newf("private IP address blocked: %s", host)
	}
	return nil
}

// ValidateURL parses and checks a URL string.
func (c *SaferClient) ValidateURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Wrap(err, "invalid URL")
	}
	if err := c.validateURL(u); err != nil {
		return nil, err
	}
	return u, nil
}

// Do executes a request after validating its URL.
func (c *SaferClient) Do(req *http.Request) (*http.Response, error) {
	if err := c.validateURL(req.URL); err != nil {
		return nil, errors.Wrap(err, "request blocked by SSRF protection")
	}
	if c.opts.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}
	return c.Client.Do(req)
}

// GetBody fetches raw and returns at most MaxBodyBytes of its body. Non-2xx
// responses are errors.
func (c *SaferClient) GetBody(ctx context.Context, raw string) ([]byte, *http.Response, error) {
	u, err := c.ValidateURL(raw)
	if err != nil {
		return nil, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to create request")
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.opts.MaxBodyBytes))
	if err != nil {
		return nil, resp, errors.Wrap(err, "failed to read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return body, resp, errors.Newf("GET %s: status %d", u.Redacted(), resp.StatusCode)
	}
	return body, resp, nil
}

var specialPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("240.0.0.0/4"),
	netip.MustParsePrefix("fec0::/10"),
	netip.MustParsePrefix("2001:db8::/32"),
}

// IsPrivateAddr reports whether a is loopback, private, link-local,
// multicast, unspecified or in a reserved range.
func IsPrivateAddr(a netip.Addr) bool {
	a = a.Unmap()
	if a.IsLoopback() || a.IsPrivate() || a.IsLinkLocalUnicast() ||
		a.IsLinkLocalMulticast() || a.IsMulticast() || a.IsUnspecified() {
		return true
	}
	for _, p := range specialPrefixes {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

func isLocalhost(host string) bool {
	host = strings.ToLower(host)
	return host == "localhost" ||
		host == "localhost.localdomain" ||
		strings.HasSuffix(host, ".localhost")
}
