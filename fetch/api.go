// Package fetch is the shared upstream transport: plain http(s) GET with a
// timeout, a size cap and zstd|gzip content decoding.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

// defaults
const (
	_DEFAULT_TIMEOUT   = 30 * time.Second
	_DEFAULT_USERAGENT = "asn2srs (+https://paepcke.de/asn2srs)"
	_DEFAULT_MAXBYTES  = 32 * 1024 * 1024
	_maxRedirects      = 5
)

var errTooManyRedirects = errors.New("too many redirects")

// Options ...
type Options struct {
	Timeout   time.Duration // per request, default 30s
	UserAgent string        // default asn2srs
	MaxBytes  int64         // decoded body cap, default 32 MiB

	// Transport replaces the default transport, tests only.
	Transport http.RoundTripper
}

// Client ...
type Client struct {
	http      *http.Client
	userAgent string
	maxBytes  int64
}

// New ...
func New(opt Options) *Client {
	if opt.Timeout <= 0 {
		opt.Timeout = _DEFAULT_TIMEOUT
	}
	if opt.UserAgent == "" {
		opt.UserAgent = _DEFAULT_USERAGENT
	}
	if opt.MaxBytes <= 0 {
		opt.MaxBytes = _DEFAULT_MAXBYTES
	}
	transport := opt.Transport
	if transport == nil {
		transport = getTransport(getTlsConf())
	}
	return &Client{
		http:      getClient(transport, opt.Timeout),
		userAgent: opt.UserAgent,
		maxBytes:  opt.MaxBytes,
	}
}

// Get fetches rawURL and returns the decoded body.
// Every failure is returned as *FetchError.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, &FetchError{Code: CodeInvalid, URL: rawURL, Cause: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &FetchError{Code: CodeInvalid, URL: rawURL, Cause: err}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Encoding", _acceptEncoding)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportError(rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// drain a little so the connection can be reused
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
		return nil, &FetchError{Code: CodeStatus, URL: rawURL, Status: resp.StatusCode}
	}

	r, release, err := decodeBody(resp.Header.Get("Content-Encoding"), resp.Body)
	if err != nil {
		return nil, Malformed(rawURL, err)
	}
	defer release()

	// read at most maxBytes+1 to detect overflow
	body, err := io.ReadAll(io.LimitReader(r, c.maxBytes+1))
	if err != nil {
		if isTimeout(err) {
			return nil, &FetchError{Code: CodeTimeout, URL: rawURL, Status: resp.StatusCode, Cause: err}
		}
		return nil, Malformed(rawURL, err)
	}
	if int64(len(body)) > c.maxBytes {
		return nil, &FetchError{Code: CodeTooLarge, URL: rawURL, Status: resp.StatusCode}
	}
	return body, nil
}

// GetJSON fetches rawURL and decodes the body into v.
func (c *Client) GetJSON(ctx context.Context, rawURL string, v any) error {
	body, err := c.Get(ctx, rawURL)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return Malformed(rawURL, err)
	}
	return nil
}

// transportError ...
func transportError(rawURL string, err error) *FetchError {
	if isTimeout(err) {
		return &FetchError{Code: CodeTimeout, URL: rawURL, Cause: err}
	}
	return &FetchError{Code: CodeFailed, URL: rawURL, Cause: err}
}

// isTimeout ...
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
