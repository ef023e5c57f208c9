// Package resource retrieves API resources for the synchronization caches.
package resource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/tymastrangelo/groupgrade-sub000/core/synccache"
)

const (
	defaultTimeout = 15 * time.Second
	maxBodySize    = 8 << 20
	maxErrorSize   = 1 << 10
)

// PathFunc maps a cache key to the API path of its resource.
type PathFunc func(key string) (string, error)

// DefaultPath maps "kind:id" to "/kind/id" and any other key to "/key".
func DefaultPath(key string) (string, error) {
	if key == "" {
		return "", errors.New("empty key")
	}
	return "/" + strings.Replace(key, ":", "/", 1), nil
}

// StatusError is returned for any response that is neither 2xx nor 304.
type StatusError struct {
	Method  string
	URL     string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.Code, e.Message)
}

// HTTPFetcher is a synccache.Fetcher doing conditional GETs: the token is sent as
// If-None-Match and the ETag of the response becomes the new token.
type HTTPFetcher struct {
	client  *http.Client
	baseURL string
	path    PathFunc
	bearer  func() string
}

var _ synccache.Fetcher = (*HTTPFetcher)(nil)

type Option func(*HTTPFetcher)

func WithHTTPClient(c *http.Client) Option {
	return func(f *HTTPFetcher) { f.client = c }
}

func WithPath(p PathFunc) Option {
	return func(f *HTTPFetcher) { f.path = p }
}

// WithBearer sets the source of the Authorization bearer token; it is called on every fetch.
func WithBearer(token func() string) Option {
	return func(f *HTTPFetcher) { f.bearer = token }
}

func NewHTTPFetcher(baseURL string, opts ...Option) (*HTTPFetcher, error) {
	if err := vala.BeginValidation().Validate(
		vala.StringNotEmpty(baseURL, "baseURL"),
	).Check(); err != nil {
		return nil, err
	}
	f := &HTTPFetcher{
		client:  &http.Client{Timeout: defaultTimeout},
		baseURL: strings.TrimSuffix(baseURL, "/"),
		path:    DefaultPath,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Authorize sets the Authorization header of req when a bearer source is configured.
func (f *HTTPFetcher) Authorize(req *http.Request) {
	if f.bearer == nil {
		return
	}
	if token := f.bearer(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// URL returns the absolute URL of an API path.
func (f *HTTPFetcher) URL(path string) string { return f.baseURL + path }

// Client returns the underlying http.Client.
func (f *HTTPFetcher) Client() *http.Client { return f.client }

func (f *HTTPFetcher) Fetch(ctx context.Context, key string, token synccache.Token) (synccache.Response, error) {
	path, err := f.path(key)
	if err != nil {
		return synccache.Response{}, errors.Wrapf(err, "resolving path of %q", key)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL(path), nil)
	if err != nil {
		return synccache.Response{}, errors.Wrap(err, "creating request")
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("If-None-Match", string(token))
	}
	f.Authorize(req)

	res, err := f.client.Do(req)
	if err != nil {
		return synccache.Response{}, errors.Wrapf(err, "GET %s", req.URL)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotModified {
		return synccache.Response{NotModified: true}, nil
	}
	if err = CheckStatus(res); err != nil {
		return synccache.Response{}, err
	}
	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodySize))
	if err != nil {
		return synccache.Response{}, errors.Wrapf(err, "reading %s", req.URL)
	}
	return synccache.Response{Body: body, Token: synccache.Token(res.Header.Get("ETag"))}, nil
}

// CheckStatus returns a *StatusError for non 2xx responses.
func CheckStatus(res *http.Response) error {
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorSize))
	return &StatusError{
		Method:  res.Request.Method,
		URL:     res.Request.URL.String(),
		Code:    res.StatusCode,
		Message: strings.TrimSpace(string(msg)),
	}
}
