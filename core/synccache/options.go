package synccache

import (
	"strings"
	"time"

	"github.com/tymastrangelo/groupgrade-sub000/core"
)

// Metrics receives cache events. Implementations must be safe for concurrent use.
type Metrics interface {
	Hit(key string)
	Miss(key string)
	Deduplicated(key string)
	NotModified(key string)
	Failed(key string)
	Evicted(n int)
}

type nopMetrics struct{}

func (nopMetrics) Hit(string)          {}
func (nopMetrics) Miss(string)         {}
func (nopMetrics) Deduplicated(string) {}
func (nopMetrics) NotModified(string)  {}
func (nopMetrics) Failed(string)       {}
func (nopMetrics) Evicted(int)         {}

// KeyKind returns the resource kind of a key, i.e. everything before the first ":".
// "roster:42" -> "roster". Useful as a low-cardinality metrics label.
func KeyKind(key string) string {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[:i]
	}
	return key
}

type options[T any] struct {
	decode     Decoder[T]
	logger     core.Logger
	metrics    Metrics
	now        func() time.Time
	defaultTTL time.Duration
	maxIdle    time.Duration
}

// Option configures a Cache.
type Option[T any] func(*options[T])

// WithDecoder sets the Decoder used for keys without a per-key decoder (see Cache.SetDecoder).
func WithDecoder[T any](d Decoder[T]) Option[T] {
	return func(o *options[T]) { o.decode = d }
}

// WithLogger sets the logger used to report background refresh failures.
func WithLogger[T any](l core.Logger) Option[T] {
	return func(o *options[T]) { o.logger = l }
}

func WithMetrics[T any](m Metrics) Option[T] {
	return func(o *options[T]) { o.metrics = m }
}

// WithClock replaces time.Now; handy in tests.
func WithClock[T any](now func() time.Time) Option[T] {
	return func(o *options[T]) { o.now = now }
}

// WithDefaultTTL sets the TTL used by background refreshes of keys that were never Read.
func WithDefaultTTL[T any](ttl time.Duration) Option[T] {
	return func(o *options[T]) { o.defaultTTL = ttl }
}

// WithMaxIdle enables eviction of entries untouched for longer than d (see Cache.Sweep).
// Zero disables eviction.
func WithMaxIdle[T any](d time.Duration) Option[T] {
	return func(o *options[T]) { o.maxIdle = d }
}
