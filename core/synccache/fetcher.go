package synccache

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
)

// Token is an opaque validation token handed out by a resource provider.
// It carries no meaning beyond equality.
type Token string

// Response is the outcome of a single successful retrieval.
type Response struct {
	// NotModified reports that the resource did not change since Token was issued.
	NotModified bool
	Body        []byte
	Token       Token
}

// Fetcher retrieves a resource by key. token is the validation token stored by the
// previous successful retrieval (empty if none) and should be sent as a conditional hint.
type Fetcher interface {
	Fetch(ctx context.Context, key string, token Token) (Response, error)
}

// FetcherFunc adapts an ordinary function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, key string, token Token) (Response, error)

func (f FetcherFunc) Fetch(ctx context.Context, key string, token Token) (Response, error) {
	return f(ctx, key, token)
}

// Decoder turns a successful response body into the cached value.
type Decoder[T any] func(body []byte) (T, error)

// Unwrap returns a Decoder that looks for the top-level JSON field `field` and decodes its value;
// if the body has no such field (or field is empty) the whole body is decoded instead.
//
//	{"tasks": [...]}  -> Unwrap[[]Task]("tasks") decodes the array
//	[...]             -> Unwrap[[]Task]("tasks") decodes the array too
func Unwrap[T any](field string) Decoder[T] {
	return func(body []byte) (T, error) {
		var v T
		if field != "" {
			var obj map[string]json.RawMessage
			if err := json.Unmarshal(body, &obj); err == nil {
				if raw, ok := obj[field]; ok {
					err = json.Unmarshal(raw, &v)
					return v, errors.Wrapf(err, "decoding field %q", field)
				}
			}
		}
		err := json.Unmarshal(body, &v)
		return v, errors.Wrap(err, "decoding body")
	}
}
