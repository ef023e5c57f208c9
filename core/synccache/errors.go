package synccache

import (
	"errors"
	"fmt"
)

var (
	// ErrRetrievalFailed matches (errors.Is) every error returned for a failed retrieval.
	ErrRetrievalFailed = errors.New("retrieval failed")
	ErrNilFetcher      = errors.New("synccache: fetcher is nil")

	errNotModifiedWithoutData = errors.New("provider reported not-modified but nothing is cached")
)

// RetrievalError is returned by Cache.Read when the provider (or the decoder) fails.
// Previously cached data is left untouched.
type RetrievalError struct {
	Key string
	Err error
}

func (err *RetrievalError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrRetrievalFailed, err.Key, err.Err)
}

func (err *RetrievalError) Unwrap() error { return err.Err }

func (err *RetrievalError) Is(target error) bool { return target == ErrRetrievalFailed }
