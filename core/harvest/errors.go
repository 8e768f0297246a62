package harvest

import (
	"errors"
	"fmt"

	"listing-harvester/core/record"
)

// Kind classifies a fetch failure.
type Kind int

const (
	// KindTransient failures are retried with backoff.
	KindTransient Kind = iota
	// KindPermanent failures are recorded and never retried in the same run.
	KindPermanent
)

func (k Kind) String() string {
	if k == KindPermanent {
		return "permanent"
	}
	return "transient"
}

// FetchError is a classified failure of one fetch.
type FetchError struct {
	Key        record.EntityKey
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s fetch of %s failed (status %d): %v", e.Kind, e.Key, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s fetch of %s failed: %v", e.Kind, e.Key, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a retryable failure for key.
func Transient(key record.EntityKey, err error) error {
	return &FetchError{Key: key, Kind: KindTransient, Err: err}
}

// Permanent wraps err as a non-retryable failure for key.
func Permanent(key record.EntityKey, err error) error {
	return &FetchError{Key: key, Kind: KindPermanent, Err: err}
}

// Classify returns the kind of err. Errors that carry no classification are transient.
func Classify(err error) Kind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindTransient
}

// AuthError means no valid session could be obtained. It stops the fetch
// phase but leaves the checkpoint intact.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// IsAuth reports whether err is or wraps an *AuthError.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// ErrNoKeys is returned when enumeration yields nothing to harvest.
var ErrNoKeys = errors.New("no entity keys to harvest")
