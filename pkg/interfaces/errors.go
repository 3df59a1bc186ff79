/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: errors.go
Description: Error taxonomy for rule synthesis. Item-level errors are skipped and logged,
run-level errors abort generation before any artifact is written.
*/

package interfaces

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidURL is item-level: the observation is skipped
	ErrInvalidURL = errors.New("invalid url")
	// ErrNoTargetDomain aborts generation when no host can be resolved
	ErrNoTargetDomain = errors.New("no target domain")
	// ErrMalformedAssociationData aborts generation on corrupt persisted variable data
	ErrMalformedAssociationData = errors.New("malformed association data")
	// ErrRuleStoreUnavailable wraps any store failure
	ErrRuleStoreUnavailable = errors.New("rule store unavailable")
	// ErrMissingArgument is returned for missing required CLI input
	ErrMissingArgument = errors.New("missing required argument")
)

// URLError carries the offending URL of an item-level failure
type URLError struct {
	URL string
	Err error
}

func (e *URLError) Error() string {
	return fmt.Sprintf("%s %q: %v", ErrInvalidURL, e.URL, e.Err)
}

func (e *URLError) Unwrap() []error {
	return []error{ErrInvalidURL, e.Err}
}

// StoreError wraps a store failure with the operation that failed
func StoreError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrRuleStoreUnavailable, op, err)
}
