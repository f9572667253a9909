// Package tenancy validates the tenant context of a request: that a user may act inside an
// organization, reach a workspace or project, present an API key, or consume quota.
//
// Validators never branch on nil rows or repository errors directly. Every read goes through
// a Store whose methods return a Lookup, which is exactly one of Found, NotFound or Failed.
// Business-rule failures become messages in a ValidationResult; only Failed lookups that
// leave the validator unable to decide are surfaced as Go errors.
package tenancy

import (
	"errors"
	"fmt"
)

// LookupState tags the outcome of a Store read
type LookupState uint8

const (
	// StateNotFound means the row does not exist
	StateNotFound LookupState = iota
	// StateFound means Value holds the row
	StateFound
	// StateFailed means the store could not answer; Err holds the cause
	StateFailed
)

func (s LookupState) String() string {
	switch s {
	case StateFound:
		return "found"
	case StateNotFound:
		return "not_found"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("LookupState(%d)", uint8(s))
	}
}

// Lookup is the tagged result of a Store read
type Lookup[T any] struct {
	state LookupState
	value T
	err   error
}

var errUnknownLookupFailure = errors.New("lookup failed")

// Found wraps a located value
func Found[T any](v T) Lookup[T] {
	return Lookup[T]{state: StateFound, value: v}
}

// NotFound reports a missing row
func NotFound[T any]() Lookup[T] {
	return Lookup[T]{state: StateNotFound}
}

// Failed reports an infrastructure failure
func Failed[T any](err error) Lookup[T] {
	if err == nil {
		err = errUnknownLookupFailure
	}
	return Lookup[T]{state: StateFailed, err: err}
}

// State returns the tag
func (l Lookup[T]) State() LookupState { return l.state }

// Value returns the located value, or the zero value unless State is StateFound
func (l Lookup[T]) Value() T { return l.value }

// Err returns the failure cause, or nil unless State is StateFailed
func (l Lookup[T]) Err() error { return l.err }

// FromRepo adapts the repository convention of returning (nil, nil) for a missing row
func FromRepo[T any](v *T, err error) Lookup[*T] {
	switch {
	case err != nil:
		return Failed[*T](err)
	case v == nil:
		return NotFound[*T]()
	default:
		return Found(v)
	}
}

// FromList adapts a list query; an empty list is NotFound
func FromList[T any](v []T, err error) Lookup[[]T] {
	switch {
	case err != nil:
		return Failed[[]T](err)
	case len(v) == 0:
		return NotFound[[]T]()
	default:
		return Found(v)
	}
}
