package models

import "errors"

// Client-caused failures. Handlers translate these into typed error
// events on the peer's own channel; they never mutate shared state.
var (
	ErrInvalidProfile = errors.New("invalid profile")
	ErrInvalidMessage = errors.New("invalid message")
	ErrNotRegistered  = errors.New("not registered")
	ErrNotSearching   = errors.New("not searching")
	ErrNotPaired      = errors.New("not paired")
	ErrRestricted     = errors.New("temporarily restricted")
)
