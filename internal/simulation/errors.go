package simulation

import (
	"context"
	"errors"
)

var (
	ErrInvalidTransition  = errors.New("invalid state transition")
	ErrMissingCredentials = errors.New("missing session credentials")
	ErrNoConnectors       = errors.New("connector list unavailable")
	ErrInvalidConfig      = errors.New("invalid simulation config")
)

// IsCancellation reports whether err stems from a cancelled run.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}

// IsPrecondition reports whether err blocked a transition before anything ran.
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrMissingCredentials) || errors.Is(err, ErrNoConnectors) || errors.Is(err, ErrInvalidConfig)
}
