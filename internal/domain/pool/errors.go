package pool

import (
	"errors"
	"fmt"
)

var (
	ErrNotPoolResource          = errors.New("resource is not a pool")
	ErrPoolHasNoMembers         = errors.New("pool has no members")
	ErrInvalidPoolConfiguration = errors.New("invalid pool configuration")
	ErrNoPriceForUnit           = errors.New("no price available for the requested unit")
)

// InvalidPoolConfigurationError reports an unsafe pool setup. Matches
// ErrInvalidPoolConfiguration via errors.Is.
type InvalidPoolConfigurationError struct {
	Reason string
}

func (e *InvalidPoolConfigurationError) Error() string {
	return fmt.Sprintf("invalid pool configuration: %s", e.Reason)
}

func (e *InvalidPoolConfigurationError) Unwrap() error {
	return ErrInvalidPoolConfiguration
}
