package fetch

import (
	"fetch-stack/application/fetch/body"
	"fetch-stack/application/fetch/signal"
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrRange reports a numeric argument out of its allowed range.
	ErrRange = errors.New("value out of range")
	// ErrType reports an argument of invalid form.
	ErrType = errors.New("invalid argument")
	// ErrNetwork is matched by every [*NetworkError].
	ErrNetwork = errors.New("network error")

	ErrAborted  = signal.ErrAborted
	ErrBodyUsed = body.ErrBodyUsed
)

// NetworkError reports an exchange which failed before or while receiving the response.
type NetworkError struct {
	cause error
}

func (e *NetworkError) Error() string {
	if e.cause == nil {
		return ErrNetwork.Error()
	}
	return ErrNetwork.Error() + ": " + e.cause.Error()
}

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

func (e *NetworkError) Unwrap() error { return e.cause }

func (e *NetworkError) Cause() error { return e.cause }

// typeError marks err as [ErrType] while keeping it inspectable.
func typeError(err error) error {
	return fmt.Errorf("%w: %w", ErrType, err)
}
