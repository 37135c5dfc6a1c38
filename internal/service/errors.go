package service

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrModelUnavailable is returned while no model handle is loaded.
var ErrModelUnavailable = errors.New("model not available")

// ErrInvalidInput is returned for uploads that are rejected before inference.
var ErrInvalidInput = errors.New("invalid input")

// ErrInference is returned when the model fails on a decoded image.
var ErrInference = errors.New("inference failed")

// InputError is an ErrInvalidInput carrying a client-facing message.
type InputError struct {
	Msg string
}

func (e *InputError) Error() string {
	return e.Msg
}

// Is makes errors.Is(err, ErrInvalidInput) match.
func (e *InputError) Is(target error) bool {
	return target == ErrInvalidInput
}

func invalidInput(format string, args ...any) error {
	return &InputError{Msg: fmt.Sprintf(format, args...)}
}
