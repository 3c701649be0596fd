package types

import "errors"

// ErrRange is matched by every invalid-argument error in this module.
var ErrRange = errors.New("argument out of range")

type rangeError struct{ s string }

func (e *rangeError) Error() string { return e.s }

func (e *rangeError) Is(err error) bool { return err == ErrRange }

// NewRangeError returns an error with the given text for which
// errors.Is(err, ErrRange) holds.
func NewRangeError(s string) error {
	return &rangeError{s}
}
