package framing

import (
	"errors"
)

var (
	ErrUnknownProfile = errors.New("unknown framing profile")
	ErrInvalidProfile = errors.New("invalid framing profile")
)
