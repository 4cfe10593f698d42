package ba2

import (
	"errors"
	"fmt"
)

var (
	ErrCorrupted    = errors.New("corrupted archive")
	ErrInvalidMagic = errors.New("invalid archive magic")
)

type CorruptedError struct {
	Path   string
	Reason string
}

func (e *CorruptedError) Error() string {
	return fmt.Sprintf("corrupted archive %s: %s", e.Path, e.Reason)
}

func (e *CorruptedError) Unwrap() error {
	return ErrCorrupted
}

type InvalidMagicError struct {
	Path  string
	Found [4]byte
}

func (e *InvalidMagicError) Error() string {
	return fmt.Sprintf("invalid magic in %s: expected %q, found %q", e.Path, string(Magic[:]), string(e.Found[:]))
}

func (e *InvalidMagicError) Unwrap() error {
	return ErrInvalidMagic
}
