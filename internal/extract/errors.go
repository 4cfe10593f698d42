package extract

import (
	"errors"
	"fmt"
)

var ErrArchiveNotFound = errors.New("archive not found")

type ArchiveNotFoundError struct {
	Path string
}

func (e *ArchiveNotFoundError) Error() string {
	return fmt.Sprintf("archive not found: %s", e.Path)
}

func (e *ArchiveNotFoundError) Unwrap() error {
	return ErrArchiveNotFound
}
