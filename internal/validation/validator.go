package validation

import (
	"errors"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/evildarkarchon/unpackrr/internal/ba2"
)

var (
	ErrPathTraversal  = errors.New("path traversal detected")
	ErrInvalidBatchID = errors.New("invalid batch id")
	ErrNotAnArchive   = errors.New("path is not a ba2 archive")
	ErrEmptyPath      = errors.New("path is required")
)

var batchIDRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-4[0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`)

func ValidateBatchID(id string) error {
	if !batchIDRegex.MatchString(id) {
		return ErrInvalidBatchID
	}
	return nil
}

// SanitizePath resolves requested against basePath and rejects results that
// escape it. An empty basePath disables confinement; an empty requested path
// means basePath itself.
func SanitizePath(basePath, requested string) (string, error) {
	if requested == "" {
		if basePath == "" {
			return "", ErrEmptyPath
		}
		return filepath.Abs(basePath)
	}

	if basePath == "" {
		return filepath.Abs(requested)
	}

	absBasePath, err := filepath.Abs(basePath)
	if err != nil {
		return "", err
	}

	target := requested
	if !filepath.IsAbs(target) {
		target = filepath.Join(absBasePath, target)
	}
	target = filepath.Clean(target)

	relPath, err := filepath.Rel(absBasePath, target)
	if err != nil {
		return "", ErrPathTraversal
	}
	if relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
		return "", ErrPathTraversal
	}

	return target, nil
}

// SanitizeArchivePath is SanitizePath plus a .ba2 extension check.
func SanitizeArchivePath(basePath, requested string) (string, error) {
	if requested == "" {
		return "", ErrEmptyPath
	}
	path, err := SanitizePath(basePath, requested)
	if err != nil {
		return "", err
	}
	if !strings.EqualFold(filepath.Ext(path), ba2.Extension) {
		return "", ErrNotAnArchive
	}
	return path, nil
}

// ValidateDestination accepts an absolute destination inside basePath, or a
// relative one that does not climb out of the archive's folder.
func ValidateDestination(basePath, destination string) (string, error) {
	if destination == "" {
		return "", nil
	}
	if filepath.IsAbs(destination) {
		return SanitizePath(basePath, destination)
	}

	clean := filepath.Clean(destination)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", ErrPathTraversal
	}
	return clean, nil
}
