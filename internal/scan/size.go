package scan

import (
	"fmt"
	"strings"

	"github.com/docker/go-units"
)

// ArchiveLimit is how many general archives the game loads before it stops
// reading more.
const ArchiveLimit = 235

// ParseSize reads sizes such as "512", "1.5MB" or "2 GiB". Units are binary.
func ParseSize(value string) (int64, error) {
	size, err := units.RAMInBytes(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", value, err)
	}
	if size < 0 {
		return 0, fmt.Errorf("invalid size %q: negative", value)
	}
	return size, nil
}

func FormatSize(size int64) string {
	return units.BytesSize(float64(size))
}
