// Package ba2 reads the fixed-size header at the start of Bethesda BA2
// archives.
package ba2

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/evildarkarchon/unpackrr/internal/logging"

	"go.uber.org/zap"
)

const (
	HeaderSize = 24
	Extension  = ".ba2"

	TypeGeneral = "GNRL"
	TypeTexture = "DX10"
)

var Magic = [4]byte{'B', 'T', 'D', 'X'}

// Header layout, all fields little-endian:
//
//	0..4   magic "BTDX"
//	4..8   version
//	8..12  archive type, NUL padded
//	12..16 file count
//	16..24 name table offset
type Header struct {
	Magic       [4]byte `json:"-"`
	Version     uint32  `json:"version"`
	ArchiveType string  `json:"archive_type"`
	FileCount   uint32  `json:"file_count"`
	NamesOffset uint64  `json:"names_offset"`
}

func (h *Header) IsGeneral() bool {
	return h.ArchiveType == TypeGeneral
}

func (h *Header) IsTexture() bool {
	return h.ArchiveType == TypeTexture
}

type Codec struct {
	logger *logging.Logger
}

func NewCodec(logger *logging.Logger) *Codec {
	return &Codec{logger: logger}
}

// Parse reads exactly HeaderSize bytes from r. path is only used to label
// errors and log lines.
func (c *Codec) Parse(r io.Reader, path string) (*Header, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, &CorruptedError{
			Path:   path,
			Reason: fmt.Sprintf("failed to read header: %v", err),
		}
	}

	header := &Header{
		Version:     binary.LittleEndian.Uint32(buf[4:8]),
		ArchiveType: decodeTag(buf[8:12]),
		FileCount:   binary.LittleEndian.Uint32(buf[12:16]),
		NamesOffset: binary.LittleEndian.Uint64(buf[16:24]),
	}
	copy(header.Magic[:], buf[0:4])

	if header.Magic != Magic {
		return nil, &InvalidMagicError{Path: path, Found: header.Magic}
	}

	if !header.IsGeneral() && !header.IsTexture() {
		c.logger.Warn("unknown archive type",
			zap.String("path", path),
			zap.String("archive_type", header.ArchiveType))
	}

	return header, nil
}

func (c *Codec) ParseFile(path string) (*Header, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %s: %w", path, err)
	}
	defer file.Close()

	return c.Parse(file, path)
}

// IsValid reports whether path starts with a parseable header. It never
// returns an error.
func (c *Codec) IsValid(path string) bool {
	_, err := c.ParseFile(path)
	return err == nil
}

func (c *Codec) FileCount(path string) (uint32, error) {
	header, err := c.ParseFile(path)
	if err != nil {
		return 0, err
	}
	return header.FileCount, nil
}

func decodeTag(raw []byte) string {
	return strings.ToValidUTF8(string(bytes.TrimRight(raw, "\x00")), "�")
}
