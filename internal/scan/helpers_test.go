package scan

import (
	"encoding/binary"
	"os"
	"path/filepath"

	"github.com/evildarkarchon/unpackrr/internal/ba2"
)

func archiveBytes(fileCount uint32, padding int) []byte {
	buf := make([]byte, ba2.HeaderSize+padding)
	copy(buf[0:4], "BTDX")
	binary.LittleEndian.PutUint32(buf[4:8], 1)
	copy(buf[8:12], ba2.TypeGeneral)
	binary.LittleEndian.PutUint32(buf[12:16], fileCount)
	return buf
}

func writeFile(root, folder, name string, data []byte) string {
	dir := filepath.Join(root, folder)
	if err := os.MkdirAll(dir, 0755); err != nil {
		panic(err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		panic(err)
	}
	return path
}
