package util

import (
	"github.com/OneOfOne/xxhash"
)

// Checksum32 is the page and redo frame checksum.
func Checksum32(data []byte) uint32 {
	return xxhash.Checksum32(data)
}
