// Package crc32c provides CRC32-Castagnoli checksums for snapshot
// integrity. Hardware accelerated where the platform supports it.
package crc32c

import (
	"hash"
	"hash/crc32"
)

var table = crc32.MakeTable(crc32.Castagnoli)

// Sum computes the CRC32C checksum of data.
func Sum(data []byte) uint32 {
	return crc32.Checksum(data, table)
}

// New returns a streaming CRC32C hash.
func New() hash.Hash32 {
	return crc32.New(table)
}
