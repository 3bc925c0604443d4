package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// Short returns the first 12 hex characters, enough for log lines
func (h Hash) Short() string {
	if len(h) <= 12 {
		return string(h)
	}
	return string(h[:12])
}

// ComputeFoldHash fingerprints a fold assignment: subject count, seed and the
// ordered test blocks. Identical seeds and inputs yield identical hashes.
func ComputeFoldHash(n int, seed int64, testBlocks [][]int) Hash {
	buf := make([]byte, 0, 16+8*n+8*len(testBlocks))
	buf = binary.BigEndian.AppendUint64(buf, uint64(n))
	buf = binary.BigEndian.AppendUint64(buf, uint64(seed))
	for _, block := range testBlocks {
		buf = binary.BigEndian.AppendUint64(buf, uint64(len(block)))
		for _, idx := range block {
			buf = binary.BigEndian.AppendUint64(buf, uint64(idx))
		}
	}
	return NewHash(buf)
}
