package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
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

// Equals checks if two hashes are equal
func (h Hash) Equals(other Hash) bool {
	return h == other
}

// DataHash fingerprints the data slice a test was run against
type DataHash Hash

func (h DataHash) String() string { return Hash(h).String() }

// IsEmpty checks if the hash is empty
func (h DataHash) IsEmpty() bool { return Hash(h).IsEmpty() }

// ComputeDataHash produces a deterministic fingerprint of the data a test
// consumed: the sorted variable names plus the sample size. Tests that reuse
// the same variables over the same rows collide here, which is exactly what
// the repeated-testing heuristic needs.
func ComputeDataHash(variables []string, sampleSize int) DataHash {
	sorted := make([]string, len(variables))
	copy(sorted, variables)
	sort.Strings(sorted)

	var data strings.Builder
	for _, v := range sorted {
		data.WriteString(v)
		data.WriteString("|")
	}
	data.WriteString(fmt.Sprintf("n=%d", sampleSize))

	return DataHash(NewHash([]byte(data.String())))
}
