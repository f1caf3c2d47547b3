// Package fingerprint derives stable content hashes used as cache keys and
// deterministic RNG seeds across the funnel.
package fingerprint

import (
	"encoding/hex"

	"github.com/cespare/xxhash/v2"
)

// Of returns a hex-encoded content hash of blob. Used as a Candidate's
// code_fingerprint: the cache key for the shuffle verdict cache.
func Of(blob string) string {
	sum := xxhash.Sum64String(blob)
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(sum >> (8 * i))
	}
	return hex.EncodeToString(buf[:])
}

// SeedOf derives a deterministic int64 RNG seed from a fingerprint, so the
// shuffle tester's randomness is reproducible per candidate.
func SeedOf(fingerprint string) int64 {
	return int64(xxhash.Sum64String(fingerprint))
}
