package cache

import (
	"crypto/sha256"
	_ "crypto/sha512"
	"encoding/hex"

	"github.com/opencontainers/go-digest"
)

// Hash computes a SHA-256 hash of the input data.
// Returns the full 64-character hex string.
func Hash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// Digest returns the canonical sha256 digest of data, in the
// "sha256:<hex>" form used for artifact keys.
func Digest(data []byte) digest.Digest {
	return digest.FromBytes(data)
}

// Verify reports whether data hashes to d. The algorithm is taken from d, so
// sha512 digests published by a registry are checked with sha512.
func Verify(d digest.Digest, data []byte) error {
	if err := d.Validate(); err != nil {
		return &IntegrityError{Expected: d, Cause: err}
	}
	v := d.Verifier()
	_, _ = v.Write(data)
	if !v.Verified() {
		return &IntegrityError{Expected: d, Actual: d.Algorithm().FromBytes(data)}
	}
	return nil
}
