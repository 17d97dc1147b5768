package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DeriveSubkey expands the encryption secret into an independent key for another purpose
// (cookie signing, for one). info must be unique per purpose.
func DeriveSubkey(secret string, salt []byte, info string, length int) ([]byte, error) {
	h := hkdf.New(sha256.New, []byte(secret), salt, []byte(info))
	k := make([]byte, length)
	if _, err := io.ReadFull(h, k); err != nil {
		return nil, fmt.Errorf("reading from HKDF: %w", err)
	}
	return k, nil
}
