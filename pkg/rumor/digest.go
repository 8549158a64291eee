package rumor

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// DigestSize is the size of a rumor digest in bytes.
const DigestSize = 32

// Digest is the SHA3-256 hash of a rumors payload, used to deduplicate
// rumors.
type Digest [DigestSize]byte

// DigestOf returns the digest of the given payload.
func DigestOf(payload []byte) Digest {
	return Digest(sha3.Sum256(payload))
}

// ParseDigest parses a hex encoded digest.
func ParseDigest(s string) (Digest, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Digest{}, fmt.Errorf("decode hex: %w", err)
	}
	if len(b) != DigestSize {
		return Digest{}, fmt.Errorf("invalid digest size: %d", len(b))
	}
	var d Digest
	copy(d[:], b)
	return d, nil
}

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Digest) UnmarshalText(b []byte) error {
	parsed, err := ParseDigest(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func compareDigests(a, b Digest) int {
	return bytes.Compare(a[:], b[:])
}
