package sync

import (
	"encoding/hex"
	"fmt"
	"hash"
	"io"

	"github.com/spf13/afero"
	"golang.org/x/crypto/blake2b"

	"github.com/sidkik/dbkernel/pkg/errors"
)

// Mocked out for unit testing.
var fs = afero.NewOsFs()

// DigestSize is the size in bytes of a content digest.
const DigestSize = 16

// Digest is the 128-bit BLAKE2b digest of a file's contents.
type Digest [DigestSize]byte

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// MarshalText encodes the digest as hex so that the cache file is readable.
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText parses a hex encoded digest.
func (d *Digest) UnmarshalText(text []byte) error {
	decoded, err := hex.DecodeString(string(text))
	if err != nil {
		return err
	}
	if len(decoded) != DigestSize {
		return fmt.Errorf("digest has %d bytes, expected %d", len(decoded), DigestSize)
	}
	copy(d[:], decoded)
	return nil
}

func newHasher() hash.Hash {
	// New only fails for invalid sizes or keys.
	hasher, err := blake2b.New(DigestSize, nil)
	if err != nil {
		panic(err)
	}
	return hasher
}

func sum(hasher hash.Hash) (d Digest) {
	copy(d[:], hasher.Sum(nil))
	return d
}

// HashBytes returns the digest of `b`.
func HashBytes(b []byte) Digest {
	hasher := newHasher()
	hasher.Write(b)
	return sum(hasher)
}

// HashFile returns the digest of the file at the given path.
func HashFile(path string) (Digest, error) {
	f, err := fs.Open(path)
	if err != nil {
		return Digest{}, errors.WithContext(err, "open")
	}
	defer f.Close()

	hasher := newHasher()
	if _, err := io.Copy(hasher, f); err != nil {
		return Digest{}, errors.WithContext(err, "read")
	}
	return sum(hasher), nil
}
