package seal

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/roach88/dotlog/internal/fsutil"
)

// KeySize is the size in bytes of the shared account key.
const KeySize = 32

// ErrInvalidKey is returned when a key cannot be parsed or has the wrong size.
var ErrInvalidKey = errors.New("invalid key")

// Key is the 256-bit secret shared by every host of one account.
// Distributing it between hosts is outside this package.
type Key [KeySize]byte

// GenerateKey returns a new random key.
func GenerateKey() (Key, error) {
	var k Key
	if _, err := io.ReadFull(rand.Reader, k[:]); err != nil {
		return Key{}, fmt.Errorf("generate key: %w", err)
	}
	return k, nil
}

// ParseKey decodes a key from standard base64.
func ParseKey(s string) (Key, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return Key{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(raw) != KeySize {
		return Key{}, fmt.Errorf("%w: key must be %d bytes, got %d", ErrInvalidKey, KeySize, len(raw))
	}
	var k Key
	copy(k[:], raw)
	return k, nil
}

// Encode returns the key as standard base64, the form stored in the key file.
func (k Key) Encode() string {
	return base64.StdEncoding.EncodeToString(k[:])
}

// fingerprintContext is the BLAKE3 derive-key context for key fingerprints.
const fingerprintContext = "dotlog 2024 key fingerprint v1"

// Fingerprint returns a short, non-secret identifier of the key so two
// hosts can confirm they hold the same key without revealing it.
func (k Key) Fingerprint() string {
	var sum [32]byte
	blake3.DeriveKey(fingerprintContext, k[:], sum[:])
	return hex.EncodeToString(sum[:8])
}

// LoadOrCreateKey reads the key file at path, generating and writing a new
// key if none exists. The returned bool reports whether a key was created.
func LoadOrCreateKey(path string) (Key, bool, error) {
	k, err := LoadKey(path)
	if err == nil {
		return k, false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return Key{}, false, err
	}

	k, err = GenerateKey()
	if err != nil {
		return Key{}, false, err
	}
	if err := SaveKey(path, k); err != nil {
		return Key{}, false, err
	}
	return k, true, nil
}

// LoadKey reads the key file at path.
func LoadKey(path string) (Key, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Key{}, fmt.Errorf("load key: %w", err)
	}
	k, err := ParseKey(string(data))
	if err != nil {
		return Key{}, fmt.Errorf("load key from %s: %w", path, err)
	}
	return k, nil
}

// SaveKey writes k to path with owner-only permissions.
func SaveKey(path string, k Key) error {
	if err := fsutil.WriteFileAtomic(path, []byte(k.Encode()), 0o600); err != nil {
		return fmt.Errorf("save key: %w", err)
	}
	return nil
}
