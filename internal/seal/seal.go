// Package seal provides authenticated symmetric encryption of record
// payloads under the account's shared 256-bit key.
//
// Token format:
//
//	[Version: 1 byte (0x01)] [Nonce: 24 bytes (random)] [Ciphertext+Tag: N+16 bytes]
//
// The AEAD is XChaCha20-Poly1305. The record key is derived from the shared
// key with HKDF-SHA256, so the shared key is never used directly as an AEAD
// key. The version byte and the caller's additional data (the record
// header) are authenticated, so any change to the token, the header, or the
// key makes Unwrap fail.
//
// Authenticity only proves that someone holding the shared key produced the
// token. It does not prove which host produced it: any key holder can write
// a record claiming another host's ID.
package seal

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// TokenVersion is prepended to every token and authenticated as AAD.
const TokenVersion byte = 0x01

// TokenOverhead is the fixed size added to every plaintext:
// 1 (version) + 24 (XChaCha20-Poly1305 nonce) + 16 (Poly1305 tag).
const TokenOverhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

// hkdfInfoRecord separates the record encryption key from any other key
// that may be derived from the shared key later. Changing it invalidates
// every existing record.
var hkdfInfoRecord = []byte("dotlog.record.v1")

// Sealer wraps and unwraps record payloads with a key derived from the
// shared key. It holds no mutable state and is safe for concurrent use.
type Sealer struct {
	recordKey [KeySize]byte
}

// NewSealer derives the record key from the shared key.
func NewSealer(shared Key) (*Sealer, error) {
	s := &Sealer{}
	r := hkdf.New(sha256.New, shared[:], nil, hkdfInfoRecord)
	if _, err := io.ReadFull(r, s.recordKey[:]); err != nil {
		return nil, fmt.Errorf("derive record key: %w", err)
	}
	return s, nil
}

// Wrap encrypts plaintext and binds aad to the result.
func (s *Sealer) Wrap(plaintext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.recordKey[:])
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}

	var nonce [chacha20poly1305.NonceSizeX]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generating random nonce: %w", err)
	}

	output := make([]byte, 1+chacha20poly1305.NonceSizeX, TokenOverhead+len(plaintext))
	output[0] = TokenVersion
	copy(output[1:], nonce[:])

	return aead.Seal(output, nonce[:], plaintext, buildAAD(TokenVersion, aad)), nil
}

// Unwrap authenticates and decrypts a token produced by Wrap with the same
// aad. It fails closed with an AuthError: no plaintext is returned unless
// the whole token authenticates.
func (s *Sealer) Unwrap(token, aad []byte) ([]byte, error) {
	if len(token) < TokenOverhead {
		return nil, &AuthError{Reason: fmt.Sprintf("token is %d bytes, minimum is %d", len(token), TokenOverhead)}
	}

	version := token[0]
	if version != TokenVersion {
		return nil, &AuthError{Reason: fmt.Sprintf("token version %d is not supported (expected %d)", version, TokenVersion)}
	}

	nonce := token[1 : 1+chacha20poly1305.NonceSizeX]
	ciphertext := token[1+chacha20poly1305.NonceSizeX:]

	aead, err := chacha20poly1305.NewX(s.recordKey[:])
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, buildAAD(version, aad))
	if err != nil {
		return nil, &AuthError{Reason: "wrong key, tampered data, or mismatched header", Err: err}
	}
	return plaintext, nil
}

// buildAAD prefixes the caller's additional data with the token version.
func buildAAD(version byte, aad []byte) []byte {
	out := make([]byte, 0, 1+len(aad))
	out = append(out, version)
	return append(out, aad...)
}
