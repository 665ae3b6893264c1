// Package host identifies the device that writes a record log.
//
// A host ID is a UUIDv7 generated once per installation and persisted in
// the data directory. It partitions the record store (each host owns its
// own idx sequence) and breaks timestamp ties in the global replay order.
// It is a label, not a credential: nothing cryptographic is attached to it.
package host

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/dotlog/internal/fsutil"
)

// ID is the identifier of one host.
type ID uuid.UUID

// Nil is the zero ID. It is never a valid host.
var Nil ID

// ErrInvalidID is returned when a stored or supplied host ID cannot be used.
var ErrInvalidID = errors.New("invalid host id")

// Generator produces new host IDs.
// Implemented by UUIDv7Generator (production) and testutil.FixedHostGenerator (tests).
type Generator interface {
	Generate() ID
}

// UUIDv7Generator generates time-sortable UUIDv7 host IDs.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 host ID.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() ID {
	return ID(uuid.Must(uuid.NewV7()))
}

// New returns a fresh UUIDv7 host ID.
func New() ID {
	return UUIDv7Generator{}.Generate()
}

// Parse accepts the hyphenated form or the 32 character hex form used in
// the host_id file.
func Parse(s string) (ID, error) {
	u, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return Nil, fmt.Errorf("%w: %v", ErrInvalidID, err)
	}
	if u == uuid.Nil {
		return Nil, fmt.Errorf("%w: nil uuid", ErrInvalidID)
	}
	return ID(u), nil
}

// MustParse is like Parse but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustParse(s string) ID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// String returns the canonical hyphenated form. This is the form stored in
// the database, so byte order of the string equals byte order of the UUID.
func (id ID) String() string {
	return uuid.UUID(id).String()
}

// Simple returns the 32 character hex form without hyphens.
func (id ID) Simple() string {
	return hex.EncodeToString(id[:])
}

// IsNil reports whether id is the zero ID.
func (id ID) IsNil() bool {
	return id == Nil
}

// Compare orders host IDs bytewise.
func (id ID) Compare(other ID) int {
	return bytes.Compare(id[:], other[:])
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Load reads the host ID stored at path.
func Load(path string) (ID, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Nil, fmt.Errorf("load host id: %w", err)
	}
	id, err := Parse(string(data))
	if err != nil {
		return Nil, fmt.Errorf("load host id from %s: %w", path, err)
	}
	return id, nil
}

// LoadOrCreate reads the host ID stored at path. If the file does not exist
// a new ID is generated with gen and written there. The returned bool
// reports whether a new ID was created.
//
// An existing but unparsable file is an error; the ID is never silently
// regenerated because that would fork this device into a new host.
func LoadOrCreate(path string, gen Generator) (ID, bool, error) {
	id, err := Load(path)
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return Nil, false, err
	}

	if gen == nil {
		gen = UUIDv7Generator{}
	}
	id = gen.Generate()
	if id.IsNil() {
		return Nil, false, fmt.Errorf("create host id: %w: generator returned nil", ErrInvalidID)
	}

	if err := fsutil.WriteFileAtomic(path, []byte(id.Simple()), 0o600); err != nil {
		return Nil, false, fmt.Errorf("create host id: %w", err)
	}
	return id, true, nil
}
