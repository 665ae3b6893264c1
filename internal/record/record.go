// Package record defines the immutable, encrypted log entry that every
// synced data type is stored as.
//
// A Record is identified by (Host, Tag, Idx). Idx is the record's position
// in its host's log for that tag and is only meaningful within that log.
// Timestamp places the record in the global order used for replay:
//
//	ORDER BY timestamp ASC, host ASC, idx ASC
//
// Records are created exactly once, by the store facade at push time, and
// are never updated. Deletion is an appended tombstone variant.
package record

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/roach88/dotlog/internal/codec"
	"github.com/roach88/dotlog/internal/host"
)

// ErrInvalid is returned by New when a required field is missing.
var ErrInvalid = errors.New("invalid record")

// Header is every record field except the ciphertext. Its canonical
// encoding is bound to the ciphertext as AEAD additional data, so moving
// ciphertext to a different host, tag, idx, version or timestamp fails
// authentication.
type Header struct {
	Host      host.ID
	Tag       string
	Version   string
	Idx       uint64
	Timestamp int64 // Unix nanoseconds
}

// Record is one immutable, encrypted log entry.
type Record struct {
	Header
	Data []byte // Ciphertext token produced by seal.Wrap
}

// New builds a record. Every field is required; none is defaulted.
func New(h host.ID, tag, version string, idx uint64, timestamp int64, data []byte) (Record, error) {
	hdr := Header{Host: h, Tag: tag, Version: version, Idx: idx, Timestamp: timestamp}
	if err := hdr.Validate(); err != nil {
		return Record{}, err
	}
	if len(data) == 0 {
		return Record{}, fmt.Errorf("%w: empty data", ErrInvalid)
	}
	return Record{Header: hdr, Data: bytes.Clone(data)}, nil
}

// Validate checks that the header fields are set.
func (h Header) Validate() error {
	switch {
	case h.Host.IsNil():
		return fmt.Errorf("%w: nil host", ErrInvalid)
	case h.Tag == "":
		return fmt.Errorf("%w: empty tag", ErrInvalid)
	case h.Version == "":
		return fmt.Errorf("%w: empty version", ErrInvalid)
	case h.Timestamp <= 0:
		return fmt.Errorf("%w: non-positive timestamp %d", ErrInvalid, h.Timestamp)
	}
	return nil
}

// aadDomain separates record headers from any other CBOR structure that
// might be authenticated under the same key.
const aadDomain = "dotlog/record/v1"

// AAD returns the canonical CBOR encoding of the header used as AEAD
// additional data.
func (h Header) AAD() []byte {
	data, err := codec.Marshal([]any{aadDomain, h.Host[:], h.Tag, h.Version, h.Idx, h.Timestamp})
	if err != nil {
		// Encoding a fixed-shape array of primitives cannot fail.
		panic(fmt.Sprintf("record: encode header: %v", err))
	}
	return data
}

// Less orders records globally: by timestamp, then host, then idx.
func Less(a, b Record) bool {
	return Compare(a, b) < 0
}

// Compare returns -1, 0 or 1 following the global order.
func Compare(a, b Record) int {
	switch {
	case a.Timestamp < b.Timestamp:
		return -1
	case a.Timestamp > b.Timestamp:
		return 1
	}
	if c := a.Host.Compare(b.Host); c != 0 {
		return c
	}
	switch {
	case a.Idx < b.Idx:
		return -1
	case a.Idx > b.Idx:
		return 1
	}
	return 0
}

// Equal reports whether two records are identical, ciphertext included.
func Equal(a, b Record) bool {
	return a.Header == b.Header && bytes.Equal(a.Data, b.Data)
}

// String returns the record's coordinates for logs and error messages.
func (h Header) String() string {
	return fmt.Sprintf("%s/%s#%d", h.Host, h.Tag, h.Idx)
}
