package record

import (
	"fmt"

	"github.com/roach88/dotlog/internal/codec"
	"github.com/roach88/dotlog/internal/host"
)

// envelope is the CBOR wire form of a Record in export files.
type envelope struct {
	_         struct{} `cbor:",toarray"`
	Host      []byte
	Tag       string
	Version   string
	Idx       uint64
	Timestamp int64
	Data      []byte
}

// MarshalCBOR implements cbor.Marshaler.
func (r Record) MarshalCBOR() ([]byte, error) {
	return codec.Marshal(envelope{
		Host:      r.Host[:],
		Tag:       r.Tag,
		Version:   r.Version,
		Idx:       r.Idx,
		Timestamp: r.Timestamp,
		Data:      r.Data,
	})
}

// UnmarshalCBOR implements cbor.Unmarshaler. The decoded record is
// validated the same way New validates a fresh one.
func (r *Record) UnmarshalCBOR(data []byte) error {
	var env envelope
	if err := codec.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decode record envelope: %w", err)
	}
	if len(env.Host) != len(host.Nil) {
		return fmt.Errorf("%w: host id is %d bytes", ErrInvalid, len(env.Host))
	}
	var h host.ID
	copy(h[:], env.Host)

	rec, err := New(h, env.Tag, env.Version, env.Idx, env.Timestamp, env.Data)
	if err != nil {
		return err
	}
	*r = rec
	return nil
}
