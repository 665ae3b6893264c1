package codec

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/fxamacker/cbor/v2"
)

// EncodeFunc serializes a variant with the codec's current version.
type EncodeFunc[V any] func(v V) ([]byte, error)

// DecodeFunc deserializes bytes written by one specific version.
type DecodeFunc[V any] func(data []byte) (V, error)

// Codec is the per-tag registry of wire versions for one variant type V.
//
// Exactly one version is current and used for writing. Every version that
// was ever current must stay registered for reading, because records are
// decoded with the version recorded on them, never with the current one.
//
// A Codec is configured once at package init and is read-only afterwards,
// so it is safe for concurrent use.
type Codec[V any] struct {
	tag      string
	current  string
	encode   EncodeFunc[V]
	decoders map[string]DecodeFunc[V]
}

// New creates a codec for tag whose writes use version current. The decoder
// for current must be registered with Handle before use.
func New[V any](tag, current string, encode EncodeFunc[V]) *Codec[V] {
	return &Codec[V]{
		tag:      tag,
		current:  current,
		encode:   encode,
		decoders: make(map[string]DecodeFunc[V]),
	}
}

// Handle registers the decoder for version and returns the codec for
// chaining. Registering the same version twice panics.
func (c *Codec[V]) Handle(version string, decode DecodeFunc[V]) *Codec[V] {
	if _, exists := c.decoders[version]; exists {
		panic(fmt.Sprintf("codec: %s version %q registered twice", c.tag, version))
	}
	c.decoders[version] = decode
	return c
}

// Tag returns the record tag this codec serves.
func (c *Codec[V]) Tag() string { return c.tag }

// Current returns the version used for writing.
func (c *Codec[V]) Current() string { return c.current }

// Versions returns every readable version, sorted.
func (c *Codec[V]) Versions() []string {
	versions := make([]string, 0, len(c.decoders))
	for v := range c.decoders {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return versions
}

// Serialize encodes v with the current version and returns that version
// alongside the bytes so the caller can stamp it on the record.
func (c *Codec[V]) Serialize(v V) (string, []byte, error) {
	if _, ok := c.decoders[c.current]; !ok {
		return "", nil, fmt.Errorf("serialize %s: current version %q has no decoder", c.tag, c.current)
	}
	data, err := c.encode(v)
	if err != nil {
		return "", nil, fmt.Errorf("serialize %s: %w", c.tag, err)
	}
	return c.current, data, nil
}

// Deserialize decodes data with the decoder registered for version.
// An unregistered version is a DecodeError; there is no fallback.
func (c *Codec[V]) Deserialize(data []byte, version string) (V, error) {
	var zero V
	decode, ok := c.decoders[version]
	if !ok {
		return zero, &DecodeError{
			Tag:     c.tag,
			Version: version,
			Reason:  ReasonUnknownVersion,
		}
	}

	v, err := decode(data)
	if err != nil {
		var de *DecodeError
		if errors.As(err, &de) {
			if de.Tag == "" {
				de.Tag = c.tag
			}
			if de.Version == "" {
				de.Version = version
			}
			return zero, de
		}
		return zero, &DecodeError{Tag: c.tag, Version: version, Reason: ReasonMalformed, Err: err}
	}
	return v, nil
}

// Variant splits an encoded variant into its kind and remaining fields.
// The wire form of every variant is a CBOR array [kind, field...].
func Variant(data []byte) (uint64, []RawMessage, error) {
	fields, err := Fields(data)
	if err != nil {
		return 0, nil, err
	}
	if len(fields) == 0 {
		return 0, nil, &DecodeError{Reason: ReasonFieldCount, Detail: "variant has no kind"}
	}
	var kind uint64
	if err := Field(fields[0], &kind); err != nil {
		return 0, nil, err
	}
	return kind, fields[1:], nil
}

// Fields decodes the top-level CBOR array of data without decoding its
// elements. It fails if data is truncated, is not an array, or carries
// trailing bytes after the array.
func Fields(data []byte) ([]RawMessage, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Reason: ReasonTruncated, Detail: "empty payload"}
	}
	var fields []RawMessage
	if err := Unmarshal(data, &fields); err != nil {
		return nil, classify(err)
	}
	return fields, nil
}

// Expect checks that exactly n fields are present.
func Expect(fields []RawMessage, n int) error {
	if len(fields) != n {
		return &DecodeError{
			Reason: ReasonFieldCount,
			Detail: fmt.Sprintf("got %d fields, want %d", len(fields), n),
		}
	}
	return nil
}

// Field decodes one raw field into dst.
func Field(raw RawMessage, dst any) error {
	if err := Unmarshal(raw, dst); err != nil {
		return classify(err)
	}
	return nil
}

// EncodeVariant encodes kind followed by fields as a CBOR array.
func EncodeVariant(kind uint64, fields ...any) ([]byte, error) {
	arr := make([]any, 0, len(fields)+1)
	arr = append(arr, kind)
	arr = append(arr, fields...)
	return Marshal(arr)
}

// classify maps CBOR library errors onto decode reasons.
func classify(err error) *DecodeError {
	var extra *cbor.ExtraneousDataError
	switch {
	case errors.As(err, &extra):
		return &DecodeError{Reason: ReasonTrailingBytes, Err: err}
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return &DecodeError{Reason: ReasonTruncated, Err: err}
	default:
		return &DecodeError{Reason: ReasonMalformed, Err: err}
	}
}
