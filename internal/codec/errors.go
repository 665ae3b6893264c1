package codec

import (
	"errors"
	"fmt"
)

// ErrDecode matches every DecodeError via errors.Is.
var ErrDecode = errors.New("decode error")

// DecodeReason categorizes decode failures.
type DecodeReason string

const (
	// ReasonUnknownVersion indicates no decoder is registered for the version.
	ReasonUnknownVersion DecodeReason = "UNKNOWN_VERSION"

	// ReasonTruncated indicates the stream ended before its declared framing.
	ReasonTruncated DecodeReason = "TRUNCATED"

	// ReasonTrailingBytes indicates bytes remain after the last expected item.
	ReasonTrailingBytes DecodeReason = "TRAILING_BYTES"

	// ReasonFieldCount indicates the declared field count does not match.
	ReasonFieldCount DecodeReason = "FIELD_COUNT"

	// ReasonUnknownKind indicates a variant kind this version does not define.
	ReasonUnknownKind DecodeReason = "UNKNOWN_KIND"

	// ReasonMalformed covers wrong field types and invalid CBOR.
	ReasonMalformed DecodeReason = "MALFORMED"
)

// DecodeError reports a payload that cannot be decoded. It is fatal to the
// record and to any projection that includes it.
type DecodeError struct {
	Tag     string
	Version string
	Reason  DecodeReason
	Detail  string
	Err     error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("%s: decode %s/%s", e.Reason, e.Tag, e.Version)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying library error, if any.
func (e *DecodeError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrDecode) true for every DecodeError.
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// UnknownKind builds the error a decoder returns for an undefined kind.
func UnknownKind(kind uint64) *DecodeError {
	return &DecodeError{Reason: ReasonUnknownKind, Detail: fmt.Sprintf("kind %d", kind)}
}

// IsDecodeError returns true if err is or wraps a DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// ReasonOf returns the reason of the first DecodeError in err's chain, or
// the empty reason.
func ReasonOf(err error) DecodeReason {
	var de *DecodeError
	if errors.As(err, &de) {
		return de.Reason
	}
	return ""
}
