package seal

import (
	"errors"
	"fmt"
)

// ErrAuthentication matches every AuthError via errors.Is.
var ErrAuthentication = errors.New("authentication failure")

// AuthError reports a token that did not authenticate: tampered or
// corrupted ciphertext, a relabeled header, or the wrong key. It is kept
// distinct from I/O errors because it is security relevant.
type AuthError struct {
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failure: %s: %v", e.Reason, e.Err)
	}
	return "authentication failure: " + e.Reason
}

// Unwrap returns the underlying AEAD error, if any.
func (e *AuthError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrAuthentication) true for every AuthError.
func (e *AuthError) Is(target error) bool { return target == ErrAuthentication }

// IsAuthError returns true if err is or wraps an AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}
