// Package mlserr categorizes the failure modes of the ratchet tree core.
//
// Per the error handling design, InvalidArgument indicates a programmer
// error (out-of-range index, bad tree shape) and is never returned: the
// function panics instead. ProtocolMismatch, CryptoFailure, and
// MalformedWire are returned to the caller and leave state untouched.
package mlserr

import "fmt"

// ErrProtocolMismatch wraps a remote-input failure: wrong prior_epoch,
// unknown operation tag, mismatched vector lengths, or a DirectPath
// derived-key mismatch. The handshake is rejected without mutating state.
var ErrProtocolMismatch = fmt.Errorf("mlserr: protocol mismatch")

// ErrCryptoFailure wraps a signature, HMAC, or ECIES verification failure.
var ErrCryptoFailure = fmt.Errorf("mlserr: crypto failure")

// ErrMalformedWire wraps a deserialization-boundary failure: a length
// prefix overrunning the buffer, or a non-canonical enum tag.
var ErrMalformedWire = fmt.Errorf("mlserr: malformed wire data")

// ProtocolMismatch wraps err as a protocol-level rejection, annotated
// with msg.
func ProtocolMismatch(msg string, err error) error {
	if err == nil {
		return fmt.Errorf("%s: %w", msg, ErrProtocolMismatch)
	}
	return fmt.Errorf("%s: %w: %v", msg, ErrProtocolMismatch, err)
}

// CryptoFailure wraps err as a cryptographic rejection, annotated with msg.
func CryptoFailure(msg string, err error) error {
	if err == nil {
		return fmt.Errorf("%s: %w", msg, ErrCryptoFailure)
	}
	return fmt.Errorf("%s: %w: %v", msg, ErrCryptoFailure, err)
}

// MalformedWire wraps err as a deserialization-boundary rejection,
// annotated with msg.
func MalformedWire(msg string, err error) error {
	if err == nil {
		return fmt.Errorf("%s: %w", msg, ErrMalformedWire)
	}
	return fmt.Errorf("%s: %w: %v", msg, ErrMalformedWire, err)
}

// Invalid panics to signal a contract violation (InvalidArgument):
// an out-of-range node index, num_leaves == 0, an even num_nodes, and
// similar caller bugs that must never reach production logic silently.
func Invalid(format string, args ...interface{}) {
	panic(fmt.Sprintf("mlserr: invalid argument: "+format, args...))
}
