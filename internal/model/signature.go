package model

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// Signature is the provider-issued continuity token carried between turns.
// The guardian never inspects it: it is received from the caller, forwarded
// to the provider byte-for-byte, and the provider's replacement is handed
// back. The zero value is the valid "absent" state of a first turn.
type Signature struct {
	b []byte
}

// NewSignature wraps raw provider bytes. The input is copied.
func NewSignature(b []byte) Signature {
	if len(b) == 0 {
		return Signature{}
	}
	return Signature{b: bytes.Clone(b)}
}

// ParseSignature decodes the base64 wire form used by callers.
// An empty string yields the absent signature.
func ParseSignature(s string) (Signature, error) {
	if s == "" {
		return Signature{}, nil
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return Signature{}, fmt.Errorf("invalid signature encoding: %w", err)
	}
	return NewSignature(b), nil
}

// IsZero reports whether the signature is absent.
func (s Signature) IsZero() bool { return len(s.b) == 0 }

// Bytes returns a copy of the raw token.
func (s Signature) Bytes() []byte { return bytes.Clone(s.b) }

// Equal reports byte equality.
func (s Signature) Equal(o Signature) bool { return bytes.Equal(s.b, o.b) }

// Encode returns the base64 wire form, or "" when absent.
func (s Signature) Encode() string {
	if s.IsZero() {
		return ""
	}
	return base64.StdEncoding.EncodeToString(s.b)
}

// Digest returns a short SHA-256 fingerprint safe for logs.
func (s Signature) Digest() string {
	if s.IsZero() {
		return ""
	}
	h := sha256.Sum256(s.b)
	return "sha256:" + hex.EncodeToString(h[:8])
}

// String never prints the token.
func (s Signature) String() string {
	if s.IsZero() {
		return "signature(absent)"
	}
	return "signature(" + s.Digest() + ")"
}

// GoString keeps %#v from leaking the token.
func (s Signature) GoString() string { return s.String() }

// MarshalText encodes the wire form for API responses.
func (s Signature) MarshalText() ([]byte, error) {
	return []byte(s.Encode()), nil
}

// UnmarshalText decodes the wire form.
func (s *Signature) UnmarshalText(text []byte) error {
	parsed, err := ParseSignature(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
