// Package identity defines the address and context types shared by the
// delegation engine, the release registry, and their consumers.
package identity

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// Identity is a 160-bit account address. The zero value means "absent".
type Identity [20]byte

// Context is a 256-bit workspace isolation identifier. Grants and membership
// are scoped to exactly one context; the zero value is never a valid scope.
type Context [32]byte

// Zero reports whether the identity is the zero address.
func (id Identity) Zero() bool {
	return id == Identity{}
}

// String renders the identity as 0x-prefixed lowercase hex.
func (id Identity) String() string {
	return "0x" + hex.EncodeToString(id[:])
}

// ParseIdentity decodes a 0x-prefixed or bare 40-character hex address.
func ParseIdentity(value string) (Identity, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(strings.ToLower(value)), "0x")
	if len(raw) != hex.EncodedLen(len(Identity{})) {
		return Identity{}, fmt.Errorf("identity must be %d hex characters", hex.EncodedLen(len(Identity{})))
	}
	var id Identity
	if _, err := hex.Decode(id[:], []byte(raw)); err != nil {
		return Identity{}, fmt.Errorf("decode identity: %w", err)
	}
	return id, nil
}

// Zero reports whether the context is the zero value.
func (c Context) Zero() bool {
	return c == Context{}
}

// String renders the context as 0x-prefixed lowercase hex.
func (c Context) String() string {
	return "0x" + hex.EncodeToString(c[:])
}

// ParseContext decodes a 0x-prefixed or bare 64-character hex context.
func ParseContext(value string) (Context, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(strings.ToLower(value)), "0x")
	if len(raw) != hex.EncodedLen(len(Context{})) {
		return Context{}, fmt.Errorf("context must be %d hex characters", hex.EncodedLen(len(Context{})))
	}
	var c Context
	if _, err := hex.Decode(c[:], []byte(raw)); err != nil {
		return Context{}, fmt.Errorf("decode context: %w", err)
	}
	return c, nil
}

// NewContext returns a random non-zero context identifier.
func NewContext() (Context, error) {
	var c Context
	for {
		if _, err := rand.Read(c[:]); err != nil {
			return Context{}, fmt.Errorf("read random bytes: %w", err)
		}
		if !c.Zero() {
			return c, nil
		}
	}
}
