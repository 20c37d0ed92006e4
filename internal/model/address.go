package model

import "fmt"

// Address is an opaque 32-bit guest address.
//
// The zero Address means "unresolved". Inference code compares addresses
// for identity (composite detection, base-change tracking) but never does
// arithmetic on them; offsetting is confined to the resolver and decoder
// via Offset.
type Address struct {
	v uint32
}

// AddressOf wraps a raw guest address. Only the resolver should call this
// with values read from memory; everything else receives Addresses from it.
func AddressOf(v uint32) Address {
	return Address{v: v}
}

// IsZero reports whether the address is unresolved.
func (a Address) IsZero() bool {
	return a.v == 0
}

// Uint32 returns the raw address value.
func (a Address) Uint32() uint32 {
	return a.v
}

// Offset returns the raw address off bytes past a.
func (a Address) Offset(off uint32) uint32 {
	return a.v + off
}

// String formats the address as 0x%08X, or "--" when unresolved.
func (a Address) String() string {
	if a.v == 0 {
		return "--"
	}
	return fmt.Sprintf("0x%08X", a.v)
}

// MarshalText renders the address in hex for JSON output.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}
