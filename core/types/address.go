package types

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// AddressLength is the raw byte length of participant addresses. The vault
// identifies depositors, creditors and treasuries by opaque 20-byte values
// assigned by the surrounding platform.
const AddressLength = 20

// Address identifies a participant account.
type Address [AddressLength]byte

// ZeroAddress is the empty sentinel; collaborator slots left unset compare
// equal to it.
var ZeroAddress Address

// ParseAddress decodes a hex-encoded address, with or without an 0x prefix.
func ParseAddress(s string) (Address, error) {
	var addr Address
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		trimmed = trimmed[2:]
	}
	if len(trimmed) != AddressLength*2 {
		return addr, fmt.Errorf("address must be %d bytes (got %d hex chars)", AddressLength, len(trimmed))
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("decode address: %w", err)
	}
	copy(addr[:], decoded)
	return addr, nil
}

// Hex returns the canonical lowercase hex rendering with an 0x prefix.
func (a Address) Hex() string {
	return "0x" + hex.EncodeToString(a[:])
}

// String implements fmt.Stringer.
func (a Address) String() string { return a.Hex() }

// IsZero reports whether the address is the empty sentinel.
func (a Address) IsZero() bool { return a == ZeroAddress }

// Bytes returns a copy of the raw address bytes.
func (a Address) Bytes() []byte {
	out := make([]byte, AddressLength)
	copy(out, a[:])
	return out
}

// MarshalText encodes the address as hex for JSON/TOML payloads.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.Hex()), nil
}

// UnmarshalText decodes a hex address.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
