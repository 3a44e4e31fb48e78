package domain

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Address identifies a participant, the owner, or the market itself.
// Stored form is EIP-55 checksummed hex.
type Address string

// ParseAddress validates s as a 20-byte hex address and normalizes it.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return "", ErrInvalidAddress.With("%q", s)
	}
	return Address(common.HexToAddress(s).Hex()), nil
}

// MustAddress is ParseAddress for constants and tests.
func MustAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Address) String() string { return string(a) }

// IsZero is true for the empty address and for 0x000...0.
func (a Address) IsZero() bool {
	if a == "" {
		return true
	}
	return common.HexToAddress(string(a)) == (common.Address{})
}

// Valid reports whether a parses as a non-zero hex address.
func (a Address) Valid() bool {
	return common.IsHexAddress(string(a)) && !a.IsZero()
}

// Equal compares addresses ignoring checksum case.
func (a Address) Equal(b Address) bool {
	if a == "" || b == "" {
		return a == b
	}
	return common.HexToAddress(string(a)) == common.HexToAddress(string(b))
}
