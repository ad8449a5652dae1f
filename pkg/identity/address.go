// Package identity models the principals of the ledger: wallet addresses,
// external source identities, and the bearer tokens the API issues for them.
package identity

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// AddressLength is the byte length of a wallet address.
const AddressLength = 20

// Address is a 20-byte account identifier rendered as EIP-55 checksummed hex.
type Address [AddressLength]byte

// ZeroAddress is the unset address.
var ZeroAddress Address

// ParseAddress decodes a 0x-prefixed hex address. All-lowercase and
// all-uppercase inputs are accepted as-is; mixed-case inputs must carry a
// valid EIP-55 checksum.
func ParseAddress(s string) (Address, error) {
	var a Address
	raw := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(raw) != 2*AddressLength {
		return a, fmt.Errorf("identity: invalid address length %q", s)
	}
	if _, err := hex.Decode(a[:], []byte(raw)); err != nil {
		return a, fmt.Errorf("identity: invalid address %q: %w", s, err)
	}
	if raw != strings.ToLower(raw) && raw != strings.ToUpper(raw) {
		if a.Hex()[2:] != raw {
			return Address{}, fmt.Errorf("identity: bad checksum for address %q", s)
		}
	}
	return a, nil
}

// MustParseAddress is ParseAddress for constants and tests.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// LabelAddress derives a deterministic address from a label. It is used for
// system accounts such as the ledger's custody account.
func LabelAddress(label string) Address {
	h := keccak256([]byte(label))
	var a Address
	copy(a[:], h[len(h)-AddressLength:])
	return a
}

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// Hex returns the EIP-55 checksummed representation.
func (a Address) Hex() string {
	lower := hex.EncodeToString(a[:])
	hash := keccak256([]byte(lower))

	out := make([]byte, len(lower))
	for i := 0; i < len(lower); i++ {
		c := lower[i]
		if c >= 'a' && c <= 'f' {
			nibble := hash[i/2]
			if i%2 == 0 {
				nibble >>= 4
			}
			if nibble&0x0f >= 8 {
				c -= 'a' - 'A'
			}
		}
		out[i] = c
	}
	return "0x" + string(out)
}

func (a Address) String() string {
	return a.Hex()
}

// MarshalText lets addresses serve as JSON values and map keys.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.Hex()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func keccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write(data)
	return h.Sum(nil)
}
