package typedb

import (
	"strings"

	"github.com/typedb/typedb-driver-sub001/internal/protocol"
)

// Address is a network endpoint identifying one server replica.
type Address = protocol.Address

// ParseAddress parses a "host:port" string.
func ParseAddress(s string) (Address, error) {
	addr, err := protocol.ParseAddress(s)
	if err != nil {
		return Address{}, ErrInvalidAddressFormat(s, err)
	}
	return addr, nil
}

// Addresses is the seed-address configuration the driver bootstraps from.
type Addresses = protocol.Addresses

// AddressesFromStrings accepts a flat list of "host:port" strings, one per
// seed replica, with no public/private translation.
func AddressesFromStrings(raw ...string) (Addresses, error) {
	out := make(protocol.FlatAddresses, 0, len(raw))
	for _, s := range raw {
		addr, err := ParseAddress(s)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

// AddressesFromTranslationStrings accepts "public=private" pairs, one per
// seed replica.
func AddressesFromTranslationStrings(raw ...string) (Addresses, error) {
	out := make(protocol.TranslatedAddresses, len(raw))
	for _, s := range raw {
		parts := strings.SplitN(s, "=", 2)
		if len(parts) != 2 {
			return nil, ErrInvalidAddressFormat(s, nil)
		}
		pub, err := ParseAddress(parts[0])
		if err != nil {
			return nil, err
		}
		priv, err := ParseAddress(parts[1])
		if err != nil {
			return nil, err
		}
		out[pub] = priv
	}
	return out, nil
}
