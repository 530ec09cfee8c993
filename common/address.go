package common

import (
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/nspcc-dev/neo-go/pkg/util"
)

// EncodeAddress returns base58 text form of the 32-byte identity.
func EncodeAddress(a util.Uint256) string {
	return base58.Encode(a[:])
}

// DecodeAddress parses base58 text form of the 32-byte identity.
func DecodeAddress(s string) (util.Uint256, error) {
	var res util.Uint256

	b, err := base58.Decode(s)
	if err != nil {
		return res, fmt.Errorf("decode base58: %w", err)
	}

	if len(b) != util.Uint256Size {
		return res, fmt.Errorf("invalid address length %d, expected %d", len(b), util.Uint256Size)
	}

	copy(res[:], b)

	return res, nil
}

// IsZero checks whether the identity consists of zero bytes only.
func IsZero(a util.Uint256) bool {
	return a == util.Uint256{}
}
