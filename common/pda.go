package common

import (
	"filippo.io/edwards25519"
	"github.com/nspcc-dev/neo-go/pkg/crypto/hash"
	"github.com/nspcc-dev/neo-go/pkg/util"
)

const (
	// MaxSeeds is the maximum number of seeds (incl. bump) of the derived
	// address.
	MaxSeeds = 16
	// MaxSeedLen is the maximum length of a single seed.
	MaxSeedLen = 32

	pdaMarker = "ProgramDerivedAddress"
)

// Seeds is an ordered list of byte strings an address is derived from.
type Seeds [][]byte

// WithBump returns a copy of the seed list with the bump byte appended as the
// last seed.
func (s Seeds) WithBump(bump uint8) Seeds {
	res := make(Seeds, len(s), len(s)+1)
	copy(res, s)
	return append(res, []byte{bump})
}

// CreateProgramAddress computes the address derived from seeds (bump
// included) under the program. Addresses that are valid curve points have a
// private key, so they are rejected with ErrInvalidSeeds.
func CreateProgramAddress(seeds Seeds, program util.Uint256) (util.Uint256, error) {
	if len(seeds) > MaxSeeds {
		return util.Uint256{}, ErrInvalidSeeds
	}

	n := len(program) + len(pdaMarker)
	for i := range seeds {
		if len(seeds[i]) > MaxSeedLen {
			return util.Uint256{}, ErrInvalidSeeds
		}
		n += len(seeds[i])
	}

	buf := make([]byte, 0, n)
	for i := range seeds {
		buf = append(buf, seeds[i]...)
	}
	buf = append(buf, program[:]...)
	buf = append(buf, pdaMarker...)

	res := hash.Sha256(buf)
	if IsOnCurve(res) {
		return util.Uint256{}, ErrInvalidSeeds
	}

	return res, nil
}

// FindProgramAddress searches for the first bump (starting from 255) giving
// a valid derived address for seeds under the program.
func FindProgramAddress(seeds Seeds, program util.Uint256) (util.Uint256, uint8, error) {
	for bump := 255; bump >= 0; bump-- {
		addr, err := CreateProgramAddress(seeds.WithBump(uint8(bump)), program)
		if err == nil {
			return addr, uint8(bump), nil
		}
		if len(seeds) >= MaxSeeds {
			return util.Uint256{}, 0, err
		}
	}

	return util.Uint256{}, 0, ErrInvalidSeeds
}

// IsOnCurve checks whether the identity is a valid compressed ed25519 point,
// i.e. whether it may have a private key.
func IsOnCurve(a util.Uint256) bool {
	_, err := new(edwards25519.Point).SetBytes(a[:])
	return err == nil
}
