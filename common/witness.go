package common

import (
	"fmt"

	"github.com/nspcc-dev/neo-go/pkg/util"
)

// Witness is an account as seen by a signature check.
type Witness interface {
	Address() util.Uint256
	IsSigner() bool
}

// Owned is an account as seen by an ownership check.
type Owned interface {
	Address() util.Uint256
	Owner() util.Uint256
}

// CheckWitness checks that the account signed the transaction. It returns
// ErrMissingRequiredSignature on fail.
func CheckWitness(acc Witness) error {
	if !acc.IsSigner() {
		return fmt.Errorf("%s: %w", EncodeAddress(acc.Address()), ErrMissingRequiredSignature)
	}
	return nil
}

// CheckOwnerWitness checks that the account signed the transaction and that
// it is the expected authority. It returns ErrMissingRequiredSignature or
// ErrIncorrectAuthority on fail.
func CheckOwnerWitness(acc Witness, authority util.Uint256) error {
	if err := CheckWitness(acc); err != nil {
		return err
	}
	if acc.Address() != authority {
		return fmt.Errorf("signer %s is not %s: %w",
			EncodeAddress(acc.Address()), EncodeAddress(authority), ErrIncorrectAuthority)
	}
	return nil
}

// CheckOwnership checks that the account belongs to one of the listed
// programs. It returns ErrInvalidAccountData on fail.
func CheckOwnership(acc Owned, programs ...util.Uint256) error {
	owner := acc.Owner()
	for i := range programs {
		if owner == programs[i] {
			return nil
		}
	}
	return fmt.Errorf("account %s is owned by %s: %w",
		EncodeAddress(acc.Address()), EncodeAddress(owner), ErrInvalidAccountData)
}

// CheckAddress checks that the account is located at the expected address.
// It returns ErrInvalidAccountData on fail.
func CheckAddress(acc Owned, expected util.Uint256) error {
	if acc.Address() != expected {
		return fmt.Errorf("unexpected account %s instead of %s: %w",
			EncodeAddress(acc.Address()), EncodeAddress(expected), ErrInvalidAccountData)
	}
	return nil
}

// CheckDerivedAddress recomputes the address from seeds (bump included) under
// the program and compares it with the account. It returns ErrInvalidSeeds on
// fail.
func CheckDerivedAddress(acc Owned, seeds Seeds, program util.Uint256) error {
	expected, err := CreateProgramAddress(seeds, program)
	if err != nil {
		return fmt.Errorf("derive address for %s: %w", EncodeAddress(acc.Address()), err)
	}
	if acc.Address() != expected {
		return fmt.Errorf("account %s does not match derived %s: %w",
			EncodeAddress(acc.Address()), EncodeAddress(expected), ErrInvalidSeeds)
	}
	return nil
}

// CheckCanonicalAddress checks that the account is located at the canonical
// derived address of seeds (bump excluded) under the program and that bump is
// the canonical one. It returns ErrInvalidSeeds on fail.
func CheckCanonicalAddress(acc Owned, seeds Seeds, bump uint8, program util.Uint256) error {
	expected, canonical, err := FindProgramAddress(seeds, program)
	if err != nil {
		return fmt.Errorf("derive address for %s: %w", EncodeAddress(acc.Address()), err)
	}
	if bump != canonical {
		return fmt.Errorf("bump %d is not canonical (%d) for %s: %w",
			bump, canonical, EncodeAddress(acc.Address()), ErrInvalidSeeds)
	}
	if acc.Address() != expected {
		return fmt.Errorf("account %s does not match derived %s: %w",
			EncodeAddress(acc.Address()), EncodeAddress(expected), ErrInvalidSeeds)
	}
	return nil
}
