// Package token implements the token-transfer service: mints, token
// accounts and checked transfers between them.
package token

import (
	"errors"
	"fmt"

	"github.com/nspcc-dev/custody-contract/common"
	"github.com/nspcc-dev/custody-contract/ledger"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"go.uber.org/zap"
)

var (
	// ErrInsufficientFunds is returned when the source holds less than the
	// transferred amount.
	ErrInsufficientFunds = errors.New("insufficient token funds")
	// ErrMintMismatch is returned when token accounts hold tokens of
	// another mint.
	ErrMintMismatch = errors.New("account not associated with this mint")
	// ErrOwnerMismatch is returned when the authority does not own the
	// source account.
	ErrOwnerMismatch = errors.New("owner does not match")
	// ErrDecimalsMismatch is returned when the caller expects another
	// precision of the mint.
	ErrDecimalsMismatch = errors.New("mint decimals mismatch")
	// ErrAccountFrozen is returned on transfers from or to a frozen
	// account.
	ErrAccountFrozen = errors.New("account is frozen")
	// ErrUninitialized is returned on operations with uninitialized mints
	// or accounts.
	ErrUninitialized = errors.New("uninitialized state")
	// ErrOverflow is returned when the operation overflows an amount.
	ErrOverflow = errors.New("operation overflowed")
)

// TransferCheckedPrm groups parameters of the checked transfer.
type TransferCheckedPrm struct {
	Mint      *ledger.Account
	From      *ledger.Account
	To        *ledger.Account
	Authority *ledger.Account

	Amount   uint64
	Decimals uint8

	// Program issuing the call.
	Caller util.Uint256
	// Seed lists (bump included) the caller signs with.
	Signers []common.Seeds
}

// Service is the token service instance.
type Service struct {
	id  util.Uint256
	log *zap.Logger
}

// New returns the token service located at id.
func New(id util.Uint256, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{id: id, log: log}
}

// ID returns address of the service.
func (s *Service) ID() util.Uint256 {
	return s.id
}

// InitializeMint initializes a mint account owned by the service.
func (s *Service) InitializeMint(mint *ledger.Account, authority util.Uint256, decimals uint8) error {
	if !mint.IsOwnedBy(s.id) {
		return fmt.Errorf("mint: %w", common.ErrInvalidAccountData)
	}

	data, release, err := mint.BorrowMut()
	if err != nil {
		return err
	}
	defer release()

	m, err := ParseMint(data)
	if err != nil {
		return fmt.Errorf("%v: %w", err, common.ErrInvalidAccountData)
	}
	if m.IsInitialized() {
		return fmt.Errorf("mint: %w", common.ErrAlreadyInUse)
	}

	m.setAuthority(authority)
	m[mintDecimalsOff] = decimals
	m[mintInitializedOff] = 1

	return nil
}

// InitializeAccount initializes a token account owned by the service.
func (s *Service) InitializeAccount(acc, mint *ledger.Account, owner util.Uint256) error {
	if !acc.IsOwnedBy(s.id) || !mint.IsOwnedBy(s.id) {
		return fmt.Errorf("token account: %w", common.ErrInvalidAccountData)
	}

	if err := s.checkMint(mint); err != nil {
		return err
	}

	data, release, err := acc.BorrowMut()
	if err != nil {
		return err
	}
	defer release()

	a, err := ParseAccount(data)
	if err != nil {
		return fmt.Errorf("%v: %w", err, common.ErrInvalidAccountData)
	}
	if a.State() != StateUninitialized {
		return fmt.Errorf("token account: %w", common.ErrAlreadyInUse)
	}

	m := mint.Address()
	copy(a[accountMintOff:], m[:])
	copy(a[accountOwnerOff:], owner[:])
	a[accountStateOff] = StateInitialized

	return nil
}

// MintTo issues new tokens to the account. The authority must sign.
func (s *Service) MintTo(mint, to, authority *ledger.Account, amount uint64) error {
	if !authority.IsSigner() {
		return fmt.Errorf("mint authority: %w", common.ErrMissingRequiredSignature)
	}
	if !mint.IsOwnedBy(s.id) || !to.IsOwnedBy(s.id) {
		return fmt.Errorf("mint to: %w", common.ErrInvalidAccountData)
	}

	mData, releaseMint, err := mint.BorrowMut()
	if err != nil {
		return err
	}
	defer releaseMint()

	m, err := ParseMint(mData)
	if err != nil {
		return fmt.Errorf("%v: %w", err, common.ErrInvalidAccountData)
	}
	if a, ok := m.Authority(); !ok || a != authority.Address() {
		return ErrOwnerMismatch
	}

	aData, releaseAcc, err := to.BorrowMut()
	if err != nil {
		return err
	}
	defer releaseAcc()

	a, err := ParseAccount(aData)
	if err != nil {
		return fmt.Errorf("%v: %w", err, common.ErrInvalidAccountData)
	}
	if a.Mint() != mint.Address() {
		return ErrMintMismatch
	}

	supply := m.Supply() + amount
	balance := a.Amount() + amount
	if supply < amount || balance < amount {
		return ErrOverflow
	}

	m.setSupply(supply)
	a.setAmount(balance)

	return nil
}

// TransferChecked moves tokens between two accounts of the mint verifying
// the precision the caller expects.
func (s *Service) TransferChecked(prm TransferCheckedPrm) error {
	if !ledger.Authorized(prm.Authority, prm.Caller, prm.Signers) {
		return fmt.Errorf("transfer authority: %w", common.ErrMissingRequiredSignature)
	}
	if !prm.Mint.IsOwnedBy(s.id) || !prm.From.IsOwnedBy(s.id) || !prm.To.IsOwnedBy(s.id) {
		return fmt.Errorf("transfer accounts: %w", common.ErrInvalidAccountData)
	}

	decimals, err := s.decimals(prm.Mint)
	if err != nil {
		return err
	}
	if decimals != prm.Decimals {
		return ErrDecimalsMismatch
	}

	fromData, releaseFrom, err := prm.From.BorrowMut()
	if err != nil {
		return err
	}
	defer releaseFrom()

	from, err := ParseAccount(fromData)
	if err != nil {
		return fmt.Errorf("%v: %w", err, common.ErrInvalidAccountData)
	}
	if err := checkTransferable(from, prm.Mint.Address()); err != nil {
		return fmt.Errorf("source: %w", err)
	}
	if from.Owner() != prm.Authority.Address() {
		return ErrOwnerMismatch
	}
	if from.Amount() < prm.Amount {
		return ErrInsufficientFunds
	}

	if prm.From.Address() == prm.To.Address() {
		return nil
	}

	toData, releaseTo, err := prm.To.BorrowMut()
	if err != nil {
		return err
	}
	defer releaseTo()

	to, err := ParseAccount(toData)
	if err != nil {
		return fmt.Errorf("%v: %w", err, common.ErrInvalidAccountData)
	}
	if err := checkTransferable(to, prm.Mint.Address()); err != nil {
		return fmt.Errorf("destination: %w", err)
	}

	credited := to.Amount() + prm.Amount
	if credited < prm.Amount {
		return ErrOverflow
	}

	from.setAmount(from.Amount() - prm.Amount)
	to.setAmount(credited)

	s.log.Debug("tokens transferred",
		zap.String("from", common.EncodeAddress(prm.From.Address())),
		zap.String("to", common.EncodeAddress(prm.To.Address())),
		zap.Uint64("amount", prm.Amount))

	return nil
}

func checkTransferable(a Account, mint util.Uint256) error {
	switch a.State() {
	case StateUninitialized:
		return ErrUninitialized
	case StateFrozen:
		return ErrAccountFrozen
	}
	if a.Mint() != mint {
		return ErrMintMismatch
	}
	return nil
}

func (s *Service) checkMint(mint *ledger.Account) error {
	_, err := s.decimals(mint)
	return err
}

func (s *Service) decimals(mint *ledger.Account) (uint8, error) {
	data, release, err := mint.Borrow()
	if err != nil {
		return 0, err
	}
	defer release()

	m, err := ParseMint(data)
	if err != nil {
		return 0, fmt.Errorf("%v: %w", err, common.ErrInvalidAccountData)
	}
	if !m.IsInitialized() {
		return 0, ErrUninitialized
	}

	return m.Decimals(), nil
}
