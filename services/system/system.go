// Package system implements the account-creation service: it funds new
// accounts, allocates their data and assigns them to owner programs.
package system

import (
	"fmt"

	"github.com/nspcc-dev/custody-contract/common"
	"github.com/nspcc-dev/custody-contract/ledger"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"go.uber.org/zap"
)

// CreateAccountPrm groups parameters of the account creation.
type CreateAccountPrm struct {
	// Funds the new account, must sign.
	Payer *ledger.Account
	// Account to create, must sign directly or be derived from one of
	// Signers under Caller.
	Account *ledger.Account

	Space    uint64
	Lamports uint64
	Owner    util.Uint256

	// Program issuing the call.
	Caller util.Uint256
	// Seed lists (bump included) the caller signs with.
	Signers []common.Seeds
}

// TransferPrm groups parameters of the native lamports transfer.
type TransferPrm struct {
	From     *ledger.Account
	To       *ledger.Account
	Lamports uint64

	Caller  util.Uint256
	Signers []common.Seeds
}

// Service is the system service instance.
type Service struct {
	id  util.Uint256
	log *zap.Logger
}

// New returns the system service located at id.
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

// CreateAccount creates a new account. Account is considered in use if it
// has lamports, data or belongs to anything but the system service.
func (s *Service) CreateAccount(prm CreateAccountPrm) error {
	if !ledger.Authorized(prm.Payer, prm.Caller, prm.Signers) {
		return fmt.Errorf("payer: %w", common.ErrMissingRequiredSignature)
	}
	if !ledger.Authorized(prm.Account, prm.Caller, prm.Signers) {
		return fmt.Errorf("new account: %w", common.ErrMissingRequiredSignature)
	}

	if !prm.Account.IsOwnedBy(s.id) || prm.Account.Lamports() != 0 || prm.Account.DataLen() != 0 {
		return fmt.Errorf("create %s: %w", common.EncodeAddress(prm.Account.Address()), common.ErrAlreadyInUse)
	}

	if prm.Payer.Lamports() < prm.Lamports {
		return fmt.Errorf("payer has %d lamports, need %d: %w",
			prm.Payer.Lamports(), prm.Lamports, common.ErrInsufficientFunds)
	}

	err := prm.Payer.SetLamports(prm.Payer.Lamports() - prm.Lamports)
	if err != nil {
		return fmt.Errorf("debit payer: %w", err)
	}

	err = prm.Account.SetLamports(prm.Lamports)
	if err != nil {
		return fmt.Errorf("credit new account: %w", err)
	}

	err = prm.Account.Resize(int(prm.Space))
	if err != nil {
		return fmt.Errorf("allocate: %w", err)
	}

	err = prm.Account.Assign(prm.Owner)
	if err != nil {
		return fmt.Errorf("assign: %w", err)
	}

	s.log.Debug("account created",
		zap.String("account", common.EncodeAddress(prm.Account.Address())),
		zap.String("owner", common.EncodeAddress(prm.Owner)),
		zap.Uint64("space", prm.Space))

	return nil
}

// Transfer moves lamports between system-owned accounts.
func (s *Service) Transfer(prm TransferPrm) error {
	if !ledger.Authorized(prm.From, prm.Caller, prm.Signers) {
		return fmt.Errorf("sender: %w", common.ErrMissingRequiredSignature)
	}
	if !prm.From.IsOwnedBy(s.id) {
		return fmt.Errorf("sender: %w", common.ErrInvalidAccountData)
	}
	if prm.From.Lamports() < prm.Lamports {
		return common.ErrInsufficientFunds
	}
	if prm.From.Address() == prm.To.Address() {
		return nil
	}

	err := prm.From.SetLamports(prm.From.Lamports() - prm.Lamports)
	if err != nil {
		return err
	}

	return prm.To.SetLamports(prm.To.Lamports() + prm.Lamports)
}
