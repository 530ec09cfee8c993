// Package permission implements the access-control service. It keeps a
// permission record per permissioned account listing members that the
// delegated execution environment exposes data to or that may manage the
// record.
package permission

import (
	"bytes"
	"fmt"

	"github.com/nspcc-dev/custody-contract/common"
	"github.com/nspcc-dev/custody-contract/ledger"
	"github.com/nspcc-dev/custody-contract/services/delegation"
	"github.com/nspcc-dev/custody-contract/services/system"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"go.uber.org/zap"
)

// CreatePrm groups parameters of the record creation.
type CreatePrm struct {
	// Account the record is attached to, must be authorized by Caller.
	Permissioned *ledger.Account
	Permission   *ledger.Account
	Payer        *ledger.Account
	System       *ledger.Account

	Members []Member

	Caller  util.Uint256
	Signers []common.Seeds
}

// UpdatePrm groups parameters of the member list replacement.
type UpdatePrm struct {
	// Member with FlagAuthority or anyone if Permissioned is authorized.
	Authority    *ledger.Account
	Permissioned *ledger.Account
	Permission   *ledger.Account

	Members []Member

	Caller  util.Uint256
	Signers []common.Seeds
}

// ClosePrm groups parameters of the record removal.
type ClosePrm struct {
	// Receives lamports of the record.
	Authority    *ledger.Account
	Permissioned *ledger.Account
	Permission   *ledger.Account

	Caller  util.Uint256
	Signers []common.Seeds
}

// DelegatePrm groups parameters of the record delegation.
type DelegatePrm struct {
	Payer        *ledger.Account
	Permissioned *ledger.Account
	Permission   *ledger.Account
	System       *ledger.Account
	Buffer       *ledger.Account
	Record       *ledger.Account
	Metadata     *ledger.Account

	Config delegation.Config

	Caller  util.Uint256
	Signers []common.Seeds
}

// UndelegatePrm groups parameters of the record undelegation.
type UndelegatePrm struct {
	Payer        *ledger.Account
	Permissioned *ledger.Account
	Permission   *ledger.Account
	MagicContext *ledger.Account
	MagicProgram *ledger.Account

	Caller  util.Uint256
	Signers []common.Seeds
}

// Service is the permission service instance.
type Service struct {
	id         util.Uint256
	ledger     *ledger.Ledger
	system     *system.Service
	delegation *delegation.Service
	log        *zap.Logger
}

// New returns the permission service located at id. It must be registered
// in the ledger to receive undelegation callbacks.
func New(id util.Uint256, l *ledger.Ledger, sys *system.Service, d *delegation.Service, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{id: id, ledger: l, system: sys, delegation: d, log: log}
}

// ID returns address of the service.
func (s *Service) ID() util.Uint256 {
	return s.id
}

// Create creates the permission record attached to the account.
func (s *Service) Create(prm CreatePrm) error {
	if !ledger.Authorized(prm.Permissioned, prm.Caller, prm.Signers) {
		return fmt.Errorf("permissioned account: %w", common.ErrMissingRequiredSignature)
	}
	if prm.System.Address() != s.system.ID() {
		return fmt.Errorf("system program: %w", common.ErrInvalidAccountData)
	}
	if err := CheckMembers(prm.Members); err != nil {
		return fmt.Errorf("%v: %w", err, common.ErrInvalidArgument)
	}

	permissioned := prm.Permissioned.Address()

	addr, bump, err := Address(s.id, permissioned)
	if err != nil {
		return err
	}
	if prm.Permission.Address() != addr {
		return fmt.Errorf("permission record: %w", common.ErrInvalidSeeds)
	}

	data := Record{Permissioned: permissioned, Members: prm.Members}.Encode()

	err = s.system.CreateAccount(system.CreateAccountPrm{
		Payer:    prm.Payer,
		Account:  prm.Permission,
		Space:    uint64(len(data)),
		Lamports: s.ledger.Rent().MinimumBalance(len(data)),
		Owner:    s.id,
		Caller:   s.id,
		Signers:  []common.Seeds{Seeds(permissioned).WithBump(bump)},
	})
	if err != nil {
		return fmt.Errorf("create permission record: %w", err)
	}

	if err := write(prm.Permission, data); err != nil {
		return err
	}

	s.log.Debug("permission record created",
		zap.String("permissioned", common.EncodeAddress(permissioned)),
		zap.Int("members", len(prm.Members)))

	return nil
}

// Update replaces the member list of the record.
func (s *Service) Update(prm UpdatePrm) error {
	if err := CheckMembers(prm.Members); err != nil {
		return fmt.Errorf("%v: %w", err, common.ErrInvalidArgument)
	}

	rec, err := s.authorize(prm.Authority, prm.Permissioned, prm.Permission, prm.Caller, prm.Signers)
	if err != nil {
		return err
	}

	rec.Members = prm.Members
	data := rec.Encode()

	need := s.ledger.Rent().MinimumBalance(len(data))
	if have := prm.Permission.Lamports(); need > have {
		if err := topUp(prm.Authority, prm.Permission, need-have); err != nil {
			return fmt.Errorf("rent: %w", err)
		}
	}

	if err := prm.Permission.Resize(len(data)); err != nil {
		return err
	}
	if err := write(prm.Permission, data); err != nil {
		return err
	}

	s.log.Debug("permission record updated",
		zap.String("permissioned", common.EncodeAddress(rec.Permissioned)),
		zap.Int("members", len(rec.Members)))

	return nil
}

// Close removes the record giving its lamports to the authority.
func (s *Service) Close(prm ClosePrm) error {
	_, err := s.authorize(prm.Authority, prm.Permissioned, prm.Permission, prm.Caller, prm.Signers)
	if err != nil {
		return err
	}

	lamports := prm.Permission.Lamports()

	if err := prm.Permission.SetLamports(0); err != nil {
		return err
	}
	if err := prm.Permission.Resize(0); err != nil {
		return err
	}
	if err := prm.Permission.Assign(s.system.ID()); err != nil {
		return err
	}
	if err := prm.Authority.SetLamports(prm.Authority.Lamports() + lamports); err != nil {
		return err
	}

	s.log.Debug("permission record closed",
		zap.String("permission", common.EncodeAddress(prm.Permission.Address())))

	return nil
}

// Delegate hands the record over to the delegation service.
func (s *Service) Delegate(prm DelegatePrm) error {
	if !ledger.Authorized(prm.Permissioned, prm.Caller, prm.Signers) {
		return fmt.Errorf("permissioned account: %w", common.ErrMissingRequiredSignature)
	}
	if prm.System.Address() != s.system.ID() {
		return fmt.Errorf("system program: %w", common.ErrInvalidAccountData)
	}

	permissioned := prm.Permissioned.Address()

	addr, bump, err := Address(s.id, permissioned)
	if err != nil {
		return err
	}
	if prm.Permission.Address() != addr {
		return fmt.Errorf("permission record: %w", common.ErrInvalidSeeds)
	}

	return s.delegation.Delegate(delegation.DelegatePrm{
		Payer:    prm.Payer,
		Account:  prm.Permission,
		Buffer:   prm.Buffer,
		Record:   prm.Record,
		Metadata: prm.Metadata,
		Owner:    s.id,
		Seeds:    Seeds(permissioned),
		Bump:     bump,
		Config:   prm.Config,
	})
}

// CommitAndUndelegate takes the record back from the delegation service.
func (s *Service) CommitAndUndelegate(prm UndelegatePrm) error {
	if !ledger.Authorized(prm.Permissioned, prm.Caller, prm.Signers) {
		return fmt.Errorf("permissioned account: %w", common.ErrMissingRequiredSignature)
	}

	addr, _, err := Address(s.id, prm.Permissioned.Address())
	if err != nil {
		return err
	}
	if prm.Permission.Address() != addr {
		return fmt.Errorf("permission record: %w", common.ErrInvalidSeeds)
	}

	return s.delegation.CommitAndUndelegate(delegation.CommitAndUndelegatePrm{
		Payer:        prm.Payer,
		Accounts:     []*ledger.Account{prm.Permission},
		MagicContext: prm.MagicContext,
		MagicProgram: prm.MagicProgram,
		Caller:       s.id,
	})
}

// Process implements ledger.Program. The only instruction the service
// accepts from the ledger is the undelegation callback.
func (s *Service) Process(accounts []*ledger.Account, data []byte) error {
	if len(data) < len(delegation.CallbackDiscriminator) ||
		!bytes.Equal(data[:len(delegation.CallbackDiscriminator)], delegation.CallbackDiscriminator[:]) {
		return common.ErrInvalidInstruction
	}
	if len(accounts) < 4 {
		return common.ErrNotEnoughAccountKeys
	}

	return s.delegation.Restore(delegation.RestorePrm{
		Delegated: accounts[0],
		Buffer:    accounts[1],
		Payer:     accounts[2],
		System:    accounts[3],
		Owner:     s.id,
		Args:      data[len(delegation.CallbackDiscriminator):],
	})
}

// Record returns the stored permission record attached to the account.
func (s *Service) Record(permissioned util.Uint256) (Record, bool) {
	addr, _, err := Address(s.id, permissioned)
	if err != nil {
		return Record{}, false
	}

	info, ok := s.ledger.Get(addr)
	if !ok || info.Owner != s.id {
		return Record{}, false
	}

	rec, err := DecodeRecord(info.Data)
	if err != nil {
		return Record{}, false
	}

	return rec, true
}

// authorize checks the record is managed by the service and the caller may
// change it: either the permissioned account is authorized or the authority
// is a signing member with FlagAuthority.
func (s *Service) authorize(authority, permissioned, permission *ledger.Account,
	caller util.Uint256, signers []common.Seeds) (Record, error) {
	if err := common.CheckOwnership(permission, s.id); err != nil {
		return Record{}, fmt.Errorf("permission record: %w", err)
	}

	addr, _, err := Address(s.id, permissioned.Address())
	if err != nil {
		return Record{}, err
	}
	if permission.Address() != addr {
		return Record{}, fmt.Errorf("permission record: %w", common.ErrInvalidSeeds)
	}

	data, release, err := permission.Borrow()
	if err != nil {
		return Record{}, err
	}
	rec, err := DecodeRecord(data)
	release()
	if err != nil {
		return Record{}, fmt.Errorf("%v: %w", err, common.ErrInvalidAccountData)
	}

	if ledger.Authorized(permissioned, caller, signers) {
		return rec, nil
	}

	if flags, ok := rec.Member(authority.Address()); ok && authority.IsSigner() && flags.Has(FlagAuthority) {
		return rec, nil
	}

	return Record{}, fmt.Errorf("%s may not manage the record: %w",
		common.EncodeAddress(authority.Address()), common.ErrIncorrectAuthority)
}

func topUp(from, to *ledger.Account, lamports uint64) error {
	if !from.IsSigner() {
		return common.ErrMissingRequiredSignature
	}
	if from.Lamports() < lamports {
		return common.ErrInsufficientFunds
	}
	if err := from.SetLamports(from.Lamports() - lamports); err != nil {
		return err
	}
	return to.SetLamports(to.Lamports() + lamports)
}

func write(acc *ledger.Account, data []byte) error {
	buf, release, err := acc.BorrowMut()
	if err != nil {
		return err
	}
	copy(buf, data)
	release()
	return nil
}
