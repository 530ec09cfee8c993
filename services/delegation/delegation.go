// Package delegation implements the delegation service. It takes accounts
// over from their owner programs so that an execution environment can
// operate them, and gives them back through the owner program callback on
// undelegation.
package delegation

import (
	"fmt"

	"github.com/nspcc-dev/custody-contract/common"
	"github.com/nspcc-dev/custody-contract/ledger"
	"github.com/nspcc-dev/custody-contract/services/system"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"go.uber.org/zap"
)

// DefaultCommitFrequencyMs is used when delegation config leaves the
// frequency unset.
const DefaultCommitFrequencyMs = 30_000

// Config holds optional delegation parameters.
type Config struct {
	// Validator allowed to operate the account, any if nil.
	Validator *util.Uint256
	// Commit frequency, DefaultCommitFrequencyMs if zero.
	CommitFrequencyMs uint32
}

// DelegatePrm groups parameters of the delegation. Owner program calls it
// with its own ID and the seeds its account is derived from.
type DelegatePrm struct {
	Payer    *ledger.Account
	Account  *ledger.Account
	Buffer   *ledger.Account
	Record   *ledger.Account
	Metadata *ledger.Account

	Owner util.Uint256
	// Seeds without the bump.
	Seeds common.Seeds
	Bump  uint8

	Config Config
}

// CommitAndUndelegatePrm groups parameters of the undelegation.
type CommitAndUndelegatePrm struct {
	Payer        *ledger.Account
	Accounts     []*ledger.Account
	MagicContext *ledger.Account
	MagicProgram *ledger.Account

	// Program issuing the call, must be the one accounts were delegated by.
	Caller util.Uint256
}

// RestorePrm groups parameters of the account restoration performed by the
// owner program in the undelegation callback.
type RestorePrm struct {
	Delegated *ledger.Account
	Buffer    *ledger.Account
	Payer     *ledger.Account
	System    *ledger.Account

	// Owner program the account is returned to.
	Owner util.Uint256
	// Callback arguments after the discriminator.
	Args []byte
}

// Service is the delegation service instance.
type Service struct {
	id     util.Uint256
	ledger *ledger.Ledger
	system *system.Service
	log    *zap.Logger
}

// New returns the delegation service located at id.
func New(id util.Uint256, l *ledger.Ledger, sys *system.Service, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{id: id, ledger: l, system: sys, log: log}
}

// ID returns address of the service.
func (s *Service) ID() util.Uint256 {
	return s.id
}

// Delegate hands the account over to the service.
func (s *Service) Delegate(prm DelegatePrm) error {
	if !prm.Payer.IsSigner() {
		return fmt.Errorf("payer: %w", common.ErrMissingRequiredSignature)
	}

	acc := prm.Account.Address()

	err := common.CheckDerivedAddress(prm.Account, prm.Seeds.WithBump(prm.Bump), prm.Owner)
	if err != nil {
		return fmt.Errorf("delegated account: %w", err)
	}
	if err := common.CheckOwnership(prm.Account, prm.Owner); err != nil {
		return fmt.Errorf("delegated account: %w", err)
	}

	bufAddr, _, err := BufferAddress(prm.Owner, acc)
	if err != nil {
		return err
	}
	if prm.Buffer.Address() != bufAddr {
		return fmt.Errorf("delegate buffer: %w", common.ErrInvalidSeeds)
	}
	if prm.Buffer.DataLen() != 0 {
		return fmt.Errorf("delegate buffer: %w", common.ErrAlreadyInUse)
	}

	recAddr, recBump, err := RecordAddress(s.id, acc)
	if err != nil {
		return err
	}
	if prm.Record.Address() != recAddr {
		return fmt.Errorf("delegation record: %w", common.ErrInvalidSeeds)
	}

	metaAddr, metaBump, err := MetadataAddress(s.id, acc)
	if err != nil {
		return err
	}
	if prm.Metadata.Address() != metaAddr {
		return fmt.Errorf("delegation metadata: %w", common.ErrInvalidSeeds)
	}

	rec := Record{
		OwnerProgram:      prm.Owner,
		CommitFrequencyMs: prm.Config.CommitFrequencyMs,
		Lamports:          prm.Account.Lamports(),
	}
	if prm.Config.Validator != nil {
		rec.Validator = *prm.Config.Validator
	}
	if rec.CommitFrequencyMs == 0 {
		rec.CommitFrequencyMs = DefaultCommitFrequencyMs
	}

	err = s.createOwned(prm.Payer, prm.Record, rec.Encode(),
		common.Seeds{[]byte(RecordSeed), acc[:], {recBump}})
	if err != nil {
		return fmt.Errorf("create delegation record: %w", err)
	}

	meta := Metadata{
		RentPayer: prm.Payer.Address(),
		Seeds:     prm.Seeds,
	}

	err = s.createOwned(prm.Payer, prm.Metadata, meta.Encode(),
		common.Seeds{[]byte(MetadataSeed), acc[:], {metaBump}})
	if err != nil {
		return fmt.Errorf("create delegation metadata: %w", err)
	}

	if err := prm.Account.Assign(s.id); err != nil {
		return fmt.Errorf("take account over: %w", err)
	}

	s.log.Debug("account delegated",
		zap.String("account", common.EncodeAddress(acc)),
		zap.String("owner", common.EncodeAddress(prm.Owner)),
		zap.String("validator", common.EncodeAddress(rec.Validator)))

	return nil
}

// SetEphemeralState replaces data of the delegated account the way the execution
// environment operating it does before the commit.
func (s *Service) SetEphemeralState(addr util.Uint256, data []byte) error {
	acc := s.ledger.Account(addr, false, true)
	if !acc.IsOwnedBy(s.id) {
		return fmt.Errorf("%s is not delegated: %w", common.EncodeAddress(addr), common.ErrInvalidAccountData)
	}

	if err := acc.Resize(len(data)); err != nil {
		return err
	}

	buf, release, err := acc.BorrowMut()
	if err != nil {
		return err
	}
	copy(buf, data)
	release()

	return nil
}

// Delegated returns delegation record of the account if it is delegated.
func (s *Service) Delegated(addr util.Uint256) (Record, bool) {
	recAddr, _, err := RecordAddress(s.id, addr)
	if err != nil {
		return Record{}, false
	}

	info, ok := s.ledger.Get(recAddr)
	if !ok || info.Owner != s.id {
		return Record{}, false
	}

	rec, err := DecodeRecord(info.Data)
	if err != nil {
		return Record{}, false
	}

	return rec, true
}

// CommitAndUndelegate commits the latest state of the accounts and returns
// them to the calling owner program.
func (s *Service) CommitAndUndelegate(prm CommitAndUndelegatePrm) error {
	if !prm.Payer.IsSigner() {
		return fmt.Errorf("payer: %w", common.ErrMissingRequiredSignature)
	}
	if prm.MagicProgram.Address() != s.id {
		return fmt.Errorf("magic program: %w", common.ErrInvalidAccountData)
	}

	ctxAddr, _, err := MagicContextAddress(s.id)
	if err != nil {
		return err
	}
	if prm.MagicContext.Address() != ctxAddr {
		return fmt.Errorf("magic context: %w", common.ErrInvalidAccountData)
	}
	if !prm.MagicContext.IsWritable() {
		return fmt.Errorf("magic context: %w", common.ErrAccountNotWritable)
	}

	for _, acc := range prm.Accounts {
		if err := s.undelegate(prm.Payer, acc, prm.Caller); err != nil {
			return fmt.Errorf("undelegate %s: %w", common.EncodeAddress(acc.Address()), err)
		}
	}

	return nil
}

func (s *Service) undelegate(payer, acc *ledger.Account, caller util.Uint256) error {
	if err := common.CheckOwnership(acc, s.id); err != nil {
		return err
	}

	addr := acc.Address()

	recAddr, _, err := RecordAddress(s.id, addr)
	if err != nil {
		return err
	}
	recAcc := s.ledger.Account(recAddr, false, true)

	metaAddr, _, err := MetadataAddress(s.id, addr)
	if err != nil {
		return err
	}
	metaAcc := s.ledger.Account(metaAddr, false, true)

	var (
		rec  Record
		meta Metadata
	)

	err = readOwned(recAcc, s.id, func(b []byte) (err error) {
		rec, err = DecodeRecord(b)
		return err
	})
	if err != nil {
		return fmt.Errorf("delegation record: %w", err)
	}
	if rec.OwnerProgram != caller {
		return fmt.Errorf("delegated by %s: %w", common.EncodeAddress(rec.OwnerProgram), common.ErrIncorrectAuthority)
	}

	err = readOwned(metaAcc, s.id, func(b []byte) (err error) {
		meta, err = DecodeMetadata(b)
		return err
	})
	if err != nil {
		return fmt.Errorf("delegation metadata: %w", err)
	}

	var snapshot []byte
	err = readOwned(acc, s.id, func(b []byte) error {
		snapshot = append([]byte(nil), b...)
		return nil
	})
	if err != nil {
		return err
	}

	bufAddr, bufBump, err := UndelegateBufferAddress(s.id, addr)
	if err != nil {
		return err
	}
	buf := s.ledger.Account(bufAddr, false, true)

	err = s.createOwned(payer, buf, snapshot, common.Seeds{[]byte(UndelegateSeed), addr[:], {bufBump}})
	if err != nil {
		return fmt.Errorf("create undelegate buffer: %w", err)
	}

	if err := acc.Resize(0); err != nil {
		return err
	}
	if err := acc.Assign(s.system.ID()); err != nil {
		return err
	}

	args := common.EncodeSeeds(meta.Seeds)
	data := make([]byte, 0, len(CallbackDiscriminator)+len(args))
	data = append(data, CallbackDiscriminator[:]...)
	data = append(data, args...)

	err = s.ledger.Invoke(rec.OwnerProgram, []*ledger.Account{
		acc.WithPrivileges(false, true),
		buf.WithPrivileges(true, false),
		payer.WithPrivileges(true, true),
		s.ledger.Account(s.system.ID(), false, false),
	}, data)
	if err != nil {
		return fmt.Errorf("owner program callback: %w", err)
	}

	if !acc.IsOwnedBy(rec.OwnerProgram) {
		return fmt.Errorf("account not restored by %s: %w",
			common.EncodeAddress(rec.OwnerProgram), common.ErrInvalidAccountData)
	}

	if err := s.close(buf, payer); err != nil {
		return fmt.Errorf("close undelegate buffer: %w", err)
	}

	rentPayer := s.ledger.Account(meta.RentPayer, false, true)
	if err := s.close(recAcc, rentPayer); err != nil {
		return fmt.Errorf("close delegation record: %w", err)
	}
	if err := s.close(metaAcc, rentPayer); err != nil {
		return fmt.Errorf("close delegation metadata: %w", err)
	}

	s.log.Debug("account undelegated",
		zap.String("account", common.EncodeAddress(addr)),
		zap.String("owner", common.EncodeAddress(rec.OwnerProgram)))

	return nil
}

// Restore recreates the account from the undelegate buffer. Owner programs
// call it from their undelegation callback with the accounts they received.
func (s *Service) Restore(prm RestorePrm) error {
	if !prm.Buffer.IsSigner() {
		return fmt.Errorf("undelegate buffer: %w", common.ErrMissingRequiredSignature)
	}
	if !prm.Payer.IsSigner() {
		return fmt.Errorf("payer: %w", common.ErrMissingRequiredSignature)
	}
	if err := common.CheckOwnership(prm.Buffer, s.id); err != nil {
		return fmt.Errorf("undelegate buffer: %w", err)
	}
	if prm.System.Address() != s.system.ID() {
		return fmt.Errorf("system program: %w", common.ErrInvalidAccountData)
	}

	bufAddr, _, err := UndelegateBufferAddress(s.id, prm.Delegated.Address())
	if err != nil {
		return err
	}
	if prm.Buffer.Address() != bufAddr {
		return fmt.Errorf("undelegate buffer: %w", common.ErrInvalidSeeds)
	}

	seeds, err := common.DecodeSeeds(prm.Args)
	if err != nil {
		return fmt.Errorf("%v: %w", err, common.ErrInvalidInstruction)
	}

	addr, _, err := common.FindProgramAddress(seeds, prm.Owner)
	if err != nil {
		return err
	}
	if addr != prm.Delegated.Address() {
		return fmt.Errorf("delegated account: %w", common.ErrInvalidSeeds)
	}

	if !prm.Delegated.IsOwnedBy(s.system.ID()) || prm.Delegated.DataLen() != 0 {
		return fmt.Errorf("delegated account: %w", common.ErrAlreadyInUse)
	}

	snapshot, releaseBuf, err := prm.Buffer.Borrow()
	if err != nil {
		return err
	}
	defer releaseBuf()

	if err := prm.Delegated.Resize(len(snapshot)); err != nil {
		return err
	}

	data, release, err := prm.Delegated.BorrowMut()
	if err != nil {
		return err
	}
	copy(data, snapshot)
	release()

	return prm.Delegated.Assign(prm.Owner)
}

// createOwned creates the account owned by the service and fills it with
// data. The account is signed for with seeds under the service.
func (s *Service) createOwned(payer, acc *ledger.Account, data []byte, seeds common.Seeds) error {
	err := s.system.CreateAccount(system.CreateAccountPrm{
		Payer:    payer,
		Account:  acc,
		Space:    uint64(len(data)),
		Lamports: s.ledger.Rent().MinimumBalance(len(data)),
		Owner:    s.id,
		Caller:   s.id,
		Signers:  []common.Seeds{seeds},
	})
	if err != nil {
		return err
	}

	buf, release, err := acc.BorrowMut()
	if err != nil {
		return err
	}
	copy(buf, data)
	release()

	return nil
}

// close wipes the service account and refunds its lamports.
func (s *Service) close(acc, refund *ledger.Account) error {
	lamports := acc.Lamports()

	if err := acc.SetLamports(0); err != nil {
		return err
	}
	if err := acc.Resize(0); err != nil {
		return err
	}
	if err := acc.Assign(s.system.ID()); err != nil {
		return err
	}

	return refund.SetLamports(refund.Lamports() + lamports)
}

func readOwned(acc *ledger.Account, owner util.Uint256, f func([]byte) error) error {
	if err := common.CheckOwnership(acc, owner); err != nil {
		return err
	}

	data, release, err := acc.Borrow()
	if err != nil {
		return err
	}
	defer release()

	if err := f(data); err != nil {
		return fmt.Errorf("%v: %w", err, common.ErrInvalidAccountData)
	}

	return nil
}
