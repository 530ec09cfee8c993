// Package custody contains client wrappers for the custody program: builders
// of its instructions and readers of its records.
package custody

import (
	"encoding/binary"
	"fmt"

	contract "github.com/nspcc-dev/custody-contract/contracts/custody"
	"github.com/nspcc-dev/custody-contract/contracts/custody/custodyconst"
	"github.com/nspcc-dev/custody-contract/ledger"
	"github.com/nspcc-dev/custody-contract/services/delegation"
	"github.com/nspcc-dev/custody-contract/services/permission"
	"github.com/nspcc-dev/neo-go/pkg/util"
)

// Builder creates custody program instructions.
type Builder struct {
	p Programs
}

// NewBuilder returns the builder of instructions addressed to p.Custody.
func NewBuilder(p Programs) *Builder {
	return &Builder{p: p}
}

// Programs returns program addresses the builder uses.
func (b *Builder) Programs() Programs {
	return b.p
}

// BalanceRecordAddress returns address and bump of the balance record.
func (b *Builder) BalanceRecordAddress(owner, asset util.Uint256) (util.Uint256, uint8, error) {
	return contract.BalanceRecordAddress(b.p.Custody, owner, asset)
}

// VaultRecordAddress returns address and bump of the vault record.
func (b *Builder) VaultRecordAddress(asset util.Uint256) (util.Uint256, uint8, error) {
	return contract.VaultRecordAddress(b.p.Custody, asset)
}

// PermissionAddress returns address of the permission record of the balance
// record.
func (b *Builder) PermissionAddress(owner, asset util.Uint256) (util.Uint256, error) {
	rec, _, err := b.BalanceRecordAddress(owner, asset)
	if err != nil {
		return util.Uint256{}, err
	}

	addr, _, err := permission.Address(b.p.Permission, rec)
	return addr, err
}

func (b *Builder) instruction(op byte, payload []byte, accounts ...ledger.AccountMeta) ledger.Instruction {
	data := make([]byte, 0, 1+len(payload))
	data = append(data, op)
	data = append(data, payload...)

	return ledger.Instruction{
		Program:  b.p.Custody,
		Accounts: accounts,
		Data:     data,
	}
}

// InitializeBalanceRecord creates the balance record of the owner×asset pair
// paid by payer.
func (b *Builder) InitializeBalanceRecord(payer, owner, asset util.Uint256) (ledger.Instruction, error) {
	rec, bump, err := b.BalanceRecordAddress(owner, asset)
	if err != nil {
		return ledger.Instruction{}, err
	}

	return b.instruction(custodyconst.OpInitializeBalanceRecord, []byte{bump},
		ledger.Writable(rec),
		ledger.WritableSigner(payer),
		ledger.Readonly(owner),
		ledger.Readonly(asset),
		ledger.Readonly(b.p.System),
	), nil
}

// InitializeVaultRecord creates the vault record of the asset paid by payer.
func (b *Builder) InitializeVaultRecord(payer, asset util.Uint256) (ledger.Instruction, error) {
	vault, bump, err := b.VaultRecordAddress(asset)
	if err != nil {
		return ledger.Instruction{}, err
	}

	return b.instruction(custodyconst.OpInitializeVaultRecord, []byte{bump},
		ledger.Writable(vault),
		ledger.WritableSigner(payer),
		ledger.Readonly(asset),
		ledger.Readonly(b.p.System),
	), nil
}

// Deposit moves tokens into the vault crediting the owner's balance record.
func (b *Builder) Deposit(prm DepositPrm) (ledger.Instruction, error) {
	rec, _, err := b.BalanceRecordAddress(prm.Owner, prm.Asset)
	if err != nil {
		return ledger.Instruction{}, err
	}
	vault, _, err := b.VaultRecordAddress(prm.Asset)
	if err != nil {
		return ledger.Instruction{}, err
	}

	return b.instruction(custodyconst.OpDeposit, binary.LittleEndian.AppendUint64(nil, prm.Amount),
		ledger.Writable(rec),
		ledger.Readonly(vault),
		ledger.Readonly(prm.Asset),
		ledger.Writable(prm.Source),
		ledger.Writable(prm.VaultToken),
		ledger.ReadonlySigner(prm.Authority),
		ledger.Readonly(b.p.Token),
	), nil
}

// Withdraw moves tokens from the vault to the destination debiting the
// owner's balance record. Owner signs.
func (b *Builder) Withdraw(prm WithdrawPrm) (ledger.Instruction, error) {
	rec, _, err := b.BalanceRecordAddress(prm.Owner, prm.Asset)
	if err != nil {
		return ledger.Instruction{}, err
	}
	vault, bump, err := b.VaultRecordAddress(prm.Asset)
	if err != nil {
		return ledger.Instruction{}, err
	}

	payload := binary.LittleEndian.AppendUint64(make([]byte, 0, 9), prm.Amount)
	payload = append(payload, bump)

	return b.instruction(custodyconst.OpWithdraw, payload,
		ledger.Writable(rec),
		ledger.Readonly(vault),
		ledger.Readonly(prm.Asset),
		ledger.Writable(prm.VaultToken),
		ledger.Writable(prm.Destination),
		ledger.ReadonlySigner(prm.Owner),
		ledger.Readonly(b.p.Token),
	), nil
}

// DelegateBalanceRecord hands the owner's balance record to the delegation
// service, to the validator if set.
func (b *Builder) DelegateBalanceRecord(owner, asset util.Uint256, validator *util.Uint256) (ledger.Instruction, error) {
	rec, bump, err := b.BalanceRecordAddress(owner, asset)
	if err != nil {
		return ledger.Instruction{}, err
	}

	accs, err := b.delegationAccounts(b.p.Custody, rec)
	if err != nil {
		return ledger.Instruction{}, err
	}

	payload := []byte{bump}
	if validator != nil {
		payload = append(payload, validator[:]...)
	}

	return b.instruction(custodyconst.OpDelegateBalanceRecord, payload,
		ledger.WritableSigner(owner),
		ledger.Writable(rec),
		ledger.Readonly(b.p.Custody),
		accs[0], accs[1], accs[2],
		ledger.Readonly(b.p.Delegation),
		ledger.Readonly(b.p.System),
	), nil
}

// UndelegateBalanceRecord takes the owner's balance record back from the
// delegation service. Companion token account is optional.
func (b *Builder) UndelegateBalanceRecord(owner, asset util.Uint256, companion *util.Uint256) (ledger.Instruction, error) {
	rec, _, err := b.BalanceRecordAddress(owner, asset)
	if err != nil {
		return ledger.Instruction{}, err
	}
	magic, _, err := delegation.MagicContextAddress(b.p.Delegation)
	if err != nil {
		return ledger.Instruction{}, err
	}

	accs := []ledger.AccountMeta{
		ledger.WritableSigner(owner),
		ledger.Writable(rec),
		ledger.Writable(magic),
		ledger.Readonly(b.p.Delegation),
	}
	if companion != nil {
		accs = append(accs, ledger.Readonly(*companion))
	}

	return b.instruction(custodyconst.OpUndelegateBalanceRecord, nil, accs...), nil
}

// CreatePermission creates the permission record of the owner's balance
// record. Owner gets flags, extra members are listed after the owner.
func (b *Builder) CreatePermission(owner, asset util.Uint256, flags permission.MemberFlags, extra ...permission.Member) (ledger.Instruction, error) {
	rec, bump, err := b.BalanceRecordAddress(owner, asset)
	if err != nil {
		return ledger.Instruction{}, err
	}
	perm, _, err := permission.Address(b.p.Permission, rec)
	if err != nil {
		return ledger.Instruction{}, err
	}

	payload, err := membersPayload(bump, flags, extra)
	if err != nil {
		return ledger.Instruction{}, err
	}

	return b.instruction(custodyconst.OpCreatePermission, payload,
		ledger.Writable(rec),
		ledger.Writable(perm),
		ledger.WritableSigner(owner),
		ledger.Readonly(b.p.System),
		ledger.Readonly(b.p.Permission),
	), nil
}

// UpdatePermission replaces members of the permission record.
func (b *Builder) UpdatePermission(owner, asset util.Uint256, flags permission.MemberFlags, extra ...permission.Member) (ledger.Instruction, error) {
	return b.updatePermission(custodyconst.OpUpdatePermission, owner, asset, flags, extra)
}

// ResetPermission replaces members of the permission record keeping the
// owner's authority.
func (b *Builder) ResetPermission(owner, asset util.Uint256, flags permission.MemberFlags, extra ...permission.Member) (ledger.Instruction, error) {
	return b.updatePermission(custodyconst.OpResetPermission, owner, asset, flags, extra)
}

func (b *Builder) updatePermission(op byte, owner, asset util.Uint256, flags permission.MemberFlags, extra []permission.Member) (ledger.Instruction, error) {
	rec, bump, err := b.BalanceRecordAddress(owner, asset)
	if err != nil {
		return ledger.Instruction{}, err
	}
	perm, _, err := permission.Address(b.p.Permission, rec)
	if err != nil {
		return ledger.Instruction{}, err
	}

	payload, err := membersPayload(bump, flags, extra)
	if err != nil {
		return ledger.Instruction{}, err
	}

	return b.instruction(op, payload,
		ledger.WritableSigner(owner),
		ledger.Writable(rec),
		ledger.Writable(perm),
		ledger.Readonly(b.p.Permission),
	), nil
}

// ClosePermission removes the permission record returning its lamports to
// the owner.
func (b *Builder) ClosePermission(owner, asset util.Uint256) (ledger.Instruction, error) {
	rec, bump, err := b.BalanceRecordAddress(owner, asset)
	if err != nil {
		return ledger.Instruction{}, err
	}
	perm, _, err := permission.Address(b.p.Permission, rec)
	if err != nil {
		return ledger.Instruction{}, err
	}

	return b.instruction(custodyconst.OpClosePermission, []byte{bump},
		ledger.WritableSigner(owner),
		ledger.Writable(rec),
		ledger.Writable(perm),
		ledger.Readonly(b.p.Permission),
	), nil
}

// DelegatePermission hands the permission record to the delegation service,
// to the validator if set.
func (b *Builder) DelegatePermission(owner, asset util.Uint256, validator *util.Uint256) (ledger.Instruction, error) {
	rec, bump, err := b.BalanceRecordAddress(owner, asset)
	if err != nil {
		return ledger.Instruction{}, err
	}
	perm, _, err := permission.Address(b.p.Permission, rec)
	if err != nil {
		return ledger.Instruction{}, err
	}

	accs, err := b.delegationAccounts(b.p.Permission, perm)
	if err != nil {
		return ledger.Instruction{}, err
	}

	var v util.Uint256
	if validator != nil {
		v = *validator
	}

	return b.instruction(custodyconst.OpDelegatePermission, []byte{bump},
		ledger.WritableSigner(owner),
		ledger.Writable(rec),
		ledger.Readonly(b.p.Permission),
		ledger.Writable(perm),
		ledger.Readonly(b.p.System),
		accs[0], accs[1], accs[2],
		ledger.Readonly(b.p.Delegation),
		ledger.Readonly(v),
	), nil
}

// UndelegatePermission takes the permission record back from the
// delegation service.
func (b *Builder) UndelegatePermission(owner, asset util.Uint256) (ledger.Instruction, error) {
	rec, _, err := b.BalanceRecordAddress(owner, asset)
	if err != nil {
		return ledger.Instruction{}, err
	}
	perm, _, err := permission.Address(b.p.Permission, rec)
	if err != nil {
		return ledger.Instruction{}, err
	}
	magic, _, err := delegation.MagicContextAddress(b.p.Delegation)
	if err != nil {
		return ledger.Instruction{}, err
	}

	return b.instruction(custodyconst.OpUndelegatePermission, nil,
		ledger.WritableSigner(owner),
		ledger.Writable(rec),
		ledger.Writable(perm),
		ledger.Readonly(b.p.Permission),
		ledger.Readonly(b.p.Delegation),
		ledger.Writable(magic),
	), nil
}

// delegationAccounts returns delegate buffer, delegation record and
// delegation metadata metas of the account owned by owner.
func (b *Builder) delegationAccounts(owner, acc util.Uint256) ([3]ledger.AccountMeta, error) {
	var res [3]ledger.AccountMeta

	buf, _, err := delegation.BufferAddress(owner, acc)
	if err != nil {
		return res, err
	}
	rec, _, err := delegation.RecordAddress(b.p.Delegation, acc)
	if err != nil {
		return res, err
	}
	meta, _, err := delegation.MetadataAddress(b.p.Delegation, acc)
	if err != nil {
		return res, err
	}

	res[0] = ledger.Writable(buf)
	res[1] = ledger.Writable(rec)
	res[2] = ledger.Writable(meta)

	return res, nil
}

func membersPayload(bump uint8, flags permission.MemberFlags, extra []permission.Member) ([]byte, error) {
	if len(extra) > custodyconst.MaxExtraMembers {
		return nil, fmt.Errorf("%d extra members exceed the limit of %d", len(extra), custodyconst.MaxExtraMembers)
	}

	f := permission.EncodeFlags(flags)

	res := make([]byte, 0, 1+len(f)+1+len(extra)*(32+len(f)))
	res = append(res, bump)
	res = append(res, f[:]...)

	if len(extra) == 0 {
		return res, nil
	}

	res = append(res, byte(len(extra)))
	for i := range extra {
		f := permission.EncodeFlags(extra[i].Flags)
		res = append(res, extra[i].Identity[:]...)
		res = append(res, f[:]...)
	}

	return res, nil
}

// RawInstruction builds the instruction with arbitrary opcode and payload,
// accounts are passed as is.
func (b *Builder) RawInstruction(op byte, payload []byte, accounts ...ledger.AccountMeta) ledger.Instruction {
	return b.instruction(op, payload, accounts...)
}
