package custody

import (
	"fmt"

	"github.com/nspcc-dev/custody-contract/common"
	"github.com/nspcc-dev/custody-contract/ledger"
	"github.com/nspcc-dev/custody-contract/services/delegation"
	"github.com/nspcc-dev/custody-contract/services/permission"
	"github.com/nspcc-dev/neo-go/pkg/util"
)

// permissioned is the balance record a permission operation is applied to.
type permissioned struct {
	owner util.Uint256
	seeds common.Seeds
}

// readPermissioned reads the balance record on behalf of its owner. Record
// may be delegated: its data keeps the program layout. The bump is checked
// against the record address.
func (c *Contract) readPermissioned(balance, owner *ledger.Account, bump uint8) (permissioned, error) {
	recOwner, asset, _, err := readBalanceRecord(balance, c.id, c.delegation.ID())
	if err != nil {
		return permissioned{}, fmt.Errorf("balance record: %w", err)
	}
	if err := common.CheckOwnerWitness(owner, recOwner); err != nil {
		return permissioned{}, fmt.Errorf("balance record owner: %w", err)
	}

	seeds := BalanceRecordSeeds(recOwner, asset)
	if err := common.CheckCanonicalAddress(balance, seeds, bump, c.id); err != nil {
		return permissioned{}, err
	}

	return permissioned{owner: recOwner, seeds: seeds.WithBump(bump)}, nil
}

func (c *Contract) checkPermissionAddress(perm, balance *ledger.Account) error {
	expected, _, err := permission.Address(c.permission.ID(), balance.Address())
	if err != nil {
		return err
	}
	if perm.Address() != expected {
		return fmt.Errorf("permission record: %w", common.ErrInvalidSeeds)
	}
	return nil
}

// createPermission creates the permission record of the balance record,
// does nothing if it exists. Accounts:
//
//	0. [writable]         balance record
//	1. [writable]         permission record
//	2. [signer, writable] balance record owner, pays for the record
//	3. []                 system program
//	4. []                 permission program
func (c *Contract) createPermission(accounts []*ledger.Account, data []byte) error {
	args, err := newPayload(data, membersHeaderLen)
	if err != nil {
		return err
	}
	if err := checkAccounts(accounts, 5); err != nil {
		return err
	}

	var (
		balance = accounts[0]
		perm    = accounts[1]
		payer   = accounts[2]
		sys     = accounts[3]
	)

	if err := common.CheckAddress(sys, c.system.ID()); err != nil {
		return fmt.Errorf("system program: %w", err)
	}
	if err := common.CheckAddress(accounts[4], c.permission.ID()); err != nil {
		return fmt.Errorf("permission program: %w", err)
	}

	p, err := c.readPermissioned(balance, payer, args.u8(0))
	if err != nil {
		return err
	}
	if err := c.checkPermissionAddress(perm, balance); err != nil {
		return err
	}

	if perm.Lamports() > 0 {
		return nil
	}

	members, err := args.members(p.owner, false)
	if err != nil {
		return err
	}

	return c.permission.Create(permission.CreatePrm{
		Permissioned: balance,
		Permission:   perm,
		Payer:        payer,
		System:       sys,
		Members:      members,
		Caller:       c.id,
		Signers:      []common.Seeds{p.seeds},
	})
}

// updatePermission replaces members of the permission record. With reset
// the owner keeps FlagAuthority. Accounts:
//
//	0. [signer, writable] balance record owner
//	1. [writable]         balance record
//	2. [writable]         permission record
//	3. []                 permission program
func (c *Contract) updatePermission(accounts []*ledger.Account, data []byte, reset bool) error {
	args, err := newPayload(data, membersHeaderLen)
	if err != nil {
		return err
	}
	if err := checkAccounts(accounts, 4); err != nil {
		return err
	}

	var (
		owner   = accounts[0]
		balance = accounts[1]
		perm    = accounts[2]
	)

	if err := common.CheckAddress(accounts[3], c.permission.ID()); err != nil {
		return fmt.Errorf("permission program: %w", err)
	}

	p, err := c.readPermissioned(balance, owner, args.u8(0))
	if err != nil {
		return err
	}
	if err := c.checkExistingPermission(perm, balance); err != nil {
		return err
	}

	members, err := args.members(p.owner, reset)
	if err != nil {
		return err
	}

	return c.permission.Update(permission.UpdatePrm{
		Authority:    owner,
		Permissioned: balance,
		Permission:   perm,
		Members:      members,
		Caller:       c.id,
		Signers:      []common.Seeds{p.seeds},
	})
}

// closePermission removes the permission record. Accounts:
//
//	0. [signer, writable] balance record owner, receives the record lamports
//	1. [writable]         balance record
//	2. [writable]         permission record
//	3. []                 permission program
func (c *Contract) closePermission(accounts []*ledger.Account, data []byte) error {
	args, err := newPayload(data, 1)
	if err != nil {
		return err
	}
	if err := checkAccounts(accounts, 4); err != nil {
		return err
	}

	var (
		owner   = accounts[0]
		balance = accounts[1]
		perm    = accounts[2]
	)

	if err := common.CheckAddress(accounts[3], c.permission.ID()); err != nil {
		return fmt.Errorf("permission program: %w", err)
	}

	p, err := c.readPermissioned(balance, owner, args.u8(0))
	if err != nil {
		return err
	}
	if err := c.checkExistingPermission(perm, balance); err != nil {
		return err
	}

	return c.permission.Close(permission.ClosePrm{
		Authority:    owner,
		Permissioned: balance,
		Permission:   perm,
		Caller:       c.id,
		Signers:      []common.Seeds{p.seeds},
	})
}

// delegatePermission hands the permission record over to the delegation
// service. Accounts:
//
//	0. [signer, writable] balance record owner, pays for delegation
//	1. [writable]         balance record
//	2. []                 permission program
//	3. [writable]         permission record
//	4. []                 system program
//	5. [writable]         delegate buffer
//	6. [writable]         delegation record
//	7. [writable]         delegation metadata
//	8. []                 delegation program
//	9. []                 validator, zero address for any
func (c *Contract) delegatePermission(accounts []*ledger.Account, data []byte) error {
	args, err := newPayload(data, 1)
	if err != nil {
		return err
	}
	if err := checkAccounts(accounts, 10); err != nil {
		return err
	}

	var (
		payer   = accounts[0]
		balance = accounts[1]
		perm    = accounts[3]
		sys     = accounts[4]
	)

	if err := common.CheckAddress(accounts[2], c.permission.ID()); err != nil {
		return fmt.Errorf("permission program: %w", err)
	}
	if err := common.CheckAddress(sys, c.system.ID()); err != nil {
		return fmt.Errorf("system program: %w", err)
	}
	if err := common.CheckAddress(accounts[8], c.delegation.ID()); err != nil {
		return fmt.Errorf("delegation program: %w", err)
	}

	p, err := c.readPermissioned(balance, payer, args.u8(0))
	if err != nil {
		return err
	}
	if err := c.checkExistingPermission(perm, balance); err != nil {
		return err
	}

	var cfg delegation.Config
	if v := accounts[9].Address(); !common.IsZero(v) {
		cfg.Validator = &v
	}

	return c.permission.Delegate(permission.DelegatePrm{
		Payer:        payer,
		Permissioned: balance,
		Permission:   perm,
		System:       sys,
		Buffer:       accounts[5],
		Record:       accounts[6],
		Metadata:     accounts[7],
		Config:       cfg,
		Caller:       c.id,
		Signers:      []common.Seeds{p.seeds},
	})
}

// undelegatePermission asks the delegation service to commit the
// permission record and give it back to the permission program. Accounts:
//
//	0. [signer, writable] balance record owner
//	1. [writable]         balance record
//	2. [writable]         permission record
//	3. []                 permission program
//	4. []                 delegation program
//	5. [writable]         magic context
func (c *Contract) undelegatePermission(accounts []*ledger.Account, _ []byte) error {
	if err := checkAccounts(accounts, 6); err != nil {
		return err
	}

	var (
		payer   = accounts[0]
		balance = accounts[1]
		perm    = accounts[2]
		magic   = accounts[4]
	)

	if err := common.CheckAddress(accounts[3], c.permission.ID()); err != nil {
		return fmt.Errorf("permission program: %w", err)
	}
	if err := common.CheckAddress(magic, c.delegation.ID()); err != nil {
		return fmt.Errorf("delegation program: %w", err)
	}

	owner, asset, _, err := readBalanceRecord(balance, c.id, c.delegation.ID())
	if err != nil {
		return fmt.Errorf("balance record: %w", err)
	}

	_, bump, err := BalanceRecordAddress(c.id, owner, asset)
	if err != nil {
		return err
	}

	p, err := c.readPermissioned(balance, payer, bump)
	if err != nil {
		return err
	}
	if err := c.checkPermissionAddress(perm, balance); err != nil {
		return err
	}
	if err := common.CheckOwnership(perm, c.delegation.ID()); err != nil {
		return fmt.Errorf("permission record is not delegated: %w", err)
	}

	return c.permission.CommitAndUndelegate(permission.UndelegatePrm{
		Payer:        payer,
		Permissioned: balance,
		Permission:   perm,
		MagicContext: accounts[5],
		MagicProgram: magic,
		Caller:       c.id,
		Signers:      []common.Seeds{p.seeds},
	})
}

// checkExistingPermission verifies the permission record of the balance
// record exists and is managed by the permission program.
func (c *Contract) checkExistingPermission(perm, balance *ledger.Account) error {
	if err := c.checkPermissionAddress(perm, balance); err != nil {
		return err
	}
	if perm.Lamports() == 0 {
		return fmt.Errorf("permission record does not exist: %w", common.ErrInvalidAccountData)
	}
	if err := common.CheckOwnership(perm, c.permission.ID()); err != nil {
		return fmt.Errorf("permission record: %w", err)
	}
	return nil
}
