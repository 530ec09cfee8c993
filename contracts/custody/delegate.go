package custody

import (
	"fmt"

	"github.com/nspcc-dev/custody-contract/common"
	"github.com/nspcc-dev/custody-contract/contracts/custody/custodyconst"
	"github.com/nspcc-dev/custody-contract/ledger"
	"github.com/nspcc-dev/custody-contract/services/delegation"
	"github.com/nspcc-dev/custody-contract/services/token"
	"github.com/nspcc-dev/neo-go/pkg/util"
)

const validatorLen = 32

// delegateBalanceRecord hands the balance record over to the delegation
// service. Optional validator follows the bump in the payload. Accounts:
//
//	0. [signer, writable] balance record owner, pays for delegation
//	1. [writable]         balance record
//	2. []                 this program
//	3. [writable]         delegate buffer
//	4. [writable]         delegation record
//	5. [writable]         delegation metadata
//	6. []                 delegation program
//	7. []                 system program
func (c *Contract) delegateBalanceRecord(accounts []*ledger.Account, data []byte) error {
	args, err := newPayload(data, 1)
	if err != nil {
		return err
	}
	if err := checkAccounts(accounts, 8); err != nil {
		return err
	}

	var cfg delegation.Config
	switch len(args) {
	case 1:
	case 1 + validatorLen:
		v := args.address(1)
		cfg.Validator = &v
	default:
		return fmt.Errorf("delegation payload of %d bytes: %w", len(args), common.ErrInvalidInstruction)
	}

	var (
		payer   = accounts[0]
		balance = accounts[1]
	)

	if err := common.CheckAddress(accounts[2], c.id); err != nil {
		return fmt.Errorf("owner program: %w", err)
	}
	if err := common.CheckAddress(accounts[6], c.delegation.ID()); err != nil {
		return fmt.Errorf("delegation program: %w", err)
	}
	if err := common.CheckAddress(accounts[7], c.system.ID()); err != nil {
		return fmt.Errorf("system program: %w", err)
	}

	owner, asset, _, err := readBalanceRecord(balance, c.id)
	if err != nil {
		return fmt.Errorf("balance record: %w", err)
	}
	if err := common.CheckOwnerWitness(payer, owner); err != nil {
		return fmt.Errorf("balance record owner: %w", err)
	}

	seeds := BalanceRecordSeeds(owner, asset)
	if err := common.CheckCanonicalAddress(balance, seeds, args.u8(0), c.id); err != nil {
		return err
	}

	return c.delegation.Delegate(delegation.DelegatePrm{
		Payer:    payer,
		Account:  balance,
		Buffer:   accounts[3],
		Record:   accounts[4],
		Metadata: accounts[5],
		Owner:    c.id,
		Seeds:    seeds,
		Bump:     args.u8(0),
		Config:   cfg,
	})
}

// undelegateBalanceRecord asks the delegation service to commit the balance
// record and give it back. Accounts:
//
//	0. [signer, writable] balance record owner
//	1. [writable]         balance record
//	2. [writable]         magic context
//	3. []                 delegation program
//	4. []                 optional owner's token account of the asset
func (c *Contract) undelegateBalanceRecord(accounts []*ledger.Account, _ []byte) error {
	if err := checkAccounts(accounts, 4); err != nil {
		return err
	}

	var (
		payer   = accounts[0]
		balance = accounts[1]
		magic   = accounts[3]
	)

	if err := common.CheckWitness(payer); err != nil {
		return fmt.Errorf("payer: %w", err)
	}
	if err := common.CheckAddress(magic, c.delegation.ID()); err != nil {
		return fmt.Errorf("delegation program: %w", err)
	}

	_, asset, _, err := readBalanceRecord(balance, c.delegation.ID())
	if err != nil {
		return fmt.Errorf("balance record: %w", err)
	}

	expected, _, err := BalanceRecordAddress(c.id, payer.Address(), asset)
	if err != nil {
		return err
	}
	if balance.Address() != expected {
		return fmt.Errorf("balance record is not derived from the payer: %w", common.ErrInvalidSeeds)
	}

	if len(accounts) > 4 {
		if err := c.checkCompanion(accounts[4], payer.Address(), asset); err != nil {
			return err
		}
	}

	return c.delegation.CommitAndUndelegate(delegation.CommitAndUndelegatePrm{
		Payer:        payer,
		Accounts:     []*ledger.Account{balance},
		MagicContext: accounts[2],
		MagicProgram: magic,
		Caller:       c.id,
	})
}

// checkCompanion verifies the token account belongs to the owner×asset
// pair.
func (c *Contract) checkCompanion(acc *ledger.Account, owner, asset util.Uint256) error {
	if err := common.CheckOwnership(acc, c.token.ID()); err != nil {
		return fmt.Errorf("companion token account: %w", err)
	}

	data, release, err := acc.Borrow()
	if err != nil {
		return err
	}
	defer release()

	ta, err := token.ParseAccount(data)
	if err != nil || ta.Owner() != owner || ta.Mint() != asset {
		return fmt.Errorf("companion token account does not match the balance record: %w", common.ErrInvalidAccountData)
	}

	return nil
}

// undelegationCallback restores the account given back by the delegation
// service. Accounts are passed to the restore routine as is:
//
//	0. [writable]         delegated account
//	1. [signer]           undelegate buffer
//	2. [signer, writable] payer
//	3. []                 system program
func (c *Contract) undelegationCallback(accounts []*ledger.Account, data []byte) error {
	args, err := newPayload(data, custodyconst.CallbackHeaderLen)
	if err != nil {
		return err
	}
	if err := checkAccounts(accounts, 4); err != nil {
		return err
	}

	return c.delegation.Restore(delegation.RestorePrm{
		Delegated: accounts[0],
		Buffer:    accounts[1],
		Payer:     accounts[2],
		System:    accounts[3],
		Owner:     c.id,
		Args:      args.tail(custodyconst.CallbackHeaderLen),
	})
}
