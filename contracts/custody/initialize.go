package custody

import (
	"fmt"

	"github.com/nspcc-dev/custody-contract/common"
	"github.com/nspcc-dev/custody-contract/contracts/custody/custodyconst"
	"github.com/nspcc-dev/custody-contract/ledger"
	"github.com/nspcc-dev/custody-contract/services/system"
	"go.uber.org/zap"
)

// initializeBalanceRecord creates the balance record of the owner×asset
// pair. Accounts:
//
//	0. [writable]         balance record, derived from [owner, asset]
//	1. [signer, writable] payer
//	2. []                 owner
//	3. []                 asset
//	4. []                 system program
func (c *Contract) initializeBalanceRecord(accounts []*ledger.Account, data []byte) error {
	args, err := newPayload(data, 1)
	if err != nil {
		return err
	}
	if err := checkAccounts(accounts, 5); err != nil {
		return err
	}

	var (
		balance = accounts[0]
		payer   = accounts[1]
		owner   = accounts[2].Address()
		asset   = accounts[3].Address()
		sys     = accounts[4]
	)

	if err := common.CheckAddress(sys, c.system.ID()); err != nil {
		return fmt.Errorf("system program: %w", err)
	}

	seeds := BalanceRecordSeeds(owner, asset)
	if err := common.CheckCanonicalAddress(balance, seeds, args.u8(0), c.id); err != nil {
		return err
	}

	switch balance.Owner() {
	case c.id:
		c.log.Debug("balance record already initialized",
			zap.String("record", common.EncodeAddress(balance.Address())))
		return nil
	case c.delegation.ID():
		return fmt.Errorf("balance record is delegated: %w", common.ErrAlreadyInUse)
	}

	if err := common.CheckWitness(payer); err != nil {
		return fmt.Errorf("payer: %w", err)
	}

	err = c.system.CreateAccount(system.CreateAccountPrm{
		Payer:    payer,
		Account:  balance,
		Space:    custodyconst.BalanceRecordLen,
		Lamports: c.rent.MinimumBalance(custodyconst.BalanceRecordLen),
		Owner:    c.id,
		Caller:   c.id,
		Signers:  []common.Seeds{seeds.WithBump(args.u8(0))},
	})
	if err != nil {
		return fmt.Errorf("create balance record: %w", err)
	}

	buf, release, err := balance.BorrowMut()
	if err != nil {
		return err
	}
	defer release()

	rec, err := ParseBalanceRecord(buf)
	if err != nil {
		return err
	}
	rec.init(owner, asset)

	return nil
}

// initializeVaultRecord creates the vault record of the asset. Accounts:
//
//	0. [writable]         vault record, derived from [asset]
//	1. [signer, writable] payer
//	2. []                 asset
//	3. []                 system program
func (c *Contract) initializeVaultRecord(accounts []*ledger.Account, data []byte) error {
	args, err := newPayload(data, 1)
	if err != nil {
		return err
	}
	if err := checkAccounts(accounts, 4); err != nil {
		return err
	}

	var (
		vault = accounts[0]
		payer = accounts[1]
		asset = accounts[2].Address()
		sys   = accounts[3]
	)

	if err := common.CheckAddress(sys, c.system.ID()); err != nil {
		return fmt.Errorf("system program: %w", err)
	}

	seeds := VaultRecordSeeds(asset)
	if err := common.CheckCanonicalAddress(vault, seeds, args.u8(0), c.id); err != nil {
		return err
	}

	if vault.IsOwnedBy(c.id) {
		if _, err := readVaultRecord(vault, c.id); err == nil {
			return fmt.Errorf("vault record: %w", common.ErrAlreadyInUse)
		}
	}

	if err := common.CheckWitness(payer); err != nil {
		return fmt.Errorf("payer: %w", err)
	}

	err = c.system.CreateAccount(system.CreateAccountPrm{
		Payer:    payer,
		Account:  vault,
		Space:    custodyconst.VaultRecordLen,
		Lamports: c.rent.MinimumBalance(custodyconst.VaultRecordLen),
		Owner:    c.id,
		Caller:   c.id,
		Signers:  []common.Seeds{seeds.WithBump(args.u8(0))},
	})
	if err != nil {
		return fmt.Errorf("create vault record: %w", err)
	}

	buf, release, err := vault.BorrowMut()
	if err != nil {
		return err
	}
	defer release()

	copy(buf, asset[:])

	return nil
}
