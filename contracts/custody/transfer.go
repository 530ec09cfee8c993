package custody

import (
	"fmt"
	"math"

	"github.com/nspcc-dev/custody-contract/common"
	"github.com/nspcc-dev/custody-contract/ledger"
	"github.com/nspcc-dev/custody-contract/services/token"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"go.uber.org/zap"
)

// deposit moves tokens from the user into the vault and credits the
// balance record. Accounts:
//
//	0. [writable] balance record
//	1. []         vault record
//	2. []         asset
//	3. [writable] user source token account
//	4. [writable] vault token account
//	5. [signer]   user source authority
//	6. []         token program
func (c *Contract) deposit(accounts []*ledger.Account, data []byte) error {
	args, err := newPayload(data, 8)
	if err != nil {
		return err
	}
	if err := checkAccounts(accounts, 7); err != nil {
		return err
	}

	var (
		balance   = accounts[0]
		vault     = accounts[1]
		asset     = accounts[2]
		source    = accounts[3]
		vaultTok  = accounts[4]
		authority = accounts[5]
		tokenProg = accounts[6]
		amount    = args.u64(0)
	)

	if err := common.CheckAddress(tokenProg, c.token.ID()); err != nil {
		return fmt.Errorf("token program: %w", err)
	}
	if err := common.CheckWitness(authority); err != nil {
		return fmt.Errorf("source authority: %w", err)
	}

	_, recAsset, current, err := readBalanceRecord(balance, c.id)
	if err != nil {
		return fmt.Errorf("balance record: %w", err)
	}

	vaultAsset, err := readVaultRecord(vault, c.id)
	if err != nil {
		return fmt.Errorf("vault record: %w", err)
	}

	if recAsset != asset.Address() || vaultAsset != asset.Address() {
		return fmt.Errorf("asset mismatch: %w", common.ErrInvalidAccountData)
	}

	if amount > math.MaxUint64-current {
		return fmt.Errorf("deposit %d to %d: %w", amount, current, common.ErrArithmeticOverflow)
	}
	updated := current + amount

	decimals, err := c.decimals(asset)
	if err != nil {
		return err
	}
	if err := c.checkVaultTokenAccount(vaultTok, asset.Address(), vault.Address()); err != nil {
		return err
	}

	err = c.token.TransferChecked(token.TransferCheckedPrm{
		Mint:      asset,
		From:      source,
		To:        vaultTok,
		Authority: authority,
		Amount:    amount,
		Decimals:  decimals,
		Caller:    c.id,
	})
	if err != nil {
		return fmt.Errorf("transfer to vault: %w", err)
	}

	if err := writeAmount(balance, updated); err != nil {
		return err
	}

	c.log.Debug("deposit",
		zap.String("record", common.EncodeAddress(balance.Address())),
		zap.Uint64("amount", amount),
		zap.Uint64("balance", updated))

	return nil
}

// withdraw moves tokens from the vault to the user and debits the balance
// record. The vault record signs the transfer. Accounts:
//
//	0. [writable] balance record
//	1. []         vault record, derived from [asset]
//	2. []         asset
//	3. [writable] vault token account
//	4. [writable] user destination token account
//	5. [signer]   balance record owner
//	6. []         token program
func (c *Contract) withdraw(accounts []*ledger.Account, data []byte) error {
	args, err := newPayload(data, 9)
	if err != nil {
		return err
	}
	if err := checkAccounts(accounts, 7); err != nil {
		return err
	}

	var (
		balance     = accounts[0]
		vault       = accounts[1]
		asset       = accounts[2]
		vaultTok    = accounts[3]
		destination = accounts[4]
		owner       = accounts[5]
		tokenProg   = accounts[6]
		amount      = args.u64(0)
		vaultSeeds  = VaultRecordSeeds(asset.Address())
	)

	if err := common.CheckAddress(tokenProg, c.token.ID()); err != nil {
		return fmt.Errorf("token program: %w", err)
	}
	if err := common.CheckCanonicalAddress(vault, vaultSeeds, args.u8(8), c.id); err != nil {
		return fmt.Errorf("vault record: %w", err)
	}

	recOwner, recAsset, current, err := readBalanceRecord(balance, c.id)
	if err != nil {
		return fmt.Errorf("balance record: %w", err)
	}
	if err := common.CheckOwnerWitness(owner, recOwner); err != nil {
		return fmt.Errorf("balance record owner: %w", err)
	}

	vaultAsset, err := readVaultRecord(vault, c.id)
	if err != nil {
		return fmt.Errorf("vault record: %w", err)
	}

	if recAsset != asset.Address() || vaultAsset != asset.Address() {
		return fmt.Errorf("asset mismatch: %w", common.ErrInvalidAccountData)
	}

	if amount > current {
		return fmt.Errorf("withdraw %d from %d: %w", amount, current, common.ErrArithmeticOverflow)
	}
	updated := current - amount

	decimals, err := c.decimals(asset)
	if err != nil {
		return err
	}
	if err := c.checkVaultTokenAccount(vaultTok, asset.Address(), vault.Address()); err != nil {
		return err
	}

	err = c.token.TransferChecked(token.TransferCheckedPrm{
		Mint:      asset,
		From:      vaultTok,
		To:        destination,
		Authority: vault,
		Amount:    amount,
		Decimals:  decimals,
		Caller:    c.id,
		Signers:   []common.Seeds{vaultSeeds.WithBump(args.u8(8))},
	})
	if err != nil {
		return fmt.Errorf("transfer from vault: %w", err)
	}

	if err := writeAmount(balance, updated); err != nil {
		return err
	}

	c.log.Debug("withdraw",
		zap.String("record", common.EncodeAddress(balance.Address())),
		zap.Uint64("amount", amount),
		zap.Uint64("balance", updated))

	return nil
}

// decimals reads precision of the asset mint.
func (c *Contract) decimals(asset *ledger.Account) (uint8, error) {
	if err := common.CheckOwnership(asset, c.token.ID()); err != nil {
		return 0, fmt.Errorf("asset: %w", err)
	}

	data, release, err := asset.Borrow()
	if err != nil {
		return 0, err
	}
	defer release()

	m, err := token.ParseMint(data)
	if err != nil || !m.IsInitialized() {
		return 0, fmt.Errorf("asset is not a mint: %w", common.ErrInvalidAccountData)
	}

	return m.Decimals(), nil
}

// checkVaultTokenAccount verifies the token account holds the asset on
// behalf of the vault record.
func (c *Contract) checkVaultTokenAccount(acc *ledger.Account, asset, vault util.Uint256) error {
	if err := common.CheckOwnership(acc, c.token.ID()); err != nil {
		return fmt.Errorf("vault token account: %w", err)
	}

	data, release, err := acc.Borrow()
	if err != nil {
		return err
	}
	defer release()

	ta, err := token.ParseAccount(data)
	if err != nil {
		return fmt.Errorf("vault token account: %w", common.ErrInvalidAccountData)
	}
	if ta.Mint() != asset || ta.Owner() != vault {
		return fmt.Errorf("vault token account is not held by the vault: %w", common.ErrInvalidAccountData)
	}

	return nil
}

func writeAmount(balance *ledger.Account, amount uint64) error {
	data, release, err := balance.BorrowMut()
	if err != nil {
		return err
	}
	defer release()

	rec, err := ParseBalanceRecord(data)
	if err != nil {
		return err
	}
	rec.SetAmount(amount)

	return nil
}
