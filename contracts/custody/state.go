package custody

import (
	"encoding/binary"
	"fmt"

	"github.com/nspcc-dev/custody-contract/common"
	"github.com/nspcc-dev/custody-contract/contracts/custody/custodyconst"
	"github.com/nspcc-dev/neo-go/pkg/util"
)

const (
	ownerOff  = 0
	assetOff  = 32
	amountOff = 64
)

// BalanceRecord is a view of the balance record data.
type BalanceRecord []byte

// ParseBalanceRecord checks the data length and returns the record view.
func ParseBalanceRecord(data []byte) (BalanceRecord, error) {
	if len(data) != custodyconst.BalanceRecordLen {
		return nil, fmt.Errorf("balance record of %d bytes: %w", len(data), common.ErrInvalidAccountData)
	}
	return BalanceRecord(data), nil
}

// Owner returns the identity balance is kept for.
func (r BalanceRecord) Owner() util.Uint256 { return uint256At(r, ownerOff) }

// Asset returns the mint of the kept tokens.
func (r BalanceRecord) Asset() util.Uint256 { return uint256At(r, assetOff) }

// Amount returns the kept amount.
func (r BalanceRecord) Amount() uint64 { return binary.LittleEndian.Uint64(r[amountOff:]) }

// IsInitialized checks whether the asset is set.
func (r BalanceRecord) IsInitialized() bool { return !common.IsZero(r.Asset()) }

// SetAmount sets the kept amount.
func (r BalanceRecord) SetAmount(v uint64) { binary.LittleEndian.PutUint64(r[amountOff:], v) }

func (r BalanceRecord) init(owner, asset util.Uint256) {
	copy(r[ownerOff:], owner[:])
	copy(r[assetOff:], asset[:])
	r.SetAmount(0)
}

// VaultRecord is a view of the vault record data.
type VaultRecord []byte

// ParseVaultRecord checks the data length and returns the record view.
func ParseVaultRecord(data []byte) (VaultRecord, error) {
	if len(data) != custodyconst.VaultRecordLen {
		return nil, fmt.Errorf("vault record of %d bytes: %w", len(data), common.ErrInvalidAccountData)
	}
	return VaultRecord(data), nil
}

// Asset returns the mint of the pooled tokens.
func (r VaultRecord) Asset() util.Uint256 { return uint256At(r, 0) }

// IsInitialized checks whether the asset is set.
func (r VaultRecord) IsInitialized() bool { return !common.IsZero(r.Asset()) }

func uint256At(b []byte, off int) util.Uint256 {
	var res util.Uint256
	copy(res[:], b[off:off+len(res)])
	return res
}

// BalanceRecordSeeds returns seeds (without the bump) of the balance record.
func BalanceRecordSeeds(owner, asset util.Uint256) common.Seeds {
	return common.Seeds{owner[:], asset[:]}
}

// BalanceRecordAddress returns address and bump of the owner's balance
// record of the asset.
func BalanceRecordAddress(program, owner, asset util.Uint256) (util.Uint256, uint8, error) {
	return common.FindProgramAddress(BalanceRecordSeeds(owner, asset), program)
}

// VaultRecordSeeds returns seeds (without the bump) of the vault record.
func VaultRecordSeeds(asset util.Uint256) common.Seeds {
	return common.Seeds{asset[:]}
}

// VaultRecordAddress returns address and bump of the asset vault record.
func VaultRecordAddress(program, asset util.Uint256) (util.Uint256, uint8, error) {
	return common.FindProgramAddress(VaultRecordSeeds(asset), program)
}
