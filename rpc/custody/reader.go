package custody

import (
	"errors"
	"fmt"

	contract "github.com/nspcc-dev/custody-contract/contracts/custody"
	"github.com/nspcc-dev/custody-contract/ledger"
	"github.com/nspcc-dev/custody-contract/services/permission"
	"github.com/nspcc-dev/custody-contract/services/token"
	"github.com/nspcc-dev/neo-go/pkg/util"
)

// ErrNotFound is returned when there is no record at the address.
var ErrNotFound = errors.New("record not found")

// AccountReader provides stored accounts.
type AccountReader interface {
	Get(addr util.Uint256) (ledger.AccountInfo, bool)
}

// Reader reads custody program records.
type Reader struct {
	accounts AccountReader
	p        Programs
}

// NewReader creates the reader of records stored in accounts.
func NewReader(accounts AccountReader, p Programs) *Reader {
	return &Reader{accounts: accounts, p: p}
}

// BalanceRecord returns the owner's balance record of the asset.
func (r *Reader) BalanceRecord(owner, asset util.Uint256) (BalanceRecord, error) {
	addr, _, err := contract.BalanceRecordAddress(r.p.Custody, owner, asset)
	if err != nil {
		return BalanceRecord{}, err
	}

	info, ok := r.accounts.Get(addr)
	if !ok {
		return BalanceRecord{}, ErrNotFound
	}
	if info.Owner != r.p.Custody && info.Owner != r.p.Delegation {
		return BalanceRecord{}, fmt.Errorf("balance record is owned by unexpected program")
	}

	rec, err := contract.ParseBalanceRecord(info.Data)
	if err != nil {
		return BalanceRecord{}, err
	}

	return BalanceRecord{
		Address:   addr,
		Owner:     rec.Owner(),
		Asset:     rec.Asset(),
		Amount:    rec.Amount(),
		Delegated: info.Owner == r.p.Delegation,
	}, nil
}

// VaultRecordExists checks whether the asset vault record is initialized.
func (r *Reader) VaultRecordExists(asset util.Uint256) (bool, error) {
	addr, _, err := contract.VaultRecordAddress(r.p.Custody, asset)
	if err != nil {
		return false, err
	}

	info, ok := r.accounts.Get(addr)
	if !ok || info.Owner != r.p.Custody {
		return false, nil
	}

	rec, err := contract.ParseVaultRecord(info.Data)
	if err != nil {
		return false, err
	}

	return rec.IsInitialized(), nil
}

// Permission returns the permission record of the owner's balance record.
func (r *Reader) Permission(owner, asset util.Uint256) (permission.Record, error) {
	rec, _, err := contract.BalanceRecordAddress(r.p.Custody, owner, asset)
	if err != nil {
		return permission.Record{}, err
	}
	addr, _, err := permission.Address(r.p.Permission, rec)
	if err != nil {
		return permission.Record{}, err
	}

	info, ok := r.accounts.Get(addr)
	if !ok {
		return permission.Record{}, ErrNotFound
	}
	if info.Owner != r.p.Permission && info.Owner != r.p.Delegation {
		return permission.Record{}, fmt.Errorf("permission record is owned by unexpected program")
	}

	return permission.DecodeRecord(info.Data)
}

// TokenBalance returns amount held by the token account.
func (r *Reader) TokenBalance(acc util.Uint256) (uint64, error) {
	info, ok := r.accounts.Get(acc)
	if !ok {
		return 0, ErrNotFound
	}
	if info.Owner != r.p.Token {
		return 0, fmt.Errorf("not a token account")
	}

	ta, err := token.ParseAccount(info.Data)
	if err != nil {
		return 0, err
	}

	return ta.Amount(), nil
}
