package custody

import (
	"encoding/binary"
	"testing"

	contract "github.com/nspcc-dev/custody-contract/contracts/custody"
	"github.com/nspcc-dev/custody-contract/contracts/custody/custodyconst"
	"github.com/nspcc-dev/custody-contract/ledger"
	"github.com/nspcc-dev/custody-contract/services/delegation"
	"github.com/nspcc-dev/custody-contract/services/permission"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/stretchr/testify/require"
)

var testPrograms = Programs{
	Custody:    util.Uint256{0xc0},
	System:     util.Uint256{},
	Token:      util.Uint256{0x70},
	Delegation: util.Uint256{0xde},
	Permission: util.Uint256{0xac},
}

func TestBuilderAddresses(t *testing.T) {
	b := NewBuilder(testPrograms)
	require.Equal(t, testPrograms, b.Programs())

	owner, asset := util.Uint256{1}, util.Uint256{2}

	rec, bump, err := b.BalanceRecordAddress(owner, asset)
	require.NoError(t, err)

	exp, expBump, err := contract.BalanceRecordAddress(testPrograms.Custody, owner, asset)
	require.NoError(t, err)
	require.Equal(t, exp, rec)
	require.Equal(t, expBump, bump)

	perm, err := b.PermissionAddress(owner, asset)
	require.NoError(t, err)

	expPerm, _, err := permission.Address(testPrograms.Permission, rec)
	require.NoError(t, err)
	require.Equal(t, expPerm, perm)
}

func TestBuilderInstructions(t *testing.T) {
	b := NewBuilder(testPrograms)
	owner, asset := util.Uint256{1}, util.Uint256{2}

	rec, recBump, err := b.BalanceRecordAddress(owner, asset)
	require.NoError(t, err)
	vault, vaultBump, err := b.VaultRecordAddress(asset)
	require.NoError(t, err)

	t.Run("initialize", func(t *testing.T) {
		in, err := b.InitializeBalanceRecord(owner, owner, asset)
		require.NoError(t, err)
		require.Equal(t, testPrograms.Custody, in.Program)
		require.Equal(t, []byte{custodyconst.OpInitializeBalanceRecord, recBump}, in.Data)
		require.Equal(t, ledger.Writable(rec), in.Accounts[0])
		require.Equal(t, ledger.WritableSigner(owner), in.Accounts[1])
		require.Len(t, in.Accounts, 5)

		in, err = b.InitializeVaultRecord(owner, asset)
		require.NoError(t, err)
		require.Equal(t, []byte{custodyconst.OpInitializeVaultRecord, vaultBump}, in.Data)
		require.Equal(t, ledger.Writable(vault), in.Accounts[0])
	})

	t.Run("withdraw", func(t *testing.T) {
		in, err := b.Withdraw(WithdrawPrm{Owner: owner, Asset: asset, Amount: 0x0102})
		require.NoError(t, err)
		require.Len(t, in.Data, 10)
		require.Equal(t, byte(custodyconst.OpWithdraw), in.Data[0])
		require.EqualValues(t, 0x0102, binary.LittleEndian.Uint64(in.Data[1:]))
		require.Equal(t, vaultBump, in.Data[9])
		require.Equal(t, ledger.ReadonlySigner(owner), in.Accounts[5])
	})

	t.Run("delegate", func(t *testing.T) {
		in, err := b.DelegateBalanceRecord(owner, asset, nil)
		require.NoError(t, err)
		require.Equal(t, []byte{custodyconst.OpDelegateBalanceRecord, recBump}, in.Data)
		require.Len(t, in.Accounts, 8)

		buf, _, err := delegation.BufferAddress(testPrograms.Custody, rec)
		require.NoError(t, err)
		require.Equal(t, ledger.Writable(buf), in.Accounts[3])

		v := util.Uint256{9}
		in, err = b.DelegateBalanceRecord(owner, asset, &v)
		require.NoError(t, err)
		require.Equal(t, v[:], in.Data[2:])
	})

	t.Run("undelegate", func(t *testing.T) {
		in, err := b.UndelegateBalanceRecord(owner, asset, nil)
		require.NoError(t, err)
		require.Len(t, in.Accounts, 4)

		companion := util.Uint256{3}
		in, err = b.UndelegateBalanceRecord(owner, asset, &companion)
		require.NoError(t, err)
		require.Equal(t, ledger.Readonly(companion), in.Accounts[4])
	})

	t.Run("permission members", func(t *testing.T) {
		bob := permission.Member{Identity: util.Uint256{4}, Flags: permission.FlagTxLogs}

		in, err := b.CreatePermission(owner, asset, permission.FlagAuthority, bob)
		require.NoError(t, err)

		exp := []byte{custodyconst.OpCreatePermission, recBump, 1, 0, 0, 0, 0, 1}
		exp = append(exp, bob.Identity[:]...)
		exp = append(exp, 0, 1, 0, 0, 0)
		require.Equal(t, exp, in.Data)

		in, err = b.ResetPermission(owner, asset, 0)
		require.NoError(t, err)
		require.Equal(t, []byte{custodyconst.OpResetPermission, recBump, 0, 0, 0, 0, 0}, in.Data)

		_, err = b.UpdatePermission(owner, asset, 0, make([]permission.Member, custodyconst.MaxExtraMembers+1)...)
		require.Error(t, err)
	})

	t.Run("delegate permission", func(t *testing.T) {
		in, err := b.DelegatePermission(owner, asset, nil)
		require.NoError(t, err)
		require.Len(t, in.Accounts, 10)
		require.Equal(t, ledger.Readonly(util.Uint256{}), in.Accounts[9])

		in, err = b.UndelegatePermission(owner, asset)
		require.NoError(t, err)
		require.Len(t, in.Accounts, 6)
		require.Equal(t, []byte{custodyconst.OpUndelegatePermission}, in.Data)
	})
}

func TestReader(t *testing.T) {
	l := ledger.New(ledger.Prm{})
	r := NewReader(l, testPrograms)

	owner, asset := util.Uint256{1}, util.Uint256{2}

	_, err := r.BalanceRecord(owner, asset)
	require.ErrorIs(t, err, ErrNotFound)

	addr, _, err := contract.BalanceRecordAddress(testPrograms.Custody, owner, asset)
	require.NoError(t, err)

	data := make([]byte, custodyconst.BalanceRecordLen)
	copy(data, owner[:])
	copy(data[32:], asset[:])
	data[64] = 5

	l.Put(ledger.AccountInfo{Address: addr, Owner: testPrograms.Delegation, Lamports: 1, Data: data})

	rec, err := r.BalanceRecord(owner, asset)
	require.NoError(t, err)
	require.Equal(t, BalanceRecord{Address: addr, Owner: owner, Asset: asset, Amount: 5, Delegated: true}, rec)

	l.Put(ledger.AccountInfo{Address: addr, Owner: testPrograms.Token, Lamports: 1, Data: data})
	_, err = r.BalanceRecord(owner, asset)
	require.Error(t, err)

	ok, err := r.VaultRecordExists(asset)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = r.TokenBalance(util.Uint256{7})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = r.Permission(owner, asset)
	require.ErrorIs(t, err, ErrNotFound)
}
