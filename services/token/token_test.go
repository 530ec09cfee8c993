package token

import (
	"crypto/ed25519"
	"testing"

	"github.com/nspcc-dev/custody-contract/common"
	"github.com/nspcc-dev/custody-contract/ledger"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var tokenID = util.Uint256{0x70}

func keyAddress(t *testing.T) util.Uint256 {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	var a util.Uint256
	copy(a[:], pub)
	return a
}

type testEnv struct {
	l *ledger.Ledger
	s *Service

	mint      util.Uint256
	authority util.Uint256
}

func newTestEnv(t *testing.T, decimals uint8) *testEnv {
	e := &testEnv{
		l: ledger.New(ledger.Prm{Logger: zaptest.NewLogger(t)}),
		s: New(tokenID, zaptest.NewLogger(t)),

		mint:      keyAddress(t),
		authority: keyAddress(t),
	}

	e.l.Put(ledger.AccountInfo{Address: e.mint, Owner: tokenID, Data: make([]byte, MintLen)})
	require.NoError(t, e.s.InitializeMint(e.l.Account(e.mint, false, true), e.authority, decimals))

	return e
}

func (e *testEnv) newAccount(t *testing.T, owner util.Uint256, amount uint64) util.Uint256 {
	addr := keyAddress(t)
	e.l.Put(ledger.AccountInfo{Address: addr, Owner: tokenID, Data: make([]byte, AccountLen)})

	require.NoError(t, e.s.InitializeAccount(e.l.Account(addr, false, true), e.l.Account(e.mint, false, false), owner))

	if amount > 0 {
		require.NoError(t, e.s.MintTo(
			e.l.Account(e.mint, false, true),
			e.l.Account(addr, false, true),
			e.l.Account(e.authority, true, false),
			amount))
	}

	return addr
}

func (e *testEnv) balance(t *testing.T, addr util.Uint256) uint64 {
	info, ok := e.l.Get(addr)
	require.True(t, ok)

	a, err := ParseAccount(info.Data)
	require.NoError(t, err)
	return a.Amount()
}

func (e *testEnv) transfer(from, to, authority util.Uint256, signer bool, amount uint64, decimals uint8) TransferCheckedPrm {
	return TransferCheckedPrm{
		Mint:      e.l.Account(e.mint, false, false),
		From:      e.l.Account(from, false, true),
		To:        e.l.Account(to, false, true),
		Authority: e.l.Account(authority, signer, false),
		Amount:    amount,
		Decimals:  decimals,
	}
}

func TestInitialize(t *testing.T) {
	e := newTestEnv(t, 6)

	info, _ := e.l.Get(e.mint)
	m, err := ParseMint(info.Data)
	require.NoError(t, err)
	require.True(t, m.IsInitialized())
	require.EqualValues(t, 6, m.Decimals())
	a, ok := m.Authority()
	require.True(t, ok)
	require.Equal(t, e.authority, a)

	require.ErrorIs(t, e.s.InitializeMint(e.l.Account(e.mint, false, true), e.authority, 6), common.ErrAlreadyInUse)

	owner := keyAddress(t)
	acc := e.newAccount(t, owner, 0)

	info, _ = e.l.Get(acc)
	ta, err := ParseAccount(info.Data)
	require.NoError(t, err)
	require.Equal(t, e.mint, ta.Mint())
	require.Equal(t, owner, ta.Owner())
	require.EqualValues(t, StateInitialized, ta.State())

	err = e.s.InitializeAccount(e.l.Account(acc, false, true), e.l.Account(e.mint, false, false), owner)
	require.ErrorIs(t, err, common.ErrAlreadyInUse)

	t.Run("foreign account", func(t *testing.T) {
		addr := keyAddress(t)
		e.l.Put(ledger.AccountInfo{Address: addr, Owner: util.Uint256{1}, Data: make([]byte, AccountLen)})

		err := e.s.InitializeAccount(e.l.Account(addr, false, true), e.l.Account(e.mint, false, false), owner)
		require.ErrorIs(t, err, common.ErrInvalidAccountData)
	})

	t.Run("invalid length", func(t *testing.T) {
		addr := keyAddress(t)
		e.l.Put(ledger.AccountInfo{Address: addr, Owner: tokenID, Data: make([]byte, AccountLen-1)})

		err := e.s.InitializeAccount(e.l.Account(addr, false, true), e.l.Account(e.mint, false, false), owner)
		require.ErrorIs(t, err, common.ErrInvalidAccountData)
	})
}

func TestMintTo(t *testing.T) {
	e := newTestEnv(t, 0)
	acc := e.newAccount(t, keyAddress(t), 10)
	require.EqualValues(t, 10, e.balance(t, acc))

	err := e.s.MintTo(e.l.Account(e.mint, false, true), e.l.Account(acc, false, true),
		e.l.Account(e.authority, false, false), 1)
	require.ErrorIs(t, err, common.ErrMissingRequiredSignature)

	err = e.s.MintTo(e.l.Account(e.mint, false, true), e.l.Account(acc, false, true),
		e.l.Account(keyAddress(t), true, false), 1)
	require.ErrorIs(t, err, ErrOwnerMismatch)

	err = e.s.MintTo(e.l.Account(e.mint, false, true), e.l.Account(acc, false, true),
		e.l.Account(e.authority, true, false), ^uint64(0))
	require.ErrorIs(t, err, ErrOverflow)
	require.EqualValues(t, 10, e.balance(t, acc))
}

func TestTransferChecked(t *testing.T) {
	e := newTestEnv(t, 6)

	alice := keyAddress(t)
	bob := keyAddress(t)

	from := e.newAccount(t, alice, 100)
	to := e.newAccount(t, bob, 0)

	require.NoError(t, e.s.TransferChecked(e.transfer(from, to, alice, true, 30, 6)))
	require.EqualValues(t, 70, e.balance(t, from))
	require.EqualValues(t, 30, e.balance(t, to))

	t.Run("self", func(t *testing.T) {
		require.NoError(t, e.s.TransferChecked(e.transfer(from, from, alice, true, 70, 6)))
		require.EqualValues(t, 70, e.balance(t, from))
	})

	t.Run("decimals", func(t *testing.T) {
		err := e.s.TransferChecked(e.transfer(from, to, alice, true, 1, 9))
		require.ErrorIs(t, err, ErrDecimalsMismatch)
	})

	t.Run("insufficient funds", func(t *testing.T) {
		err := e.s.TransferChecked(e.transfer(from, to, alice, true, 71, 6))
		require.ErrorIs(t, err, ErrInsufficientFunds)
		require.EqualValues(t, 70, e.balance(t, from))
	})

	t.Run("not signed", func(t *testing.T) {
		err := e.s.TransferChecked(e.transfer(from, to, alice, false, 1, 6))
		require.ErrorIs(t, err, common.ErrMissingRequiredSignature)
	})

	t.Run("not owner", func(t *testing.T) {
		err := e.s.TransferChecked(e.transfer(from, to, bob, true, 1, 6))
		require.ErrorIs(t, err, ErrOwnerMismatch)
	})

	t.Run("other mint", func(t *testing.T) {
		other := newTestEnv(t, 6)
		foreign := other.newAccount(t, bob, 0)

		info, _ := other.l.Get(foreign)
		e.l.Put(info)

		err := e.s.TransferChecked(e.transfer(from, foreign, alice, true, 1, 6))
		require.ErrorIs(t, err, ErrMintMismatch)
	})

	t.Run("frozen", func(t *testing.T) {
		frozen := e.newAccount(t, bob, 0)

		info, _ := e.l.Get(frozen)
		info.Data[accountStateOff] = StateFrozen
		e.l.Put(info)

		err := e.s.TransferChecked(e.transfer(from, frozen, alice, true, 1, 6))
		require.ErrorIs(t, err, ErrAccountFrozen)
	})

	t.Run("derived authority", func(t *testing.T) {
		program := util.Uint256{0xcc}
		seeds := common.Seeds{[]byte("vault")}

		vault, bump, err := common.FindProgramAddress(seeds, program)
		require.NoError(t, err)

		src := e.newAccount(t, vault, 5)

		prm := e.transfer(src, to, vault, false, 5, 6)
		require.ErrorIs(t, e.s.TransferChecked(prm), common.ErrMissingRequiredSignature)

		prm.Caller = program
		prm.Signers = []common.Seeds{seeds.WithBump(bump)}
		require.NoError(t, e.s.TransferChecked(prm))
		require.Zero(t, e.balance(t, src))
		require.EqualValues(t, 35, e.balance(t, to))
	})
}
