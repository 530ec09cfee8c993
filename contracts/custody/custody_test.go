package custody_test

import (
	"math"
	"testing"

	"github.com/nspcc-dev/custody-contract/common"
	"github.com/nspcc-dev/custody-contract/contracts/custody"
	"github.com/nspcc-dev/custody-contract/contracts/custody/custodyconst"
	"github.com/nspcc-dev/custody-contract/ledger"
	rpccustody "github.com/nspcc-dev/custody-contract/rpc/custody"
	"github.com/nspcc-dev/custody-contract/services/permission"
	"github.com/nspcc-dev/custody-contract/sim"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	userLamports = 1_000_000_000
	sixDecimals  = 1_000_000
)

type testEnv struct {
	*sim.Env

	authority  util.Uint256
	mint       util.Uint256
	vault      util.Uint256
	vaultToken util.Uint256
}

type testUser struct {
	id     util.Uint256
	tokens util.Uint256
}

func newTestEnv(t *testing.T, decimals uint8) *testEnv {
	env, err := sim.New(sim.Prm{Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)

	e := &testEnv{Env: env}

	e.authority, err = env.NewIdentity(userLamports)
	require.NoError(t, err)

	e.mint, err = env.CreateMint(e.authority, decimals)
	require.NoError(t, err)

	e.vault, _, err = env.Builder.VaultRecordAddress(e.mint)
	require.NoError(t, err)

	e.vaultToken, err = env.CreateTokenAccount(e.mint, e.vault)
	require.NoError(t, err)

	return e
}

func (e *testEnv) newUser(t *testing.T, tokens uint64) testUser {
	var (
		u   testUser
		err error
	)

	u.id, err = e.NewIdentity(userLamports)
	require.NoError(t, err)

	u.tokens, err = e.CreateTokenAccount(e.mint, u.id)
	require.NoError(t, err)

	if tokens > 0 {
		require.NoError(t, e.MintTo(e.mint, u.tokens, e.authority, tokens))
	}

	return u
}

func (e *testEnv) run(t *testing.T, in ledger.Instruction, err error) error {
	require.NoError(t, err)
	_, err = e.Execute(in)
	return err
}

func (e *testEnv) initVault(t *testing.T, payer util.Uint256) error {
	in, err := e.Builder.InitializeVaultRecord(payer, e.mint)
	return e.run(t, in, err)
}

func (e *testEnv) initBalance(t *testing.T, u testUser) error {
	in, err := e.Builder.InitializeBalanceRecord(u.id, u.id, e.mint)
	return e.run(t, in, err)
}

func (e *testEnv) deposit(t *testing.T, u testUser, amount uint64) error {
	in, err := e.Builder.Deposit(rpccustody.DepositPrm{
		Owner:      u.id,
		Asset:      e.mint,
		Source:     u.tokens,
		Authority:  u.id,
		VaultToken: e.vaultToken,
		Amount:     amount,
	})
	return e.run(t, in, err)
}

func (e *testEnv) withdraw(t *testing.T, u testUser, to util.Uint256, amount uint64) error {
	in, err := e.Builder.Withdraw(rpccustody.WithdrawPrm{
		Owner:       u.id,
		Asset:       e.mint,
		VaultToken:  e.vaultToken,
		Destination: to,
		Amount:      amount,
	})
	return e.run(t, in, err)
}

func (e *testEnv) record(t *testing.T, u testUser) rpccustody.BalanceRecord {
	rec, err := e.Reader.BalanceRecord(u.id, e.mint)
	require.NoError(t, err)
	return rec
}

func (e *testEnv) lamports(addr util.Uint256) uint64 {
	info, _ := e.Ledger.Get(addr)
	return info.Lamports
}

// setup creates the vault and the user's balance record.
func (e *testEnv) setup(t *testing.T, tokens uint64) testUser {
	u := e.newUser(t, tokens)
	require.NoError(t, e.initVault(t, u.id))
	require.NoError(t, e.initBalance(t, u))
	return u
}

func TestInitializeBalanceRecord(t *testing.T) {
	e := newTestEnv(t, 6)
	u := e.newUser(t, 0)

	require.NoError(t, e.initBalance(t, u))

	rec := e.record(t, u)
	require.Equal(t, u.id, rec.Owner)
	require.Equal(t, e.mint, rec.Asset)
	require.Zero(t, rec.Amount)
	require.False(t, rec.Delegated)

	info, ok := e.Ledger.Get(rec.Address)
	require.True(t, ok)
	require.Equal(t, e.Contract.ID(), info.Owner)
	require.Len(t, info.Data, custodyconst.BalanceRecordLen)
	require.Equal(t, e.Ledger.Rent().MinimumBalance(custodyconst.BalanceRecordLen), info.Lamports)

	t.Run("idempotent", func(t *testing.T) {
		before := e.lamports(u.id)
		require.NoError(t, e.initBalance(t, u))
		require.Equal(t, before, e.lamports(u.id))
	})

	t.Run("paid by another", func(t *testing.T) {
		other := e.newUser(t, 0)
		payer := e.newUser(t, 0)

		in, err := e.Builder.InitializeBalanceRecord(payer.id, other.id, e.mint)
		require.NoError(t, e.run(t, in, err))
		require.Equal(t, other.id, e.record(t, other).Owner)
	})

	t.Run("wrong bump", func(t *testing.T) {
		other := e.newUser(t, 0)

		in, err := e.Builder.InitializeBalanceRecord(other.id, other.id, e.mint)
		require.NoError(t, err)
		in.Data[1]--

		_, err = e.Execute(in)
		require.ErrorIs(t, err, common.ErrInvalidSeeds)

		_, err = e.Reader.BalanceRecord(other.id, e.mint)
		require.ErrorIs(t, err, rpccustody.ErrNotFound)
	})

	t.Run("wrong bump on existing", func(t *testing.T) {
		in, err := e.Builder.InitializeBalanceRecord(u.id, u.id, e.mint)
		require.NoError(t, err)
		in.Data[1]--

		_, err = e.Execute(in)
		require.ErrorIs(t, err, common.ErrInvalidSeeds)
	})

	t.Run("payer signature", func(t *testing.T) {
		other := e.newUser(t, 0)

		in, err := e.Builder.InitializeBalanceRecord(other.id, other.id, e.mint)
		require.NoError(t, err)
		in.Accounts[1] = ledger.Writable(other.id)

		_, err = e.Execute(in)
		require.ErrorIs(t, err, common.ErrMissingRequiredSignature)
	})

	t.Run("system program", func(t *testing.T) {
		other := e.newUser(t, 0)

		in, err := e.Builder.InitializeBalanceRecord(other.id, other.id, e.mint)
		require.NoError(t, err)
		in.Accounts[4] = ledger.Readonly(e.Token.ID())

		_, err = e.Execute(in)
		require.ErrorIs(t, err, common.ErrInvalidAccountData)
	})
}

func TestInitializeVaultRecord(t *testing.T) {
	e := newTestEnv(t, 6)
	u := e.newUser(t, 0)

	ok, err := e.Reader.VaultRecordExists(e.mint)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, e.initVault(t, u.id))

	ok, err = e.Reader.VaultRecordExists(e.mint)
	require.NoError(t, err)
	require.True(t, ok)

	require.ErrorIs(t, e.initVault(t, u.id), common.ErrAlreadyInUse)

	in, err := e.Builder.InitializeVaultRecord(u.id, e.mint)
	require.NoError(t, err)
	in.Data[1]--
	_, err = e.Execute(in)
	require.ErrorIs(t, err, common.ErrInvalidSeeds)
}

func TestDepositWithdraw(t *testing.T) {
	e := newTestEnv(t, 6)
	u := e.setup(t, 10_000*sixDecimals)

	require.NoError(t, e.deposit(t, u, 100*sixDecimals))

	require.EqualValues(t, 100_000_000, e.record(t, u).Amount)
	require.EqualValues(t, 100_000_000, e.TokenBalance(e.vaultToken))
	require.EqualValues(t, 9_900*sixDecimals, e.TokenBalance(u.tokens))

	dst, err := e.CreateTokenAccount(e.mint, u.id)
	require.NoError(t, err)

	require.NoError(t, e.withdraw(t, u, dst, 40*sixDecimals))

	require.EqualValues(t, 60_000_000, e.record(t, u).Amount)
	require.EqualValues(t, 40_000_000, e.TokenBalance(dst))
	require.EqualValues(t, 60_000_000, e.TokenBalance(e.vaultToken))
	require.EqualValues(t, 9_900*sixDecimals, e.TokenBalance(u.tokens))

	t.Run("underflow", func(t *testing.T) {
		require.ErrorIs(t, e.withdraw(t, u, dst, 60_000_001), common.ErrArithmeticOverflow)

		require.EqualValues(t, 60_000_000, e.record(t, u).Amount)
		require.EqualValues(t, 60_000_000, e.TokenBalance(e.vaultToken))
		require.EqualValues(t, 40_000_000, e.TokenBalance(dst))
	})

	t.Run("all", func(t *testing.T) {
		require.NoError(t, e.withdraw(t, u, dst, 60_000_000))
		require.Zero(t, e.record(t, u).Amount)
		require.Zero(t, e.TokenBalance(e.vaultToken))
		require.EqualValues(t, 100_000_000, e.TokenBalance(dst))
	})

	t.Run("zero", func(t *testing.T) {
		require.NoError(t, e.deposit(t, u, 0))
		require.NoError(t, e.withdraw(t, u, dst, 0))
		require.Zero(t, e.record(t, u).Amount)
	})
}

func TestConservation(t *testing.T) {
	e := newTestEnv(t, 9)

	users := make([]testUser, 3)
	for i := range users {
		users[i] = e.newUser(t, 1_000)
		if i == 0 {
			require.NoError(t, e.initVault(t, users[i].id))
		}
		require.NoError(t, e.initBalance(t, users[i]))
	}

	steps := []struct {
		user     int
		deposit  bool
		amount   uint64
		mustFail bool
	}{
		{0, true, 500, false},
		{1, true, 300, false},
		{2, true, 1_001, true},
		{0, false, 200, false},
		{1, false, 301, true},
		{2, true, 1_000, false},
		{2, false, 1_000, false},
		{1, false, 300, false},
	}

	for i, st := range steps {
		u := users[st.user]

		var err error
		if st.deposit {
			err = e.deposit(t, u, st.amount)
		} else {
			err = e.withdraw(t, u, u.tokens, st.amount)
		}
		if st.mustFail {
			require.Error(t, err, i)
		} else {
			require.NoError(t, err, i)
		}

		var (
			sum    uint64
			supply uint64
		)
		for _, u := range users {
			sum += e.record(t, u).Amount
			supply += e.TokenBalance(u.tokens)
		}

		require.Equal(t, sum, e.TokenBalance(e.vaultToken), i)
		require.EqualValues(t, 3_000, supply+e.TokenBalance(e.vaultToken), i)
	}

	require.EqualValues(t, 300, e.record(t, users[0]).Amount)
	require.Zero(t, e.record(t, users[1]).Amount)
	require.Zero(t, e.record(t, users[2]).Amount)
}

func TestDepositChecks(t *testing.T) {
	e := newTestEnv(t, 6)
	u := e.setup(t, 1_000)

	t.Run("overflow", func(t *testing.T) {
		rec := e.record(t, u)

		info, _ := e.Ledger.Get(rec.Address)
		br, err := custody.ParseBalanceRecord(info.Data)
		require.NoError(t, err)
		br.SetAmount(math.MaxUint64 - 5)
		e.Ledger.Put(info)

		require.ErrorIs(t, e.deposit(t, u, 10), common.ErrArithmeticOverflow)
		require.EqualValues(t, uint64(math.MaxUint64-5), e.record(t, u).Amount)
		require.EqualValues(t, 1_000, e.TokenBalance(u.tokens))

		br.SetAmount(0)
		e.Ledger.Put(info)
	})

	t.Run("insufficient tokens", func(t *testing.T) {
		require.Error(t, e.deposit(t, u, 1_001))
		require.Zero(t, e.record(t, u).Amount)
		require.EqualValues(t, 1_000, e.TokenBalance(u.tokens))
	})

	t.Run("foreign vault token account", func(t *testing.T) {
		in, err := e.Builder.Deposit(rpccustody.DepositPrm{
			Owner:      u.id,
			Asset:      e.mint,
			Source:     u.tokens,
			Authority:  u.id,
			VaultToken: e.newUser(t, 0).tokens,
			Amount:     1,
		})
		require.ErrorIs(t, e.run(t, in, err), common.ErrInvalidAccountData)
	})

	t.Run("authority signature", func(t *testing.T) {
		in, err := e.Builder.Deposit(rpccustody.DepositPrm{
			Owner:      u.id,
			Asset:      e.mint,
			Source:     u.tokens,
			Authority:  u.id,
			VaultToken: e.vaultToken,
			Amount:     1,
		})
		require.NoError(t, err)
		in.Accounts[5] = ledger.Readonly(u.id)

		_, err = e.Execute(in)
		require.ErrorIs(t, err, common.ErrMissingRequiredSignature)
	})

	t.Run("token program", func(t *testing.T) {
		in, err := e.Builder.Deposit(rpccustody.DepositPrm{
			Owner:      u.id,
			Asset:      e.mint,
			Source:     u.tokens,
			Authority:  u.id,
			VaultToken: e.vaultToken,
			Amount:     1,
		})
		require.NoError(t, err)
		in.Accounts[6] = ledger.Readonly(e.System.ID())

		_, err = e.Execute(in)
		require.ErrorIs(t, err, common.ErrInvalidAccountData)
	})

	t.Run("no balance record", func(t *testing.T) {
		other := e.newUser(t, 10)
		require.ErrorIs(t, e.deposit(t, other, 1), common.ErrInvalidAccountData)
		require.EqualValues(t, 10, e.TokenBalance(other.tokens))
	})
}

func TestWithdrawChecks(t *testing.T) {
	e := newTestEnv(t, 6)
	u := e.setup(t, 1_000)
	require.NoError(t, e.deposit(t, u, 500))

	thief := e.newUser(t, 0)

	t.Run("owner signature", func(t *testing.T) {
		in, err := e.Builder.Withdraw(rpccustody.WithdrawPrm{
			Owner:       u.id,
			Asset:       e.mint,
			VaultToken:  e.vaultToken,
			Destination: thief.tokens,
			Amount:      1,
		})
		require.NoError(t, err)

		in.Accounts[5] = ledger.ReadonlySigner(thief.id)
		_, err = e.Execute(in)
		require.ErrorIs(t, err, common.ErrIncorrectAuthority)

		in.Accounts[5] = ledger.Readonly(u.id)
		_, err = e.Execute(in)
		require.ErrorIs(t, err, common.ErrMissingRequiredSignature)

		require.Zero(t, e.TokenBalance(thief.tokens))
	})

	t.Run("vault bump", func(t *testing.T) {
		in, err := e.Builder.Withdraw(rpccustody.WithdrawPrm{
			Owner:       u.id,
			Asset:       e.mint,
			VaultToken:  e.vaultToken,
			Destination: u.tokens,
			Amount:      1,
		})
		require.NoError(t, err)
		in.Data[9]--

		_, err = e.Execute(in)
		require.ErrorIs(t, err, common.ErrInvalidSeeds)
	})

	t.Run("short payload", func(t *testing.T) {
		in, err := e.Builder.Withdraw(rpccustody.WithdrawPrm{
			Owner:       u.id,
			Asset:       e.mint,
			VaultToken:  e.vaultToken,
			Destination: u.tokens,
			Amount:      1,
		})
		require.NoError(t, err)
		in.Data = in.Data[:9]

		_, err = e.Execute(in)
		require.ErrorIs(t, err, common.ErrInvalidInstruction)
	})

	require.EqualValues(t, 500, e.record(t, u).Amount)
	require.EqualValues(t, 500, e.TokenBalance(e.vaultToken))
}

func TestDelegation(t *testing.T) {
	e := newTestEnv(t, 6)
	u := e.setup(t, 1_000)
	require.NoError(t, e.deposit(t, u, 100))

	rec := e.record(t, u)
	validator := sim.NewKeyAddress()
	before := e.lamports(u.id)

	t.Run("not owner", func(t *testing.T) {
		other := e.newUser(t, 0)

		in, err := e.Builder.DelegateBalanceRecord(u.id, e.mint, nil)
		require.NoError(t, err)
		in.Accounts[0] = ledger.WritableSigner(other.id)

		_, err = e.Execute(in)
		require.ErrorIs(t, err, common.ErrIncorrectAuthority)
	})

	in, err := e.Builder.DelegateBalanceRecord(u.id, e.mint, &validator)
	require.NoError(t, e.run(t, in, err))

	require.True(t, e.record(t, u).Delegated)
	require.EqualValues(t, 100, e.record(t, u).Amount)

	drec, ok := e.Delegation.Delegated(rec.Address)
	require.True(t, ok)
	require.Equal(t, e.Contract.ID(), drec.OwnerProgram)
	require.Equal(t, validator, drec.Validator)

	t.Run("blocks transfers", func(t *testing.T) {
		require.ErrorIs(t, e.deposit(t, u, 1), common.ErrInvalidAccountData)
		require.ErrorIs(t, e.withdraw(t, u, u.tokens, 1), common.ErrInvalidAccountData)
		require.ErrorIs(t, e.initBalance(t, u), common.ErrAlreadyInUse)

		require.EqualValues(t, 900, e.TokenBalance(u.tokens))
		require.EqualValues(t, 100, e.TokenBalance(e.vaultToken))
	})

	t.Run("twice", func(t *testing.T) {
		in, err := e.Builder.DelegateBalanceRecord(u.id, e.mint, nil)
		require.Error(t, e.run(t, in, err))
	})

	info, _ := e.Ledger.Get(rec.Address)
	br, err := custody.ParseBalanceRecord(info.Data)
	require.NoError(t, err)
	br.SetAmount(250)
	require.NoError(t, e.Delegation.SetEphemeralState(rec.Address, br))

	t.Run("undelegate by another", func(t *testing.T) {
		other := e.newUser(t, 0)

		in, err := e.Builder.UndelegateBalanceRecord(u.id, e.mint, nil)
		require.NoError(t, err)
		in.Accounts[0] = ledger.WritableSigner(other.id)

		_, err = e.Execute(in)
		require.ErrorIs(t, err, common.ErrInvalidSeeds)
	})

	t.Run("foreign companion", func(t *testing.T) {
		companion := e.newUser(t, 0).tokens

		in, err := e.Builder.UndelegateBalanceRecord(u.id, e.mint, &companion)
		require.ErrorIs(t, e.run(t, in, err), common.ErrInvalidAccountData)
	})

	in, err = e.Builder.UndelegateBalanceRecord(u.id, e.mint, &u.tokens)
	require.NoError(t, e.run(t, in, err))

	rec = e.record(t, u)
	require.False(t, rec.Delegated)
	require.EqualValues(t, 250, rec.Amount)

	_, ok = e.Delegation.Delegated(rec.Address)
	require.False(t, ok)
	require.Equal(t, before, e.lamports(u.id), "delegation rent is refunded")

	t.Run("usable again", func(t *testing.T) {
		require.NoError(t, e.deposit(t, u, 10))
		require.EqualValues(t, 260, e.record(t, u).Amount)

		in, err := e.Builder.DelegateBalanceRecord(u.id, e.mint, nil)
		require.NoError(t, e.run(t, in, err))

		drec, ok := e.Delegation.Delegated(rec.Address)
		require.True(t, ok)
		require.True(t, common.IsZero(drec.Validator))

		in, err = e.Builder.UndelegateBalanceRecord(u.id, e.mint, nil)
		require.NoError(t, e.run(t, in, err))
		require.EqualValues(t, 260, e.record(t, u).Amount)
	})
}

func TestUndelegationCallbackDirect(t *testing.T) {
	e := newTestEnv(t, 6)
	u := e.setup(t, 0)
	rec := e.record(t, u)

	in := e.Builder.RawInstruction(custodyconst.OpUndelegationCallback, []byte{1, 2, 3},
		ledger.Writable(rec.Address))
	_, err := e.Execute(in)
	require.ErrorIs(t, err, common.ErrInvalidInstruction)

	in = e.Builder.RawInstruction(custodyconst.OpUndelegationCallback, make([]byte, custodyconst.CallbackHeaderLen),
		ledger.Writable(rec.Address))
	_, err = e.Execute(in)
	require.ErrorIs(t, err, common.ErrNotEnoughAccountKeys)

	// the buffer is not owned by the delegation service
	in = e.Builder.RawInstruction(custodyconst.OpUndelegationCallback, make([]byte, custodyconst.CallbackHeaderLen),
		ledger.Writable(rec.Address),
		ledger.ReadonlySigner(u.id),
		ledger.WritableSigner(u.id),
		ledger.Readonly(e.System.ID()))
	_, err = e.Execute(in)
	require.ErrorIs(t, err, common.ErrInvalidAccountData)
}

func TestPermission(t *testing.T) {
	e := newTestEnv(t, 6)
	u := e.setup(t, 0)
	bob := e.newUser(t, 0)

	create := func(flags permission.MemberFlags, extra ...permission.Member) error {
		in, err := e.Builder.CreatePermission(u.id, e.mint, flags, extra...)
		return e.run(t, in, err)
	}

	t.Run("owner as extra member", func(t *testing.T) {
		err := create(permission.FlagTxLogs, permission.Member{Identity: u.id, Flags: permission.FlagTxLogs})
		require.ErrorIs(t, err, common.ErrInvalidArgument)
	})

	t.Run("not owner", func(t *testing.T) {
		in, err := e.Builder.CreatePermission(u.id, e.mint, permission.FlagTxLogs)
		require.NoError(t, err)
		in.Accounts[2] = ledger.WritableSigner(bob.id)

		_, err = e.Execute(in)
		require.ErrorIs(t, err, common.ErrIncorrectAuthority)
	})

	require.NoError(t, create(permission.FlagTxLogs, permission.Member{Identity: bob.id, Flags: permission.FlagTxBalances}))

	rec, err := e.Reader.Permission(u.id, e.mint)
	require.NoError(t, err)
	require.Equal(t, e.record(t, u).Address, rec.Permissioned)
	require.Equal(t, []permission.Member{
		{Identity: u.id, Flags: permission.FlagTxLogs},
		{Identity: bob.id, Flags: permission.FlagTxBalances},
	}, rec.Members)

	t.Run("create is idempotent", func(t *testing.T) {
		require.NoError(t, create(permission.DefaultFlags))

		rec, err := e.Reader.Permission(u.id, e.mint)
		require.NoError(t, err)
		require.Len(t, rec.Members, 2)
	})

	update := func(reset bool, flags permission.MemberFlags, extra ...permission.Member) error {
		var (
			in  ledger.Instruction
			err error
		)
		if reset {
			in, err = e.Builder.ResetPermission(u.id, e.mint, flags, extra...)
		} else {
			in, err = e.Builder.UpdatePermission(u.id, e.mint, flags, extra...)
		}
		return e.run(t, in, err)
	}

	t.Run("reset keeps owner authority", func(t *testing.T) {
		require.NoError(t, update(true, 0))

		rec, err := e.Reader.Permission(u.id, e.mint)
		require.NoError(t, err)
		require.Equal(t, []permission.Member{{Identity: u.id, Flags: permission.FlagAuthority}}, rec.Members)
	})

	t.Run("update", func(t *testing.T) {
		extra := make([]permission.Member, custodyconst.MaxExtraMembers)
		for i := range extra {
			extra[i] = permission.Member{Identity: sim.NewKeyAddress(), Flags: permission.FlagTxMessage}
		}

		require.NoError(t, update(false, permission.FlagTxLogs|permission.FlagAccountSignatures, extra...))

		rec, err := e.Reader.Permission(u.id, e.mint)
		require.NoError(t, err)
		require.Len(t, rec.Members, custodyconst.MaxExtraMembers+1)
		require.Equal(t, permission.FlagTxLogs|permission.FlagAccountSignatures, rec.Members[0].Flags)
		require.Equal(t, extra, rec.Members[1:])

		// owner is still allowed through the balance record
		require.NoError(t, update(false, permission.FlagTxLogs))
	})

	t.Run("too many members", func(t *testing.T) {
		extra := make([]permission.Member, custodyconst.MaxExtraMembers+1)
		_, err := e.Builder.UpdatePermission(u.id, e.mint, 0, extra...)
		require.Error(t, err)

		payload := make([]byte, 1+permission.FlagsEncodedLen+1)
		payload[len(payload)-1] = custodyconst.MaxExtraMembers + 1

		in, err := e.Builder.UpdatePermission(u.id, e.mint, 0)
		require.NoError(t, err)
		in.Data = append([]byte{custodyconst.OpUpdatePermission}, payload...)
		in.Data[1] = mustBump(t, e, u)

		_, err = e.Execute(in)
		require.ErrorIs(t, err, common.ErrInvalidInstruction)
	})

	t.Run("close", func(t *testing.T) {
		addr, err := e.Builder.PermissionAddress(u.id, e.mint)
		require.NoError(t, err)

		before := e.lamports(u.id)
		locked := e.lamports(addr)

		in, err := e.Builder.ClosePermission(u.id, e.mint)
		require.NoError(t, e.run(t, in, err))

		require.Equal(t, before+locked, e.lamports(u.id))

		_, err = e.Reader.Permission(u.id, e.mint)
		require.ErrorIs(t, err, rpccustody.ErrNotFound)

		require.ErrorIs(t, update(false, 0), common.ErrInvalidAccountData)

		in, err = e.Builder.ClosePermission(u.id, e.mint)
		require.ErrorIs(t, e.run(t, in, err), common.ErrInvalidAccountData)

		require.NoError(t, create(permission.FlagTxLogs))
	})
}

func mustBump(t *testing.T, e *testEnv, u testUser) byte {
	_, bump, err := e.Builder.BalanceRecordAddress(u.id, e.mint)
	require.NoError(t, err)
	return bump
}

func TestPermissionDelegation(t *testing.T) {
	e := newTestEnv(t, 6)
	u := e.setup(t, 0)

	addr, err := e.Builder.PermissionAddress(u.id, e.mint)
	require.NoError(t, err)

	t.Run("missing record", func(t *testing.T) {
		in, err := e.Builder.DelegatePermission(u.id, e.mint, nil)
		require.ErrorIs(t, e.run(t, in, err), common.ErrInvalidAccountData)
	})

	in, err := e.Builder.CreatePermission(u.id, e.mint, permission.DefaultFlags)
	require.NoError(t, e.run(t, in, err))

	validator := sim.NewKeyAddress()
	in, err = e.Builder.DelegatePermission(u.id, e.mint, &validator)
	require.NoError(t, e.run(t, in, err))

	info, _ := e.Ledger.Get(addr)
	require.Equal(t, e.Delegation.ID(), info.Owner)

	drec, ok := e.Delegation.Delegated(addr)
	require.True(t, ok)
	require.Equal(t, e.Permission.ID(), drec.OwnerProgram)
	require.Equal(t, validator, drec.Validator)

	rec, err := e.Reader.Permission(u.id, e.mint)
	require.NoError(t, err, "delegated record keeps its layout")
	require.Len(t, rec.Members, 1)

	t.Run("update delegated", func(t *testing.T) {
		in, err := e.Builder.UpdatePermission(u.id, e.mint, 0)
		require.ErrorIs(t, e.run(t, in, err), common.ErrInvalidAccountData)
	})

	in, err = e.Builder.UndelegatePermission(u.id, e.mint)
	require.NoError(t, e.run(t, in, err))

	info, _ = e.Ledger.Get(addr)
	require.Equal(t, e.Permission.ID(), info.Owner)

	got, ok := e.Permission.Record(e.record(t, u).Address)
	require.True(t, ok)
	require.Equal(t, rec, got)

	t.Run("undelegate not delegated", func(t *testing.T) {
		in, err := e.Builder.UndelegatePermission(u.id, e.mint)
		require.ErrorIs(t, e.run(t, in, err), common.ErrInvalidAccountData)
	})

	t.Run("delegated balance record", func(t *testing.T) {
		in, err := e.Builder.DelegateBalanceRecord(u.id, e.mint, nil)
		require.NoError(t, e.run(t, in, err))

		in, err = e.Builder.UpdatePermission(u.id, e.mint, permission.FlagTxLogs)
		require.NoError(t, e.run(t, in, err))

		in, err = e.Builder.DelegatePermission(u.id, e.mint, nil)
		require.NoError(t, e.run(t, in, err))

		in, err = e.Builder.UndelegatePermission(u.id, e.mint)
		require.NoError(t, e.run(t, in, err))

		in, err = e.Builder.UndelegateBalanceRecord(u.id, e.mint, nil)
		require.NoError(t, e.run(t, in, err))

		rec, err := e.Reader.Permission(u.id, e.mint)
		require.NoError(t, err)
		require.Equal(t, permission.FlagTxLogs, rec.Members[0].Flags)
	})
}

func TestProcess(t *testing.T) {
	e := newTestEnv(t, 6)
	u := e.newUser(t, 0)

	_, err := e.Execute(e.Builder.RawInstruction(100, nil))
	require.ErrorIs(t, err, common.ErrInvalidInstruction)

	_, err = e.Execute(ledger.Instruction{Program: e.Contract.ID()})
	require.ErrorIs(t, err, common.ErrInvalidInstruction)

	_, err = e.Execute(e.Builder.RawInstruction(custodyconst.OpDeposit, make([]byte, 8),
		ledger.Writable(u.id), ledger.Readonly(e.mint)))
	require.ErrorIs(t, err, common.ErrNotEnoughAccountKeys)

	_, err = e.Execute(e.Builder.RawInstruction(custodyconst.OpDeposit, make([]byte, 7)))
	require.ErrorIs(t, err, common.ErrInvalidInstruction)

	in, err := e.Builder.InitializeBalanceRecord(u.id, u.id, e.mint)
	require.NoError(t, err)
	in.Accounts = in.Accounts[:4]
	_, err = e.Execute(in)
	require.ErrorIs(t, err, common.ErrNotEnoughAccountKeys)

	require.Equal(t, "Withdraw", custody.InstructionName(custodyconst.OpWithdraw))
	require.Equal(t, "UndelegationCallback", custody.InstructionName(custodyconst.OpUndelegationCallback))
	require.Equal(t, "Unknown(100)", custody.InstructionName(100))
}

func TestNew(t *testing.T) {
	_, err := custody.New(custody.Config{})
	require.Error(t, err)

	e := newTestEnv(t, 0)

	_, err = custody.New(custody.Config{
		System:     e.System,
		Token:      e.Token,
		Delegation: e.Delegation,
		Permission: e.Permission,
	})
	require.Error(t, err, "rent is required")

	c, err := custody.New(custody.Config{
		ProgramID:  util.Uint256{1},
		System:     e.System,
		Token:      e.Token,
		Delegation: e.Delegation,
		Permission: e.Permission,
		Rent:       e.Ledger.Rent(),
	})
	require.NoError(t, err)
	require.Equal(t, util.Uint256{1}, c.ID())
}
