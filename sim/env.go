// Package sim wires the ledger, the services and the custody program into
// a complete in-memory environment.
package sim

import (
	"crypto/rand"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/google/uuid"
	"github.com/nspcc-dev/custody-contract/config"
	"github.com/nspcc-dev/custody-contract/contracts/custody"
	"github.com/nspcc-dev/custody-contract/ledger"
	rpccustody "github.com/nspcc-dev/custody-contract/rpc/custody"
	"github.com/nspcc-dev/custody-contract/services/delegation"
	"github.com/nspcc-dev/custody-contract/services/permission"
	"github.com/nspcc-dev/custody-contract/services/system"
	"github.com/nspcc-dev/custody-contract/services/token"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"go.uber.org/zap"
)

// faucetLamports is the initial balance of the account funding identities.
const faucetLamports = 1 << 62

// Prm groups environment parameters.
type Prm struct {
	// Default config programs if zero.
	Programs rpccustody.Programs
	// DefaultRent if zero.
	Rent ledger.Rent
	// Nop if nil.
	Logger *zap.Logger
}

// Env is the environment instance.
type Env struct {
	Ledger     *ledger.Ledger
	System     *system.Service
	Token      *token.Service
	Delegation *delegation.Service
	Permission *permission.Service
	Contract   *custody.Contract

	Builder *rpccustody.Builder
	Reader  *rpccustody.Reader

	faucet util.Uint256
}

// New creates the environment.
func New(prm Prm) (*Env, error) {
	log := prm.Logger
	if log == nil {
		log = zap.NewNop()
	}

	p := prm.Programs
	if p == (rpccustody.Programs{}) {
		var err error
		if p, err = config.Default().ProgramIDs(); err != nil {
			return nil, err
		}
	}

	l := ledger.New(ledger.Prm{
		Logger:        log.Named("ledger"),
		SystemProgram: p.System,
		Rent:          prm.Rent,
	})

	e := &Env{
		Ledger:  l,
		System:  system.New(p.System, log.Named("system")),
		Token:   token.New(p.Token, log.Named("token")),
		Builder: rpccustody.NewBuilder(p),
		Reader:  rpccustody.NewReader(l, p),
	}

	e.Delegation = delegation.New(p.Delegation, l, e.System, log.Named("delegation"))
	e.Permission = permission.New(p.Permission, l, e.System, e.Delegation, log.Named("permission"))

	var err error
	e.Contract, err = custody.New(custody.Config{
		ProgramID:  p.Custody,
		System:     e.System,
		Token:      e.Token,
		Delegation: e.Delegation,
		Permission: e.Permission,
		Rent:       l.Rent(),
		Logger:     log.Named("custody"),
	})
	if err != nil {
		return nil, fmt.Errorf("create custody program: %w", err)
	}

	l.Register(p.Custody, e.Contract)
	l.Register(p.Permission, e.Permission)

	e.faucet = NewKeyAddress()
	l.Put(ledger.AccountInfo{
		Address:  e.faucet,
		Owner:    p.System,
		Lamports: faucetLamports,
	})

	return e, nil
}

// NewKeyAddress returns an address having a key pair, i.e. a valid curve
// point. Only such addresses can sign transactions.
func NewKeyAddress() util.Uint256 {
	var seed [64]byte
	if _, err := rand.Read(seed[:]); err != nil {
		panic(fmt.Sprintf("read random seed: %v", err))
	}

	s, err := edwards25519.NewScalar().SetUniformBytes(seed[:])
	if err != nil {
		panic(fmt.Sprintf("scalar from seed: %v", err))
	}

	var res util.Uint256
	copy(res[:], new(edwards25519.Point).ScalarBaseMult(s).Bytes())

	return res
}

// Execute runs the instructions as a single transaction.
func (e *Env) Execute(ins ...ledger.Instruction) (uuid.UUID, error) {
	return e.Ledger.Execute(ins...)
}

// Fund transfers lamports from the faucet.
func (e *Env) Fund(to util.Uint256, lamports uint64) error {
	return e.System.Transfer(system.TransferPrm{
		From:     e.Ledger.Account(e.faucet, true, true),
		To:       e.Ledger.Account(to, false, true),
		Lamports: lamports,
	})
}

// NewIdentity creates a funded key address.
func (e *Env) NewIdentity(lamports uint64) (util.Uint256, error) {
	id := NewKeyAddress()
	if err := e.Fund(id, lamports); err != nil {
		return util.Uint256{}, err
	}
	return id, nil
}

// CreateMint creates the mint of the given precision.
func (e *Env) CreateMint(authority util.Uint256, decimals uint8) (util.Uint256, error) {
	addr := e.newTokenServiceAccount(token.MintLen)

	err := e.Token.InitializeMint(e.Ledger.Account(addr, false, true), authority, decimals)
	if err != nil {
		return util.Uint256{}, fmt.Errorf("initialize mint: %w", err)
	}

	return addr, nil
}

// CreateTokenAccount creates the token account of the mint owned by owner.
func (e *Env) CreateTokenAccount(mint, owner util.Uint256) (util.Uint256, error) {
	addr := e.newTokenServiceAccount(token.AccountLen)

	err := e.Token.InitializeAccount(e.Ledger.Account(addr, false, true), e.Ledger.Account(mint, false, false), owner)
	if err != nil {
		return util.Uint256{}, fmt.Errorf("initialize token account: %w", err)
	}

	return addr, nil
}

// MintTo issues tokens to the token account.
func (e *Env) MintTo(mint, to, authority util.Uint256, amount uint64) error {
	return e.Token.MintTo(
		e.Ledger.Account(mint, false, true),
		e.Ledger.Account(to, false, true),
		e.Ledger.Account(authority, true, false),
		amount,
	)
}

// TokenBalance returns amount held by the token account, zero if there is
// no such account.
func (e *Env) TokenBalance(acc util.Uint256) uint64 {
	v, err := e.Reader.TokenBalance(acc)
	if err != nil {
		return 0
	}
	return v
}

func (e *Env) newTokenServiceAccount(size int) util.Uint256 {
	addr := NewKeyAddress()
	e.Ledger.Put(ledger.AccountInfo{
		Address:  addr,
		Owner:    e.Token.ID(),
		Lamports: e.Ledger.Rent().MinimumBalance(size),
		Data:     make([]byte, size),
	})
	return addr
}
