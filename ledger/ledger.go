package ledger

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/nspcc-dev/custody-contract/common"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"go.uber.org/zap"
)

// Program processes instructions addressed to it.
type Program interface {
	// Process executes a single instruction over the account list. Any
	// returned error aborts the whole transaction.
	Process(accounts []*Account, data []byte) error
}

// AccountMeta describes an account passed to an instruction.
type AccountMeta struct {
	Address  util.Uint256
	Signer   bool
	Writable bool
}

// Writable returns meta of the writable non-signer account.
func Writable(addr util.Uint256) AccountMeta {
	return AccountMeta{Address: addr, Writable: true}
}

// Readonly returns meta of the read-only non-signer account.
func Readonly(addr util.Uint256) AccountMeta {
	return AccountMeta{Address: addr}
}

// WritableSigner returns meta of the writable signer account.
func WritableSigner(addr util.Uint256) AccountMeta {
	return AccountMeta{Address: addr, Signer: true, Writable: true}
}

// ReadonlySigner returns meta of the read-only signer account.
func ReadonlySigner(addr util.Uint256) AccountMeta {
	return AccountMeta{Address: addr, Signer: true}
}

// Instruction is a call of the program with the account list and payload.
type Instruction struct {
	Program  util.Uint256
	Accounts []AccountMeta
	Data     []byte
}

// Ledger is an in-memory account store executing instructions atomically.
// It is not safe for concurrent use: like the host it models, it runs one
// transaction at a time.
type Ledger struct {
	log *zap.Logger

	systemProgram util.Uint256
	rent          Rent

	accounts map[util.Uint256]*state
	programs map[util.Uint256]Program
}

// Prm groups ledger parameters.
type Prm struct {
	// Writes transaction results into the log. Optional.
	Logger *zap.Logger

	// Owner of accounts not yet created.
	SystemProgram util.Uint256

	// Rent parameters, DefaultRent if zero.
	Rent Rent
}

// New creates an empty ledger.
func New(prm Prm) *Ledger {
	l := &Ledger{
		log:           prm.Logger,
		systemProgram: prm.SystemProgram,
		rent:          prm.Rent,
		accounts:      make(map[util.Uint256]*state),
		programs:      make(map[util.Uint256]Program),
	}

	if l.log == nil {
		l.log = zap.NewNop()
	}
	if l.rent == (Rent{}) {
		l.rent = DefaultRent
	}

	return l
}

// Rent returns rent parameters of the ledger.
func (l *Ledger) Rent() Rent {
	return l.rent
}

// SystemProgram returns owner of not yet created accounts.
func (l *Ledger) SystemProgram() util.Uint256 {
	return l.systemProgram
}

// Register deploys the program at the address.
func (l *Ledger) Register(id util.Uint256, p Program) {
	l.programs[id] = p
	l.accounts[id] = &state{
		address:    id,
		owner:      l.systemProgram,
		lamports:   1,
		executable: true,
	}
}

// Put stores the account overwriting the existing one.
func (l *Ledger) Put(info AccountInfo) {
	l.accounts[info.Address] = &state{
		address:    info.Address,
		owner:      info.Owner,
		lamports:   info.Lamports,
		data:       append([]byte(nil), info.Data...),
		executable: info.Executable,
	}
}

// Get returns a copy of the stored account. The second value is false if
// there is no account with lamports, data or program at the address.
func (l *Ledger) Get(addr util.Uint256) (AccountInfo, bool) {
	st, ok := l.accounts[addr]
	if !ok || (st.lamports == 0 && len(st.data) == 0 && !st.executable) {
		return AccountInfo{Address: addr, Owner: l.systemProgram}, false
	}

	return AccountInfo{
		Address:    st.address,
		Owner:      st.owner,
		Lamports:   st.lamports,
		Data:       append([]byte(nil), st.data...),
		Executable: st.executable,
	}, true
}

// Account returns a view of the account at the address, creating an empty
// system-owned one if needed. Services use it to reach their own accounts.
func (l *Ledger) Account(addr util.Uint256, signer, writable bool) *Account {
	return &Account{st: l.state(addr), signer: signer, writable: writable}
}

func (l *Ledger) state(addr util.Uint256) *state {
	st, ok := l.accounts[addr]
	if !ok {
		st = &state{address: addr, owner: l.systemProgram}
		l.accounts[addr] = st
	}
	return st
}

// Execute runs the instructions as a single transaction. On the first
// failure all changes made by the transaction are rolled back and the error
// is returned. The transaction ID is returned in both cases.
func (l *Ledger) Execute(ins ...Instruction) (uuid.UUID, error) {
	txID := uuid.New()
	snapshot := l.snapshot()

	for i := range ins {
		err := l.execute(ins[i])
		l.endViews()
		if err != nil {
			l.accounts = snapshot

			l.log.Info("transaction rolled back",
				zap.Stringer("tx", txID),
				zap.Int("instruction", i),
				zap.String("program", common.EncodeAddress(ins[i].Program)),
				zap.Error(err))

			return txID, fmt.Errorf("instruction #%d: %w", i, err)
		}
	}

	l.log.Debug("transaction executed",
		zap.Stringer("tx", txID),
		zap.Int("instructions", len(ins)))

	return txID, nil
}

func (l *Ledger) execute(in Instruction) error {
	accounts := make([]*Account, len(in.Accounts))
	for i, m := range in.Accounts {
		if m.Signer && !common.IsOnCurve(m.Address) {
			return fmt.Errorf("derived address %s cannot sign a transaction: %w",
				common.EncodeAddress(m.Address), common.ErrMissingRequiredSignature)
		}

		accounts[i] = l.Account(m.Address, m.Signer, m.Writable)
	}

	return l.Invoke(in.Program, accounts, in.Data)
}

// Invoke calls the registered program directly with already resolved
// account views. Services use it to call back into the owner program of an
// account; the enclosing transaction stays responsible for rollback.
func (l *Ledger) Invoke(program util.Uint256, accounts []*Account, data []byte) error {
	p, ok := l.programs[program]
	if !ok {
		return fmt.Errorf("%s: %w", common.EncodeAddress(program), common.ErrUnknownProgram)
	}

	return p.Process(accounts, data)
}

// endViews drops every borrow left by the finished instruction.
func (l *Ledger) endViews() {
	for _, st := range l.accounts {
		st.shared = 0
		st.exclusive = false
	}
}

func (l *Ledger) snapshot() map[util.Uint256]*state {
	res := make(map[util.Uint256]*state, len(l.accounts))
	for k, v := range l.accounts {
		res[k] = v.clone()
	}
	return res
}
