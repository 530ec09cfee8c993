package ledger

import (
	"fmt"

	"github.com/nspcc-dev/custody-contract/common"
	"github.com/nspcc-dev/neo-go/pkg/util"
)

// state is the stored account shared by all views of the same address.
type state struct {
	address    util.Uint256
	owner      util.Uint256
	lamports   uint64
	data       []byte
	executable bool

	// shared is the number of live shared borrows, exclusive is set while
	// a mutable borrow is live.
	shared    int
	exclusive bool
}

func (s *state) clone() *state {
	return &state{
		address:    s.address,
		owner:      s.owner,
		lamports:   s.lamports,
		data:       append([]byte(nil), s.data...),
		executable: s.executable,
	}
}

func (s *state) free() bool {
	return s.shared == 0 && !s.exclusive
}

// Account is a view of the account as passed to a program in an instruction
// account list. Views of the same address share the underlying data and
// borrow state.
type Account struct {
	st       *state
	signer   bool
	writable bool
}

// Address returns address of the account.
func (a *Account) Address() util.Uint256 { return a.st.address }

// Owner returns the program owning the account.
func (a *Account) Owner() util.Uint256 { return a.st.owner }

// IsOwnedBy checks whether the account belongs to the program.
func (a *Account) IsOwnedBy(program util.Uint256) bool { return a.st.owner == program }

// Lamports returns native balance of the account.
func (a *Account) Lamports() uint64 { return a.st.lamports }

// IsSigner checks whether the view carries the signer privilege.
func (a *Account) IsSigner() bool { return a.signer }

// IsWritable checks whether the view carries the writable privilege.
func (a *Account) IsWritable() bool { return a.writable }

// IsExecutable checks whether the account holds a program.
func (a *Account) IsExecutable() bool { return a.st.executable }

// DataLen returns length of the account data.
func (a *Account) DataLen() int { return len(a.st.data) }

// WithPrivileges returns another view of the same account with the given
// privileges. Programs use it to pass accounts down to the services they
// call.
func (a *Account) WithPrivileges(signer, writable bool) *Account {
	return &Account{st: a.st, signer: signer, writable: writable}
}

// Borrow returns a shared view of the account data. The view must not be
// modified and must be released by calling the returned function.
func (a *Account) Borrow() ([]byte, func(), error) {
	if a.st.exclusive {
		return nil, nil, fmt.Errorf("%s is mutably borrowed: %w",
			common.EncodeAddress(a.st.address), common.ErrAccountBorrowFailed)
	}

	a.st.shared++

	released := false
	return a.st.data, func() {
		if !released {
			released = true
			a.st.shared--
		}
	}, nil
}

// BorrowMut returns an exclusive view of the account data. It must be
// released by calling the returned function before anyone else (incl. a
// called service) accesses the account.
func (a *Account) BorrowMut() ([]byte, func(), error) {
	if !a.writable {
		return nil, nil, fmt.Errorf("%s: %w", common.EncodeAddress(a.st.address), common.ErrAccountNotWritable)
	}
	if !a.st.free() {
		return nil, nil, fmt.Errorf("%s is already borrowed: %w",
			common.EncodeAddress(a.st.address), common.ErrAccountBorrowFailed)
	}

	a.st.exclusive = true

	released := false
	return a.st.data, func() {
		if !released {
			released = true
			a.st.exclusive = false
		}
	}, nil
}

// Assign transfers the account to another owner program.
func (a *Account) Assign(owner util.Uint256) error {
	if err := a.checkModifiable(); err != nil {
		return err
	}
	a.st.owner = owner
	return nil
}

// SetLamports sets native balance of the account.
func (a *Account) SetLamports(v uint64) error {
	if err := a.checkModifiable(); err != nil {
		return err
	}
	a.st.lamports = v
	return nil
}

// Resize changes length of the account data. New bytes are zeroed.
func (a *Account) Resize(n int) error {
	if err := a.checkModifiable(); err != nil {
		return err
	}

	switch {
	case n <= len(a.st.data):
		clear(a.st.data[n:])
		a.st.data = a.st.data[:n]
	default:
		a.st.data = append(a.st.data, make([]byte, n-len(a.st.data))...)
	}

	return nil
}

func (a *Account) checkModifiable() error {
	if !a.writable {
		return fmt.Errorf("%s: %w", common.EncodeAddress(a.st.address), common.ErrAccountNotWritable)
	}
	if !a.st.free() {
		return fmt.Errorf("%s is borrowed: %w", common.EncodeAddress(a.st.address), common.ErrAccountBorrowFailed)
	}
	return nil
}

// Authorized checks whether the account carries signing authority for a
// call issued by the caller program: either the view is a signer or one of
// signers reproduces the account address under the caller.
func Authorized(acc *Account, caller util.Uint256, signers []common.Seeds) bool {
	if acc.IsSigner() {
		return true
	}

	for i := range signers {
		addr, err := common.CreateProgramAddress(signers[i], caller)
		if err == nil && addr == acc.Address() {
			return true
		}
	}

	return false
}

// AccountInfo is a detached copy of the stored account.
type AccountInfo struct {
	Address    util.Uint256
	Owner      util.Uint256
	Lamports   uint64
	Data       []byte
	Executable bool
}
