package sim

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/nspcc-dev/custody-contract/common"
	"github.com/nspcc-dev/custody-contract/contracts/custody"
	"github.com/nspcc-dev/custody-contract/ledger"
	rpccustody "github.com/nspcc-dev/custody-contract/rpc/custody"
	"github.com/nspcc-dev/custody-contract/services/permission"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"gopkg.in/yaml.v3"
)

// defaultUserLamports funds scenario users with no explicit balance.
const defaultUserLamports = 1_000_000_000

// Scenario operations.
const (
	OpInitVault            = "init-vault"
	OpInitBalance          = "init-balance"
	OpDeposit              = "deposit"
	OpWithdraw             = "withdraw"
	OpDelegate             = "delegate"
	OpUndelegate           = "undelegate"
	OpSetEphemeralAmount   = "set-ephemeral-amount"
	OpCreatePermission     = "create-permission"
	OpUpdatePermission     = "update-permission"
	OpResetPermission      = "reset-permission"
	OpClosePermission      = "close-permission"
	OpDelegatePermission   = "delegate-permission"
	OpUndelegatePermission = "undelegate-permission"
)

// Scenario describes assets, users and steps they take.
type Scenario struct {
	Assets []Asset `yaml:"assets"`
	Users  []User  `yaml:"users"`
	Steps  []Step  `yaml:"steps"`
}

// Asset is a mint created before the steps.
type Asset struct {
	Name     string `yaml:"name"`
	Decimals uint8  `yaml:"decimals"`
}

// User is an identity created before the steps with a token account of
// every asset.
type User struct {
	Name     string `yaml:"name"`
	Lamports uint64 `yaml:"lamports"`
	// Tokens minted to the user by asset name.
	Tokens map[string]uint64 `yaml:"tokens"`
}

// Member is an extra permission record member.
type Member struct {
	User  string `yaml:"user"`
	Flags string `yaml:"flags"`
}

// Step is a single operation.
type Step struct {
	Op     string `yaml:"op"`
	User   string `yaml:"user"`
	Asset  string `yaml:"asset"`
	Amount uint64 `yaml:"amount"`
	// Owner's permission flags, see permission.ParseFlags.
	Flags   string   `yaml:"flags"`
	Members []Member `yaml:"members"`
	// Base58 validator address for delegations.
	Validator string `yaml:"validator"`
	// Step must fail.
	ExpectError bool `yaml:"expect_error"`
}

// Report is the result of the scenario run.
type Report struct {
	Steps    []StepReport    `yaml:"steps"`
	Balances []BalanceReport `yaml:"balances"`
	Vaults   []VaultReport   `yaml:"vaults"`
}

// StepReport is the result of the single step.
type StepReport struct {
	Op    string `yaml:"op"`
	User  string `yaml:"user,omitempty"`
	Asset string `yaml:"asset,omitempty"`
	Tx    string `yaml:"tx,omitempty"`
	Error string `yaml:"error,omitempty"`
}

// BalanceReport shows the user's holdings of the asset.
type BalanceReport struct {
	User      string `yaml:"user"`
	Asset     string `yaml:"asset"`
	Record    uint64 `yaml:"record"`
	Delegated bool   `yaml:"delegated,omitempty"`
	Tokens    uint64 `yaml:"tokens"`
}

// VaultReport shows tokens pooled in the asset vault.
type VaultReport struct {
	Asset  string `yaml:"asset"`
	Tokens uint64 `yaml:"tokens"`
}

// LoadScenario decodes YAML scenario. Unknown fields are errors.
func LoadScenario(r io.Reader) (Scenario, error) {
	var sc Scenario

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	if err := dec.Decode(&sc); err != nil {
		return sc, fmt.Errorf("decode scenario: %w", err)
	}

	return sc, nil
}

type runAsset struct {
	mint       util.Uint256
	vaultToken util.Uint256
}

type runUser struct {
	id     util.Uint256
	tokens map[string]util.Uint256
}

type run struct {
	env    *Env
	assets map[string]runAsset
	users  map[string]runUser
}

// Run sets the scenario up and executes its steps. It stops with an error
// on the first step whose outcome differs from the expected one.
func (e *Env) Run(sc Scenario) (Report, error) {
	var rep Report

	r, err := e.setup(sc)
	if err != nil {
		return rep, err
	}

	for i, st := range sc.Steps {
		sr := StepReport{Op: st.Op, User: st.User, Asset: st.Asset}

		tx, err := r.step(st)
		if tx != "" {
			sr.Tx = tx
		}
		if err != nil {
			sr.Error = err.Error()
		}

		rep.Steps = append(rep.Steps, sr)

		switch {
		case err != nil && !st.ExpectError:
			return rep, fmt.Errorf("step #%d (%s): %w", i, st.Op, err)
		case err == nil && st.ExpectError:
			return rep, fmt.Errorf("step #%d (%s): unexpected success", i, st.Op)
		}
	}

	r.report(&rep)

	return rep, nil
}

func (e *Env) setup(sc Scenario) (*run, error) {
	r := &run{
		env:    e,
		assets: make(map[string]runAsset, len(sc.Assets)),
		users:  make(map[string]runUser, len(sc.Users)),
	}

	authority, err := e.NewIdentity(defaultUserLamports)
	if err != nil {
		return nil, err
	}

	for _, a := range sc.Assets {
		if _, ok := r.assets[a.Name]; ok {
			return nil, fmt.Errorf("duplicate asset %q", a.Name)
		}

		mint, err := e.CreateMint(authority, a.Decimals)
		if err != nil {
			return nil, fmt.Errorf("asset %q: %w", a.Name, err)
		}

		vault, _, err := e.Builder.VaultRecordAddress(mint)
		if err != nil {
			return nil, err
		}

		vaultToken, err := e.CreateTokenAccount(mint, vault)
		if err != nil {
			return nil, fmt.Errorf("asset %q vault: %w", a.Name, err)
		}

		r.assets[a.Name] = runAsset{mint: mint, vaultToken: vaultToken}
	}

	for _, u := range sc.Users {
		if _, ok := r.users[u.Name]; ok {
			return nil, fmt.Errorf("duplicate user %q", u.Name)
		}

		lamports := u.Lamports
		if lamports == 0 {
			lamports = defaultUserLamports
		}

		id, err := e.NewIdentity(lamports)
		if err != nil {
			return nil, fmt.Errorf("user %q: %w", u.Name, err)
		}

		ru := runUser{id: id, tokens: make(map[string]util.Uint256, len(r.assets))}

		for name, a := range r.assets {
			ta, err := e.CreateTokenAccount(a.mint, id)
			if err != nil {
				return nil, fmt.Errorf("user %q: %w", u.Name, err)
			}
			ru.tokens[name] = ta
		}

		for name, amount := range u.Tokens {
			a, ok := r.assets[name]
			if !ok {
				return nil, fmt.Errorf("user %q: unknown asset %q", u.Name, name)
			}
			if err := e.MintTo(a.mint, ru.tokens[name], authority, amount); err != nil {
				return nil, fmt.Errorf("user %q: %w", u.Name, err)
			}
		}

		r.users[u.Name] = ru
	}

	return r, nil
}

func (r *run) step(st Step) (string, error) {
	u, ok := r.users[st.User]
	if !ok {
		return "", fmt.Errorf("unknown user %q", st.User)
	}
	a, ok := r.assets[st.Asset]
	if !ok {
		return "", fmt.Errorf("unknown asset %q", st.Asset)
	}

	b := r.env.Builder

	var (
		in  ledger.Instruction
		err error
	)

	switch st.Op {
	case OpInitVault:
		in, err = b.InitializeVaultRecord(u.id, a.mint)
	case OpInitBalance:
		in, err = b.InitializeBalanceRecord(u.id, u.id, a.mint)
	case OpDeposit:
		in, err = b.Deposit(rpccustody.DepositPrm{
			Owner:      u.id,
			Asset:      a.mint,
			Source:     u.tokens[st.Asset],
			Authority:  u.id,
			VaultToken: a.vaultToken,
			Amount:     st.Amount,
		})
	case OpWithdraw:
		in, err = b.Withdraw(rpccustody.WithdrawPrm{
			Owner:       u.id,
			Asset:       a.mint,
			VaultToken:  a.vaultToken,
			Destination: u.tokens[st.Asset],
			Amount:      st.Amount,
		})
	case OpDelegate, OpDelegatePermission:
		var v *util.Uint256
		if v, err = parseValidator(st.Validator); err != nil {
			return "", err
		}
		if st.Op == OpDelegate {
			in, err = b.DelegateBalanceRecord(u.id, a.mint, v)
		} else {
			in, err = b.DelegatePermission(u.id, a.mint, v)
		}
	case OpUndelegate:
		companion := u.tokens[st.Asset]
		in, err = b.UndelegateBalanceRecord(u.id, a.mint, &companion)
	case OpSetEphemeralAmount:
		return "", r.setEphemeralAmount(u.id, a.mint, st.Amount)
	case OpCreatePermission, OpUpdatePermission, OpResetPermission:
		var (
			flags permission.MemberFlags
			extra []permission.Member
		)
		if flags, extra, err = r.members(st); err != nil {
			return "", err
		}
		switch st.Op {
		case OpCreatePermission:
			in, err = b.CreatePermission(u.id, a.mint, flags, extra...)
		case OpUpdatePermission:
			in, err = b.UpdatePermission(u.id, a.mint, flags, extra...)
		default:
			in, err = b.ResetPermission(u.id, a.mint, flags, extra...)
		}
	case OpClosePermission:
		in, err = b.ClosePermission(u.id, a.mint)
	case OpUndelegatePermission:
		in, err = b.UndelegatePermission(u.id, a.mint)
	default:
		return "", fmt.Errorf("unknown operation %q", st.Op)
	}
	if err != nil {
		return "", err
	}

	tx, err := r.env.Execute(in)
	return tx.String(), err
}

// setEphemeralAmount changes the delegated balance record amount the way
// the execution environment does.
func (r *run) setEphemeralAmount(owner, asset util.Uint256, amount uint64) error {
	rec, err := r.env.Reader.BalanceRecord(owner, asset)
	if err != nil {
		return err
	}
	if !rec.Delegated {
		return errors.New("balance record is not delegated")
	}

	info, _ := r.env.Ledger.Get(rec.Address)

	br, err := custody.ParseBalanceRecord(info.Data)
	if err != nil {
		return err
	}
	br.SetAmount(amount)

	return r.env.Delegation.SetEphemeralState(rec.Address, br)
}

func (r *run) members(st Step) (permission.MemberFlags, []permission.Member, error) {
	flags, err := permission.ParseFlags(st.Flags)
	if err != nil {
		return 0, nil, err
	}

	extra := make([]permission.Member, 0, len(st.Members))
	for _, m := range st.Members {
		u, ok := r.users[m.User]
		if !ok {
			return 0, nil, fmt.Errorf("unknown member %q", m.User)
		}

		f, err := permission.ParseFlags(m.Flags)
		if err != nil {
			return 0, nil, fmt.Errorf("member %q: %w", m.User, err)
		}

		extra = append(extra, permission.Member{Identity: u.id, Flags: f})
	}

	return flags, extra, nil
}

func (r *run) report(rep *Report) {
	users := sortedKeys(r.users)
	assets := sortedKeys(r.assets)

	for _, an := range assets {
		a := r.assets[an]

		for _, un := range users {
			u := r.users[un]

			br := BalanceReport{
				User:   un,
				Asset:  an,
				Tokens: r.env.TokenBalance(u.tokens[an]),
			}
			if rec, err := r.env.Reader.BalanceRecord(u.id, a.mint); err == nil {
				br.Record = rec.Amount
				br.Delegated = rec.Delegated
			}

			rep.Balances = append(rep.Balances, br)
		}

		rep.Vaults = append(rep.Vaults, VaultReport{
			Asset:  an,
			Tokens: r.env.TokenBalance(a.vaultToken),
		})
	}
}

func parseValidator(s string) (*util.Uint256, error) {
	if s == "" {
		return nil, nil
	}

	v, err := common.DecodeAddress(s)
	if err != nil {
		return nil, fmt.Errorf("validator: %w", err)
	}

	return &v, nil
}

func sortedKeys[V any](m map[string]V) []string {
	res := make([]string, 0, len(m))
	for k := range m {
		res = append(res, k)
	}
	sort.Strings(res)
	return res
}
