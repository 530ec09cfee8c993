package custody

import (
	"errors"
	"fmt"

	"github.com/nspcc-dev/custody-contract/common"
	"github.com/nspcc-dev/custody-contract/contracts/custody/custodyconst"
	"github.com/nspcc-dev/custody-contract/ledger"
	"github.com/nspcc-dev/custody-contract/services/delegation"
	"github.com/nspcc-dev/custody-contract/services/permission"
	"github.com/nspcc-dev/custody-contract/services/system"
	"github.com/nspcc-dev/custody-contract/services/token"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"go.uber.org/zap"
)

// SystemService creates accounts.
type SystemService interface {
	ID() util.Uint256
	CreateAccount(system.CreateAccountPrm) error
}

// TokenService moves tokens.
type TokenService interface {
	ID() util.Uint256
	TransferChecked(token.TransferCheckedPrm) error
}

// DelegationService takes accounts over for the execution environment.
type DelegationService interface {
	ID() util.Uint256
	Delegate(delegation.DelegatePrm) error
	CommitAndUndelegate(delegation.CommitAndUndelegatePrm) error
	Restore(delegation.RestorePrm) error
}

// PermissionService keeps permission records.
type PermissionService interface {
	ID() util.Uint256
	Create(permission.CreatePrm) error
	Update(permission.UpdatePrm) error
	Close(permission.ClosePrm) error
	Delegate(permission.DelegatePrm) error
	CommitAndUndelegate(permission.UndelegatePrm) error
}

// Rent computes the rent-exempt balance.
type Rent interface {
	MinimumBalance(size int) uint64
}

// Config groups program dependencies.
type Config struct {
	// Address the program is deployed at.
	ProgramID util.Uint256

	System     SystemService
	Token      TokenService
	Delegation DelegationService
	Permission PermissionService
	Rent       Rent

	// Optional, nop if not set.
	Logger *zap.Logger
}

// Contract is the custody program instance.
type Contract struct {
	id util.Uint256

	system     SystemService
	token      TokenService
	delegation DelegationService
	permission PermissionService
	rent       Rent

	log *zap.Logger
}

// New checks the config and creates the program.
func New(cfg Config) (*Contract, error) {
	switch {
	case cfg.System == nil:
		return nil, errors.New("missing system service")
	case cfg.Token == nil:
		return nil, errors.New("missing token service")
	case cfg.Delegation == nil:
		return nil, errors.New("missing delegation service")
	case cfg.Permission == nil:
		return nil, errors.New("missing permission service")
	case cfg.Rent == nil:
		return nil, errors.New("missing rent")
	}

	c := &Contract{
		id:         cfg.ProgramID,
		system:     cfg.System,
		token:      cfg.Token,
		delegation: cfg.Delegation,
		permission: cfg.Permission,
		rent:       cfg.Rent,
		log:        cfg.Logger,
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}

	return c, nil
}

// ID returns address of the program.
func (c *Contract) ID() util.Uint256 {
	return c.id
}

// Process implements ledger.Program.
func (c *Contract) Process(accounts []*ledger.Account, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty instruction: %w", common.ErrInvalidInstruction)
	}

	op, args := data[0], data[1:]

	var err error
	switch op {
	case custodyconst.OpInitializeBalanceRecord:
		err = c.initializeBalanceRecord(accounts, args)
	case custodyconst.OpInitializeVaultRecord:
		err = c.initializeVaultRecord(accounts, args)
	case custodyconst.OpDeposit:
		err = c.deposit(accounts, args)
	case custodyconst.OpWithdraw:
		err = c.withdraw(accounts, args)
	case custodyconst.OpDelegateBalanceRecord:
		err = c.delegateBalanceRecord(accounts, args)
	case custodyconst.OpUndelegateBalanceRecord:
		err = c.undelegateBalanceRecord(accounts, args)
	case custodyconst.OpCreatePermission:
		err = c.createPermission(accounts, args)
	case custodyconst.OpDelegatePermission:
		err = c.delegatePermission(accounts, args)
	case custodyconst.OpUndelegatePermission:
		err = c.undelegatePermission(accounts, args)
	case custodyconst.OpResetPermission:
		err = c.updatePermission(accounts, args, true)
	case custodyconst.OpUpdatePermission:
		err = c.updatePermission(accounts, args, false)
	case custodyconst.OpClosePermission:
		err = c.closePermission(accounts, args)
	case custodyconst.OpUndelegationCallback:
		err = c.undelegationCallback(accounts, args)
	default:
		return fmt.Errorf("unknown opcode %d: %w", op, common.ErrInvalidInstruction)
	}

	name := InstructionName(op)
	if err != nil {
		c.log.Debug("instruction failed", zap.String("instruction", name), zap.Error(err))
		return fmt.Errorf("%s: %w", name, err)
	}

	c.log.Debug("instruction processed", zap.String("instruction", name))

	return nil
}

// InstructionName returns human-readable name of the opcode.
func InstructionName(op byte) string {
	switch op {
	case custodyconst.OpInitializeBalanceRecord:
		return "InitializeBalanceRecord"
	case custodyconst.OpInitializeVaultRecord:
		return "InitializeVaultRecord"
	case custodyconst.OpDeposit:
		return "Deposit"
	case custodyconst.OpWithdraw:
		return "Withdraw"
	case custodyconst.OpDelegateBalanceRecord:
		return "DelegateBalanceRecord"
	case custodyconst.OpUndelegateBalanceRecord:
		return "UndelegateBalanceRecord"
	case custodyconst.OpCreatePermission:
		return "CreatePermission"
	case custodyconst.OpDelegatePermission:
		return "DelegatePermission"
	case custodyconst.OpUndelegatePermission:
		return "UndelegatePermission"
	case custodyconst.OpResetPermission:
		return "ResetPermission"
	case custodyconst.OpUpdatePermission:
		return "UpdatePermission"
	case custodyconst.OpClosePermission:
		return "ClosePermission"
	case custodyconst.OpUndelegationCallback:
		return "UndelegationCallback"
	default:
		return fmt.Sprintf("Unknown(%d)", op)
	}
}

func checkAccounts(accounts []*ledger.Account, n int) error {
	if len(accounts) < n {
		return fmt.Errorf("%d accounts, need %d: %w", len(accounts), n, common.ErrNotEnoughAccountKeys)
	}
	return nil
}

// readBalanceRecord reads the initialized balance record owned by one of
// the programs.
func readBalanceRecord(acc *ledger.Account, owners ...util.Uint256) (owner, asset util.Uint256, amount uint64, err error) {
	if err = common.CheckOwnership(acc, owners...); err != nil {
		return
	}

	data, release, err := acc.Borrow()
	if err != nil {
		return
	}
	defer release()

	rec, err := ParseBalanceRecord(data)
	if err != nil {
		return
	}
	if !rec.IsInitialized() {
		err = fmt.Errorf("balance record is not initialized: %w", common.ErrInvalidAccountData)
		return
	}

	return rec.Owner(), rec.Asset(), rec.Amount(), nil
}

func readVaultRecord(acc *ledger.Account, program util.Uint256) (util.Uint256, error) {
	if err := common.CheckOwnership(acc, program); err != nil {
		return util.Uint256{}, err
	}

	data, release, err := acc.Borrow()
	if err != nil {
		return util.Uint256{}, err
	}
	defer release()

	rec, err := ParseVaultRecord(data)
	if err != nil {
		return util.Uint256{}, err
	}
	if !rec.IsInitialized() {
		return util.Uint256{}, fmt.Errorf("vault record is not initialized: %w", common.ErrInvalidAccountData)
	}

	return rec.Asset(), nil
}
