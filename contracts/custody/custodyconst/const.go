package custodyconst

// Instruction opcodes, the first byte of instruction data.
const (
	OpInitializeBalanceRecord = 0
	OpInitializeVaultRecord   = 1
	OpDeposit                 = 2
	OpWithdraw                = 3
	OpDelegateBalanceRecord   = 4
	OpUndelegateBalanceRecord = 5
	OpCreatePermission        = 6
	OpDelegatePermission      = 7
	OpUndelegatePermission    = 8
	OpResetPermission         = 9
	OpUpdatePermission        = 10
	OpClosePermission         = 11
	// OpUndelegationCallback is the first byte of the callback
	// discriminator used by the delegation service.
	OpUndelegationCallback = 196
)

const (
	// BalanceRecordLen is the size of the balance record: owner, asset and
	// little-endian amount.
	BalanceRecordLen = 32 + 32 + 8
	// VaultRecordLen is the size of the vault record: asset.
	VaultRecordLen = 32
)

const (
	// CallbackHeaderLen is the number of discriminator bytes following the
	// callback opcode.
	CallbackHeaderLen = 7
	// MaxExtraMembers limits members passed in addition to the balance
	// record owner.
	MaxExtraMembers = 15
)
