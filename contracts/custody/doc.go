/*
Package custody implements the custody program which is deployed to the
ledger.

Custody program keeps token balances of users in pooled per-asset vaults.
Every owner×asset pair has its own balance record derived from [owner, asset]
seeds, every asset has a single vault record derived from [asset] seeds. The
vault record address is the owner of the token account actually holding the
pooled tokens, so the program moves them out by signing with the vault seeds.

Balance records can be handed over to the delegation service so that an
execution environment operates them. While delegated, a balance record is
owned by the delegation service and every handler that mutates it fails the
ownership check. Undelegation commits the latest state back through the
undelegation callback. A balance record may carry a permission record kept by
the permission service that lists members the execution environment exposes
the record data to.

# Instructions

The first byte of instruction data is the opcode, the rest is the payload.

	 0 InitializeBalanceRecord  bump
	 1 InitializeVaultRecord    bump
	 2 Deposit                  amount(u64 LE)
	 3 Withdraw                 amount(u64 LE) vault-bump
	 4 DelegateBalanceRecord    bump [validator(32)]
	 5 UndelegateBalanceRecord
	 6 CreatePermission         bump flags(5) [count(1) count×(identity(32) flags(5))]
	 7 DelegatePermission       bump
	 8 UndelegatePermission
	 9 ResetPermission          same as CreatePermission
	10 UpdatePermission         same as CreatePermission
	11 ClosePermission          bump
	196 undelegation callback, issued by the delegation service only

Every bump must be the canonical one, i.e. the first bump from 255 down
giving a valid derived address. ResetPermission takes the UpdatePermission
accounts: owner, balance record, permission record, permission program.

Permission flags are encoded with one byte per flag in AUTHORITY, TX_LOGS,
TX_BALANCES, TX_MESSAGE, ACCOUNT_SIGNATURES order.

# Errors

Every failure is a common.ProgramError wrapped with context, the whole
transaction is rolled back by the ledger.
*/
package custody

/*
Program storage model.

# Balance record

	owner  [32]byte
	asset  [32]byte
	amount uint64 (LE)

Non-zero asset marks the record initialized.

# Vault record

	asset [32]byte
*/
