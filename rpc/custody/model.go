package custody

import "github.com/nspcc-dev/neo-go/pkg/util"

type (
	// Programs groups addresses of the custody program and the services it
	// calls.
	Programs struct {
		Custody    util.Uint256
		System     util.Uint256
		Token      util.Uint256
		Delegation util.Uint256
		Permission util.Uint256
	}

	// BalanceRecord is a decoded balance record.
	BalanceRecord struct {
		Address util.Uint256
		Owner   util.Uint256
		Asset   util.Uint256
		Amount  uint64
		// Delegated is set while the record is owned by the delegation
		// service.
		Delegated bool
	}

	// DepositPrm groups parameters of the deposit instruction.
	DepositPrm struct {
		// Balance record owner.
		Owner util.Uint256
		Asset util.Uint256
		// Token account tokens are taken from.
		Source util.Uint256
		// Signer authorized to spend Source.
		Authority util.Uint256
		// Token account of the asset held by the vault record.
		VaultToken util.Uint256
		Amount     uint64
	}

	// WithdrawPrm groups parameters of the withdraw instruction.
	WithdrawPrm struct {
		Owner       util.Uint256
		Asset       util.Uint256
		VaultToken  util.Uint256
		Destination util.Uint256
		Amount      uint64
	}
)
