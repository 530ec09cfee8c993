package token

import (
	"encoding/binary"
	"errors"

	"github.com/nspcc-dev/neo-go/pkg/util"
)

const (
	// MintLen is the size of the mint account data.
	MintLen = 82
	// AccountLen is the size of the token account data.
	AccountLen = 165
)

// Mint field offsets.
const (
	mintAuthorityOptionOff = 0
	mintAuthorityOff       = 4
	mintSupplyOff          = 36
	mintDecimalsOff        = 44
	mintInitializedOff     = 45
)

// Token account field offsets.
const (
	accountMintOff   = 0
	accountOwnerOff  = 32
	accountAmountOff = 64
	accountStateOff  = 108
)

// Token account states.
const (
	StateUninitialized = iota
	StateInitialized
	StateFrozen
)

var (
	errMintLen    = errors.New("invalid mint data length")
	errAccountLen = errors.New("invalid token account data length")
)

// Mint is a view of the mint account data.
type Mint []byte

// ParseMint checks the data length and returns the mint view.
func ParseMint(data []byte) (Mint, error) {
	if len(data) != MintLen {
		return nil, errMintLen
	}
	return Mint(data), nil
}

// Authority returns the mint authority if set.
func (m Mint) Authority() (util.Uint256, bool) {
	var res util.Uint256
	if binary.LittleEndian.Uint32(m[mintAuthorityOptionOff:]) == 0 {
		return res, false
	}
	copy(res[:], m[mintAuthorityOff:])
	return res, true
}

// Supply returns the amount of tokens in circulation.
func (m Mint) Supply() uint64 { return binary.LittleEndian.Uint64(m[mintSupplyOff:]) }

// Decimals returns the number of base-10 digits after the decimal point.
func (m Mint) Decimals() uint8 { return m[mintDecimalsOff] }

// IsInitialized checks whether the mint is initialized.
func (m Mint) IsInitialized() bool { return m[mintInitializedOff] != 0 }

func (m Mint) setAuthority(a util.Uint256) {
	binary.LittleEndian.PutUint32(m[mintAuthorityOptionOff:], 1)
	copy(m[mintAuthorityOff:], a[:])
}

func (m Mint) setSupply(v uint64) { binary.LittleEndian.PutUint64(m[mintSupplyOff:], v) }

// Account is a view of the token account data.
type Account []byte

// ParseAccount checks the data length and returns the token account view.
func ParseAccount(data []byte) (Account, error) {
	if len(data) != AccountLen {
		return nil, errAccountLen
	}
	return Account(data), nil
}

// Mint returns the mint the account holds tokens of.
func (a Account) Mint() util.Uint256 {
	var res util.Uint256
	copy(res[:], a[accountMintOff:])
	return res
}

// Owner returns the identity allowed to spend the tokens.
func (a Account) Owner() util.Uint256 {
	var res util.Uint256
	copy(res[:], a[accountOwnerOff:])
	return res
}

// Amount returns the amount of tokens held.
func (a Account) Amount() uint64 { return binary.LittleEndian.Uint64(a[accountAmountOff:]) }

// State returns the account state.
func (a Account) State() uint8 { return a[accountStateOff] }

func (a Account) setAmount(v uint64) { binary.LittleEndian.PutUint64(a[accountAmountOff:], v) }
