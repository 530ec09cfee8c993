package common

import "strconv"

// ProgramError is a failure reported by a program or a service to the host.
// The host rolls back every change made by the transaction that produced it.
type ProgramError uint32

const (
	// ErrInvalidArgument is returned on bad arguments, incl. checked
	// arithmetic overflow and underflow.
	ErrInvalidArgument ProgramError = iota + 1
	// ErrInvalidInstruction is returned on unknown opcodes and malformed
	// instruction payloads.
	ErrInvalidInstruction
	// ErrInvalidAccountData is returned when account ownership, layout,
	// initialization or identity does not match expectations.
	ErrInvalidAccountData
	// ErrAlreadyInUse is returned on double initialization and on attempts
	// to reinitialize a delegated record.
	ErrAlreadyInUse
	// ErrMissingRequiredSignature is returned when a required signer did not
	// sign.
	ErrMissingRequiredSignature
	// ErrInvalidSeeds is returned when a derived address does not match its
	// documented seeds.
	ErrInvalidSeeds
	// ErrNotEnoughAccountKeys is returned when an account list is shorter
	// than required.
	ErrNotEnoughAccountKeys
	// ErrIncorrectAuthority is returned when a signer is not the authority of
	// the record it operates on.
	ErrIncorrectAuthority
	// ErrAccountBorrowFailed is returned when account data is already
	// borrowed in a conflicting way.
	ErrAccountBorrowFailed
	// ErrInsufficientFunds is returned when lamports are not enough to pay
	// for an operation.
	ErrInsufficientFunds
	// ErrUnknownProgram is returned when an instruction targets an address
	// with no registered program.
	ErrUnknownProgram
	// ErrAccountNotWritable is returned on attempts to modify an account
	// passed read-only.
	ErrAccountNotWritable
)

// ErrArithmeticOverflow is the invalid-argument class failure of checked
// arithmetic.
const ErrArithmeticOverflow = ErrInvalidArgument

var programErrorText = [...]string{
	ErrInvalidArgument:          "invalid argument",
	ErrInvalidInstruction:       "invalid instruction",
	ErrInvalidAccountData:       "invalid account data",
	ErrAlreadyInUse:             "account already in use",
	ErrMissingRequiredSignature: "missing required signature",
	ErrInvalidSeeds:             "invalid seeds",
	ErrNotEnoughAccountKeys:     "not enough account keys",
	ErrIncorrectAuthority:       "incorrect authority",
	ErrAccountBorrowFailed:      "account borrow failed",
	ErrInsufficientFunds:        "insufficient funds",
	ErrUnknownProgram:           "unknown program",
	ErrAccountNotWritable:       "account not writable",
}

// Error implements the error interface.
func (e ProgramError) Error() string {
	if int(e) < len(programErrorText) && programErrorText[e] != "" {
		return programErrorText[e]
	}
	return "program error #" + strconv.FormatUint(uint64(e), 10)
}

// Code returns numeric code of the error as reported to the host.
func (e ProgramError) Code() uint32 {
	return uint32(e)
}
