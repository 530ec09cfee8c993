package permission

import (
	"fmt"
	"strings"
)

// MemberFlags is a set of member permissions.
type MemberFlags uint8

// Member permissions.
const (
	// FlagAuthority allows managing the permission record.
	FlagAuthority MemberFlags = 1 << iota
	// FlagTxLogs exposes transaction logs to the member.
	FlagTxLogs
	// FlagTxBalances exposes balance changes to the member.
	FlagTxBalances
	// FlagTxMessage exposes transaction messages to the member.
	FlagTxMessage
	// FlagAccountSignatures exposes account signatures to the member.
	FlagAccountSignatures
)

// FlagsEncodedLen is the size of the flags wire form: one byte per flag.
const FlagsEncodedLen = 5

// DefaultFlags grants everything.
const DefaultFlags = FlagAuthority | FlagTxLogs | FlagTxBalances | FlagTxMessage | FlagAccountSignatures

var flagNames = [FlagsEncodedLen]string{
	"authority",
	"tx-logs",
	"tx-balances",
	"tx-message",
	"account-signatures",
}

// Set returns flags with f added.
func (m MemberFlags) Set(f MemberFlags) MemberFlags { return m | f }

// Clear returns flags with f removed.
func (m MemberFlags) Clear(f MemberFlags) MemberFlags { return m &^ f }

// Has checks whether all of f are set.
func (m MemberFlags) Has(f MemberFlags) bool { return m&f == f }

// String implements fmt.Stringer.
func (m MemberFlags) String() string {
	var names []string
	for i := range flagNames {
		if m.Has(1 << i) {
			names = append(names, flagNames[i])
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// EncodeFlags returns the wire form of flags.
func EncodeFlags(m MemberFlags) [FlagsEncodedLen]byte {
	var res [FlagsEncodedLen]byte
	for i := range res {
		if m.Has(1 << i) {
			res[i] = 1
		}
	}
	return res
}

// DecodeFlags parses the wire form of flags. Any non-zero byte sets the
// corresponding flag.
func DecodeFlags(b []byte) (MemberFlags, error) {
	if len(b) != FlagsEncodedLen {
		return 0, fmt.Errorf("invalid flags length %d", len(b))
	}

	var m MemberFlags
	for i := range b {
		if b[i] != 0 {
			m = m.Set(1 << i)
		}
	}
	return m, nil
}

// ParseFlags parses a list of flag names separated by commas or pipes.
// "all" stands for DefaultFlags, "none" and empty string for no flags.
func ParseFlags(s string) (MemberFlags, error) {
	var m MemberFlags

	for _, name := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '|' }) {
		name = strings.ToLower(strings.TrimSpace(name))
		switch name {
		case "", "none":
			continue
		case "all":
			m = m.Set(DefaultFlags)
			continue
		}

		found := false
		for i := range flagNames {
			if flagNames[i] == name {
				m = m.Set(1 << i)
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown member flag %q", name)
		}
	}

	return m, nil
}
