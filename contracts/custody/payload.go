package custody

import (
	"encoding/binary"
	"fmt"

	"github.com/nspcc-dev/custody-contract/common"
	"github.com/nspcc-dev/custody-contract/contracts/custody/custodyconst"
	"github.com/nspcc-dev/custody-contract/services/permission"
	"github.com/nspcc-dev/neo-go/pkg/util"
)

// payload gives typed access to instruction data checked once to be at
// least of the minimum length. Getters must stay within that length.
type payload []byte

func newPayload(data []byte, minLen int) (payload, error) {
	if len(data) < minLen {
		return nil, fmt.Errorf("payload of %d bytes, need %d: %w", len(data), minLen, common.ErrInvalidInstruction)
	}
	return payload(data), nil
}

func (p payload) u8(off int) uint8 { return p[off] }

func (p payload) u64(off int) uint64 { return binary.LittleEndian.Uint64(p[off:]) }

func (p payload) address(off int) util.Uint256 { return uint256At(p, off) }

func (p payload) tail(off int) []byte { return p[off:] }

const (
	memberIdentityLen = 32
	memberLen         = memberIdentityLen + permission.FlagsEncodedLen
	// bump and owner flags
	membersHeaderLen = 1 + permission.FlagsEncodedLen
)

// members parses the member list of permission payload. Balance record
// owner is always the first member. With forceAuthority the owner keeps
// FlagAuthority whatever the payload says.
func (p payload) members(owner util.Uint256, forceAuthority bool) ([]permission.Member, error) {
	flags, err := permission.DecodeFlags(p[1:membersHeaderLen])
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, common.ErrInvalidInstruction)
	}
	if forceAuthority {
		flags = flags.Set(permission.FlagAuthority)
	}

	extra := p.tail(membersHeaderLen)
	if len(extra) == 0 {
		return []permission.Member{{Identity: owner, Flags: flags}}, nil
	}

	n := int(extra[0])
	if n > custodyconst.MaxExtraMembers {
		return nil, fmt.Errorf("%d extra members: %w", n, common.ErrInvalidInstruction)
	}
	extra = extra[1:]
	if len(extra) != n*memberLen {
		return nil, fmt.Errorf("member list of %d bytes for %d members: %w", len(extra), n, common.ErrInvalidInstruction)
	}

	res := make([]permission.Member, 1, n+1)
	res[0] = permission.Member{Identity: owner, Flags: flags}

	for i := 0; i < n; i++ {
		m := extra[i*memberLen : (i+1)*memberLen]

		var id util.Uint256
		copy(id[:], m)
		if id == owner {
			return nil, fmt.Errorf("owner listed as extra member: %w", common.ErrInvalidArgument)
		}

		f, err := permission.DecodeFlags(m[memberIdentityLen:])
		if err != nil {
			return nil, fmt.Errorf("%v: %w", err, common.ErrInvalidInstruction)
		}

		res = append(res, permission.Member{Identity: id, Flags: f})
	}

	return res, nil
}
