package permission

import (
	"errors"
	"fmt"

	"github.com/nspcc-dev/custody-contract/common"
	"github.com/nspcc-dev/neo-go/pkg/io"
	"github.com/nspcc-dev/neo-go/pkg/util"
)

// SeedTag prefixes the seeds of every permission record.
const SeedTag = "permission:"

// MaxMembers is the maximum number of members of the single record.
const MaxMembers = 16

// Member is an identity with its permissions.
type Member struct {
	Identity util.Uint256
	Flags    MemberFlags
}

// Record is the stored permission record.
type Record struct {
	// Account the record is attached to.
	Permissioned util.Uint256
	Members      []Member
}

// Encode serializes the record into its stored form.
func (r Record) Encode() []byte {
	w := io.NewBufBinWriter()
	w.WriteBytes(r.Permissioned[:])
	w.WriteVarUint(uint64(len(r.Members)))
	for i := range r.Members {
		w.WriteBytes(r.Members[i].Identity[:])
		w.WriteB(byte(r.Members[i].Flags))
	}
	return w.Bytes()
}

// DecodeRecord parses the stored record.
func DecodeRecord(b []byte) (Record, error) {
	var rec Record

	r := io.NewBinReaderFromBuf(b)
	r.ReadBytes(rec.Permissioned[:])

	n := r.ReadVarUint()
	if r.Err != nil {
		return rec, r.Err
	}
	if n > MaxMembers {
		return rec, fmt.Errorf("too many members %d", n)
	}

	rec.Members = make([]Member, n)
	for i := range rec.Members {
		r.ReadBytes(rec.Members[i].Identity[:])
		rec.Members[i].Flags = MemberFlags(r.ReadB())
	}
	if r.Err != nil {
		return rec, r.Err
	}

	return rec, nil
}

// Member returns flags of the identity if it is a member.
func (r Record) Member(id util.Uint256) (MemberFlags, bool) {
	for i := range r.Members {
		if r.Members[i].Identity == id {
			return r.Members[i].Flags, true
		}
	}
	return 0, false
}

// CheckMembers verifies the member list can be stored.
func CheckMembers(members []Member) error {
	if len(members) > MaxMembers {
		return fmt.Errorf("%d members exceed the limit of %d", len(members), MaxMembers)
	}

	seen := make(map[util.Uint256]struct{}, len(members))
	for i := range members {
		if _, ok := seen[members[i].Identity]; ok {
			return errors.New("duplicate member " + common.EncodeAddress(members[i].Identity))
		}
		seen[members[i].Identity] = struct{}{}
	}

	return nil
}

// Seeds returns seeds (without the bump) of the permission record attached
// to the account.
func Seeds(permissioned util.Uint256) common.Seeds {
	return common.Seeds{[]byte(SeedTag), permissioned[:]}
}

// Address returns address and bump of the permission record attached to the
// account.
func Address(service, permissioned util.Uint256) (util.Uint256, uint8, error) {
	return common.FindProgramAddress(Seeds(permissioned), service)
}
