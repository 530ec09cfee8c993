package delegation

import (
	"errors"
	"fmt"

	"github.com/nspcc-dev/custody-contract/common"
	"github.com/nspcc-dev/neo-go/pkg/io"
	"github.com/nspcc-dev/neo-go/pkg/util"
)

// Seed tags of the accounts used by the delegation.
const (
	RecordSeed       = "delegation"
	MetadataSeed     = "delegation-metadata"
	BufferSeed       = "buffer"
	UndelegateSeed   = "undelegate-buffer"
	MagicContextSeed = "magic-context"
)

const (
	recordLen         = 32 + 32 + 4 + 8
	metadataHeaderLen = 32
)

// CallbackDiscriminator prefixes the data of the undelegation callback
// issued to the owner program. The first byte doubles as the owner
// program opcode.
var CallbackDiscriminator = [8]byte{196, 28, 41, 206, 48, 37, 51, 167}

// Record describes the delegated account.
type Record struct {
	// Program that owned the account before delegation.
	OwnerProgram util.Uint256
	// Validator allowed to operate the account, zero for any.
	Validator util.Uint256
	// How often the state is committed back.
	CommitFrequencyMs uint32
	// Native balance of the account at delegation.
	Lamports uint64
}

// Encode serializes the record into its stored form.
func (r Record) Encode() []byte {
	w := io.NewBufBinWriter()
	w.WriteBytes(r.OwnerProgram[:])
	w.WriteBytes(r.Validator[:])
	w.WriteU32LE(r.CommitFrequencyMs)
	w.WriteU64LE(r.Lamports)
	return w.Bytes()
}

// DecodeRecord parses the stored record.
func DecodeRecord(b []byte) (Record, error) {
	var r Record

	if len(b) != recordLen {
		return r, fmt.Errorf("invalid delegation record length %d", len(b))
	}

	br := io.NewBinReaderFromBuf(b)
	br.ReadBytes(r.OwnerProgram[:])
	br.ReadBytes(r.Validator[:])
	r.CommitFrequencyMs = br.ReadU32LE()
	r.Lamports = br.ReadU64LE()

	return r, br.Err
}

// Metadata keeps what is needed to give the account back: seeds the
// account is derived from and the payer of the delegation rent.
type Metadata struct {
	RentPayer util.Uint256
	Seeds     common.Seeds
}

// Encode serializes the metadata into its stored form.
func (m Metadata) Encode() []byte {
	w := io.NewBufBinWriter()
	w.WriteBytes(m.RentPayer[:])
	common.EncodeSeedsTo(w.BinWriter, m.Seeds)
	return w.Bytes()
}

// DecodeMetadata parses the stored metadata.
func DecodeMetadata(b []byte) (Metadata, error) {
	var m Metadata

	if len(b) < metadataHeaderLen {
		return m, errors.New("delegation metadata is too short")
	}

	copy(m.RentPayer[:], b)

	seeds, err := common.DecodeSeeds(b[metadataHeaderLen:])
	if err != nil {
		return m, fmt.Errorf("metadata seeds: %w", err)
	}
	m.Seeds = seeds

	return m, nil
}

// RecordAddress returns address of the delegation record of the account.
func RecordAddress(service, acc util.Uint256) (util.Uint256, uint8, error) {
	return common.FindProgramAddress(common.Seeds{[]byte(RecordSeed), acc[:]}, service)
}

// MetadataAddress returns address of the delegation metadata of the account.
func MetadataAddress(service, acc util.Uint256) (util.Uint256, uint8, error) {
	return common.FindProgramAddress(common.Seeds{[]byte(MetadataSeed), acc[:]}, service)
}

// BufferAddress returns address of the buffer the owner program stages the
// account through on delegation.
func BufferAddress(owner, acc util.Uint256) (util.Uint256, uint8, error) {
	return common.FindProgramAddress(common.Seeds{[]byte(BufferSeed), acc[:]}, owner)
}

// UndelegateBufferAddress returns address of the buffer holding the account
// snapshot while the owner program restores it.
func UndelegateBufferAddress(service, acc util.Uint256) (util.Uint256, uint8, error) {
	return common.FindProgramAddress(common.Seeds{[]byte(UndelegateSeed), acc[:]}, service)
}

// MagicContextAddress returns address of the context commits are scheduled
// through.
func MagicContextAddress(service util.Uint256) (util.Uint256, uint8, error) {
	return common.FindProgramAddress(common.Seeds{[]byte(MagicContextSeed)}, service)
}
