package common

import (
	"errors"
	"fmt"

	"github.com/nspcc-dev/neo-go/pkg/io"
)

// EncodeSeeds serializes the seed list into its stored form: var-uint count
// followed by var-bytes seeds.
func EncodeSeeds(seeds Seeds) []byte {
	w := io.NewBufBinWriter()
	EncodeSeedsTo(w.BinWriter, seeds)
	return w.Bytes()
}

// EncodeSeedsTo writes the seed list to w.
func EncodeSeedsTo(w *io.BinWriter, seeds Seeds) {
	w.WriteVarUint(uint64(len(seeds)))
	for i := range seeds {
		w.WriteVarBytes(seeds[i])
	}
}

// DecodeSeeds parses the seed list written by EncodeSeeds. Trailing bytes
// are an error.
func DecodeSeeds(b []byte) (Seeds, error) {
	r := io.NewBinReaderFromBuf(b)

	seeds, err := DecodeSeedsFrom(r)
	if err != nil {
		return nil, err
	}

	r.ReadB()
	if r.Err == nil {
		return nil, errors.New("trailing bytes after seeds")
	}

	return seeds, nil
}

// DecodeSeedsFrom reads the seed list from r.
func DecodeSeedsFrom(r *io.BinReader) (Seeds, error) {
	n := r.ReadVarUint()
	if r.Err != nil {
		return nil, fmt.Errorf("read seed count: %w", r.Err)
	}
	if n > MaxSeeds {
		return nil, fmt.Errorf("too many seeds %d", n)
	}

	seeds := make(Seeds, n)
	for i := range seeds {
		seeds[i] = r.ReadVarBytes(MaxSeedLen)
	}
	if r.Err != nil {
		return nil, fmt.Errorf("read seeds: %w", r.Err)
	}

	return seeds, nil
}
