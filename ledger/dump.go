package ledger

import (
	"bytes"
	"encoding/base64"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/nspcc-dev/custody-contract/common"
)

// global encoding of binary values.
var _encoding = base64.StdEncoding

const dumpFields = 5

// Dump writes all non-empty accounts as CSV sorted by address. Records are
// 'address,owner,lamports,executable,data' where addresses are base58 and
// data is base64-encoded. Programs are not dumped, only their accounts.
func (l *Ledger) Dump(w io.Writer) error {
	states := make([]*state, 0, len(l.accounts))
	for _, st := range l.accounts {
		if st.lamports == 0 && len(st.data) == 0 && !st.executable {
			continue
		}
		states = append(states, st)
	}

	sort.Slice(states, func(i, j int) bool {
		return bytes.Compare(states[i].address[:], states[j].address[:]) < 0
	})

	_csv := csv.NewWriter(w)

	for _, st := range states {
		err := _csv.Write([]string{
			common.EncodeAddress(st.address),
			common.EncodeAddress(st.owner),
			strconv.FormatUint(st.lamports, 10),
			strconv.FormatBool(st.executable),
			_encoding.EncodeToString(st.data),
		})
		if err != nil {
			return fmt.Errorf("write CSV record: %w", err)
		}
	}

	_csv.Flush()

	err := _csv.Error()
	if err != nil {
		return fmt.Errorf("flush CSV data: %w", err)
	}

	return nil
}

// Restore puts accounts written by Dump into the ledger overwriting
// existing ones.
func (l *Ledger) Restore(r io.Reader) error {
	_csv := csv.NewReader(r)
	_csv.FieldsPerRecord = dumpFields
	_csv.ReuseRecord = true

	for {
		rec, err := _csv.Read()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("read next CSV record: %w", err)
		}

		var info AccountInfo

		info.Address, err = common.DecodeAddress(rec[0])
		if err != nil {
			return fmt.Errorf("decode address: %w", err)
		}

		info.Owner, err = common.DecodeAddress(rec[1])
		if err != nil {
			return fmt.Errorf("decode owner of %s: %w", rec[0], err)
		}

		info.Lamports, err = strconv.ParseUint(rec[2], 10, 64)
		if err != nil {
			return fmt.Errorf("decode lamports of %s: %w", rec[0], err)
		}

		info.Executable, err = strconv.ParseBool(rec[3])
		if err != nil {
			return fmt.Errorf("decode executable flag of %s: %w", rec[0], err)
		}

		info.Data, err = _encoding.DecodeString(rec[4])
		if err != nil {
			return fmt.Errorf("decode data of %s: %w", rec[0], err)
		}

		l.Put(info)
	}
}
