package ledger

// accountStorageOverhead is the number of bytes every account is charged
// for in addition to its data.
const accountStorageOverhead = 128

// Rent describes the storage rent mechanism of the ledger.
type Rent struct {
	LamportsPerByteYear uint64
	ExemptionThreshold  float64
}

// DefaultRent is used when no rent parameters are set.
var DefaultRent = Rent{
	LamportsPerByteYear: 3480,
	ExemptionThreshold:  2.0,
}

// MinimumBalance returns the lamports an account with data of the given
// size must hold to be exempt from rent.
func (r Rent) MinimumBalance(size int) uint64 {
	return uint64(float64((accountStorageOverhead+uint64(size))*r.LamportsPerByteYear) * r.ExemptionThreshold)
}
