package calculator

import (
	"sort"

	"github.com/shopspring/decimal"
)

// cent is the smallest amount the ledger tracks.
var cent = decimal.New(1, -2)

// SplitEqually divides amount into n shares of whole cents.
// Sub-cent residue is dropped, and the remaining cents go one each to the first shares,
// so the shares always sum to amount truncated to cents and differ by at most one cent.
func SplitEqually(amount decimal.Decimal, n int) []decimal.Decimal {
	if n <= 0 {
		return nil
	}

	cents := amount.Shift(2).Truncate(0).IntPart()
	base := cents / int64(n)
	remainder := cents % int64(n)

	shares := make([]decimal.Decimal, n)
	for i := range shares {
		share := base
		if int64(i) < remainder {
			share++
		}
		shares[i] = decimal.New(share, -2)
	}
	return shares
}

// sortedMemberIDs returns the basket's member ids in ascending order so that
// remainder cents are handed out deterministically.
func sortedMemberIDs(userIDs []string) []string {
	ids := make([]string, len(userIDs))
	copy(ids, userIDs)
	sort.Strings(ids)
	return ids
}
