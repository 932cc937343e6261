package types

import "strconv"

// Rank identifies a participant of a run. Rank 0 is the coordinator and
// ranks 1..N-1 are workers.
type Rank int

// CoordinatorRank is the rank of the coordinator.
const CoordinatorRank Rank = 0

// IsCoordinator reports whether r is the coordinator rank.
func (r Rank) IsCoordinator() bool {
	return r == CoordinatorRank
}

// String returns the decimal form of the rank.
func (r Rank) String() string {
	return strconv.Itoa(int(r))
}

// WorkerRanks returns the worker ranks of a run with size participants,
// in ascending order.
func WorkerRanks(size int) []Rank {
	if size < 2 {
		return []Rank{}
	}
	ranks := make([]Rank, 0, size-1)
	for r := 1; r < size; r++ {
		ranks = append(ranks, Rank(r))
	}
	return ranks
}
