package orb

import (
	"encoding/binary"
	"math/bits"
)

// Match is a mutually-nearest descriptor pair between a query and a
// template descriptor set.
type Match struct {
	QueryIdx int
	TrainIdx int
	Distance int
}

// HammingDistance counts differing bits between two descriptors (0..256).
func HammingDistance(a, b *Descriptor) int {
	d := 0
	for i := 0; i < DescriptorSize; i += 8 {
		d += bits.OnesCount64(binary.LittleEndian.Uint64(a[i:]) ^ binary.LittleEndian.Uint64(b[i:]))
	}
	return d
}

// MatchMutual brute-force matches query descriptors against train
// descriptors by Hamming distance with cross-checking: a pair counts only
// when each descriptor is the other's nearest neighbor. Ties resolve to
// the lower index on both sides, which keeps the result deterministic.
func MatchMutual(query, train []Descriptor) []Match {
	if len(query) == 0 || len(train) == 0 {
		return nil
	}

	const maxDist = DescriptorSize*8 + 1

	bestTrain := make([]int, len(query))
	bestTrainDist := make([]int, len(query))
	bestQuery := make([]int, len(train))
	bestQueryDist := make([]int, len(train))
	for j := range train {
		bestQuery[j] = -1
		bestQueryDist[j] = maxDist
	}

	for i := range query {
		bj, bd := -1, maxDist
		for j := range train {
			d := HammingDistance(&query[i], &train[j])
			if d < bd {
				bd, bj = d, j
			}
			if d < bestQueryDist[j] {
				bestQueryDist[j] = d
				bestQuery[j] = i
			}
		}
		bestTrain[i] = bj
		bestTrainDist[i] = bd
	}

	var out []Match
	for i, j := range bestTrain {
		if j >= 0 && bestQuery[j] == i {
			out = append(out, Match{QueryIdx: i, TrainIdx: j, Distance: bestTrainDist[i]})
		}
	}
	return out
}
