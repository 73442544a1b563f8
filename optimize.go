package subrize

import "math"

// priceRef is the oracle's answer for a replaceable span: the candidate's
// index in the live pool and its price for the current round.
type priceRef struct {
	idx   int
	price float64
}

type rawEncItem struct {
	start int
	subr  int // index into the live candidate pool
}

// optimizeCharstring segments one token sequence against the round's frozen
// price table: a weighted interval-partition DP over positions from the end
// backward, where every span is either a literal run at summed token cost or,
// if the oracle knows it, a single call at the span's price. skip excludes one
// candidate index so that a candidate never replaces its own body with itself.
// Ties resolve to the first minimum found scanning j upward, so the result is
// deterministic for a fixed price table.
func optimizeCharstring(syms []uint32, packed string, costMap []int, oracle map[string]priceRef, skip int) ([]rawEncItem, float64) {
	n := len(syms)
	best := make([]float64, n+1)
	nextIdx := make([]int, n)
	nextSubr := make([]int, n)

	for i := n - 1; i >= 0; i-- {
		minOption := math.Inf(1)
		minIdx := n
		minSubr := -1
		literal := 0.0
		for j := i + 1; j <= n; j++ {
			literal += float64(costMap[syms[j-1]])

			option := literal + best[j]
			subr := -1
			if ref, ok := oracle[packed[4*i:4*j]]; ok && ref.idx != skip {
				option = ref.price + best[j]
				subr = ref.idx
			}

			if option < minOption {
				minOption = option
				minIdx = j
				minSubr = subr
			}
		}
		best[i] = minOption
		nextIdx[i] = minIdx
		nextSubr[i] = minSubr
	}

	var encoding []rawEncItem
	for i := 0; i < n; {
		if nextSubr[i] >= 0 {
			encoding = append(encoding, rawEncItem{i, nextSubr[i]})
		}
		i = nextIdx[i]
	}
	return encoding, best[0]
}
