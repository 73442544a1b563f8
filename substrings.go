package subrize

import (
	"sort"

	"github.com/emirpasic/gods/stacks/arraystack"
)

// candidateSubr is a repeated substring of some glyph program, mined from the
// suffix array and carried through the market rounds. Its encoding may
// reference other candidates, so the candidate graph is recursive; a
// candidate never references itself.
type candidateSubr struct {
	length int
	glyph  int // owning program of the reference location
	start  int // offset of the reference location
	freq   int // occurrence count from suffix-array mining
	cs     *charstore

	cost         int // cached literal byte cost of the body
	adjustedCost float64
	price        float64
	usage        int // references in the current round's encodings
	listIdx      int
	position     int // index within its final table, once placed
	global       bool
	flatten      bool
	maxCallDepth int
	fdidx        []int     // partitions this candidate is reachable from
	encoding     []encItem // optimal segmentation of its own body
	program      []Token   // final materialized program
}

// encItem marks a subroutine call within an encoding: the span
// [start, start+subr.length) is replaced by a call to subr. Literal runs are
// the gaps between items.
type encItem struct {
	start int
	subr  *candidateSubr
}

func newCandidateSubr(cs *charstore, length int, loc suffixRef, freq int) *candidateSubr {
	return &candidateSubr{
		length:   length,
		glyph:    loc.glyph,
		start:    loc.offset,
		freq:     freq,
		cs:       cs,
		cost:     -1,
		position: -1,
	}
}

// value returns the candidate's body as alphabet symbols.
func (c *candidateSubr) value() []uint32 {
	return c.cs.programs[c.glyph][c.start : c.start+c.length]
}

// key returns the packed form of the body, usable as a lookup key.
func (c *candidateSubr) key() string {
	return c.cs.spanKey(c.glyph, c.start, c.start+c.length)
}

// bodyCost returns the literal byte cost of the candidate's body.
func (c *candidateSubr) bodyCost() int {
	if c.cost < 0 {
		sum := 0
		for _, sym := range c.value() {
			sum += c.cs.costMap[sym]
		}
		c.cost = sum
	}
	return c.cost
}

// realCost accounts for the calls the candidate's own body makes: each call to
// a placed callee trades the callee's body for a call, while flattened callees
// keep their own real cost. Not cached since encodings change between rounds.
func (c *candidateSubr) realCost(callCost int) int {
	cost := c.bodyCost()
	for _, it := range c.encoding {
		if it.subr.flatten {
			cost += it.subr.realCost(callCost)
		} else {
			cost += callCost - it.subr.bodyCost()
		}
	}
	return cost
}

// saving estimates the bytes saved by subroutinizing this candidate:
// avoided copies minus the body itself, the calls, and the table entry
// overhead. useUsage selects usage over mined frequency; trueCost accounts
// for the candidate's own call-outs.
func (c *candidateSubr) saving(useUsage, trueCost bool, callCost, subrOverhead int) int {
	amt := c.freq
	if useUsage {
		amt = c.usage
	}
	cost := c.bodyCost()
	if trueCost {
		cost = c.realCost(callCost)
	}
	return cost*amt - cost - callCost*amt - subrOverhead
}

type lcpInterval struct {
	minLCP    int
	startRank int
}

// substrings mines all maximal repeated substrings with frequency at least
// minFreq from the suffix and LCP arrays, in a single scan with a monotonic
// stack of open LCP intervals. With checkPositive, only candidates whose
// savings heuristic is positive are kept. The result is sorted by savings,
// descending.
func (cs *charstore) substrings(minFreq int, checkPositive bool, callCost, subrOverhead int) []*candidateSubr {
	suf := cs.suffixes()
	lcp := cs.lcp(suf)

	var subrs []*candidateSubr
	open := arraystack.New() // of lcpInterval
	for i, minL := range lcp {
		lastStart := i - 1
		for {
			top, ok := open.Peek()
			if !ok || top.(lcpInterval).minLCP <= minL {
				break
			}
			open.Pop()
			iv := top.(lcpInterval)
			lastStart = iv.startRank
			freq := i - iv.startRank
			if freq < minFreq {
				continue
			}
			c := newCandidateSubr(cs, iv.minLCP, suf[iv.startRank], freq)
			if !checkPositive || c.saving(false, false, callCost, subrOverhead) > 0 {
				subrs = append(subrs, c)
			}
		}
		if top, ok := open.Peek(); !ok || minL > top.(lcpInterval).minLCP {
			if minL > 0 {
				open.Push(lcpInterval{minL, lastStart})
			}
		}
	}

	sort.SliceStable(subrs, func(i, j int) bool {
		return subrs[i].saving(false, false, callCost, subrOverhead) > subrs[j].saving(false, false, callCost, subrOverhead)
	})
	return subrs
}
