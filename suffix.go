package subrize

import (
	"sort"
	"strings"
)

// suffixRef addresses the suffix programs[glyph][offset:].
type suffixRef struct {
	glyph  int
	offset int
}

// suffixes returns all (glyph, offset) pairs sorted by the lexicographic
// order of their suffixes. When one suffix is a prefix of another, or two
// suffixes are equal, the tie is broken by natural tuple order.
func (cs *charstore) suffixes() []suffixRef {
	suf := make([]suffixRef, 0, cs.length)
	for glyph, program := range cs.programs {
		for offset := range program {
			suf = append(suf, suffixRef{glyph, offset})
		}
	}
	sort.Slice(suf, func(i, j int) bool {
		a, b := suf[i], suf[j]
		c := strings.Compare(cs.packed[a.glyph][4*a.offset:], cs.packed[b.glyph][4*b.offset:])
		if c != 0 {
			return c < 0
		}
		if a.glyph != b.glyph {
			return a.glyph < b.glyph
		}
		return a.offset < b.offset
	})
	return suf
}

// lcp computes the longest-common-prefix array for the sorted suffixes using
// Kasai's rank-based linear pass: lcp[i] is the number of leading tokens the
// suffixes at ranks i-1 and i share, and lcp[0] is always 0.
func (cs *charstore) lcp(suf []suffixRef) []int {
	rank := make([][]int, len(cs.programs))
	for glyph, program := range cs.programs {
		rank[glyph] = make([]int, len(program))
	}
	for i, s := range suf {
		rank[s.glyph][s.offset] = i
	}

	lcp := make([]int, cs.length)
	for glyph, program := range cs.programs {
		h := 0
		for offset := range program {
			r := rank[glyph][offset]
			if r > 0 {
				prev := suf[r-1]
				prevProgram := cs.programs[prev.glyph]
				for prev.offset+h < len(prevProgram) && offset+h < len(program) &&
					prevProgram[prev.offset+h] == program[offset+h] {
					h++
				}
				lcp[r] = h
				if h > 0 {
					h--
				}
			}
		}
	}
	return lcp
}
