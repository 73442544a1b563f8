// Package subrize rewrites the Type 2 charstrings of a font to share repeated
// instruction sequences through global and local subroutines, minimizing the
// total compiled size while respecting the CFF limits on table capacity and
// call nesting.
//
// The input is one freshly decompiled token program per glyph; the output is
// a global subroutine table, one local table per FD partition, and every
// glyph program rewritten with call instructions, ready for a binary table
// compiler. This package never touches the binary container format.
package subrize

import (
	"fmt"
	"math"

	"github.com/npillmayer/schuko/tracing"
)

// tracer returns the trace sink for this package's namespace.
func tracer() tracing.Trace {
	return tracing.Select("subrize")
}

const (
	// DefaultMaxSubrs is the maximum number of entries per subroutine table.
	DefaultMaxSubrs = 65533 // 64K - 3

	// NestLimit is the maximum call depth the CFF interpreter model allows.
	NestLimit = 10

	defaultNRounds      = 4
	defaultAlpha        = 0.1
	defaultK            = 0.1
	defaultCallCost     = 5
	defaultSubrOverhead = 3

	defaultChunkRatio  = 0.1
	smallChunkRatio    = 0.05
	smallCharsetCutoff = 1500
)

// Options configures a compression run. The zero value selects the defaults.
type Options struct {
	NRounds      int     // market rounds, default 4
	MaxSubrs     int     // capacity per subroutine table, default 65533
	Alpha        float64 // price moving-average weight, default 0.1
	K            float64 // marginal-cost damping constant, default 0.1
	CallCost     int     // assumed byte cost of a subroutine call, default 5
	SubrOverhead int     // assumed byte cost of a table entry, default 3
	Workers      int     // parallel workers; 1 runs serially, 0 uses all CPUs
	ChunkRatio   float64 // fraction of items per work chunk, default 0.1
	TestMode     bool    // disable the savings filter and pruning, for diagnostics
}

func (o *Options) defaults(numGlyphs int) Options {
	v := Options{}
	if o != nil {
		v = *o
	}
	if v.NRounds < 1 {
		v.NRounds = defaultNRounds
	}
	if v.MaxSubrs < 1 {
		v.MaxSubrs = DefaultMaxSubrs
	}
	if v.Alpha == 0 {
		v.Alpha = defaultAlpha
	}
	if v.K == 0 {
		v.K = defaultK
	}
	if v.CallCost == 0 {
		v.CallCost = defaultCallCost
	}
	if v.SubrOverhead == 0 {
		v.SubrOverhead = defaultSubrOverhead
	}
	if v.ChunkRatio == 0 {
		v.ChunkRatio = defaultChunkRatio
		if numGlyphs < smallCharsetCutoff {
			v.ChunkRatio = smallChunkRatio
		}
	}
	return v
}

// Result is the outcome of a compression run: finalized token programs for
// the global table, each FD's local table, and every glyph, ready to be
// assembled into a font's subroutine indexes by a binary table compiler.
type Result struct {
	GlobalSubrs [][]Token
	LocalSubrs  [][][]Token
	Glyphs      map[string][]Token
}

// compressor carries all per-run state: the tokenized programs, the live
// candidate pool, and the price oracle handed to the DP. Nothing is shared
// between runs.
type compressor struct {
	o       Options
	cs      *charstore
	cands   []*candidateSubr
	oracle  map[string]priceRef
	exec    executor
	multiFD bool

	gsubrs []*candidateSubr
	lsubrs [][]*candidateSubr
	gbias  int
	lbias  []int
}

// Subroutinize compresses the given glyph programs. fdSelect maps a glyph
// name to its FD partition in [0, nFDs); pass nil for fonts without FD
// partitioning (nFDs is then treated as 1). It returns an error only for
// precondition violations: programs that already contain subroutine calls or
// returns, or a misplaced endchar.
func Subroutinize(glyphs map[string][]Token, fdSelect func(string) int, nFDs int, options *Options) (*Result, error) {
	c, err := newCompressor(glyphs, fdSelect, nFDs, options)
	if err != nil {
		return nil, err
	}
	glyphEncs := c.iterate()
	c.allocate(glyphEncs)
	return c.materialize(glyphEncs), nil
}

func newCompressor(glyphs map[string][]Token, fdSelect func(string) int, nFDs int, options *Options) (*compressor, error) {
	if fdSelect == nil {
		nFDs = 1
	} else if nFDs < 1 {
		return nil, fmt.Errorf("subrize: nFDs must be at least 1, got %d", nFDs)
	}

	cs, err := newCharstore(glyphs, fdSelect, nFDs)
	if err != nil {
		return nil, err
	}

	o := options.defaults(len(glyphs))
	c := &compressor{o: o, cs: cs, multiFD: fdSelect != nil}
	if o.Workers == 1 {
		c.exec = serialExecutor{}
	} else {
		c.exec = newPoolExecutor(o.Workers)
	}

	minFreq := 2
	if o.TestMode {
		minFreq = 0
	}
	c.cands = cs.substrings(minFreq, !o.TestMode, o.CallCost, o.SubrOverhead)
	tracer().Debugf("%d substrings found over %d glyphs", len(c.cands), len(cs.glyphNames))
	return c, nil
}

// chunkSize returns the work-chunk size for n items.
func (c *compressor) chunkSize(n int) int {
	return int(math.Ceil(c.o.ChunkRatio * float64(n)))
}
