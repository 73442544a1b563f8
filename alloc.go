package subrize

import "sort"

// allocate turns the settled candidate pool into the final global and local
// subroutine tables: it marks FD reachability, filters by true-cost savings,
// places candidates greedily under the capacity limits, guards CID fonts
// against global-to-local calls, enforces the nesting limit, orders each
// table by usage, and materializes the bodies of placed and flattened
// candidates.
func (c *compressor) allocate(glyphEncs [][]encItem) {
	o := &c.o

	// reachability: tag every candidate with the FD partitions it is
	// transitively reached from
	for gi, enc := range glyphEncs {
		for _, it := range enc {
			markReachable(it.subr, c.cs.fd[gi])
		}
	}

	// eligibility: unused, unreached, or unprofitable candidates are
	// flattened wherever they are referenced
	var subrs, bad []*candidateSubr
	for _, cand := range c.cands {
		if cand.usage > 0 && len(cand.fdidx) > 0 && cand.saving(true, true, o.CallCost, o.SubrOverhead) > 0 {
			subrs = append(subrs, cand)
		} else {
			cand.flatten = true
			bad = append(bad, cand)
		}
	}
	tracer().Debugf("%d substrings unused or with negative savings", len(bad))

	// greedy placement, highest savings first
	sort.SliceStable(subrs, func(i, j int) bool {
		return subrs[i].saving(true, true, o.CallCost, o.SubrOverhead) <
			subrs[j].saving(true, true, o.CallCost, o.SubrOverhead)
	})

	gsubrs := []*candidateSubr{}
	lsubrs := make([][]*candidateSubr, c.cs.nFDs)
	for i := range lsubrs {
		lsubrs[i] = []*candidateSubr{}
	}
	localSpace := func() bool {
		for _, table := range lsubrs {
			if len(table) < o.MaxSubrs {
				return true
			}
		}
		return false
	}
	for len(subrs) > 0 && (localSpace() || len(gsubrs) < o.MaxSubrs) {
		subr := subrs[len(subrs)-1]
		subrs = subrs[:len(subrs)-1]
		if len(subr.fdidx) == 1 {
			local := subr.fdidx[0]
			if len(gsubrs) < o.MaxSubrs {
				if len(lsubrs[local]) < o.MaxSubrs {
					// both tables have space, prefer the cheaper call encoding
					if testCallCost(subr, gsubrs) < testCallCost(subr, lsubrs[local]) {
						gsubrs = insertByUsage(subr, gsubrs)
						subr.global = true
					} else {
						lsubrs[local] = insertByUsage(subr, lsubrs[local])
					}
				} else {
					gsubrs = insertByUsage(subr, gsubrs)
					subr.global = true
				}
			} else if len(lsubrs[local]) < o.MaxSubrs {
				lsubrs[local] = insertByUsage(subr, lsubrs[local])
			} else {
				bad = append(bad, subr)
			}
		} else {
			// reachable from multiple partitions, global only
			if len(gsubrs) < o.MaxSubrs {
				gsubrs = insertByUsage(subr, gsubrs)
				subr.global = true
			} else {
				bad = append(bad, subr)
			}
		}
	}
	bad = append(bad, subrs...) // capacity exhausted on both sides

	// CID-keyed fonts: the global table must never call local entries, so
	// every local transitively reachable from a global is flattened
	if c.multiFD {
		crossed := collectLocalsCalledFrom(gsubrs)
		for i, table := range lsubrs {
			kept := []*candidateSubr{}
			for _, s := range table {
				if crossed[s] {
					bad = append(bad, s)
				} else {
					kept = append(kept, s)
				}
			}
			lsubrs[i] = kept
		}
	}

	for _, s := range bad {
		s.flatten = true
	}

	// enforce the nesting limit
	calcNesting(gsubrs)
	for _, table := range lsubrs {
		calcNesting(table)
	}
	tooNested := 0
	filterDepth := func(table []*candidateSubr) []*candidateSubr {
		kept := []*candidateSubr{}
		for _, s := range table {
			if s.maxCallDepth > NestLimit {
				s.flatten = true
				bad = append(bad, s)
				tooNested++
			} else {
				kept = append(kept, s)
			}
		}
		return kept
	}
	gsubrs = filterDepth(gsubrs)
	for i := range lsubrs {
		lsubrs[i] = filterDepth(lsubrs[i])
	}
	tracer().Debugf("%d substrings nested too deep", tooNested)
	tracer().Debugf("%d substrings being flattened", len(bad))

	// order hottest-first so frequent calls get the single-byte bias zone,
	// then rotate the high-bias tables so positions 0.. map onto the
	// cheapest operand encodings
	c.gbias = calcBias(len(gsubrs))
	c.lbias = make([]int, len(lsubrs))
	for i, table := range lsubrs {
		c.lbias[i] = calcBias(len(table))
	}
	order := func(table []*candidateSubr, bias int) []*candidateSubr {
		sort.SliceStable(table, func(i, j int) bool { return table[i].usage > table[j].usage })
		if bias == 1131 {
			table = rotateBiasZones(table, false)
		} else if bias == 32768 {
			table = rotateBiasZones(table, true)
		}
		for idx, s := range table {
			s.position = idx
		}
		return table
	}
	gsubrs = order(gsubrs, c.gbias)
	for i := range lsubrs {
		lsubrs[i] = order(lsubrs[i], c.lbias[i])
	}

	// materialize flattened bodies shortest-first, so that a longer body can
	// splice in the already-resolved program of any shorter one it calls
	sort.SliceStable(bad, func(i, j int) bool { return bad[i].length < bad[j].length })
	for _, s := range bad {
		if len(s.fdidx) == 0 {
			continue // never referenced, nothing to resolve
		}
		program := c.cs.tokens(s.value())
		program = c.updateProgram(program, s.encoding, -1)
		s.program = ExpandHintmask(program)
	}

	// materialize placed bodies with a trailing return
	finish := func(table []*candidateSubr, fd int) {
		for _, s := range table {
			program := c.cs.tokens(s.value())
			if last := program[len(program)-1]; last.Kind != TokenOperator || last.Op != "endchar" && last.Op != "return" {
				program = append(program, Operator("return"))
			}
			program = c.updateProgram(program, s.encoding, fd)
			s.program = ExpandHintmask(program)
		}
	}
	finish(gsubrs, -1)
	for i, table := range lsubrs {
		finish(table, i)
	}

	c.gsubrs = gsubrs
	c.lsubrs = lsubrs
}

func markReachable(s *candidateSubr, fd int) {
	for _, have := range s.fdidx {
		if have == fd {
			return
		}
	}
	s.fdidx = append(s.fdidx, fd)
	for _, it := range s.encoding {
		markReachable(it.subr, fd)
	}
}

// testCallCost returns how many bytes the call operand would take if subr
// were inserted into the table, given the entries already outranking it.
func testCallCost(subr *candidateSubr, table []*candidateSubr) int {
	if len(table) >= 2263 && table[2262].usage >= subr.usage {
		return 3
	}
	if len(table) >= 215 && table[214].usage >= subr.usage {
		return 2
	}
	return 1
}

// insertByUsage inserts subr keeping the table sorted by usage, descending.
func insertByUsage(subr *candidateSubr, table []*candidateSubr) []*candidateSubr {
	table = append(table, subr)
	sort.SliceStable(table, func(i, j int) bool { return table[i].usage > table[j].usage })
	return table
}

// collectLocalsCalledFrom gathers every non-global candidate transitively
// reachable from the given global table entries.
func collectLocalsCalledFrom(gsubrs []*candidateSubr) map[*candidateSubr]bool {
	locals := map[*candidateSubr]bool{}
	var collect func(s *candidateSubr)
	collect = func(s *candidateSubr) {
		for _, it := range s.encoding {
			if !it.subr.global && !locals[it.subr] {
				locals[it.subr] = true
				collect(it.subr)
			}
		}
	}
	for _, s := range gsubrs {
		collect(s)
	}
	return locals
}

// calcNesting computes the maximum call depth of every table entry, walking
// through flattened candidates as inlined bodies rather than calls.
func calcNesting(table []*candidateSubr) {
	var increment func(s *candidateSubr, depth int)
	increment = func(s *candidateSubr, depth int) {
		if s.maxCallDepth < depth {
			s.maxCallDepth = depth
		}
		callees := make([]*candidateSubr, 0, len(s.encoding))
		for _, it := range s.encoding {
			callees = append(callees, it.subr)
		}
		for len(callees) > 0 {
			next := callees[len(callees)-1]
			callees = callees[:len(callees)-1]
			if next.flatten {
				for _, it := range next.encoding {
					callees = append(callees, it.subr)
				}
			} else if next.maxCallDepth < depth+1 {
				increment(next, depth+1)
			}
		}
	}
	for _, s := range table {
		if s.maxCallDepth == 0 {
			increment(s, 1)
		}
	}
}

// rotateBiasZones reorders a usage-sorted table so that the entries that won
// the cheapest operand encodings sit at the positions the bias maps to them:
// single-byte operands reach positions 0..215 only after the bias shift.
func rotateBiasZones(table []*candidateSubr, high bool) []*candidateSubr {
	seg := func(a, b int) []*candidateSubr {
		if a > len(table) {
			a = len(table)
		}
		if b > len(table) {
			b = len(table)
		}
		return table[a:b]
	}
	out := make([]*candidateSubr, 0, len(table))
	if !high {
		out = append(out, seg(216, 1240)...)
		out = append(out, seg(0, 216)...)
		out = append(out, seg(1240, len(table))...)
	} else {
		out = append(out, seg(2264, 33901)...)
		out = append(out, seg(216, 1240)...)
		out = append(out, seg(0, 216)...)
		out = append(out, seg(1240, 2264)...)
		out = append(out, seg(33901, len(table))...)
	}
	return out
}
