package subrize

// iterate runs the fixed number of market rounds and returns the final
// encoding chosen for every glyph program. Each round freezes a price table,
// re-optimizes every candidate body and every program against it in parallel,
// then sequentially recomputes usage counts and prunes unprofitable
// candidates.
func (c *compressor) iterate() [][]encItem {
	c.oracle = make(map[string]priceRef, len(c.cands))
	for idx, cand := range c.cands {
		cand.adjustedCost = float64(cand.bodyCost())
		cand.price = cand.adjustedCost
		cand.usage = cand.freq
		cand.listIdx = idx
		c.oracle[cand.key()] = priceRef{idx, cand.price}
	}

	var glyphEncs [][]encItem
	for round := 0; round < c.o.NRounds; round++ {
		// calibrate prices from amortized cost and last round's usage
		for idx, cand := range c.cands {
			margCost := cand.adjustedCost / (float64(cand.usage) + c.o.K)
			cand.price = margCost*c.o.Alpha + cand.price*(1-c.o.Alpha)
			c.oracle[cand.key()] = priceRef{idx, cand.price}
		}

		// re-segment every candidate's own body, excluding itself
		type optResult struct {
			enc  []rawEncItem
			cost float64
		}
		candResults := make([]optResult, len(c.cands))
		c.exec.run(len(c.cands), c.chunkSize(len(c.cands)), func(i int) {
			cand := c.cands[i]
			enc, cost := optimizeCharstring(cand.value(), cand.key(), c.cs.costMap, c.oracle, cand.listIdx)
			candResults[i] = optResult{enc, cost}
		})
		for i, cand := range c.cands {
			cand.encoding = c.resolve(candResults[i].enc)
			cand.adjustedCost = candResults[i].cost
		}

		// re-segment every glyph program
		progResults := make([][]rawEncItem, len(c.cs.programs))
		c.exec.run(len(c.cs.programs), c.chunkSize(len(c.cs.programs)), func(i int) {
			enc, _ := optimizeCharstring(c.cs.programs[i], c.cs.packed[i], c.cs.costMap, c.oracle, -1)
			progResults[i] = enc
		})
		glyphEncs = make([][]encItem, len(progResults))
		for i, enc := range progResults {
			glyphEncs[i] = c.resolve(enc)
		}

		// recompute usage from scratch: one count per reference in any
		// current encoding, one level of fan-out only
		for _, cand := range c.cands {
			cand.usage = 0
		}
		for _, cand := range c.cands {
			for _, it := range cand.encoding {
				it.subr.usage++
			}
		}
		for _, enc := range glyphEncs {
			for _, it := range enc {
				it.subr.usage++
			}
		}

		if len(c.cands) > 0 {
			total, max, used := 0, 0, 0
			for _, cand := range c.cands {
				total += cand.usage
				if cand.usage > max {
					max = cand.usage
				}
				if cand.usage > 0 {
					used++
				}
			}
			tracer().Debugf("round %d done: avg usage %.2f, max %d, used %d/%d",
				round+1, float64(total)/float64(len(c.cands)), max, used, len(c.cands))
		}

		if round <= c.o.NRounds-2 && !c.o.TestMode {
			c.prune()
		}
	}
	return glyphEncs
}

// resolve maps raw pool indexes from the DP back to candidate pointers.
func (c *compressor) resolve(raw []rawEncItem) []encItem {
	enc := make([]encItem, len(raw))
	for i, it := range raw {
		enc[i] = encItem{it.start, c.cands[it.subr]}
	}
	return enc
}

// prune drops candidates whose savings under current usage are non-positive.
// A dropped candidate first credits its usage to its own callees so that its
// popularity does not silently vanish from their statistics.
func (c *compressor) prune() {
	keep := make([]bool, len(c.cands))
	for i, cand := range c.cands {
		keep[i] = cand.saving(true, false, c.o.CallCost, c.o.SubrOverhead) > 0
	}
	live := make([]*candidateSubr, 0, len(c.cands))
	dropped := 0
	for i, cand := range c.cands {
		if keep[i] {
			live = append(live, cand)
			continue
		}
		for _, it := range cand.encoding {
			it.subr.usage += cand.usage - 1
		}
		delete(c.oracle, cand.key())
		dropped++
	}
	c.cands = live
	for idx, cand := range c.cands {
		cand.listIdx = idx
		c.oracle[cand.key()] = priceRef{idx, cand.price}
	}
	tracer().Debugf("%d substrings with non-positive savings removed", dropped)
}
