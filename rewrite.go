package subrize

import "fmt"

// calcBias returns the call-operand bias for a subroutine table of the given
// size, keeping early positions encodable in a single byte.
func calcBias(nSubrs int) int {
	if nSubrs < 1240 {
		return 107
	} else if nSubrs < 33900 {
		return 1131
	}
	return 32768
}

// updateProgram applies an encoding to a token program: every referenced span
// becomes either the callee's inlined body (flattened candidates) or a
// bias-adjusted call instruction. fd is the partition the program belongs to,
// or -1 when partition-neutral (global table entries and flattened bodies).
func (c *compressor) updateProgram(program []Token, encoding []encItem, fd int) []Token {
	offset := 0
	for _, it := range encoding {
		start := it.start - offset
		end := it.start + it.subr.length - offset
		if it.subr.flatten {
			program = splice(program, start, end, it.subr.program)
			offset += it.subr.length - len(it.subr.program)
		} else {
			if it.subr.position < 0 {
				panic("subrize: candidate without table position")
			}
			var op string
			var bias int
			if it.subr.global {
				op, bias = "callgsubr", c.gbias
			} else {
				if len(it.subr.fdidx) != 1 || fd >= 0 && it.subr.fdidx[0] != fd {
					panic(fmt.Sprintf("subrize: local subroutine for FD %v spliced into FD %d", it.subr.fdidx, fd))
				}
				op, bias = "callsubr", c.lbias[it.subr.fdidx[0]]
			}
			call := []Token{Integer(int32(it.subr.position - bias)), Operator(op)}
			program = splice(program, start, end, call)
			offset += it.subr.length - 2
		}
	}
	return program
}

func splice(program []Token, start, end int, repl []Token) []Token {
	out := make([]Token, 0, len(program)-(end-start)+len(repl))
	out = append(out, program[:start]...)
	out = append(out, repl...)
	out = append(out, program[end:]...)
	return out
}

// materialize assembles the final result: the ordered subroutine tables and
// every glyph program rewritten with its final encoding, hint masks restored
// to their two-token form.
func (c *compressor) materialize(glyphEncs [][]encItem) *Result {
	res := &Result{
		GlobalSubrs: make([][]Token, len(c.gsubrs)),
		LocalSubrs:  make([][][]Token, len(c.lsubrs)),
		Glyphs:      make(map[string][]Token, len(c.cs.glyphNames)),
	}
	for i, s := range c.gsubrs {
		res.GlobalSubrs[i] = s.program
	}
	for fd, table := range c.lsubrs {
		res.LocalSubrs[fd] = make([][]Token, len(table))
		for i, s := range table {
			res.LocalSubrs[fd][i] = s.program
		}
	}
	for gi, name := range c.cs.glyphNames {
		program := c.cs.tokens(c.cs.programs[gi])
		program = c.updateProgram(program, glyphEncs[gi], c.cs.fd[gi])
		res.Glyphs[name] = ExpandHintmask(program)
	}
	return res
}
