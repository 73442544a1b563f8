package subrize

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/npillmayer/schuko/tracing/gotestingadapter"
	"github.com/stretchr/testify/suite"
)

// --- Test Suite Preparation ------------------------------------------------

type CompressTestEnviron struct {
	suite.Suite
	glyphs map[string][]Token
}

// listen for 'go test' command --> run test methods
func TestCompression(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "subrize")
	defer teardown()
	suite.Run(t, new(CompressTestEnviron))
}

// run once, before test suite methods
func (env *CompressTestEnviron) SetupSuite() {
	// eight glyphs sharing two runs, one of them in both groups
	shared1 := seqTokens(0, 14)
	shared2 := seqTokens(30, 8)
	env.glyphs = map[string][]Token{}
	for i := 0; i < 4; i++ {
		env.glyphs[fmt.Sprintf("g%d", i)] = cat(shared1, ints(int32(100+i)), endTokens())
	}
	for i := 4; i < 7; i++ {
		env.glyphs[fmt.Sprintf("g%d", i)] = cat(shared2, ints(int32(100+i)), endTokens())
	}
	env.glyphs["g7"] = cat(shared1, shared2, ints(107), endTokens())
}

func cat(parts ...[]Token) []Token {
	program := []Token{}
	for _, part := range parts {
		program = append(program, part...)
	}
	return program
}

func seqTokens(from int32, n int) []Token {
	program := make([]Token, n)
	for i := range program {
		program[i] = Integer(from + int32(i))
	}
	return program
}

func endTokens() []Token {
	return []Token{Operator("endchar")}
}

// expand resolves every subroutine call in a program back to its body,
// checking call depth, table bounds, and operand placement on the way.
func (env *CompressTestEnviron) expand(program []Token, res *Result, fd, depth int) []Token {
	env.LessOrEqual(depth, NestLimit)
	out := []Token{}
	for _, tok := range program {
		if tok.Kind == TokenOperator && (tok.Op == "callsubr" || tok.Op == "callgsubr") {
			env.Require().NotEmpty(out)
			operand := out[len(out)-1]
			env.Require().Equal(TokenInteger, operand.Kind)
			out = out[:len(out)-1]
			table := res.GlobalSubrs
			if tok.Op == "callsubr" {
				env.Require().GreaterOrEqual(fd, 0)
				table = res.LocalSubrs[fd]
			}
			idx := int(operand.Num) + calcBias(len(table))
			env.Require().True(0 <= idx && idx < len(table))
			body := env.expand(table[idx], res, fd, depth+1)
			if last := body[len(body)-1]; last.Kind == TokenOperator && last.Op == "return" {
				body = body[:len(body)-1]
			}
			out = append(out, body...)
			continue
		}
		out = append(out, tok)
	}
	return out
}

// --- Tests -----------------------------------------------------------------

func (env *CompressTestEnviron) TestRoundTrip() {
	res, err := Subroutinize(env.glyphs, nil, 1, &Options{Workers: 1})
	env.Require().NoError(err)

	env.True(0 < len(res.GlobalSubrs)+len(res.LocalSubrs[0]), "shared runs should be placed")
	for name, program := range env.glyphs {
		env.Equal(program, env.expand(res.Glyphs[name], res, 0, 0), "glyph %s", name)
	}
}

func (env *CompressTestEnviron) TestDeterminism() {
	res1, err := Subroutinize(env.glyphs, nil, 1, &Options{Workers: 1})
	env.Require().NoError(err)
	res2, err := Subroutinize(env.glyphs, nil, 1, &Options{Workers: 0})
	env.Require().NoError(err)
	env.Equal(res1, res2)
}

func (env *CompressTestEnviron) TestTableCapacity() {
	res, err := Subroutinize(env.glyphs, nil, 1, &Options{MaxSubrs: 1, Workers: 1})
	env.Require().NoError(err)

	env.LessOrEqual(len(res.GlobalSubrs), 1)
	for _, table := range res.LocalSubrs {
		env.LessOrEqual(len(table), 1)
	}
	for name, program := range env.glyphs {
		env.Equal(program, env.expand(res.Glyphs[name], res, 0, 0), "glyph %s", name)
	}
}

func (env *CompressTestEnviron) TestDiagnosticEncoding() {
	glyphs := map[string][]Token{
		"a": ints(0, 1, 20, 21, 22, 2),
		"b": ints(7, 0, 1, 20, 21, 22, 2),
		"c": ints(0, 1, 20, 21, 22, 9, 3, 17),
	}
	c, err := newCompressor(glyphs, nil, 1, &Options{TestMode: true, Workers: 1})
	env.Require().NoError(err)

	// the shared run 0 1 20 21 22 must win a spot in every glyph's encoding
	encs := c.iterate()
	run := ints(0, 1, 20, 21, 22)
	for gi, name := range c.cs.glyphNames {
		found := false
		for _, it := range encs[gi] {
			if it.subr.length == 5 && reflect.DeepEqual(c.cs.tokens(it.subr.value()), run) {
				found = true
			}
		}
		env.True(found, "glyph %s does not reference the shared run", name)
	}
}

func (env *CompressTestEnviron) TestCIDPartitions() {
	seqG := seqTokens(0, 14)
	seqL := seqTokens(20, 16)
	glyphs := map[string][]Token{
		"a0": cat(seqG, seqL, ints(100), endTokens()),
		"a1": cat(seqG, seqL, ints(101), endTokens()),
		"b0": cat(seqG, ints(102), endTokens()),
		"b1": cat(seqG, ints(103), endTokens()),
	}
	fds := map[string]int{"a0": 0, "a1": 0, "b0": 1, "b1": 1}

	res, err := Subroutinize(glyphs, func(name string) int { return fds[name] }, 2, &Options{Workers: 1})
	env.Require().NoError(err)
	env.Require().Equal(2, len(res.LocalSubrs))

	// the global table must never call into a local table
	for _, body := range res.GlobalSubrs {
		for _, tok := range body {
			env.False(tok.Kind == TokenOperator && tok.Op == "callsubr")
		}
	}
	for name, program := range glyphs {
		env.Equal(program, env.expand(res.Glyphs[name], res, fds[name], 0), "glyph %s", name)
	}
}

func (env *CompressTestEnviron) TestHintedPrograms() {
	head := cat(ints(10, 20), []Token{Operator("hstem")},
		ints(30, 40), []Token{Operator("vstem"), Operator("hintmask"), MaskData([]byte{0xc0})},
		seqTokens(1, 6))
	glyphs := map[string][]Token{
		"h0": cat(head, ints(90), endTokens()),
		"h1": cat(head, ints(91), endTokens()),
	}

	res, err := Subroutinize(glyphs, nil, 1, &Options{Workers: 1})
	env.Require().NoError(err)
	for name, program := range glyphs {
		env.Equal(program, env.expand(res.Glyphs[name], res, 0, 0), "glyph %s", name)
	}
}

func (env *CompressTestEnviron) TestEmptyInput() {
	res, err := Subroutinize(map[string][]Token{}, nil, 1, nil)
	env.Require().NoError(err)
	env.Empty(res.Glyphs)
	env.Empty(res.GlobalSubrs)
	env.Equal(1, len(res.LocalSubrs))
}
