package subrize

import (
	"testing"

	"github.com/tdewolff/test"
)

func TestTokenCost(t *testing.T) {
	costs := []struct {
		token Token
		cost  int
	}{
		{Integer(0), 1},
		{Integer(107), 1},
		{Integer(-107), 1},
		{Integer(108), 2},
		{Integer(1131), 2},
		{Integer(-108), 2},
		{Integer(-1131), 2},
		{Integer(1132), 3},
		{Integer(-1132), 3},
		{Integer(32767), 3},
		{Real(0.5), 5},
		{Operator("rmoveto"), 1},
		{Operator("endchar"), 1},
		{Operator("flex"), 2},
		{Operator("hflex1"), 2},
		{fusedMask("hintmask", "\x80\x01"), 3},
		{fusedMask("cntrmask", "\xc0"), 2},
		{MaskData([]byte{0xf0}), 1},
	}
	for _, tt := range costs {
		t.Run(tt.token.String(), func(t *testing.T) {
			test.T(t, TokenCost(tt.token), tt.cost)
		})
	}
}

func TestCollapseHintmask(t *testing.T) {
	program := []Token{
		Integer(1), Integer(2), Operator("hstem"),
		Operator("hintmask"), MaskData([]byte{0xc0}),
		Integer(3), Integer(4), Operator("rmoveto"),
		Operator("cntrmask"), MaskData([]byte{0x80, 0x01}),
	}
	fused := CollapseHintmask(program)
	test.T(t, len(fused), len(program)-2)
	test.T(t, fused[3], fusedMask("hintmask", "\xc0"))
	test.T(t, fused[7], fusedMask("cntrmask", "\x80\x01"))
	test.T(t, ExpandHintmask(fused), program)
}

func TestCollapseHintmaskWithoutData(t *testing.T) {
	// a mask operator not followed by mask data is left alone, never fused
	program := []Token{Operator("hintmask"), Integer(5), Operator("rmoveto")}
	test.T(t, CollapseHintmask(program), program)

	trailing := []Token{Integer(1), Operator("cntrmask")}
	test.T(t, CollapseHintmask(trailing), trailing)
}

func TestCharstoreSymbols(t *testing.T) {
	glyphs := map[string][]Token{
		"a": {Integer(1), Integer(2), Integer(3)},
		"b": {Integer(8), Integer(1), Integer(4)},
	}
	cs, err := newCharstore(glyphs, nil, 1)
	test.Error(t, err)

	test.T(t, cs.glyphNames, []string{"a", "b"})
	test.T(t, cs.programs, [][]uint32{{0, 1, 2}, {3, 0, 4}})
	test.T(t, cs.length, 6)

	// equal tokens map to the same symbol, and span keys compare by value
	test.T(t, cs.spanKey(0, 0, 1), cs.spanKey(1, 1, 2))
	test.T(t, cs.tokens(cs.programs[1]), glyphs["b"])
}

func TestCharstorePreconditions(t *testing.T) {
	_, err := newCharstore(map[string][]Token{
		"a": {Integer(1), Operator("callsubr")},
	}, nil, 1)
	test.That(t, err != nil, "callsubr must be rejected")

	_, err = newCharstore(map[string][]Token{
		"a": {Operator("endchar"), Integer(1)},
	}, nil, 1)
	test.That(t, err != nil, "endchar before end must be rejected")

	_, err = newCharstore(map[string][]Token{
		"a": {Integer(1), Operator("endchar")},
	}, func(string) int { return 3 }, 2)
	test.That(t, err != nil, "FD out of range must be rejected")
}
