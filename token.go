package subrize

import (
	"fmt"
	"sort"
)

// TokenKind discriminates the variants of a charstring token.
type TokenKind uint8

const (
	TokenOperator TokenKind = iota
	TokenInteger
	TokenReal
	TokenMaskData // raw mask bytes trailing a hintmask or cntrmask
	TokenMask     // hintmask or cntrmask fused with its mask data
)

// Token is one element of a Type 2 charstring program: an operator mnemonic,
// a numeric operand, or a hint-mask operator fused with its mask data. Tokens
// are comparable and can be used as map keys.
type Token struct {
	Kind TokenKind
	Op   string
	Num  int32
	Flt  float64
	Mask string
}

// Operator returns an operator token for the given mnemonic.
func Operator(name string) Token {
	return Token{Kind: TokenOperator, Op: name}
}

// Integer returns an integer operand token.
func Integer(v int32) Token {
	return Token{Kind: TokenInteger, Num: v}
}

// Real returns a real-number operand token.
func Real(v float64) Token {
	return Token{Kind: TokenReal, Flt: v}
}

// MaskData returns a token holding the raw mask bytes that follow a hintmask
// or cntrmask operator.
func MaskData(b []byte) Token {
	return Token{Kind: TokenMaskData, Mask: string(b)}
}

func fusedMask(op string, data string) Token {
	return Token{Kind: TokenMask, Op: op, Mask: data}
}

func (t Token) String() string {
	switch t.Kind {
	case TokenOperator:
		return t.Op
	case TokenInteger:
		return fmt.Sprintf("%d", t.Num)
	case TokenReal:
		return fmt.Sprintf("%g", t.Flt)
	case TokenMaskData:
		return fmt.Sprintf("mask[% x]", t.Mask)
	case TokenMask:
		return fmt.Sprintf("%s[% x]", t.Op, t.Mask)
	}
	return "?"
}

// operators that encode in a single byte, all others use the 12 x escape
var singleByteOps = map[string]bool{
	"hstem":      true,
	"vstem":      true,
	"vmoveto":    true,
	"rlineto":    true,
	"hlineto":    true,
	"vlineto":    true,
	"rrcurveto":  true,
	"callsubr":   true,
	"return":     true,
	"endchar":    true,
	"blend":      true,
	"hstemhm":    true,
	"hintmask":   true,
	"cntrmask":   true,
	"rmoveto":    true,
	"hmoveto":    true,
	"vstemhm":    true,
	"rcurveline": true,
	"rlinecurve": true,
	"vvcurveto":  true,
	"hhcurveto":  true,
	"callgsubr":  true,
	"vhcurveto":  true,
	"hvcurveto":  true,
}

// TokenCost returns the encoded size in bytes of a single token.
func TokenCost(t Token) int {
	switch t.Kind {
	case TokenOperator:
		if singleByteOps[t.Op] {
			return 1
		}
		return 2
	case TokenMask:
		return 1 + len(t.Mask)
	case TokenMaskData:
		return len(t.Mask)
	case TokenInteger:
		if -107 <= t.Num && t.Num <= 107 {
			return 1
		} else if 108 <= t.Num && t.Num <= 1131 || -1131 <= t.Num && t.Num <= -108 {
			return 2
		}
		return 3
	case TokenReal:
		return 5
	}
	panic("unknown token kind")
}

// CollapseHintmask fuses every hintmask/cntrmask operator with the mask-data
// token that follows it, so that no substring boundary can fall between them.
func CollapseHintmask(program []Token) []Token {
	out := make([]Token, 0, len(program))
	for i := 0; i < len(program); i++ {
		t := program[i]
		if t.Kind == TokenOperator && (t.Op == "hintmask" || t.Op == "cntrmask") &&
			i+1 < len(program) && program[i+1].Kind == TokenMaskData {
			out = append(out, fusedMask(t.Op, program[i+1].Mask))
			i++
			continue
		}
		out = append(out, t)
	}
	return out
}

// ExpandHintmask splits fused hint-mask tokens back into their original
// operator and mask-data pair.
func ExpandHintmask(program []Token) []Token {
	out := make([]Token, 0, len(program))
	for _, t := range program {
		if t.Kind == TokenMask {
			out = append(out, Operator(t.Op), Token{Kind: TokenMaskData, Mask: t.Mask})
			continue
		}
		out = append(out, t)
	}
	return out
}

// charstore holds every glyph program re-expressed over a dense integer
// alphabet, together with the reverse keymap and per-symbol byte costs. It is
// built once per compression run; all later stages read from it.
type charstore struct {
	glyphNames []string
	fd         []int // FD partition per glyph
	nFDs       int
	programs   [][]uint32
	packed     []string // programs[i] as big-endian 4-byte symbols, for O(1) span keys
	revKeymap  []Token
	costMap    []int
	length     int // total token count over all programs
}

func newCharstore(glyphs map[string][]Token, fdSelect func(string) int, nFDs int) (*charstore, error) {
	cs := &charstore{nFDs: nFDs}
	cs.glyphNames = make([]string, 0, len(glyphs))
	for name := range glyphs {
		cs.glyphNames = append(cs.glyphNames, name)
	}
	sort.Strings(cs.glyphNames)

	keymap := map[Token]uint32{}
	for _, name := range cs.glyphNames {
		fused := CollapseHintmask(glyphs[name])
		program := make([]uint32, 0, len(fused))
		for i, tok := range fused {
			if tok.Kind == TokenOperator {
				switch tok.Op {
				case "callsubr", "callgsubr", "return":
					return nil, fmt.Errorf("subrize: glyph %s contains %s: charstrings must be freshly decompiled", name, tok.Op)
				case "endchar":
					if i != len(fused)-1 {
						return nil, fmt.Errorf("subrize: glyph %s has endchar before end of program", name)
					}
				}
			}
			sym, ok := keymap[tok]
			if !ok {
				sym = uint32(len(cs.revKeymap))
				keymap[tok] = sym
				cs.revKeymap = append(cs.revKeymap, tok)
				cs.costMap = append(cs.costMap, TokenCost(tok))
			}
			program = append(program, sym)
		}

		fdidx := 0
		if fdSelect != nil {
			fdidx = fdSelect(name)
			if fdidx < 0 || nFDs <= fdidx {
				return nil, fmt.Errorf("subrize: glyph %s has FD %d out of range [0,%d)", name, fdidx, nFDs)
			}
		}
		cs.fd = append(cs.fd, fdidx)
		cs.programs = append(cs.programs, program)
		cs.packed = append(cs.packed, packSymbols(program))
		cs.length += len(program)
	}
	return cs, nil
}

// packSymbols encodes symbols as big-endian 4-byte strings so that byte-wise
// string comparison equals symbol-wise comparison and any token span can serve
// as a map key without copying.
func packSymbols(syms []uint32) string {
	b := make([]byte, 4*len(syms))
	for i, s := range syms {
		b[4*i] = byte(s >> 24)
		b[4*i+1] = byte(s >> 16)
		b[4*i+2] = byte(s >> 8)
		b[4*i+3] = byte(s)
	}
	return string(b)
}

// spanKey returns the packed form of programs[glyph][start:end].
func (cs *charstore) spanKey(glyph, start, end int) string {
	return cs.packed[glyph][4*start : 4*end]
}

// tokens maps a symbol span back to its original tokens.
func (cs *charstore) tokens(syms []uint32) []Token {
	program := make([]Token, len(syms))
	for i, s := range syms {
		program[i] = cs.revKeymap[s]
	}
	return program
}
