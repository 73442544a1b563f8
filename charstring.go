package subrize

import (
	"fmt"
	"math"

	"github.com/tdewolff/parse/v2"
)

var t2Operators = map[int32]string{
	1:  "hstem",
	3:  "vstem",
	4:  "vmoveto",
	5:  "rlineto",
	6:  "hlineto",
	7:  "vlineto",
	8:  "rrcurveto",
	10: "callsubr",
	11: "return",
	14: "endchar",
	18: "hstemhm",
	19: "hintmask",
	20: "cntrmask",
	21: "rmoveto",
	22: "hmoveto",
	23: "vstemhm",
	24: "rcurveline",
	25: "rlinecurve",
	26: "vvcurveto",
	27: "hhcurveto",
	29: "callgsubr",
	30: "vhcurveto",
	31: "hvcurveto",
}

var t2EscOperators = map[int32]string{
	3:  "and",
	4:  "or",
	5:  "not",
	9:  "abs",
	10: "add",
	11: "sub",
	12: "div",
	14: "neg",
	15: "eq",
	18: "drop",
	20: "put",
	21: "get",
	22: "ifelse",
	23: "random",
	24: "mul",
	26: "sqrt",
	27: "dup",
	28: "exch",
	29: "index",
	30: "roll",
	34: "hflex",
	35: "flex",
	36: "hflex1",
	37: "flex1",
}

var t2OperatorNums = map[string]int32{}
var t2EscOperatorNums = map[string]int32{}

func init() {
	for num, name := range t2Operators {
		t2OperatorNums[name] = num
	}
	for num, name := range t2EscOperators {
		t2EscOperatorNums[name] = num
	}
}

// ParseCharString decodes raw Type 2 charstring bytecode into a token
// program. Hint masks come out as an operator token followed by a mask-data
// token; the mask width is derived from the stem hints declared before it.
func ParseCharString(b []byte) ([]Token, error) {
	var program []Token
	hints := 0
	operands := 0

	r := parse.NewBinaryReaderBytes(b)
	for 0 < r.Len() {
		b0 := int32(r.ReadUint8())
		if 32 <= b0 || b0 == 28 {
			if b0 == 28 {
				program = append(program, Integer(int32(r.ReadInt16())))
			} else if b0 <= 246 {
				program = append(program, Integer(b0-139))
			} else if b0 <= 250 {
				b1 := int32(r.ReadUint8())
				program = append(program, Integer((b0-247)*256+b1+108))
			} else if b0 <= 254 {
				b1 := int32(r.ReadUint8())
				program = append(program, Integer(-(b0-251)*256-b1-108))
			} else {
				// 16.16 fixed-point number
				program = append(program, Real(float64(r.ReadInt32())/65536.0))
			}
			operands++
			continue
		}

		var name string
		if b0 == 12 {
			b1 := int32(r.ReadUint8())
			var ok bool
			if name, ok = t2EscOperators[b1]; !ok {
				return nil, fmt.Errorf("subrize: unknown charstring operator 12 %d", b1)
			}
		} else {
			var ok bool
			if name, ok = t2Operators[b0]; !ok {
				return nil, fmt.Errorf("subrize: unknown charstring operator %d", b0)
			}
		}

		switch name {
		case "hstem", "vstem", "hstemhm", "vstemhm":
			hints += operands / 2
		case "hintmask", "cntrmask":
			if 0 < operands {
				// implicit vstem
				hints += operands / 2
			}
			n := int64((hints + 7) / 8)
			if r.Len() < n {
				return nil, fmt.Errorf("subrize: charstring truncated inside %s data", name)
			}
			program = append(program, Operator(name), MaskData(r.ReadBytes(n)))
			operands = 0
			continue
		}
		program = append(program, Operator(name))
		operands = 0
	}
	return program, nil
}

// CompileCharString encodes a token program back into Type 2 bytecode,
// choosing the shortest operand encoding for every number.
func CompileCharString(program []Token) ([]byte, error) {
	w := parse.NewBinaryWriter([]byte{})
	for _, t := range program {
		switch t.Kind {
		case TokenInteger:
			v := t.Num
			if -107 <= v && v <= 107 {
				w.WriteUint8(uint8(v + 139))
			} else if 108 <= v && v <= 1131 {
				v -= 108
				w.WriteUint8(uint8(247 + v>>8))
				w.WriteUint8(uint8(v & 0xff))
			} else if -1131 <= v && v <= -108 {
				v = -v - 108
				w.WriteUint8(uint8(251 + v>>8))
				w.WriteUint8(uint8(v & 0xff))
			} else if -32768 <= v && v <= 32767 {
				w.WriteUint8(28)
				w.WriteUint16(uint16(v))
			} else {
				// neither the two-byte form nor 16.16 fixed-point can hold it
				return nil, fmt.Errorf("subrize: integer operand %d out of range", v)
			}
		case TokenReal:
			w.WriteUint8(255)
			w.WriteUint32(uint32(int32(math.Round(t.Flt * 65536.0))))
		case TokenOperator:
			if num, ok := t2OperatorNums[t.Op]; ok {
				w.WriteUint8(uint8(num))
			} else if num, ok := t2EscOperatorNums[t.Op]; ok {
				w.WriteUint8(12)
				w.WriteUint8(uint8(num))
			} else {
				return nil, fmt.Errorf("subrize: unknown operator %s", t.Op)
			}
		case TokenMask:
			w.WriteUint8(uint8(t2OperatorNums[t.Op]))
			w.WriteBytes([]byte(t.Mask))
		case TokenMaskData:
			w.WriteBytes([]byte(t.Mask))
		}
	}
	return w.Bytes(), nil
}
