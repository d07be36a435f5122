package vm

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Value: Tagged-union runtime value
// ---------------------------------------------------------------------------

// Kind identifies which variant of the value union is held.
type Kind uint8

const (
	KindUndefined Kind = iota
	KindNull
	KindBoolean
	KindNumber
	KindString
	KindBigInt
	KindSymbol
	KindObject
	KindFunction
)

var kindNames = map[Kind]string{
	KindUndefined: "undefined",
	KindNull:      "null",
	KindBoolean:   "boolean",
	KindNumber:    "number",
	KindString:    "string",
	KindBigInt:    "bigint",
	KindSymbol:    "symbol",
	KindObject:    "object",
	KindFunction:  "function",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Symbol is a unique, optionally described property key. Two symbols are the
// same key only if they are the same *Symbol.
type Symbol struct {
	Description string
}

// Value is a closed tagged union over the engine's runtime types. The object
// and function variants reference heap-resident records; everything else is
// held inline.
type Value struct {
	kind Kind
	b    bool
	num  float64
	str  string
	big  *big.Int
	sym  *Symbol
	obj  *Object
	fn   *Function
}

// Pre-built singleton values.
var (
	Undefined = Value{kind: KindUndefined}
	Null      = Value{kind: KindNull}
	True      = Value{kind: KindBoolean, b: true}
	False     = Value{kind: KindBoolean, b: false}
)

// FromBool creates a boolean value.
func FromBool(b bool) Value {
	if b {
		return True
	}
	return False
}

// FromNumber creates a number value.
func FromNumber(f float64) Value {
	return Value{kind: KindNumber, num: f}
}

// FromString creates a string value.
func FromString(s string) Value {
	return Value{kind: KindString, str: s}
}

// FromBigInt creates a bigint value.
func FromBigInt(n *big.Int) Value {
	return Value{kind: KindBigInt, big: n}
}

// FromSymbol creates a symbol value.
func FromSymbol(sym *Symbol) Value {
	return Value{kind: KindSymbol, sym: sym}
}

// FromObject creates an object value referencing obj.
func FromObject(obj *Object) Value {
	return Value{kind: KindObject, obj: obj}
}

// FromFunction creates a function value referencing fn.
func FromFunction(fn *Function) Value {
	return Value{kind: KindFunction, fn: fn}
}

// NewSymbol allocates a fresh, unique symbol.
func NewSymbol(description string) Value {
	return FromSymbol(&Symbol{Description: description})
}

// ---------------------------------------------------------------------------
// Type checking
// ---------------------------------------------------------------------------

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

func (v Value) IsUndefined() bool { return v.kind == KindUndefined }
func (v Value) IsNull() bool      { return v.kind == KindNull }
func (v Value) IsBoolean() bool   { return v.kind == KindBoolean }
func (v Value) IsNumber() bool    { return v.kind == KindNumber }
func (v Value) IsString() bool    { return v.kind == KindString }
func (v Value) IsBigInt() bool    { return v.kind == KindBigInt }
func (v Value) IsSymbol() bool    { return v.kind == KindSymbol }
func (v Value) IsObject() bool    { return v.kind == KindObject }
func (v Value) IsFunction() bool  { return v.kind == KindFunction }

// IsNullish returns true for undefined and null.
func (v Value) IsNullish() bool {
	return v.kind == KindUndefined || v.kind == KindNull
}

// Bool returns the boolean payload. Panics on other kinds.
func (v Value) Bool() bool {
	if v.kind != KindBoolean {
		panic("Value.Bool: not a boolean")
	}
	return v.b
}

// Number returns the number payload. Panics on other kinds.
func (v Value) Number() float64 {
	if v.kind != KindNumber {
		panic("Value.Number: not a number")
	}
	return v.num
}

// Str returns the string payload. Panics on other kinds.
func (v Value) Str() string {
	if v.kind != KindString {
		panic("Value.Str: not a string")
	}
	return v.str
}

// BigInt returns the bigint payload. Panics on other kinds.
func (v Value) BigInt() *big.Int {
	if v.kind != KindBigInt {
		panic("Value.BigInt: not a bigint")
	}
	return v.big
}

// Symbol returns the symbol payload. Panics on other kinds.
func (v Value) Symbol() *Symbol {
	if v.kind != KindSymbol {
		panic("Value.Symbol: not a symbol")
	}
	return v.sym
}

// Object returns the referenced object record, or nil if v is neither an
// object nor a function. Function values answer their underlying record.
func (v Value) Object() *Object {
	switch v.kind {
	case KindObject:
		return v.obj
	case KindFunction:
		return &v.fn.Object
	default:
		return nil
	}
}

// Function returns the referenced function record, or nil.
func (v Value) Function() *Function {
	if v.kind != KindFunction {
		return nil
	}
	return v.fn
}

// ---------------------------------------------------------------------------
// Coercions
// ---------------------------------------------------------------------------

// ToBoolean converts v to a boolean following the usual truthiness rules:
// undefined, null, false, 0, NaN, and "" are false; everything else is true.
func (v Value) ToBoolean() bool {
	switch v.kind {
	case KindUndefined, KindNull:
		return false
	case KindBoolean:
		return v.b
	case KindNumber:
		return v.num != 0 && !math.IsNaN(v.num)
	case KindString:
		return v.str != ""
	case KindBigInt:
		return v.big.Sign() != 0
	default:
		return true
	}
}

// ToNumber converts v to a number. Unconvertible values yield NaN.
func (v Value) ToNumber() float64 {
	switch v.kind {
	case KindUndefined:
		return math.NaN()
	case KindNull:
		return 0
	case KindBoolean:
		if v.b {
			return 1
		}
		return 0
	case KindNumber:
		return v.num
	case KindString:
		s := strings.TrimSpace(v.str)
		if s == "" {
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	case KindBigInt:
		f, _ := new(big.Float).SetInt(v.big).Float64()
		return f
	default:
		return math.NaN()
	}
}

// ToStringValue converts v to its string form.
func (v Value) ToStringValue() string {
	switch v.kind {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBoolean:
		if v.b {
			return "true"
		}
		return "false"
	case KindNumber:
		return formatNumber(v.num)
	case KindString:
		return v.str
	case KindBigInt:
		return v.big.String() + "n"
	case KindSymbol:
		return "Symbol(" + v.sym.Description + ")"
	case KindFunction:
		name := v.fn.Name
		if name == "" {
			name = "anonymous"
		}
		return "function " + name
	default:
		return "[object Object]"
	}
}

// formatNumber renders a float the way scripts expect: integral values have
// no fractional part, NaN and infinities spell out.
func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == math.Trunc(f) && math.Abs(f) < 1e21:
		return strconv.FormatFloat(f, 'f', -1, 64)
	default:
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
}

// String implements fmt.Stringer for diagnostics.
func (v Value) String() string {
	if v.kind == KindString {
		return strconv.Quote(v.str)
	}
	return v.ToStringValue()
}

// ---------------------------------------------------------------------------
// Equality
// ---------------------------------------------------------------------------

// StrictEquals reports whether a and b are identical under strict (same-tag)
// equality. NaN is never equal to itself; objects compare by reference.
func StrictEquals(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindUndefined, KindNull:
		return true
	case KindBoolean:
		return a.b == b.b
	case KindNumber:
		return a.num == b.num
	case KindString:
		return a.str == b.str
	case KindBigInt:
		return a.big.Cmp(b.big) == 0
	case KindSymbol:
		return a.sym == b.sym
	case KindObject:
		return a.obj == b.obj
	case KindFunction:
		return a.fn == b.fn
	default:
		return false
	}
}

// AbstractEquals reports loose equality: same-tag comparisons fall back to
// StrictEquals, null and undefined equal each other and nothing else, and
// remaining cross-tag comparisons coerce toward number.
func AbstractEquals(a, b Value) bool {
	if a.kind == b.kind {
		return StrictEquals(a, b)
	}
	if a.IsNullish() && b.IsNullish() {
		return true
	}
	if a.IsNullish() || b.IsNullish() {
		return false
	}
	if a.kind == KindSymbol || b.kind == KindSymbol {
		return false
	}
	return a.ToNumber() == b.ToNumber()
}
