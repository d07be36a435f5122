package vm

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// Snapshot: CBOR form of the compiled-function contract
// ---------------------------------------------------------------------------
//
// The engine persists nothing itself; embedders that cache or ship compiled
// functions get a deterministic byte form here and own the storage.

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

type wireConstant struct {
	Kind uint8   `cbor:"k"`
	Num  float64 `cbor:"n,omitempty"`
	Str  string  `cbor:"s,omitempty"`
	Bool bool    `cbor:"b,omitempty"`
}

type wireDeclaration struct {
	Name string `cbor:"n"`
	Kind int    `cbor:"k"`
}

type wireFunction struct {
	Name           string            `cbor:"name"`
	ParameterCount int               `cbor:"params"`
	RegisterCount  int               `cbor:"regs"`
	Bytecode       []byte            `cbor:"code"`
	Constants      []wireConstant    `cbor:"consts"`
	Declarations   []wireDeclaration `cbor:"decls"`
	Inner          []*wireFunction   `cbor:"inner,omitempty"`
	TopLevel       bool              `cbor:"top,omitempty"`
}

func toWire(fn *CompiledFunction) (*wireFunction, error) {
	w := &wireFunction{
		Name:           fn.Name,
		ParameterCount: fn.ParameterCount,
		RegisterCount:  fn.RegisterCount,
		Bytecode:       fn.Bytecode,
		TopLevel:       fn.TopLevel,
	}
	for _, c := range fn.Constants {
		wc := wireConstant{Kind: uint8(c.Kind())}
		switch c.Kind() {
		case KindUndefined, KindNull:
		case KindBoolean:
			wc.Bool = c.Bool()
		case KindNumber:
			wc.Num = c.Number()
		case KindString:
			wc.Str = c.Str()
		default:
			return nil, fmt.Errorf("vm: constant kind %s is not serializable", c.Kind())
		}
		w.Constants = append(w.Constants, wc)
	}
	for _, d := range fn.Declarations {
		w.Declarations = append(w.Declarations, wireDeclaration{Name: d.Name, Kind: int(d.Kind)})
	}
	for _, inner := range fn.Inner {
		wi, err := toWire(inner)
		if err != nil {
			return nil, err
		}
		w.Inner = append(w.Inner, wi)
	}
	return w, nil
}

func fromWire(w *wireFunction) *CompiledFunction {
	fn := &CompiledFunction{
		Name:           w.Name,
		ParameterCount: w.ParameterCount,
		RegisterCount:  w.RegisterCount,
		Bytecode:       w.Bytecode,
		TopLevel:       w.TopLevel,
	}
	for _, wc := range w.Constants {
		switch Kind(wc.Kind) {
		case KindUndefined:
			fn.Constants = append(fn.Constants, Undefined)
		case KindNull:
			fn.Constants = append(fn.Constants, Null)
		case KindBoolean:
			fn.Constants = append(fn.Constants, FromBool(wc.Bool))
		case KindNumber:
			fn.Constants = append(fn.Constants, FromNumber(wc.Num))
		case KindString:
			fn.Constants = append(fn.Constants, FromString(wc.Str))
		}
	}
	for _, d := range w.Declarations {
		fn.Declarations = append(fn.Declarations, Declaration{Name: d.Name, Kind: BindingKind(d.Kind)})
	}
	for _, wi := range w.Inner {
		fn.Inner = append(fn.Inner, fromWire(wi))
	}
	return fn
}

// MarshalFunction serializes a compiled function to canonical CBOR bytes.
func MarshalFunction(fn *CompiledFunction) ([]byte, error) {
	w, err := toWire(fn)
	if err != nil {
		return nil, err
	}
	return cborEncMode.Marshal(w)
}

// UnmarshalFunction deserializes a compiled function from CBOR bytes.
func UnmarshalFunction(data []byte) (*CompiledFunction, error) {
	var w wireFunction
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("vm: unmarshal compiled function: %w", err)
	}
	return fromWire(&w), nil
}
