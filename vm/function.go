package vm

import "fmt"

// ---------------------------------------------------------------------------
// CompiledFunction: The compiler's output, the interpreter's input
// ---------------------------------------------------------------------------

// BindingKind distinguishes the three declaration forms.
type BindingKind int

const (
	BindVar   BindingKind = iota // mutable, initialized at creation
	BindLet                      // mutable, uninitialized until first store
	BindConst                    // immutable once initialized
)

var bindingKindNames = map[BindingKind]string{
	BindVar:   "var",
	BindLet:   "let",
	BindConst: "const",
}

func (k BindingKind) String() string {
	if name, ok := bindingKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("BindingKind(%d)", int(k))
}

// Declaration is a binding introduced by a function body. Slot order matches
// declaration order; parameters occupy the leading slots.
type Declaration struct {
	Name string
	Kind BindingKind
}

// CompiledFunction is the sole product of the bytecode generator: a
// fixed-width instruction stream, its constant pool, and the register count
// the stream was compiled against.
type CompiledFunction struct {
	Name           string
	ParameterCount int
	RegisterCount  int
	Bytecode       []byte
	Constants      []Value

	// Declarations are the bindings the interpreter materializes into this
	// function's environment at entry. For the top-level function they are
	// hoisted into the realm instead. Parameters come first.
	Declarations []Declaration

	// Inner holds nested function bodies, indexed by CREATE_CLOSURE.
	Inner []*CompiledFunction

	// TopLevel marks a whole-program function whose declarations target the
	// realm's global environment rather than a fresh function environment.
	TopLevel bool
}

// SlotOf returns the context-slot index of a declared name, or -1.
func (fn *CompiledFunction) SlotOf(name string) int {
	for i, d := range fn.Declarations {
		if d.Name == name {
			return i
		}
	}
	return -1
}

// ---------------------------------------------------------------------------
// CompiledFunctionBuilder
// ---------------------------------------------------------------------------

// CompiledFunctionBuilder assembles a CompiledFunction incrementally.
type CompiledFunctionBuilder struct {
	fn      *CompiledFunction
	builder *BytecodeBuilder
	// constIndex dedups pool entries by a comparable identity key.
	constIndex map[constKey]int
}

type constKey struct {
	kind Kind
	num  float64
	str  string
	b    bool
}

// NewCompiledFunctionBuilder creates a builder for a function with the given
// name and parameter count.
func NewCompiledFunctionBuilder(name string, paramCount int) *CompiledFunctionBuilder {
	return &CompiledFunctionBuilder{
		fn: &CompiledFunction{
			Name:           name,
			ParameterCount: paramCount,
		},
		builder:    NewBytecodeBuilder(),
		constIndex: make(map[constKey]int),
	}
}

// Bytecode exposes the underlying bytecode builder.
func (b *CompiledFunctionBuilder) Bytecode() *BytecodeBuilder {
	return b.builder
}

// AddConstant interns a literal into the constant pool, deduplicating
// primitives by value identity, and returns its pool index.
func (b *CompiledFunctionBuilder) AddConstant(v Value) int {
	switch v.Kind() {
	case KindUndefined, KindNull, KindBoolean, KindNumber, KindString:
		key := constKey{kind: v.Kind()}
		switch v.Kind() {
		case KindBoolean:
			key.b = v.Bool()
		case KindNumber:
			key.num = v.Number()
		case KindString:
			key.str = v.Str()
		}
		if idx, ok := b.constIndex[key]; ok {
			return idx
		}
		idx := len(b.fn.Constants)
		b.fn.Constants = append(b.fn.Constants, v)
		b.constIndex[key] = idx
		return idx
	default:
		// Non-primitive constants are never merged.
		idx := len(b.fn.Constants)
		b.fn.Constants = append(b.fn.Constants, v)
		return idx
	}
}

// AddStringConstant interns a string literal and returns its pool index.
func (b *CompiledFunctionBuilder) AddStringConstant(s string) int {
	return b.AddConstant(FromString(s))
}

// Declare appends a binding declaration and returns its slot index.
func (b *CompiledFunctionBuilder) Declare(name string, kind BindingKind) int {
	b.fn.Declarations = append(b.fn.Declarations, Declaration{Name: name, Kind: kind})
	return len(b.fn.Declarations) - 1
}

// AddInner appends a nested function body, returning its closure index.
func (b *CompiledFunctionBuilder) AddInner(fn *CompiledFunction) int {
	b.fn.Inner = append(b.fn.Inner, fn)
	return len(b.fn.Inner) - 1
}

// SetRegisterCount records how many registers the bytecode uses.
func (b *CompiledFunctionBuilder) SetRegisterCount(n int) {
	b.fn.RegisterCount = n
}

// SetTopLevel marks the function as a whole-program body.
func (b *CompiledFunctionBuilder) SetTopLevel(topLevel bool) {
	b.fn.TopLevel = topLevel
}

// Build finalizes and returns the compiled function.
func (b *CompiledFunctionBuilder) Build() *CompiledFunction {
	b.fn.Bytecode = b.builder.Bytes()
	return b.fn
}
