package vm

import (
	"math"
	"testing"
)

// ---------------------------------------------------------------------------
// Dispatch loop tests, built against hand-assembled bytecode
// ---------------------------------------------------------------------------

func testInterp(t *testing.T) *Interpreter {
	t.Helper()
	heap := testHeap()
	realm, err := NewRealm(heap)
	if err != nil {
		t.Fatal(err)
	}
	return NewInterpreter(heap, realm, nil)
}

func TestLoadConstantRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		value Value
	}{
		{"number", FromNumber(42)},
		{"string", FromString("hello")},
		{"true", True},
		{"false", False},
		{"null", Null},
	}
	for _, tt := range tests {
		interp := testInterp(t)
		b := NewCompiledFunctionBuilder("test", 0)
		idx := b.AddConstant(tt.value)
		b.Bytecode().EmitByte(OpLdaConstant, byte(idx))
		b.Bytecode().Emit(OpReturn)

		result, err := interp.ExecuteFunction(b.Build())
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if !StrictEquals(result, tt.value) {
			t.Errorf("%s: result = %v, want %v", tt.name, result, tt.value)
		}
	}
}

func TestDedicatedLoadOpcodes(t *testing.T) {
	tests := []struct {
		op   Opcode
		want Value
	}{
		{OpLdaUndefined, Undefined},
		{OpLdaNull, Null},
		{OpLdaTrue, True},
		{OpLdaFalse, False},
		{OpLdaZero, FromNumber(0)},
	}
	for _, tt := range tests {
		interp := testInterp(t)
		b := NewCompiledFunctionBuilder("test", 0)
		b.Bytecode().Emit(tt.op)
		b.Bytecode().Emit(OpReturn)

		result, err := interp.ExecuteFunction(b.Build())
		if err != nil {
			t.Fatal(err)
		}
		if !StrictEquals(result, tt.want) {
			t.Errorf("%s: result = %v, want %v", tt.op, result, tt.want)
		}
	}
}

// binaryOp assembles "left OP right" with the left operand spilled to r0.
func binaryOp(op Opcode, left, right Value) *CompiledFunction {
	b := NewCompiledFunctionBuilder("test", 0)
	bc := b.Bytecode()
	bc.EmitByte(OpLdaConstant, byte(b.AddConstant(left)))
	bc.EmitByte(OpStar, 0)
	bc.EmitByte(OpLdaConstant, byte(b.AddConstant(right)))
	bc.EmitByte(op, 0)
	bc.Emit(OpReturn)
	b.SetRegisterCount(1)
	return b.Build()
}

func TestArithmeticOpcodes(t *testing.T) {
	tests := []struct {
		name        string
		op          Opcode
		left, right float64
		want        float64
	}{
		{"add", OpAdd, 2, 3, 5},
		{"sub", OpSub, 2, 3, -1},
		{"mul", OpMul, 4, 2.5, 10},
		{"div", OpDiv, 7, 2, 3.5},
		{"div by zero", OpDiv, 1, 0, math.Inf(1)},
		{"mod", OpMod, 7, 3, 1},
		{"mod negative", OpMod, -7, 3, -1},
	}
	for _, tt := range tests {
		interp := testInterp(t)
		result, err := interp.ExecuteFunction(binaryOp(tt.op, FromNumber(tt.left), FromNumber(tt.right)))
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if result.Number() != tt.want {
			t.Errorf("%s: %v %s %v = %v, want %v", tt.name, tt.left, tt.op, tt.right, result, tt.want)
		}
	}
}

func TestChainedArithmeticIsLeftAssociative(t *testing.T) {
	// One precedence tier: 5 + 3 * 2 evaluates as (5 + 3) * 2.
	interp := testInterp(t)
	b := NewCompiledFunctionBuilder("test", 0)
	bc := b.Bytecode()
	bc.EmitByte(OpLdaConstant, byte(b.AddConstant(FromNumber(5))))
	bc.EmitByte(OpStar, 0)
	bc.EmitByte(OpLdaConstant, byte(b.AddConstant(FromNumber(3))))
	bc.EmitByte(OpAdd, 0)
	bc.EmitByte(OpStar, 0)
	bc.EmitByte(OpLdaConstant, byte(b.AddConstant(FromNumber(2))))
	bc.EmitByte(OpMul, 0)
	bc.Emit(OpReturn)
	b.SetRegisterCount(1)

	result, err := interp.ExecuteFunction(b.Build())
	if err != nil {
		t.Fatal(err)
	}
	if result.Number() != 16 {
		t.Errorf("5 + 3 * 2 = %v, want 16", result)
	}
}

func TestAddConcatenatesStrings(t *testing.T) {
	interp := testInterp(t)
	result, err := interp.ExecuteFunction(binaryOp(OpAdd, FromString("answer: "), FromNumber(42)))
	if err != nil {
		t.Fatal(err)
	}
	if result.Str() != "answer: 42" {
		t.Errorf("result = %v, want %q", result, "answer: 42")
	}
}

func TestComparisonOpcodes(t *testing.T) {
	tests := []struct {
		name        string
		op          Opcode
		left, right Value
		want        bool
	}{
		{"lt", OpTestLt, FromNumber(1), FromNumber(2), true},
		{"lt equal", OpTestLt, FromNumber(2), FromNumber(2), false},
		{"le equal", OpTestLe, FromNumber(2), FromNumber(2), true},
		{"gt", OpTestGt, FromNumber(3), FromNumber(2), true},
		{"ge", OpTestGe, FromNumber(1), FromNumber(2), false},
		{"loose eq coerces", OpTestEq, FromString("5"), FromNumber(5), true},
		{"strict eq does not", OpTestEqStrict, FromString("5"), FromNumber(5), false},
		{"ne", OpTestNe, FromNumber(1), FromNumber(2), true},
	}
	for _, tt := range tests {
		interp := testInterp(t)
		result, err := interp.ExecuteFunction(binaryOp(tt.op, tt.left, tt.right))
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if result.Bool() != tt.want {
			t.Errorf("%s: result = %v, want %v", tt.name, result, tt.want)
		}
	}
}

func TestUnwrittenRegisterReadsUndefined(t *testing.T) {
	interp := testInterp(t)
	b := NewCompiledFunctionBuilder("test", 0)
	b.Bytecode().EmitByte(OpLdar, 7)
	b.Bytecode().Emit(OpReturn)

	result, err := interp.ExecuteFunction(b.Build())
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsUndefined() {
		t.Errorf("unwritten register read %v, want undefined", result)
	}
}

func TestFallOffEndReturnsUndefined(t *testing.T) {
	interp := testInterp(t)
	b := NewCompiledFunctionBuilder("test", 0)
	b.Bytecode().EmitByte(OpLdaConstant, byte(b.AddConstant(FromNumber(9))))

	result, err := interp.ExecuteFunction(b.Build())
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsUndefined() {
		t.Errorf("fall-off-end result = %v, want undefined", result)
	}
}

func TestUnknownOpcode(t *testing.T) {
	interp := testInterp(t)
	fn := &CompiledFunction{Name: "bad", Bytecode: []byte{0xEE}}

	_, err := interp.ExecuteFunction(fn)
	if !IsKind(err, ErrUnknownOpcode) {
		t.Errorf("err = %v, want unknown-opcode", err)
	}
}

func TestJumpIfFalseSkips(t *testing.T) {
	interp := testInterp(t)
	b := NewCompiledFunctionBuilder("test", 0)
	bc := b.Bytecode()
	bc.Emit(OpLdaFalse)
	skip := bc.NewLabel()
	bc.EmitJump(OpJumpIfFalse, skip)
	bc.EmitByte(OpLdaConstant, byte(b.AddConstant(FromString("taken"))))
	bc.Emit(OpReturn)
	if err := bc.Mark(skip); err != nil {
		t.Fatal(err)
	}
	bc.EmitByte(OpLdaConstant, byte(b.AddConstant(FromString("skipped"))))
	bc.Emit(OpReturn)

	result, err := interp.ExecuteFunction(b.Build())
	if err != nil {
		t.Fatal(err)
	}
	if result.Str() != "skipped" {
		t.Errorf("result = %v, want skipped", result)
	}
}

func TestLogicalNotAndToBoolean(t *testing.T) {
	interp := testInterp(t)
	b := NewCompiledFunctionBuilder("test", 0)
	bc := b.Bytecode()
	bc.EmitByte(OpLdaConstant, byte(b.AddConstant(FromString(""))))
	bc.Emit(OpLogicalNot)
	bc.Emit(OpReturn)

	result, err := interp.ExecuteFunction(b.Build())
	if err != nil {
		t.Fatal(err)
	}
	if result != True {
		t.Errorf("!\"\" = %v, want true", result)
	}
}

// ---------------------------------------------------------------------------
// Calls and closures
// ---------------------------------------------------------------------------

// addFunction builds fn(a, b) { return a + b } with parameters in context
// slots 0 and 1.
func addFunction() *CompiledFunction {
	b := NewCompiledFunctionBuilder("add", 2)
	b.Declare("a", BindVar)
	b.Declare("b", BindVar)
	bc := b.Bytecode()
	bc.EmitBytes(OpLdaContextSlot, 0, 0)
	bc.EmitByte(OpStar, 0)
	bc.EmitBytes(OpLdaContextSlot, 0, 1)
	bc.EmitByte(OpAdd, 0)
	bc.Emit(OpReturn)
	b.SetRegisterCount(1)
	return b.Build()
}

func TestCallFunctionPassesArguments(t *testing.T) {
	interp := testInterp(t)
	closure := NewClosure(addFunction(), nil)

	result, err := interp.CallFunction(closure, Undefined, []Value{FromNumber(2), FromNumber(40)})
	if err != nil {
		t.Fatal(err)
	}
	if result.Number() != 42 {
		t.Errorf("add(2, 40) = %v, want 42", result)
	}
}

func TestCallFunctionMissingArgumentsAreUndefined(t *testing.T) {
	interp := testInterp(t)
	closure := NewClosure(addFunction(), nil)

	result, err := interp.CallFunction(closure, Undefined, []Value{FromNumber(1)})
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsNaN(result.Number()) {
		t.Errorf("add(1) = %v, want NaN (1 + undefined)", result)
	}
}

func TestCallOpcodeConvention(t *testing.T) {
	// CALL: callee in r[base], this in r[base+1], args from r[base+2].
	interp := testInterp(t)
	closure := NewClosure(addFunction(), nil)

	b := NewCompiledFunctionBuilder("caller", 0)
	bc := b.Bytecode()
	calleeIdx := b.AddConstant(FromFunction(closure))
	bc.EmitByte(OpLdaConstant, byte(calleeIdx))
	bc.EmitByte(OpStar, 0)
	bc.Emit(OpLdaUndefined)
	bc.EmitByte(OpStar, 1)
	bc.EmitByte(OpLdaConstant, byte(b.AddConstant(FromNumber(30))))
	bc.EmitByte(OpStar, 2)
	bc.EmitByte(OpLdaConstant, byte(b.AddConstant(FromNumber(12))))
	bc.EmitByte(OpStar, 3)
	bc.EmitBytes(OpCall, 0, 2)
	bc.Emit(OpReturn)
	b.SetRegisterCount(4)

	result, err := interp.ExecuteFunction(b.Build())
	if err != nil {
		t.Fatal(err)
	}
	if result.Number() != 42 {
		t.Errorf("call result = %v, want 42", result)
	}
}

func TestCallNonFunctionIsTypeError(t *testing.T) {
	interp := testInterp(t)
	b := NewCompiledFunctionBuilder("caller", 0)
	bc := b.Bytecode()
	bc.EmitByte(OpLdaConstant, byte(b.AddConstant(FromNumber(7))))
	bc.EmitByte(OpStar, 0)
	bc.EmitBytes(OpCall, 0, 0)
	bc.Emit(OpReturn)

	_, err := interp.ExecuteFunction(b.Build())
	if !IsKind(err, ErrType) {
		t.Errorf("err = %v, want type error", err)
	}
}

func TestNativeFunctionReceivesThisAndArgs(t *testing.T) {
	interp := testInterp(t)
	var gotThis Value
	var gotArgs []Value
	native := NewNativeFunction("probe", 1, func(i *Interpreter, this Value, args []Value) (Value, error) {
		gotThis = this
		gotArgs = args
		return FromString("ok"), nil
	})

	result, err := interp.CallFunction(native, FromString("receiver"), []Value{FromNumber(1)})
	if err != nil {
		t.Fatal(err)
	}
	if result.Str() != "ok" {
		t.Errorf("result = %v", result)
	}
	if gotThis.Str() != "receiver" || len(gotArgs) != 1 || gotArgs[0].Number() != 1 {
		t.Errorf("native saw this=%v args=%v", gotThis, gotArgs)
	}
}

func TestStackOverflow(t *testing.T) {
	heap := testHeap()
	realm, err := NewRealm(heap)
	if err != nil {
		t.Fatal(err)
	}
	interp := NewInterpreter(heap, realm, &InterpreterConfig{MaxCallDepth: 16, Strict: true})

	// f() { return f() } through a global binding.
	b := NewCompiledFunctionBuilder("f", 0)
	bc := b.Bytecode()
	nameIdx := b.AddStringConstant("f")
	bc.EmitByte(OpLdaGlobal, byte(nameIdx))
	bc.EmitByte(OpStar, 0)
	bc.Emit(OpLdaUndefined)
	bc.EmitByte(OpStar, 1)
	bc.EmitBytes(OpCall, 0, 0)
	bc.Emit(OpReturn)
	b.SetRegisterCount(2)

	closure := NewClosure(b.Build(), nil)
	if _, err := heap.Allocate(FromFunction(closure)); err != nil {
		t.Fatal(err)
	}
	realm.Install("f", FromFunction(closure))

	_, err = interp.CallFunction(closure, Undefined, nil)
	if !IsKind(err, ErrStackOverflow) {
		t.Errorf("err = %v, want stack overflow", err)
	}
	if interp.Depth() != 0 {
		t.Errorf("call stack depth after unwind = %d, want 0", interp.Depth())
	}
}

// ---------------------------------------------------------------------------
// Globals, properties, creation
// ---------------------------------------------------------------------------

func TestGlobalBindingsPersistAcrossExecutions(t *testing.T) {
	interp := testInterp(t)

	// Program 1: var x = 42
	b1 := NewCompiledFunctionBuilder("", 0)
	b1.SetTopLevel(true)
	b1.Declare("x", BindVar)
	bc1 := b1.Bytecode()
	bc1.EmitByte(OpLdaConstant, byte(b1.AddConstant(FromNumber(42))))
	bc1.EmitByte(OpStaGlobal, byte(b1.AddStringConstant("x")))
	bc1.Emit(OpLdaUndefined)
	bc1.Emit(OpReturn)
	if _, err := interp.ExecuteFunction(b1.Build()); err != nil {
		t.Fatal(err)
	}

	// Program 2: x
	b2 := NewCompiledFunctionBuilder("", 0)
	b2.SetTopLevel(true)
	bc2 := b2.Bytecode()
	bc2.EmitByte(OpLdaGlobal, byte(b2.AddStringConstant("x")))
	bc2.Emit(OpReturn)
	result, err := interp.ExecuteFunction(b2.Build())
	if err != nil {
		t.Fatal(err)
	}
	if result.Number() != 42 {
		t.Errorf("x = %v, want 42", result)
	}
}

func TestUndefinedGlobalIsReferenceError(t *testing.T) {
	interp := testInterp(t)
	b := NewCompiledFunctionBuilder("", 0)
	b.Bytecode().EmitByte(OpLdaGlobal, byte(b.AddStringConstant("nope")))
	b.Bytecode().Emit(OpReturn)

	_, err := interp.ExecuteFunction(b.Build())
	if !IsKind(err, ErrNotDefined) {
		t.Errorf("err = %v, want not-defined", err)
	}
}

func TestCreateObjectAndProperties(t *testing.T) {
	interp := testInterp(t)
	b := NewCompiledFunctionBuilder("", 0)
	bc := b.Bytecode()
	nameIdx := b.AddStringConstant("answer")
	bc.Emit(OpCreateObject)
	bc.EmitByte(OpStar, 0)
	bc.EmitByte(OpLdaConstant, byte(b.AddConstant(FromNumber(42))))
	bc.EmitBytes(OpSetProperty, 0, byte(nameIdx))
	bc.EmitBytes(OpGetProperty, 0, byte(nameIdx))
	bc.Emit(OpReturn)
	b.SetRegisterCount(1)

	result, err := interp.ExecuteFunction(b.Build())
	if err != nil {
		t.Fatal(err)
	}
	if result.Number() != 42 {
		t.Errorf("obj.answer = %v, want 42", result)
	}
}

func TestCreateArray(t *testing.T) {
	interp := testInterp(t)
	b := NewCompiledFunctionBuilder("", 0)
	bc := b.Bytecode()
	bc.EmitByte(OpLdaConstant, byte(b.AddConstant(FromString("a"))))
	bc.EmitByte(OpStar, 0)
	bc.EmitByte(OpLdaConstant, byte(b.AddConstant(FromString("b"))))
	bc.EmitByte(OpStar, 1)
	bc.EmitBytes(OpCreateArray, 0, 2)
	bc.Emit(OpReturn)
	b.SetRegisterCount(2)

	result, err := interp.ExecuteFunction(b.Build())
	if err != nil {
		t.Fatal(err)
	}
	arr := result.Object()
	if arr == nil {
		t.Fatal("CREATE_ARRAY should produce an object")
	}
	if length, _ := arr.Get(StringKey("length")); length.Number() != 2 {
		t.Errorf("length = %v, want 2", length)
	}
	if v, _ := arr.Get(KeyFor(FromNumber(0))); v.Str() != "a" {
		t.Errorf("arr[0] = %v, want a", v)
	}
	if v, _ := arr.Get(KeyFor(FromNumber(1))); v.Str() != "b" {
		t.Errorf("arr[1] = %v, want b", v)
	}
}

func TestConstructLinksPrototype(t *testing.T) {
	interp := testInterp(t)

	// A constructor body that returns no object keeps the fresh instance.
	cb := NewCompiledFunctionBuilder("Thing", 0)
	cb.Bytecode().Emit(OpLdaUndefined)
	cb.Bytecode().Emit(OpReturn)
	ctor := NewClosure(cb.Build(), nil)
	proto := NewObject(nil)
	if _, err := interp.Heap().Allocate(FromObject(proto)); err != nil {
		t.Fatal(err)
	}
	proto.Set(StringKey("kind"), FromString("thing"))
	ctor.Set(StringKey("prototype"), FromObject(proto))

	b := NewCompiledFunctionBuilder("", 0)
	bc := b.Bytecode()
	bc.EmitByte(OpLdaConstant, byte(b.AddConstant(FromFunction(ctor))))
	bc.EmitByte(OpStar, 0)
	bc.EmitBytes(OpConstruct, 0, 0)
	bc.Emit(OpReturn)
	b.SetRegisterCount(1)

	result, err := interp.ExecuteFunction(b.Build())
	if err != nil {
		t.Fatal(err)
	}
	instance := result.Object()
	if instance == nil {
		t.Fatal("CONSTRUCT should produce an object")
	}
	if instance.Proto != proto {
		t.Error("instance prototype should be the constructor's prototype property")
	}
	if v, _ := instance.Get(StringKey("kind")); v.Str() != "thing" {
		t.Errorf("inherited kind = %v, want thing", v)
	}
}

func TestDebuggerHook(t *testing.T) {
	interp := testInterp(t)
	hits := 0
	interp.DebuggerHook = func(ctx *ExecutionContext) { hits++ }

	b := NewCompiledFunctionBuilder("", 0)
	b.Bytecode().Emit(OpDebugger)
	b.Bytecode().Emit(OpLdaUndefined)
	b.Bytecode().Emit(OpReturn)
	if _, err := interp.ExecuteFunction(b.Build()); err != nil {
		t.Fatal(err)
	}
	if hits != 1 {
		t.Errorf("debugger hook ran %d times, want 1", hits)
	}
}

func TestCallArgumentUnrootedAfterReturn(t *testing.T) {
	interp := testInterp(t)
	heap := interp.Heap()

	b := NewCompiledFunctionBuilder("sink", 1)
	b.Declare("a", BindVar)
	b.Bytecode().Emit(OpLdaUndefined)
	b.Bytecode().Emit(OpReturn)
	closure := NewClosure(b.Build(), nil)

	obj := NewObject(nil)
	id, err := heap.Allocate(FromObject(obj))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := interp.CallFunction(closure, Undefined, []Value{FromObject(obj)}); err != nil {
		t.Fatal(err)
	}
	if heap.IsRooted(id) {
		t.Fatal("argument binding is still rooted after the call returned")
	}
	heap.Scavenge()
	heap.MarkSweep()
	if heap.Lookup(id) != nil {
		t.Error("unreachable argument object survived collection")
	}
}

func TestLocalStoreUnrootedAfterReturn(t *testing.T) {
	interp := testInterp(t)
	heap := interp.Heap()

	// fn(a) { x = a; return }
	b := NewCompiledFunctionBuilder("hold", 1)
	b.Declare("a", BindVar)
	b.Declare("x", BindVar)
	bc := b.Bytecode()
	bc.EmitBytes(OpLdaContextSlot, 0, 0)
	bc.EmitBytes(OpStaContextSlot, 0, 1)
	bc.Emit(OpLdaUndefined)
	bc.Emit(OpReturn)
	closure := NewClosure(b.Build(), nil)

	obj := NewObject(nil)
	id, err := heap.Allocate(FromObject(obj))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := interp.CallFunction(closure, Undefined, []Value{FromObject(obj)}); err != nil {
		t.Fatal(err)
	}
	if heap.IsRooted(id) {
		t.Fatal("local binding is still rooted after the call returned")
	}
	heap.Scavenge()
	if heap.Lookup(id) != nil {
		t.Error("unreachable local object survived collection")
	}
}

func TestTruncatedOperandIsError(t *testing.T) {
	interp := testInterp(t)
	fn := &CompiledFunction{
		Bytecode: []byte{byte(OpLdaConstant)}, // operand byte missing
		TopLevel: true,
	}
	_, err := interp.ExecuteFunction(fn)
	if err == nil {
		t.Fatal("expected error for a truncated instruction stream")
	}
	if !IsKind(err, ErrUnknownOpcode) {
		t.Errorf("error = %v, want unknown-opcode kind", err)
	}
}
