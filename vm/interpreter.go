package vm

import (
	"math"
	"time"
)

// ---------------------------------------------------------------------------
// ExecutionContext: Saved state for one function activation
// ---------------------------------------------------------------------------

// ExecutionContext is one entry on the call stack: the active function, its
// instruction pointer, register file, accumulator, environments, and this
// binding.
type ExecutionContext struct {
	Function *Function // nil for the top-level activation
	Compiled *CompiledFunction
	PC       int
	Acc      Value
	VarEnv   *Environment
	LexEnv   *Environment
	This     Value

	// registers grows lazily on first write; reads past the end yield
	// undefined.
	registers []Value

	heap *Heap
}

// reg reads a register. An unwritten register reads as undefined.
func (ctx *ExecutionContext) reg(idx int) Value {
	if idx >= len(ctx.registers) {
		return Undefined
	}
	return ctx.registers[idx]
}

// setReg writes a register, growing the file and maintaining GC root
// registrations for object-valued contents.
func (ctx *ExecutionContext) setReg(idx int, v Value) {
	for idx >= len(ctx.registers) {
		ctx.registers = append(ctx.registers, Undefined)
	}
	if ctx.heap != nil {
		if old := ctx.registers[idx].Object(); old != nil {
			ctx.heap.RemoveRoot(old.heapID)
		}
		if rec := v.Object(); rec != nil {
			ctx.heap.AddRoot(rec.heapID)
		}
	}
	ctx.registers[idx] = v
}

// release unroots everything the register file held.
func (ctx *ExecutionContext) release() {
	if ctx.heap == nil {
		return
	}
	for _, v := range ctx.registers {
		if rec := v.Object(); rec != nil {
			ctx.heap.RemoveRoot(rec.heapID)
		}
	}
	ctx.registers = nil
}

// ---------------------------------------------------------------------------
// Interpreter
// ---------------------------------------------------------------------------

// InterpreterStats holds advisory execution counters. They never affect
// correctness.
type InterpreterStats struct {
	InstructionsExecuted uint64
	FunctionCalls        uint64
	MaxStackDepth        int
	Elapsed              time.Duration
}

// Interpreter executes compiled functions against an accumulator, a register
// file, and a bounded call stack, allocating through the heap and resolving
// free identifiers through the realm.
type Interpreter struct {
	heap  *Heap
	realm *Realm

	callStack    []*ExecutionContext
	maxCallDepth int
	strict       bool

	stats InterpreterStats

	// DebuggerHook, when set, runs on every DEBUGGER instruction.
	DebuggerHook func(*ExecutionContext)
}

// NewInterpreter creates an interpreter bound to a heap and realm.
func NewInterpreter(heap *Heap, realm *Realm, cfg *InterpreterConfig) *Interpreter {
	if cfg == nil {
		cfg = DefaultConfig().Interpreter
	}
	return &Interpreter{
		heap:         heap,
		realm:        realm,
		maxCallDepth: cfg.MaxCallDepth,
		strict:       cfg.Strict,
	}
}

// Realm returns the interpreter's realm.
func (i *Interpreter) Realm() *Realm { return i.realm }

// Heap returns the interpreter's heap.
func (i *Interpreter) Heap() *Heap { return i.heap }

// Stats returns a copy of the cumulative execution statistics.
func (i *Interpreter) Stats() InterpreterStats { return i.stats }

// Depth returns the current call-stack depth.
func (i *Interpreter) Depth() int { return len(i.callStack) }

// pushContext pushes an activation, enforcing the call-stack cap.
func (i *Interpreter) pushContext(ctx *ExecutionContext) error {
	if len(i.callStack) >= i.maxCallDepth {
		return NewError(ErrStackOverflow,
			"maximum call stack size exceeded (%d frames)", i.maxCallDepth)
	}
	i.callStack = append(i.callStack, ctx)
	if len(i.callStack) > i.stats.MaxStackDepth {
		i.stats.MaxStackDepth = len(i.callStack)
	}
	return nil
}

// popContext pops the top activation, releasing its registers and, for a
// function call, its environment's root registrations. The global
// environment belongs to the realm and is never released.
func (i *Interpreter) popContext() {
	ctx := i.callStack[len(i.callStack)-1]
	ctx.release()
	if ctx.Function != nil && ctx.VarEnv != nil {
		ctx.VarEnv.release()
	}
	i.callStack = i.callStack[:len(i.callStack)-1]
}

// ExecuteFunction runs a top-level compiled function against the realm's
// global environment and returns the final accumulator value.
func (i *Interpreter) ExecuteFunction(fn *CompiledFunction) (Value, error) {
	start := time.Now()
	defer func() { i.stats.Elapsed += time.Since(start) }()

	// Hoist top-level declarations into the realm.
	for _, d := range fn.Declarations {
		i.realm.Declare(d.Name, d.Kind)
	}

	ctx := &ExecutionContext{
		Compiled: fn,
		Acc:      Undefined,
		VarEnv:   i.realm.GlobalEnv,
		LexEnv:   i.realm.GlobalEnv,
		This:     FromObject(i.realm.GlobalObject),
		heap:     i.heap,
	}
	if err := i.pushContext(ctx); err != nil {
		return Undefined, err
	}
	defer i.popContext()
	return i.run(ctx)
}

// CallFunction invokes a function value with an explicit this binding and
// argument list. Native functions are called directly; compiled functions
// get a fresh function environment chained to their captured scope.
func (i *Interpreter) CallFunction(f *Function, this Value, args []Value) (Value, error) {
	i.stats.FunctionCalls++

	if f.IsNative() {
		// Natives share the caller's stack depth budget.
		if err := i.pushContext(&ExecutionContext{This: this, heap: i.heap}); err != nil {
			return Undefined, err
		}
		defer i.popContext()
		return f.Native(i, this, args)
	}

	fn := f.Compiled
	scope := f.Scope
	if scope == nil {
		scope = i.realm.GlobalEnv
	}
	env := NewEnvironment(EnvFunction, scope, i.heap)
	for _, d := range fn.Declarations {
		env.Declare(d.Name, d.Kind)
	}
	for idx := 0; idx < fn.ParameterCount; idx++ {
		arg := Undefined
		if idx < len(args) {
			arg = args[idx]
		}
		env.setSlot(idx, arg, true)
	}

	ctx := &ExecutionContext{
		Function: f,
		Compiled: fn,
		Acc:      Undefined,
		VarEnv:   env,
		LexEnv:   env,
		This:     this,
		heap:     i.heap,
	}
	if err := i.pushContext(ctx); err != nil {
		return Undefined, err
	}
	defer i.popContext()
	return i.run(ctx)
}

// run is the dispatch loop for a single activation.
func (i *Interpreter) run(ctx *ExecutionContext) (Value, error) {
	bc := ctx.Compiled.Bytecode
	consts := ctx.Compiled.Constants

	readByte := func() int {
		b := int(bc[ctx.PC])
		ctx.PC++
		return b
	}
	constAt := func(idx int) Value {
		if idx >= len(consts) {
			return Undefined
		}
		return consts[idx]
	}

	for ctx.PC < len(bc) {
		op := Opcode(bc[ctx.PC])
		ctx.PC++
		i.stats.InstructionsExecuted++

		// The stream may come from an embedder, not just our own
		// generator; operand reads must not run past its end.
		if info, ok := op.Info(); ok && ctx.PC+info.OperandBytes > len(bc) {
			return Undefined, NewError(ErrUnknownOpcode,
				"truncated %s at offset %d", info.Name, ctx.PC-1)
		}

		switch op {
		case OpNOP:
			// nothing

		// --- Load/store ---
		case OpLdaConstant:
			ctx.Acc = constAt(readByte())
		case OpLdaUndefined:
			ctx.Acc = Undefined
		case OpLdaNull:
			ctx.Acc = Null
		case OpLdaTrue:
			ctx.Acc = True
		case OpLdaFalse:
			ctx.Acc = False
		case OpLdaZero:
			ctx.Acc = FromNumber(0)
		case OpLdar:
			ctx.Acc = ctx.reg(readByte())
		case OpStar:
			ctx.setReg(readByte(), ctx.Acc)
		case OpMov:
			src := readByte()
			dst := readByte()
			ctx.setReg(dst, ctx.reg(src))

		// --- Arithmetic ---
		case OpAdd:
			left := ctx.reg(readByte())
			if left.IsString() || ctx.Acc.IsString() {
				ctx.Acc = FromString(left.ToStringValue() + ctx.Acc.ToStringValue())
			} else {
				ctx.Acc = FromNumber(left.ToNumber() + ctx.Acc.ToNumber())
			}
		case OpSub:
			left := ctx.reg(readByte())
			ctx.Acc = FromNumber(left.ToNumber() - ctx.Acc.ToNumber())
		case OpMul:
			left := ctx.reg(readByte())
			ctx.Acc = FromNumber(left.ToNumber() * ctx.Acc.ToNumber())
		case OpDiv:
			left := ctx.reg(readByte())
			ctx.Acc = FromNumber(left.ToNumber() / ctx.Acc.ToNumber())
		case OpMod:
			left := ctx.reg(readByte())
			ctx.Acc = FromNumber(math.Mod(left.ToNumber(), ctx.Acc.ToNumber()))
		case OpNeg:
			ctx.Acc = FromNumber(-ctx.Acc.ToNumber())
		case OpInc:
			ctx.Acc = FromNumber(ctx.Acc.ToNumber() + 1)
		case OpDec:
			ctx.Acc = FromNumber(ctx.Acc.ToNumber() - 1)

		// --- Comparison ---
		case OpTestEq:
			left := ctx.reg(readByte())
			ctx.Acc = FromBool(AbstractEquals(left, ctx.Acc))
		case OpTestNe:
			left := ctx.reg(readByte())
			ctx.Acc = FromBool(!AbstractEquals(left, ctx.Acc))
		case OpTestLt:
			left := ctx.reg(readByte())
			ctx.Acc = FromBool(left.ToNumber() < ctx.Acc.ToNumber())
		case OpTestGt:
			left := ctx.reg(readByte())
			ctx.Acc = FromBool(left.ToNumber() > ctx.Acc.ToNumber())
		case OpTestLe:
			left := ctx.reg(readByte())
			ctx.Acc = FromBool(left.ToNumber() <= ctx.Acc.ToNumber())
		case OpTestGe:
			left := ctx.reg(readByte())
			ctx.Acc = FromBool(left.ToNumber() >= ctx.Acc.ToNumber())
		case OpTestEqStrict:
			left := ctx.reg(readByte())
			ctx.Acc = FromBool(StrictEquals(left, ctx.Acc))

		// --- Logical ---
		case OpLogicalNot:
			ctx.Acc = FromBool(!ctx.Acc.ToBoolean())
		case OpToBoolean:
			ctx.Acc = FromBool(ctx.Acc.ToBoolean())

		// --- Control flow ---
		case OpJump:
			ctx.PC = readByte()
		case OpJumpIfTrue:
			target := readByte()
			if ctx.Acc.ToBoolean() {
				ctx.PC = target
			}
		case OpJumpIfFalse:
			target := readByte()
			if !ctx.Acc.ToBoolean() {
				ctx.PC = target
			}
		case OpReturn:
			return ctx.Acc, nil

		// --- Calls ---
		case OpCall:
			base := readByte()
			argc := readByte()
			result, err := i.callFromRegisters(ctx, base, argc, false)
			if err != nil {
				return Undefined, err
			}
			ctx.Acc = result
		case OpConstruct:
			base := readByte()
			argc := readByte()
			result, err := i.callFromRegisters(ctx, base, argc, true)
			if err != nil {
				return Undefined, err
			}
			ctx.Acc = result

		// --- Property access ---
		case OpGetProperty:
			obj := ctx.reg(readByte())
			name := constAt(readByte())
			v, _ := GetProperty(obj, StringKey(name.ToStringValue()))
			ctx.Acc = v
		case OpSetProperty:
			obj := ctx.reg(readByte())
			name := constAt(readByte())
			SetProperty(obj, StringKey(name.ToStringValue()), ctx.Acc)
		case OpGetKeyed:
			obj := ctx.reg(readByte())
			key := ctx.reg(readByte())
			v, _ := GetProperty(obj, KeyFor(key))
			ctx.Acc = v
		case OpSetKeyed:
			obj := ctx.reg(readByte())
			key := ctx.reg(readByte())
			SetProperty(obj, KeyFor(key), ctx.Acc)

		// --- Globals and context slots ---
		case OpLdaGlobal:
			name := constAt(readByte()).ToStringValue()
			v, err := i.realm.GlobalEnv.Resolve(name)
			if err != nil {
				return Undefined, err
			}
			ctx.Acc = v
		case OpStaGlobal:
			name := constAt(readByte()).ToStringValue()
			if err := i.realm.GlobalEnv.AssignOrInitialize(name, ctx.Acc, i.strict); err != nil {
				return Undefined, err
			}
		case OpLdaContextSlot:
			depth := readByte()
			slot := readByte()
			env := ctx.LexEnv.At(depth)
			if env == nil {
				return Undefined, NewError(ErrNotDefined, "no environment at depth %d", depth)
			}
			v, err := env.GetSlot(slot)
			if err != nil {
				return Undefined, err
			}
			ctx.Acc = v
		case OpStaContextSlot:
			depth := readByte()
			slot := readByte()
			env := ctx.LexEnv.At(depth)
			if env == nil {
				return Undefined, NewError(ErrNotDefined, "no environment at depth %d", depth)
			}
			if err := env.SetSlot(slot, ctx.Acc, i.strict); err != nil {
				return Undefined, err
			}

		// --- Creation ---
		case OpCreateObject:
			obj := NewObject(nil)
			if _, err := i.heap.Allocate(FromObject(obj)); err != nil {
				return Undefined, err
			}
			ctx.Acc = FromObject(obj)
		case OpCreateArray:
			base := readByte()
			count := readByte()
			arr, err := i.createArray(ctx, base, count)
			if err != nil {
				return Undefined, err
			}
			ctx.Acc = arr
		case OpCreateClosure:
			idx := readByte()
			if idx >= len(ctx.Compiled.Inner) {
				return Undefined, NewError(ErrUnknownOpcode,
					"closure index %d out of range", idx)
			}
			closure := NewClosure(ctx.Compiled.Inner[idx], ctx.LexEnv)
			if _, err := i.heap.Allocate(FromFunction(closure)); err != nil {
				return Undefined, err
			}
			ctx.Acc = FromFunction(closure)

		case OpDebugger:
			if i.DebuggerHook != nil {
				i.DebuggerHook(ctx)
			}

		default:
			return Undefined, NewError(ErrUnknownOpcode,
				"unknown opcode 0x%02X at offset %d", byte(op), ctx.PC-1)
		}
	}

	// Control fell off the end of the instruction stream.
	return Undefined, nil
}

// callFromRegisters performs CALL/CONSTRUCT: the callee sits in r[base],
// this in r[base+1], arguments in the following argc registers.
func (i *Interpreter) callFromRegisters(ctx *ExecutionContext, base, argc int, construct bool) (Value, error) {
	callee := ctx.reg(base)
	fn := callee.Function()
	if fn == nil {
		return Undefined, NewError(ErrType, "%s is not a function", callee.ToStringValue())
	}

	args := make([]Value, argc)
	for a := 0; a < argc; a++ {
		args[a] = ctx.reg(base + 2 + a)
	}

	if !construct {
		return i.CallFunction(fn, ctx.reg(base+1), args)
	}

	// CONSTRUCT: allocate a fresh object whose prototype is the callee's
	// "prototype" property; an object-returning constructor overrides it.
	var proto *Object
	if pv, ok := fn.Get(StringKey("prototype")); ok {
		proto = pv.Object()
	}
	instance := NewObject(proto)
	if _, err := i.heap.Allocate(FromObject(instance)); err != nil {
		return Undefined, err
	}
	result, err := i.CallFunction(fn, FromObject(instance), args)
	if err != nil {
		return Undefined, err
	}
	if result.Object() != nil {
		return result, nil
	}
	return FromObject(instance), nil
}

// createArray materializes registers r[base] .. r[base+count-1] as an array
// object with indexed properties and a length.
func (i *Interpreter) createArray(ctx *ExecutionContext, base, count int) (Value, error) {
	arr := NewObject(nil)
	for idx := 0; idx < count; idx++ {
		arr.Set(KeyFor(FromNumber(float64(idx))), ctx.reg(base+idx))
	}
	arr.Set(StringKey("length"), FromNumber(float64(count)))
	if _, err := i.heap.Allocate(FromObject(arr)); err != nil {
		return Undefined, err
	}
	return FromObject(arr), nil
}
