package compiler

import (
	"github.com/petrel-browser/petrel/vm"
)

// ---------------------------------------------------------------------------
// Bytecode generation: AST -> CompiledFunction
// ---------------------------------------------------------------------------

// funcScope tracks state while lowering one function body: its builder, the
// register high-water mark, and the slot table for declared names.
type funcScope struct {
	builder  *vm.CompiledFunctionBuilder
	parent   *funcScope
	slots    map[string]int
	kinds    map[string]vm.BindingKind
	nextReg  int
	maxReg   int
	topLevel bool
}

func newFuncScope(builder *vm.CompiledFunctionBuilder, parent *funcScope, topLevel bool) *funcScope {
	return &funcScope{
		builder:  builder,
		parent:   parent,
		slots:    make(map[string]int),
		kinds:    make(map[string]vm.BindingKind),
		topLevel: topLevel,
	}
}

// allocReg reserves the next free register, growing the high-water mark.
func (fs *funcScope) allocReg() (int, error) {
	r := fs.nextReg
	if r > 0xFF {
		return 0, vm.NewError(vm.ErrSyntax, "expression needs more than %d registers", 0x100)
	}
	fs.nextReg++
	if fs.nextReg > fs.maxReg {
		fs.maxReg = fs.nextReg
	}
	return r, nil
}

// allocBlock reserves n consecutive registers and returns the first. Calls
// need their callee, receiver and arguments contiguous.
func (fs *funcScope) allocBlock(n int) (int, error) {
	base := fs.nextReg
	if base+n > 0x100 {
		return 0, vm.NewError(vm.ErrSyntax, "expression needs more than %d registers", 0x100)
	}
	fs.nextReg += n
	if fs.nextReg > fs.maxReg {
		fs.maxReg = fs.nextReg
	}
	return base, nil
}

// freeTo releases all registers at or above r.
func (fs *funcScope) freeTo(r int) {
	fs.nextReg = r
}

// declare records a binding in both the compiled function and the slot table.
func (fs *funcScope) declare(name string, kind vm.BindingKind, pos Position) error {
	if existing, ok := fs.kinds[name]; ok {
		if existing == vm.BindVar && kind == vm.BindVar {
			return nil // var may repeat
		}
		return vm.NewError(vm.ErrSyntax, "identifier %q has already been declared (at %s)", name, pos)
	}
	slot := fs.builder.Declare(name, kind)
	fs.slots[name] = slot
	fs.kinds[name] = kind
	return nil
}

// resolve finds a declared name in this or an enclosing function scope.
// Top-level declarations live in the realm and are addressed by name, not
// slot, so the walk excludes top-level scopes.
func (fs *funcScope) resolve(name string) (depth, slot int, ok bool) {
	for s := fs; s != nil && !s.topLevel; s = s.parent {
		if idx, found := s.slots[name]; found {
			return depth, idx, true
		}
		depth++
	}
	return 0, 0, false
}

// generator lowers an AST to bytecode.
type generator struct{}

// GenerateProgram compiles a whole program into a top-level function. The
// program implicitly returns undefined when control falls off the end.
func GenerateProgram(prog *Program) (*vm.CompiledFunction, error) {
	g := &generator{}
	builder := vm.NewCompiledFunctionBuilder("", 0)
	builder.SetTopLevel(true)
	fs := newFuncScope(builder, nil, true)

	if err := g.hoistDeclarations(fs, prog.Statements); err != nil {
		return nil, err
	}
	for _, stmt := range prog.Statements {
		if err := g.compileStatement(fs, stmt); err != nil {
			return nil, err
		}
	}
	bc := builder.Bytecode()
	bc.Emit(vm.OpLdaUndefined)
	bc.Emit(vm.OpReturn)
	builder.SetRegisterCount(fs.maxReg)
	return builder.Build(), nil
}

// GenerateExpression compiles a single expression into a function that
// returns its value.
func GenerateExpression(expr Expression) (*vm.CompiledFunction, error) {
	g := &generator{}
	builder := vm.NewCompiledFunctionBuilder("", 0)
	builder.SetTopLevel(true)
	fs := newFuncScope(builder, nil, true)

	if err := g.compileExpression(fs, expr); err != nil {
		return nil, err
	}
	builder.Bytecode().Emit(vm.OpReturn)
	builder.SetRegisterCount(fs.maxReg)
	return builder.Build(), nil
}

// ---------------------------------------------------------------------------
// Declaration hoisting
// ---------------------------------------------------------------------------

// hoistDeclarations walks a function body and declares every binding up
// front, so forward references within the function resolve to slots. The
// walk descends into blocks and control flow but not into nested functions,
// which declare into their own scope.
func (g *generator) hoistDeclarations(fs *funcScope, stmts []Statement) error {
	for _, stmt := range stmts {
		switch s := stmt.(type) {
		case *VarStatement:
			kind := bindingKindOf(s.Kind)
			if err := fs.declare(s.Name, kind, s.Position); err != nil {
				return err
			}
		case *FunctionStatement:
			if err := fs.declare(s.Name, vm.BindVar, s.Position); err != nil {
				return err
			}
		case *BlockStatement:
			if err := g.hoistDeclarations(fs, s.Statements); err != nil {
				return err
			}
		case *IfStatement:
			if err := g.hoistDeclarations(fs, []Statement{s.Then}); err != nil {
				return err
			}
			if s.Else != nil {
				if err := g.hoistDeclarations(fs, []Statement{s.Else}); err != nil {
					return err
				}
			}
		case *WhileStatement:
			if err := g.hoistDeclarations(fs, []Statement{s.Body}); err != nil {
				return err
			}
		}
	}
	return nil
}

func bindingKindOf(kind DeclKind) vm.BindingKind {
	switch kind {
	case DeclLet:
		return vm.BindLet
	case DeclConst:
		return vm.BindConst
	default:
		return vm.BindVar
	}
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (g *generator) compileStatement(fs *funcScope, stmt Statement) error {
	bc := fs.builder.Bytecode()
	switch s := stmt.(type) {
	case *VarStatement:
		if s.Init != nil {
			if err := g.compileExpression(fs, s.Init); err != nil {
				return err
			}
		} else {
			bc.Emit(vm.OpLdaUndefined)
		}
		return g.emitStore(fs, s.Name)

	case *FunctionStatement:
		inner, err := g.compileFunction(fs, s)
		if err != nil {
			return err
		}
		idx := fs.builder.AddInner(inner)
		if idx > 0xFF {
			return vm.NewError(vm.ErrSyntax, "too many nested functions")
		}
		bc.EmitByte(vm.OpCreateClosure, byte(idx))
		return g.emitStore(fs, s.Name)

	case *ReturnStatement:
		if s.Value != nil {
			if err := g.compileExpression(fs, s.Value); err != nil {
				return err
			}
		} else {
			bc.Emit(vm.OpLdaUndefined)
		}
		bc.Emit(vm.OpReturn)
		return nil

	case *BlockStatement:
		for _, inner := range s.Statements {
			if err := g.compileStatement(fs, inner); err != nil {
				return err
			}
		}
		return nil

	case *IfStatement:
		if err := g.compileExpression(fs, s.Condition); err != nil {
			return err
		}
		elseLabel := bc.NewLabel()
		bc.EmitJump(vm.OpJumpIfFalse, elseLabel)
		if err := g.compileStatement(fs, s.Then); err != nil {
			return err
		}
		if s.Else == nil {
			return bc.Mark(elseLabel)
		}
		endLabel := bc.NewLabel()
		bc.EmitJump(vm.OpJump, endLabel)
		if err := bc.Mark(elseLabel); err != nil {
			return err
		}
		if err := g.compileStatement(fs, s.Else); err != nil {
			return err
		}
		return bc.Mark(endLabel)

	case *WhileStatement:
		top := bc.NewLabel()
		if err := bc.Mark(top); err != nil {
			return err
		}
		if err := g.compileExpression(fs, s.Condition); err != nil {
			return err
		}
		end := bc.NewLabel()
		bc.EmitJump(vm.OpJumpIfFalse, end)
		if err := g.compileStatement(fs, s.Body); err != nil {
			return err
		}
		bc.EmitJump(vm.OpJump, top)
		return bc.Mark(end)

	case *ExpressionStatement:
		return g.compileExpression(fs, s.Expression)

	case *DebuggerStatement:
		bc.Emit(vm.OpDebugger)
		return nil
	}
	return vm.NewError(vm.ErrSyntax, "cannot compile statement at %s", stmt.Pos())
}

// compileFunction lowers a function declaration into a nested
// CompiledFunction with its own scope, registers and constant pool.
func (g *generator) compileFunction(outer *funcScope, stmt *FunctionStatement) (*vm.CompiledFunction, error) {
	builder := vm.NewCompiledFunctionBuilder(stmt.Name, len(stmt.Params))
	fs := newFuncScope(builder, outer, false)

	// Parameters occupy the leading slots.
	for _, param := range stmt.Params {
		if err := fs.declare(param, vm.BindVar, stmt.Position); err != nil {
			return nil, err
		}
	}
	if err := g.hoistDeclarations(fs, stmt.Body); err != nil {
		return nil, err
	}
	for _, inner := range stmt.Body {
		if err := g.compileStatement(fs, inner); err != nil {
			return nil, err
		}
	}
	bc := builder.Bytecode()
	bc.Emit(vm.OpLdaUndefined)
	bc.Emit(vm.OpReturn)
	builder.SetRegisterCount(fs.maxReg)
	return builder.Build(), nil
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// compileExpression emits code leaving the expression's value in the
// accumulator.
func (g *generator) compileExpression(fs *funcScope, expr Expression) error {
	bc := fs.builder.Bytecode()
	switch e := expr.(type) {
	case *NumberLiteral:
		if e.Value == 0 {
			bc.Emit(vm.OpLdaZero)
			return nil
		}
		return g.emitConstant(fs, vm.FromNumber(e.Value))

	case *StringLiteral:
		return g.emitConstant(fs, vm.FromString(e.Value))

	case *BooleanLiteral:
		if e.Value {
			bc.Emit(vm.OpLdaTrue)
		} else {
			bc.Emit(vm.OpLdaFalse)
		}
		return nil

	case *NullLiteral:
		bc.Emit(vm.OpLdaNull)
		return nil

	case *UndefinedLiteral:
		bc.Emit(vm.OpLdaUndefined)
		return nil

	case *Identifier:
		return g.emitLoad(fs, e.Name)

	case *BinaryExpression:
		return g.compileBinary(fs, e)

	case *UnaryExpression:
		if err := g.compileExpression(fs, e.Operand); err != nil {
			return err
		}
		switch e.Op {
		case TokenMinus:
			bc.Emit(vm.OpNeg)
		case TokenBang:
			bc.Emit(vm.OpLogicalNot)
		}
		return nil

	case *AssignExpression:
		return g.compileAssignment(fs, e)

	case *CallExpression:
		return g.compileCall(fs, e)

	case *NewExpression:
		return g.compileNew(fs, e)

	case *MemberExpression:
		return g.compileMemberLoad(fs, e)

	case *ObjectLiteral:
		return g.compileObjectLiteral(fs, e)

	case *ArrayLiteral:
		return g.compileArrayLiteral(fs, e)
	}
	return vm.NewError(vm.ErrSyntax, "cannot compile expression at %s", expr.Pos())
}

// compileBinary spills the left operand to a register, evaluates the right
// into the accumulator, then combines: acc = r OP acc.
func (g *generator) compileBinary(fs *funcScope, e *BinaryExpression) error {
	bc := fs.builder.Bytecode()
	if err := g.compileExpression(fs, e.Left); err != nil {
		return err
	}
	r, err := fs.allocReg()
	if err != nil {
		return err
	}
	bc.EmitByte(vm.OpStar, byte(r))
	if err := g.compileExpression(fs, e.Right); err != nil {
		return err
	}
	switch e.Op {
	case TokenPlus:
		bc.EmitByte(vm.OpAdd, byte(r))
	case TokenMinus:
		bc.EmitByte(vm.OpSub, byte(r))
	case TokenStar:
		bc.EmitByte(vm.OpMul, byte(r))
	case TokenSlash:
		bc.EmitByte(vm.OpDiv, byte(r))
	case TokenPercent:
		bc.EmitByte(vm.OpMod, byte(r))
	case TokenEq:
		bc.EmitByte(vm.OpTestEq, byte(r))
	case TokenNotEq:
		bc.EmitByte(vm.OpTestNe, byte(r))
	case TokenStrictEq:
		bc.EmitByte(vm.OpTestEqStrict, byte(r))
	case TokenStrictNotEq:
		bc.EmitByte(vm.OpTestEqStrict, byte(r))
		bc.Emit(vm.OpLogicalNot)
	case TokenLess:
		bc.EmitByte(vm.OpTestLt, byte(r))
	case TokenGreater:
		bc.EmitByte(vm.OpTestGt, byte(r))
	case TokenLessEq:
		bc.EmitByte(vm.OpTestLe, byte(r))
	case TokenGreaterEq:
		bc.EmitByte(vm.OpTestGe, byte(r))
	default:
		return vm.NewError(vm.ErrSyntax, "unsupported binary operator %s at %s", e.Op, e.Position)
	}
	fs.freeTo(r)
	return nil
}

func (g *generator) compileAssignment(fs *funcScope, e *AssignExpression) error {
	bc := fs.builder.Bytecode()
	switch target := e.Target.(type) {
	case *Identifier:
		if err := g.compileExpression(fs, e.Value); err != nil {
			return err
		}
		return g.emitStore(fs, target.Name)

	case *MemberExpression:
		if err := g.compileExpression(fs, target.Object); err != nil {
			return err
		}
		objReg, err := fs.allocReg()
		if err != nil {
			return err
		}
		bc.EmitByte(vm.OpStar, byte(objReg))
		if target.Computed {
			if err := g.compileExpression(fs, target.Key); err != nil {
				return err
			}
			keyReg, err := fs.allocReg()
			if err != nil {
				return err
			}
			bc.EmitByte(vm.OpStar, byte(keyReg))
			if err := g.compileExpression(fs, e.Value); err != nil {
				return err
			}
			bc.EmitBytes(vm.OpSetKeyed, byte(objReg), byte(keyReg))
		} else {
			nameIdx, err := g.internString(fs, target.Name)
			if err != nil {
				return err
			}
			if err := g.compileExpression(fs, e.Value); err != nil {
				return err
			}
			bc.EmitBytes(vm.OpSetProperty, byte(objReg), byte(nameIdx))
		}
		fs.freeTo(objReg)
		return nil
	}
	return vm.NewError(vm.ErrSyntax, "invalid assignment target at %s", e.Position)
}

// compileCall lays out callee, receiver and arguments in a contiguous
// register block: callee in base, this in base+1, arguments after.
func (g *generator) compileCall(fs *funcScope, e *CallExpression) error {
	bc := fs.builder.Bytecode()
	argc := len(e.Args)
	base, err := fs.allocBlock(argc + 2)
	if err != nil {
		return err
	}

	if member, ok := e.Callee.(*MemberExpression); ok {
		// Method call: the receiver doubles as this.
		if err := g.compileExpression(fs, member.Object); err != nil {
			return err
		}
		bc.EmitByte(vm.OpStar, byte(base+1))
		if member.Computed {
			if err := g.compileExpression(fs, member.Key); err != nil {
				return err
			}
			keyReg, err := fs.allocReg()
			if err != nil {
				return err
			}
			bc.EmitByte(vm.OpStar, byte(keyReg))
			bc.EmitBytes(vm.OpGetKeyed, byte(base+1), byte(keyReg))
			fs.freeTo(keyReg)
		} else {
			nameIdx, err := g.internString(fs, member.Name)
			if err != nil {
				return err
			}
			bc.EmitBytes(vm.OpGetProperty, byte(base+1), byte(nameIdx))
		}
		bc.EmitByte(vm.OpStar, byte(base))
	} else {
		if err := g.compileExpression(fs, e.Callee); err != nil {
			return err
		}
		bc.EmitByte(vm.OpStar, byte(base))
		bc.Emit(vm.OpLdaUndefined)
		bc.EmitByte(vm.OpStar, byte(base+1))
	}

	for i, arg := range e.Args {
		if err := g.compileExpression(fs, arg); err != nil {
			return err
		}
		bc.EmitByte(vm.OpStar, byte(base+2+i))
	}
	bc.EmitBytes(vm.OpCall, byte(base), byte(argc))
	fs.freeTo(base)
	return nil
}

func (g *generator) compileNew(fs *funcScope, e *NewExpression) error {
	bc := fs.builder.Bytecode()
	argc := len(e.Args)
	base, err := fs.allocBlock(argc + 2)
	if err != nil {
		return err
	}
	if err := g.compileExpression(fs, e.Callee); err != nil {
		return err
	}
	bc.EmitByte(vm.OpStar, byte(base))
	bc.Emit(vm.OpLdaUndefined) // this is created by CONSTRUCT
	bc.EmitByte(vm.OpStar, byte(base+1))
	for i, arg := range e.Args {
		if err := g.compileExpression(fs, arg); err != nil {
			return err
		}
		bc.EmitByte(vm.OpStar, byte(base+2+i))
	}
	bc.EmitBytes(vm.OpConstruct, byte(base), byte(argc))
	fs.freeTo(base)
	return nil
}

func (g *generator) compileMemberLoad(fs *funcScope, e *MemberExpression) error {
	bc := fs.builder.Bytecode()
	if err := g.compileExpression(fs, e.Object); err != nil {
		return err
	}
	objReg, err := fs.allocReg()
	if err != nil {
		return err
	}
	bc.EmitByte(vm.OpStar, byte(objReg))
	if e.Computed {
		if err := g.compileExpression(fs, e.Key); err != nil {
			return err
		}
		keyReg, err := fs.allocReg()
		if err != nil {
			return err
		}
		bc.EmitByte(vm.OpStar, byte(keyReg))
		bc.EmitBytes(vm.OpGetKeyed, byte(objReg), byte(keyReg))
	} else {
		nameIdx, err := g.internString(fs, e.Name)
		if err != nil {
			return err
		}
		bc.EmitBytes(vm.OpGetProperty, byte(objReg), byte(nameIdx))
	}
	fs.freeTo(objReg)
	return nil
}

func (g *generator) compileObjectLiteral(fs *funcScope, e *ObjectLiteral) error {
	bc := fs.builder.Bytecode()
	bc.Emit(vm.OpCreateObject)
	objReg, err := fs.allocReg()
	if err != nil {
		return err
	}
	bc.EmitByte(vm.OpStar, byte(objReg))
	for _, entry := range e.Entries {
		nameIdx, err := g.internString(fs, entry.Key)
		if err != nil {
			return err
		}
		if err := g.compileExpression(fs, entry.Value); err != nil {
			return err
		}
		bc.EmitBytes(vm.OpSetProperty, byte(objReg), byte(nameIdx))
	}
	bc.EmitByte(vm.OpLdar, byte(objReg))
	fs.freeTo(objReg)
	return nil
}

func (g *generator) compileArrayLiteral(fs *funcScope, e *ArrayLiteral) error {
	bc := fs.builder.Bytecode()
	n := len(e.Elements)
	base, err := fs.allocBlock(n)
	if err != nil {
		return err
	}
	for i, elem := range e.Elements {
		if err := g.compileExpression(fs, elem); err != nil {
			return err
		}
		bc.EmitByte(vm.OpStar, byte(base+i))
	}
	bc.EmitBytes(vm.OpCreateArray, byte(base), byte(n))
	fs.freeTo(base)
	return nil
}

// ---------------------------------------------------------------------------
// Loads, stores and constants
// ---------------------------------------------------------------------------

// emitLoad loads a name into the accumulator, through a context slot when
// the name resolves to an enclosing function scope, or by global lookup.
func (g *generator) emitLoad(fs *funcScope, name string) error {
	bc := fs.builder.Bytecode()
	if depth, slot, ok := fs.resolve(name); ok {
		if depth > 0xFF || slot > 0xFF {
			return vm.NewError(vm.ErrSyntax, "binding %q out of addressable range", name)
		}
		bc.EmitBytes(vm.OpLdaContextSlot, byte(depth), byte(slot))
		return nil
	}
	nameIdx, err := g.internString(fs, name)
	if err != nil {
		return err
	}
	bc.EmitByte(vm.OpLdaGlobal, byte(nameIdx))
	return nil
}

// emitStore stores the accumulator to a name, mirroring emitLoad.
func (g *generator) emitStore(fs *funcScope, name string) error {
	bc := fs.builder.Bytecode()
	if depth, slot, ok := fs.resolve(name); ok {
		if depth > 0xFF || slot > 0xFF {
			return vm.NewError(vm.ErrSyntax, "binding %q out of addressable range", name)
		}
		bc.EmitBytes(vm.OpStaContextSlot, byte(depth), byte(slot))
		return nil
	}
	nameIdx, err := g.internString(fs, name)
	if err != nil {
		return err
	}
	bc.EmitByte(vm.OpStaGlobal, byte(nameIdx))
	return nil
}

func (g *generator) emitConstant(fs *funcScope, v vm.Value) error {
	idx := fs.builder.AddConstant(v)
	if idx > 0xFF {
		return vm.NewError(vm.ErrSyntax, "constant pool exceeds %d entries", 0x100)
	}
	fs.builder.Bytecode().EmitByte(vm.OpLdaConstant, byte(idx))
	return nil
}

func (g *generator) internString(fs *funcScope, s string) (int, error) {
	idx := fs.builder.AddStringConstant(s)
	if idx > 0xFF {
		return 0, vm.NewError(vm.ErrSyntax, "constant pool exceeds %d entries", 0x100)
	}
	return idx, nil
}
