package compiler

import "fmt"

// ---------------------------------------------------------------------------
// AST node definitions
// ---------------------------------------------------------------------------

// Position is a line/column location in source text, 1-based.
type Position struct {
	Line   int
	Column int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Node is the interface all AST nodes implement.
type Node interface {
	Pos() Position
}

// Statement is implemented by statement nodes.
type Statement interface {
	Node
	statementNode()
}

// Expression is implemented by expression nodes.
type Expression interface {
	Node
	expressionNode()
}

// Program is the root node of a parsed script.
type Program struct {
	Statements []Statement
}

func (p *Program) Pos() Position {
	if len(p.Statements) > 0 {
		return p.Statements[0].Pos()
	}
	return Position{Line: 1, Column: 1}
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// DeclKind distinguishes var, let and const declarations.
type DeclKind int

const (
	DeclVar DeclKind = iota
	DeclLet
	DeclConst
)

func (k DeclKind) String() string {
	switch k {
	case DeclVar:
		return "var"
	case DeclLet:
		return "let"
	case DeclConst:
		return "const"
	}
	return "decl?"
}

// VarStatement is a variable declaration: var x = 1, let y, const z = 2.
type VarStatement struct {
	Position Position
	Kind     DeclKind
	Name     string
	Init     Expression // nil when no initializer
}

func (s *VarStatement) Pos() Position  { return s.Position }
func (s *VarStatement) statementNode() {}

// FunctionStatement is a named function declaration.
type FunctionStatement struct {
	Position Position
	Name     string
	Params   []string
	Body     []Statement
}

func (s *FunctionStatement) Pos() Position  { return s.Position }
func (s *FunctionStatement) statementNode() {}

// ReturnStatement returns a value from the enclosing function.
type ReturnStatement struct {
	Position Position
	Value    Expression // nil for a bare return
}

func (s *ReturnStatement) Pos() Position  { return s.Position }
func (s *ReturnStatement) statementNode() {}

// BlockStatement is a braced statement list.
type BlockStatement struct {
	Position   Position
	Statements []Statement
}

func (s *BlockStatement) Pos() Position  { return s.Position }
func (s *BlockStatement) statementNode() {}

// IfStatement is a conditional with an optional else branch.
type IfStatement struct {
	Position  Position
	Condition Expression
	Then      Statement
	Else      Statement // nil when absent
}

func (s *IfStatement) Pos() Position  { return s.Position }
func (s *IfStatement) statementNode() {}

// WhileStatement is a pre-tested loop.
type WhileStatement struct {
	Position  Position
	Condition Expression
	Body      Statement
}

func (s *WhileStatement) Pos() Position  { return s.Position }
func (s *WhileStatement) statementNode() {}

// ExpressionStatement wraps an expression evaluated for its effect.
type ExpressionStatement struct {
	Position   Position
	Expression Expression
}

func (s *ExpressionStatement) Pos() Position  { return s.Position }
func (s *ExpressionStatement) statementNode() {}

// DebuggerStatement requests a pause when a debugger is attached.
type DebuggerStatement struct {
	Position Position
}

func (s *DebuggerStatement) Pos() Position  { return s.Position }
func (s *DebuggerStatement) statementNode() {}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// NumberLiteral is a numeric literal.
type NumberLiteral struct {
	Position Position
	Value    float64
}

func (e *NumberLiteral) Pos() Position   { return e.Position }
func (e *NumberLiteral) expressionNode() {}

// StringLiteral is a string literal.
type StringLiteral struct {
	Position Position
	Value    string
}

func (e *StringLiteral) Pos() Position   { return e.Position }
func (e *StringLiteral) expressionNode() {}

// BooleanLiteral is true or false.
type BooleanLiteral struct {
	Position Position
	Value    bool
}

func (e *BooleanLiteral) Pos() Position   { return e.Position }
func (e *BooleanLiteral) expressionNode() {}

// NullLiteral is the null literal.
type NullLiteral struct {
	Position Position
}

func (e *NullLiteral) Pos() Position   { return e.Position }
func (e *NullLiteral) expressionNode() {}

// UndefinedLiteral is the undefined literal.
type UndefinedLiteral struct {
	Position Position
}

func (e *UndefinedLiteral) Pos() Position   { return e.Position }
func (e *UndefinedLiteral) expressionNode() {}

// Identifier is a name reference.
type Identifier struct {
	Position Position
	Name     string
}

func (e *Identifier) Pos() Position   { return e.Position }
func (e *Identifier) expressionNode() {}

// BinaryExpression is a binary operation. All binary operators sit on one
// precedence tier and associate left.
type BinaryExpression struct {
	Position Position
	Op       TokenType
	Left     Expression
	Right    Expression
}

func (e *BinaryExpression) Pos() Position   { return e.Position }
func (e *BinaryExpression) expressionNode() {}

// UnaryExpression is a prefix operation: -x or !x.
type UnaryExpression struct {
	Position Position
	Op       TokenType
	Operand  Expression
}

func (e *UnaryExpression) Pos() Position   { return e.Position }
func (e *UnaryExpression) expressionNode() {}

// AssignExpression assigns a value to an identifier or member target.
type AssignExpression struct {
	Position Position
	Target   Expression // *Identifier or *MemberExpression
	Value    Expression
}

func (e *AssignExpression) Pos() Position   { return e.Position }
func (e *AssignExpression) expressionNode() {}

// CallExpression invokes a callee with arguments.
type CallExpression struct {
	Position Position
	Callee   Expression
	Args     []Expression
}

func (e *CallExpression) Pos() Position   { return e.Position }
func (e *CallExpression) expressionNode() {}

// NewExpression constructs an instance: new F(args).
type NewExpression struct {
	Position Position
	Callee   Expression
	Args     []Expression
}

func (e *NewExpression) Pos() Position   { return e.Position }
func (e *NewExpression) expressionNode() {}

// MemberExpression accesses a property: o.name or o[key].
type MemberExpression struct {
	Position Position
	Object   Expression
	Name     string     // set for o.name
	Key      Expression // set for o[key]
	Computed bool
}

func (e *MemberExpression) Pos() Position   { return e.Position }
func (e *MemberExpression) expressionNode() {}

// ObjectEntry is one key/value pair of an object literal.
type ObjectEntry struct {
	Key   string
	Value Expression
}

// ObjectLiteral is an object literal: { a: 1, b: 2 }.
type ObjectLiteral struct {
	Position Position
	Entries  []ObjectEntry
}

func (e *ObjectLiteral) Pos() Position   { return e.Position }
func (e *ObjectLiteral) expressionNode() {}

// ArrayLiteral is an array literal: [1, 2, 3].
type ArrayLiteral struct {
	Position Position
	Elements []Expression
}

func (e *ArrayLiteral) Pos() Position   { return e.Position }
func (e *ArrayLiteral) expressionNode() {}
