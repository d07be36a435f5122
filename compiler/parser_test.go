package compiler

import (
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Parser tests
// ---------------------------------------------------------------------------

func parseOne(t *testing.T, source string) Statement {
	t.Helper()
	prog, err := Parse(source)
	if err != nil {
		t.Fatalf("Parse(%q): %v", source, err)
	}
	if len(prog.Statements) != 1 {
		t.Fatalf("Parse(%q): got %d statements, want 1", source, len(prog.Statements))
	}
	return prog.Statements[0]
}

func parseExpr(t *testing.T, source string) Expression {
	t.Helper()
	stmt, ok := parseOne(t, source).(*ExpressionStatement)
	if !ok {
		t.Fatalf("Parse(%q): not an expression statement", source)
	}
	return stmt.Expression
}

func TestParseVarStatements(t *testing.T) {
	tests := []struct {
		source  string
		kind    DeclKind
		name    string
		hasInit bool
	}{
		{"var x = 1;", DeclVar, "x", true},
		{"var y", DeclVar, "y", false},
		{"let count = 0", DeclLet, "count", true},
		{"const pi = 3.14;", DeclConst, "pi", true},
	}
	for _, tt := range tests {
		stmt, ok := parseOne(t, tt.source).(*VarStatement)
		if !ok {
			t.Errorf("Parse(%q): not a VarStatement", tt.source)
			continue
		}
		if stmt.Kind != tt.kind || stmt.Name != tt.name {
			t.Errorf("Parse(%q): got kind=%v name=%q", tt.source, stmt.Kind, stmt.Name)
		}
		if (stmt.Init != nil) != tt.hasInit {
			t.Errorf("Parse(%q): initializer presence = %v, want %v", tt.source, stmt.Init != nil, tt.hasInit)
		}
	}
}

func TestParseConstRequiresInitializer(t *testing.T) {
	_, err := Parse("const x;")
	if err == nil {
		t.Fatal("expected error for const without initializer")
	}
	if !strings.Contains(err.Error(), "requires an initializer") {
		t.Errorf("error = %v, want initializer complaint", err)
	}
}

func TestParseBinaryIsLeftAssociative(t *testing.T) {
	// A single precedence tier: 1 - 2 + 3 parses as (1 - 2) + 3,
	// and 5 + 3 * 2 parses as (5 + 3) * 2.
	expr, ok := parseExpr(t, "5 + 3 * 2").(*BinaryExpression)
	if !ok {
		t.Fatal("not a BinaryExpression")
	}
	if expr.Op != TokenStar {
		t.Fatalf("outer op = %v, want *", expr.Op)
	}
	inner, ok := expr.Left.(*BinaryExpression)
	if !ok {
		t.Fatal("left operand is not a BinaryExpression")
	}
	if inner.Op != TokenPlus {
		t.Errorf("inner op = %v, want +", inner.Op)
	}
	if n, ok := expr.Right.(*NumberLiteral); !ok || n.Value != 2 {
		t.Errorf("right operand = %#v, want 2", expr.Right)
	}
}

func TestParseParensOverrideAssociativity(t *testing.T) {
	expr, ok := parseExpr(t, "1 + (2 * 3)").(*BinaryExpression)
	if !ok {
		t.Fatal("not a BinaryExpression")
	}
	if expr.Op != TokenPlus {
		t.Fatalf("outer op = %v, want +", expr.Op)
	}
	if inner, ok := expr.Right.(*BinaryExpression); !ok || inner.Op != TokenStar {
		t.Errorf("right operand = %#v, want 2 * 3", expr.Right)
	}
}

func TestParseUnary(t *testing.T) {
	expr, ok := parseExpr(t, "-x + !y").(*BinaryExpression)
	if !ok {
		t.Fatal("not a BinaryExpression")
	}
	if u, ok := expr.Left.(*UnaryExpression); !ok || u.Op != TokenMinus {
		t.Errorf("left = %#v, want unary minus", expr.Left)
	}
	if u, ok := expr.Right.(*UnaryExpression); !ok || u.Op != TokenBang {
		t.Errorf("right = %#v, want unary not", expr.Right)
	}
}

func TestParseAssignmentIsRightAssociative(t *testing.T) {
	expr, ok := parseExpr(t, "a = b = 1").(*AssignExpression)
	if !ok {
		t.Fatal("not an AssignExpression")
	}
	if id, ok := expr.Target.(*Identifier); !ok || id.Name != "a" {
		t.Fatalf("target = %#v, want identifier a", expr.Target)
	}
	inner, ok := expr.Value.(*AssignExpression)
	if !ok {
		t.Fatal("value is not a nested AssignExpression")
	}
	if id, ok := inner.Target.(*Identifier); !ok || id.Name != "b" {
		t.Errorf("inner target = %#v, want identifier b", inner.Target)
	}
}

func TestParseInvalidAssignmentTarget(t *testing.T) {
	for _, source := range []string{"1 = x", "a + b = c", "f() = 1"} {
		if _, err := Parse(source); err == nil {
			t.Errorf("Parse(%q): expected invalid assignment target error", source)
		}
	}
}

func TestParseMemberAssignmentTarget(t *testing.T) {
	expr, ok := parseExpr(t, "obj.x = 1").(*AssignExpression)
	if !ok {
		t.Fatal("not an AssignExpression")
	}
	m, ok := expr.Target.(*MemberExpression)
	if !ok {
		t.Fatalf("target = %#v, want MemberExpression", expr.Target)
	}
	if m.Computed || m.Name != "x" {
		t.Errorf("member = %#v, want .x", m)
	}
}

func TestParseMemberAndCallChain(t *testing.T) {
	expr, ok := parseExpr(t, "a.b[0](1, 2)").(*CallExpression)
	if !ok {
		t.Fatal("not a CallExpression")
	}
	if len(expr.Args) != 2 {
		t.Fatalf("got %d args, want 2", len(expr.Args))
	}
	keyed, ok := expr.Callee.(*MemberExpression)
	if !ok || !keyed.Computed {
		t.Fatalf("callee = %#v, want computed member", expr.Callee)
	}
	named, ok := keyed.Object.(*MemberExpression)
	if !ok || named.Computed || named.Name != "b" {
		t.Fatalf("inner member = %#v, want .b", keyed.Object)
	}
	if id, ok := named.Object.(*Identifier); !ok || id.Name != "a" {
		t.Errorf("base = %#v, want identifier a", named.Object)
	}
}

func TestParseNewExpression(t *testing.T) {
	expr, ok := parseExpr(t, "new Point(1, 2)").(*NewExpression)
	if !ok {
		t.Fatal("not a NewExpression")
	}
	if id, ok := expr.Callee.(*Identifier); !ok || id.Name != "Point" {
		t.Errorf("callee = %#v, want identifier Point", expr.Callee)
	}
	if len(expr.Args) != 2 {
		t.Errorf("got %d args, want 2", len(expr.Args))
	}
}

func TestParseNewWithMemberCallee(t *testing.T) {
	expr, ok := parseExpr(t, "new lib.Point()").(*NewExpression)
	if !ok {
		t.Fatal("not a NewExpression")
	}
	m, ok := expr.Callee.(*MemberExpression)
	if !ok || m.Name != "Point" {
		t.Fatalf("callee = %#v, want member .Point", expr.Callee)
	}
}

func TestParseIfElse(t *testing.T) {
	stmt, ok := parseOne(t, "if (x) { a() } else b()").(*IfStatement)
	if !ok {
		t.Fatal("not an IfStatement")
	}
	if _, ok := stmt.Then.(*BlockStatement); !ok {
		t.Errorf("then = %#v, want block", stmt.Then)
	}
	if _, ok := stmt.Else.(*ExpressionStatement); !ok {
		t.Errorf("else = %#v, want expression statement", stmt.Else)
	}
}

func TestParseWhile(t *testing.T) {
	stmt, ok := parseOne(t, "while (i < 10) i = i + 1").(*WhileStatement)
	if !ok {
		t.Fatal("not a WhileStatement")
	}
	if cond, ok := stmt.Condition.(*BinaryExpression); !ok || cond.Op != TokenLess {
		t.Errorf("condition = %#v, want i < 10", stmt.Condition)
	}
}

func TestParseFunctionStatement(t *testing.T) {
	stmt, ok := parseOne(t, "function add(a, b) { return a + b }").(*FunctionStatement)
	if !ok {
		t.Fatal("not a FunctionStatement")
	}
	if stmt.Name != "add" {
		t.Errorf("name = %q, want add", stmt.Name)
	}
	if len(stmt.Params) != 2 || stmt.Params[0] != "a" || stmt.Params[1] != "b" {
		t.Errorf("params = %v, want [a b]", stmt.Params)
	}
	if len(stmt.Body) != 1 {
		t.Fatalf("body has %d statements, want 1", len(stmt.Body))
	}
	ret, ok := stmt.Body[0].(*ReturnStatement)
	if !ok || ret.Value == nil {
		t.Errorf("body[0] = %#v, want return with value", stmt.Body[0])
	}
}

func TestParseBareReturn(t *testing.T) {
	prog, err := Parse("function f() { return }")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	fn := prog.Statements[0].(*FunctionStatement)
	ret, ok := fn.Body[0].(*ReturnStatement)
	if !ok || ret.Value != nil {
		t.Errorf("body[0] = %#v, want bare return", fn.Body[0])
	}
}

func TestParseObjectLiteral(t *testing.T) {
	expr, ok := parseExpr(t, `x = {name: 'ada', 'full name': 'ada lovelace', age: 36}`).(*AssignExpression)
	if !ok {
		t.Fatal("not an AssignExpression")
	}
	obj, ok := expr.Value.(*ObjectLiteral)
	if !ok {
		t.Fatal("value is not an ObjectLiteral")
	}
	if len(obj.Entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(obj.Entries))
	}
	if obj.Entries[1].Key != "full name" {
		t.Errorf("entry 1 key = %q, want string key", obj.Entries[1].Key)
	}
}

func TestParseStatementBraceIsBlockNotObject(t *testing.T) {
	stmt, ok := parseOne(t, "{ a() }").(*BlockStatement)
	if !ok {
		t.Fatal("statement-level brace should parse as a block")
	}
	if len(stmt.Statements) != 1 {
		t.Errorf("block has %d statements, want 1", len(stmt.Statements))
	}
}

func TestParseArrayLiteral(t *testing.T) {
	arr, ok := parseExpr(t, "[1, 'two', [3]]").(*ArrayLiteral)
	if !ok {
		t.Fatal("not an ArrayLiteral")
	}
	if len(arr.Elements) != 3 {
		t.Fatalf("got %d elements, want 3", len(arr.Elements))
	}
	if _, ok := arr.Elements[2].(*ArrayLiteral); !ok {
		t.Errorf("element 2 = %#v, want nested array", arr.Elements[2])
	}
}

func TestParseLiterals(t *testing.T) {
	tests := []struct {
		source string
		check  func(Expression) bool
	}{
		{"42", func(e Expression) bool { n, ok := e.(*NumberLiteral); return ok && n.Value == 42 }},
		{"'hi'", func(e Expression) bool { s, ok := e.(*StringLiteral); return ok && s.Value == "hi" }},
		{"true", func(e Expression) bool { b, ok := e.(*BooleanLiteral); return ok && b.Value }},
		{"false", func(e Expression) bool { b, ok := e.(*BooleanLiteral); return ok && !b.Value }},
		{"null", func(e Expression) bool { _, ok := e.(*NullLiteral); return ok }},
		{"undefined", func(e Expression) bool { _, ok := e.(*UndefinedLiteral); return ok }},
	}
	for _, tt := range tests {
		if !tt.check(parseExpr(t, tt.source)) {
			t.Errorf("Parse(%q): wrong literal", tt.source)
		}
	}
}

func TestParseExpressionOnly(t *testing.T) {
	tokens, err := Tokenize("1 + 2;")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	expr, err := NewParser(tokens).ParseExpressionOnly()
	if err != nil {
		t.Fatalf("ParseExpressionOnly: %v", err)
	}
	if _, ok := expr.(*BinaryExpression); !ok {
		t.Errorf("got %#v, want BinaryExpression", expr)
	}
}

func TestParseExpressionOnlyRejectsTrailingInput(t *testing.T) {
	tokens, err := Tokenize("1 + 2 3")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if _, err := NewParser(tokens).ParseExpressionOnly(); err == nil {
		t.Fatal("expected error for trailing input after expression")
	}
}

func TestParseErrorsIncludePosition(t *testing.T) {
	_, err := Parse("var = 1")
	if err == nil {
		t.Fatal("expected syntax error")
	}
	if !strings.Contains(err.Error(), "syntax error at 1:5") {
		t.Errorf("error = %v, want position 1:5", err)
	}
}

func TestParseFirstErrorAborts(t *testing.T) {
	_, err := Parse("var x = ;\nvar y = 2")
	if err == nil {
		t.Fatal("expected syntax error")
	}
	if !strings.Contains(err.Error(), "1:") {
		t.Errorf("error = %v, want first-line position", err)
	}
}

func TestParseUnterminatedBlock(t *testing.T) {
	for _, source := range []string{"{ a()", "function f() { return 1"} {
		if _, err := Parse(source); err == nil {
			t.Errorf("Parse(%q): expected unterminated error", source)
		}
	}
}
