package compiler

import (
	"testing"

	"github.com/petrel-browser/petrel/vm"
)

// ---------------------------------------------------------------------------
// End-to-end tests: source -> bytecode -> interpreter
// ---------------------------------------------------------------------------

func newTestContext(t *testing.T) *vm.Context {
	t.Helper()
	iso := vm.NewIsolate(nil)
	ctx, err := iso.NewContext(NewBackend())
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	return ctx
}

func mustExecute(t *testing.T, ctx *vm.Context, source string) {
	t.Helper()
	result := ctx.Execute(source)
	if !result.Success {
		t.Fatalf("Execute(%q): %v", source, result.Err)
	}
}

func evalNumber(t *testing.T, ctx *vm.Context, source string) float64 {
	t.Helper()
	v, err := ctx.Evaluate(source)
	if err != nil {
		t.Fatalf("Evaluate(%q): %v", source, err)
	}
	if !v.IsNumber() {
		t.Fatalf("Evaluate(%q) = %s, want a number", source, v)
	}
	return v.Number()
}

func TestEvaluateArithmetic(t *testing.T) {
	ctx := newTestContext(t)
	tests := []struct {
		source string
		want   float64
	}{
		{"1 + 2", 3},
		{"10 - 2 - 3", 5}, // left-associative
		{"5 + 3 * 2", 16}, // single precedence tier
		{"1 / 2", 0.5},
		{"7 % 3", 1},
		{"-(2 + 3)", -5},
		{"2 * (3 + 4)", 14},
	}
	for _, tt := range tests {
		if got := evalNumber(t, ctx, tt.source); got != tt.want {
			t.Errorf("Evaluate(%q) = %v, want %v", tt.source, got, tt.want)
		}
	}
}

func TestEvaluateComparisons(t *testing.T) {
	ctx := newTestContext(t)
	tests := []struct {
		source string
		want   bool
	}{
		{"1 < 2", true},
		{"2 <= 2", true},
		{"3 > 4", false},
		{"'5' == 5", true},
		{"'5' === 5", false},
		{"1 != 2", true},
		{"1 !== 1", false},
		{"!true", false},
	}
	for _, tt := range tests {
		v, err := ctx.Evaluate(tt.source)
		if err != nil {
			t.Fatalf("Evaluate(%q): %v", tt.source, err)
		}
		if !v.IsBoolean() || v.Bool() != tt.want {
			t.Errorf("Evaluate(%q) = %s, want %v", tt.source, v, tt.want)
		}
	}
}

func TestEvaluateStringConcatenation(t *testing.T) {
	ctx := newTestContext(t)
	v, err := ctx.Evaluate("'answer: ' + 42")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !v.IsString() || v.Str() != "answer: 42" {
		t.Errorf("got %s, want %q", v, "answer: 42")
	}
}

func TestGlobalsPersistAcrossExecutions(t *testing.T) {
	ctx := newTestContext(t)
	mustExecute(t, ctx, "var x = 42")
	if got := evalNumber(t, ctx, "x"); got != 42 {
		t.Errorf("x = %v, want 42", got)
	}
	mustExecute(t, ctx, "x = x + 1")
	if got := evalNumber(t, ctx, "x"); got != 43 {
		t.Errorf("x = %v, want 43", got)
	}
}

func TestWhileLoop(t *testing.T) {
	ctx := newTestContext(t)
	mustExecute(t, ctx, `
var i = 0
var total = 0
while (i < 5) {
	total = total + i
	i = i + 1
}
`)
	if got := evalNumber(t, ctx, "total"); got != 10 {
		t.Errorf("total = %v, want 10", got)
	}
}

func TestIfElseBranches(t *testing.T) {
	ctx := newTestContext(t)
	mustExecute(t, ctx, `
var r = ''
if (1 < 2) { r = 'yes' } else { r = 'no' }
`)
	v, err := ctx.Evaluate("r")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if v.Str() != "yes" {
		t.Errorf("r = %s, want yes", v)
	}
}

func TestFunctionCallAndReturn(t *testing.T) {
	ctx := newTestContext(t)
	mustExecute(t, ctx, "function add(a, b) { return a + b }")
	if got := evalNumber(t, ctx, "add(2, 3)"); got != 5 {
		t.Errorf("add(2, 3) = %v, want 5", got)
	}
}

func TestRecursion(t *testing.T) {
	ctx := newTestContext(t)
	mustExecute(t, ctx, `
function fact(n) {
	if (n < 2) return 1
	return n * fact(n - 1)
}
`)
	if got := evalNumber(t, ctx, "fact(5)"); got != 120 {
		t.Errorf("fact(5) = %v, want 120", got)
	}
}

func TestClosureCapturesEnclosingBinding(t *testing.T) {
	ctx := newTestContext(t)
	mustExecute(t, ctx, `
function makeCounter() {
	let n = 0
	function inc() {
		n = n + 1
		return n
	}
	return inc
}
var c = makeCounter()
`)
	for want := 1.0; want <= 3; want++ {
		if got := evalNumber(t, ctx, "c()"); got != want {
			t.Errorf("c() = %v, want %v", got, want)
		}
	}
}

func TestClosuresHaveIndependentEnvironments(t *testing.T) {
	ctx := newTestContext(t)
	mustExecute(t, ctx, `
function makeCounter() {
	let n = 0
	function inc() {
		n = n + 1
		return n
	}
	return inc
}
var a = makeCounter()
var b = makeCounter()
a()
a()
`)
	if got := evalNumber(t, ctx, "a()"); got != 3 {
		t.Errorf("a() = %v, want 3", got)
	}
	if got := evalNumber(t, ctx, "b()"); got != 1 {
		t.Errorf("b() = %v, want 1", got)
	}
}

func TestObjectLiteralAndMemberAccess(t *testing.T) {
	ctx := newTestContext(t)
	mustExecute(t, ctx, `
var p = {x: 1, y: 2}
var s = p.x + p['y']
p.z = s
`)
	if got := evalNumber(t, ctx, "s"); got != 3 {
		t.Errorf("s = %v, want 3", got)
	}
	if got := evalNumber(t, ctx, "p.z"); got != 3 {
		t.Errorf("p.z = %v, want 3", got)
	}
}

func TestArrayLiteral(t *testing.T) {
	ctx := newTestContext(t)
	v, err := ctx.Evaluate("[10, 20, 30]")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	arr := v.Object()
	if arr == nil {
		t.Fatalf("got %s, want an array object", v)
	}
	if length, _ := arr.Get(vm.StringKey("length")); length.Number() != 3 {
		t.Errorf("length = %s, want 3", length)
	}
	if elem, _ := arr.Get(vm.KeyFor(vm.FromNumber(1))); elem.Number() != 20 {
		t.Errorf("[1] = %s, want 20", elem)
	}
}

func TestArrayIndexing(t *testing.T) {
	ctx := newTestContext(t)
	mustExecute(t, ctx, "var xs = [10, 20, 30]")
	if got := evalNumber(t, ctx, "xs[0] + xs[2]"); got != 40 {
		t.Errorf("xs[0] + xs[2] = %v, want 40", got)
	}
	if got := evalNumber(t, ctx, "xs.length"); got != 3 {
		t.Errorf("xs.length = %v, want 3", got)
	}
}

func TestMethodCallBindsReceiver(t *testing.T) {
	ctx := newTestContext(t)
	// A native method observes the object it was called on.
	err := ctx.Realm().InstallFunction("tag", 0,
		func(interp *vm.Interpreter, this vm.Value, args []vm.Value) (vm.Value, error) {
			v, _ := vm.GetProperty(this, vm.StringKey("name"))
			return v, nil
		})
	if err != nil {
		t.Fatalf("InstallFunction: %v", err)
	}
	mustExecute(t, ctx, "var o = {name: 'widget'}\no.describe = tag")
	v, err := ctx.Evaluate("o.describe()")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if v.Str() != "widget" {
		t.Errorf("o.describe() = %s, want widget", v)
	}
}

func TestConstructorLinksPrototype(t *testing.T) {
	ctx := newTestContext(t)
	mustExecute(t, ctx, `
function Shape() {}
Shape.prototype = {kind: 'shape'}
var s = new Shape()
`)
	v, err := ctx.Evaluate("s.kind")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if v.Str() != "shape" {
		t.Errorf("s.kind = %s, want shape", v)
	}
}

func TestConstReassignmentFails(t *testing.T) {
	ctx := newTestContext(t)
	mustExecute(t, ctx, "const limit = 100")
	result := ctx.Execute("limit = 200")
	if result.Success {
		t.Fatal("expected const reassignment to fail")
	}
	if !vm.IsKind(result.Err, vm.ErrAssignToConst) {
		t.Errorf("error = %v, want assign-to-const kind", result.Err)
	}
	if got := evalNumber(t, ctx, "limit"); got != 100 {
		t.Errorf("limit = %v, want 100", got)
	}
}

func TestLetUseBeforeInitialization(t *testing.T) {
	ctx := newTestContext(t)
	result := ctx.Execute("y\nlet y = 1")
	if result.Success {
		t.Fatal("expected use-before-initialization to fail")
	}
	if !vm.IsKind(result.Err, vm.ErrAccessBeforeInit) {
		t.Errorf("error = %v, want access-before-init kind", result.Err)
	}
	// The failure does not poison the context.
	mustExecute(t, ctx, "var ok = 1")
}

func TestUndefinedGlobalIsNotDefined(t *testing.T) {
	ctx := newTestContext(t)
	_, err := ctx.Evaluate("nope")
	if err == nil {
		t.Fatal("expected error for undefined global")
	}
	if !vm.IsKind(err, vm.ErrNotDefined) {
		t.Errorf("error = %v, want not-defined kind", err)
	}
}

func TestSyntaxErrorSurfacesAsSyntaxKind(t *testing.T) {
	ctx := newTestContext(t)
	for _, source := range []string{"var = 1", "1 +", "'unterminated"} {
		result := ctx.Execute(source)
		if result.Success {
			t.Errorf("Execute(%q): expected failure", source)
			continue
		}
		if !vm.IsKind(result.Err, vm.ErrSyntax) {
			t.Errorf("Execute(%q): error = %v, want syntax kind", source, result.Err)
		}
	}
}

func TestCompileExpressionRejectsStatements(t *testing.T) {
	backend := NewBackend()
	if _, err := backend.CompileExpression("var x = 1"); err == nil {
		t.Fatal("expected error compiling a statement as an expression")
	}
}

func TestFallOffEndIsUndefined(t *testing.T) {
	ctx := newTestContext(t)
	result := ctx.Execute("var x = 1")
	if !result.Success {
		t.Fatalf("Execute: %v", result.Err)
	}
	if !result.Value.IsUndefined() {
		t.Errorf("program value = %s, want undefined", result.Value)
	}
}
