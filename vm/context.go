package vm

import (
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/petrel-browser/petrel/eventloop"
)

var ctxLog = commonlog.GetLogger("petrel.context")

// ---------------------------------------------------------------------------
// Isolate: one heap shared by a bounded set of contexts
// ---------------------------------------------------------------------------

// Isolate owns a heap and the contexts sharing it. Contexts within one
// isolate see the same heap but are otherwise fully separated: no
// cross-context variable visibility.
type Isolate struct {
	heap     *Heap
	config   *EngineConfig
	contexts map[string]*Context
}

// NewIsolate creates an isolate with its own heap. A nil config uses
// DefaultConfig.
func NewIsolate(cfg *EngineConfig) *Isolate {
	if cfg == nil {
		cfg = DefaultConfig()
	} else {
		cfg.applyDefaults()
	}
	return &Isolate{
		heap:     NewHeap(cfg.Heap),
		config:   cfg,
		contexts: make(map[string]*Context),
	}
}

// Heap returns the isolate's heap.
func (iso *Isolate) Heap() *Heap { return iso.heap }

// ContextCount returns the number of live contexts.
func (iso *Isolate) ContextCount() int { return len(iso.contexts) }

// NewContext creates a context backed by this isolate's heap. It fails once
// the configured context cap is reached.
func (iso *Isolate) NewContext(backend CompilerBackend) (*Context, error) {
	if len(iso.contexts) >= iso.config.MaxContexts {
		return nil, NewError(ErrOutOfMemory,
			"isolate context limit reached (%d)", iso.config.MaxContexts)
	}
	realm, err := NewRealm(iso.heap)
	if err != nil {
		return nil, err
	}
	ctx := &Context{
		id:      uuid.New().String(),
		isolate: iso,
		realm:   realm,
		backend: backend,
		interp:  NewInterpreter(iso.heap, realm, iso.config.Interpreter),
		loop:    eventloop.NewLoop(loopOptions(iso.config.EventLoop)),
	}
	iso.contexts[ctx.id] = ctx
	return ctx, nil
}

// DisposeContext detaches a context from the isolate, unrooting its realm.
func (iso *Isolate) DisposeContext(ctx *Context) {
	if _, ok := iso.contexts[ctx.id]; !ok {
		return
	}
	delete(iso.contexts, ctx.id)
	iso.heap.RemoveRoot(ctx.realm.global)
}

func loopOptions(cfg *EventLoopConfig) eventloop.Options {
	return eventloop.Options{
		FrameInterval:         cfg.FrameInterval(),
		MaxMicrotasksPerCycle: cfg.MaxMicrotasksPerCycle,
		LongTaskThreshold:     cfg.LongTaskThreshold(),
		IdleBudget:            cfg.IdleBudget(),
	}
}

// ---------------------------------------------------------------------------
// Context: one compiler + interpreter + realm
// ---------------------------------------------------------------------------

// CompilerBackend turns source text into compiled functions. The compiler
// package provides the production implementation; the indirection keeps vm
// free of a dependency on its own front end.
type CompilerBackend interface {
	Compile(source string) (*CompiledFunction, error)
	CompileExpression(source string) (*CompiledFunction, error)
}

// Context aggregates one compiler backend, one interpreter, and one realm.
type Context struct {
	id      string
	isolate *Isolate
	realm   *Realm
	backend CompilerBackend
	interp  *Interpreter
	loop    *eventloop.Loop
}

// ID returns the context's unique identifier.
func (c *Context) ID() string { return c.id }

// Realm returns the context's realm, the hook point for host bindings.
func (c *Context) Realm() *Realm { return c.realm }

// Interpreter returns the context's interpreter.
func (c *Context) Interpreter() *Interpreter { return c.interp }

// Loop returns the context's event loop.
func (c *Context) Loop() *eventloop.Loop { return c.loop }

// Result is the outcome of an Execute call. Failures are returned here, not
// thrown across the boundary.
type Result struct {
	Success bool
	Value   Value
	Err     error
	Elapsed time.Duration
}

// Compile compiles source text to a compiled function without running it.
func (c *Context) Compile(source string) (*CompiledFunction, error) {
	return c.backend.Compile(source)
}

// Execute compiles and runs source text. Compile and runtime errors come
// back as a failed Result; they never corrupt the context, and a subsequent
// Execute with valid input still succeeds.
func (c *Context) Execute(source string) *Result {
	start := time.Now()
	fn, err := c.backend.Compile(source)
	if err != nil {
		return &Result{Err: err, Elapsed: time.Since(start)}
	}
	value, err := c.interp.ExecuteFunction(fn)
	if err != nil {
		return &Result{Err: err, Elapsed: time.Since(start)}
	}
	return &Result{Success: true, Value: value, Elapsed: time.Since(start)}
}

// ExecuteFunction runs an already-compiled function in this context.
func (c *Context) ExecuteFunction(fn *CompiledFunction) (Value, error) {
	return c.interp.ExecuteFunction(fn)
}

// Evaluate compiles and runs a single expression, returning its value. It is
// the one entry point that propagates the error instead of wrapping it.
func (c *Context) Evaluate(source string) (Value, error) {
	fn, err := c.backend.CompileExpression(source)
	if err != nil {
		return Undefined, err
	}
	return c.interp.ExecuteFunction(fn)
}

// Root registers a heap id this context holds externally.
func (c *Context) Root(id uint64) { c.isolate.heap.AddRoot(id) }

// Unroot drops an external root registration.
func (c *Context) Unroot(id uint64) { c.isolate.heap.RemoveRoot(id) }

// GC runs whichever collectors current occupancy calls for.
func (c *Context) GC() { c.isolate.heap.GC() }

// ForceGC runs a specific collector unconditionally.
func (c *Context) ForceGC(kind GCKind) { c.isolate.heap.ForceGC(kind) }

// CallbackFor wraps a script function value as an event-loop callback. The
// invocation error, if any, is logged; it never propagates into the loop.
func (c *Context) CallbackFor(fn Value, args ...Value) func() {
	f := fn.Function()
	return func() {
		if f == nil {
			ctxLog.Errorf("scheduled callback is not a function: %s", fn)
			return
		}
		if _, err := c.interp.CallFunction(f, Undefined, args); err != nil {
			ctxLog.Errorf("scheduled callback %q failed: %s", f.Name, err)
		}
	}
}
