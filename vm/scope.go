package vm

// ---------------------------------------------------------------------------
// Environment records and the realm
// ---------------------------------------------------------------------------

// EnvKind identifies the four environment-record flavors.
type EnvKind int

const (
	EnvDeclarative EnvKind = iota
	EnvObject
	EnvFunction
	EnvGlobal
)

// binding is one slot in an environment record. Declarative and function
// records track mutability and initialization; object-backed bindings are
// always mutable and initialized.
type binding struct {
	value       Value
	mutable     bool
	initialized bool
}

// Environment is one node of the static scope chain.
type Environment struct {
	Kind  EnvKind
	Outer *Environment

	names map[string]int
	slots []*binding
	order []string

	// backing is the realm's global object for object/global records;
	// host-installed properties on it are visible as bindings.
	backing *Object

	// heap, when set, makes the record register its object-valued bindings
	// as GC roots for as long as they are held.
	heap *Heap
}

// NewEnvironment creates a declarative-style record chained to outer.
func NewEnvironment(kind EnvKind, outer *Environment, heap *Heap) *Environment {
	return &Environment{
		Kind:  kind,
		Outer: outer,
		names: make(map[string]int),
		heap:  heap,
	}
}

// NewObjectEnvironment creates a record whose bindings are the properties of
// a backing object.
func NewObjectEnvironment(backing *Object, outer *Environment, heap *Heap) *Environment {
	env := NewEnvironment(EnvObject, outer, heap)
	env.backing = backing
	return env
}

// Declare introduces a binding. Kind var is mutable and immediately
// initialized to undefined; let is mutable but uninitialized; const is
// immutable and uninitialized. Redeclaration reuses the existing slot.
func (e *Environment) Declare(name string, kind BindingKind) int {
	if idx, ok := e.names[name]; ok {
		return idx
	}
	b := &binding{
		mutable:     kind != BindConst,
		initialized: kind == BindVar,
		value:       Undefined,
	}
	idx := len(e.slots)
	e.slots = append(e.slots, b)
	e.names[name] = idx
	e.order = append(e.order, name)
	return idx
}

// Initialize performs the one-time initializing store of a binding.
func (e *Environment) Initialize(name string, v Value) {
	idx, ok := e.names[name]
	if !ok {
		idx = e.Declare(name, BindVar)
	}
	e.setSlot(idx, v, true)
}

// setSlot stores into a slot, maintaining GC root accounting.
func (e *Environment) setSlot(idx int, v Value, initializing bool) {
	b := e.slots[idx]
	if e.heap != nil {
		if old := b.value.Object(); old != nil {
			e.heap.RemoveRoot(old.heapID)
		}
		if rec := v.Object(); rec != nil {
			e.heap.AddRoot(rec.heapID)
		}
	}
	b.value = v
	if initializing {
		b.initialized = true
	}
}

// release unroots everything the record's slots hold and stops further root
// accounting. Called when the owning activation pops; from then on a record
// captured by a closure is traced through the closure rather than rooted.
func (e *Environment) release() {
	if e.heap == nil {
		return
	}
	for _, b := range e.slots {
		if rec := b.value.Object(); rec != nil {
			e.heap.RemoveRoot(rec.heapID)
		}
	}
	e.heap = nil
}

// GetSlot reads a slot by index (context-slot addressing).
func (e *Environment) GetSlot(idx int) (Value, error) {
	if idx < 0 || idx >= len(e.slots) {
		return Undefined, NewError(ErrNotDefined, "context slot %d out of range", idx)
	}
	b := e.slots[idx]
	if !b.initialized {
		return Undefined, NewError(ErrAccessBeforeInit,
			"cannot access '%s' before initialization", e.order[idx])
	}
	return b.value, nil
}

// SetSlot writes a slot by index. An uninitialized slot is initialized by
// its first store; a later store to an immutable slot fails under strict
// mode.
func (e *Environment) SetSlot(idx int, v Value, strict bool) error {
	if idx < 0 || idx >= len(e.slots) {
		return NewError(ErrNotDefined, "context slot %d out of range", idx)
	}
	b := e.slots[idx]
	if b.initialized && !b.mutable {
		if strict {
			return NewError(ErrAssignToConst,
				"assignment to constant variable '%s'", e.order[idx])
		}
		return nil
	}
	e.setSlot(idx, v, true)
	return nil
}

// At walks depth outer links and returns the record there.
func (e *Environment) At(depth int) *Environment {
	env := e
	for i := 0; i < depth && env != nil; i++ {
		env = env.Outer
	}
	return env
}

// lookup finds a name in this record only.
func (e *Environment) lookup(name string) (*binding, bool) {
	if idx, ok := e.names[name]; ok {
		return e.slots[idx], true
	}
	return nil, false
}

// Resolve walks from this record outward and returns the first matching
// binding's value. An unresolved name is a NotDefined error; an
// uninitialized binding is an AccessBeforeInit error.
func (e *Environment) Resolve(name string) (Value, error) {
	for env := e; env != nil; env = env.Outer {
		if b, ok := env.lookup(name); ok {
			if !b.initialized {
				return Undefined, NewError(ErrAccessBeforeInit,
					"cannot access '%s' before initialization", name)
			}
			return b.value, nil
		}
		if env.backing != nil {
			if v, ok := env.backing.Get(StringKey(name)); ok {
				return v, nil
			}
		}
	}
	return Undefined, NewError(ErrNotDefined, "%s is not defined", name)
}

// Has reports whether name resolves anywhere on the chain.
func (e *Environment) Has(name string) bool {
	for env := e; env != nil; env = env.Outer {
		if _, ok := env.lookup(name); ok {
			return true
		}
		if env.backing != nil && env.backing.Has(StringKey(name)) {
			return true
		}
	}
	return false
}

// Assign walks from this record outward and mutates the first matching
// binding. Assigning an uninitialized binding is an AccessBeforeInit error;
// assigning an initialized immutable binding is an AssignToConst error when
// strict is set.
func (e *Environment) Assign(name string, v Value, strict bool) error {
	for env := e; env != nil; env = env.Outer {
		if idx, ok := env.names[name]; ok {
			b := env.slots[idx]
			if !b.initialized {
				return NewError(ErrAccessBeforeInit,
					"cannot access '%s' before initialization", name)
			}
			if !b.mutable {
				if strict {
					return NewError(ErrAssignToConst,
						"assignment to constant variable '%s'", name)
				}
				return nil
			}
			env.setSlot(idx, v, false)
			return nil
		}
		if env.backing != nil && env.backing.Has(StringKey(name)) {
			env.backing.Set(StringKey(name), v)
			return nil
		}
	}
	return NewError(ErrNotDefined, "%s is not defined", name)
}

// AssignOrInitialize is the store used by named-slot bytecode, where
// initializing stores and re-assignments share one instruction: the first
// store to an uninitialized binding initializes it, later stores follow the
// Assign rules.
func (e *Environment) AssignOrInitialize(name string, v Value, strict bool) error {
	for env := e; env != nil; env = env.Outer {
		if idx, ok := env.names[name]; ok {
			b := env.slots[idx]
			if b.initialized && !b.mutable {
				if strict {
					return NewError(ErrAssignToConst,
						"assignment to constant variable '%s'", name)
				}
				return nil
			}
			env.setSlot(idx, v, true)
			return nil
		}
		if env.backing != nil && env.backing.Has(StringKey(name)) {
			env.backing.Set(StringKey(name), v)
			return nil
		}
	}
	return NewError(ErrNotDefined, "%s is not defined", name)
}

// bindingValues returns the values held by this record, for GC tracing.
func (e *Environment) bindingValues() []Value {
	out := make([]Value, 0, len(e.slots))
	for _, b := range e.slots {
		out = append(out, b.value)
	}
	return out
}

// ---------------------------------------------------------------------------
// Realm: global object plus its global environment
// ---------------------------------------------------------------------------

// Realm pairs a global object with the hybrid global environment record: a
// declarative sub-record for lexical globals layered over an object record
// backed by the global object, so host-installed properties read as globals.
type Realm struct {
	GlobalObject *Object
	GlobalEnv    *Environment

	heap   *Heap
	global uint64 // heap id of the global object
}

// NewRealm creates a realm whose global object lives on (and is rooted in)
// the given heap.
func NewRealm(heap *Heap) (*Realm, error) {
	globalObj := NewObject(nil)
	id, err := heap.Allocate(FromObject(globalObj))
	if err != nil {
		return nil, err
	}
	heap.AddRoot(id)

	objEnv := NewObjectEnvironment(globalObj, nil, heap)
	globalEnv := NewEnvironment(EnvGlobal, objEnv, heap)

	return &Realm{
		GlobalObject: globalObj,
		GlobalEnv:    globalEnv,
		heap:         heap,
		global:       id,
	}, nil
}

// Install writes a host capability onto the global object. External layers
// use this to expose native objects and functions before scripts run.
func (r *Realm) Install(name string, v Value) {
	r.GlobalObject.Set(StringKey(name), v)
}

// InstallFunction wraps a native callback and installs it under name.
func (r *Realm) InstallFunction(name string, paramCount int, fn NativeFunc) error {
	rec := NewNativeFunction(name, paramCount, fn)
	if _, err := r.heap.Allocate(FromFunction(rec)); err != nil {
		return err
	}
	r.Install(name, FromFunction(rec))
	return nil
}

// Declare introduces a global binding. Lexical declarations (let/const) go
// to the declarative sub-record; var-style bindings go straight onto the
// global object so they are host-visible.
func (r *Realm) Declare(name string, kind BindingKind) {
	if kind == BindVar {
		if !r.GlobalObject.Has(StringKey(name)) {
			r.GlobalObject.Set(StringKey(name), Undefined)
		}
		return
	}
	r.GlobalEnv.Declare(name, kind)
}
