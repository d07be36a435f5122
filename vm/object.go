package vm

// ---------------------------------------------------------------------------
// Object: Prototype-based object record
// ---------------------------------------------------------------------------

// maxPrototypeDepth bounds prototype-chain walks. The chain is host-mutable,
// so a cycle is representable; walks that exceed the bound fail instead of
// looping forever.
const maxPrototypeDepth = 1000

// PropertyKey is a string or symbol property name. Exactly one of Name/Sym
// is meaningful; a nil Sym means a string key.
type PropertyKey struct {
	Name string
	Sym  *Symbol
}

// StringKey makes a string property key.
func StringKey(name string) PropertyKey {
	return PropertyKey{Name: name}
}

// SymbolKey makes a symbol property key.
func SymbolKey(sym *Symbol) PropertyKey {
	return PropertyKey{Sym: sym}
}

// KeyFor converts a runtime value into a property key. Symbols key by
// identity; everything else keys by its string form.
func KeyFor(v Value) PropertyKey {
	if v.IsSymbol() {
		return SymbolKey(v.Symbol())
	}
	return StringKey(v.ToStringValue())
}

func (k PropertyKey) String() string {
	if k.Sym != nil {
		return "Symbol(" + k.Sym.Description + ")"
	}
	return k.Name
}

// Object is a heap-resident record: an insertion-ordered property map, a
// single prototype link, and an extensibility flag.
type Object struct {
	keys       []PropertyKey
	properties map[PropertyKey]Value
	Proto      *Object
	Extensible bool

	// heapID is the owning heap's identifier for this record, 0 if the
	// record is not heap-tracked.
	heapID uint64
}

// NewObject creates an empty, extensible object with the given prototype.
func NewObject(proto *Object) *Object {
	return &Object{
		properties: make(map[PropertyKey]Value),
		Proto:      proto,
		Extensible: true,
	}
}

// HeapID returns the heap identifier assigned at allocation time, 0 if none.
func (o *Object) HeapID() uint64 { return o.heapID }

// PropertyCount returns the number of own properties.
func (o *Object) PropertyCount() int { return len(o.keys) }

// Keys returns the own property keys in insertion order.
func (o *Object) Keys() []PropertyKey {
	out := make([]PropertyKey, len(o.keys))
	copy(out, o.keys)
	return out
}

// GetOwn returns an own property, without walking the prototype chain.
func (o *Object) GetOwn(key PropertyKey) (Value, bool) {
	v, ok := o.properties[key]
	return v, ok
}

// Get looks key up on o, walking the prototype chain. The second result is
// false when the property is absent (including when the walk exceeds the
// depth bound).
func (o *Object) Get(key PropertyKey) (Value, bool) {
	cur := o
	for depth := 0; cur != nil && depth < maxPrototypeDepth; depth++ {
		if v, ok := cur.properties[key]; ok {
			return v, true
		}
		cur = cur.Proto
	}
	return Undefined, false
}

// Has reports whether key is present on o or its prototype chain.
func (o *Object) Has(key PropertyKey) bool {
	_, ok := o.Get(key)
	return ok
}

// Set writes an own property. A write to a non-extensible object fails
// (returns false) unless the key already exists.
func (o *Object) Set(key PropertyKey, v Value) bool {
	if _, exists := o.properties[key]; !exists {
		if !o.Extensible {
			return false
		}
		o.keys = append(o.keys, key)
	}
	o.properties[key] = v
	return true
}

// Delete removes an own property, reporting whether it was present.
func (o *Object) Delete(key PropertyKey) bool {
	if _, ok := o.properties[key]; !ok {
		return false
	}
	delete(o.properties, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
	return true
}

// PreventExtensions clears the extensible flag. Existing properties remain
// writable.
func (o *Object) PreventExtensions() {
	o.Extensible = false
}

// ---------------------------------------------------------------------------
// Property access on values
// ---------------------------------------------------------------------------

// GetProperty reads a property from a value. Only object and function
// variants carry properties; every other variant answers (undefined, false).
func GetProperty(v Value, key PropertyKey) (Value, bool) {
	obj := v.Object()
	if obj == nil {
		return Undefined, false
	}
	return obj.Get(key)
}

// SetProperty writes a property on a value, reporting success. Non-object
// variants reject all writes.
func SetProperty(v Value, key PropertyKey, val Value) bool {
	obj := v.Object()
	if obj == nil {
		return false
	}
	return obj.Set(key, val)
}

// HasProperty reports property presence on a value.
func HasProperty(v Value, key PropertyKey) bool {
	obj := v.Object()
	if obj == nil {
		return false
	}
	return obj.Has(key)
}

// DeleteProperty removes an own property from a value.
func DeleteProperty(v Value, key PropertyKey) bool {
	obj := v.Object()
	if obj == nil {
		return false
	}
	return obj.Delete(key)
}

// ---------------------------------------------------------------------------
// Function: Callable object record
// ---------------------------------------------------------------------------

// NativeFunc is a host-provided callable. The engine imposes no restriction
// on what it does, only that it returns a Value (or an error, surfaced as a
// failed execution).
type NativeFunc func(interp *Interpreter, this Value, args []Value) (Value, error)

// Function extends Object with callable state: either a compiled body or a
// native callback, plus the lexical scope captured at closure creation.
// Scope is nil for the top-level function and for natives.
type Function struct {
	Object
	Name       string
	ParamCount int
	Compiled   *CompiledFunction
	Native     NativeFunc
	Scope      *Environment
}

// NewClosure creates a function record over a compiled body and its
// captured scope.
func NewClosure(fn *CompiledFunction, scope *Environment) *Function {
	f := &Function{
		Name:       fn.Name,
		ParamCount: fn.ParameterCount,
		Compiled:   fn,
		Scope:      scope,
	}
	f.properties = make(map[PropertyKey]Value)
	f.Extensible = true
	return f
}

// NewNativeFunction wraps a host callback as a function record.
func NewNativeFunction(name string, paramCount int, native NativeFunc) *Function {
	f := &Function{
		Name:       name,
		ParamCount: paramCount,
		Native:     native,
	}
	f.properties = make(map[PropertyKey]Value)
	f.Extensible = true
	return f
}

// IsNative reports whether the function is host-implemented.
func (f *Function) IsNative() bool { return f.Native != nil }
