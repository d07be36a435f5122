package vm

import (
	"time"
)

// ---------------------------------------------------------------------------
// Heap: Pages, spaces, and the generational allocator
// ---------------------------------------------------------------------------

// Generation tags a heap object's age.
type Generation int

const (
	GenYoung Generation = 0
	GenOld   Generation = 1
)

// Color is the tri-color state used during mark traversal.
type Color int

const (
	ColorWhite Color = iota
	ColorGray
	ColorBlack
)

// DefaultPageSize is the bump-allocation granularity of a memory page.
const DefaultPageSize = 256 * 1024

// largeObjectThreshold routes oversized allocations to the large-object
// space instead of the young generation.
const largeObjectThreshold = 256 * 1024

// HeapObject wraps a runtime value with GC metadata.
type HeapObject struct {
	ID         uint64
	Value      Value
	Size       int
	Generation Generation
	Marked     bool
	Color      Color

	space *Space // owning space
}

// Page is a fixed-capacity bump allocator.
type Page struct {
	ID        int
	Capacity  int
	Allocated int
	Objects   []*HeapObject
}

// HasRoom reports whether size more bytes fit on the page.
func (p *Page) HasRoom(size int) bool {
	return p.Allocated+size <= p.Capacity
}

// place bump-allocates an object onto the page.
func (p *Page) place(obj *HeapObject) {
	p.Objects = append(p.Objects, obj)
	p.Allocated += obj.Size
}

// Space is an ordered sequence of pages bounded by a byte cap.
type Space struct {
	Name     string
	MaxBytes int
	PageSize int
	Pages    []*Page

	nextPageID int
}

// NewSpace creates an empty space.
func NewSpace(name string, maxBytes, pageSize int) *Space {
	return &Space{Name: name, MaxBytes: maxBytes, PageSize: pageSize}
}

// Allocated returns the space's live byte count.
func (s *Space) Allocated() int {
	total := 0
	for _, p := range s.Pages {
		total += p.Allocated
	}
	return total
}

// CanFit reports whether size more bytes fit under the space's cap.
func (s *Space) CanFit(size int) bool {
	return s.Allocated()+size <= s.MaxBytes
}

// place appends obj to the last page with room, opening a new page when
// needed. Callers check CanFit first.
func (s *Space) place(obj *HeapObject) {
	if n := len(s.Pages); n > 0 && s.Pages[n-1].HasRoom(obj.Size) {
		s.Pages[n-1].place(obj)
		return
	}
	cap := s.PageSize
	if obj.Size > cap {
		cap = obj.Size
	}
	page := &Page{ID: s.nextPageID, Capacity: cap}
	s.nextPageID++
	page.place(obj)
	s.Pages = append(s.Pages, page)
}

// remove drops obj from its page, reversing its byte accounting.
func (s *Space) remove(obj *HeapObject) {
	for _, p := range s.Pages {
		for i, o := range p.Objects {
			if o == obj {
				p.Objects = append(p.Objects[:i], p.Objects[i+1:]...)
				p.Allocated -= obj.Size
				return
			}
		}
	}
}

// reset discards all pages.
func (s *Space) reset() {
	s.Pages = nil
}

// compact drops fully empty pages.
func (s *Space) compact() {
	kept := s.Pages[:0]
	for _, p := range s.Pages {
		if len(p.Objects) > 0 {
			kept = append(kept, p)
		}
	}
	s.Pages = kept
}

// ObjectCount returns the number of objects resident in the space.
func (s *Space) ObjectCount() int {
	n := 0
	for _, p := range s.Pages {
		n += len(p.Objects)
	}
	return n
}

// ---------------------------------------------------------------------------
// Heap
// ---------------------------------------------------------------------------

// HeapStats accumulates allocation and collection counters.
type HeapStats struct {
	BytesAllocated   int
	ObjectsAllocated uint64
	ScavengeCount    uint64
	MarkSweepCount   uint64
	ObjectsCollected uint64
	BytesReclaimed   int
	ObjectsPromoted  uint64
	LastGCDuration   time.Duration
	TotalGCTime      time.Duration
}

// Heap owns the generational spaces, the object table, and the root set.
// One heap belongs to exactly one isolate; all access happens on the one
// logical thread that drains the event loop, so the heap takes no locks.
type Heap struct {
	young *Space
	old   *Space
	code  *Space
	large *Space

	objects map[uint64]*HeapObject
	// roots maps object id to a registration count, so two holders of the
	// same id can root and unroot independently.
	roots map[uint64]int

	gcTriggerRatio float64
	nextID         uint64
	stats          HeapStats
}

// NewHeap creates a heap with the given configuration.
func NewHeap(cfg *HeapConfig) *Heap {
	if cfg == nil {
		cfg = DefaultConfig().Heap
	}
	return &Heap{
		young:          NewSpace("young", cfg.YoungCapacity, cfg.PageSize),
		old:            NewSpace("old", cfg.OldCapacity, cfg.PageSize),
		code:           NewSpace("code", cfg.CodeCapacity, cfg.PageSize),
		large:          NewSpace("large", cfg.LargeCapacity, cfg.PageSize),
		objects:        make(map[uint64]*HeapObject),
		roots:          make(map[uint64]int),
		gcTriggerRatio: cfg.GCTriggerRatio,
		nextID:         1,
	}
}

// ObjectCount returns the number of live heap objects.
func (h *Heap) ObjectCount() int { return len(h.objects) }

// Stats returns a copy of the cumulative statistics.
func (h *Heap) Stats() HeapStats { return h.stats }

// Lookup returns the heap object with the given id, or nil.
func (h *Heap) Lookup(id uint64) *HeapObject { return h.objects[id] }

// sizeOf estimates a value's byte cost: fixed for primitives, proportional
// to length for strings, proportional to property count for objects.
func sizeOf(v Value) int {
	switch v.Kind() {
	case KindString:
		return 16 + len(v.Str())
	case KindBigInt:
		return 16 + len(v.BigInt().Bytes())
	case KindObject:
		return 32 + 16*v.Object().PropertyCount()
	case KindFunction:
		fn := v.Function()
		size := 64 + 16*fn.PropertyCount()
		if fn.Compiled != nil {
			size += len(fn.Compiled.Bytecode)
		}
		return size
	default:
		return 16
	}
}

// Allocate places a value on the heap and returns its object id. Allocations
// above the large-object threshold go to the large-object space; everything
// else starts in the young generation. A full target space triggers one
// collection of its generation and one retry; a second failure is fatal
// out-of-memory.
func (h *Heap) Allocate(v Value) (uint64, error) {
	size := sizeOf(v)

	space := h.young
	gen := GenYoung
	switch {
	case size >= largeObjectThreshold:
		space = h.large
		gen = GenOld
	case v.IsFunction() && v.Function().Compiled != nil:
		// Compiled code is long-lived; it skips the young generation.
		space = h.code
		gen = GenOld
	}

	if !space.CanFit(size) {
		if space == h.young {
			h.Scavenge()
		} else {
			h.MarkSweep()
		}
		if !space.CanFit(size) {
			return 0, NewError(ErrOutOfMemory,
				"allocation of %d bytes exceeds %s space capacity %d",
				size, space.Name, space.MaxBytes)
		}
	}

	obj := &HeapObject{
		ID:         h.nextID,
		Value:      v,
		Size:       size,
		Generation: gen,
		space:      space,
	}
	h.nextID++
	space.place(obj)
	h.objects[obj.ID] = obj

	if rec := v.Object(); rec != nil {
		rec.heapID = obj.ID
	}

	h.stats.ObjectsAllocated++
	h.stats.BytesAllocated += size
	return obj.ID, nil
}

// AddRoot registers an id as always-reachable. Registrations nest.
func (h *Heap) AddRoot(id uint64) {
	if id == 0 {
		return
	}
	h.roots[id]++
}

// RemoveRoot drops one registration of an id.
func (h *Heap) RemoveRoot(id uint64) {
	if id == 0 {
		return
	}
	if h.roots[id] <= 1 {
		delete(h.roots, id)
	} else {
		h.roots[id]--
	}
}

// IsRooted reports whether an id is currently registered as a root.
func (h *Heap) IsRooted(id uint64) bool {
	return h.roots[id] > 0
}

// YoungOccupancy returns the young generation's fill ratio.
func (h *Heap) YoungOccupancy() float64 {
	if h.young.MaxBytes == 0 {
		return 0
	}
	return float64(h.young.Allocated()) / float64(h.young.MaxBytes)
}

// OldOccupancy returns the old generation's fill ratio.
func (h *Heap) OldOccupancy() float64 {
	if h.old.MaxBytes == 0 {
		return 0
	}
	return float64(h.old.Allocated()) / float64(h.old.MaxBytes)
}
