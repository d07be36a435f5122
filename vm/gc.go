package vm

import (
	"time"

	"github.com/tliron/commonlog"
)

var gcLog = commonlog.GetLogger("petrel.gc")

// ---------------------------------------------------------------------------
// Garbage collection: scavenge (young) and mark-sweep (old)
// ---------------------------------------------------------------------------

// GCKind selects a collector for ForceGC.
type GCKind int

const (
	GCScavenge GCKind = iota
	GCMarkSweep
)

// GC runs whichever collectors their generations' occupancy calls for:
// scavenge past the young trigger ratio, mark-sweep past the old one.
func (h *Heap) GC() {
	if h.YoungOccupancy() > h.gcTriggerRatio {
		h.Scavenge()
	}
	if h.OldOccupancy() > h.gcTriggerRatio {
		h.MarkSweep()
	}
}

// ForceGC runs a specific collector unconditionally.
func (h *Heap) ForceGC(kind GCKind) {
	switch kind {
	case GCScavenge:
		h.Scavenge()
	case GCMarkSweep:
		h.MarkSweep()
	}
}

// markFromRoots colors every object reachable from the root set black,
// following child references depth-first through gray.
func (h *Heap) markFromRoots() {
	for _, obj := range h.objects {
		obj.Marked = false
		obj.Color = ColorWhite
	}

	var gray []*HeapObject
	for id := range h.roots {
		if obj, ok := h.objects[id]; ok && obj.Color == ColorWhite {
			obj.Color = ColorGray
			gray = append(gray, obj)
		}
	}

	for len(gray) > 0 {
		obj := gray[len(gray)-1]
		gray = gray[:len(gray)-1]
		obj.Color = ColorBlack
		obj.Marked = true

		for _, childID := range h.childrenOf(obj.Value) {
			if child, ok := h.objects[childID]; ok && child.Color == ColorWhite {
				child.Color = ColorGray
				gray = append(gray, child)
			}
		}
	}
}

// childrenOf returns the heap ids referenced by a value: object and function
// property values, the prototype link, and a closure's captured scope chain.
func (h *Heap) childrenOf(v Value) []uint64 {
	rec := v.Object()
	if rec == nil {
		return nil
	}
	var ids []uint64
	appendRef := func(val Value) {
		if child := val.Object(); child != nil && child.heapID != 0 {
			ids = append(ids, child.heapID)
		}
	}

	for _, key := range rec.Keys() {
		if pv, ok := rec.GetOwn(key); ok {
			appendRef(pv)
		}
	}
	if rec.Proto != nil && rec.Proto.heapID != 0 {
		ids = append(ids, rec.Proto.heapID)
	}
	if fn := v.Function(); fn != nil {
		for env := fn.Scope; env != nil; env = env.Outer {
			for _, bv := range env.bindingValues() {
				appendRef(bv)
			}
		}
	}
	return ids
}

// Scavenge collects the young generation: every marked or rooted young
// object is promoted to the old generation (generation flips, marks clear);
// unmarked young objects are discarded; the young space is then fully reset.
func (h *Heap) Scavenge() {
	start := time.Now()
	h.markFromRoots()

	var promoted []*HeapObject
	collected := 0
	reclaimed := 0
	for id, obj := range h.objects {
		if obj.Generation != GenYoung {
			obj.Marked = false
			obj.Color = ColorWhite
			continue
		}
		if obj.Marked || h.IsRooted(id) {
			promoted = append(promoted, obj)
		} else {
			delete(h.objects, id)
			collected++
			reclaimed += obj.Size
		}
	}

	h.young.reset()
	for _, obj := range promoted {
		obj.Generation = GenOld
		obj.Marked = false
		obj.Color = ColorWhite
		obj.space = h.old
		h.old.place(obj)
	}

	elapsed := time.Since(start)
	h.stats.ScavengeCount++
	h.stats.ObjectsCollected += uint64(collected)
	h.stats.BytesReclaimed += reclaimed
	h.stats.ObjectsPromoted += uint64(len(promoted))
	h.stats.LastGCDuration = elapsed
	h.stats.TotalGCTime += elapsed

	gcLog.Debugf("scavenge: promoted=%d collected=%d reclaimed=%dB in %s",
		len(promoted), collected, reclaimed, elapsed)
}

// MarkSweep collects the old generation: unmarked old objects are discarded
// and their byte accounting reversed; survivors have their marks cleared;
// empty pages are dropped.
func (h *Heap) MarkSweep() {
	start := time.Now()
	h.markFromRoots()

	collected := 0
	reclaimed := 0
	for id, obj := range h.objects {
		if obj.Generation != GenOld {
			continue
		}
		if obj.Marked || h.IsRooted(id) {
			obj.Marked = false
			obj.Color = ColorWhite
			continue
		}
		obj.space.remove(obj)
		delete(h.objects, id)
		collected++
		reclaimed += obj.Size
	}
	h.old.compact()
	h.large.compact()
	h.code.compact()

	elapsed := time.Since(start)
	h.stats.MarkSweepCount++
	h.stats.ObjectsCollected += uint64(collected)
	h.stats.BytesReclaimed += reclaimed
	h.stats.LastGCDuration = elapsed
	h.stats.TotalGCTime += elapsed

	gcLog.Debugf("mark-sweep: collected=%d reclaimed=%dB in %s",
		collected, reclaimed, elapsed)
}
