package obj

const gcHeapGrowFactor = 2

// RootMarker is implemented by whichever phase is currently driving
// allocation — the compiler while compiling, the machine while running —
// and is consulted by the Heap whenever a collection is triggered. The
// dependency is explicit and swapped in by the active phase rather than
// reached through a process-global VM, per the single-threaded,
// one-phase-at-a-time execution model: compilation and execution never run
// concurrently, so a single field suffices.
type RootMarker interface {
	MarkRoots(h *Heap)
}

// Heap is the memory manager: allocation accounting, the string intern set,
// the intrusive list of every live object, and the tri-color mark-sweep
// collector. A collection runs when the stress flag is set or when
// bytesAllocated exceeds nextGC, which is itself recomputed after every
// collection as bytesAllocated*gcHeapGrowFactor.
type Heap struct {
	Roots    RootMarker
	StressGC bool

	objects        Object
	strings        Table
	bytesAllocated int
	nextGC         int
	gray           []Object
}

// NewHeap returns an initialized Heap with the default collection threshold.
func NewHeap() *Heap {
	return &Heap{nextGC: 1 << 20}
}

// BytesAllocated reports the current accounted heap size.
func (h *Heap) BytesAllocated() int { return h.bytesAllocated }

// Intern returns the canonical *String for chars, allocating and
// registering one if no String with this content exists yet.
func (h *Heap) Intern(chars string) *String {
	hash := hashFNV1a(chars)
	if s := h.strings.FindString(chars, hash); s != nil {
		return s
	}
	s := &String{Chars: chars, hash: hash}
	h.register(s, len(chars)+16)
	h.strings.Set(s, NilVal)
	return s
}

// Concat allocates the interned concatenation of a and b, used by OP_ADD
// when both operands are strings.
func (h *Heap) Concat(a, b *String) *String {
	return h.Intern(a.Chars + b.Chars)
}

// NewFunction allocates an empty Function of the given kind and arity.
func (h *Heap) NewFunction(name *String, kind FunctionKind) *Function {
	fn := &Function{Name: name, Kind: kind}
	h.register(fn, 64)
	return fn
}

// NewClosure allocates a Closure wrapping fn with room for its upvalues.
func (h *Heap) NewClosure(fn *Function) *Closure {
	cl := &Closure{Function: fn, Upvalues: make([]*Upvalue, fn.UpvalueCount)}
	h.register(cl, 32+8*fn.UpvalueCount)
	return cl
}

// NewUpvalue allocates an open Upvalue pointing at location.
func (h *Heap) NewUpvalue(location *Value) *Upvalue {
	u := &Upvalue{Location: location}
	h.register(u, 24)
	return u
}

// NewNative allocates a Native wrapping fn.
func (h *Heap) NewNative(name string, fn func([]Value) (Value, error)) *Native {
	n := &Native{Name: name, Fn: fn}
	h.register(n, 32)
	return n
}

// NewClass allocates a Class with an empty method table.
func (h *Heap) NewClass(name *String) *Class {
	c := &Class{Name: name}
	h.register(c, 48)
	return c
}

// NewInstance allocates an Instance of class with an empty field table.
func (h *Heap) NewInstance(class *Class) *Instance {
	i := &Instance{Class: class}
	h.register(i, 48)
	return i
}

// NewBoundMethod allocates a BoundMethod of receiver and method.
func (h *Heap) NewBoundMethod(receiver Value, method *Closure) *BoundMethod {
	b := &BoundMethod{Receiver: receiver, Method: method}
	h.register(b, 32)
	return b
}

// register accounts for o's size, triggers a collection if warranted, and
// then links o into the intrusive object list. Linking after the collection
// keeps the new, not yet rooted object from being swept by its own
// allocation.
func (h *Heap) register(o Object, size int) {
	hdr := o.header()
	hdr.size = size
	h.bytesAllocated += size

	if h.StressGC || h.bytesAllocated > h.nextGC {
		h.Collect()
	}

	hdr.next = h.objects
	h.objects = o
}

// Collect runs a full mark-sweep cycle: mark roots (via Roots, if set),
// trace gray objects to black, sweep the intern set of unmarked (i.e. now
// unreachable) strings, sweep the object list of unmarked objects, and
// raise the collection threshold.
func (h *Heap) Collect() {
	if h.Roots != nil {
		h.Roots.MarkRoots(h)
	}
	h.traceReferences()
	h.strings.sweepUnmarked()
	h.sweepObjects()
	h.nextGC = h.bytesAllocated * gcHeapGrowFactor
	if h.nextGC == 0 {
		h.nextGC = 1 << 20
	}
}

// MarkValue grays v if it is a heap Object; unboxed values (Nil, Bool,
// Number) need no marking.
func (h *Heap) MarkValue(v Value) { h.markValue(v) }

func (h *Heap) markValue(v Value) {
	if o, ok := v.(Object); ok {
		h.markObject(o)
	}
}

// MarkObject grays o if it is not already marked.
func (h *Heap) MarkObject(o Object) { h.markObject(o) }

func (h *Heap) markObject(o Object) {
	if o == nil {
		return
	}
	hdr := o.header()
	if hdr.mark {
		return
	}
	hdr.mark = true
	h.gray = append(h.gray, o)
}

func (h *Heap) traceReferences() {
	for len(h.gray) > 0 {
		n := len(h.gray) - 1
		o := h.gray[n]
		h.gray = h.gray[:n]
		h.blacken(o)
	}
}

// blacken marks every Value directly reachable from o, per its kind.
func (h *Heap) blacken(o Object) {
	switch v := o.(type) {
	case *String, *Native:
		// no references
	case *Function:
		if v.Name != nil {
			h.markObject(v.Name)
		}
		for _, c := range v.Chunk.Constants {
			h.markValue(c)
		}
	case *Closure:
		h.markObject(v.Function)
		for _, u := range v.Upvalues {
			if u != nil {
				h.markObject(u)
			}
		}
	case *Upvalue:
		h.markValue(*v.Location)
	case *Class:
		h.markObject(v.Name)
		v.Methods.Mark(h)
	case *Instance:
		h.markObject(v.Class)
		v.Fields.Mark(h)
	case *BoundMethod:
		h.markValue(v.Receiver)
		h.markObject(v.Method)
	}
}

// sweepObjects walks the intrusive object list, unlinking and discarding
// every still-unmarked object and clearing the mark bit of survivors.
func (h *Heap) sweepObjects() {
	var prev Object
	cur := h.objects
	for cur != nil {
		hdr := cur.header()
		if hdr.mark {
			hdr.mark = false
			prev = cur
			cur = hdr.next
			continue
		}
		unreached := cur
		cur = hdr.next
		if prev != nil {
			prev.header().next = cur
		} else {
			h.objects = cur
		}
		h.bytesAllocated -= unreached.header().size
	}
}

// FreeAll discards every tracked object and resets the intern set, used at
// VM shutdown in place of walking the list and freeing one by one: Go's own
// GC reclaims the memory once nothing references these objects.
func (h *Heap) FreeAll() {
	h.objects = nil
	h.strings = Table{}
	h.bytesAllocated = 0
}
