package obj

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInternUniqueness(t *testing.T) {
	h := NewHeap()
	a := h.Intern("shared")
	b := h.Intern("shared")
	require.Same(t, a, b, "content-equal strings must be identity-equal once interned")

	c := h.Intern("other")
	require.NotSame(t, a, c)
}

func TestConcatInternsResult(t *testing.T) {
	h := NewHeap()
	foo := h.Intern("foo")
	bar := h.Intern("bar")
	got := h.Concat(foo, bar)
	require.Equal(t, "foobar", got.Chars)
	require.Same(t, got, h.Intern("foobar"))
}

// fakeRoots marks only the strings explicitly listed as reachable.
type fakeRoots struct {
	roots []Value
}

func (f *fakeRoots) MarkRoots(h *Heap) {
	for _, v := range f.roots {
		h.MarkValue(v)
	}
}

func TestGCSweepsUnreachableAndKeepsReachable(t *testing.T) {
	h := NewHeap()
	kept := h.Intern("kept")
	h.Intern("garbage-1")
	h.Intern("garbage-2")

	roots := &fakeRoots{roots: []Value{kept}}
	h.Roots = roots

	before := h.BytesAllocated()
	h.Collect()
	after := h.BytesAllocated()
	require.Less(t, after, before, "unreachable strings must be swept")

	// the kept string is still interned and reachable
	require.Same(t, kept, h.Intern("kept"))
	// the garbage strings are gone from the intern set: re-interning
	// allocates new objects rather than finding stale ones
	require.Nil(t, h.strings.FindString("garbage-1", hashFNV1a("garbage-1")))
}

func TestGCIsNoOpWhenNothingChanged(t *testing.T) {
	h := NewHeap()
	kept := h.Intern("kept")
	h.Roots = &fakeRoots{roots: []Value{kept}}

	h.Collect()
	afterFirst := h.BytesAllocated()
	h.Collect()
	afterSecond := h.BytesAllocated()
	require.Equal(t, afterFirst, afterSecond, "re-running GC with no new garbage is a no-op")
}

func TestGCClearsMarkBitsAfterSweep(t *testing.T) {
	h := NewHeap()
	kept := h.Intern("kept")
	h.Roots = &fakeRoots{roots: []Value{kept}}
	h.Collect()
	require.False(t, kept.header().mark, "surviving objects must have their mark bit cleared post-sweep")
}

func TestBlackenTracesCompositeObjects(t *testing.T) {
	h := NewHeap()
	name := h.Intern("Greeter")
	class := h.NewClass(name)
	method := h.NewFunction(h.Intern("greet"), KindMethod)
	closure := h.NewClosure(method)
	class.Methods.Set(h.Intern("greet"), closure)

	h.Roots = &fakeRoots{roots: []Value{class}}
	h.Collect()

	// the class, its name, its method table's key and closure, and the
	// closure's function must all have survived the sweep.
	require.Same(t, class, h.markRootsSurvived(class))
	require.Same(t, name, h.markRootsSurvived(name))
	require.Same(t, method.Name, h.markRootsSurvived(method.Name))
	require.Same(t, closure, h.markRootsSurvived(closure))
	require.Same(t, method, h.markRootsSurvived(method))
}

// markRootsSurvived is a tiny helper returning o if it is still linked into
// the heap's object list after a sweep, and nil otherwise.
func (h *Heap) markRootsSurvived(o Object) Object {
	for cur := h.objects; cur != nil; cur = cur.header().next {
		if cur == o {
			return cur
		}
	}
	return nil
}
