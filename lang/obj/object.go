package obj

// Header is embedded at the start of every heap Object. It carries the GC
// mark bit, the intrusive "every live object" list link, and the accounted
// size used for the collection-threshold heuristic.
type Header struct {
	mark bool
	size int
	next Object
}

// Object is implemented by every heap-allocated Value. header gives the GC
// access to the common mark/next/size bookkeeping without a type switch.
type Object interface {
	Value
	header() *Header
}
