package obj

// Closure pairs a compiled Function with the Upvalues it captured at the
// point the CLOSURE instruction ran.
type Closure struct {
	Header
	Function *Function
	Upvalues []*Upvalue
}

var _ Object = (*Closure)(nil)

func (c *Closure) String() string    { return c.Function.String() }
func (c *Closure) Type() string      { return "closure" }
func (c *Closure) header() *Header   { return &c.Header }

// Upvalue is the indirection a closure uses to refer to a variable that
// outlives the stack frame it was declared in.
//
// While open, Location points directly into a slot of the VM's value stack
// (safe because that stack is a fixed-size array that never reallocates).
// Once closed, the value has been copied into Closed and Location is
// retargeted to point at that field instead, so reads and writes through the
// Upvalue are uniform in both states. The machine tracks which stack slot
// each open Upvalue belongs to itself, so that it never needs to compare
// Location pointers for ordering (Go pointers support only equality).
type Upvalue struct {
	Header
	Location *Value
	Closed   Value
}

var _ Object = (*Upvalue)(nil)

func (u *Upvalue) String() string  { return "<upvalue>" }
func (u *Upvalue) Type() string    { return "upvalue" }
func (u *Upvalue) header() *Header { return &u.Header }

// IsOpen reports whether the upvalue still refers to a live stack slot.
func (u *Upvalue) IsOpen() bool { return u.Location != &u.Closed }

// Close copies the value out of the stack slot it refers to and retargets
// Location at its own storage, detaching it from the stack.
func (u *Upvalue) Close() {
	u.Closed = *u.Location
	u.Location = &u.Closed
}

func (u *Upvalue) Get() Value  { return *u.Location }
func (u *Upvalue) Set(v Value) { *u.Location = v }
