package obj

import "fmt"

// FunctionKind tags what kind of function body a Function represents
// (script, plain function, method, or initializer). The compiler uses it to
// apply the right conventions, e.g. an Initializer implicitly returns the
// receiver and reserves slot 0 for it.
type FunctionKind uint8

const (
	KindScript FunctionKind = iota
	KindPlainFunction
	KindMethod
	KindInitializer
)

// Function is the compiled form of a function declaration or the implicit
// top-level script function. It owns its Chunk; Closures are the runtime
// value that wraps a Function together with its captured Upvalues.
type Function struct {
	Header
	Arity        int
	UpvalueCount int
	Chunk        Chunk
	Name         *String // nil for the top-level script
	Kind         FunctionKind
}

var _ Object = (*Function)(nil)

func (f *Function) String() string {
	if f.Name == nil {
		return "<script>"
	}
	return fmt.Sprintf("<fn %s>", f.Name.Chars)
}
func (f *Function) Type() string    { return "function" }
func (f *Function) header() *Header { return &f.Header }

// Native is a foreign function exposed to Lox code, e.g. clock().
type Native struct {
	Header
	Name string
	Fn   func(args []Value) (Value, error)
}

var _ Object = (*Native)(nil)

func (n *Native) String() string    { return fmt.Sprintf("<native fn %s>", n.Name) }
func (n *Native) Type() string      { return "native" }
func (n *Native) header() *Header   { return &n.Header }
