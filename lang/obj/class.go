package obj

import "fmt"

// Class is a runtime class value: a name and a method table (name -> Closure).
type Class struct {
	Header
	Name    *String
	Methods Table
}

var _ Object = (*Class)(nil)

func (c *Class) String() string    { return c.Name.Chars }
func (c *Class) Type() string      { return "class" }
func (c *Class) header() *Header   { return &c.Header }

// Instance is a runtime instance of a Class, with its own field table.
type Instance struct {
	Header
	Class  *Class
	Fields Table
}

var _ Object = (*Instance)(nil)

func (i *Instance) String() string  { return fmt.Sprintf("%s instance", i.Class.Name.Chars) }
func (i *Instance) Type() string    { return "instance" }
func (i *Instance) header() *Header { return &i.Header }

// BoundMethod packages a receiver value with the Closure of the method it
// was bound from, so that a later CALL finds the receiver at slot 0.
type BoundMethod struct {
	Header
	Receiver Value
	Method   *Closure
}

var _ Object = (*BoundMethod)(nil)

func (b *BoundMethod) String() string  { return b.Method.String() }
func (b *BoundMethod) Type() string    { return "bound method" }
func (b *BoundMethod) header() *Header { return &b.Header }
