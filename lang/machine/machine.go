// Package machine implements the stack-based virtual machine that executes
// the bytecode compiled by lang/compiler: a dispatch loop over a single
// shared value stack and call-frame stack, with closures, classes and
// native functions resolved against the object heap defined in lang/obj.
package machine

import (
	"fmt"
	"io"
	"os"

	"github.com/dolthub/swiss"
	"github.com/mna/lox/lang/compiler"
	"github.com/mna/lox/lang/obj"
)

const (
	framesMax   = 64
	stackMax    = framesMax * 256
)

// callFrame records one active call: the closure being executed, the
// instruction pointer into that closure's chunk, and the base stack slot
// its locals start at (slot 0 is the receiver for methods, or the callee
// itself for plain functions).
type callFrame struct {
	closure   *obj.Closure
	ip        int
	slotsBase int
}

// VM is one instance of the virtual machine: its own value stack, frame
// stack, globals table and native-function registry, sharing a single heap
// (and therefore a single GC) with whatever compiled the bytecode it runs.
type VM struct {
	Stdout io.Writer
	Stderr io.Writer

	// Trace, when set, writes a disassembled line for every instruction
	// executed to Stderr before it runs — a debugging aid, not part of the
	// language's observable behavior.
	Trace bool

	heap    *obj.Heap
	globals obj.Table
	natives *swiss.Map[string, *obj.Native]

	stack []obj.Value
	sp    int

	frames     []callFrame
	frameCount int

	openUpvalues []openUpvalue
	initString   *obj.String
}

// openUpvalue records that up is an open Upvalue for absolute stack slot
// index slot, letting the VM decide which upvalues to close (by slot
// index) without ever comparing *obj.Value pointers, which Go permits only
// to test for equality.
type openUpvalue struct {
	slot int
	up   *obj.Upvalue
}

var _ obj.RootMarker = (*VM)(nil)

// New returns a VM backed by heap, with its standard natives registered and
// MarkRoots wired up as heap's root marker for the duration it runs.
func New(heap *obj.Heap, stdout, stderr io.Writer) *VM {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	vm := &VM{
		Stdout:     stdout,
		Stderr:     stderr,
		heap:       heap,
		natives:    swiss.NewMap[string, *obj.Native](8),
		stack:      make([]obj.Value, stackMax),
		frames:     make([]callFrame, framesMax),
		initString: heap.Intern("init"),
	}
	vm.defineNatives()
	return vm
}

// Interpret compiles and runs source on vm, returning the first compile or
// runtime error encountered.
func (vm *VM) Interpret(source string) error {
	fn, err := compiler.Compile(source, vm.heap, vm.Stderr)
	if err != nil {
		return err
	}

	prevRoots := vm.heap.Roots
	vm.heap.Roots = vm
	defer func() { vm.heap.Roots = prevRoots }()

	vm.push(fn)
	closure := vm.heap.NewClosure(fn)
	vm.pop()
	vm.push(closure)
	if err := vm.call(closure, 0); err != nil {
		return err
	}
	return vm.run()
}

// MarkRoots implements obj.RootMarker: the value stack, every active frame's
// closure, every still-open upvalue, the globals table and the interned
// "init" string are all roots while the machine is running.
func (vm *VM) MarkRoots(h *obj.Heap) {
	for i := 0; i < vm.sp; i++ {
		h.MarkValue(vm.stack[i])
	}
	for i := 0; i < vm.frameCount; i++ {
		h.MarkObject(vm.frames[i].closure)
	}
	for _, o := range vm.openUpvalues {
		h.MarkObject(o.up)
	}
	vm.globals.Mark(h)
	h.MarkObject(vm.initString)
}

func (vm *VM) push(v obj.Value) {
	vm.stack[vm.sp] = v
	vm.sp++
}

func (vm *VM) pop() obj.Value {
	vm.sp--
	return vm.stack[vm.sp]
}

func (vm *VM) peek(distance int) obj.Value { return vm.stack[vm.sp-1-distance] }

func (vm *VM) resetStack() {
	vm.sp = 0
	vm.frameCount = 0
	vm.openUpvalues = nil
}

// runtimeError formats msg, writes it together with a call-stack trace to
// Stderr, and resets the stack so a subsequent Interpret starts clean.
func (vm *VM) runtimeError(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(vm.Stderr, msg)

	for i := vm.frameCount - 1; i >= 0; i-- {
		fr := &vm.frames[i]
		fn := fr.closure.Function
		line := 0
		if fr.ip-1 < len(fn.Chunk.Lines) && fr.ip-1 >= 0 {
			line = fn.Chunk.Lines[fr.ip-1]
		}
		name := "script"
		if fn.Name != nil {
			name = fn.Name.Chars + "()"
		}
		fmt.Fprintf(vm.Stderr, "[line %d] in %s\n", line, name)
	}
	vm.resetStack()
	return fmt.Errorf("runtime error: %s", msg)
}

func isFalsey(v obj.Value) bool { return !obj.Truth(v) }
