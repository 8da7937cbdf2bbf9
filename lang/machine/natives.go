package machine

import (
	"fmt"
	"time"

	"github.com/mna/lox/lang/obj"
)

// defineNatives populates vm's native-function registry (vm.natives, a
// swiss.Map keyed by name — the canonical index, independent of the
// GC-swept globals table, e.g. for tooling that wants to list available
// natives) and installs each one as a global so ordinary GET_GLOBAL lookups
// resolve them like any other call target.
func (vm *VM) defineNatives() {
	vm.defineNative("clock", nativeClock)
}

func (vm *VM) defineNative(name string, fn func(args []obj.Value) (obj.Value, error)) {
	n := vm.heap.NewNative(name, fn)
	vm.natives.Put(name, n)
	vm.globals.Set(vm.heap.Intern(name), n)
}

// processStart is the reference point of clock(), taken at package
// initialization.
var processStart = time.Now()

// nativeClock returns the number of seconds elapsed since the process
// started.
func nativeClock(args []obj.Value) (obj.Value, error) {
	if len(args) != 0 {
		return nil, fmt.Errorf("clock() takes no arguments")
	}
	return obj.Number(time.Since(processStart).Seconds()), nil
}
