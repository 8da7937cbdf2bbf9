package machine

import (
	"fmt"

	"github.com/mna/lox/lang/obj"
)

// run executes bytecode starting from the current top call frame until the
// outermost frame returns or a runtime error occurs.
func (vm *VM) run() error {
	fr := &vm.frames[vm.frameCount-1]

	readByte := func() byte {
		b := fr.closure.Function.Chunk.Code[fr.ip]
		fr.ip++
		return b
	}
	readShort := func() int {
		hi := readByte()
		lo := readByte()
		return int(hi)<<8 | int(lo)
	}
	readConstant := func() obj.Value {
		return fr.closure.Function.Chunk.Constants[readByte()]
	}
	readString := func() *obj.String {
		return readConstant().(*obj.String)
	}

	for {
		if vm.Trace {
			fmt.Fprint(vm.Stderr, "          ")
			for i := 0; i < vm.sp; i++ {
				fmt.Fprintf(vm.Stderr, "[ %s ]", vm.stack[i].String())
			}
			fmt.Fprintln(vm.Stderr)
			fr.closure.Function.Chunk.DisassembleInstruction(vm.Stderr, fr.ip)
		}

		op := obj.OpCode(readByte())
		switch op {
		case obj.OpConstant:
			vm.push(readConstant())

		case obj.OpNil:
			vm.push(obj.NilVal)
		case obj.OpTrue:
			vm.push(obj.Bool(true))
		case obj.OpFalse:
			vm.push(obj.Bool(false))
		case obj.OpPop:
			vm.pop()

		case obj.OpGetLocal:
			slot := readByte()
			vm.push(vm.stack[fr.slotsBase+int(slot)])
		case obj.OpSetLocal:
			slot := readByte()
			vm.stack[fr.slotsBase+int(slot)] = vm.peek(0)

		case obj.OpGetGlobal:
			name := readString()
			v, ok := vm.globals.Get(name)
			if !ok {
				return vm.runtimeError("Undefined variable '%s'.", name.Chars)
			}
			vm.push(v)
		case obj.OpDefineGlobal:
			name := readString()
			vm.globals.Set(name, vm.peek(0))
			vm.pop()
		case obj.OpSetGlobal:
			name := readString()
			if vm.globals.Set(name, vm.peek(0)) {
				vm.globals.Delete(name)
				return vm.runtimeError("Undefined variable '%s'.", name.Chars)
			}

		case obj.OpGetUpvalue:
			slot := readByte()
			vm.push(fr.closure.Upvalues[slot].Get())
		case obj.OpSetUpvalue:
			slot := readByte()
			fr.closure.Upvalues[slot].Set(vm.peek(0))

		case obj.OpGetProperty:
			inst, ok := vm.peek(0).(*obj.Instance)
			if !ok {
				return vm.runtimeError("Only instances have properties.")
			}
			name := readString()
			if v, ok := inst.Fields.Get(name); ok {
				vm.pop()
				vm.push(v)
				break
			}
			if err := vm.bindMethod(inst.Class, name); err != nil {
				return err
			}
		case obj.OpSetProperty:
			inst, ok := vm.peek(1).(*obj.Instance)
			if !ok {
				return vm.runtimeError("Only instances have fields.")
			}
			name := readString()
			inst.Fields.Set(name, vm.peek(0))
			v := vm.pop()
			vm.pop()
			vm.push(v)

		case obj.OpGetSuper:
			name := readString()
			super := vm.pop().(*obj.Class)
			if err := vm.bindMethod(super, name); err != nil {
				return err
			}

		case obj.OpEqual:
			b := vm.pop()
			a := vm.pop()
			vm.push(obj.Bool(obj.Equal(a, b)))

		case obj.OpGreater, obj.OpLess:
			b, bOk := vm.peek(0).(obj.Number)
			a, aOk := vm.peek(1).(obj.Number)
			if !aOk || !bOk {
				return vm.runtimeError("Operands must be numbers.")
			}
			vm.pop()
			vm.pop()
			if op == obj.OpGreater {
				vm.push(obj.Bool(a > b))
			} else {
				vm.push(obj.Bool(a < b))
			}

		case obj.OpAdd:
			if err := vm.add(); err != nil {
				return err
			}

		case obj.OpSubtract, obj.OpMultiply, obj.OpDivide:
			b, bOk := vm.peek(0).(obj.Number)
			a, aOk := vm.peek(1).(obj.Number)
			if !aOk || !bOk {
				return vm.runtimeError("Operands must be numbers.")
			}
			vm.pop()
			vm.pop()
			switch op {
			case obj.OpSubtract:
				vm.push(a - b)
			case obj.OpMultiply:
				vm.push(a * b)
			case obj.OpDivide:
				vm.push(a / b)
			}

		case obj.OpNot:
			vm.push(obj.Bool(isFalsey(vm.pop())))

		case obj.OpNegate:
			n, ok := vm.peek(0).(obj.Number)
			if !ok {
				return vm.runtimeError("Operand must be a number.")
			}
			vm.pop()
			vm.push(-n)

		case obj.OpPrint:
			fmt.Fprintln(vm.Stdout, vm.pop().String())

		case obj.OpJump:
			offset := readShort()
			fr.ip += offset
		case obj.OpJumpIfFalse:
			offset := readShort()
			if isFalsey(vm.peek(0)) {
				fr.ip += offset
			}
		case obj.OpLoop:
			offset := readShort()
			fr.ip -= offset

		case obj.OpCall:
			argCount := int(readByte())
			if err := vm.callValue(vm.peek(argCount), argCount); err != nil {
				return err
			}
			fr = &vm.frames[vm.frameCount-1]

		case obj.OpInvoke:
			name := readString()
			argCount := int(readByte())
			if err := vm.invoke(name, argCount); err != nil {
				return err
			}
			fr = &vm.frames[vm.frameCount-1]

		case obj.OpSuperInvoke:
			name := readString()
			argCount := int(readByte())
			super := vm.pop().(*obj.Class)
			if err := vm.invokeFromClass(super, name, argCount); err != nil {
				return err
			}
			fr = &vm.frames[vm.frameCount-1]

		case obj.OpClosure:
			fn := readConstant().(*obj.Function)
			closure := vm.heap.NewClosure(fn)
			vm.push(closure)
			for i := range closure.Upvalues {
				isLocal := readByte()
				index := readByte()
				if isLocal != 0 {
					closure.Upvalues[i] = vm.captureUpvalue(fr.slotsBase + int(index))
				} else {
					closure.Upvalues[i] = fr.closure.Upvalues[index]
				}
			}

		case obj.OpCloseUpvalue:
			vm.closeUpvalues(vm.sp - 1)
			vm.pop()

		case obj.OpReturn:
			result := vm.pop()
			vm.closeUpvalues(fr.slotsBase)
			vm.frameCount--
			if vm.frameCount == 0 {
				vm.pop()
				return nil
			}
			vm.sp = fr.slotsBase
			vm.push(result)
			fr = &vm.frames[vm.frameCount-1]

		case obj.OpClass:
			vm.push(vm.heap.NewClass(readString()))

		case obj.OpInherit:
			super, ok := vm.peek(1).(*obj.Class)
			if !ok {
				return vm.runtimeError("Superclass must be a class.")
			}
			sub := vm.peek(0).(*obj.Class)
			sub.Methods.AddAll(&super.Methods)
			vm.pop()

		case obj.OpMethod:
			vm.defineMethod(readString())

		default:
			return vm.runtimeError("unknown opcode %s", op)
		}
	}
}

func (vm *VM) add() error {
	b := vm.peek(0)
	a := vm.peek(1)
	as, aOk := a.(*obj.String)
	bs, bOk := b.(*obj.String)
	if aOk && bOk {
		vm.pop()
		vm.pop()
		vm.push(vm.heap.Concat(as, bs))
		return nil
	}
	an, aOk := a.(obj.Number)
	bn, bOk := b.(obj.Number)
	if aOk && bOk {
		vm.pop()
		vm.pop()
		vm.push(an + bn)
		return nil
	}
	return vm.runtimeError("Operands must be two numbers or two strings.")
}

// callValue dispatches an OP_CALL: callee is whatever value was found at the
// stack slot the call targets, which may be a Closure, a Native, a Class
// (constructing a new Instance and running its init method if any), or a
// BoundMethod.
func (vm *VM) callValue(callee obj.Value, argCount int) error {
	switch c := callee.(type) {
	case *obj.Closure:
		return vm.call(c, argCount)
	case *obj.Native:
		args := vm.stack[vm.sp-argCount : vm.sp]
		result, err := c.Fn(args)
		if err != nil {
			return vm.runtimeError("%s", err.Error())
		}
		vm.sp -= argCount + 1
		vm.push(result)
		return nil
	case *obj.Class:
		inst := vm.heap.NewInstance(c)
		vm.stack[vm.sp-argCount-1] = inst
		if initializer, ok := c.Methods.Get(vm.initString); ok {
			return vm.call(initializer.(*obj.Closure), argCount)
		}
		if argCount != 0 {
			return vm.runtimeError("Expected 0 arguments but got %d.", argCount)
		}
		return nil
	case *obj.BoundMethod:
		vm.stack[vm.sp-argCount-1] = c.Receiver
		return vm.call(c.Method, argCount)
	default:
		return vm.runtimeError("Can only call functions and classes.")
	}
}

// call pushes a new call frame for closure, assuming argCount arguments
// (plus the callee/receiver slot) are already in place at the top of the
// stack.
func (vm *VM) call(closure *obj.Closure, argCount int) error {
	if argCount != closure.Function.Arity {
		return vm.runtimeError("Expected %d arguments but got %d.", closure.Function.Arity, argCount)
	}
	if vm.frameCount == framesMax {
		return vm.runtimeError("Stack overflow.")
	}
	vm.frames[vm.frameCount] = callFrame{
		closure:   closure,
		slotsBase: vm.sp - argCount - 1,
	}
	vm.frameCount++
	return nil
}

// invoke implements the OP_INVOKE fast path for `receiver.method(args)`: it
// resolves the method without the intermediate bound-method allocation that
// GET_PROPERTY followed by CALL would require, falling back to a plain call
// if the "method" is actually a field holding a callable value.
func (vm *VM) invoke(name *obj.String, argCount int) error {
	inst, ok := vm.peek(argCount).(*obj.Instance)
	if !ok {
		return vm.runtimeError("Only instances have methods.")
	}
	if v, ok := inst.Fields.Get(name); ok {
		vm.stack[vm.sp-argCount-1] = v
		return vm.callValue(v, argCount)
	}
	return vm.invokeFromClass(inst.Class, name, argCount)
}

func (vm *VM) invokeFromClass(class *obj.Class, name *obj.String, argCount int) error {
	method, ok := class.Methods.Get(name)
	if !ok {
		return vm.runtimeError("Undefined property '%s'.", name.Chars)
	}
	return vm.call(method.(*obj.Closure), argCount)
}

// bindMethod looks up name in class's method table and replaces the
// receiver on top of the stack with a BoundMethod wrapping it.
func (vm *VM) bindMethod(class *obj.Class, name *obj.String) error {
	method, ok := class.Methods.Get(name)
	if !ok {
		return vm.runtimeError("Undefined property '%s'.", name.Chars)
	}
	bound := vm.heap.NewBoundMethod(vm.peek(0), method.(*obj.Closure))
	vm.pop()
	vm.push(bound)
	return nil
}

// defineMethod pops a just-closed method off the stack and installs it into
// the method table of the class currently on top of the stack (which stays,
// so subsequent OP_METHODs in the same class body can find it).
func (vm *VM) defineMethod(name *obj.String) {
	method := vm.pop()
	class := vm.peek(0).(*obj.Class)
	class.Methods.Set(name, method)
}

// captureUpvalue returns an open Upvalue for the absolute stack slot index
// slot, reusing an existing one if this exact slot is already captured.
func (vm *VM) captureUpvalue(slot int) *obj.Upvalue {
	for _, o := range vm.openUpvalues {
		if o.slot == slot {
			return o.up
		}
	}
	created := vm.heap.NewUpvalue(&vm.stack[slot])
	vm.openUpvalues = append(vm.openUpvalues, openUpvalue{slot: slot, up: created})
	return created
}

// closeUpvalues closes every open upvalue at or above stack slot index
// from, copying its value out of the stack and retargeting it at its own
// storage, and drops it from the open list.
func (vm *VM) closeUpvalues(from int) {
	kept := vm.openUpvalues[:0]
	for _, o := range vm.openUpvalues {
		if o.slot >= from {
			o.up.Close()
		} else {
			kept = append(kept, o)
		}
	}
	vm.openUpvalues = kept
}
