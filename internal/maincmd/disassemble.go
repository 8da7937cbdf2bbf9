package maincmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/mna/mainer"
	"github.com/mna/lox/lang/compiler"
	"github.com/mna/lox/lang/obj"
)

// Disassemble compiles the file named by args[0] without running it, and
// prints the disassembly of its top-level chunk and every nested function's
// chunk it can reach through the constant pool.
func (c *Cmd) Disassemble(ctx context.Context, stdio mainer.Stdio, args []string) error {
	_ = ctx
	if len(args) != 1 {
		return fmt.Errorf("disassemble: expected exactly one script path, got %d", len(args))
	}
	src, err := os.ReadFile(args[0])
	if err != nil {
		return &ioError{err: err}
	}

	heap := obj.NewHeap()
	fn, err := compiler.Compile(string(src), heap, stdio.Stderr)
	var compileErr *compiler.Error
	if errors.As(err, &compileErr) {
		return &compileError{err: err}
	}
	if err != nil {
		return err
	}

	disassembleFunction(stdio, fn, map[*obj.Function]bool{})
	return nil
}

func disassembleFunction(stdio mainer.Stdio, fn *obj.Function, seen map[*obj.Function]bool) {
	if seen[fn] {
		return
	}
	seen[fn] = true

	name := "<script>"
	if fn.Name != nil {
		name = fn.Name.Chars
	}
	fn.Chunk.Disassemble(stdio.Stdout, name)

	for _, c := range fn.Chunk.Constants {
		if nested, ok := c.(*obj.Function); ok {
			disassembleFunction(stdio, nested, seen)
		}
	}
}
