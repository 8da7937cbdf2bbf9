package maincmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/mna/mainer"
	"github.com/mna/lox/lang/compiler"
	"github.com/mna/lox/lang/machine"
	"github.com/mna/lox/lang/obj"
)

// Run compiles and executes the script named by args[0].
func (c *Cmd) Run(ctx context.Context, stdio mainer.Stdio, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("run: expected exactly one script path, got %d", len(args))
	}
	src, err := os.ReadFile(args[0])
	if err != nil {
		return &ioError{err: err}
	}

	heap := obj.NewHeap()
	vm := machine.New(heap, stdio.Stdout, stdio.Stderr)
	vm.Trace = c.Trace

	_ = ctx // the script runs to completion or error; no cancellation hook yet
	err = vm.Interpret(string(src))
	var compileErr *compiler.Error
	if errors.As(err, &compileErr) {
		return &compileError{err: err}
	}
	return err
}
