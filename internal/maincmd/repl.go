package maincmd

import (
	"bufio"
	"context"
	"fmt"

	"github.com/mna/mainer"
	"github.com/mna/lox/lang/machine"
	"github.com/mna/lox/lang/obj"
)

// Repl reads lines from stdio.Stdin, compiling and running each one as a
// standalone program against a heap and VM shared across the whole session
// (so globals and classes defined on one line are visible on the next).
// Compile errors abort only the current line, not the session.
func (c *Cmd) Repl(ctx context.Context, stdio mainer.Stdio, args []string) error {
	_ = ctx
	_ = args

	heap := obj.NewHeap()
	vm := machine.New(heap, stdio.Stdout, stdio.Stderr)
	vm.Trace = c.Trace

	scanner := bufio.NewScanner(stdio.Stdin)
	fmt.Fprint(stdio.Stdout, "> ")
	for scanner.Scan() {
		line := scanner.Text()
		if line != "" {
			if err := vm.Interpret(line); err != nil {
				fmt.Fprintln(stdio.Stderr, err)
			}
		}
		fmt.Fprint(stdio.Stdout, "> ")
	}
	fmt.Fprintln(stdio.Stdout)
	return scanner.Err()
}
