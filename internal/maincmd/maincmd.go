// Package maincmd implements the lox command-line tool: running a script,
// dumping its tokens or disassembled bytecode, or starting an interactive
// REPL when no script is given, following the exit-code contract of
// sysexits.h (0 success, 64 usage error, 65 compile error, 70 runtime
// error, 74 I/O error).
package maincmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/mna/mainer"
)

const binName = "lox"

// Exit codes follow the sysexits.h convention the language's reference
// implementation uses for its own CLI.
const (
	exitUsage   = mainer.ExitCode(64)
	exitDataErr = mainer.ExitCode(65) // compile-time error
	exitSoftErr = mainer.ExitCode(70) // runtime error
	exitIOErr   = mainer.ExitCode(74)
)

var (
	shortUsage = fmt.Sprintf(`
usage: %s [<option>...] [<command>] [<path>]
Run '%[1]s --help' for details.
`, binName)

	longUsage = fmt.Sprintf(`usage: %s [<option>...] [<command>] [<path>]
       %[1]s -h|--help
       %[1]s -v|--version

Compiler and virtual machine for the lox scripting language. With no
command and no path, starts an interactive REPL.

The <command> can be one of:
       run                       Compile and execute the script at <path>
                                 (this is also the default when <path> is
                                 given without a command).
       tokenize                  Run only the scanner and print the
                                 resulting tokens.
       disassemble               Compile <path> and print the disassembled
                                 bytecode instead of running it.

Valid flag options are:
       -h --help                 Show this help and exit.
       -v --version              Print version and exit.
       --trace                   Trace every instruction executed by the
                                 virtual machine to stderr (valid with the
                                 <run> command and the REPL only).
`, binName)
)

// Cmd is the lox CLI entry point, driven by github.com/mna/mainer.
type Cmd struct {
	BuildVersion string
	BuildDate    string

	Help    bool `flag:"h,help"`
	Version bool `flag:"v,version"`
	Trace   bool `flag:"trace"`

	args    []string
	flags   map[string]bool
	cmdName string
	cmdFn   func(context.Context, mainer.Stdio, []string) error
}

func (c *Cmd) SetArgs(args []string)          { c.args = args }
func (c *Cmd) SetFlags(flags map[string]bool) { c.flags = flags }

func (c *Cmd) Validate() error {
	if c.Help || c.Version {
		return nil
	}

	if len(c.args) == 0 {
		c.cmdName, c.cmdFn = "repl", c.Repl
		return nil
	}

	commands := buildCmds(c)
	if cmdFn, ok := commands[c.args[0]]; ok {
		c.cmdName, c.cmdFn = c.args[0], cmdFn
		c.args = c.args[1:]
	} else {
		// no recognized command name: treat the first argument as a script
		// path for the implicit "run" command.
		c.cmdName, c.cmdFn = "run", c.Run
	}

	if c.flags["trace"] && c.cmdName != "run" {
		return errors.New("--trace is only valid with the run command or the REPL")
	}
	return nil
}

func (c *Cmd) Main(args []string, stdio mainer.Stdio) mainer.ExitCode {
	p := mainer.Parser{
		EnvVars:   false,
		EnvPrefix: strings.ToUpper(binName) + "_",
	}
	if err := p.Parse(args, c); err != nil {
		fmt.Fprintf(stdio.Stderr, "invalid arguments: %s\n%s", err, shortUsage)
		return exitUsage
	}

	switch {
	case c.Help:
		fmt.Fprint(stdio.Stdout, longUsage)
		return mainer.Success
	case c.Version:
		fmt.Fprintf(stdio.Stdout, "%s %s %s\n", binName, c.BuildVersion, c.BuildDate)
		return mainer.Success
	}

	ctx := mainer.CancelOnSignal(context.Background(), os.Interrupt)
	if err := c.cmdFn(ctx, stdio, c.args); err != nil {
		var ce *compileError
		var ie *ioError
		switch {
		case errors.As(err, &ce):
			return exitDataErr
		case errors.As(err, &ie):
			return exitIOErr
		default:
			return exitSoftErr
		}
	}
	return mainer.Success
}

// buildCmds collects every method of v with the (context.Context,
// mainer.Stdio, []string) error signature, keyed by its lowercased name —
// the same reflection-driven command table the teacher's CLI used, so that
// adding a new subcommand is just adding a method.
func buildCmds(v interface{}) map[string]func(context.Context, mainer.Stdio, []string) error {
	cmds := make(map[string]func(context.Context, mainer.Stdio, []string) error)

	vv := reflect.ValueOf(v)
	vt := vv.Type()
	for i := 0; i < vt.NumMethod(); i++ {
		m := vt.Method(i)
		mt := m.Type

		if mt.NumIn() != 4 || mt.NumOut() != 1 {
			continue
		}
		if rt := mt.Out(0); rt.Kind() != reflect.Interface || rt.Name() != "error" {
			continue
		}
		if p0 := mt.In(0); p0.Kind() != reflect.Ptr || p0.Elem().Name() != "Cmd" {
			continue
		}
		if p1 := mt.In(1); p1.Kind() != reflect.Interface || p1.Name() != "Context" {
			continue
		}
		if p2 := mt.In(2); p2.Kind() != reflect.Struct || p2.Name() != "Stdio" {
			continue
		}
		if p3 := mt.In(3); p3.Kind() != reflect.Slice || p3.Elem().Name() != "string" {
			continue
		}
		cmds[strings.ToLower(m.Name)] = vv.Method(i).Interface().(func(context.Context, mainer.Stdio, []string) error)
	}
	return cmds
}

// compileError and ioError tag an error for Main's exit-code mapping
// without the commands needing to know about mainer.ExitCode themselves.
type compileError struct{ err error }

func (e *compileError) Error() string { return e.err.Error() }
func (e *compileError) Unwrap() error { return e.err }

type ioError struct{ err error }

func (e *ioError) Error() string { return e.err.Error() }
func (e *ioError) Unwrap() error { return e.err }
