// Package compiler implements the single-pass Pratt-precedence compiler: it
// drives the scanner token by token and emits bytecode directly as it
// parses, resolving local variables and closure upvalues along the way,
// without ever building an intermediate syntax tree.
package compiler

import (
	"bytes"
	"fmt"
	"io"

	"github.com/mna/lox/lang/obj"
	"github.com/mna/lox/lang/scanner"
	"github.com/mna/lox/lang/token"
)

const (
	maxLocals    = 256 // a local's slot must fit in a single byte operand
	maxUpvalues  = 256
	maxConstants = 256
	maxJump      = 1<<16 - 1
)

// localVar is one entry of a funcCompiler's fixed-capacity local-variable
// array. depth == -1 means "declared but not yet initialized", the state
// that makes `var a = a;` a compile error rather than reading garbage.
type localVar struct {
	name       string
	depth      int
	isCaptured bool
}

// upvalueRef records how a funcCompiler's closure captures one free
// variable: either directly from the immediately enclosing function's
// locals (isLocal true, index is a local slot) or by forwarding one of the
// enclosing function's own upvalues (isLocal false, index is an upvalue
// index).
type upvalueRef struct {
	index   uint8
	isLocal bool
}

// funcCompiler holds the compiler state for a single function body
// (including the implicit top-level script function). funcCompilers form a
// chain via enclosing, one per lexically nested function currently being
// compiled.
type funcCompiler struct {
	enclosing *funcCompiler
	fn        *obj.Function

	locals     []localVar
	upvalues   []upvalueRef
	scopeDepth int
}

// classCompiler tracks the innermost class currently being compiled, to
// validate `super` usage and to know whether the class body must close the
// scope holding the synthetic `super` local.
type classCompiler struct {
	enclosing     *classCompiler
	hasSuperclass bool
}

// parser is the single-pass compiler's shared state: the token stream, the
// chain of in-progress funcCompilers, the innermost classCompiler, and error
// bookkeeping. Unlike a typical recursive-descent parser, there is no AST
// node returned by any parse function — every parse function's job is to
// leave behind emitted bytecode and an updated parser/funcCompiler state.
type parser struct {
	scanner *scanner.Scanner
	heap    *obj.Heap
	stderr  io.Writer

	current, previous token.Token
	hadError          bool
	panicMode         bool

	cur   *funcCompiler
	class *classCompiler
}

// MarkRoots implements obj.RootMarker: while compiling, the GC must be able
// to see the function object of every funcCompiler still in progress (and,
// transitively via Heap's blacken, every constant interned into its chunk so
// far). This is the "currently-compiling chain of Functions" root set from
// the memory manager's design.
func (p *parser) MarkRoots(h *obj.Heap) {
	for fc := p.cur; fc != nil; fc = fc.enclosing {
		h.MarkObject(fc.fn)
	}
}

// Compile compiles source into the implicit top-level script Function, or
// returns a non-nil error if any compile error was encountered. Diagnostics
// are written to stderr as they're discovered ("[line N] Error ...: msg"),
// matching the spec's external diagnostic contract; the returned error is a
// single summary suitable for exit-code mapping by the caller.
func Compile(source string, heap *obj.Heap, stderr io.Writer) (*obj.Function, error) {
	p := &parser{
		scanner: scanner.New(source),
		heap:    heap,
		stderr:  stderr,
	}
	prevRoots := heap.Roots
	heap.Roots = p
	defer func() { heap.Roots = prevRoots }()

	p.cur = &funcCompiler{fn: heap.NewFunction(nil, obj.KindScript)}
	// slot 0 is reserved for the receiver in methods/initializers, and left
	// blank (unnamed, inaccessible) otherwise.
	p.cur.locals = append(p.cur.locals, localVar{name: "", depth: 0})

	p.advance()
	for !p.match(token.EOF) {
		p.declaration()
	}
	fn := p.endFuncCompiler()

	if p.hadError {
		return nil, &Error{}
	}
	return fn, nil
}

// Error is returned by Compile when one or more syntax errors were found;
// the diagnostics themselves were already written to the stderr passed to
// Compile. Callers distinguish it from a runtime error via errors.As, e.g.
// to map it to a different process exit code.
type Error struct{}

func (*Error) Error() string { return "compile error" }

// --- token stream plumbing ---

func (p *parser) advance() {
	p.previous = p.current
	for {
		p.current = p.scanner.Scan()
		if p.current.Kind != token.ILLEGAL {
			break
		}
		p.errorAtCurrent(p.current.Lexeme)
	}
}

func (p *parser) check(kind token.Kind) bool { return p.current.Kind == kind }

func (p *parser) match(kind token.Kind) bool {
	if !p.check(kind) {
		return false
	}
	p.advance()
	return true
}

func (p *parser) consume(kind token.Kind, msg string) {
	if p.current.Kind == kind {
		p.advance()
		return
	}
	p.errorAtCurrent(msg)
}

// --- error reporting ---

func (p *parser) errorAt(tok token.Token, msg string) {
	if p.panicMode {
		return
	}
	p.panicMode = true
	p.hadError = true

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "[line %d] Error", tok.Line)
	switch tok.Kind {
	case token.EOF:
		fmt.Fprint(&buf, " at end")
	case token.ILLEGAL:
		// the lexeme already carries the scanner's own message
	default:
		fmt.Fprintf(&buf, " at '%s'", tok.Lexeme)
	}
	fmt.Fprintf(&buf, ": %s\n", msg)
	if p.stderr != nil {
		io.WriteString(p.stderr, buf.String())
	}
}

func (p *parser) errorAtCurrent(msg string) { p.errorAt(p.current, msg) }
func (p *parser) error(msg string)          { p.errorAt(p.previous, msg) }

// synchronize discards tokens until it reaches a likely statement boundary,
// so that one syntax error doesn't cascade into a wall of spurious errors.
func (p *parser) synchronize() {
	p.panicMode = false
	for p.current.Kind != token.EOF {
		if p.previous.Kind == token.SEMICOLON {
			return
		}
		switch p.current.Kind {
		case token.CLASS, token.FUN, token.VAR, token.FOR, token.IF,
			token.WHILE, token.PRINT, token.RETURN:
			return
		}
		p.advance()
	}
}

// --- bytecode emission ---

func (p *parser) chunk() *obj.Chunk { return &p.cur.fn.Chunk }

func (p *parser) emitByte(b byte) {
	p.chunk().Write(b, p.previous.Line)
}

func (p *parser) emitOp(op obj.OpCode) { p.emitByte(byte(op)) }

func (p *parser) emitBytes(b1, b2 byte) {
	p.emitByte(b1)
	p.emitByte(b2)
}

func (p *parser) emitOpByte(op obj.OpCode, b byte) { p.emitBytes(byte(op), b) }

// emitJump writes op followed by a 2-byte placeholder and returns the
// offset of the placeholder's first byte, to be patched later.
func (p *parser) emitJump(op obj.OpCode) int {
	p.emitOp(op)
	p.emitByte(0xff)
	p.emitByte(0xff)
	return len(p.chunk().Code) - 2
}

// patchJump rewrites the 2-byte placeholder at offset with the distance
// from just after the placeholder to the current end of the chunk.
func (p *parser) patchJump(offset int) {
	jump := len(p.chunk().Code) - offset - 2
	if jump > maxJump {
		p.error("Too much code to jump over.")
		return
	}
	p.chunk().Code[offset] = byte((jump >> 8) & 0xff)
	p.chunk().Code[offset+1] = byte(jump & 0xff)
}

// emitLoop emits a backward OP_LOOP jump to loopStart.
func (p *parser) emitLoop(loopStart int) {
	p.emitOp(obj.OpLoop)
	offset := len(p.chunk().Code) - loopStart + 2
	if offset > maxJump {
		p.error("Loop body too large.")
	}
	p.emitByte(byte((offset >> 8) & 0xff))
	p.emitByte(byte(offset & 0xff))
}

func (p *parser) emitReturn() {
	if p.cur.fn.Kind == obj.KindInitializer {
		// an initializer implicitly returns the receiver, slot 0
		p.emitOpByte(obj.OpGetLocal, 0)
	} else {
		p.emitOp(obj.OpNil)
	}
	p.emitOp(obj.OpReturn)
}

// makeConstant interns v into the current chunk's constant pool, erroring
// if the 256-constant-per-chunk limit (a single byte operand) is exceeded.
func (p *parser) makeConstant(v obj.Value) byte {
	idx := p.chunk().AddConstant(v)
	if idx >= maxConstants {
		p.error("Too many constants in one chunk.")
		return 0
	}
	return byte(idx)
}

func (p *parser) emitConstant(v obj.Value) {
	p.emitOpByte(obj.OpConstant, p.makeConstant(v))
}

// identifierConstant interns name's lexeme as a String and adds it as a
// chunk constant, used for global-variable and property-name operands.
func (p *parser) identifierConstant(name token.Token) byte {
	return p.makeConstant(p.heap.Intern(name.Lexeme))
}

func (p *parser) endFuncCompiler() *obj.Function {
	p.emitReturn()
	fn := p.cur.fn
	p.cur = p.cur.enclosing
	return fn
}

// --- scopes ---

func (p *parser) beginScope() { p.cur.scopeDepth++ }

func (p *parser) endScope() {
	p.cur.scopeDepth--
	for len(p.cur.locals) > 0 && p.cur.locals[len(p.cur.locals)-1].depth > p.cur.scopeDepth {
		last := p.cur.locals[len(p.cur.locals)-1]
		if last.isCaptured {
			p.emitOp(obj.OpCloseUpvalue)
		} else {
			p.emitOp(obj.OpPop)
		}
		p.cur.locals = p.cur.locals[:len(p.cur.locals)-1]
	}
}

// --- variable declaration & resolution ---

func (p *parser) declareVariable() {
	if p.cur.scopeDepth == 0 {
		return // globals are late-bound, nothing to declare
	}
	name := p.previous.Lexeme
	for i := len(p.cur.locals) - 1; i >= 0; i-- {
		l := p.cur.locals[i]
		if l.depth != -1 && l.depth < p.cur.scopeDepth {
			break
		}
		if l.name == name {
			p.error("Already a variable with this name in this scope.")
		}
	}
	p.addLocal(name)
}

func (p *parser) addLocal(name string) {
	if len(p.cur.locals) >= maxLocals {
		p.error("Too many local variables in function.")
		return
	}
	p.cur.locals = append(p.cur.locals, localVar{name: name, depth: -1})
}

func (p *parser) markInitialized() {
	if p.cur.scopeDepth == 0 {
		return
	}
	p.cur.locals[len(p.cur.locals)-1].depth = p.cur.scopeDepth
}

func (p *parser) parseVariable(errMsg string) byte {
	p.consume(token.IDENTIFIER, errMsg)
	p.declareVariable()
	if p.cur.scopeDepth > 0 {
		return 0 // locals aren't looked up by name at runtime
	}
	return p.identifierConstant(p.previous)
}

func (p *parser) defineVariable(global byte) {
	if p.cur.scopeDepth > 0 {
		p.markInitialized()
		return
	}
	p.emitOpByte(obj.OpDefineGlobal, global)
}

// resolveLocal searches fc's locals top-down for name, returning its slot.
// A match with depth == -1 (declared but not yet initialized) is reported
// as a compile error: `var a = a;` reading itself.
func (p *parser) resolveLocal(fc *funcCompiler, name string) int {
	for i := len(fc.locals) - 1; i >= 0; i-- {
		if fc.locals[i].name == name {
			if fc.locals[i].depth == -1 {
				p.error("Can't read local variable in its own initializer.")
			}
			return i
		}
	}
	return -1
}

// resolveUpvalue resolves name as a captured variable of an enclosing
// function, walking the funcCompiler chain. It returns -1 if name is not
// found in any enclosing function (and should be treated as global).
func (p *parser) resolveUpvalue(fc *funcCompiler, name string) int {
	if fc.enclosing == nil {
		return -1
	}
	if local := p.resolveLocal(fc.enclosing, name); local != -1 {
		fc.enclosing.locals[local].isCaptured = true
		return p.addUpvalue(fc, uint8(local), true)
	}
	if up := p.resolveUpvalue(fc.enclosing, name); up != -1 {
		return p.addUpvalue(fc, uint8(up), false)
	}
	return -1
}

func (p *parser) addUpvalue(fc *funcCompiler, index uint8, isLocal bool) int {
	for i, u := range fc.upvalues {
		if u.index == index && u.isLocal == isLocal {
			return i
		}
	}
	if len(fc.upvalues) >= maxUpvalues {
		p.error("Too many closure variables in function.")
		return 0
	}
	fc.upvalues = append(fc.upvalues, upvalueRef{index: index, isLocal: isLocal})
	fc.fn.UpvalueCount = len(fc.upvalues)
	return len(fc.upvalues) - 1
}

// namedVariable resolves name through the three-tier scope search (locals,
// enclosing-function upvalues, globals) and emits the GET or (if canAssign
// and the next token is '=') SET opcode for it.
func (p *parser) namedVariable(name token.Token, canAssign bool) {
	var getOp, setOp obj.OpCode
	var arg byte

	if slot := p.resolveLocal(p.cur, name.Lexeme); slot != -1 {
		getOp, setOp = obj.OpGetLocal, obj.OpSetLocal
		arg = byte(slot)
	} else if up := p.resolveUpvalue(p.cur, name.Lexeme); up != -1 {
		getOp, setOp = obj.OpGetUpvalue, obj.OpSetUpvalue
		arg = byte(up)
	} else {
		getOp, setOp = obj.OpGetGlobal, obj.OpSetGlobal
		arg = p.identifierConstant(name)
	}

	if canAssign && p.match(token.EQUAL) {
		p.expression()
		p.emitOpByte(setOp, arg)
	} else {
		p.emitOpByte(getOp, arg)
	}
}
