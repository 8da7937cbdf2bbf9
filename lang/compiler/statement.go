package compiler

import (
	"github.com/mna/lox/lang/obj"
	"github.com/mna/lox/lang/token"
)

// declaration parses one top-level or block-level declaration, recovering at
// the next statement boundary if a syntax error was raised while parsing it.
func (p *parser) declaration() {
	switch {
	case p.match(token.CLASS):
		p.classDeclaration()
	case p.match(token.FUN):
		p.funDeclaration()
	case p.match(token.VAR):
		p.varDeclaration()
	default:
		p.statement()
	}
	if p.panicMode {
		p.synchronize()
	}
}

func (p *parser) statement() {
	switch {
	case p.match(token.PRINT):
		p.printStatement()
	case p.match(token.IF):
		p.ifStatement()
	case p.match(token.RETURN):
		p.returnStatement()
	case p.match(token.WHILE):
		p.whileStatement()
	case p.match(token.FOR):
		p.forStatement()
	case p.match(token.LEFT_BRACE):
		p.beginScope()
		p.block()
		p.endScope()
	default:
		p.expressionStatement()
	}
}

func (p *parser) printStatement() {
	p.expression()
	p.consume(token.SEMICOLON, "Expect ';' after value.")
	p.emitOp(obj.OpPrint)
}

func (p *parser) expressionStatement() {
	p.expression()
	p.consume(token.SEMICOLON, "Expect ';' after expression.")
	p.emitOp(obj.OpPop)
}

func (p *parser) block() {
	for !p.check(token.RIGHT_BRACE) && !p.check(token.EOF) {
		p.declaration()
	}
	p.consume(token.RIGHT_BRACE, "Expect '}' after block.")
}

func (p *parser) ifStatement() {
	p.consume(token.LEFT_PAREN, "Expect '(' after 'if'.")
	p.expression()
	p.consume(token.RIGHT_PAREN, "Expect ')' after condition.")

	thenJump := p.emitJump(obj.OpJumpIfFalse)
	p.emitOp(obj.OpPop)
	p.statement()

	elseJump := p.emitJump(obj.OpJump)
	p.patchJump(thenJump)
	p.emitOp(obj.OpPop)

	if p.match(token.ELSE) {
		p.statement()
	}
	p.patchJump(elseJump)
}

func (p *parser) whileStatement() {
	loopStart := len(p.chunk().Code)
	p.consume(token.LEFT_PAREN, "Expect '(' after 'while'.")
	p.expression()
	p.consume(token.RIGHT_PAREN, "Expect ')' after condition.")

	exitJump := p.emitJump(obj.OpJumpIfFalse)
	p.emitOp(obj.OpPop)
	p.statement()
	p.emitLoop(loopStart)

	p.patchJump(exitJump)
	p.emitOp(obj.OpPop)
}

// forStatement desugars the C-style for loop into the equivalent while loop:
// the initializer runs once outside any loop construct, the condition is
// checked before every iteration (defaulting to "true" if omitted), and the
// increment is spliced in as a statement executed at the end of the loop
// body via a small jump dance (body -> increment -> condition check).
func (p *parser) forStatement() {
	p.beginScope()
	p.consume(token.LEFT_PAREN, "Expect '(' after 'for'.")

	switch {
	case p.match(token.SEMICOLON):
		// no initializer
	case p.match(token.VAR):
		p.varDeclaration()
	default:
		p.expressionStatement()
	}

	loopStart := len(p.chunk().Code)
	exitJump := -1
	if !p.match(token.SEMICOLON) {
		p.expression()
		p.consume(token.SEMICOLON, "Expect ';' after loop condition.")
		exitJump = p.emitJump(obj.OpJumpIfFalse)
		p.emitOp(obj.OpPop)
	}

	if !p.match(token.RIGHT_PAREN) {
		bodyJump := p.emitJump(obj.OpJump)
		incrementStart := len(p.chunk().Code)
		p.expression()
		p.emitOp(obj.OpPop)
		p.consume(token.RIGHT_PAREN, "Expect ')' after for clauses.")

		p.emitLoop(loopStart)
		loopStart = incrementStart
		p.patchJump(bodyJump)
	}

	p.statement()
	p.emitLoop(loopStart)

	if exitJump != -1 {
		p.patchJump(exitJump)
		p.emitOp(obj.OpPop)
	}
	p.endScope()
}

func (p *parser) returnStatement() {
	if p.cur.fn.Kind == obj.KindScript {
		p.error("Can't return from top-level code.")
	}
	if p.match(token.SEMICOLON) {
		p.emitReturn()
		return
	}
	if p.cur.fn.Kind == obj.KindInitializer {
		p.error("Can't return a value from an initializer.")
	}
	p.expression()
	p.consume(token.SEMICOLON, "Expect ';' after return value.")
	p.emitOp(obj.OpReturn)
}

func (p *parser) varDeclaration() {
	global := p.parseVariable("Expect variable name.")
	if p.match(token.EQUAL) {
		p.expression()
	} else {
		p.emitOp(obj.OpNil)
	}
	p.consume(token.SEMICOLON, "Expect ';' after variable declaration.")
	p.defineVariable(global)
}

func (p *parser) funDeclaration() {
	global := p.parseVariable("Expect function name.")
	p.markInitialized()
	p.function(obj.KindPlainFunction)
	p.defineVariable(global)
}

// function compiles a function's parameter list and body into its own
// funcCompiler/Chunk, then emits a CLOSURE instruction in the *enclosing*
// chunk that packages the resulting Function together with its captured
// upvalues (each described by a trailing (isLocal, index) byte pair).
func (p *parser) function(kind obj.FunctionKind) {
	name := p.heap.Intern(p.previous.Lexeme)
	fc := &funcCompiler{enclosing: p.cur, fn: p.heap.NewFunction(name, kind)}
	if kind != obj.KindPlainFunction {
		fc.locals = append(fc.locals, localVar{name: "this", depth: 0})
	} else {
		fc.locals = append(fc.locals, localVar{name: "", depth: 0})
	}
	p.cur = fc

	p.beginScope()
	p.consume(token.LEFT_PAREN, "Expect '(' after function name.")
	if !p.check(token.RIGHT_PAREN) {
		for {
			p.cur.fn.Arity++
			if p.cur.fn.Arity > 255 {
				p.errorAtCurrent("Can't have more than 255 parameters.")
			}
			constant := p.parseVariable("Expect parameter name.")
			p.defineVariable(constant)
			if !p.match(token.COMMA) {
				break
			}
		}
	}
	p.consume(token.RIGHT_PAREN, "Expect ')' after parameters.")
	p.consume(token.LEFT_BRACE, "Expect '{' before function body.")
	p.block()

	compiled := p.endFuncCompiler()
	upvalues := fc.upvalues
	p.emitOpByte(obj.OpClosure, p.makeConstant(compiled))
	for _, u := range upvalues {
		b := byte(0)
		if u.isLocal {
			b = 1
		}
		p.emitByte(b)
		p.emitByte(u.index)
	}
}

func (p *parser) classDeclaration() {
	p.consume(token.IDENTIFIER, "Expect class name.")
	nameTok := p.previous
	nameConst := p.identifierConstant(nameTok)
	p.declareVariable()

	p.emitOpByte(obj.OpClass, nameConst)
	p.defineVariable(nameConst)

	cc := &classCompiler{enclosing: p.class}
	p.class = cc

	if p.match(token.LESS) {
		p.consume(token.IDENTIFIER, "Expect superclass name.")
		p.namedVariable(p.previous, false)
		if p.previous.Lexeme == nameTok.Lexeme {
			p.error("A class can't inherit from itself.")
		}

		p.beginScope()
		p.addLocal("super")
		p.defineVariable(0)

		p.namedVariable(nameTok, false)
		p.emitOp(obj.OpInherit)
		cc.hasSuperclass = true
	}

	p.namedVariable(nameTok, false)
	p.consume(token.LEFT_BRACE, "Expect '{' before class body.")
	for !p.check(token.RIGHT_BRACE) && !p.check(token.EOF) {
		p.method()
	}
	p.consume(token.RIGHT_BRACE, "Expect '}' after class body.")
	p.emitOp(obj.OpPop) // the class itself, pushed again above for method binding

	if cc.hasSuperclass {
		p.endScope()
	}
	p.class = cc.enclosing
}

func (p *parser) method() {
	p.consume(token.IDENTIFIER, "Expect method name.")
	nameTok := p.previous
	constant := p.identifierConstant(nameTok)

	kind := obj.KindMethod
	if nameTok.Lexeme == "init" {
		kind = obj.KindInitializer
	}
	p.function(kind)
	p.emitOpByte(obj.OpMethod, constant)
}
