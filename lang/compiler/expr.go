package compiler

import (
	"strconv"

	"github.com/mna/lox/lang/obj"
	"github.com/mna/lox/lang/token"
)

// precedence orders Lox's binary operators from loosest- to tightest-binding,
// used by parsePrecedence to decide how far an infix chain should extend.
type precedence uint8

const (
	precNone       precedence = iota
	precAssignment            // =
	precOr                    // or
	precAnd                   // and
	precEquality              // == !=
	precComparison            // < > <= >=
	precTerm                  // + -
	precFactor                // * /
	precUnary                 // ! -
	precCall                  // . ()
	precPrimary
)

type (
	prefixFn func(p *parser, canAssign bool)
	infixFn  func(p *parser, canAssign bool)
)

type parseRule struct {
	prefix     prefixFn
	infix      infixFn
	precedence precedence
}

// rules is the Pratt parse-rule table, indexed by token.Kind. A zero-value
// parseRule (all nils, precNone) means the token never starts or continues
// an expression. It is filled in by init because its handlers refer back to
// it through getRule, which a package-level initializer cannot do.
var rules map[token.Kind]parseRule

func init() {
	rules = map[token.Kind]parseRule{
		token.LEFT_PAREN:    {prefix: (*parser).grouping, infix: (*parser).call, precedence: precCall},
		token.DOT:           {infix: (*parser).dot, precedence: precCall},
		token.MINUS:         {prefix: (*parser).unary, infix: (*parser).binary, precedence: precTerm},
		token.PLUS:          {infix: (*parser).binary, precedence: precTerm},
		token.SLASH:         {infix: (*parser).binary, precedence: precFactor},
		token.STAR:          {infix: (*parser).binary, precedence: precFactor},
		token.BANG:          {prefix: (*parser).unary},
		token.BANG_EQUAL:    {infix: (*parser).binary, precedence: precEquality},
		token.EQUAL_EQUAL:   {infix: (*parser).binary, precedence: precEquality},
		token.GREATER:       {infix: (*parser).binary, precedence: precComparison},
		token.GREATER_EQUAL: {infix: (*parser).binary, precedence: precComparison},
		token.LESS:          {infix: (*parser).binary, precedence: precComparison},
		token.LESS_EQUAL:    {infix: (*parser).binary, precedence: precComparison},
		token.IDENTIFIER:    {prefix: (*parser).variable},
		token.STRING:        {prefix: (*parser).string},
		token.NUMBER:        {prefix: (*parser).number},
		token.AND:           {infix: (*parser).and_, precedence: precAnd},
		token.OR:            {infix: (*parser).or_, precedence: precOr},
		token.FALSE:         {prefix: (*parser).literal},
		token.NIL:           {prefix: (*parser).literal},
		token.TRUE:          {prefix: (*parser).literal},
		token.THIS:          {prefix: (*parser).this},
		token.SUPER:         {prefix: (*parser).super},
	}
}

func getRule(k token.Kind) parseRule { return rules[k] }

func (p *parser) expression() { p.parsePrecedence(precAssignment) }

// parsePrecedence is the heart of the Pratt parser: it consumes one prefix
// expression, then keeps folding in infix operators as long as their
// precedence is at least minPrec, emitting bytecode for each as it goes.
// canAssign is only true at precAssignment so that e.g. `a + b = c` is
// rejected: the `=` in binary's token stream is never reached as an infix
// operator of `+`, so assignment's prefix-parsed left side (`variable`)
// would wrongly consume the `=` if canAssign leaked into a tighter context.
func (p *parser) parsePrecedence(minPrec precedence) {
	p.advance()
	rule := getRule(p.previous.Kind)
	if rule.prefix == nil {
		p.error("Expect expression.")
		return
	}
	canAssign := minPrec <= precAssignment
	rule.prefix(p, canAssign)

	for minPrec <= getRule(p.current.Kind).precedence {
		p.advance()
		infix := getRule(p.previous.Kind).infix
		infix(p, canAssign)
	}

	if canAssign && p.match(token.EQUAL) {
		p.error("Invalid assignment target.")
	}
}

func (p *parser) number(_ bool) {
	n, err := strconv.ParseFloat(p.previous.Lexeme, 64)
	if err != nil {
		p.error("Invalid number literal.")
		return
	}
	p.emitConstant(obj.Number(n))
}

func (p *parser) string(_ bool) {
	// Lexeme spans the full token including the surrounding quotes.
	raw := p.previous.Lexeme
	p.emitConstant(p.heap.Intern(raw[1 : len(raw)-1]))
}

func (p *parser) literal(_ bool) {
	switch p.previous.Kind {
	case token.FALSE:
		p.emitOp(obj.OpFalse)
	case token.TRUE:
		p.emitOp(obj.OpTrue)
	case token.NIL:
		p.emitOp(obj.OpNil)
	}
}

func (p *parser) grouping(_ bool) {
	p.expression()
	p.consume(token.RIGHT_PAREN, "Expect ')' after expression.")
}

func (p *parser) unary(_ bool) {
	op := p.previous.Kind
	p.parsePrecedence(precUnary)
	switch op {
	case token.MINUS:
		p.emitOp(obj.OpNegate)
	case token.BANG:
		p.emitOp(obj.OpNot)
	}
}

func (p *parser) binary(_ bool) {
	op := p.previous.Kind
	rule := getRule(op)
	p.parsePrecedence(rule.precedence + 1)

	switch op {
	case token.BANG_EQUAL:
		p.emitOp(obj.OpEqual)
		p.emitOp(obj.OpNot)
	case token.EQUAL_EQUAL:
		p.emitOp(obj.OpEqual)
	case token.GREATER:
		p.emitOp(obj.OpGreater)
	case token.GREATER_EQUAL:
		p.emitOp(obj.OpLess)
		p.emitOp(obj.OpNot)
	case token.LESS:
		p.emitOp(obj.OpLess)
	case token.LESS_EQUAL:
		p.emitOp(obj.OpGreater)
		p.emitOp(obj.OpNot)
	case token.PLUS:
		p.emitOp(obj.OpAdd)
	case token.MINUS:
		p.emitOp(obj.OpSubtract)
	case token.STAR:
		p.emitOp(obj.OpMultiply)
	case token.SLASH:
		p.emitOp(obj.OpDivide)
	}
}

// and_ short-circuits: if the left operand is falsey, skip the right operand
// entirely and leave the falsey left value as the result.
func (p *parser) and_(_ bool) {
	endJump := p.emitJump(obj.OpJumpIfFalse)
	p.emitOp(obj.OpPop)
	p.parsePrecedence(precAnd)
	p.patchJump(endJump)
}

// or_ short-circuits the other way: if the left operand is truthy, skip the
// right operand.
func (p *parser) or_(_ bool) {
	elseJump := p.emitJump(obj.OpJumpIfFalse)
	endJump := p.emitJump(obj.OpJump)

	p.patchJump(elseJump)
	p.emitOp(obj.OpPop)
	p.parsePrecedence(precOr)
	p.patchJump(endJump)
}

func (p *parser) variable(canAssign bool) { p.namedVariable(p.previous, canAssign) }

func (p *parser) this(_ bool) {
	if p.class == nil {
		p.error("Can't use 'this' outside of a class.")
		return
	}
	p.variable(false)
}

func (p *parser) super(_ bool) {
	if p.class == nil {
		p.error("Can't use 'super' outside of a class.")
	} else if !p.class.hasSuperclass {
		p.error("Can't use 'super' in a class with no superclass.")
	}

	p.consume(token.DOT, "Expect '.' after 'super'.")
	p.consume(token.IDENTIFIER, "Expect superclass method name.")
	name := p.identifierConstant(p.previous)

	p.namedVariable(syntheticToken("this"), false)
	if p.match(token.LEFT_PAREN) {
		argCount := p.argumentList()
		p.namedVariable(syntheticToken("super"), false)
		p.emitOpByte(obj.OpSuperInvoke, name)
		p.emitByte(argCount)
		return
	}
	p.namedVariable(syntheticToken("super"), false)
	p.emitOpByte(obj.OpGetSuper, name)
}

func syntheticToken(lexeme string) token.Token {
	return token.Token{Kind: token.IDENTIFIER, Lexeme: lexeme}
}

func (p *parser) call(_ bool) {
	argCount := p.argumentList()
	p.emitOpByte(obj.OpCall, argCount)
}

func (p *parser) dot(canAssign bool) {
	p.consume(token.IDENTIFIER, "Expect property name after '.'.")
	name := p.identifierConstant(p.previous)

	switch {
	case canAssign && p.match(token.EQUAL):
		p.expression()
		p.emitOpByte(obj.OpSetProperty, name)
	case p.match(token.LEFT_PAREN):
		argCount := p.argumentList()
		p.emitOpByte(obj.OpInvoke, name)
		p.emitByte(argCount)
	default:
		p.emitOpByte(obj.OpGetProperty, name)
	}
}

func (p *parser) argumentList() byte {
	var count int
	if !p.check(token.RIGHT_PAREN) {
		for {
			p.expression()
			if count == 255 {
				p.error("Can't have more than 255 arguments.")
			}
			count++
			if !p.match(token.COMMA) {
				break
			}
		}
	}
	p.consume(token.RIGHT_PAREN, "Expect ')' after arguments.")
	return byte(count)
}
