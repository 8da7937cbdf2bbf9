package scanner_test

import (
	"testing"

	"github.com/mna/lox/lang/scanner"
	"github.com/mna/lox/lang/token"
	"github.com/stretchr/testify/require"
)

func scanAll(t *testing.T, src string) []token.Token {
	t.Helper()
	s := scanner.New(src)
	var toks []token.Token
	for {
		tok := s.Scan()
		toks = append(toks, tok)
		if tok.Kind == token.EOF {
			break
		}
	}
	return toks
}

func kinds(toks []token.Token) []token.Kind {
	out := make([]token.Kind, len(toks))
	for i, tok := range toks {
		out[i] = tok.Kind
	}
	return out
}

func TestScanPunctuationAndOperators(t *testing.T) {
	toks := scanAll(t, "(){};,+-*!===<=>=!=<>/.")
	require.Equal(t, []token.Kind{
		token.LEFT_PAREN, token.RIGHT_PAREN, token.LEFT_BRACE, token.RIGHT_BRACE,
		token.SEMICOLON, token.COMMA, token.PLUS, token.MINUS, token.STAR,
		token.BANG_EQUAL, token.EQUAL_EQUAL, token.LESS_EQUAL, token.GREATER_EQUAL,
		token.BANG_EQUAL, token.LESS, token.GREATER, token.SLASH, token.DOT, token.EOF,
	}, kinds(toks))
}

func TestScanKeywordsVsIdentifiers(t *testing.T) {
	toks := scanAll(t, "for false foreach falsely var x")
	require.Equal(t, []token.Kind{
		token.FOR, token.FALSE, token.IDENTIFIER, token.IDENTIFIER, token.VAR, token.IDENTIFIER, token.EOF,
	}, kinds(toks))
}

func TestScanStringLiteral(t *testing.T) {
	toks := scanAll(t, `"hello\nworld"`)
	require.Equal(t, token.STRING, toks[0].Kind)
	require.Equal(t, `"hello\nworld"`, toks[0].Lexeme)
}

func TestScanMultilineString(t *testing.T) {
	toks := scanAll(t, "\"a\nb\" x")
	require.Equal(t, token.STRING, toks[0].Kind)
	require.Equal(t, token.IDENTIFIER, toks[1].Kind)
	require.Equal(t, 2, toks[1].Line)
}

func TestScanUnterminatedString(t *testing.T) {
	toks := scanAll(t, `"abc`)
	require.Equal(t, token.ILLEGAL, toks[0].Kind)
	require.Equal(t, "Unterminated string.", toks[0].Lexeme)
}

func TestScanNumber(t *testing.T) {
	toks := scanAll(t, "123 45.67 8.")
	require.Equal(t, token.NUMBER, toks[0].Kind)
	require.Equal(t, "123", toks[0].Lexeme)
	require.Equal(t, token.NUMBER, toks[1].Kind)
	require.Equal(t, "45.67", toks[1].Lexeme)
	// trailing dot with no digit after is not part of the number
	require.Equal(t, "8", toks[2].Lexeme)
	require.Equal(t, token.DOT, toks[3].Kind)
}

func TestScanLineComments(t *testing.T) {
	toks := scanAll(t, "var x; // this is a comment\nvar y;")
	require.Equal(t, []token.Kind{
		token.VAR, token.IDENTIFIER, token.SEMICOLON,
		token.VAR, token.IDENTIFIER, token.SEMICOLON, token.EOF,
	}, kinds(toks))
	require.Equal(t, 2, toks[3].Line)
}

func TestScanUnexpectedCharacter(t *testing.T) {
	toks := scanAll(t, "@")
	require.Equal(t, token.ILLEGAL, toks[0].Kind)
	require.Equal(t, "Unexpected character.", toks[0].Lexeme)
}
