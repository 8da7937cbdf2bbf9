package token

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindString(t *testing.T) {
	for k := Kind(0); k < maxKind; k++ {
		if k == kwStart || k == kwEnd {
			continue
		}
		require.NotEmpty(t, k.String(), "kind %d missing string representation", k)
	}
}

func TestKeyword(t *testing.T) {
	cases := map[string]Kind{
		"and": AND, "class": CLASS, "else": ELSE, "false": FALSE,
		"for": FOR, "fun": FUN, "if": IF, "nil": NIL, "or": OR,
		"print": PRINT, "return": RETURN, "super": SUPER, "this": THIS,
		"true": TRUE, "var": VAR, "while": WHILE,
	}
	for lexeme, want := range cases {
		require.Equal(t, want, Keyword(lexeme), lexeme)
	}

	notKeywords := []string{"", "f", "fo", "foreach", "forx", "t", "th", "trueish", "falsely", "andy"}
	for _, lexeme := range notKeywords {
		require.Equal(t, IDENTIFIER, Keyword(lexeme), lexeme)
	}
}

func TestIsKeyword(t *testing.T) {
	require.True(t, IsKeyword(FOR))
	require.True(t, IsKeyword(WHILE))
	require.False(t, IsKeyword(IDENTIFIER))
	require.False(t, IsKeyword(EOF))
}
