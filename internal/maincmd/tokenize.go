package maincmd

import (
	"context"
	"fmt"
	"os"

	"github.com/mna/mainer"
	"github.com/mna/lox/lang/scanner"
	"github.com/mna/lox/lang/token"
)

// Tokenize runs only the scanner over each file in args and prints the
// resulting tokens, one per line.
func (c *Cmd) Tokenize(ctx context.Context, stdio mainer.Stdio, args []string) error {
	_ = ctx
	if len(args) == 0 {
		return fmt.Errorf("tokenize: at least one file must be provided")
	}
	for _, path := range args {
		src, err := os.ReadFile(path)
		if err != nil {
			return &ioError{err: err}
		}
		sc := scanner.New(string(src))
		for {
			tok := sc.Scan()
			fmt.Fprintf(stdio.Stdout, "%4d %-14s %q\n", tok.Line, tok.Kind, tok.Lexeme)
			if tok.Kind == token.EOF {
				break
			}
			if tok.Kind == token.ILLEGAL {
				fmt.Fprintf(stdio.Stderr, "%s\n", tok.Lexeme)
			}
		}
	}
	return nil
}
