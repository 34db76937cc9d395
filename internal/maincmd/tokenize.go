package maincmd

import (
	"context"
	"fmt"
	"os"

	"github.com/mna/mainer"

	"github.com/mna/kenafgo/lang/diag"
	"github.com/mna/kenafgo/lang/lexer"
	"github.com/mna/kenafgo/lang/source"
	"github.com/mna/kenafgo/lang/token"
)

// Tokenize runs the lexer over the single file named in args and prints one
// line per token to stdout.
func (c *Cmd) Tokenize(_ context.Context, stdio mainer.Stdio, args []string) error {
	buf, errs, err := readSource(args[0])
	if err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}

	lx := lexer.New(buf, errs)
	for {
		tok := lx.Scan()
		loc := buf.Location(tok.Pos)
		fmt.Fprintf(stdio.Stdout, "%s:%d:%d: %s", args[0], loc.Line, loc.Column, tok.Kind)
		if tok.Value.Raw != "" {
			fmt.Fprintf(stdio.Stdout, " %q", tok.Value.Raw)
		}
		fmt.Fprintln(stdio.Stdout)
		if tok.Kind == token.EOF {
			break
		}
	}
	return printDiagnostics(stdio, errs)
}

func readSource(path string) (*source.Buffer, *diag.Sink, error) {
	text, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	return source.New(path, text), diag.NewSink(path), nil
}

// printDiagnostics prints every accumulated diagnostic to stderr in
// path:line:col: kind: message form (spec.md §6.5), returning an error iff
// any of them is an ERROR.
func printDiagnostics(stdio mainer.Stdio, errs *diag.Sink) error {
	for _, d := range errs.List() {
		fmt.Fprintln(stdio.Stderr, d.Error())
	}
	if errs.HasErrors() {
		return errs.Err()
	}
	return nil
}
