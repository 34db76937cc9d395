package maincmd

import (
	"context"
	"fmt"

	"github.com/mna/mainer"

	"github.com/mna/kenafgo/lang/ast"
	"github.com/mna/kenafgo/lang/parser"
)

// Parse runs the lexer and parser over the single file named in args and
// prints the resulting AST to stdout.
func (c *Cmd) Parse(_ context.Context, stdio mainer.Stdio, args []string) error {
	buf, errs, err := readSource(args[0])
	if err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}
	top := parser.Parse(buf, errs)
	fmt.Fprint(stdio.Stdout, ast.Dump(top))
	return printDiagnostics(stdio, errs)
}
