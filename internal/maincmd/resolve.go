package maincmd

import (
	"context"
	"fmt"

	"github.com/mna/mainer"

	"github.com/mna/kenafgo/lang/ast"
	"github.com/mna/kenafgo/lang/parser"
	"github.com/mna/kenafgo/lang/resolver"
)

// Resolve runs the lexer, parser and resolver over the single file named in
// args and prints the resolved AST to stdout.
func (c *Cmd) Resolve(_ context.Context, stdio mainer.Stdio, args []string) error {
	buf, errs, err := readSource(args[0])
	if err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}
	top := parser.Parse(buf, errs)
	resolver.Resolve(buf, errs, top)
	fmt.Fprint(stdio.Stdout, ast.Dump(top))
	return printDiagnostics(stdio, errs)
}
