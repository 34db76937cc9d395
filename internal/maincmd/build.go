package maincmd

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/mna/mainer"

	"github.com/mna/kenafgo/lang/bytecode"
	"github.com/mna/kenafgo/lang/compiler"
)

// Build runs the full compilation pipeline over the single file named in
// args, prints diagnostics to stderr, and on success disassembles the
// resulting bytecode image to stdout (spec.md §6.5).
func (c *Cmd) Build(_ context.Context, stdio mainer.Stdio, args []string) error {
	text, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}

	var flags compiler.DebugFlags
	if c.DumpIRBuild {
		flags |= compiler.DumpIRBuild
	}
	if c.DumpIRFold {
		flags |= compiler.DumpIRFold
	}

	res := compiler.Compile(args[0], text, flags)
	for _, d := range res.Diagnostics {
		fmt.Fprintln(stdio.Stderr, d.Error())
	}
	if !res.Success {
		return fmt.Errorf("%s: compilation failed", args[0])
	}

	script, derr := bytecode.Decode(res.Code)
	if derr != nil {
		fmt.Fprintln(stdio.Stderr, derr)
		return derr
	}
	bytecode.Disassemble(stdio.Stdout, script)

	fmt.Fprintf(stdio.Stdout, "; %s functions, %s bytes\n",
		humanize.Comma(int64(len(script.Functions))), humanize.Comma(int64(len(res.Code))))
	return nil
}
