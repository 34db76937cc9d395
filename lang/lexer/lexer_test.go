package lexer_test

import (
	"bytes"
	"context"
	"flag"
	"path/filepath"
	"testing"

	"github.com/mna/mainer"

	"github.com/mna/kenafgo/internal/filetest"
	"github.com/mna/kenafgo/internal/maincmd"
)

var testUpdateLexerTests = flag.Bool("test.update-lexer-tests", false, "If set, replace expected lexer test results with actual results.")

// TestScan drives the lexer through the kenafc "tokenize" subcommand over a
// golden-file corpus, the same shape the teacher runs its scanner tests in.
func TestScan(t *testing.T) {
	ctx := context.Background()
	srcDir, resultDir := filepath.Join("testdata", "in"), filepath.Join("testdata", "out")

	var c maincmd.Cmd
	for _, fi := range filetest.SourceFiles(t, srcDir, ".kenaf") {
		t.Run(fi.Name(), func(t *testing.T) {
			var buf, ebuf bytes.Buffer
			stdio := mainer.Stdio{Stdout: &buf, Stderr: &ebuf}

			// error is ignored, we just want it printed to ebuf
			_ = c.Tokenize(ctx, stdio, []string{filepath.Join(srcDir, fi.Name())})
			filetest.DiffOutput(t, fi, buf.String(), resultDir, testUpdateLexerTests)
			filetest.DiffErrors(t, fi, ebuf.String(), resultDir, testUpdateLexerTests)
		})
	}
}
