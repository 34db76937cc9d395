// Package diag implements the compiler's shared diagnostics sink: an
// ordered, sortable list of errors and warnings, grounded in the same
// go/scanner.ErrorList idiom the teacher's lang/scanner package type-aliases.
package diag

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mna/kenafgo/lang/source"
)

// Kind distinguishes a diagnostic that fails compilation from one that is
// merely informational.
type Kind int

const (
	// Error diagnostics cause CompilationResult.Success to be false.
	Error Kind = iota
	// Warning diagnostics are reported but never fail compilation on their own.
	Warning
)

func (k Kind) String() string {
	if k == Warning {
		return "warning"
	}
	return "error"
}

// Diagnostic is a single compiler message, per spec.md §6.4: kind, 1-based
// line/column, and a POSIX-style message.
type Diagnostic struct {
	Kind     Kind
	Line     int
	Column   int
	Message  string
	Filename string
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s: %s", d.Filename, d.Line, d.Column, d.Kind, d.Message)
}

// Sink accumulates diagnostics in program order, then sorts them by position
// for stable, reproducible output (spec.md §8.1 determinism).
type Sink struct {
	Filename string
	list     []Diagnostic
}

// NewSink creates a Sink for the named source file.
func NewSink(filename string) *Sink {
	return &Sink{Filename: filename}
}

// Add appends a diagnostic at the given source offset, translated to
// line/column via buf.
func (s *Sink) Add(buf *source.Buffer, at source.Pos, kind Kind, format string, args ...any) {
	loc := buf.Location(at)
	s.list = append(s.list, Diagnostic{
		Kind:     kind,
		Line:     loc.Line,
		Column:   loc.Column,
		Message:  fmt.Sprintf(format, args...),
		Filename: s.Filename,
	})
}

// Errorf adds an Error diagnostic.
func (s *Sink) Errorf(buf *source.Buffer, at source.Pos, format string, args ...any) {
	s.Add(buf, at, Error, format, args...)
}

// Warnf adds a Warning diagnostic.
func (s *Sink) Warnf(buf *source.Buffer, at source.Pos, format string, args ...any) {
	s.Add(buf, at, Warning, format, args...)
}

// List returns the accumulated diagnostics, sorted by position.
func (s *Sink) List() []Diagnostic {
	sort.SliceStable(s.list, func(i, j int) bool {
		a, b := s.list[i], s.list[j]
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Column < b.Column
	})
	return s.list
}

// HasErrors reports whether any Error-kind diagnostic was recorded.
func (s *Sink) HasErrors() bool {
	for _, d := range s.list {
		if d.Kind == Error {
			return true
		}
	}
	return false
}

// Err returns nil if no Error-kind diagnostic was recorded, otherwise an
// error whose message joins every diagnostic (errors and warnings alike) and
// which implements Unwrap() []error for errors.Is/As compatibility.
func (s *Sink) Err() error {
	if !s.HasErrors() {
		return nil
	}
	return &errList{diags: s.List()}
}

type errList struct{ diags []Diagnostic }

func (e *errList) Error() string {
	var sb strings.Builder
	for i, d := range e.diags {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(d.Error())
	}
	return sb.String()
}

func (e *errList) Unwrap() []error {
	errs := make([]error, len(e.diags))
	for i, d := range e.diags {
		d := d
		errs[i] = &d
	}
	return errs
}
