// Package source implements the compiler's shared source buffer: the
// append-only byte buffer every pass reads from, its newline index for fast
// offset-to-line/column mapping, and the arena used to intern synthesized
// strings (escape-processed literals, constant-folded concatenations).
package source

import (
	"sort"
	"strings"
)

// Lookahead is the number of NUL padding bytes appended after the source
// text, so the lexer can read up to 3 bytes past any position without bounds
// checks.
const Lookahead = 4

// Pos is an absolute byte offset into a Buffer's text. It is the compiler's
// srcloc.
type Pos int

// Invalid is the Pos used where no location is known. It is not Pos's zero
// value: offset 0 is a real position.
const Invalid Pos = -1

// Buffer owns one source file's text (padded with Lookahead NUL bytes), its
// newline index, and an arena of interned synthesized strings. A Buffer
// outlives every structure derived from it within one compilation: tokens,
// AST nodes and IR all carry Pos values or slices that are only meaningful
// relative to the Buffer that produced them.
type Buffer struct {
	Name string // filename, or "" for an anonymous chunk

	text     []byte // source text, Lookahead NUL bytes appended
	textLen  int    // length of the real text, excluding the padding
	newlines []Pos  // offsets of '\n' bytes, increasing order

	interned map[string]string // dedup set for Intern
}

// New creates a Buffer over text. The buffer makes its own padded copy of
// text; the caller's slice is not retained.
func New(name string, text []byte) *Buffer {
	b := &Buffer{
		Name:     name,
		textLen:  len(text),
		interned: make(map[string]string),
	}
	b.text = make([]byte, len(text)+Lookahead)
	copy(b.text, text)
	for i, c := range b.text[:b.textLen] {
		if c == '\n' {
			b.newlines = append(b.newlines, Pos(i))
		}
	}
	return b
}

// Text returns the real source text, excluding lookahead padding.
func (b *Buffer) Text() []byte { return b.text[:b.textLen] }

// Len returns the length of the real source text.
func (b *Buffer) Len() int { return b.textLen }

// PaddedText returns the source text including the trailing NUL lookahead
// padding, for use by the lexer.
func (b *Buffer) PaddedText() []byte { return b.text }

// Byte returns the byte at offset off, which may range up to Len()+Lookahead.
func (b *Buffer) Byte(off Pos) byte { return b.text[off] }

// Slice returns the text in [lo, hi).
func (b *Buffer) Slice(lo, hi Pos) string { return string(b.text[lo:hi]) }

// Intern returns a stable, deduplicated copy of s, owned by the buffer's
// arena. Used for escape-processed string literals and constant-folded
// concatenation results, which do not correspond to a contiguous source
// slice.
func (b *Buffer) Intern(s string) string {
	if v, ok := b.interned[s]; ok {
		return v
	}
	// copy s so the caller's (possibly transient, e.g. strings.Builder) buffer
	// is not retained.
	v := strings.Clone(s)
	b.interned[v] = v
	return v
}

// Location is a human-readable, 1-based line/column position.
type Location struct {
	Line, Column int
}

// Newlines returns the offsets of every '\n' byte in the source text, in
// increasing order, for the debug line table lang/emitter writes into the
// bytecode image.
func (b *Buffer) Newlines() []Pos { return b.newlines }

// Location maps an absolute byte offset to a 1-based (line, column) pair.
// Line is the count of newlines at or before off, plus one. Column is the
// 1-based byte offset from the preceding newline (or from the start of
// text).
func (b *Buffer) Location(off Pos) Location {
	// index of the first newline offset > off is also the count of newlines
	// at or before off, since newlines are stored in increasing order.
	i := sort.Search(len(b.newlines), func(i int) bool { return b.newlines[i] > off })
	line := i + 1

	var lineStart Pos
	if i > 0 {
		lineStart = b.newlines[i-1] + 1
	}
	col := int(off-lineStart) + 1
	return Location{Line: line, Column: col}
}
