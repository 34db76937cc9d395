package token

import "github.com/mna/kenafgo/lang/source"

// Token is a single lexical token: its kind, its originating source
// location, and its payload (spelling view, decoded string, or number).
type Token struct {
	Kind  Kind
	Pos   source.Pos
	Value Value
}
