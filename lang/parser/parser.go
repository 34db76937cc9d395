// Package parser implements the compiler's recursive-descent parser
// (spec.md §4.2 permits any technique that accepts the grammar; we trade the
// original's generated LALR state machine for a hand-written descent parser,
// the idiom the rest of the retrieval pack's from-scratch language
// implementations reach for — e.g. the teacher's own lang/parser, which is
// itself hand-written atop a small expression/statement split). The parser
// builds the flat postorder AST (package ast) directly through
// ast.Builder, prepends the synthetic "args" vararg parameter, wraps the
// whole input in an implicit top-level function, and runs ast.Fixup once
// parsing completes.
package parser

import (
	"github.com/mna/kenafgo/lang/ast"
	"github.com/mna/kenafgo/lang/diag"
	"github.com/mna/kenafgo/lang/lexer"
	"github.com/mna/kenafgo/lang/source"
	"github.com/mna/kenafgo/lang/token"
)

// Parser owns the AST under construction and the stack of functions
// corresponding to nested lambda/def definitions, per spec.md §4.2.
type Parser struct {
	buf  *source.Buffer
	lex  *lexer.Lexer
	errs *diag.Sink

	tok  token.Token // current token
	next token.Token // one token of lookahead

	fnStack []*funcCtx
}

type funcCtx struct {
	fn *ast.Function
	b  *ast.Builder
}

// Parse tokenizes and parses buf, returning the implicit top-level Function.
// Errors are reported into errs; on any ERROR diagnostic the result AST may
// be partial but is always a consistently-shaped tree (fixup always runs).
func Parse(buf *source.Buffer, errs *diag.Sink) *ast.Function {
	p := &Parser{buf: buf, errs: errs, lex: lexer.New(buf, errs)}
	p.tok = p.lex.Scan()
	p.next = p.lex.Scan()

	top := &ast.Function{Name: "<top-level>", Pos: 0, Flags: ast.FlagTopLevel | ast.FlagVararg}
	b := ast.NewBuilder(top)
	p.pushFunc(top, b)

	argsPos := source.Pos(0)
	top.Locals = append(top.Locals, &ast.Local{Name: "args", Decl: argsPos, IsParameter: true, IsVararg: true})

	start := p.tok.Pos
	stmts := p.parseStmtList(token.EOF)
	blockEnd := p.tok.Pos
	blockNode := b.Node(ast.Block, start, firstOf(stmts))
	_ = blockEnd
	top.Nodes[blockNode].Pos = start

	p.popFunc()

	for _, fc := range allFuncs(top) {
		ast.Fixup(fc)
	}
	return top
}

func firstOf(children []int32) int32 {
	if len(children) == 0 {
		return ast.NoIndex
	}
	return children[0]
}

// allFuncs returns fn and every function nested (transitively) within it, in
// an order where a function always appears before its own Fixup dependents
// (order does not matter for Fixup itself, since each function's node
// vector is independent).
func allFuncs(fn *ast.Function) []*ast.Function {
	out := []*ast.Function{fn}
	for i := range fn.Nodes {
		if fn.Nodes[i].Leaf == ast.LeafFunction {
			out = append(out, allFuncs(fn.Payloads[i].Func)...)
		}
	}
	return out
}

func (p *Parser) pushFunc(fn *ast.Function, b *ast.Builder) {
	p.fnStack = append(p.fnStack, &funcCtx{fn: fn, b: b})
}

func (p *Parser) popFunc() {
	p.fnStack = p.fnStack[:len(p.fnStack)-1]
}

func (p *Parser) cur() *funcCtx { return p.fnStack[len(p.fnStack)-1] }

func (p *Parser) advance() {
	p.tok = p.next
	p.next = p.lex.Scan()
}

func (p *Parser) at(k token.Kind) bool { return p.tok.Kind == k }

func (p *Parser) accept(k token.Kind) bool {
	if p.at(k) {
		p.advance()
		return true
	}
	return false
}

// expect consumes the current token if it matches k, else reports a syntax
// error at the token's location and does NOT advance, letting the caller's
// enclosing recovery (typically: skip to a statement boundary) take over.
func (p *Parser) expect(k token.Kind) token.Token {
	if !p.at(k) {
		p.syntaxError()
		return p.tok
	}
	tok := p.tok
	p.advance()
	return tok
}

// syntaxError reports "unexpected <token spelling>" per spec.md §6.4/§7, and
// performs minimal error recovery by skipping tokens until a likely
// statement or block boundary, so parsing can continue and cascaded errors
// are still reported (spec.md §4.1/§4.2).
func (p *Parser) syntaxError() {
	p.errs.Errorf(p.buf, p.tok.Pos, "unexpected %s", tokenSpelling(p.tok))
	for !p.at(token.EOF) && !isRecoveryPoint(p.tok.Kind) {
		p.advance()
	}
}

func tokenSpelling(t token.Token) string {
	if t.Value.Raw != "" {
		return t.Value.Raw
	}
	return t.Kind.String()
}

func isRecoveryPoint(k token.Kind) bool {
	switch k {
	case token.SEMI, token.END, token.ELSE, token.ELIF, token.UNTIL, token.EOF,
		token.VAR, token.IF, token.FOR, token.WHILE, token.REPEAT, token.RETURN,
		token.BREAK, token.CONTINUE, token.THROW, token.DEF:
		return true
	default:
		return false
	}
}
