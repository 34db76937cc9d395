package parser

import (
	"github.com/mna/kenafgo/lang/ast"
	"github.com/mna/kenafgo/lang/token"
)

// assignOps maps a compound-assignment token to the binary operator it
// applies, per spec.md §6.1's op-assign forms.
var assignOps = map[token.Kind]token.Kind{
	token.STAR_ASSIGN:    token.STAR,
	token.SLASH_ASSIGN:   token.SLASH,
	token.SLASH2_ASSIGN:  token.SLASH2,
	token.PERCENT_ASSIGN: token.PERCENT,
	token.PLUS_ASSIGN:    token.PLUS,
	token.MINUS_ASSIGN:   token.MINUS,
	token.TILDE_ASSIGN:   token.TILDE,
	token.LSHIFT_ASSIGN:  token.LSHIFT,
	token.RSHIFT_ASSIGN:  token.RSHIFT,
	token.ASHIFT_ASSIGN:  token.ASHIFT,
	token.AMP_ASSIGN:     token.AMP,
	token.CARET_ASSIGN:   token.CARET,
	token.PIPE_ASSIGN:    token.PIPE,
}

func isOpAssign(k token.Kind) bool {
	_, ok := assignOps[k]
	return ok
}

// parseStmtList parses statements until the current token is end or EOF,
// returning the root index of each statement in source order. Each
// statement is a self-contained subtree; the caller threads them together
// as the children of a Block node.
func (p *Parser) parseStmtList(end token.Kind) []int32 {
	return p.parseStmtListUntilAny(end)
}

// parseStmtListUntilAny is parseStmtList generalized to several possible
// terminators, used for if/elif/else bodies which stop at whichever of
// elif/else/end comes first.
func (p *Parser) parseStmtListUntilAny(ends ...token.Kind) []int32 {
	var out []int32
	for !p.atAny(ends...) && !p.at(token.EOF) {
		if p.accept(token.SEMI) {
			continue
		}
		out = append(out, p.parseStmt())
	}
	return out
}

func (p *Parser) atAny(ks ...token.Kind) bool {
	for _, k := range ks {
		if p.at(k) {
			return true
		}
	}
	return false
}

func (p *Parser) parseStmt() int32 {
	fc := p.cur()
	pos := p.tok.Pos

	switch p.tok.Kind {
	case token.VAR:
		return p.parseVarDecl()
	case token.IF:
		return p.parseIf()
	case token.FOR:
		return p.parseFor()
	case token.WHILE:
		return p.parseWhile()
	case token.REPEAT:
		return p.parseRepeat()
	case token.BREAK:
		p.advance()
		return fc.b.Node(ast.Break, pos, ast.NoIndex)
	case token.CONTINUE:
		p.advance()
		return fc.b.Node(ast.Continue, pos, ast.NoIndex)
	case token.RETURN:
		p.advance()
		first := ast.NoIndex
		if yieldHasOperand(p.tok.Kind) {
			first = p.parseExpr()
			for p.accept(token.COMMA) {
				p.parseExpr()
			}
		}
		return fc.b.Node(ast.Return, pos, first)
	case token.THROW:
		p.advance()
		e := p.parseExpr()
		return fc.b.Node(ast.Throw, pos, e)
	default:
		return p.parseExprOrAssignStmt()
	}
}

// parseVarDecl parses "var a, b, c = e1, e2, e3" (the initializer list is
// optional). Children are pushed as every LocalDecl first, in declaration
// order, followed by every initializer expression (if any) in the same
// order; irbuild pairs decl i with initializer i by position, not by
// threading an explicit link per pair.
func (p *Parser) parseVarDecl() int32 {
	fc := p.cur()
	pos := p.tok.Pos
	p.advance() // var

	var decls []int32
	for {
		nameTok := p.expect(token.IDENT)
		decls = append(decls, fc.b.StringNode(ast.LocalDecl, nameTok.Pos, nameTok.Value.Raw))
		fc.fn.Locals = append(fc.fn.Locals, &ast.Local{Name: nameTok.Value.Raw, Decl: nameTok.Pos})
		if !p.accept(token.COMMA) {
			break
		}
	}

	if p.accept(token.ASSIGN) {
		p.parseExpr()
		for p.accept(token.COMMA) {
			p.parseExpr()
		}
	}

	return fc.b.Node(ast.VarDecl, pos, firstOf(decls))
}

// parseExprOrAssignStmt parses a bare expression statement, or an
// assignment/op-assignment whose left-hand side is one or more
// comma-separated assignable expressions.
func (p *Parser) parseExprOrAssignStmt() int32 {
	fc := p.cur()
	pos := p.tok.Pos

	var lhs []int32
	lhs = append(lhs, p.parseExpr())
	for p.accept(token.COMMA) {
		lhs = append(lhs, p.parseExpr())
	}

	switch {
	case p.at(token.ASSIGN):
		p.advance()
		nvals := 1
		p.parseExpr()
		for p.accept(token.COMMA) {
			p.parseExpr()
			nvals++
		}
		if nvals != len(lhs) {
			p.errs.Errorf(p.buf, pos, "assignment has %d targets but %d values", len(lhs), nvals)
		}
		return fc.b.Node(ast.Assign, pos, firstOf(lhs))
	case isOpAssign(p.tok.Kind):
		if len(lhs) != 1 {
			p.errs.Errorf(p.buf, p.tok.Pos, "compound assignment requires a single target")
		}
		op := assignOps[p.tok.Kind]
		p.advance()
		p.parseExpr()
		return fc.b.OpNode(ast.OpAssign, pos, op, firstOf(lhs))
	default:
		if len(lhs) != 1 {
			p.errs.Errorf(p.buf, pos, "unexpected ,")
		}
		return fc.b.Node(ast.ExprStmt, pos, firstOf(lhs))
	}
}

// parseIf parses "if cond block (elif cond block)* (else block)? end". The
// whole construct is one If node whose Child is the leading condition; its
// later children, in source order, are the then-block, one Elif node per
// elif (whose own children are that arm's cond and block) and the trailing
// else block, if any (spec.md
// §6.1, §4.4.1's AST_EXPR_IF/AST_EXPR_ELIF shape generalized to statements).
func (p *Parser) parseIf() int32 {
	fc := p.cur()
	pos := p.tok.Pos
	p.advance() // if

	cond := p.parseExpr()
	stmts := p.parseStmtListUntilAny(token.ELIF, token.ELSE, token.END)
	fc.b.Node(ast.Block, fc.fn.Nodes[cond].Pos, firstOf(stmts))

	for p.at(token.ELIF) {
		elifPos := p.tok.Pos
		p.advance()
		econd := p.parseExpr()
		estmts := p.parseStmtListUntilAny(token.ELIF, token.ELSE, token.END)
		fc.b.Node(ast.Block, fc.fn.Nodes[econd].Pos, firstOf(estmts))
		fc.b.Node(ast.Elif, elifPos, econd)
	}

	if p.accept(token.ELSE) {
		estmts := p.parseStmtListUntilAny(token.END)
		fc.b.Node(ast.Block, p.tok.Pos, firstOf(estmts))
	}

	p.expect(token.END)
	return fc.b.Node(ast.If, pos, cond)
}

func (p *Parser) parseWhile() int32 {
	fc := p.cur()
	pos := p.tok.Pos
	p.advance() // while
	cond := p.parseExpr()
	stmts := p.parseStmtList(token.END)
	fc.b.Node(ast.Block, fc.fn.Nodes[cond].Pos, firstOf(stmts))
	p.expect(token.END)
	return fc.b.Node(ast.While, pos, cond)
}

// parseRepeat parses "repeat block until cond". The body is parsed before
// the condition, matching the postorder child order (Child = body block).
func (p *Parser) parseRepeat() int32 {
	fc := p.cur()
	pos := p.tok.Pos
	p.advance() // repeat
	start := p.tok.Pos
	stmts := p.parseStmtList(token.UNTIL)
	blk := fc.b.Node(ast.Block, start, firstOf(stmts))
	p.expect(token.UNTIL)
	p.parseExpr()
	return fc.b.Node(ast.Repeat, pos, blk)
}

// parseFor parses either "for name = start : stop (: step)? block end"
// (ForStep) or "for name : iterable block end" (ForEach), disambiguated by
// whether '=' follows the name (spec.md §6.1).
func (p *Parser) parseFor() int32 {
	fc := p.cur()
	pos := p.tok.Pos
	p.advance() // for

	nameTok := p.expect(token.IDENT)
	decl := fc.b.StringNode(ast.LocalDecl, nameTok.Pos, nameTok.Value.Raw)
	fc.fn.Locals = append(fc.fn.Locals, &ast.Local{Name: nameTok.Value.Raw, Decl: nameTok.Pos})

	if p.accept(token.ASSIGN) {
		p.parseExpr() // start
		p.expect(token.COLON)
		p.parseExpr() // stop
		if p.accept(token.COLON) {
			p.parseExpr() // step
		}
		stmts := p.parseStmtList(token.END)
		fc.b.Node(ast.Block, p.tok.Pos, firstOf(stmts))
		p.expect(token.END)
		return fc.b.Node(ast.ForStep, pos, decl)
	}

	p.expect(token.COLON)
	p.parseExpr() // iterable
	stmts := p.parseStmtList(token.END)
	fc.b.Node(ast.Block, p.tok.Pos, firstOf(stmts))
	p.expect(token.END)
	return fc.b.Node(ast.ForEach, pos, decl)
}
