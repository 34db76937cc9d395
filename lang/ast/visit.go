package ast

// Children returns the indices of node i's children, in left-to-right
// order, by walking the Child/Next chain.
func Children(fn *Function, i int32) []int32 {
	if i == NoIndex {
		return nil
	}
	c := fn.Nodes[i].Child
	if c == NoIndex {
		return nil
	}
	var out []int32
	for c != NoIndex {
		out = append(out, c)
		next := fn.Nodes[c].Next
		if next == i {
			break // last child's Next points to the parent
		}
		c = next
	}
	return out
}

// KindName returns a short human-readable label for a Kind, used by Dump and
// diagnostics.
func (k Kind) KindName() string { return kindNames[k] }

var kindNames = map[Kind]string{
	Null: "null", True: "true", False: "false", Number: "number", String: "string",
	Name: "name", LocalName: "local", LocalNameSuper: "local-super",
	UpvalName: "upval", UpvalNameSuper: "upval-super", OutenvName: "outenv",
	GlobalName: "global", Unary: "unary", Binary: "binary", Compare: "compare",
	LogicalAnd: "and", LogicalOr: "or", IfThenElse: "if-then-else", Call: "call",
	Key: "key", Index: "index", Unpack: "unpack", Yield: "yield", YieldFor: "yield-for",
	Lambda: "lambda", ObjectDef: "object", ArrayDef: "array", TableDef: "table",
	KeyVal: "keyval", VarDecl: "var-decl", LocalDecl: "local-decl",
	ObjKeyDecl: "objkey-decl", Assign: "assign", OpAssign: "op-assign", If: "if",
	Elif: "elif", ForStep: "for-step", ForEach: "for-each", While: "while",
	Repeat: "repeat", Break: "break", Continue: "continue", Return: "return",
	Throw: "throw", ExprStmt: "expr-stmt", FunctionNode: "function", Block: "block",
	Params: "params",
}
