package ir

func (c OpCode) String() string {
	if c >= 0 && int(c) < len(opCodeNames) && opCodeNames[c] != "" {
		return opCodeNames[c]
	}
	return "<invalid opcode>"
}

var opCodeNames = [...]string{
	NOP: "nop",

	CONST_NULL: "const_null", CONST_BOOL: "const_bool", CONST_NUMBER: "const_number",
	CONST_STRING: "const_string", CONST_FUNCTION: "const_function",

	LOCAL_GET: "local_get", LOCAL_SET: "local_set",
	UPVAL_GET: "upval_get", UPVAL_SET: "upval_set",
	OUTENV_GET: "outenv_get", OUTENV_SET: "outenv_set",
	GLOBAL_GET: "global_get", GLOBAL_SET: "global_set",

	ADD: "add", SUB: "sub", MUL: "mul", DIV: "div", IDIV: "idiv", MOD: "mod",
	CONCAT: "concat", BIT_AND: "bit_and", BIT_OR: "bit_or", BIT_XOR: "bit_xor",
	LSHIFT: "lshift", RSHIFT: "rshift", ASHIFT: "ashift",
	CMP_LT: "cmp_lt", CMP_LE: "cmp_le", CMP_GT: "cmp_gt", CMP_GE: "cmp_ge",
	CMP_EQ: "cmp_eq", CMP_NE: "cmp_ne", CMP_IS: "cmp_is", CMP_ISNOT: "cmp_isnot",

	NEG: "neg", UNM: "unm", BIT_NOT: "bit_not", LOGICAL_NOT: "logical_not", LEN: "len",

	NEW_ARRAY: "new_array", NEW_TABLE: "new_table", NEW_OBJECT: "new_object",
	APPEND: "append", TABLE_SET: "table_set", OBJ_SET: "obj_set",
	KEY_GET: "key_get", KEY_SET: "key_set", INDEX_GET: "index_get", INDEX_SET: "index_set",
	UNPACK: "unpack",

	CALL: "call", YCALL: "ycall", YIELD: "yield",

	JUMP: "jump", JUMP_TEST: "jump_test", JUMP_RETURN: "jump_return",
	JUMP_FOR_SGEN: "jump_for_sgen", JUMP_FOR_EGEN: "jump_for_egen",

	PHI: "phi", REF: "ref",

	NEW_UPSTACK: "new_upstack", CLOSE_UPSTACK: "close_upstack",

	B_AND: "b_and", B_CUT: "b_cut", B_DEF: "b_def", B_PHI: "b_phi",

	ADDK: "addk", ADDI: "addi", SUBK: "subk", SUBI: "subi", MULK: "mulk", MULI: "muli",
	CONCATK: "concatk", RCONCATK: "rconcatk",
	GET_INDEXK: "get_indexk", GET_INDEXI: "get_indexi",
	SET_INDEXK: "set_indexk", SET_INDEXI: "set_indexi",
}
