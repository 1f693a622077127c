package expr

// node is the AST for the expression language. Each node type
// implements eval(ctx) by type-switching in eval.go.
type node interface{}

type litNode struct{ val any }

type identNode struct{ name string }

type memberNode struct {
	target node
	name   string
}

type indexNode struct {
	target node
	index  node
}

type callNode struct {
	target node // nil for bare function calls by name
	name   string
	args   []node
}

type arrayNode struct{ elems []node }

type objectNode struct {
	keys []string
	vals []node
}

type unaryNode struct {
	op  tokenKind
	rhs node
}

type binaryNode struct {
	op       tokenKind
	lhs, rhs node
}

type ternaryNode struct {
	cond, then, els node
}

type pipeNode struct {
	src       node
	transform string
	args      []node
}
