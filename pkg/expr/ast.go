package expr

// kind tags every node of the expression tree. Everything from kindAttribute
// onwards is recognized by the parser only so the validator can name it in
// a SecurityError; the evaluator never sees those tags.
type kind uint8

const (
	kindConst kind = iota
	kindName
	kindList
	kindDict
	kindBoolOp
	kindUnary
	kindCompare
	kindSubscript
	kindSlice
	kindCall
	kindListComp
	kindSetComp
	kindDictComp
	kindGenExp

	kindAttribute
	kindBinOp
	kindLambda
	kindIfExp
	kindTuple
	kindSet
	kindStarred
	kindKeyword
	kindNamedExpr
	kindAssign
	kindFString
	kindAwait
	kindStatement
)

var kindNames = map[kind]string{
	kindConst:     "literal",
	kindName:      "name",
	kindList:      "list",
	kindDict:      "dict",
	kindBoolOp:    "boolean operator",
	kindUnary:     "unary operator",
	kindCompare:   "comparison",
	kindSubscript: "subscript",
	kindSlice:     "slice",
	kindCall:      "call",
	kindListComp:  "list comprehension",
	kindSetComp:   "set comprehension",
	kindDictComp:  "dict comprehension",
	kindGenExp:    "generator expression",
	kindAttribute: "attribute access",
	kindBinOp:     "arithmetic",
	kindLambda:    "lambda",
	kindIfExp:     "conditional expression",
	kindTuple:     "tuple",
	kindSet:       "set literal",
	kindStarred:   "unpacking",
	kindKeyword:   "keyword argument",
	kindNamedExpr: "assignment expression",
	kindAssign:    "assignment",
	kindFString:   "formatted string",
	kindAwait:     "await",
	kindStatement: "statement",
}

func (k kind) String() string { return kindNames[k] }

type node struct {
	kind kind
	pos  int

	value any      // kindConst
	name  string   // kindName, kindAttribute, kindKeyword, kindStatement
	op    string   // kindBoolOp, kindUnary, kindBinOp, kindAssign
	ops   []string // kindCompare, one per comparator

	x    *node   // operand, callee, subscripted value, element or key
	y    *node   // right operand, dict comprehension value
	args []*node // elements, call arguments, boolean operands, comparators
	keys []*node // kindDict keys, parallel to args

	lower, upper, step *node // kindSlice

	gens []*comprehension
}

type comprehension struct {
	target *node
	iter   *node
	ifs    []*node
}

// walk visits n and all its descendants depth first until fn returns false.
func walk(n *node, fn func(*node) bool) bool {
	if n == nil {
		return true
	}
	if !fn(n) {
		return false
	}
	for _, c := range []*node{n.x, n.y, n.lower, n.upper, n.step} {
		if !walk(c, fn) {
			return false
		}
	}
	for _, c := range n.keys {
		if !walk(c, fn) {
			return false
		}
	}
	for _, c := range n.args {
		if !walk(c, fn) {
			return false
		}
	}
	for _, g := range n.gens {
		if !walk(g.target, fn) || !walk(g.iter, fn) {
			return false
		}
		for _, c := range g.ifs {
			if !walk(c, fn) {
				return false
			}
		}
	}
	return true
}
