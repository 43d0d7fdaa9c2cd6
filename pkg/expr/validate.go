package expr

import "fmt"

// Functions callable from an expression. The set is closed: nothing can be
// registered at run time.
var whitelist = map[string]bool{
	"len": true, "upper": true, "lower": true, "str": true, "int": true,
	"float": true, "bool": true, "list": true, "dict": true, "all": true,
	"any": true, "filter": true, "map": true, "sum": true, "max": true,
	"min": true,
}

// Allowed reports whether name is one of the callable functions.
func Allowed(name string) bool { return whitelist[name] }

// Validate parses text and checks that it only uses the allowed grammar.
// It returns nil, a *SyntaxError or a *SecurityError, and never evaluates
// anything.
func Validate(text string) error {
	_, err := Compile(text)
	return err
}

// check walks the whole tree and rejects the first node whose tag is not
// allowed. It is purely structural.
func check(src string, root *node) error {
	var err error
	walk(root, func(n *node) bool {
		err = checkNode(src, n)
		return err == nil
	})
	return err
}

func checkNode(src string, n *node) error {
	deny := func(construct string) error {
		return &SecurityError{Expr: src, Pos: n.pos, Construct: construct}
	}

	switch n.kind {
	case kindConst, kindName, kindList, kindDict, kindBoolOp, kindCompare,
		kindSubscript, kindSlice:
		if n.kind == kindDict {
			for _, k := range n.keys {
				if k == nil {
					return deny("dict unpacking")
				}
			}
		}
		return nil
	case kindUnary:
		switch n.op {
		case "not", "-", "+":
			return nil
		}
		return deny(fmt.Sprintf("operator %q", n.op))
	case kindCall:
		if n.x.kind != kindName {
			return deny("call through a non-identifier")
		}
		if !whitelist[n.x.name] {
			return deny(fmt.Sprintf("call to %q", n.x.name))
		}
		return nil
	case kindListComp, kindSetComp, kindDictComp, kindGenExp:
		for _, g := range n.gens {
			if g.target.kind != kindName {
				return deny("destructuring loop variable")
			}
		}
		return nil
	case kindStatement:
		return deny(fmt.Sprintf("%q statement", n.name))
	case kindBinOp:
		return deny(fmt.Sprintf("operator %q", n.op))
	default:
		return deny(n.kind.String())
	}
}
