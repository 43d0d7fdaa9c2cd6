package expr

import (
	"fmt"
	"slices"
)

// Keywords that can only start a statement. An expression beginning with
// one of them parses into a kindStatement node.
var statementKeywords = map[string]bool{
	"import": true, "from": true, "def": true, "class": true, "global": true,
	"nonlocal": true, "del": true, "pass": true, "return": true, "raise": true,
	"assert": true, "with": true, "while": true, "for": true, "try": true,
	"async": true, "yield": true, "break": true, "continue": true,
}

var reserved = map[string]bool{
	"and": true, "or": true, "not": true, "in": true, "is": true, "if": true,
	"else": true, "elif": true, "for": true, "lambda": true, "import": true,
	"from": true, "def": true, "class": true, "global": true, "nonlocal": true,
	"del": true, "pass": true, "return": true, "raise": true, "assert": true,
	"with": true, "while": true, "try": true, "except": true, "finally": true,
	"async": true, "await": true, "yield": true, "break": true, "continue": true,
	"as": true,
}

var augmented = map[string]bool{
	"+=": true, "-=": true, "*=": true, "/=": true, "//=": true, "%=": true,
	"**=": true, ">>=": true, "<<=": true, "&=": true, "|=": true, "^=": true, "@=": true,
}

type parser struct {
	src  string
	toks []token
	pos  int
}

// parse turns src into a tree. Forbidden constructs are parsed like any
// other; rejecting them is the validator's job.
func parse(src string) (*node, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{src: src, toks: toks}
	if p.peek().kind == tokEOF {
		return nil, p.errorf(p.peek(), "empty expression")
	}

	root, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.errorf(t, "unexpected %s", describe(t))
	}
	return root, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) peekAt(n int) token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+n]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) accept(kind tokenKind, text string) bool {
	if p.peek().is(kind, text) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(kind tokenKind, text string) (token, error) {
	t := p.peek()
	if !t.is(kind, text) {
		return t, p.errorf(t, "expected %q, found %s", text, describe(t))
	}
	p.pos++
	return t, nil
}

func (p *parser) errorf(t token, format string, args ...any) error {
	return &SyntaxError{Expr: p.src, Pos: t.pos, Msg: fmt.Sprintf(format, args...)}
}

func describe(t token) string {
	switch t.kind {
	case tokEOF:
		return "end of expression"
	case tokName:
		return fmt.Sprintf("name %q", t.text)
	default:
		return fmt.Sprintf("%q", t.text)
	}
}

func (p *parser) isKeyword(word string) bool {
	t := p.peek()
	return t.kind == tokName && t.text == word
}

func (p *parser) parseStatement() (*node, error) {
	t := p.peek()
	if t.kind == tokName && statementKeywords[t.text] {
		return p.parseForbiddenStatement()
	}

	target, err := p.parseNamedTest()
	if err != nil {
		return nil, err
	}

	op := p.peek()
	if op.kind == tokOp && (op.text == "=" || augmented[op.text]) {
		p.next()
		value, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		return &node{kind: kindAssign, pos: op.pos, op: op.text, x: target, y: value}, nil
	}
	if op.is(tokOp, ",") {
		return p.parseTupleTail(target)
	}
	return target, nil
}

// parseForbiddenStatement consumes a statement that can never be part of an
// expression. The remaining tokens are already known to be lexically valid.
func (p *parser) parseForbiddenStatement() (*node, error) {
	kw := p.next()
	switch kw.text {
	case "import":
		if err := p.expectDottedName(); err != nil {
			return nil, err
		}
	case "from":
		if err := p.expectDottedName(); err != nil {
			return nil, err
		}
		if !p.isKeyword("import") {
			return nil, p.errorf(p.peek(), "expected \"import\", found %s", describe(p.peek()))
		}
	case "def", "class":
		if t := p.peek(); t.kind != tokName || reserved[t.text] {
			return nil, p.errorf(t, "expected a name after %q", kw.text)
		}
	}
	for p.peek().kind != tokEOF {
		p.next()
	}
	return &node{kind: kindStatement, pos: kw.pos, name: kw.text}, nil
}

func (p *parser) expectDottedName() error {
	t := p.peek()
	if t.is(tokOp, ".") || t.is(tokOp, "...") {
		p.next()
		return nil
	}
	if t.kind != tokName || reserved[t.text] {
		return p.errorf(t, "expected a module name, found %s", describe(t))
	}
	return nil
}

func (p *parser) parseTupleTail(first *node) (*node, error) {
	tuple := &node{kind: kindTuple, pos: first.pos, args: []*node{first}}
	for p.accept(tokOp, ",") {
		if stopsTuple(p.peek()) {
			break
		}
		elem, err := p.parseNamedTest()
		if err != nil {
			return nil, err
		}
		tuple.args = append(tuple.args, elem)
	}
	return tuple, nil
}

func stopsTuple(t token) bool {
	return t.kind == tokEOF || t.is(tokOp, ")") || t.is(tokOp, "]") || t.is(tokOp, "=")
}

// parseNamedTest handles `name := value` on top of a regular test.
func (p *parser) parseNamedTest() (*node, error) {
	if t := p.peek(); t.kind == tokName && p.peekAt(1).is(tokOp, ":=") {
		p.pos += 2
		value, err := p.parseTest()
		if err != nil {
			return nil, err
		}
		return &node{kind: kindNamedExpr, pos: t.pos, name: t.text, y: value}, nil
	}
	return p.parseTest()
}

func (p *parser) parseTest() (*node, error) {
	if p.isKeyword("lambda") {
		return p.parseLambda()
	}
	body, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind == tokName && t.text == "if" {
		p.next()
		cond, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if !p.isKeyword("else") {
			return nil, p.errorf(p.peek(), "expected \"else\" in conditional expression")
		}
		p.next()
		orElse, err := p.parseTest()
		if err != nil {
			return nil, err
		}
		return &node{kind: kindIfExp, pos: t.pos, x: body, y: orElse, args: []*node{cond}}, nil
	}
	return body, nil
}

func (p *parser) parseLambda() (*node, error) {
	kw := p.next()
	for !p.peek().is(tokOp, ":") {
		t := p.next()
		if t.kind == tokEOF {
			return nil, p.errorf(t, "expected \":\" in lambda")
		}
	}
	p.next()
	body, err := p.parseTest()
	if err != nil {
		return nil, err
	}
	return &node{kind: kindLambda, pos: kw.pos, x: body}, nil
}

func (p *parser) parseOr() (*node, error) {
	return p.parseBoolOp("or", p.parseAnd)
}

func (p *parser) parseAnd() (*node, error) {
	return p.parseBoolOp("and", p.parseNot)
}

func (p *parser) parseBoolOp(op string, operand func() (*node, error)) (*node, error) {
	first, err := operand()
	if err != nil {
		return nil, err
	}
	if !p.isKeyword(op) {
		return first, nil
	}
	n := &node{kind: kindBoolOp, pos: first.pos, op: op, args: []*node{first}}
	for p.isKeyword(op) {
		p.next()
		next, err := operand()
		if err != nil {
			return nil, err
		}
		n.args = append(n.args, next)
	}
	return n, nil
}

func (p *parser) parseNot() (*node, error) {
	if t := p.peek(); t.kind == tokName && t.text == "not" {
		p.next()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &node{kind: kindUnary, pos: t.pos, op: "not", x: operand}, nil
	}
	return p.parseComparison()
}

func (p *parser) compareOp() (string, bool) {
	t := p.peek()
	switch {
	case t.kind == tokOp:
		switch t.text {
		case "==", "!=", "<", "<=", ">", ">=":
			p.next()
			return t.text, true
		}
	case t.kind == tokName && t.text == "in":
		p.next()
		return "in", true
	case t.kind == tokName && t.text == "not" && p.peekAt(1).is(tokName, "in"):
		p.pos += 2
		return "not in", true
	case t.kind == tokName && t.text == "is":
		p.next()
		if p.accept(tokName, "not") {
			return "is not", true
		}
		return "is", true
	}
	return "", false
}

func (p *parser) parseComparison() (*node, error) {
	left, err := p.parseBinary(0)
	if err != nil {
		return nil, err
	}
	var n *node
	for {
		op, ok := p.compareOp()
		if !ok {
			break
		}
		right, err := p.parseBinary(0)
		if err != nil {
			return nil, err
		}
		if n == nil {
			n = &node{kind: kindCompare, pos: left.pos, x: left}
		}
		n.ops = append(n.ops, op)
		n.args = append(n.args, right)
	}
	if n == nil {
		return left, nil
	}
	return n, nil
}

// Binary operator levels, loosest first. None of them is allowed in a
// condition, but they still have to parse so they can be reported.
var binaryLevels = [][]string{
	{"|"},
	{"^"},
	{"&"},
	{"<<", ">>"},
	{"+", "-"},
	{"*", "/", "//", "%", "@"},
}

func (p *parser) parseBinary(level int) (*node, error) {
	if level == len(binaryLevels) {
		return p.parseFactor()
	}
	left, err := p.parseBinary(level + 1)
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokOp || !slices.Contains(binaryLevels[level], t.text) {
			return left, nil
		}
		p.next()
		right, err := p.parseBinary(level + 1)
		if err != nil {
			return nil, err
		}
		left = &node{kind: kindBinOp, pos: t.pos, op: t.text, x: left, y: right}
	}
}

func (p *parser) parseFactor() (*node, error) {
	t := p.peek()
	if t.kind == tokOp && (t.text == "-" || t.text == "+" || t.text == "~") {
		p.next()
		operand, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		return &node{kind: kindUnary, pos: t.pos, op: t.text, x: operand}, nil
	}
	return p.parsePower()
}

func (p *parser) parsePower() (*node, error) {
	var base *node
	var err error
	if t := p.peek(); t.is(tokName, "await") {
		p.next()
		operand, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		base = &node{kind: kindAwait, pos: t.pos, x: operand}
	} else if base, err = p.parsePrimary(); err != nil {
		return nil, err
	}
	if t := p.peek(); t.is(tokOp, "**") {
		p.next()
		exp, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		return &node{kind: kindBinOp, pos: t.pos, op: "**", x: base, y: exp}, nil
	}
	return base, nil
}

func (p *parser) parsePrimary() (*node, error) {
	n, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		switch {
		case t.is(tokOp, "("):
			p.next()
			args, err := p.parseCallArgs()
			if err != nil {
				return nil, err
			}
			n = &node{kind: kindCall, pos: t.pos, x: n, args: args}
		case t.is(tokOp, "["):
			p.next()
			index, err := p.parseSubscript()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tokOp, "]"); err != nil {
				return nil, err
			}
			n = &node{kind: kindSubscript, pos: t.pos, x: n, y: index}
		case t.is(tokOp, "."):
			p.next()
			attr := p.next()
			if attr.kind != tokName {
				return nil, p.errorf(attr, "expected attribute name, found %s", describe(attr))
			}
			n = &node{kind: kindAttribute, pos: t.pos, name: attr.text, x: n}
		default:
			return n, nil
		}
	}
}

func (p *parser) parseCallArgs() ([]*node, error) {
	var args []*node
	for !p.accept(tokOp, ")") {
		arg, err := p.parseArgument()
		if err != nil {
			return nil, err
		}
		if p.isKeyword("for") {
			gens, err := p.parseComprehensions()
			if err != nil {
				return nil, err
			}
			arg = &node{kind: kindGenExp, pos: arg.pos, x: arg, gens: gens}
		}
		args = append(args, arg)
		if !p.accept(tokOp, ",") {
			if _, err := p.expect(tokOp, ")"); err != nil {
				return nil, err
			}
			break
		}
	}
	return args, nil
}

func (p *parser) parseArgument() (*node, error) {
	t := p.peek()
	if t.is(tokOp, "*") || t.is(tokOp, "**") {
		p.next()
		value, err := p.parseTest()
		if err != nil {
			return nil, err
		}
		return &node{kind: kindStarred, pos: t.pos, op: t.text, x: value}, nil
	}
	if t.kind == tokName && p.peekAt(1).is(tokOp, "=") {
		p.pos += 2
		value, err := p.parseTest()
		if err != nil {
			return nil, err
		}
		return &node{kind: kindKeyword, pos: t.pos, name: t.text, x: value}, nil
	}
	return p.parseNamedTest()
}

func (p *parser) parseSubscript() (*node, error) {
	first, err := p.parseSliceOrTest()
	if err != nil {
		return nil, err
	}
	if !p.peek().is(tokOp, ",") {
		return first, nil
	}
	tuple := &node{kind: kindTuple, pos: first.pos, args: []*node{first}}
	for p.accept(tokOp, ",") {
		if p.peek().is(tokOp, "]") {
			break
		}
		elem, err := p.parseSliceOrTest()
		if err != nil {
			return nil, err
		}
		tuple.args = append(tuple.args, elem)
	}
	return tuple, nil
}

func (p *parser) parseSliceOrTest() (*node, error) {
	start := p.peek()
	var lower *node
	if !start.is(tokOp, ":") {
		n, err := p.parseNamedTest()
		if err != nil {
			return nil, err
		}
		if !p.peek().is(tokOp, ":") {
			return n, nil
		}
		lower = n
	}

	s := &node{kind: kindSlice, pos: start.pos, lower: lower}
	p.next() // first ':'
	var err error
	if !p.endsSlicePart() {
		if s.upper, err = p.parseTest(); err != nil {
			return nil, err
		}
	}
	if p.accept(tokOp, ":") && !p.endsSlicePart() {
		if s.step, err = p.parseTest(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (p *parser) endsSlicePart() bool {
	t := p.peek()
	return t.is(tokOp, "]") || t.is(tokOp, ":") || t.is(tokOp, ",")
}

func (p *parser) parseAtom() (*node, error) {
	t := p.peek()
	switch t.kind {
	case tokNumber:
		p.next()
		return &node{kind: kindConst, pos: t.pos, value: t.val}, nil
	case tokString:
		return p.parseStrings()
	case tokName:
		if reserved[t.text] {
			return nil, p.errorf(t, "unexpected keyword %q", t.text)
		}
		p.next()
		switch t.text {
		case "True":
			return &node{kind: kindConst, pos: t.pos, value: true}, nil
		case "False":
			return &node{kind: kindConst, pos: t.pos, value: false}, nil
		case "None":
			return &node{kind: kindConst, pos: t.pos, value: nil}, nil
		}
		return &node{kind: kindName, pos: t.pos, name: t.text}, nil
	case tokOp:
		switch t.text {
		case "(":
			p.next()
			return p.parseParen(t)
		case "[":
			p.next()
			return p.parseList(t)
		case "{":
			p.next()
			return p.parseBrace(t)
		case "...":
			p.next()
			return &node{kind: kindConst, pos: t.pos, value: nil}, nil
		}
	}
	return nil, p.errorf(t, "unexpected %s", describe(t))
}

// parseStrings joins adjacent literals the way the host grammar does.
func (p *parser) parseStrings() (*node, error) {
	first := p.peek()
	var text string
	formatted := false
	for p.peek().kind == tokString {
		t := p.next()
		text += t.val.(string)
		formatted = formatted || t.fstr
	}
	if formatted {
		return &node{kind: kindFString, pos: first.pos, value: text}, nil
	}
	return &node{kind: kindConst, pos: first.pos, value: text}, nil
}

func (p *parser) parseParen(open token) (*node, error) {
	if p.accept(tokOp, ")") {
		return &node{kind: kindTuple, pos: open.pos}, nil
	}
	first, err := p.parseStarredOrNamed()
	if err != nil {
		return nil, err
	}
	if p.isKeyword("for") {
		gens, err := p.parseComprehensions()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokOp, ")"); err != nil {
			return nil, err
		}
		return &node{kind: kindGenExp, pos: open.pos, x: first, gens: gens}, nil
	}
	if p.accept(tokOp, ")") {
		return first, nil
	}
	if !p.peek().is(tokOp, ",") {
		return nil, p.errorf(p.peek(), "expected \")\", found %s", describe(p.peek()))
	}
	tuple := &node{kind: kindTuple, pos: open.pos, args: []*node{first}}
	for p.accept(tokOp, ",") {
		if p.peek().is(tokOp, ")") {
			break
		}
		elem, err := p.parseStarredOrNamed()
		if err != nil {
			return nil, err
		}
		tuple.args = append(tuple.args, elem)
	}
	if _, err := p.expect(tokOp, ")"); err != nil {
		return nil, err
	}
	return tuple, nil
}

func (p *parser) parseStarredOrNamed() (*node, error) {
	if t := p.peek(); t.is(tokOp, "*") {
		p.next()
		value, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		return &node{kind: kindStarred, pos: t.pos, op: "*", x: value}, nil
	}
	return p.parseNamedTest()
}

func (p *parser) parseList(open token) (*node, error) {
	list := &node{kind: kindList, pos: open.pos}
	if p.accept(tokOp, "]") {
		return list, nil
	}
	first, err := p.parseStarredOrNamed()
	if err != nil {
		return nil, err
	}
	if p.isKeyword("for") {
		gens, err := p.parseComprehensions()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokOp, "]"); err != nil {
			return nil, err
		}
		return &node{kind: kindListComp, pos: open.pos, x: first, gens: gens}, nil
	}
	list.args = append(list.args, first)
	for p.accept(tokOp, ",") {
		if p.peek().is(tokOp, "]") {
			break
		}
		elem, err := p.parseStarredOrNamed()
		if err != nil {
			return nil, err
		}
		list.args = append(list.args, elem)
	}
	if _, err := p.expect(tokOp, "]"); err != nil {
		return nil, err
	}
	return list, nil
}

func (p *parser) parseBrace(open token) (*node, error) {
	if p.accept(tokOp, "}") {
		return &node{kind: kindDict, pos: open.pos}, nil
	}

	key, value, err := p.parseDictEntry()
	if err != nil {
		return nil, err
	}

	if value == nil && !(key.kind == kindStarred && key.op == "**") {
		return p.parseSetTail(open, key)
	}

	if p.isKeyword("for") {
		if key.kind == kindStarred {
			return nil, p.errorf(p.peek(), "dict unpacking cannot be used in a comprehension")
		}
		gens, err := p.parseComprehensions()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokOp, "}"); err != nil {
			return nil, err
		}
		return &node{kind: kindDictComp, pos: open.pos, x: key, y: value, gens: gens}, nil
	}

	dict := &node{kind: kindDict, pos: open.pos}
	appendEntry := func(k, v *node) {
		if k.kind == kindStarred {
			dict.keys = append(dict.keys, nil)
			dict.args = append(dict.args, k)
			return
		}
		dict.keys = append(dict.keys, k)
		dict.args = append(dict.args, v)
	}
	appendEntry(key, value)
	for p.accept(tokOp, ",") {
		if p.peek().is(tokOp, "}") {
			break
		}
		k, v, err := p.parseDictEntry()
		if err != nil {
			return nil, err
		}
		if v == nil && k.kind != kindStarred {
			return nil, p.errorf(p.peek(), "expected \":\" in dict literal")
		}
		appendEntry(k, v)
	}
	if _, err := p.expect(tokOp, "}"); err != nil {
		return nil, err
	}
	return dict, nil
}

// parseDictEntry reads `key: value`, `**mapping` or a bare set element, in
// which case value is nil.
func (p *parser) parseDictEntry() (*node, *node, error) {
	if t := p.peek(); t.is(tokOp, "**") {
		p.next()
		mapping, err := p.parseBinary(0)
		if err != nil {
			return nil, nil, err
		}
		return &node{kind: kindStarred, pos: t.pos, op: "**", x: mapping}, nil, nil
	}
	key, err := p.parseStarredOrNamed()
	if err != nil {
		return nil, nil, err
	}
	if !p.accept(tokOp, ":") {
		return key, nil, nil
	}
	value, err := p.parseTest()
	if err != nil {
		return nil, nil, err
	}
	return key, value, nil
}

func (p *parser) parseSetTail(open token, first *node) (*node, error) {
	if p.isKeyword("for") {
		gens, err := p.parseComprehensions()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokOp, "}"); err != nil {
			return nil, err
		}
		return &node{kind: kindSetComp, pos: open.pos, x: first, gens: gens}, nil
	}
	set := &node{kind: kindSet, pos: open.pos, args: []*node{first}}
	for p.accept(tokOp, ",") {
		if p.peek().is(tokOp, "}") {
			break
		}
		elem, err := p.parseStarredOrNamed()
		if err != nil {
			return nil, err
		}
		set.args = append(set.args, elem)
	}
	if _, err := p.expect(tokOp, "}"); err != nil {
		return nil, err
	}
	return set, nil
}

func (p *parser) parseComprehensions() ([]*comprehension, error) {
	var gens []*comprehension
	for p.isKeyword("for") || p.isKeyword("async") {
		if p.isKeyword("async") {
			return nil, p.errorf(p.peek(), "asynchronous comprehensions are not supported")
		}
		p.next()
		target, err := p.parseTarget()
		if err != nil {
			return nil, err
		}
		if !p.isKeyword("in") {
			return nil, p.errorf(p.peek(), "expected \"in\" in comprehension, found %s", describe(p.peek()))
		}
		p.next()
		iter, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		g := &comprehension{target: target, iter: iter}
		for p.isKeyword("if") {
			p.next()
			cond, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			g.ifs = append(g.ifs, cond)
		}
		gens = append(gens, g)
	}
	return gens, nil
}

// parseTarget reads a comprehension loop variable. Anything but a single
// name produces a tuple node, which the validator rejects.
func (p *parser) parseTarget() (*node, error) {
	readOne := func() (*node, error) {
		if t := p.peek(); t.is(tokOp, "(") {
			p.next()
			inner, err := p.parseTarget()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tokOp, ")"); err != nil {
				return nil, err
			}
			return inner, nil
		}
		t := p.next()
		if t.kind != tokName || reserved[t.text] {
			return nil, p.errorf(t, "expected loop variable, found %s", describe(t))
		}
		return &node{kind: kindName, pos: t.pos, name: t.text}, nil
	}

	first, err := readOne()
	if err != nil {
		return nil, err
	}
	if !p.peek().is(tokOp, ",") {
		return first, nil
	}
	tuple := &node{kind: kindTuple, pos: first.pos, args: []*node{first}}
	for p.accept(tokOp, ",") {
		if p.isKeyword("in") {
			break
		}
		elem, err := readOne()
		if err != nil {
			return nil, err
		}
		tuple.args = append(tuple.args, elem)
	}
	return tuple, nil
}
