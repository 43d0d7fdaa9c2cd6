package expr

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind uint8

const (
	tokEOF tokenKind = iota
	tokName
	tokNumber
	tokString
	tokOp
)

type token struct {
	kind tokenKind
	text string
	pos  int
	val  any  // decoded number or string literal
	fstr bool // formatted string literal (f"...")
}

func (t token) is(kind tokenKind, text string) bool {
	return t.kind == kind && t.text == text
}

// Operators longest first so the scanner can match greedily.
var operators = []string{
	"**=", "//=", ">>=", "<<=", "...",
	"==", "!=", "<=", ">=", "**", "//", ":=", "->", "<<", ">>",
	"+=", "-=", "*=", "/=", "%=", "&=", "|=", "^=", "@=",
	"+", "-", "*", "/", "%", "<", ">", "(", ")", "[", "]", "{", "}",
	",", ":", ".", "=", ";", "@", "|", "&", "^", "~",
}

// lex splits an expression into tokens. It knows nothing about which
// constructs are allowed, only which ones are well formed.
func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		r, size := utf8.DecodeRuneInString(src[i:])
		switch {
		case r == '\\' && i+1 < len(src) && src[i+1] == '\n':
			i += 2
		case unicode.IsSpace(r):
			i += size
		case r == '#':
			for i < len(src) && src[i] != '\n' {
				i++
			}
		case isNameStart(r):
			start := i
			for i < len(src) {
				r, size = utf8.DecodeRuneInString(src[i:])
				if !isNameChar(r) {
					break
				}
				i += size
			}
			word := src[start:i]
			if i < len(src) && (src[i] == '"' || src[i] == '\'') && isStringPrefix(word) {
				tok, next, err := lexString(src, i, start, strings.ToLower(word))
				if err != nil {
					return nil, err
				}
				toks = append(toks, tok)
				i = next
				continue
			}
			toks = append(toks, token{kind: tokName, text: word, pos: start})
		case r >= '0' && r <= '9' || r == '.' && i+1 < len(src) && isDigit(src[i+1]):
			tok, next, err := lexNumber(src, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, tok)
			i = next
		case r == '"' || r == '\'':
			tok, next, err := lexString(src, i, i, "")
			if err != nil {
				return nil, err
			}
			toks = append(toks, tok)
			i = next
		default:
			op := matchOperator(src[i:])
			if op == "" {
				return nil, &SyntaxError{Expr: src, Pos: i, Msg: "unexpected character " + strconv.QuoteRune(r)}
			}
			toks = append(toks, token{kind: tokOp, text: op, pos: i})
			i += len(op)
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(src)}), nil
}

func matchOperator(s string) string {
	for _, op := range operators {
		if strings.HasPrefix(s, op) {
			return op
		}
	}
	return ""
}

func isNameStart(r rune) bool { return r == '_' || unicode.IsLetter(r) }
func isNameChar(r rune) bool  { return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) }
func isDigit(b byte) bool     { return b >= '0' && b <= '9' }

func isStringPrefix(word string) bool {
	switch strings.ToLower(word) {
	case "r", "u", "b", "f", "br", "rb", "fr", "rf":
		return true
	}
	return false
}

func lexNumber(src string, start int) (token, int, error) {
	i := start
	if src[i] == '0' && i+1 < len(src) && strings.ContainsRune("xXoObB", rune(src[i+1])) {
		i += 2
		for i < len(src) && (isHex(src[i]) || src[i] == '_') {
			i++
		}
		text := src[start:i]
		n, err := strconv.ParseInt(strings.ReplaceAll(text, "_", ""), 0, 64)
		if err != nil {
			return token{}, 0, &SyntaxError{Expr: src, Pos: start, Msg: "invalid number " + strconv.Quote(text)}
		}
		return token{kind: tokNumber, text: text, pos: start, val: int(n)}, i, nil
	}

	isFloat := false
	digits := func() {
		for i < len(src) && (isDigit(src[i]) || src[i] == '_') {
			i++
		}
	}
	digits()
	if i < len(src) && src[i] == '.' {
		isFloat = true
		i++
		digits()
	}
	if i < len(src) && (src[i] == 'e' || src[i] == 'E') {
		j := i + 1
		if j < len(src) && (src[j] == '+' || src[j] == '-') {
			j++
		}
		if j < len(src) && isDigit(src[j]) {
			isFloat = true
			i = j
			digits()
		}
	}
	if i < len(src) && isNameStart(rune(src[i])) {
		return token{}, 0, &SyntaxError{Expr: src, Pos: i, Msg: "invalid number literal"}
	}

	text := src[start:i]
	clean := strings.ReplaceAll(text, "_", "")
	if isFloat {
		f, err := strconv.ParseFloat(clean, 64)
		if err != nil {
			return token{}, 0, &SyntaxError{Expr: src, Pos: start, Msg: "invalid number " + strconv.Quote(text)}
		}
		return token{kind: tokNumber, text: text, pos: start, val: f}, i, nil
	}
	n, err := strconv.Atoi(clean)
	if err != nil {
		return token{}, 0, &SyntaxError{Expr: src, Pos: start, Msg: "invalid number " + strconv.Quote(text)}
	}
	return token{kind: tokNumber, text: text, pos: start, val: n}, i, nil
}

func isHex(b byte) bool {
	return isDigit(b) || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

// lexString scans a quoted literal starting at the quote character q. start
// is the position of the literal including any prefix.
func lexString(src string, q, start int, prefix string) (token, int, error) {
	quote := src[q]
	triple := strings.HasPrefix(src[q:], strings.Repeat(string(quote), 3))
	delim := string(quote)
	if triple {
		delim = strings.Repeat(string(quote), 3)
	}
	raw := strings.ContainsRune(prefix, 'r')

	var b strings.Builder
	i := q + len(delim)
	for {
		if i >= len(src) {
			return token{}, 0, &SyntaxError{Expr: src, Pos: start, Msg: "unterminated string literal"}
		}
		if strings.HasPrefix(src[i:], delim) {
			i += len(delim)
			break
		}
		c := src[i]
		if c == '\n' && !triple {
			return token{}, 0, &SyntaxError{Expr: src, Pos: start, Msg: "unterminated string literal"}
		}
		if c == '\\' && i+1 < len(src) {
			if raw {
				b.WriteByte(c)
				b.WriteByte(src[i+1])
				i += 2
				continue
			}
			i++
			switch e := src[i]; e {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '0':
				b.WriteByte(0)
			case '\n':
			case '\\', '\'', '"':
				b.WriteByte(e)
			default:
				b.WriteByte('\\')
				b.WriteByte(e)
			}
			i++
			continue
		}
		b.WriteByte(c)
		i++
	}

	return token{
		kind: tokString,
		text: src[start:i],
		pos:  start,
		val:  b.String(),
		fstr: strings.ContainsRune(prefix, 'f'),
	}, i, nil
}
