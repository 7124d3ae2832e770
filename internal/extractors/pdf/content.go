package pdf

import (
	"strconv"
	"strings"
)

// TextFromContent returns the text shown by a decoded page content stream.
// Strings are read as single-byte text; fonts with custom encodings or CID
// fonts come out garbled or empty.
func TextFromContent(content []byte) string {
	s := &scanner{src: content}
	var out strings.Builder
	var operands []token

	newline := func() {
		if out.Len() > 0 && !strings.HasSuffix(out.String(), "\n") {
			out.WriteByte('\n')
		}
	}

	for {
		tok, ok := s.next()
		if !ok {
			break
		}
		if tok.kind != tokOperator {
			operands = append(operands, tok)
			continue
		}
		switch tok.text {
		case "Tj":
			writeLast(&out, operands)
		case "'", "\"":
			newline()
			writeLast(&out, operands)
		case "TJ":
			for _, op := range operands {
				if op.kind == tokArray {
					writeArray(&out, op.items)
				}
			}
		case "Td", "TD":
			if len(operands) >= 2 && operands[1].kind == tokNumber && operands[1].num != 0 {
				newline()
			} else if out.Len() > 0 && !strings.HasSuffix(out.String(), "\n") {
				out.WriteByte(' ')
			}
		case "T*", "ET":
			newline()
		case "ID":
			s.skipInlineImage()
		}
		operands = operands[:0]
	}
	return tidy(out.String())
}

func writeLast(out *strings.Builder, operands []token) {
	for i := len(operands) - 1; i >= 0; i-- {
		if operands[i].kind == tokString {
			out.WriteString(operands[i].text)
			return
		}
	}
}

// writeArray writes a TJ array. Large negative adjustments separate words.
func writeArray(out *strings.Builder, items []token) {
	for _, item := range items {
		switch item.kind {
		case tokString:
			out.WriteString(item.text)
		case tokNumber:
			if item.num < -200 {
				out.WriteByte(' ')
			}
		}
	}
}

func tidy(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

type tokenKind int

const (
	tokOperator tokenKind = iota
	tokNumber
	tokString
	tokName
	tokArray
	tokDict
)

type token struct {
	kind  tokenKind
	text  string
	num   float64
	items []token
}

type scanner struct {
	src []byte
	pos int
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '\f', 0:
		return true
	}
	return false
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func (s *scanner) skipSpaceAndComments() {
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch {
		case isSpace(c):
			s.pos++
		case c == '%':
			for s.pos < len(s.src) && s.src[s.pos] != '\n' && s.src[s.pos] != '\r' {
				s.pos++
			}
		default:
			return
		}
	}
}

// next returns the next token; arrays and dictionaries come back whole.
func (s *scanner) next() (token, bool) {
	for {
		s.skipSpaceAndComments()
		if s.pos >= len(s.src) {
			return token{}, false
		}
		c := s.src[s.pos]
		switch {
		case c == '(':
			s.pos++
			return token{kind: tokString, text: s.literal()}, true
		case c == '<' && s.peek(1) == '<':
			s.pos += 2
			s.skipUntil(">>")
			return token{kind: tokDict}, true
		case c == '<':
			s.pos++
			return token{kind: tokString, text: s.hex()}, true
		case c == '[':
			s.pos++
			return token{kind: tokArray, items: s.array()}, true
		case c == '/':
			s.pos++
			return token{kind: tokName, text: s.regular()}, true
		case c == ']' || c == '>' || c == ')' || c == '{' || c == '}':
			// Stray delimiter.
			s.pos++
			continue
		default:
			word := s.regular()
			if word == "" {
				s.pos++
				continue
			}
			if n, err := strconv.ParseFloat(word, 64); err == nil {
				return token{kind: tokNumber, num: n, text: word}, true
			}
			return token{kind: tokOperator, text: word}, true
		}
	}
}

func (s *scanner) peek(offset int) byte {
	if s.pos+offset < len(s.src) {
		return s.src[s.pos+offset]
	}
	return 0
}

func (s *scanner) regular() string {
	start := s.pos
	for s.pos < len(s.src) && !isSpace(s.src[s.pos]) && !isDelimiter(s.src[s.pos]) {
		s.pos++
	}
	return string(s.src[start:s.pos])
}

func (s *scanner) array() []token {
	var items []token
	for {
		s.skipSpaceAndComments()
		if s.pos >= len(s.src) {
			return items
		}
		if s.src[s.pos] == ']' {
			s.pos++
			return items
		}
		tok, ok := s.next()
		if !ok {
			return items
		}
		items = append(items, tok)
	}
}

// literal reads a (string) body after the opening parenthesis.
func (s *scanner) literal() string {
	var b strings.Builder
	depth := 1
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		s.pos++
		switch c {
		case '(':
			depth++
			b.WriteByte(c)
		case ')':
			depth--
			if depth == 0 {
				return b.String()
			}
			b.WriteByte(c)
		case '\\':
			s.escape(&b)
		default:
			writeByte(&b, c)
		}
	}
	return b.String()
}

func (s *scanner) escape(b *strings.Builder) {
	if s.pos >= len(s.src) {
		return
	}
	c := s.src[s.pos]
	s.pos++
	switch c {
	case 'n':
		b.WriteByte('\n')
	case 'r':
		b.WriteByte('\r')
	case 't':
		b.WriteByte('\t')
	case 'b', 'f':
	case '\r':
		if s.peek(0) == '\n' {
			s.pos++
		}
	case '\n':
	case '0', '1', '2', '3', '4', '5', '6', '7':
		v := int(c - '0')
		for i := 0; i < 2 && s.pos < len(s.src) && s.src[s.pos] >= '0' && s.src[s.pos] <= '7'; i++ {
			v = v*8 + int(s.src[s.pos]-'0')
			s.pos++
		}
		writeByte(b, byte(v))
	default:
		b.WriteByte(c)
	}
}

// hex reads a <hex string> body after the opening angle bracket.
func (s *scanner) hex() string {
	var digits []byte
	for s.pos < len(s.src) && s.src[s.pos] != '>' {
		if c := s.src[s.pos]; !isSpace(c) {
			digits = append(digits, c)
		}
		s.pos++
	}
	s.pos++
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	var b strings.Builder
	for i := 0; i+1 < len(digits); i += 2 {
		v, err := strconv.ParseUint(string(digits[i:i+2]), 16, 8)
		if err != nil {
			return b.String()
		}
		writeByte(&b, byte(v))
	}
	return b.String()
}

// writeByte maps a single-byte character to UTF-8, dropping control bytes.
func writeByte(b *strings.Builder, c byte) {
	switch {
	case c == '\n' || c == '\t':
		b.WriteByte(c)
	case c < 0x20 || c == 0x7f:
	case c < 0x80:
		b.WriteByte(c)
	default:
		b.WriteRune(rune(c))
	}
}

func (s *scanner) skipUntil(marker string) {
	if i := strings.Index(string(s.src[s.pos:]), marker); i >= 0 {
		s.pos += i + len(marker)
		return
	}
	s.pos = len(s.src)
}

// skipInlineImage moves past inline image data, which ends at "EI" on its
// own token.
func (s *scanner) skipInlineImage() {
	for s.pos+2 <= len(s.src) {
		if s.src[s.pos] == 'E' && s.src[s.pos+1] == 'I' &&
			(s.pos == 0 || isSpace(s.src[s.pos-1])) &&
			(s.pos+2 == len(s.src) || isSpace(s.src[s.pos+2])) {
			s.pos += 2
			return
		}
		s.pos++
	}
	s.pos = len(s.src)
}
