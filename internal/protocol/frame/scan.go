package frame

import "fmt"

type scanState int

const (
	scanBeginValue scanState = iota
	scanBeginValueOrEnd
	scanBeginKeyOrEnd
	scanBeginKey
	scanColon
	scanAfterValue
	scanInString
	scanStringEsc
	scanStringHex
	scanNeg
	scanZero
	scanInt
	scanDot
	scanFrac
	scanExp
	scanExpSign
	scanExpDigits
	scanLiteral
)

// action tells the Decoder what to do with the byte just stepped.
type action int

const (
	actContinue action = iota
	// actSkip drops whitespace ahead of a top-level value.
	actSkip
	// actEnd closes the value with this byte included.
	actEnd
	// actEndBefore closes the value before this byte, which starts the next
	// one. Only top-level numbers end this way.
	actEndBefore
)

// scanner checks JSON syntax one byte at a time and finds where each
// top-level value ends. Its state survives across Feed calls, so every byte
// is looked at once.
type scanner struct {
	state   scanState
	stack   []byte
	key     bool
	literal string
	hexLeft int
}

func (s *scanner) reset() {
	s.state = scanBeginValue
	s.stack = s.stack[:0]
	s.key = false
	s.literal = ""
	s.hexLeft = 0
}

func (s *scanner) step(c byte) (action, error) {
	switch s.state {
	case scanBeginValue:
		if isSpace(c) {
			if len(s.stack) == 0 {
				return actSkip, nil
			}
			return actContinue, nil
		}
		return s.beginValue(c)

	case scanBeginValueOrEnd:
		if isSpace(c) {
			return actContinue, nil
		}
		if c == ']' {
			return s.closeContainer()
		}
		return s.beginValue(c)

	case scanBeginKeyOrEnd:
		if isSpace(c) {
			return actContinue, nil
		}
		if c == '}' {
			return s.closeContainer()
		}
		return s.beginKey(c)

	case scanBeginKey:
		if isSpace(c) {
			return actContinue, nil
		}
		return s.beginKey(c)

	case scanColon:
		if isSpace(c) {
			return actContinue, nil
		}
		if c != ':' {
			return actContinue, unexpected(c, "after object key")
		}
		s.state = scanBeginValue
		return actContinue, nil

	case scanAfterValue:
		if isSpace(c) {
			return actContinue, nil
		}
		top := s.stack[len(s.stack)-1]
		switch {
		case c == ',' && top == '{':
			s.state = scanBeginKey
		case c == ',':
			s.state = scanBeginValue
		case c == '}' && top == '{', c == ']' && top == '[':
			return s.closeContainer()
		default:
			return actContinue, unexpected(c, "after value")
		}
		return actContinue, nil

	case scanInString:
		switch {
		case c == '"':
			if s.key {
				s.key = false
				s.state = scanColon
				return actContinue, nil
			}
			return s.endValue()
		case c == '\\':
			s.state = scanStringEsc
		case c < 0x20:
			return actContinue, unexpected(c, "in string literal")
		}
		return actContinue, nil

	case scanStringEsc:
		switch c {
		case '"', '\\', '/', 'b', 'f', 'n', 'r', 't':
			s.state = scanInString
		case 'u':
			s.state = scanStringHex
			s.hexLeft = 4
		default:
			return actContinue, unexpected(c, "in string escape code")
		}
		return actContinue, nil

	case scanStringHex:
		if !isHex(c) {
			return actContinue, unexpected(c, "in \\u hexadecimal character escape")
		}
		s.hexLeft--
		if s.hexLeft == 0 {
			s.state = scanInString
		}
		return actContinue, nil

	case scanNeg:
		switch {
		case c == '0':
			s.state = scanZero
		case '1' <= c && c <= '9':
			s.state = scanInt
		default:
			return actContinue, unexpected(c, "in numeric literal")
		}
		return actContinue, nil

	case scanZero:
		return s.afterInt(c)

	case scanInt:
		if isDigit(c) {
			return actContinue, nil
		}
		return s.afterInt(c)

	case scanDot:
		if !isDigit(c) {
			return actContinue, unexpected(c, "after decimal point in numeric literal")
		}
		s.state = scanFrac
		return actContinue, nil

	case scanFrac:
		if isDigit(c) {
			return actContinue, nil
		}
		if c == 'e' || c == 'E' {
			s.state = scanExp
			return actContinue, nil
		}
		return s.endNumber(c)

	case scanExp:
		switch {
		case c == '+' || c == '-':
			s.state = scanExpSign
		case isDigit(c):
			s.state = scanExpDigits
		default:
			return actContinue, unexpected(c, "in exponent of numeric literal")
		}
		return actContinue, nil

	case scanExpSign:
		if !isDigit(c) {
			return actContinue, unexpected(c, "in exponent of numeric literal")
		}
		s.state = scanExpDigits
		return actContinue, nil

	case scanExpDigits:
		if isDigit(c) {
			return actContinue, nil
		}
		return s.endNumber(c)

	case scanLiteral:
		if c != s.literal[0] {
			return actContinue, unexpected(c, "in literal")
		}
		s.literal = s.literal[1:]
		if s.literal == "" {
			return s.endValue()
		}
		return actContinue, nil
	}
	return actContinue, fmt.Errorf("scanner in unknown state %d", s.state)
}

func (s *scanner) beginValue(c byte) (action, error) {
	switch {
	case c == '{':
		s.stack = append(s.stack, '{')
		s.state = scanBeginKeyOrEnd
	case c == '[':
		s.stack = append(s.stack, '[')
		s.state = scanBeginValueOrEnd
	case c == '"':
		s.state = scanInString
	case c == '-':
		s.state = scanNeg
	case c == '0':
		s.state = scanZero
	case '1' <= c && c <= '9':
		s.state = scanInt
	case c == 't':
		s.state, s.literal = scanLiteral, "rue"
	case c == 'f':
		s.state, s.literal = scanLiteral, "alse"
	case c == 'n':
		s.state, s.literal = scanLiteral, "ull"
	default:
		return actContinue, unexpected(c, "looking for beginning of value")
	}
	return actContinue, nil
}

func (s *scanner) beginKey(c byte) (action, error) {
	if c != '"' {
		return actContinue, unexpected(c, "looking for beginning of object key string")
	}
	s.key = true
	s.state = scanInString
	return actContinue, nil
}

func (s *scanner) afterInt(c byte) (action, error) {
	switch c {
	case '.':
		s.state = scanDot
		return actContinue, nil
	case 'e', 'E':
		s.state = scanExp
		return actContinue, nil
	}
	return s.endNumber(c)
}

// endNumber runs on the first byte past a number. A top-level number stays
// open until that byte arrives, so digits split across reads are one value.
func (s *scanner) endNumber(c byte) (action, error) {
	if len(s.stack) == 0 {
		return actEndBefore, nil
	}
	s.state = scanAfterValue
	return s.step(c)
}

func (s *scanner) closeContainer() (action, error) {
	s.stack = s.stack[:len(s.stack)-1]
	return s.endValue()
}

func (s *scanner) endValue() (action, error) {
	if len(s.stack) == 0 {
		return actEnd, nil
	}
	s.state = scanAfterValue
	return actContinue, nil
}

func unexpected(c byte, context string) error {
	return fmt.Errorf("invalid character %q %s", c, context)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}

func isHex(c byte) bool {
	return isDigit(c) || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}
