// Package scanner tokenizes COS syntax: the object language shared by a
// document body, its trailer, and its page content streams.
package scanner

import (
	"bytes"
	"errors"
	"io"
	"strconv"
)

type TokenType int

const (
	TokenDictOpen  TokenType = iota // '<<'
	TokenDictClose                  // '>>'
	TokenArrayOpen                  // '['
	TokenArrayClose                 // ']'
	TokenName                       // '/Name'
	TokenString                     // literal or hex string
	TokenNumber                     // integer or real
	TokenBoolean                    // true/false
	TokenNull                       // null
	TokenRef                        // '5 0 R'
	TokenStream                     // stream payload following a 'stream' keyword
	TokenInlineImage                // binary data between ID and EI in content streams
	TokenKeyword                    // obj, endobj, operators, everything else
)

// Token is one lexical unit. The populated fields depend on Type:
// Str for names and keywords, Bytes for strings and stream payloads,
// Int/Real/IsInt for numbers, Num/Gen for refs, Bool for booleans.
type Token struct {
	Type  TokenType
	Str   string
	Bytes []byte
	Int   int64
	Real  float64
	IsInt bool
	Bool  bool
	Num   int
	Gen   int
	Pos   int64
}

// Config bounds scanner work on hostile input.
type Config struct {
	MaxStringLength int64 // longest literal/hex string, 0 = unlimited
	MaxStreamLength int64 // longest stream payload, 0 = unlimited
	WindowSize      int64 // read chunk size, 0 = 64 KiB
}

// Scanner reads tokens from a ReaderAt, buffering in fixed windows.
type Scanner struct {
	reader        io.ReaderAt
	data          []byte
	pos           int64
	cfg           Config
	chunk         int64
	eof           bool
	nextStreamLen int64
}

func New(r io.ReaderAt, cfg Config) *Scanner {
	chunk := cfg.WindowSize
	if chunk <= 0 {
		chunk = 64 * 1024
	}
	return &Scanner{reader: r, cfg: cfg, chunk: chunk, nextStreamLen: -1}
}

func (s *Scanner) Position() int64 { return s.pos }

func (s *Scanner) Seek(offset int64) error {
	if offset < 0 {
		return errors.New("scanner: seek out of range")
	}
	if err := s.ensure(offset); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if offset > int64(len(s.data)) {
		return errors.New("scanner: seek out of range")
	}
	s.pos = offset
	return nil
}

// SetNextStreamLength primes the scanner with the /Length value of the
// stream about to be scanned, so binary payloads containing the bytes
// "endstream" do not truncate it.
func (s *Scanner) SetNextStreamLength(n int64) { s.nextStreamLen = n }

func (s *Scanner) Next() (Token, error) {
	if err := s.skipWSAndComments(); err != nil {
		return Token{}, err
	}
	start := s.pos
	c := s.data[s.pos]
	switch c {
	case '<':
		if s.peek(1) == '<' {
			s.pos += 2
			return Token{Type: TokenDictOpen, Pos: start}, nil
		}
		return s.scanHexString(start)
	case '>':
		if s.peek(1) == '>' {
			s.pos += 2
			return Token{Type: TokenDictClose, Pos: start}, nil
		}
		s.pos++
		return Token{Type: TokenKeyword, Str: ">", Pos: start}, nil
	case '[':
		s.pos++
		return Token{Type: TokenArrayOpen, Pos: start}, nil
	case ']':
		s.pos++
		return Token{Type: TokenArrayClose, Pos: start}, nil
	case '(':
		return s.scanLiteralString(start)
	case '/':
		return s.scanName(start)
	case '{', '}':
		s.pos++
		return Token{Type: TokenKeyword, Str: string(c), Pos: start}, nil
	}
	if c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') {
		return s.scanNumberOrRef(start)
	}
	return s.scanKeyword(start)
}

func (s *Scanner) skipWSAndComments() error {
	for {
		if err := s.ensure(s.pos); err != nil {
			return err
		}
		if s.pos >= int64(len(s.data)) {
			return io.EOF
		}
		c := s.data[s.pos]
		if isWhitespace(c) {
			s.pos++
			continue
		}
		if c == '%' {
			for s.pos < int64(len(s.data)) && !isEOL(s.data[s.pos]) {
				s.pos++
				if err := s.ensure(s.pos); err != nil {
					if errors.Is(err, io.EOF) {
						break
					}
					return err
				}
			}
			continue
		}
		return nil
	}
}

func (s *Scanner) ensure(n int64) error {
	for int64(len(s.data)) <= n {
		if s.eof {
			return io.EOF
		}
		buf := make([]byte, s.chunk)
		got, err := s.reader.ReadAt(buf, int64(len(s.data)))
		if got > 0 {
			s.data = append(s.data, buf[:got]...)
		}
		if err == io.EOF || got == 0 {
			s.eof = true
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Scanner) peek(n int64) byte {
	if s.ensure(s.pos+n) != nil || s.pos+n >= int64(len(s.data)) {
		return 0
	}
	return s.data[s.pos+n]
}

func (s *Scanner) scanName(start int64) (Token, error) {
	s.pos++ // '/'
	var out bytes.Buffer
	for {
		if err := s.ensure(s.pos); err != nil && !errors.Is(err, io.EOF) {
			return Token{}, err
		}
		if s.pos >= int64(len(s.data)) {
			break
		}
		c := s.data[s.pos]
		if isDelimiter(c) {
			break
		}
		if c == '#' {
			s.pos++
			out.WriteByte(s.hexNibble()<<4 | s.hexNibble())
			continue
		}
		out.WriteByte(c)
		s.pos++
	}
	return Token{Type: TokenName, Str: out.String(), Pos: start}, nil
}

func (s *Scanner) hexNibble() byte {
	if s.ensure(s.pos) != nil || s.pos >= int64(len(s.data)) {
		return 0
	}
	c := s.data[s.pos]
	s.pos++
	return fromHex(c)
}

func (s *Scanner) scanLiteralString(start int64) (Token, error) {
	s.pos++ // '('
	var buf bytes.Buffer
	depth := 1
	for {
		if err := s.ensure(s.pos); err != nil && !errors.Is(err, io.EOF) {
			return Token{}, err
		}
		if s.pos >= int64(len(s.data)) {
			return Token{}, errors.New("scanner: unterminated literal string")
		}
		c := s.data[s.pos]
		switch {
		case c == '\\':
			s.pos++
			if s.ensure(s.pos) != nil || s.pos >= int64(len(s.data)) {
				return Token{}, errors.New("scanner: unterminated literal string")
			}
			esc := s.data[s.pos]
			switch {
			case esc == '\r':
				s.pos++
				if s.peek(0) == '\n' {
					s.pos++
				}
			case esc == '\n':
				s.pos++
			case esc >= '0' && esc <= '7':
				val := int(esc - '0')
				s.pos++
				for k := 0; k < 2 && s.pos < int64(len(s.data)); k++ {
					d := s.peek(0)
					if d < '0' || d > '7' {
						break
					}
					val = val<<3 + int(d-'0')
					s.pos++
				}
				buf.WriteByte(byte(val))
			default:
				buf.WriteByte(unescape(esc))
				s.pos++
			}
		case c == '(':
			depth++
			buf.WriteByte(c)
			s.pos++
		case c == ')':
			depth--
			s.pos++
			if depth == 0 {
				return Token{Type: TokenString, Bytes: buf.Bytes(), Pos: start}, nil
			}
			buf.WriteByte(c)
		default:
			buf.WriteByte(c)
			s.pos++
		}
		if s.cfg.MaxStringLength > 0 && int64(buf.Len()) > s.cfg.MaxStringLength {
			return Token{}, errors.New("scanner: literal string too long")
		}
	}
}

func (s *Scanner) scanHexString(start int64) (Token, error) {
	s.pos++ // '<'
	var hexbuf []byte
	for {
		if err := s.ensure(s.pos); err != nil && !errors.Is(err, io.EOF) {
			return Token{}, err
		}
		if s.pos >= int64(len(s.data)) {
			return Token{}, errors.New("scanner: unterminated hex string")
		}
		c := s.data[s.pos]
		if c == '>' {
			s.pos++
			break
		}
		if !isWhitespace(c) {
			hexbuf = append(hexbuf, c)
		}
		s.pos++
		if s.cfg.MaxStringLength > 0 && int64(len(hexbuf))/2 > s.cfg.MaxStringLength {
			return Token{}, errors.New("scanner: hex string too long")
		}
	}
	if len(hexbuf)%2 == 1 {
		hexbuf = append(hexbuf, '0')
	}
	out := make([]byte, 0, len(hexbuf)/2)
	for i := 0; i < len(hexbuf); i += 2 {
		out = append(out, fromHex(hexbuf[i])<<4|fromHex(hexbuf[i+1]))
	}
	return Token{Type: TokenString, Bytes: out, Pos: start}, nil
}

func (s *Scanner) scanKeyword(start int64) (Token, error) {
	var buf bytes.Buffer
	for {
		if err := s.ensure(s.pos); err != nil && !errors.Is(err, io.EOF) {
			return Token{}, err
		}
		if s.pos >= int64(len(s.data)) {
			break
		}
		c := s.data[s.pos]
		if isDelimiter(c) {
			break
		}
		buf.WriteByte(c)
		s.pos++
	}
	kw := buf.String()
	switch kw {
	case "":
		// Lone delimiter byte that fell through Next; consume it.
		s.pos++
		return Token{Type: TokenKeyword, Str: string(s.data[s.pos-1]), Pos: start}, nil
	case "true", "false":
		return Token{Type: TokenBoolean, Bool: kw == "true", Pos: start}, nil
	case "null":
		return Token{Type: TokenNull, Pos: start}, nil
	case "stream":
		return s.scanStream(start)
	case "ID":
		return s.scanInlineImage(start)
	default:
		return Token{Type: TokenKeyword, Str: kw, Pos: start}, nil
	}
}

// scanInlineImage skips the binary payload between ID and a delimited
// EI marker. The engine never decodes inline images; it only needs the
// tokenizer to survive them.
func (s *Scanner) scanInlineImage(start int64) (Token, error) {
	if s.peek(0) != 0 && isWhitespace(s.peek(0)) {
		s.pos++
	}
	dataStart := s.pos
	for {
		if err := s.ensure(s.pos + 2); err != nil && !errors.Is(err, io.EOF) {
			return Token{}, err
		}
		if s.pos+2 > int64(len(s.data)) {
			return Token{}, errors.New("scanner: unterminated inline image")
		}
		if s.data[s.pos] == 'E' && s.data[s.pos+1] == 'I' &&
			s.pos > dataStart && isWhitespace(s.data[s.pos-1]) &&
			(s.pos+2 == int64(len(s.data)) || isDelimiter(s.data[s.pos+2])) {
			payload := append([]byte(nil), s.data[dataStart:s.pos]...)
			s.pos += 2
			return Token{Type: TokenInlineImage, Bytes: payload, Pos: start}, nil
		}
		s.pos++
		if s.cfg.MaxStreamLength > 0 && s.pos-dataStart > s.cfg.MaxStreamLength {
			return Token{}, errors.New("scanner: inline image too long")
		}
	}
}

// scanStream consumes the payload between the 'stream' keyword and its
// matching 'endstream'. When a length hint is set it is trusted first.
func (s *Scanner) scanStream(start int64) (Token, error) {
	hint := s.nextStreamLen
	s.nextStreamLen = -1
	if err := s.ensure(s.pos); err != nil && !errors.Is(err, io.EOF) {
		return Token{}, err
	}
	// EOL after the keyword does not belong to the payload.
	if s.peek(0) == '\r' {
		s.pos++
	}
	if s.peek(0) == '\n' {
		s.pos++
	}
	dataStart := s.pos

	if hint >= 0 {
		if s.cfg.MaxStreamLength > 0 && hint > s.cfg.MaxStreamLength {
			return Token{}, errors.New("scanner: stream too long")
		}
		if err := s.ensure(dataStart + hint); err != nil && !errors.Is(err, io.EOF) {
			return Token{}, err
		}
		end := dataStart + hint
		if end > int64(len(s.data)) {
			end = int64(len(s.data))
		}
		payload := append([]byte(nil), s.data[dataStart:end]...)
		s.pos = end
		s.consumeEndstream()
		return Token{Type: TokenStream, Bytes: payload, Pos: start}, nil
	}

	// No usable /Length: search for a delimited endstream marker.
	needle := []byte("endstream")
	for i := dataStart; ; i++ {
		if err := s.ensure(i + int64(len(needle))); err != nil && !errors.Is(err, io.EOF) {
			return Token{}, err
		}
		if i+int64(len(needle)) > int64(len(s.data)) {
			return Token{}, errors.New("scanner: endstream not found")
		}
		if s.cfg.MaxStreamLength > 0 && i-dataStart > s.cfg.MaxStreamLength {
			return Token{}, errors.New("scanner: stream too long")
		}
		if !bytes.Equal(s.data[i:i+int64(len(needle))], needle) {
			continue
		}
		after := i + int64(len(needle))
		if after < int64(len(s.data)) && !isDelimiter(s.data[after]) {
			continue
		}
		end := i
		if end > dataStart && s.data[end-1] == '\n' {
			end--
		}
		if end > dataStart && s.data[end-1] == '\r' {
			end--
		}
		payload := append([]byte(nil), s.data[dataStart:end]...)
		s.pos = after
		return Token{Type: TokenStream, Bytes: payload, Pos: start}, nil
	}
}

func (s *Scanner) consumeEndstream() {
	if s.peek(0) == '\r' {
		s.pos++
	}
	if s.peek(0) == '\n' {
		s.pos++
	}
	needle := []byte("endstream")
	if s.ensure(s.pos+int64(len(needle))) == nil &&
		s.pos+int64(len(needle)) <= int64(len(s.data)) &&
		bytes.Equal(s.data[s.pos:s.pos+int64(len(needle))], needle) {
		s.pos += int64(len(needle))
		return
	}
	if idx := bytes.Index(s.data[s.pos:], needle); idx >= 0 {
		s.pos += int64(idx + len(needle))
	}
}

func (s *Scanner) scanNumberOrRef(start int64) (Token, error) {
	first := s.scanNumberString()
	if first == "" {
		s.pos++
		return Token{Type: TokenKeyword, Str: string(s.data[s.pos-1]), Pos: start}, nil
	}
	// "N G R" is an indirect reference; anything else rewinds.
	save := s.pos
	if err := s.skipWSAndComments(); err == nil {
		second := s.scanNumberString()
		if second != "" {
			if err := s.skipWSAndComments(); err == nil &&
				s.pos < int64(len(s.data)) && s.data[s.pos] == 'R' &&
				(s.pos+1 >= int64(len(s.data)) || isDelimiter(s.peek(1))) {
				s.pos++
				num, _ := strconv.Atoi(first)
				gen, _ := strconv.Atoi(second)
				return Token{Type: TokenRef, Num: num, Gen: gen, Pos: start}, nil
			}
		}
	}
	s.pos = save
	if i, err := strconv.ParseInt(first, 10, 64); err == nil {
		return Token{Type: TokenNumber, Int: i, Real: float64(i), IsInt: true, Pos: start}, nil
	}
	f, err := strconv.ParseFloat(first, 64)
	if err != nil {
		return Token{}, errors.New("scanner: malformed number " + strconv.Quote(first))
	}
	return Token{Type: TokenNumber, Real: f, Pos: start}, nil
}

func (s *Scanner) scanNumberString() string {
	start := s.pos
	seenDigit := false
	for {
		if err := s.ensure(s.pos); err != nil && !errors.Is(err, io.EOF) {
			return ""
		}
		if s.pos >= int64(len(s.data)) {
			break
		}
		c := s.data[s.pos]
		if c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') {
			if c >= '0' && c <= '9' {
				seenDigit = true
			}
			s.pos++
			continue
		}
		break
	}
	if !seenDigit {
		s.pos = start
		return ""
	}
	return string(s.data[start:s.pos])
}

func isWhitespace(c byte) bool {
	return c == 0x00 || c == 0x09 || c == 0x0A || c == 0x0C || c == 0x0D || c == 0x20
}

func isEOL(c byte) bool { return c == '\r' || c == '\n' }

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return isWhitespace(c)
}

func fromHex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	}
	return 0
}

func unescape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case 'b':
		return '\b'
	case 'f':
		return '\f'
	}
	return c
}
