package scanner

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func tokens(t *testing.T, src string, cfg Config) []Token {
	t.Helper()
	s := New(strings.NewReader(src), cfg)
	var out []Token
	for {
		tok, err := s.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		out = append(out, tok)
	}
}

func TestBasicTokens(t *testing.T) {
	src := "<< /Type /Page >> [ 1 -2.5 true null (hi) <48690A> ] 5 0 R do"
	got := tokens(t, src, Config{})
	want := []struct {
		typ TokenType
		str string
	}{
		{TokenDictOpen, ""},
		{TokenName, "Type"},
		{TokenName, "Page"},
		{TokenDictClose, ""},
		{TokenArrayOpen, ""},
		{TokenNumber, ""},
		{TokenNumber, ""},
		{TokenBoolean, ""},
		{TokenNull, ""},
		{TokenString, ""},
		{TokenString, ""},
		{TokenArrayClose, ""},
		{TokenRef, ""},
		{TokenKeyword, "do"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d tokens, want %d: %+v", len(got), len(want), got)
	}
	for i, w := range want {
		if got[i].Type != w.typ {
			t.Errorf("token %d: type = %v, want %v", i, got[i].Type, w.typ)
		}
		if w.str != "" && got[i].Str != w.str {
			t.Errorf("token %d: str = %q, want %q", i, got[i].Str, w.str)
		}
	}
	if !got[5].IsInt || got[5].Int != 1 {
		t.Errorf("first number = %+v, want int 1", got[5])
	}
	if got[6].IsInt || got[6].Real != -2.5 {
		t.Errorf("second number = %+v, want real -2.5", got[6])
	}
	if string(got[9].Bytes) != "hi" {
		t.Errorf("literal string = %q", got[9].Bytes)
	}
	if string(got[10].Bytes) != "Hi\n" {
		t.Errorf("hex string = %q", got[10].Bytes)
	}
	if got[12].Num != 5 || got[12].Gen != 0 {
		t.Errorf("ref = %d %d", got[12].Num, got[12].Gen)
	}
}

func TestLiteralStringEscapes(t *testing.T) {
	got := tokens(t, `(a\(b\)c\\d\n\101)`, Config{})
	if len(got) != 1 || string(got[0].Bytes) != "a(b)c\\d\nA" {
		t.Fatalf("escapes = %q", got[0].Bytes)
	}
}

func TestNestedLiteralString(t *testing.T) {
	got := tokens(t, "(outer (inner) tail)", Config{})
	if len(got) != 1 || string(got[0].Bytes) != "outer (inner) tail" {
		t.Fatalf("nested = %q", got[0].Bytes)
	}
}

func TestNameHexEscape(t *testing.T) {
	got := tokens(t, "/A#20B", Config{})
	if len(got) != 1 || got[0].Str != "A B" {
		t.Fatalf("name = %q", got[0].Str)
	}
}

func TestCommentsSkipped(t *testing.T) {
	got := tokens(t, "% header\n42 % trailing\n/N", Config{})
	if len(got) != 2 || got[0].Int != 42 || got[1].Str != "N" {
		t.Fatalf("tokens = %+v", got)
	}
}

func TestStreamWithLengthHint(t *testing.T) {
	payload := []byte("binary endstream inside\x00\x01")
	var src bytes.Buffer
	src.WriteString("stream\n")
	src.Write(payload)
	src.WriteString("\nendstream")

	s := New(bytes.NewReader(src.Bytes()), Config{})
	s.SetNextStreamLength(int64(len(payload)))
	tok, err := s.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if tok.Type != TokenStream || !bytes.Equal(tok.Bytes, payload) {
		t.Fatalf("stream payload = %q, want %q", tok.Bytes, payload)
	}
}

func TestStreamWithoutHint(t *testing.T) {
	src := "stream\nplain data\nendstream rest"
	s := New(strings.NewReader(src), Config{})
	tok, err := s.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if string(tok.Bytes) != "plain data" {
		t.Fatalf("payload = %q", tok.Bytes)
	}
	next, err := s.Next()
	if err != nil || next.Str != "rest" {
		t.Fatalf("after stream: %+v, %v", next, err)
	}
}

func TestStringLimit(t *testing.T) {
	s := New(strings.NewReader("("+strings.Repeat("x", 100)+")"), Config{MaxStringLength: 10})
	if _, err := s.Next(); err == nil {
		t.Fatal("expected error for oversized string")
	}
}

func TestNumberNotRef(t *testing.T) {
	// Two numbers not followed by R must stay two numbers.
	got := tokens(t, "10 20 Td", Config{})
	if len(got) != 3 || got[0].Int != 10 || got[1].Int != 20 || got[2].Str != "Td" {
		t.Fatalf("tokens = %+v", got)
	}
}

func TestInlineImageSkipped(t *testing.T) {
	src := "BI /W 2 /H 2 ID \x00\x01\xFF( \nEI Q"
	got := tokens(t, src, Config{})
	var sawImage bool
	for _, tok := range got {
		if tok.Type == TokenInlineImage {
			sawImage = true
		}
	}
	if !sawImage {
		t.Fatalf("no inline image token in %+v", got)
	}
	last := got[len(got)-1]
	if last.Type != TokenKeyword || last.Str != "Q" {
		t.Fatalf("last token = %+v, want Q", last)
	}
}

func TestSeek(t *testing.T) {
	s := New(strings.NewReader("aaaa /X"), Config{})
	if err := s.Seek(5); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	tok, err := s.Next()
	if err != nil || tok.Type != TokenName || tok.Str != "X" {
		t.Fatalf("after seek: %+v, %v", tok, err)
	}
}
