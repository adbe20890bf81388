package lexer

import (
	"reflect"
	"testing"

	"pdp/token"
)

func runScanSuccess(t *testing.T, src string, expected []token.Kind) {
	t.Run(src, func(t *testing.T) {
		got, err := New(src).Scan()
		if err != nil {
			t.Fatalf("Scan() raised an error: %v", err)
		}
		kinds := make([]token.Kind, len(got))
		for i, tok := range got {
			kinds[i] = tok.Kind
		}
		if !reflect.DeepEqual(kinds, expected) {
			t.Errorf("Scan(%q) kinds = %v, want %v", src, kinds, expected)
		}
	})
}

func TestScanOperators(t *testing.T) {
	runScanSuccess(t, "1 == 2\n", []token.Kind{
		token.NUMBER, token.OP, token.NUMBER, token.NEWLINE, token.END,
	})
	runScanSuccess(t, "1 // 2 ** 3\n", []token.Kind{
		token.NUMBER, token.OP, token.NUMBER, token.OP, token.NUMBER, token.NEWLINE, token.END,
	})
}

func TestScanAssignOps(t *testing.T) {
	runScanSuccess(t, "x += 1\n", []token.Kind{
		token.NAME, token.ASOP, token.NUMBER, token.NEWLINE, token.END,
	})
}

func TestScanKeywordsAndWordOperators(t *testing.T) {
	runScanSuccess(t, "if x and not y:\n", []token.Kind{
		token.KEYWORD, token.NAME, token.OP, token.OP, token.NAME, token.MISC, token.NEWLINE, token.END,
	})
}

func TestScanIndent(t *testing.T) {
	src := "if x:\n    y = 1\n"
	got, err := New(src).Scan()
	if err != nil {
		t.Fatalf("Scan() raised an error: %v", err)
	}
	var indents int
	for _, tok := range got {
		if tok.Kind == token.INDENT {
			indents++
		}
	}
	if indents != 1 {
		t.Errorf("expected exactly one INDENT token, got %d", indents)
	}
}

func TestScanRejectsTabIndentation(t *testing.T) {
	_, err := New("if x:\n\ty = 1\n").Scan()
	if err == nil {
		t.Fatal("expected an error scanning a tab-indented line, got nil")
	}
}

func TestScanRejectsMisalignedIndentation(t *testing.T) {
	_, err := New("if x:\n   y = 1\n").Scan()
	if err == nil {
		t.Fatal("expected an error scanning a 3-space indented line, got nil")
	}
}

func TestScanStringAndFString(t *testing.T) {
	got, err := New(`x = "hi"` + "\n" + `y = f"hi {x}"` + "\n").Scan()
	if err != nil {
		t.Fatalf("Scan() raised an error: %v", err)
	}
	var strings int
	for _, tok := range got {
		if tok.Kind == token.STRING {
			strings++
			if tok.Literal == nil {
				t.Errorf("expected STRING token to carry a Literal, got nil")
			}
		}
	}
	if strings != 2 {
		t.Errorf("expected 2 STRING tokens, got %d", strings)
	}
}

func TestScanNumberBoundary(t *testing.T) {
	_, err := New("1abc\n").Scan()
	if err == nil {
		t.Fatal("expected an error on an invalid number boundary, got nil")
	}
}

func TestScanIdentifierBoundary(t *testing.T) {
	got, err := New("true_value = 1\n").Scan()
	if err != nil {
		t.Fatalf("Scan() raised an error: %v", err)
	}
	if got[0].Kind != token.NAME || got[0].Text != "true_value" {
		t.Errorf("expected 'true_value' to lex as one NAME token, got %v", got[0])
	}
}

func TestScanCommentIsIgnored(t *testing.T) {
	got, err := New("x = 1 # a comment\n").Scan()
	if err != nil {
		t.Fatalf("Scan() raised an error: %v", err)
	}
	kinds := make([]token.Kind, len(got))
	for i, tok := range got {
		kinds[i] = tok.Kind
	}
	want := []token.Kind{token.NAME, token.ASOP, token.NUMBER, token.NEWLINE, token.END}
	if !reflect.DeepEqual(kinds, want) {
		t.Errorf("Scan() kinds = %v, want %v", kinds, want)
	}
}

func TestScanUnterminatedString(t *testing.T) {
	_, err := New("x = \"oops\n").Scan()
	if err == nil {
		t.Fatal("expected an error scanning an unterminated string, got nil")
	}
}

func TestScanReturnsPartialTokensOnError(t *testing.T) {
	// The first line lexes cleanly; the second has a tab-indentation error.
	// Scan must still return the first line's tokens alongside the error,
	// not discard them.
	got, err := New("x = 1\n\ty = 2\n").Scan()
	if err == nil {
		t.Fatal("expected an error scanning a tab-indented line, got nil")
	}
	if len(got) == 0 {
		t.Fatal("expected the tokens lexed before the error to be returned, got none")
	}
	if got[0].Kind != token.NAME || got[0].Text != "x" {
		t.Errorf("expected the first returned token to be NAME(x), got %v", got[0])
	}
	var sawNewline bool
	for _, tok := range got {
		if tok.Kind == token.NEWLINE {
			sawNewline = true
		}
	}
	if !sawNewline {
		t.Error("expected the first line's NEWLINE to be present in the partial token stream")
	}
}
