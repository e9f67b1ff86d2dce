package refresh

import (
	"errors"
	"strings"
	"testing"
)

func TestTokenRoundTrip(t *testing.T) {
	tok, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	parsed, err := Parse(tok.String())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.ID != tok.ID {
		t.Fatalf("id mismatch: %s != %s", parsed.ID, tok.ID)
	}
	h := tok.Hash()
	if !parsed.Matches(h[:]) {
		t.Fatal("expected parsed token to match stored hash")
	}
}

func TestTokenMatchesRejectsOtherSecret(t *testing.T) {
	a, _ := New()
	b, _ := New()
	h := b.Hash()
	if a.Matches(h[:]) {
		t.Fatal("expected different secrets not to match")
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	valid, _ := New()
	s := valid.String()
	cases := []string{"", "abc", s[:len(s)-1], strings.Repeat("A", len(s)), s + "A", strings.Replace(s, s[:1], "*", 1)}
	for _, c := range cases {
		if _, err := Parse(c); !errors.Is(err, ErrMalformed) {
			t.Fatalf("expected ErrMalformed for %q, got %v", c, err)
		}
	}
}

func FuzzParse(f *testing.F) {
	tok, _ := New()
	f.Add(tok.String())
	f.Add("")
	f.Add("not-a-token")
	f.Fuzz(func(t *testing.T, s string) {
		parsed, err := Parse(s)
		if err == nil && parsed.String() != s {
			t.Fatalf("accepted token does not re-encode identically: %q", s)
		}
	})
}
