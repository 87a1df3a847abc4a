package token

import "testing"

func TestNewSessionShape(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		tok := NewSession()
		if len(tok) != 64 {
			t.Fatalf("expected 64 hex chars, got %d (%q)", len(tok), tok)
		}
		if seen[tok] {
			t.Fatalf("duplicate token generated: %q", tok)
		}
		seen[tok] = true
	}
}
