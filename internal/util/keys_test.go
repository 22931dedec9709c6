package util

import "testing"

func TestTokenDeterministicAndDelimited(t *testing.T) {
	if Token("a", "b") != Token("a", "b") {
		t.Fatalf("token not deterministic")
	}
	if Token("ab", "c") == Token("a", "bc") {
		t.Fatalf("parts must be length-delimited")
	}
	if got := len(Token("x")); got != 32 {
		t.Fatalf("len=%d want 32", got)
	}
}

func TestResourceKeyUnderGroupPrefix(t *testing.T) {
	k := ResourceKey("gallery", "abc")
	if k != "resolve:gallery:abc" {
		t.Fatalf("key=%q", k)
	}
	p := GroupPrefix("gallery")
	if k[:len(p)] != p {
		t.Fatalf("%q not under %q", k, p)
	}
}
