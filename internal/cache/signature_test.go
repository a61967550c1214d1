package cache

import "testing"

func TestSignatureKeyStable(t *testing.T) {
	a := Signature{Kind: KindSearch, Query: "golang", Sort: "likes", Since: "1d", Pages: 2,
		Aux: map[string]string{"min_likes": "5", "lang": "en"}}
	b := Signature{Kind: KindSearch, Query: "golang", Sort: "likes", Since: "1d", Pages: 2,
		Aux: map[string]string{"lang": "en", "min_likes": "5"}}

	if a.Key() != b.Key() {
		t.Error("aux insertion order must not change the key")
	}
	if len(a.Key()) != 32 {
		t.Errorf("expected 32-char hex key, got %d chars", len(a.Key()))
	}
}

func TestSignatureLiteralEquality(t *testing.T) {
	base := Signature{Kind: KindSearch, Query: "go rust", Sort: "recency", Pages: 1}
	variants := []Signature{
		{Kind: KindSearch, Query: "rust go", Sort: "recency", Pages: 1},
		{Kind: KindSearch, Query: "go  rust", Sort: "recency", Pages: 1},
		{Kind: KindSearch, Query: "go rust", Sort: "likes", Pages: 1},
		{Kind: KindSearch, Query: "go rust", Sort: "recency", Pages: 2},
		{Kind: KindSearch, Query: "go rust", Sort: "recency", Since: "7d", Pages: 1},
		{Kind: KindThread, Query: "go rust", Sort: "recency", Pages: 1},
		{Kind: KindSearch, Query: "go rust", Sort: "recency", Pages: 1, Aux: map[string]string{"x": ""}},
	}
	for _, v := range variants {
		if v.Key() == base.Key() {
			t.Errorf("signature %q should not collide with %q", v.String(), base.String())
		}
	}
}

func TestSignatureSeparatorInQuery(t *testing.T) {
	a := Signature{Kind: KindSearch, Query: "a|b", Sort: ""}
	b := Signature{Kind: KindSearch, Query: "a", Sort: "b"}
	if a.Key() == b.Key() {
		t.Error("separator characters inside fields must not cause collisions")
	}
}
