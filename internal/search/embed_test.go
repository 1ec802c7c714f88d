package search

import (
	"math"
	"testing"
)

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func TestEmbedQueryDeterministic(t *testing.T) {
	e := NewEmbedder(0)
	if e.Dim() != DefaultVectorDim {
		t.Fatalf("Default dim: got %d, want %d", e.Dim(), DefaultVectorDim)
	}

	a := e.EmbedQuery("minimal logo pack")
	b := e.EmbedQuery("minimal logo pack")
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("Embedding not deterministic at index %d: %v != %v", i, a[i], b[i])
		}
	}
}

func TestEmbedQueryNormalized(t *testing.T) {
	e := NewEmbedder(256)
	vec := e.EmbedQuery("watercolor texture bundle")

	norm := math.Sqrt(dot(vec, vec))
	if math.Abs(norm-1) > 1e-5 {
		t.Errorf("Vector norm = %v, want 1", norm)
	}

	// Empty query stays the zero vector rather than dividing by zero.
	zero := e.EmbedQuery("")
	if n := dot(zero, zero); n != 0 {
		t.Errorf("Empty query should embed to zero vector, norm^2 = %v", n)
	}
}

func TestEmbedTypoToleranceAndPrefixMatch(t *testing.T) {
	e := NewEmbedder(512)

	doc := e.EmbedDocument(&Document{Name: "Minimal Logo Pack", Keywords: []string{"logo", "branding"}})

	exact := dot(e.EmbedQuery("minimal logo pack"), doc)
	typo := dot(e.EmbedQuery("minimal lgoo pack"), doc)
	prefix := dot(e.EmbedQuery("minimal lo"), doc)
	unrelated := dot(e.EmbedQuery("spreadsheet budget template"), doc)

	if exact <= typo {
		t.Errorf("Exact match (%v) should outscore typo (%v)", exact, typo)
	}
	if typo <= unrelated {
		t.Errorf("Typo query (%v) should still outscore unrelated query (%v)", typo, unrelated)
	}
	if prefix <= unrelated {
		t.Errorf("Prefix query (%v) should outscore unrelated query (%v)", prefix, unrelated)
	}
}

func TestEmbedDocumentNameOutweighsDescription(t *testing.T) {
	e := NewEmbedder(512)

	byName := e.EmbedDocument(&Document{Name: "Logo Pack", Description: "assorted assets"})
	byDesc := e.EmbedDocument(&Document{Name: "Asset Bundle", Description: "includes a logo pack"})

	q := e.EmbedQuery("logo pack")
	if dot(q, byName) <= dot(q, byDesc) {
		t.Errorf("Name hit (%v) should outrank description mention (%v)", dot(q, byName), dot(q, byDesc))
	}
}

func TestTokenize(t *testing.T) {
	testCases := []struct {
		name  string
		input string
		want  int
	}{
		{name: "plain words", input: "Minimal Logo Pack", want: 3},
		{name: "punctuation split", input: "logo,pack/bundle", want: 3},
		{name: "hyphen kept", input: "t-shirt", want: 1},
		{name: "empty", input: "", want: 0},
		{name: "unicode kept", input: "логотип 設計", want: 2},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tokenize(tc.input); len(got) != tc.want {
				t.Errorf("tokenize(%q) = %v, want %d tokens", tc.input, got, tc.want)
			}
		})
	}
}
