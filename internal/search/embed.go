package search

import (
	"hash/fnv"
	"math"
	"strings"
)

const (
	// DefaultVectorDim is the feature-hash vector size. Large enough that
	// trigram collisions stay rare on catalog-sized vocabularies, small
	// enough to keep point upserts cheap.
	DefaultVectorDim = 512

	nameWeight        = 3.0
	keywordWeight     = 2.0
	descriptionWeight = 1.0
)

// Embedder maps text to a fixed-dimension vector by feature-hashing
// character trigrams. A typo perturbs only a few trigrams and a prefix
// shares most of its trigrams with the full name, so cosine ranking over
// these vectors gives typo-tolerant, prefix-matching full-text search
// without any external model call. Embedding is deterministic: the same
// text always yields the same vector.
type Embedder struct {
	dim int
}

// NewEmbedder creates an Embedder of the given dimension (<=0 uses
// DefaultVectorDim).
func NewEmbedder(dim int) *Embedder {
	if dim <= 0 {
		dim = DefaultVectorDim
	}
	return &Embedder{dim: dim}
}

// Dim returns the vector dimension.
func (e *Embedder) Dim() int {
	return e.dim
}

// EmbedDocument builds the index-side vector for a document. Name trigrams
// carry the most weight, then keywords, then description, so a name hit
// outranks an incidental description mention.
func (e *Embedder) EmbedDocument(doc *Document) []float32 {
	vec := make([]float32, e.dim)
	e.accumulate(vec, doc.Name, nameWeight)
	for _, k := range doc.Keywords {
		e.accumulate(vec, k, keywordWeight)
	}
	e.accumulate(vec, doc.Description, descriptionWeight)
	normalize(vec)
	return vec
}

// EmbedQuery builds the query-side vector. Queries use uniform weight; the
// asymmetry lives entirely on the document side.
func (e *Embedder) EmbedQuery(query string) []float32 {
	vec := make([]float32, e.dim)
	e.accumulate(vec, query, 1.0)
	normalize(vec)
	return vec
}

// accumulate hashes each token's boundary-padded trigrams into the vector
// with signed feature hashing: one hash bit picks the sign so collisions
// cancel rather than pile up.
func (e *Embedder) accumulate(vec []float32, text string, weight float32) {
	for _, token := range tokenize(text) {
		padded := "\x02" + token + "\x03"
		runes := []rune(padded)
		if len(runes) < 3 {
			continue
		}
		for i := 0; i+3 <= len(runes); i++ {
			h := hashTrigram(runes[i : i+3])
			bucket := int(h % uint64(len(vec)))
			sign := float32(1)
			if h&(1<<63) != 0 {
				sign = -1
			}
			vec[bucket] += sign * weight
		}
	}
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !isWordRune(r)
	})
}

func isWordRune(r rune) bool {
	return r == '-' || r == '\'' ||
		(r >= '0' && r <= '9') ||
		(r >= 'a' && r <= 'z') ||
		r > 127
}

func hashTrigram(runes []rune) uint64 {
	h := fnv.New64a()
	for _, r := range runes {
		var buf [4]byte
		buf[0] = byte(r)
		buf[1] = byte(r >> 8)
		buf[2] = byte(r >> 16)
		buf[3] = byte(r >> 24)
		h.Write(buf[:])
	}
	return h.Sum64()
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range vec {
		vec[i] *= inv
	}
}
