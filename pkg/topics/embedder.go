package topics

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

// Embedder turns texts into vectors for similarity search.
type Embedder interface {
	// Embed returns one vector per input, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Name identifies the embedder in logs.
	Name() string
}

// DefaultLexicalDimensions is the vector width of the lexical embedder.
const DefaultLexicalDimensions = 1024

// LexicalEmbedder is a local feature-hashing embedder.
// Tokens are lower-cased, stripped of stopwords and singularised, then
// unigrams and adjacent bigrams are hashed into a fixed-width L2-normalised vector.
// It needs no network and is deterministic.
type LexicalEmbedder struct {
	dims int
}

// NewLexicalEmbedder creates a lexical embedder. dims <= 0 uses DefaultLexicalDimensions.
func NewLexicalEmbedder(dims int) *LexicalEmbedder {
	if dims <= 0 {
		dims = DefaultLexicalDimensions
	}
	return &LexicalEmbedder{dims: dims}
}

// Name implements Embedder.
func (e *LexicalEmbedder) Name() string { return "lexical" }

// Embed implements Embedder.
func (e *LexicalEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.vector(Tokenize(text))
	}
	return out, nil
}

func (e *LexicalEmbedder) vector(tokens []string) []float32 {
	v := make([]float32, e.dims)
	add := func(feature string) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(feature))
		v[h.Sum32()%uint32(e.dims)]++
	}
	for i, tok := range tokens {
		add(tok)
		if i > 0 {
			add(tokens[i-1] + " " + tok)
		}
	}
	normalize(v)
	return v
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true, "be": true,
	"by": true, "did": true, "do": true, "does": true, "for": true, "from": true, "give": true,
	"how": true, "i": true, "in": true, "is": true, "it": true, "list": true, "many": true,
	"me": true, "much": true, "of": true, "on": true, "or": true, "our": true, "show": true,
	"tell": true, "that": true, "the": true, "their": true, "there": true, "this": true,
	"to": true, "wa": true, "was": true, "we": true, "were": true, "what": true, "which": true,
	"who": true, "with": true, "you": true,
}

// Tokenize splits text into normalised content tokens.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if stopwords[f] {
			continue
		}
		singular := inflection.Singular(f)
		if stopwords[singular] {
			continue
		}
		tokens = append(tokens, singular)
	}
	return tokens
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
}

// Cosine returns the cosine similarity of a and b, or 0 when either is zero
// or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
