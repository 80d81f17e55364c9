package embedding

import (
	"context"
	"math"
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"
)

const DefaultHashDimensions = 512

// HashEmbedder maps text to a bag-of-words vector using feature hashing.
// It needs no model or corpus preparation and is deterministic for identical input.
type HashEmbedder struct {
	dimensions   int
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = DefaultHashDimensions
	}
	return &HashEmbedder{
		dimensions:   dimensions,
		tokenPattern: regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}]+)*`),
		stopwords:    defaultStopwords(),
	}
}

func (e *HashEmbedder) Dimensions() int { return e.dimensions }

// EmbedDocuments embeds every text independently
func (e *HashEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vectors = append(vectors, e.embed(text))
	}
	return vectors, nil
}

func (e *HashEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.embed(text), nil
}

func (e *HashEmbedder) embed(text string) []float32 {
	vec := make([]float64, e.dimensions)
	tokens := e.tokenPattern.FindAllString(strings.ToLower(text), -1)

	content := tokens[:0:0]
	for _, tok := range tokens {
		if _, stop := e.stopwords[tok]; !stop {
			content = append(content, tok)
		}
	}
	// text made only of stopwords still gets a direction
	if len(content) == 0 {
		content = tokens
	}
	for _, tok := range content {
		vec[e.bucket(tok)]++
	}

	// L2 normalize
	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	out := make([]float32, e.dimensions)
	if norm == 0 {
		return out
	}
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}

func (e *HashEmbedder) bucket(token string) int {
	return int(xxhash.Sum64String(token) % uint64(e.dimensions))
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with",
		"as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up",
		"down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through",
		"during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will",
		"just", "don", "should", "now", "what", "which", "who", "whom", "how", "why", "when", "where", "do", "does",
		"did", "i", "you", "we", "they", "he", "she", "its", "my", "your", "our", "their", "me", "us", "them",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
