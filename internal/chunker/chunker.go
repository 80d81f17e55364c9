// Package chunker splits extracted page text into overlapping word windows.
package chunker

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"document-chat/internal/models"
)

const (
	DefaultChunkSize     = 1000 // words
	DefaultChunkOverlap  = 200  // words
	DefaultMinChunkChars = 50
)

// Chunker produces fixed-size word windows with a constant overlap
type Chunker struct {
	chunkSize     int
	chunkOverlap  int
	minChunkChars int
}

// New validates the window parameters. The overlap must stay below the chunk size,
// otherwise the window would never advance.
func New(chunkSize, chunkOverlap, minChunkChars int) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", models.ErrInvalidConfig, chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("%w: chunk overlap must be in [0, %d), got %d", models.ErrInvalidConfig, chunkSize, chunkOverlap)
	}
	if minChunkChars < 0 {
		minChunkChars = 0
	}
	return &Chunker{
		chunkSize:     chunkSize,
		chunkOverlap:  chunkOverlap,
		minChunkChars: minChunkChars,
	}, nil
}

// Stride is the number of words the window advances between chunks
func (c *Chunker) Stride() int {
	return c.chunkSize - c.chunkOverlap
}

// Chunk splits every page into windows. Windows whose trimmed text has minChunkChars
// characters or fewer are dropped. The sequence counter runs across all pages of the call.
func (c *Chunker) Chunk(pages []models.Page) []models.Chunk {
	var chunks []models.Chunk
	seq := 0
	for _, page := range pages {
		for _, window := range c.windows(page.Text) {
			chunks = append(chunks, newChunk(window.text, window.words, page, seq))
			seq++
		}
	}
	return chunks
}

type window struct {
	text  string
	words int
}

// windows slides chunkSize words at stride chunkSize-chunkOverlap
func (c *Chunker) windows(text string) []window {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var out []window
	stride := c.Stride()
	for start := 0; start < len(words); start += stride {
		end := min(start+c.chunkSize, len(words))
		joined := strings.TrimSpace(strings.Join(words[start:end], " "))
		if len(joined) > c.minChunkChars {
			out = append(out, window{text: joined, words: end - start})
		}
		if end == len(words) {
			break
		}
	}
	return out
}

func newChunk(content string, wordCount int, page models.Page, seq int) models.Chunk {
	id := ChunkID(page.Source, page.PageNumber, seq)
	return models.Chunk{
		Content:    content,
		Source:     page.Source,
		PageNumber: page.PageNumber,
		ChunkID:    id,
		Metadata: map[string]string{
			models.MetaFileName:  filepath.Base(page.Source),
			models.MetaFilePath:  page.Source,
			models.MetaPage:      pageString(page.PageNumber),
			models.MetaChunkSize: strconv.Itoa(len(content)),
			models.MetaWordCount: strconv.Itoa(wordCount),
		},
	}
}

// ChunkID composes the source stem, a digest of the full source path, the page and the
// sequence index. The digest keeps ids apart for files sharing a stem in different folders.
func ChunkID(source string, pageNumber, seq int) string {
	base := filepath.Base(source)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return fmt.Sprintf("%s-%08x_page_%d_chunk_%d", stem, uint32(xxhash.Sum64String(source)), pageNumber, seq)
}

func pageString(page int) string {
	if page <= 0 {
		return ""
	}
	return strconv.Itoa(page)
}
