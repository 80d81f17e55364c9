// Package parser extracts page text from documents. Every extension maps to an
// ordered chain of named strategies; the first one that succeeds wins.
package parser

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"document-chat/internal/models"
)

var errNoText = errors.New("no text extracted")

// Strategy is one named way of extracting text from a file
type Strategy struct {
	Name    string
	Extract func(path string) ([]models.Page, error)
}

type Registry struct {
	chains map[string][]Strategy
}

// NewRegistry returns a registry with the built-in extraction chains
func NewRegistry() *Registry {
	r := &Registry{chains: map[string][]Strategy{}}
	r.Register(".pdf",
		Strategy{Name: "pdf-plain-text", Extract: parsePDFPlainText},
		Strategy{Name: "pdf-text-rows", Extract: parsePDFRows},
	)
	r.Register(".docx",
		Strategy{Name: "docx-editable", Extract: parseDOCXEditable},
		Strategy{Name: "docx-zip-xml", Extract: parseDOCXZip},
	)
	r.Register(".pptx",
		Strategy{Name: "pptx-slides", Extract: parsePPTX},
	)
	r.Register(".xlsx",
		Strategy{Name: "xlsx-tealeg", Extract: parseXLSX},
		Strategy{Name: "xlsx-excelize", Extract: parseXLSXExcelize},
	)
	r.Register(".md",
		Strategy{Name: "markdown-html", Extract: parseMarkdown},
		Strategy{Name: "markdown-raw", Extract: parseText},
	)
	r.Register(".txt",
		Strategy{Name: "utf-8", Extract: parseText},
		Strategy{Name: "latin-1", Extract: parseLatin1},
	)
	return r
}

// Register replaces the chain for an extension
func (r *Registry) Register(ext string, strategies ...Strategy) {
	r.chains[strings.ToLower(ext)] = strategies
}

func (r *Registry) Supports(path string) bool {
	_, ok := r.chains[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Extensions lists the registered extensions in sorted order
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.chains))
	for ext := range r.chains {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Extract runs the chain for the file's extension. A strategy that reads the file
// but finds no text passes on to the next one; if none finds text the file yields no pages.
func (r *Registry) Extract(path string) ([]models.Page, error) {
	ext := strings.ToLower(filepath.Ext(path))
	chain, ok := r.chains[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUnsupportedFormat, ext)
	}

	var errs []error
	readable := false
	for _, s := range chain {
		pages, err := s.run(path)
		if err == nil {
			pages = withText(pages, path)
			if len(pages) > 0 {
				log.Debug().Str("file", path).Str("strategy", s.Name).Int("pages", len(pages)).Msg("Extracted text")
				return pages, nil
			}
			readable = true
			err = errNoText
		}
		log.Debug().Err(err).Str("file", path).Str("strategy", s.Name).Msg("Extraction strategy failed")
		errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
	}

	if readable {
		return nil, nil
	}
	return nil, fmt.Errorf("%w: %s: %w", models.ErrExtraction, filepath.Base(path), errors.Join(errs...))
}

// run converts a panic inside a third-party decoder into an error
func (s Strategy) run(path string) (pages []models.Page, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.Extract(path)
}

// withText drops blank pages and stamps the source
func withText(pages []models.Page, path string) []models.Page {
	out := pages[:0]
	for _, p := range pages {
		if strings.TrimSpace(p.Text) == "" {
			continue
		}
		p.Source = path
		out = append(out, p)
	}
	return out
}
