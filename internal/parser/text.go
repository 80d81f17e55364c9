package parser

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"golang.org/x/text/encoding/charmap"

	"document-chat/internal/models"
)

// elements rendered by goldmark that hold a line of visible text
const blockSelector = "h1, h2, h3, h4, h5, h6, p, li, pre, blockquote, th, td"

// whole file as one page, rejected when it is not valid UTF-8
func parseText(filePath string) ([]models.Page, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("file is not valid utf-8")
	}
	return []models.Page{{Text: string(data)}}, nil
}

func parseLatin1(filePath string) ([]models.Page, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode latin-1: %v", err)
	}
	return []models.Page{{Text: string(decoded)}}, nil
}

// renders markdown and keeps the visible text, so markup never reaches the index
func parseMarkdown(filePath string) ([]models.Page, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("file is not valid utf-8")
	}

	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(
			gmhtml.WithHardWraps(),
		),
	)
	var buf bytes.Buffer
	if err := md.Convert(data, &buf); err != nil {
		return nil, fmt.Errorf("failed to render markdown: %v", err)
	}
	text, err := htmlToText(&buf)
	if err != nil {
		return nil, err
	}
	return []models.Page{{Text: text}}, nil
}

// htmlToText keeps one line per block element. A block that contains other blocks
// contributes only its own text, so nested lists and quotes are not repeated.
func htmlToText(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("failed to parse rendered markdown: %v", err)
	}

	var lines []string
	doc.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		if s.Find(blockSelector).Length() > 0 {
			s = s.Clone()
			s.Find(blockSelector).Remove()
		}
		if line := strings.TrimSpace(s.Text()); line != "" {
			lines = append(lines, line)
		}
	})
	if len(lines) == 0 {
		return strings.TrimSpace(doc.Text()), nil
	}
	return strings.Join(lines, "\n"), nil
}
