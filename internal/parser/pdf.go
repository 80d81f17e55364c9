package parser

import (
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"

	"document-chat/internal/models"
)

func openPDF(filePath string) (*os.File, *pdf.Reader, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, nil, err
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("failed to read pdf: %v", err)
	}
	return f, reader, nil
}

// one page per pdf page, text from the content stream in document order
func parsePDFPlainText(filePath string) ([]models.Page, error) {
	f, reader, err := openPDF(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var pages []models.Page
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %v", i, err)
		}
		pages = append(pages, models.Page{Text: pageText, PageNumber: i})
	}
	return pages, nil
}

// rebuilds each page from positioned text rows, for files whose plain text stream is unusable
func parsePDFRows(filePath string) ([]models.Page, error) {
	f, reader, err := openPDF(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var pages []models.Page
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			return nil, fmt.Errorf("page %d: %v", i, err)
		}
		var text strings.Builder
		for _, row := range rows {
			for _, word := range row.Content {
				text.WriteString(word.S)
			}
			text.WriteString("\n")
		}
		pages = append(pages, models.Page{Text: text.String(), PageNumber: i})
	}
	return pages, nil
}
