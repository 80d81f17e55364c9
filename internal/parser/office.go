package parser

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/nguyenthenguyen/docx"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"

	"document-chat/internal/models"
)

var slideName = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// office documents keep visible text in <prefix:t> runs and paragraphs in <prefix:p>
func extractTextFromXML(r io.Reader, textTag, paragraphTag string) (string, error) {
	var text strings.Builder
	dec := xml.NewDecoder(r)
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == textTag {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case textTag:
				inText = false
			case paragraphTag:
				text.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				text.Write(t)
			}
		}
	}
	return text.String(), nil
}

func readZipEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func parseDOCXEditable(filePath string) ([]models.Page, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	// GetContent returns the raw document.xml body
	content := r.Editable().GetContent()
	text, err := extractTextFromXML(strings.NewReader(content), "t", "p")
	if err != nil {
		return nil, fmt.Errorf("failed to decode document body: %v", err)
	}
	return []models.Page{{Text: text}}, nil
}

func parseDOCXZip(filePath string) ([]models.Page, error) {
	zr, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		data, err := readZipEntry(f)
		if err != nil {
			return nil, err
		}
		text, err := extractTextFromXML(bytes.NewReader(data), "t", "p")
		if err != nil {
			return nil, fmt.Errorf("failed to decode document body: %v", err)
		}
		return []models.Page{{Text: text}}, nil
	}
	return nil, fmt.Errorf("word/document.xml not found")
}

// one page per slide, numbered by the slide file name
func parsePPTX(filePath string) ([]models.Page, error) {
	zr, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var pages []models.Page
	for _, f := range zr.File {
		m := slideName.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		num, _ := strconv.Atoi(m[1])
		data, err := readZipEntry(f)
		if err != nil {
			return nil, fmt.Errorf("slide %d: %v", num, err)
		}
		text, err := extractTextFromXML(bytes.NewReader(data), "t", "p")
		if err != nil {
			return nil, fmt.Errorf("slide %d: %v", num, err)
		}
		pages = append(pages, models.Page{Text: text, PageNumber: num})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].PageNumber < pages[j].PageNumber })
	return pages, nil
}

func sheetText(name string, rows [][]string) string {
	var text strings.Builder
	text.WriteString(fmt.Sprintf("## Sheet: %s\n", name))
	for _, row := range rows {
		text.WriteString(strings.Join(row, "\t"))
		text.WriteString("\n")
	}
	return text.String()
}

// one page per sheet
func parseXLSX(filePath string) ([]models.Page, error) {
	f, err := xlsx.OpenFile(filePath)
	if err != nil {
		return nil, err
	}

	var pages []models.Page
	for sheetNum, sheet := range f.Sheets {
		rows := make([][]string, 0, len(sheet.Rows))
		for _, row := range sheet.Rows {
			if row == nil {
				continue
			}
			cells := make([]string, 0, len(row.Cells))
			for _, cell := range row.Cells {
				cells = append(cells, cell.String())
			}
			rows = append(rows, cells)
		}
		pages = append(pages, models.Page{Text: sheetText(sheet.Name, rows), PageNumber: sheetNum + 1})
	}
	return pages, nil
}

func parseXLSXExcelize(filePath string) ([]models.Page, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var pages []models.Page
	for sheetNum, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			return nil, fmt.Errorf("sheet %s: %v", sheetName, err)
		}
		pages = append(pages, models.Page{Text: sheetText(sheetName, rows), PageNumber: sheetNum + 1})
	}
	return pages, nil
}
