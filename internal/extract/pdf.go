package extract

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"knowchat/internal/pkg/textnorm"
)

// PDF decodes a PDF byte stream, walks its pages in order, joins each page's
// text runs with single spaces and drops empty pages.
func PDF(filename string, r io.Reader) (Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Result{}, fmt.Errorf("read pdf input failed: %w", err)
	}
	if len(data) == 0 {
		return Result{}, fmt.Errorf("%w: empty pdf", ErrExtraction)
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content := page.Content()
		runs := make([]string, 0, len(content.Text))
		for _, t := range content.Text {
			if t.S != "" {
				runs = append(runs, t.S)
			}
		}
		pageText := strings.TrimSpace(strings.Join(runs, " "))
		if pageText != "" {
			pages = append(pages, pageText)
		}
	}

	return Result{
		Title: titleFromFilename(filename),
		Text:  textnorm.Normalize(strings.Join(pages, " ")),
	}, nil
}

func titleFromFilename(filename string) string {
	base := filepath.Base(filename)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	name = textnorm.Normalize(name)
	if name == "" {
		return "Untitled"
	}
	return name
}
