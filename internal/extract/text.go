package extract

import (
	"fmt"
	"path/filepath"
	"strings"

	"knowchat/internal/pkg/textnorm"
)

var textExtensions = map[string]bool{
	".txt": true,
	".md":  true,
	".csv": true,
}

// TextFile accepts uploads whose MIME type is in the text family or whose
// extension is on a small allow-list, and normalizes the content directly.
func TextFile(filename, contentType string, data []byte) (Result, error) {
	if !isTextUpload(filename, contentType) {
		return Result{}, fmt.Errorf("%w: %q is not a text file", ErrValidation, filename)
	}
	return Result{
		Title: titleFromFilename(filename),
		Text:  textnorm.Normalize(string(data)),
	}, nil
}

func isTextUpload(filename, contentType string) bool {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "text/") {
		return true
	}
	return textExtensions[strings.ToLower(filepath.Ext(filename))]
}
