// Package extract turns raw inputs (PDF bytes, uploaded text files, remote
// URLs) into a normalized title and plain text.
package extract

import "errors"

var (
	// ErrValidation marks input the extractor refuses to touch (wrong type).
	ErrValidation = errors.New("unsupported input")
	// ErrExtraction marks input that looked right but could not be parsed.
	ErrExtraction = errors.New("extraction failed")
	// ErrFetch marks URL inputs rejected or failed before/at the fetch step.
	ErrFetch = errors.New("fetch failed")
)

// Result is the common output of every extractor. Text is already normalized.
type Result struct {
	Title string
	Text  string
}
