// Package export turns a rendered draft into HTML, PDF or DOCX.
package export

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"folio/api/internal/style"
)

// Format names an export target.
type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

// ParseFormat maps a user supplied name to a Format.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case FormatHTML, FormatPDF, FormatDOCX:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
	}
}

// Document is a rendered draft ready for export.
type Document struct {
	Name         string
	Title        string
	Author       string
	Style        style.Style
	Source       string // raw source with citation markers
	Rendered     string // styled text including the References section
	Bibliography []style.Citation
	UpdatedAt    time.Time
}

// Result is one exported file.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrPDFDependencyMissing means no headless browser was found.
	ErrPDFDependencyMissing = errors.New("pdf export: browser not available")
	// ErrDOCXDependencyMissing means pandoc is not installed.
	ErrDOCXDependencyMissing = errors.New("docx export: pandoc not available")
)
