package export

import (
	"context"
	"fmt"
	"html/template"

	"folio/api/internal/convert"
)

// Service provides draft export functionality
type Service struct {
	pandocPath string
}

// NewService creates an export service. pandocPath names the pandoc binary
// used for DOCX export.
func NewService(pandocPath string) *Service {
	if pandocPath == "" {
		pandocPath = "pandoc"
	}
	return &Service{pandocPath: pandocPath}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, doc Document, format Format) (*Result, error) {
	title := doc.Title
	if title == "" {
		title = Title(doc.Source, doc.Name)
	}

	switch format {
	case FormatHTML:
		html, err := s.HTML(doc)
		if err != nil {
			return nil, err
		}
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		html, err := s.HTML(doc)
		if err != nil {
			return nil, err
		}
		return exportPDF(ctx, html, title)
	case FormatDOCX:
		bibliography, err := CSLJSON(doc.Bibliography)
		if err != nil {
			return nil, fmt.Errorf("encode bibliography: %w", err)
		}
		interchange := convert.ToInterchange(doc.Source).Text
		return exportDOCX(ctx, s.pandocPath, interchange, bibliography, title)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// HTML renders the styled draft as a standalone HTML page.
func (s *Service) HTML(doc Document) (string, error) {
	title := doc.Title
	if title == "" {
		title = Title(doc.Source, doc.Name)
	}
	html, err := RenderDocumentHTML(TemplateData{
		Title:       title,
		Style:       doc.Style.String(),
		ContentHTML: template.HTML(MarkdownToHTML(doc.Rendered)),
		Author:      doc.Author,
		UpdatedAt:   doc.UpdatedAt,
		Unresolved:  unresolvedKeys(doc),
	})
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return html, nil
}

func unresolvedKeys(doc Document) []string {
	var keys []string
	for _, c := range doc.Bibliography {
		if c.Unresolved {
			keys = append(keys, c.Key)
		}
	}
	return keys
}
