package export

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"strings"
	"testing"

	"folio/api/internal/reference"
	"folio/api/internal/style"
)

var testDoc = Document{
	Name:   "paper",
	Author: "Avery",
	Style:  style.Vancouver,
	Source: "# Heart Study\n\nClaim [[smith2023_12345]] and [[pmid:404]].\n",
	Rendered: "# Heart Study\n\nClaim [1]<!-- [[smith2023_12345]] --> and [2]<!-- [[pmid:404]] -->.\n\n" +
		"## References\n\n[1] Smith J, Doe A. Test Paper. J Test. 2023;12(3):45-67.\n\n[2] Unresolved reference: pmid:404.\n",
	Bibliography: []style.Citation{
		{
			Key:      "smith2023_12345",
			Sequence: 1,
			Metadata: reference.Metadata{
				Authors: []string{"Smith J", "Doe A"},
				Title:   "Test Paper",
				Journal: "J Test",
				Year:    "2023",
				Volume:  "12",
				Issue:   "3",
				Pages:   "45-67",
				DOI:     "10.1000/test",
			},
		},
		{Key: "pmid:404", Sequence: 2, Unresolved: true},
	},
}

func TestParseFormat(t *testing.T) {
	for _, name := range []string{"html", "PDF", " docx "} {
		if _, err := ParseFormat(name); err != nil {
			t.Fatalf("ParseFormat(%q) error = %v", name, err)
		}
	}
	if _, err := ParseFormat("odt"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("ParseFormat(odt) error = %v", err)
	}
}

func TestMarkdownToHTML(t *testing.T) {
	html := MarkdownToHTML(testDoc.Rendered)
	if !strings.Contains(html, "Heart Study</h1>") {
		t.Fatalf("missing heading: %s", html)
	}
	if !strings.Contains(html, "References</h2>") {
		t.Fatalf("missing references heading: %s", html)
	}
	if !strings.Contains(html, "Claim [1] and [2].") {
		t.Fatalf("marks not rendered as text: %s", html)
	}
	if strings.Contains(html, "<!--") || strings.Contains(html, "[[") {
		t.Fatalf("annotations leaked: %s", html)
	}
}

func TestMarkdownToHTMLSuperscript(t *testing.T) {
	html := MarkdownToHTML("Claim^1^ here.")
	if !strings.Contains(html, "<sup>1</sup>") {
		t.Fatalf("superscript not rendered: %s", html)
	}
}

func TestStripAnnotations(t *testing.T) {
	in := "A [1,2]<!-- [[a2020_1]] [[b2021_2]] --> B <!-- keep me -->"
	if got := StripAnnotations(in); got != "A [1,2] B <!-- keep me -->" {
		t.Fatalf("StripAnnotations() = %q", got)
	}
}

func TestTitle(t *testing.T) {
	if got := Title(testDoc.Source, "paper"); got != "Heart Study" {
		t.Fatalf("Title() = %q", got)
	}
	if got := Title("no heading", "paper"); got != "paper" {
		t.Fatalf("Title() = %q", got)
	}
}

func TestExportHTML(t *testing.T) {
	res, err := NewService("").Export(context.Background(), testDoc, FormatHTML)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if res.Filename != "Heart-Study.html" || !strings.HasPrefix(res.MimeType, "text/html") {
		t.Fatalf("Export() = %s %s", res.Filename, res.MimeType)
	}
	html := string(res.Data)
	for _, want := range []string{"<title>Heart Study</title>", "style-vancouver", "Unresolved references: pmid:404", "Avery"} {
		if !strings.Contains(html, want) {
			t.Errorf("HTML missing %q", want)
		}
	}
}

func TestExportDOCXWithoutPandoc(t *testing.T) {
	_, err := NewService("folio-missing-pandoc-binary").Export(context.Background(), testDoc, FormatDOCX)
	if !errors.Is(err, ErrDOCXDependencyMissing) {
		t.Fatalf("Export() error = %v, want ErrDOCXDependencyMissing", err)
	}
}

func TestExportUnsupportedFormat(t *testing.T) {
	_, err := NewService("").Export(context.Background(), testDoc, Format("odt"))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("Export() error = %v", err)
	}
}

func TestCSLJSON(t *testing.T) {
	data, err := CSLJSON(testDoc.Bibliography)
	if err != nil {
		t.Fatalf("CSLJSON() error = %v", err)
	}
	var items []map[string]any
	if err := json.Unmarshal(data, &items); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d", len(items))
	}
	first := items[0]
	if first["id"] != "smith2023_12345" || first["container-title"] != "J Test" || first["DOI"] != "10.1000/test" {
		t.Fatalf("first item = %v", first)
	}
	authors := first["author"].([]any)
	if len(authors) != 2 || authors[0].(map[string]any)["family"] != "Smith" {
		t.Fatalf("authors = %v", authors)
	}
	issued := first["issued"].(map[string]any)["date-parts"].([]any)
	if issued[0].([]any)[0].(float64) != 2023 {
		t.Fatalf("issued = %v", issued)
	}
	if items[1]["title"] != "Unresolved reference: pmid:404" {
		t.Fatalf("unresolved item = %v", items[1])
	}
}

func TestDocxArgsUseCiteproc(t *testing.T) {
	args := strings.Join(docxArgs("/tmp/refs.json"), " ")
	if !strings.Contains(args, "--citeproc") || !strings.Contains(args, "--bibliography /tmp/refs.json") {
		t.Fatalf("docxArgs() = %s", args)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello-World"},
		{"My Draft v1.2", "My-Draft-v12"},
		{"Special!@#$%Chars", "SpecialChars"},
		{"  Leading -- and trailing  ", "Leading-and-trailing"},
		{"snake_case title", "snake_case-title"},
		{"", "draft"},
		{"!!!", "draft"},
		{"Outcomes of Early Intervention in Adult Heart Failure Across Twelve Centres",
			"Outcomes-of-Early-Intervention-in-Adult-Heart-Failure-Across"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := sanitizeFilename(tt.input)
			if result != tt.expected {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestFindBrowserMissing(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	if _, err := findBrowser(); !errors.Is(err, ErrPDFDependencyMissing) {
		t.Fatalf("findBrowser() error = %v, want ErrPDFDependencyMissing", err)
	}
}

func TestExportPDFWithoutBrowser(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	_, err := NewService("").Export(context.Background(), Document{Name: "x", Rendered: "Text"}, FormatPDF)
	if !errors.Is(err, ErrPDFDependencyMissing) {
		t.Fatalf("Export(pdf) error = %v, want ErrPDFDependencyMissing", err)
	}
}

func TestRenderDocumentHTMLKeepsContentUnescaped(t *testing.T) {
	html, err := RenderDocumentHTML(TemplateData{
		Title:       "Test Draft",
		Style:       "apa",
		ContentHTML: template.HTML("<p>This is the content.</p>"),
	})
	if err != nil {
		t.Fatalf("RenderDocumentHTML() error = %v", err)
	}
	if strings.Contains(html, "&lt;p&gt;") || !strings.Contains(html, "<p>This is the content.</p>") {
		t.Fatalf("content escaped: %s", html)
	}
	if strings.Contains(html, "Unresolved references") {
		t.Fatal("unexpected unresolved block")
	}
}

func TestRenderDocumentHTMLListsUnresolvedKeys(t *testing.T) {
	html, err := RenderDocumentHTML(TemplateData{
		Title:      "Draft",
		Style:      "Vancouver",
		Author:     "Ana",
		Unresolved: []string{"pmid:1", "doi:10.1/x"},
	})
	if err != nil {
		t.Fatalf("RenderDocumentHTML() error = %v", err)
	}
	for _, want := range []string{"Unresolved references: pmid:1, doi:10.1/x", `class="style-vancouver"`, "Ana | Vancouver"} {
		if !strings.Contains(html, want) {
			t.Errorf("missing %q in %s", want, html)
		}
	}
}
