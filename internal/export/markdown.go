package export

import (
	"regexp"
	"strings"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// annotationPattern matches the key comments emitted after rendered marks.
var annotationPattern = regexp.MustCompile(`<!--(?:\s*\[\[[^\]\n]+\]\])+\s*-->`)

// StripAnnotations removes citation key comments from rendered text.
func StripAnnotations(text string) string {
	return annotationPattern.ReplaceAllString(text, "")
}

// MarkdownToHTML converts rendered draft text to an HTML fragment. Nature
// style superscripts (^1,2^) become <sup> elements.
func MarkdownToHTML(text string) string {
	extensions := parser.CommonExtensions | parser.SuperSubscript | parser.NoEmptyLineBeforeBlock
	p := parser.NewWithExtensions(extensions)
	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{
		Flags: mdhtml.CommonFlags | mdhtml.SkipHTML,
	})
	out := markdown.ToHTML([]byte(StripAnnotations(text)), p, renderer)
	return strings.TrimSpace(string(out))
}

// Title returns the first level-one heading of text, or fallback.
func Title(text, fallback string) string {
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "# ") {
			if title := strings.TrimSpace(strings.TrimPrefix(line, "# ")); title != "" {
				return title
			}
		}
	}
	return fallback
}
