package export

import (
	"html/template"
	"strings"
	"time"
)

// TemplateData is the view model of the standalone HTML page.
type TemplateData struct {
	Title       string
	Style       string
	ContentHTML template.HTML
	Author      string
	UpdatedAt   time.Time
	Unresolved  []string
}

// byline joins author, style and date into the header line.
func (d TemplateData) byline() string {
	parts := make([]string, 0, 3)
	if d.Author != "" {
		parts = append(parts, d.Author)
	}
	parts = append(parts, d.Style)
	if !d.UpdatedAt.IsZero() {
		parts = append(parts, d.UpdatedAt.Format("Jan 2, 2006"))
	}
	return strings.Join(parts, " | ")
}

var pageTemplate = template.Must(template.New("page").Funcs(template.FuncMap{
	"styleClass": func(name string) string { return "style-" + strings.ToLower(name) },
	"join":       strings.Join,
}).Parse(pageHTML))

// RenderDocumentHTML executes the page template.
func RenderDocumentHTML(data TemplateData) (string, error) {
	var sb strings.Builder
	err := pageTemplate.Execute(&sb, struct {
		TemplateData
		Byline string
	}{data, data.byline()})
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}

const pageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<title>{{.Title}}</title>
<style>
body{font-family:Georgia,serif;line-height:1.6;max-width:800px;margin:2rem auto;padding:0 1rem}
header.byline{color:#666;font-size:.9em;margin-bottom:2rem}
aside.unresolved{background:#fff4e5;padding:.5rem 1rem;border-left:3px solid #e69500}
sup{font-size:.7em}
</style>
</head>
<body class="{{styleClass .Style}}">
<header class="byline">{{.Byline}}</header>
{{with .Unresolved}}<aside class="unresolved">Unresolved references: {{join . ", "}}</aside>
{{end}}<article>{{.ContentHTML}}</article>
</body>
</html>`
