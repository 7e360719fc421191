package server

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/morezero/autodraw-agent/pkg/capability"
	"github.com/morezero/autodraw-agent/pkg/spec"
)

const homeLogPrefix = "server:home"

// homePageTemplate wraps the rendered catalog (white bg, black/blue text).
const homePageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Title}}</title>
  <style>
    * { box-sizing: border-box; }
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    a { color: #0066cc; }
    h1, h2, h3 { color: #0066cc; }
    table { border-collapse: collapse; width: 100%; max-width: 1100px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; vertical-align: top; }
    th { background: #f0f4f8; color: #0066cc; }
    code { background: #f5f5f5; padding: 0 0.25rem; }
  </style>
</head>
<body>
{{.Body}}
</body>
</html>
`

var homeTmpl = template.Must(template.New("home").Parse(homePageTemplate))

var markdown = goldmark.New(goldmark.WithExtensions(extension.Table))

// CatalogMarkdown describes the loaded catalog as markdown.
func CatalogMarkdown(reg *capability.Registry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# AutoDraw agent\n\nCatalog **%s** (schema %s).", reg.Name(), reg.SchemaVersion())
	if r := reg.HostVersionRange(); r != "" {
		fmt.Fprintf(&b, " Host versions: `%s`.", r)
	}
	b.WriteString("\n\n")

	b.WriteString("## Commands\n\n| Command | Class | Host command | Required | Description |\n|---|---|---|---|---|\n")
	for _, e := range reg.List() {
		fmt.Fprintf(&b, "| `%s` | %s | `%s` | %s | %s |\n",
			e.Command, e.Class, e.External, cell(strings.Join(e.Required, ", ")), cell(e.Description))
	}

	b.WriteString("\n## Lighting systems\n\n| Key | Name | Command | Wattage | Length x Width |\n|---|---|---|---|---|\n")
	for _, ls := range reg.LightingSystems() {
		fmt.Fprintf(&b, "| `%s` | %s | `%s` | %sW | %s x %s |\n",
			ls.Key, cell(ls.Name), ls.Command, spec.FormatNumber(ls.DefaultWattage),
			spec.FormatNumber(ls.Length), spec.FormatNumber(ls.Width))
	}

	if extras := reg.Extras(); len(extras) > 0 {
		b.WriteString("\n## Follow-up extras\n\n| Key | Host command | Description |\n|---|---|---|\n")
		for _, x := range extras {
			fmt.Fprintf(&b, "| `%s` | `%s` | %s |\n", x.Key, x.External, cell(x.Description))
		}
	}

	v := reg.Vocabulary()
	b.WriteString("\n## Vocabulary\n\n")
	fmt.Fprintf(&b, "- Mounting: %s\n", strings.Join(v.Mounting, ", "))
	fmt.Fprintf(&b, "- Lens: %s\n", strings.Join(v.Lens, ", "))
	fmt.Fprintf(&b, "- Color temperatures: %s\n", strings.Join(v.ColorTemperatures, ", "))
	return b.String()
}

// RenderCatalogPage renders the catalog markdown into the home page.
func RenderCatalogPage(reg *capability.Registry) ([]byte, error) {
	var body bytes.Buffer
	if err := markdown.Convert([]byte(CatalogMarkdown(reg)), &body); err != nil {
		return nil, fmt.Errorf("%s - render catalog markdown: %w", homeLogPrefix, err)
	}

	var page bytes.Buffer
	err := homeTmpl.Execute(&page, struct {
		Title string
		Body  template.HTML
	}{
		Title: "AutoDraw agent - " + reg.Name(),
		Body:  template.HTML(body.String()),
	})
	if err != nil {
		return nil, fmt.Errorf("%s - home template execute: %w", homeLogPrefix, err)
	}
	return page.Bytes(), nil
}

// cell keeps a value inside one markdown table cell.
func cell(s string) string {
	if s == "" {
		return "-"
	}
	return strings.NewReplacer("|", `\|`, "\n", " ").Replace(s)
}
