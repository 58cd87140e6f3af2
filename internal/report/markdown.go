package report

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/inercia/scanblock/internal/registry"
)

// Markdown renders a GitHub-flavoured markdown table with the same rows as PlainText.
type Markdown struct{}

func (Markdown) ContentType() string {
	return "text/markdown; charset=utf-8"
}

func (Markdown) Format(snap registry.Snapshot, opts Options) (string, error) {
	var sb strings.Builder
	writeMarkdownRow(&sb, header.cells())
	sb.WriteString("| --- | --- | --- | --- | --- |\n")
	for _, r := range rows(snap, opts) {
		writeMarkdownRow(&sb, r.cells())
	}

	if len(snap) > 0 {
		sb.WriteString("\n")
		writeMarkdownRow(&sb, []string{"Host", "Total"})
		sb.WriteString("| --- | --- |\n")
		for _, t := range totals(snap) {
			writeMarkdownRow(&sb, t[:])
		}
	}
	return sb.String(), nil
}

func writeMarkdownRow(sb *strings.Builder, cells []string) {
	sb.WriteString("|")
	for _, cell := range cells {
		sb.WriteString(" ")
		sb.WriteString(escapeMarkdown(cell))
		sb.WriteString(" |")
	}
	sb.WriteString("\n")
}

// markdownEscaper backslash-escapes the characters that would otherwise start
// markup inside a table cell. Request URLs come from the client.
var markdownEscaper = strings.NewReplacer(
	`\`, `\\`,
	"|", `\|`,
	"`", "\\`",
	"*", `\*`,
	"_", `\_`,
	"[", `\[`,
	"]", `\]`,
	"<", `\<`,
	">", `\>`,
	"~", `\~`,
	"&", `\&`,
)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

// HTML renders the markdown table as a sanitized HTML page.
type HTML struct {
	md        goldmark.Markdown
	sanitizer *bluemonday.Policy
}

// NewHTML creates an HTML formatter using GFM tables and a UGC sanitization policy.
func NewHTML() *HTML {
	return &HTML{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithXHTML()),
		),
		sanitizer: bluemonday.UGCPolicy(),
	}
}

func (*HTML) ContentType() string {
	return "text/html; charset=utf-8"
}

func (h *HTML) Format(snap registry.Snapshot, opts Options) (string, error) {
	src, err := Markdown{}.Format(snap, opts)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := h.md.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("failed to render report: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>Host scores</title>\n</head>\n<body>\n")
	sb.WriteString(h.sanitizer.Sanitize(buf.String()))
	sb.WriteString("</body>\n</html>\n")
	return sb.String(), nil
}
