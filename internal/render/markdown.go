// Package render turns generated Markdown into HTML that is safe to embed
// in a page.
package render

import (
	"bytes"
	"html"
	"html/template"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	emoji "github.com/yuin/goldmark-emoji"
	"github.com/yuin/goldmark/extension"
	mdhtml "github.com/yuin/goldmark/renderer/html"
)

// Markdown converts model output to sanitized HTML.
type Markdown struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

func NewMarkdown() *Markdown {
	return &Markdown{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM, extension.Linkify, extension.Strikethrough, emoji.Emoji),
			// Raw HTML is let through here and stripped by the policy below.
			goldmark.WithRendererOptions(mdhtml.WithUnsafe()),
		),
		policy: bluemonday.UGCPolicy(),
	}
}

// HTML renders markdown. Empty input yields empty output.
func (m *Markdown) HTML(markdown string) (template.HTML, error) {
	if strings.TrimSpace(markdown) == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := m.md.Convert([]byte(markdown), &buf); err != nil {
		return "", err
	}
	return template.HTML(m.policy.SanitizeBytes(buf.Bytes())), nil
}

// PlainText strips Markdown syntax, for speech synthesis.
func (m *Markdown) PlainText(markdown string) (string, error) {
	h, err := m.HTML(markdown)
	if err != nil {
		return "", err
	}
	text := html.UnescapeString(bluemonday.StrictPolicy().Sanitize(string(h)))
	return strings.Join(strings.Fields(text), " "), nil
}
