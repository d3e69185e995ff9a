package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"gemini-chat/internal/models"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var StaticFS embed.FS

// Message is a turn prepared for display.
type Message struct {
	Role models.Role
	HTML template.HTML
}

// Page is everything the chat page needs.
type Page struct {
	Title        string
	Header       string
	Model        string
	SessionToken string
	Messages     []Message
	Error        string
}

type Renderer struct {
	tmpl *template.Template
	md   goldmark.Markdown
}

func NewRenderer() (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	// Raw HTML in messages is escaped; goldmark only passes it through
	// with html.WithUnsafe.
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))

	return &Renderer{tmpl: tmpl, md: md}, nil
}

// Markdown converts message text to HTML.
func (r *Renderer) Markdown(content string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(content), &buf); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

// Messages renders every turn, falling back to escaped text when a turn
// cannot be converted.
func (r *Renderer) Messages(turns []models.Turn) []Message {
	out := make([]Message, 0, len(turns))
	for _, t := range turns {
		html, err := r.Markdown(t.Content)
		if err != nil {
			html = template.HTML("<p>" + template.HTMLEscapeString(t.Content) + "</p>")
		}
		out = append(out, Message{Role: t.Role, HTML: html})
	}
	return out
}

func (r *Renderer) RenderPage(w io.Writer, page Page) error {
	return r.tmpl.ExecuteTemplate(w, "index.html", page)
}
