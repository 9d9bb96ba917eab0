package delivery

import (
	"fmt"
	"html"
	"strings"
	"text/template"

	"webnotifier/internal/item"
)

// Esc escapes text for Telegram HTML parse mode.
func Esc(s string) string { return html.EscapeString(s) }

func parseFormat(format string) (*template.Template, error) {
	if strings.TrimSpace(format) == "" {
		format = DefaultFormat
	}
	t, err := template.New("message").Option("missingkey=error").Parse(format)
	if err != nil {
		return nil, fmt.Errorf("message format: %w", err)
	}
	// Fail fast on fields that do not exist.
	if err := t.Execute(&strings.Builder{}, Message{Title: "t", URL: "u", Retry: true}); err != nil {
		return nil, fmt.Errorf("message format: %w", err)
	}
	return t, nil
}

func render(t *template.Template, source string, it item.Item, retry bool) (string, error) {
	var b strings.Builder
	err := t.Execute(&b, Message{
		Title:  Esc(it.Title),
		URL:    Esc(it.URL),
		Source: source,
		Retry:  retry,
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}
