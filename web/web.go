// Package web содержит HTML-шаблоны приложения.
package web

import (
	"embed"
	"html/template"
	"time"

	"github.com/dustin/go-humanize"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Templates разбирает встроенные шаблоны. Результат передаётся в gin через SetHTMLTemplate.
func Templates() (*template.Template, error) {
	return template.New("").Funcs(template.FuncMap{
		"bytes": func(n int64) string { return humanize.IBytes(uint64(n)) },
		"ago":   func(t time.Time) string { return humanize.Time(t) },
		"stamp": func(t time.Time) string { return t.UTC().Format("2006-01-02 15:04:05") },
	}).ParseFS(templatesFS, "templates/*.html")
}
