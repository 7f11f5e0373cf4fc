package handlers

import (
	"embed"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

// Templates parses the embedded HTML templates for router.SetHTMLTemplate
func Templates() (*template.Template, error) {
	return template.ParseFS(templateFS, "templates/*.html")
}
