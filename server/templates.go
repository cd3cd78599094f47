package server

import (
	"embed"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

// ParseTemplate loads one named template from the embedded set.
func ParseTemplate(name string) (*template.Template, error) {
	return template.ParseFS(templateFS, "templates/"+name)
}
