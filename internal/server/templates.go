package server

import (
	"html/template"
	"strings"

	"github.com/BadgerOps/chumweb/internal/catalog"
	"github.com/BadgerOps/chumweb/internal/form"
)

// initializeTemplateFuncs sets up custom template functions.
func initializeTemplateFuncs() template.FuncMap {
	return template.FuncMap{
		"paragraphs": paragraphs,
		"optionID":   optionID,
		"isNone":     isNone,
	}
}

// paragraphs splits an alert message on blank lines.
func paragraphs(msg string) []string {
	return strings.Split(msg, "\n\n")
}

// optionID gives the aarch64 option its element id.
func optionID(arch string) string {
	if arch == catalog.AArch64 {
		return catalog.AArch64
	}
	return ""
}

func isNone(v string) bool {
	return v == "" || v == form.None
}
