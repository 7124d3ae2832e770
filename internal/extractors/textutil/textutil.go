// Package textutil holds helpers shared by the local extractors.
package textutil

import (
	"path/filepath"
	"strings"
)

// TitleFromName derives a human-readable title from a file name.
func TitleFromName(name string) string {
	filename := filepath.Base(name)
	if filename == "." || filename == "/" {
		return ""
	}
	if ext := filepath.Ext(filename); ext != "" {
		filename = strings.TrimSuffix(filename, ext)
	}
	filename = strings.ReplaceAll(filename, "_", " ")
	filename = strings.ReplaceAll(filename, "-", " ")
	return strings.TrimSpace(filename)
}

// CompactLines trims every line and drops the empty ones.
func CompactLines(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

// Fields builds the common extraction fields.
func Fields(title, format string) map[string]any {
	fields := map[string]any{"format": format}
	if title != "" {
		fields["title"] = title
	}
	return fields
}
