package graph

import (
	"path/filepath"
	"strings"

	errs "github.com/matzehuels/dbtlineage/pkg/errors"
)

// Format is a serialization format.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts "json", "yaml" and "yml", case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", errs.New(errs.ErrCodeInvalidFormat, "invalid format: %q (must be one of: json, yaml)", s)
}

// FormatFromPath picks a format from a file extension. Unknown extensions
// are JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	if f == FormatYAML {
		return "application/yaml"
	}
	return "application/json"
}
