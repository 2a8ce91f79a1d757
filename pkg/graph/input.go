package graph

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	errs "github.com/matzehuels/dbtlineage/pkg/errors"
	"github.com/matzehuels/dbtlineage/pkg/lineage"
)

// ReadInput decodes an input document. Unknown fields are ignored.
func ReadInput(r io.Reader, f Format) (lineage.Input, error) {
	var in lineage.Input
	var err error
	switch f {
	case FormatYAML:
		err = yaml.NewDecoder(r).Decode(&in)
		if errors.Is(err, io.EOF) {
			err = nil
		}
	default:
		err = json.NewDecoder(r).Decode(&in)
	}
	if err != nil {
		return lineage.Input{}, errs.Wrap(errs.ErrCodeInvalidFormat, err, "decode %s input", f)
	}
	return in, nil
}

// ReadInputFile reads an input file, choosing the decoder by extension.
func ReadInputFile(path string) (lineage.Input, error) {
	if err := errs.ValidatePath(path); err != nil {
		return lineage.Input{}, err
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return lineage.Input{}, errs.Wrap(errs.ErrCodeFileNotFound, err, "input file %s not found", path)
	}
	if err != nil {
		return lineage.Input{}, errs.Wrap(errs.ErrCodeInvalidPath, err, "open %s", path)
	}
	defer f.Close()
	return ReadInput(f, FormatFromPath(path))
}

// MarshalInput encodes in as indented JSON or YAML.
func MarshalInput(in lineage.Input, f Format) ([]byte, error) {
	return encode(in, f)
}

// WriteInputFile writes in to path in the format implied by its extension.
func WriteInputFile(in lineage.Input, path string) error {
	data, err := MarshalInput(in, FormatFromPath(path))
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func encode(v any, f Format) ([]byte, error) {
	var buf bytes.Buffer
	switch f {
	case FormatYAML:
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return nil, errs.Wrap(errs.ErrCodeInternal, err, "encode yaml")
		}
		if err := enc.Close(); err != nil {
			return nil, errs.Wrap(errs.ErrCodeInternal, err, "encode yaml")
		}
	default:
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return nil, errs.Wrap(errs.ErrCodeInternal, err, "encode json")
		}
	}
	return buf.Bytes(), nil
}
