package store

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"expandd/internal/snippet"
)

// Format is a snippet collection file format.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ErrUnsupportedFormat is returned for unknown file extensions.
var ErrUnsupportedFormat = errors.New("store: unsupported format")

const schemaURL = "https://expandd.dev/schema/snippets-v1.schema.json"

//go:embed schema/snippets-v1.schema.json
var snippetSchemaJSON []byte

var (
	schemaOnce     sync.Once
	snippetSchema  *jsonschema.Schema
	snippetSchemaE error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, bytes.NewReader(snippetSchemaJSON)); err != nil {
			snippetSchemaE = fmt.Errorf("add schema resource: %w", err)
			return
		}
		snippetSchema, snippetSchemaE = compiler.Compile(schemaURL)
	})
	return snippetSchema, snippetSchemaE
}

// FormatFromPath picks a format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// collection is the export envelope. Import also accepts a bare list.
type collection struct {
	Version  int               `json:"version"`
	Exported time.Time         `json:"exported"`
	Snippets []snippet.Snippet `json:"snippets"`
}

// Decode reads a snippet collection, validates it against the collection
// schema and returns the snippets. Entries without an "enabled" key are
// enabled.
func Decode(r io.Reader, format Format) ([]snippet.Snippet, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read collection: %w", err)
	}

	var doc any
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
	case FormatYAML:
		var y any
		if err := yaml.Unmarshal(data, &y); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
		// Round-trip through JSON so the validator sees JSON types.
		b, err := json.Marshal(y)
		if err != nil {
			return nil, fmt.Errorf("convert yaml: %w", err)
		}
		if err := json.Unmarshal(b, &doc); err != nil {
			return nil, fmt.Errorf("convert yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	schema, err := compiledSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("invalid snippet collection: %w", err)
	}

	items, _ := doc.([]any)
	if m, ok := doc.(map[string]any); ok {
		items, _ = m["snippets"].([]any)
	}
	for _, it := range items {
		if m, ok := it.(map[string]any); ok {
			if _, set := m["enabled"]; !set {
				m["enabled"] = true
			}
		}
	}

	b, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("normalize collection: %w", err)
	}
	var out []snippet.Snippet
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode snippets: %w", err)
	}
	return out, nil
}

// ImportJSON decodes a JSON snippet collection.
func ImportJSON(r io.Reader) ([]snippet.Snippet, error) { return Decode(r, FormatJSON) }

// ImportYAML decodes a YAML snippet collection.
func ImportYAML(r io.Reader) ([]snippet.Snippet, error) { return Decode(r, FormatYAML) }

// Encode writes snippets as a versioned collection.
func Encode(w io.Writer, format Format, snippets []snippet.Snippet) error {
	if snippets == nil {
		snippets = []snippet.Snippet{}
	}
	c := collection{Version: 1, Exported: time.Now().UTC(), Snippets: snippets}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snippets: %w", err)
	}

	switch format {
	case FormatJSON:
		b = append(b, '\n')
		_, err = w.Write(b)
		return err
	case FormatYAML:
		var generic any
		if err := json.Unmarshal(b, &generic); err != nil {
			return fmt.Errorf("encode snippets: %w", err)
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}
