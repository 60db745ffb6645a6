package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/askdb/pkg/schema"
)

// catalogSchemaJSON is the JSON Schema for table catalog files.
// Embedded as a constant to avoid filesystem dependencies.
const catalogSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://askdb.dev/schemas/catalog.json",
  "type": "object",
  "required": ["tables"],
  "properties": {
    "namespace": { "type": "string" },
    "tables": {
      "type": "array",
      "minItems": 1,
      "items": { "$ref": "#/$defs/table" }
    }
  },
  "additionalProperties": false,
  "$defs": {
    "table": {
      "type": "object",
      "required": ["name", "columns"],
      "properties": {
        "name": { "type": "string", "minLength": 1 },
        "description": { "type": "string" },
        "columns": {
          "type": "array",
          "minItems": 1,
          "items": { "$ref": "#/$defs/column" }
        },
        "relationships": {
          "type": "array",
          "items": { "type": "string" }
        }
      },
      "additionalProperties": false
    },
    "column": {
      "type": "object",
      "required": ["name", "type"],
      "properties": {
        "name": { "type": "string", "minLength": 1 },
        "type": { "type": "string", "minLength": 1 },
        "description": { "type": "string" }
      },
      "additionalProperties": false
    }
  }
}`

// Catalog describes the tables exposed to SQL generation.
type Catalog struct {
	Namespace string  `json:"namespace,omitempty"`
	Tables    []Table `json:"tables"`
}

// Table is one relation in the catalog.
type Table struct {
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	Columns       []Column `json:"columns"`
	Relationships []string `json:"relationships,omitempty"`
}

// Column is one attribute of a table.
type Column struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// Render produces the schema description text used in prompts.
// Output is deterministic: tables and columns appear in catalog order.
func (c *Catalog) Render() string {
	var b strings.Builder
	if c.Namespace != "" {
		fmt.Fprintf(&b, "Schema namespace: %s\n\n", c.Namespace)
	}
	for _, t := range c.Tables {
		fmt.Fprintf(&b, "Table: %s\n", t.Name)
		if t.Description != "" {
			fmt.Fprintf(&b, "  Description: %s\n", t.Description)
		}
		b.WriteString("  Columns:\n")
		for _, col := range t.Columns {
			if col.Description != "" {
				fmt.Fprintf(&b, "    - %s (%s): %s\n", col.Name, col.Type, col.Description)
			} else {
				fmt.Fprintf(&b, "    - %s (%s)\n", col.Name, col.Type)
			}
		}
		for _, rel := range t.Relationships {
			fmt.Fprintf(&b, "  Relationship: %s\n", rel)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// FileProvider loads schema metadata from disk. JSON files are parsed as a
// Catalog and validated against the embedded JSON Schema before rendering;
// any other extension is returned as raw text.
type FileProvider struct {
	path          string
	catalogSchema *jsonschema.Schema
}

// NewFileProvider creates a provider for the given metadata file path.
func NewFileProvider(path string) (*FileProvider, error) {
	if path == "" {
		return nil, schema.NewError(schema.ErrCodeMetadataLoad, "metadata path cannot be empty")
	}

	c := jsonschema.NewCompiler()
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(catalogSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal catalog schema: %w", err)
	}
	if err := c.AddResource("https://askdb.dev/schemas/catalog.json", doc); err != nil {
		return nil, fmt.Errorf("add catalog schema resource: %w", err)
	}
	compiled, err := c.Compile("https://askdb.dev/schemas/catalog.json")
	if err != nil {
		return nil, fmt.Errorf("compile catalog schema: %w", err)
	}

	return &FileProvider{path: path, catalogSchema: compiled}, nil
}

// Load reads, validates, and renders the metadata file.
func (p *FileProvider) Load(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", schema.NewErrorf(schema.ErrCodeMetadataLoad, "load cancelled: %s", err.Error()).WithCause(err)
	}

	raw, err := os.ReadFile(p.path)
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeMetadataLoad, "read metadata file: %s", err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"path": p.path})
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return "", schema.NewError(schema.ErrCodeMetadataLoad, "metadata file is empty").
			WithDetails(map[string]any{"path": p.path})
	}

	if strings.ToLower(filepath.Ext(p.path)) != ".json" {
		return string(raw), nil
	}

	catalog, err := p.parseCatalog(raw)
	if err != nil {
		return "", err
	}
	return catalog.Render(), nil
}

func (p *FileProvider) parseCatalog(raw []byte) (*Catalog, error) {
	// Validate against the JSON Schema first for precise location errors.
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeMetadataLoad, "metadata file is not valid JSON: %s", err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"path": p.path})
	}
	if err := p.catalogSchema.Validate(doc); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeMetadataLoad, "catalog validation failed: %s", err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"path": p.path})
	}

	var catalog Catalog
	if err := json.Unmarshal(raw, &catalog); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeMetadataLoad, "decode catalog: %s", err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"path": p.path})
	}
	return &catalog, nil
}

var _ Provider = (*FileProvider)(nil)
