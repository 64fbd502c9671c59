package llm

import (
	"context"
	"errors"

	"smartchef/internal/shared"
)

// ErrNotConfigured is returned when no API key is available.
var ErrNotConfigured = errors.New("llm client not configured")

// ContentResponse contains the generated text and metadata like token usage.
type ContentResponse struct {
	Content string
	Usage   shared.TokenUsage
}

// SchemaType is an OpenAPI type name as understood by Gemini.
type SchemaType string

const (
	TypeString  SchemaType = "STRING"
	TypeNumber  SchemaType = "NUMBER"
	TypeInteger SchemaType = "INTEGER"
	TypeBoolean SchemaType = "BOOLEAN"
	TypeArray   SchemaType = "ARRAY"
	TypeObject  SchemaType = "OBJECT"
)

// Schema describes the JSON shape the model must answer with.
type Schema struct {
	Type       SchemaType         `json:"type"`
	Items      *Schema            `json:"items,omitempty"`
	Properties map[string]*Schema `json:"properties,omitempty"`
	Required   []string           `json:"required,omitempty"`
}

// StructuredGenerator generates JSON text constrained by a schema.
type StructuredGenerator interface {
	GenerateJSON(ctx context.Context, prompt string, schema *Schema) (ContentResponse, error)
}

// Closer is an interface for closing resources.
type Closer interface {
	Close() error
}

// Client is a StructuredGenerator holding releasable resources.
type Client interface {
	StructuredGenerator
	Closer
}
