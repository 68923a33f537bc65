package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"fleetwall/internal/domain"
)

// JSONCodec handles JSON import/export
type JSONCodec struct{}

// NewJSONCodec creates a new JSON codec
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

// Format returns the codec format identifier
func (c *JSONCodec) Format() string {
	return "json"
}

// ContentType returns the MIME type of exported reports
func (c *JSONCodec) ContentType() string {
	return "application/json"
}

// Parse imports definitions from JSON and checks them
func (c *JSONCodec) Parse(r io.Reader) (*domain.Definitions, error) {
	var defs domain.Definitions
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&defs); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	if problems := defs.Check(); len(problems) > 0 {
		return nil, fmt.Errorf("invalid definitions: %w", errors.Join(problems...))
	}
	return &defs, nil
}

// Export writes the report as indented JSON
func (c *JSONCodec) Export(report *domain.GroupDeploymentReport, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(report); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}
