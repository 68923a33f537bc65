// Package codec converts fleetwall data to and from external formats.
//
// Importers read definitions (address lists, rules, device groups) from
// files operators already keep. Exporters render deployment reports for
// people and for other tools.
package codec

import (
	"fmt"
	"io"
	"sort"

	"fleetwall/internal/domain"
)

// Importer reads definitions from a format
type Importer interface {
	Parse(r io.Reader) (*domain.Definitions, error)
	Format() string
}

// Exporter renders a deployment report in a format
type Exporter interface {
	Export(report *domain.GroupDeploymentReport, w io.Writer) error
	Format() string
	ContentType() string
}

var exporters = map[string]Exporter{
	"json": NewJSONCodec(),
	"yaml": NewYAMLCodec(),
	"text": NewTextExporter(),
}

// ExporterFor returns the report exporter for format
func ExporterFor(format string) (Exporter, error) {
	if format == "" {
		format = "json"
	}
	e, ok := exporters[format]
	if !ok {
		return nil, fmt.Errorf("unsupported report format %q (want one of %v)", format, ExportFormats())
	}
	return e, nil
}

// ExportFormats lists supported report formats
func ExportFormats() []string {
	formats := make([]string, 0, len(exporters))
	for f := range exporters {
		formats = append(formats, f)
	}
	sort.Strings(formats)
	return formats
}
