package codec

import (
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"fleetwall/internal/domain"
	"fleetwall/internal/loader"
)

// YAMLCodec handles YAML import/export
type YAMLCodec struct{}

// NewYAMLCodec creates a new YAML codec
func NewYAMLCodec() *YAMLCodec {
	return &YAMLCodec{}
}

// Format returns the codec format identifier
func (c *YAMLCodec) Format() string {
	return "yaml"
}

// ContentType returns the MIME type of exported reports
func (c *YAMLCodec) ContentType() string {
	return "application/yaml"
}

// Parse imports definitions in the definitions file format
func (c *YAMLCodec) Parse(r io.Reader) (*domain.Definitions, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read YAML: %w", err)
	}
	return loader.ParseYAML(data)
}

// yamlReport is the YAML structure for a deployment report
type yamlReport struct {
	ID        string         `yaml:"id,omitempty"`
	Group     string         `yaml:"group"`
	StartedAt string         `yaml:"started_at"`
	Duration  string         `yaml:"duration"`
	Total     int            `yaml:"total"`
	Succeeded int            `yaml:"succeeded"`
	Failed    int            `yaml:"failed"`
	Skipped   int            `yaml:"skipped"`
	Devices   []yamlDevice   `yaml:"devices"`
	Rejected  []yamlRejected `yaml:"rejected,omitempty"`
}

type yamlDevice struct {
	ID      string       `yaml:"id"`
	Address string       `yaml:"address"`
	Error   string       `yaml:"error,omitempty"`
	Results []yamlResult `yaml:"results"`
}

type yamlResult struct {
	Ref     string `yaml:"ref"`
	Command string `yaml:"command"`
	Outcome string `yaml:"outcome"`
	Error   string `yaml:"error,omitempty"`
}

type yamlRejected struct {
	Rule   string `yaml:"rule"`
	Field  string `yaml:"field"`
	Reason string `yaml:"reason"`
}

// Export writes the report as YAML
func (c *YAMLCodec) Export(report *domain.GroupDeploymentReport, w io.Writer) error {
	yr := yamlReport{
		ID:        report.ID,
		Group:     report.GroupID,
		StartedAt: report.StartedAt.Format(time.RFC3339),
		Duration:  report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond).String(),
		Total:     report.Total,
		Succeeded: report.Succeeded,
		Failed:    report.Failed,
		Skipped:   report.Skipped,
	}

	for _, dev := range report.Devices {
		yd := yamlDevice{
			ID:      dev.Device.ID,
			Address: dev.Device.Address,
			Error:   dev.Error,
		}
		for _, res := range dev.Results {
			yd.Results = append(yd.Results, yamlResult{
				Ref:     res.Operation.Ref,
				Command: res.Operation.Command,
				Outcome: string(res.Outcome),
				Error:   res.Error,
			})
		}
		yr.Devices = append(yr.Devices, yd)
	}

	for _, rej := range report.Rejected {
		yr.Rejected = append(yr.Rejected, yamlRejected{Rule: rej.RuleID, Field: rej.Field, Reason: rej.Reason})
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()

	if err := encoder.Encode(&yr); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return nil
}
