package codec

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"fleetwall/internal/domain"
)

// TextExporter renders a report as an aligned plain-text summary
type TextExporter struct{}

// NewTextExporter creates a new text exporter
func NewTextExporter() *TextExporter {
	return &TextExporter{}
}

// Format returns the codec format identifier
func (e *TextExporter) Format() string {
	return "text"
}

// ContentType returns the MIME type of exported reports
func (e *TextExporter) ContentType() string {
	return "text/plain; charset=utf-8"
}

// Export writes one summary line, one line per device, then rejected rules
func (e *TextExporter) Export(report *domain.GroupDeploymentReport, w io.Writer) error {
	var b strings.Builder

	fmt.Fprintf(&b, "group %s: %d operations, %d succeeded, %d failed, %d skipped (%s)\n",
		report.GroupID, report.Total, report.Succeeded, report.Failed, report.Skipped,
		report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))

	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	for _, dev := range report.Devices {
		applied := 0
		for _, res := range dev.Results {
			if res.Succeeded() {
				applied++
			}
		}
		status := "ok"
		if dev.Failed() {
			status = "FAILED"
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%d/%d\t%s\n",
			dev.Device.ID, dev.Device.Address, status, applied, len(dev.Results), dev.Error)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, rej := range report.Rejected {
		fmt.Fprintf(&b, "rejected: %s\n", rej.Error())
	}

	_, err := io.WriteString(w, b.String())
	return err
}
