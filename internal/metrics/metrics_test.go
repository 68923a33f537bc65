package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"fleetwall/internal/domain"
)

func TestObserveCommand(t *testing.T) {
	m := New()
	dev := domain.Device{ID: "r1"}

	m.ObserveCommand(dev, domain.OutcomeSucceeded, 10*time.Millisecond)
	m.ObserveCommand(dev, domain.OutcomeSucceeded, 20*time.Millisecond)
	m.ObserveCommand(dev, domain.OutcomeFailed, time.Second)

	if got := testutil.ToFloat64(m.commands.WithLabelValues("succeeded")); got != 2 {
		t.Errorf("succeeded commands = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.commands.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed commands = %v, want 1", got)
	}
}

func TestObserveDeployment(t *testing.T) {
	m := New()
	finished := time.Unix(1700000000, 0)

	m.ObserveDeployment(&domain.GroupDeploymentReport{
		GroupID: "edge", Total: 6, Succeeded: 4, Failed: 1, Skipped: 1, FinishedAt: finished,
	})
	m.ObserveDeployment(&domain.GroupDeploymentReport{
		GroupID: "edge", Total: 6, Succeeded: 6, FinishedAt: finished.Add(time.Minute),
	})

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"partial", testutil.ToFloat64(m.deployments.WithLabelValues("edge", "partial")), 1},
		{"clean", testutil.ToFloat64(m.deployments.WithLabelValues("edge", "clean")), 1},
		{"succeeded ops", testutil.ToFloat64(m.operations.WithLabelValues("edge", "succeeded")), 10},
		{"skipped ops", testutil.ToFloat64(m.operations.WithLabelValues("edge", "skipped")), 1},
		{"last deployment", testutil.ToFloat64(m.lastDeployment.WithLabelValues("edge")), 1700000060},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestHandlerExposesDefinitions(t *testing.T) {
	m := New()
	m.WatchDefinitions(func() DefinitionCounts {
		return DefinitionCounts{AddressLists: 2, Rules: 5, Groups: 1, Devices: 3}
	})
	m.ObserveParse(4)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		"fleetwall_rules 5",
		"fleetwall_devices 3",
		"fleetwall_parse_skipped_lines_total 4",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
