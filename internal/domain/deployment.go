package domain

import "time"

// OperationKind distinguishes address-list provisioning from rule commands
type OperationKind string

const (
	OperationListEntry OperationKind = "address_list_entry"
	OperationRule      OperationKind = "rule"
)

// Operation is one planned command, identical for every device in a group
type Operation struct {
	Kind    OperationKind `json:"kind"`
	Ref     string        `json:"ref"` // rule ID, or "list/entry"
	Command string        `json:"command"`
}

// Outcome is the result of one operation on one device
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped" // not attempted after an earlier failure or cancellation
)

// DeploymentResult records one (operation, device) pair
type DeploymentResult struct {
	Operation Operation `json:"operation"`
	DeviceID  string    `json:"device_id"`
	Outcome   Outcome   `json:"outcome"`
	Output    string    `json:"output,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Succeeded reports whether the command was applied on the device
func (r DeploymentResult) Succeeded() bool {
	return r.Outcome == OutcomeSucceeded
}

// DeviceReport is the ordered outcome list for one device
type DeviceReport struct {
	Device  Device             `json:"device"`
	Results []DeploymentResult `json:"results"`
	Error   string             `json:"error,omitempty"` // first failure, if any
}

// Failed reports whether any operation failed or was not attempted
func (d DeviceReport) Failed() bool {
	return d.Error != ""
}

// DeviceFailure names a device whose sequence was curtailed and why
type DeviceFailure struct {
	DeviceID string `json:"device_id"`
	Device   string `json:"device"`
	Ref      string `json:"ref,omitempty"`
	Error    string `json:"error"`
}

// GroupDeploymentReport aggregates a deployment across a device group
type GroupDeploymentReport struct {
	ID         string             `json:"id"`
	GroupID    string             `json:"group_id"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
	Total      int                `json:"total"`
	Succeeded  int                `json:"succeeded"`
	Failed     int                `json:"failed"`
	Skipped    int                `json:"skipped"`
	Devices    []DeviceReport     `json:"devices"`
	Failures   []DeviceFailure    `json:"failures,omitempty"`
	Rejected   []*ValidationError `json:"rejected,omitempty"`
}

// Deployed reports whether the given rule's command succeeded on the device
func (r *GroupDeploymentReport) Deployed(ruleID, deviceID string) bool {
	for _, dev := range r.Devices {
		if dev.Device.ID != deviceID {
			continue
		}
		for _, res := range dev.Results {
			if res.Operation.Kind == OperationRule && res.Operation.Ref == ruleID {
				return res.Succeeded()
			}
		}
	}
	return false
}

// Tally recomputes the counters and failure list from the device reports
func (r *GroupDeploymentReport) Tally() {
	r.Total, r.Succeeded, r.Failed, r.Skipped = 0, 0, 0, 0
	r.Failures = nil
	for _, dev := range r.Devices {
		for _, res := range dev.Results {
			r.Total++
			switch res.Outcome {
			case OutcomeSucceeded:
				r.Succeeded++
			case OutcomeFailed:
				r.Failed++
			case OutcomeSkipped:
				r.Skipped++
			}
		}
		if dev.Failed() {
			failure := DeviceFailure{
				DeviceID: dev.Device.ID,
				Device:   dev.Device.Label(),
				Error:    dev.Error,
			}
			for _, res := range dev.Results {
				if res.Outcome == OutcomeFailed {
					failure.Ref = res.Operation.Ref
					break
				}
			}
			r.Failures = append(r.Failures, failure)
		}
	}
}
