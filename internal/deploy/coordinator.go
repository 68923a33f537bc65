// Package deploy replicates rendered firewall commands across a device group.
//
// Device sequences run concurrently up to Config.MaxInFlight. Within one
// device, commands run strictly in plan order and the first failure aborts
// the rest of that device's sequence. Other devices are unaffected.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"fleetwall/internal/domain"
)

// SendFunc delivers one command to one device and returns its raw output.
// Any error fails the command; any nil error counts as success.
type SendFunc func(ctx context.Context, device domain.Device, command string) (string, error)

// Preflight checks a device before its sequence starts
type Preflight interface {
	Check(ctx context.Context, device domain.Device) error
}

// Observer receives per-command and per-deployment measurements
type Observer interface {
	ObserveCommand(device domain.Device, outcome domain.Outcome, elapsed time.Duration)
	ObserveDeployment(report *domain.GroupDeploymentReport)
}

// Config holds coordinator settings
type Config struct {
	// MaxInFlight bounds concurrently running device sequences
	MaxInFlight int
	// CommandTimeout bounds a single send call
	CommandTimeout time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxInFlight:    5,
		CommandTimeout: 30 * time.Second,
	}
}

// Coordinator fans a plan out across device groups
type Coordinator struct {
	config    Config
	preflight Preflight
	observer  Observer
}

// NewCoordinator creates a coordinator, filling unset config with defaults
func NewCoordinator(config Config) *Coordinator {
	defaults := DefaultConfig()
	if config.MaxInFlight <= 0 {
		config.MaxInFlight = defaults.MaxInFlight
	}
	if config.CommandTimeout <= 0 {
		config.CommandTimeout = defaults.CommandTimeout
	}
	return &Coordinator{config: config}
}

// SetPreflight installs a reachability check run before each device sequence
func (c *Coordinator) SetPreflight(p Preflight) {
	c.preflight = p
}

// SetObserver installs a metrics observer
func (c *Coordinator) SetObserver(o Observer) {
	c.observer = o
}

// Deploy renders rules and lists and sends them to every device in group.
// It always returns a report; failures are recorded, not returned.
func (c *Coordinator) Deploy(ctx context.Context, rules []domain.FirewallRule, lists []domain.AddressList, group *domain.DeviceGroup, send SendFunc) *domain.GroupDeploymentReport {
	return c.Execute(ctx, BuildPlan(rules, lists), group, send)
}

// Execute sends an already built plan to every device in group.
// Cancelling ctx stops devices that have not started; started sequences
// run to completion.
func (c *Coordinator) Execute(ctx context.Context, plan *Plan, group *domain.DeviceGroup, send SendFunc) *domain.GroupDeploymentReport {
	report := &domain.GroupDeploymentReport{
		GroupID:   group.ID,
		StartedAt: time.Now(),
		Devices:   make([]domain.DeviceReport, len(group.Devices)),
		Rejected:  plan.Rejected,
	}

	log.Printf("Deploy: group %s: %d operations to %d devices (max in flight %d)",
		group.ID, len(plan.Operations), len(group.Devices), c.config.MaxInFlight)

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = semaphore.NewWeighted(int64(c.config.MaxInFlight))
	)

	record := func(i int, dr domain.DeviceReport) {
		mu.Lock()
		defer mu.Unlock()
		report.Devices[i] = dr
	}

	for i, device := range group.Devices {
		err := ctx.Err()
		if err == nil {
			err = sem.Acquire(ctx, 1)
		}
		if err != nil {
			log.Printf("Deploy: group %s: device %s not started: %v", group.ID, device.Label(), err)
			record(i, notStarted(device, plan.Operations, err))
			continue
		}

		wg.Add(1)
		go func(i int, device domain.Device) {
			defer wg.Done()
			defer sem.Release(1)
			record(i, c.runDevice(ctx, device, plan.Operations, send))
		}(i, device)
	}

	wg.Wait()

	report.FinishedAt = time.Now()
	report.Tally()

	log.Printf("Deploy: group %s finished: %d succeeded, %d failed, %d skipped",
		group.ID, report.Succeeded, report.Failed, report.Skipped)

	if c.observer != nil {
		c.observer.ObserveDeployment(report)
	}
	return report
}

// runDevice sends ops in order and stops at the first failure
func (c *Coordinator) runDevice(ctx context.Context, device domain.Device, ops []domain.Operation, send SendFunc) domain.DeviceReport {
	dr := domain.DeviceReport{
		Device:  device,
		Results: make([]domain.DeploymentResult, 0, len(ops)),
	}

	if c.preflight != nil {
		if err := c.preflight.Check(ctx, device); err != nil {
			// nothing was sent, so a cancelled check leaves the device not started
			if ctxErr := ctx.Err(); ctxErr != nil {
				log.Printf("Deploy: device %s not started: %v", device.Label(), ctxErr)
				return notStarted(device, ops, ctxErr)
			}
			return c.fail(dr, ops, 0, &domain.ConnectionError{DeviceID: device.ID, Err: err}, "")
		}
	}

	for i, op := range ops {
		start := time.Now()
		output, err := c.sendOne(ctx, device, op.Command, send)
		if err != nil {
			c.observe(device, domain.OutcomeFailed, time.Since(start))
			return c.fail(dr, ops, i, err, output)
		}
		c.observe(device, domain.OutcomeSucceeded, time.Since(start))
		dr.Results = append(dr.Results, domain.DeploymentResult{
			Operation: op,
			DeviceID:  device.ID,
			Outcome:   domain.OutcomeSucceeded,
			Output:    output,
		})
	}

	return dr
}

// fail records ops[i] as failed and everything after it as skipped
func (c *Coordinator) fail(dr domain.DeviceReport, ops []domain.Operation, i int, err error, output string) domain.DeviceReport {
	log.Printf("Deploy: device %s aborted at operation %d/%d: %v", dr.Device.Label(), i+1, len(ops), err)

	dr.Error = err.Error()
	if i >= len(ops) {
		return dr
	}
	dr.Results = append(dr.Results, domain.DeploymentResult{
		Operation: ops[i],
		DeviceID:  dr.Device.ID,
		Outcome:   domain.OutcomeFailed,
		Output:    output,
		Error:     err.Error(),
	})
	for _, op := range ops[i+1:] {
		dr.Results = append(dr.Results, domain.DeploymentResult{
			Operation: op,
			DeviceID:  dr.Device.ID,
			Outcome:   domain.OutcomeSkipped,
		})
	}
	return dr
}

// sendOne runs a single send with the per-call timeout. The call context is
// detached from ctx's cancellation so a command is never cut off midway.
func (c *Coordinator) sendOne(ctx context.Context, device domain.Device, cmd string, send SendFunc) (string, error) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.config.CommandTimeout)
	defer cancel()

	type reply struct {
		output string
		err    error
	}
	done := make(chan reply, 1)
	go func() {
		output, err := send(callCtx, device, cmd)
		done <- reply{output, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return r.output, classify(device, cmd, r.err)
		}
		return r.output, nil
	case <-callCtx.Done():
		return "", &domain.CommandError{
			DeviceID: device.ID,
			Command:  cmd,
			Err:      fmt.Errorf("timed out after %s: %w", c.config.CommandTimeout, callCtx.Err()),
		}
	}
}

func (c *Coordinator) observe(device domain.Device, outcome domain.Outcome, elapsed time.Duration) {
	if c.observer != nil {
		c.observer.ObserveCommand(device, outcome, elapsed)
	}
}

// classify keeps transport-typed errors and wraps anything else as a
// CommandError
func classify(device domain.Device, cmd string, err error) error {
	var connErr *domain.ConnectionError
	if errors.As(err, &connErr) {
		return err
	}
	var cmdErr *domain.CommandError
	if errors.As(err, &cmdErr) {
		return err
	}
	return &domain.CommandError{DeviceID: device.ID, Command: cmd, Err: err}
}

// notStarted records a device whose sequence was cancelled before it began
func notStarted(device domain.Device, ops []domain.Operation, err error) domain.DeviceReport {
	dr := domain.DeviceReport{
		Device:  device,
		Results: make([]domain.DeploymentResult, 0, len(ops)),
		Error:   fmt.Sprintf("deployment cancelled: %v", err),
	}
	for _, op := range ops {
		dr.Results = append(dr.Results, domain.DeploymentResult{
			Operation: op,
			DeviceID:  device.ID,
			Outcome:   domain.OutcomeSkipped,
		})
	}
	return dr
}
