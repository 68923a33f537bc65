package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"fleetwall/internal/codec"
	"fleetwall/internal/deploy"
	"fleetwall/internal/domain"
	"fleetwall/internal/loader"
	"fleetwall/internal/metrics"
	"fleetwall/internal/parser"
	"fleetwall/internal/repository"
)

// ErrDeploymentInProgress is returned when a group is already being deployed
var ErrDeploymentInProgress = errors.New("deployment already in progress")

// interfacePrintCommand lists a RouterOS device's interfaces
const interfacePrintCommand = "/interface print"

// Sender delivers commands to devices
type Sender interface {
	Send(ctx context.Context, device domain.Device, command string) (string, error)
}

// ProvisioningService provides business logic for definitions and deployments
type ProvisioningService struct {
	repo        repository.Repository
	eventBus    *EventBus
	coordinator *deploy.Coordinator
	sender      Sender
	families    *parser.Families
	metrics     *metrics.Metrics

	mu      sync.Mutex
	running map[string]bool
}

// NewProvisioningService creates a new provisioning service
func NewProvisioningService(repo repository.Repository, eventBus *EventBus, coordinator *deploy.Coordinator, sender Sender, families *parser.Families) *ProvisioningService {
	if families == nil {
		families = parser.NewFamilies(nil)
	}
	return &ProvisioningService{
		repo:        repo,
		eventBus:    eventBus,
		coordinator: coordinator,
		sender:      sender,
		families:    families,
		running:     make(map[string]bool),
	}
}

// SetMetrics installs the metrics recorder for deployments and parses
func (s *ProvisioningService) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
	s.coordinator.SetObserver(m)
}

// ImportDefinitions checks defs and replaces the stored state with them
func (s *ProvisioningService) ImportDefinitions(ctx context.Context, defs *domain.Definitions) error {
	if problems := defs.Check(); len(problems) > 0 {
		return fmt.Errorf("invalid definitions: %w", errors.Join(problems...))
	}

	if err := s.repo.ReplaceDefinitions(ctx, defs); err != nil {
		return err
	}

	log.Printf("Provisioning: imported %d address lists, %d rules, %d groups",
		len(defs.AddressLists), len(defs.Rules), len(defs.Groups))

	s.eventBus.Publish(Event{
		Type: EventDefinitionsImported,
		Payload: map[string]int{
			"address_lists": len(defs.AddressLists),
			"rules":         len(defs.Rules),
			"groups":        len(defs.Groups),
		},
	})
	return nil
}

// Import reads definitions with the given importer and stores them
func (s *ProvisioningService) Import(ctx context.Context, importer codec.Importer, r io.Reader) (*domain.Definitions, error) {
	defs, err := importer.Parse(r)
	if err != nil {
		return nil, err
	}
	if err := s.ImportDefinitions(ctx, defs); err != nil {
		return nil, err
	}
	return defs, nil
}

// ReloadDefinitions re-reads a definitions file and imports it. A file that
// fails to load or check leaves the stored state as it was.
func (s *ProvisioningService) ReloadDefinitions(ctx context.Context, path string) error {
	defs, err := loader.LoadYAML(path)
	if err != nil {
		return fmt.Errorf("reload %s: %w", path, err)
	}
	if err := s.ImportDefinitions(ctx, defs); err != nil {
		return fmt.Errorf("reload %s: %w", path, err)
	}
	s.eventBus.Publish(Event{Type: EventDefinitionsReloaded, Payload: map[string]string{"path": path}})
	return nil
}

// ImportGroups replaces only the device groups, keeping stored lists and
// rules. Rules pointing at a group that disappears reject the import.
func (s *ProvisioningService) ImportGroups(ctx context.Context, groups []domain.DeviceGroup) (*domain.Definitions, error) {
	defs, err := s.repo.GetDefinitions(ctx)
	if err != nil {
		return nil, err
	}
	defs.Groups = groups
	if err := s.ImportDefinitions(ctx, defs); err != nil {
		return nil, err
	}
	return defs, nil
}

// Definitions returns the stored declared state
func (s *ProvisioningService) Definitions(ctx context.Context) (*domain.Definitions, error) {
	return s.repo.GetDefinitions(ctx)
}

// ListAddressLists returns all address lists
func (s *ProvisioningService) ListAddressLists(ctx context.Context) ([]domain.AddressList, error) {
	return s.repo.ListAddressLists(ctx)
}

// ListRules returns all rules, or only a group's rules when groupID is set
func (s *ProvisioningService) ListRules(ctx context.Context, groupID string) ([]domain.FirewallRule, error) {
	rules, err := s.repo.ListRules(ctx)
	if err != nil || groupID == "" {
		return rules, err
	}
	var filtered []domain.FirewallRule
	for _, r := range rules {
		if r.GroupID == groupID {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

// ListGroups returns all device groups
func (s *ProvisioningService) ListGroups(ctx context.Context) ([]domain.DeviceGroup, error) {
	return s.repo.ListGroups(ctx)
}

// GetGroup retrieves a device group by ID
func (s *ProvisioningService) GetGroup(ctx context.Context, id string) (*domain.DeviceGroup, error) {
	group, err := s.repo.GetGroup(ctx, id)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, fmt.Errorf("device group %s: %w", id, domain.ErrNotFound)
	}
	return group, nil
}

// PlanGroup builds the command plan for a group without sending anything
func (s *ProvisioningService) PlanGroup(ctx context.Context, groupID string) (*deploy.Plan, *domain.DeviceGroup, error) {
	group, err := s.GetGroup(ctx, groupID)
	if err != nil {
		return nil, nil, err
	}

	rules, err := s.ListRules(ctx, groupID)
	if err != nil {
		return nil, nil, err
	}
	lists, err := s.repo.ListAddressLists(ctx)
	if err != nil {
		return nil, nil, err
	}

	return deploy.BuildPlan(rules, domain.ListsReferencedBy(rules, lists)), group, nil
}

// DeployGroup sends the group's plan to every member device and stores the
// report. Device failures are part of the report, not the returned error.
func (s *ProvisioningService) DeployGroup(ctx context.Context, groupID string) (*domain.GroupDeploymentReport, error) {
	if !s.acquire(groupID) {
		return nil, fmt.Errorf("group %s: %w", groupID, ErrDeploymentInProgress)
	}
	defer s.release(groupID)

	plan, group, err := s.PlanGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	s.eventBus.Publish(Event{
		Type: EventDeploymentStarted,
		Payload: map[string]interface{}{
			"id":         id,
			"group_id":   groupID,
			"operations": len(plan.Operations),
			"devices":    len(group.Devices),
		},
	})

	report := s.coordinator.Execute(ctx, plan, group, s.sender.Send)
	report.ID = id

	for _, f := range report.Failures {
		s.eventBus.Publish(Event{Type: EventDeviceFailed, Payload: f})
	}

	// store even if the caller gave up waiting
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.repo.SaveReport(saveCtx, report); err != nil {
		log.Printf("Provisioning: failed to store report %s: %v", id, err)
	}

	s.eventBus.Publish(Event{
		Type: EventDeploymentFinished,
		Payload: map[string]interface{}{
			"id":        id,
			"group_id":  groupID,
			"total":     report.Total,
			"succeeded": report.Succeeded,
			"failed":    report.Failed,
			"skipped":   report.Skipped,
		},
	})
	return report, nil
}

func (s *ProvisioningService) acquire(groupID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[groupID] {
		return false
	}
	s.running[groupID] = true
	return true
}

func (s *ProvisioningService) release(groupID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, groupID)
}

// GetReport retrieves a deployment report by ID
func (s *ProvisioningService) GetReport(ctx context.Context, id string) (*domain.GroupDeploymentReport, error) {
	report, err := s.repo.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, fmt.Errorf("report %s: %w", id, domain.ErrNotFound)
	}
	return report, nil
}

// ListReports returns report headers, newest first
func (s *ProvisioningService) ListReports(ctx context.Context, groupID string, limit int) ([]domain.GroupDeploymentReport, error) {
	return s.repo.ListReports(ctx, groupID, limit)
}

// ParseOutput parses raw tabular output with the family's parser options
func (s *ProvisioningService) ParseOutput(family, raw string) *parser.Result {
	result := s.families.Parser(family).ParseDetailed(raw)
	for _, skip := range result.Skipped {
		log.Printf("Parser: %s: skipped line %d (%s): %q", family, skip.Line, skip.Reason, skip.Text)
	}
	if s.metrics != nil {
		s.metrics.ObserveParse(len(result.Skipped))
	}
	return result
}

// InspectInterfaces lists a device's interfaces by running the interface
// print command and parsing its output
func (s *ProvisioningService) InspectInterfaces(ctx context.Context, groupID, deviceID string) (*parser.Result, error) {
	group, err := s.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	device, ok := group.Device(deviceID)
	if !ok {
		return nil, fmt.Errorf("device %s in group %s: %w", deviceID, groupID, domain.ErrNotFound)
	}

	output, err := s.sender.Send(ctx, device, interfacePrintCommand)
	if err != nil {
		return nil, err
	}
	return s.ParseOutput(device.Family, output), nil
}

// DefinitionCounts summarizes the stored definitions for metrics
func (s *ProvisioningService) DefinitionCounts() metrics.DefinitionCounts {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	defs, err := s.repo.GetDefinitions(ctx)
	if err != nil {
		log.Printf("Provisioning: failed to count definitions: %v", err)
		return metrics.DefinitionCounts{}
	}

	counts := metrics.DefinitionCounts{
		AddressLists: len(defs.AddressLists),
		Rules:        len(defs.Rules),
		Groups:       len(defs.Groups),
	}
	for _, g := range defs.Groups {
		counts.Devices += len(g.Devices)
	}
	return counts
}
