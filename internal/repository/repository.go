package repository

import (
	"context"

	"fleetwall/internal/domain"
)

// Repository defines the interface for definition and report storage.
// Single-entity getters return nil, nil when the entity does not exist.
type Repository interface {
	// Definitions
	GetDefinitions(ctx context.Context) (*domain.Definitions, error)
	ReplaceDefinitions(ctx context.Context, defs *domain.Definitions) error

	ListAddressLists(ctx context.Context) ([]domain.AddressList, error)
	GetAddressList(ctx context.Context, name string) (*domain.AddressList, error)
	ListRules(ctx context.Context) ([]domain.FirewallRule, error)
	GetRule(ctx context.Context, id string) (*domain.FirewallRule, error)
	ListGroups(ctx context.Context) ([]domain.DeviceGroup, error)
	GetGroup(ctx context.Context, id string) (*domain.DeviceGroup, error)

	// Deployment reports
	SaveReport(ctx context.Context, report *domain.GroupDeploymentReport) error
	GetReport(ctx context.Context, id string) (*domain.GroupDeploymentReport, error)
	// ListReports returns report headers (no per-device results), newest
	// first. An empty groupID lists every group.
	ListReports(ctx context.Context, groupID string, limit int) ([]domain.GroupDeploymentReport, error)

	// Close releases resources
	Close() error
}
