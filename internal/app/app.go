// Package app assembles fleetwall's components from configuration. The
// server and the CLI share it so both deploy the same way.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"fleetwall/internal/adapter"
	"fleetwall/internal/config"
	"fleetwall/internal/deploy"
	"fleetwall/internal/domain"
	"fleetwall/internal/metrics"
	"fleetwall/internal/parser"
	"fleetwall/internal/repository/sqlite"
	"fleetwall/internal/service"
)

// App holds the wired components
type App struct {
	Config       *config.Config
	Repo         *sqlite.Repository
	Transport    adapter.Transport
	Reachability *adapter.ReachabilityCache
	Coordinator  *deploy.Coordinator
	EventBus     *service.EventBus
	Metrics      *metrics.Metrics
	Service      *service.ProvisioningService
}

// New opens the database and builds the transport, coordinator and service
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	repo, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	log.Printf("App: database opened: %s", cfg.Database.Path)

	a := &App{
		Config:    cfg,
		Repo:      repo,
		Transport: newTransport(cfg),
		EventBus:  service.NewEventBus(),
		Metrics:   metrics.New(),
	}

	profile := cfg.EffectiveDeploy()
	a.Coordinator = deploy.NewCoordinator(deploy.Config{
		MaxInFlight:    profile.MaxInFlight,
		CommandTimeout: profile.CommandTimeout,
	})
	if profile.Preflight {
		a.Reachability = adapter.NewReachabilityCache(
			newProber(ctx, cfg), cfg.Reachability.TTL.Duration(), cfg.Transport.SSH.Port)
		a.Coordinator.SetPreflight(a.Reachability)
	}

	a.Service = service.NewProvisioningService(repo, a.EventBus, a.Coordinator, a.Transport,
		parser.NewFamilies(cfg.Parser.Families))
	a.Service.SetMetrics(a.Metrics)
	a.Metrics.WatchDefinitions(a.Service.DefinitionCounts)

	log.Printf("App: posture %s: max in flight %d, command timeout %s, preflight %v",
		cfg.Posture, profile.MaxInFlight, profile.CommandTimeout, profile.Preflight)
	return a, nil
}

// LoadDefinitions imports the configured definitions file, if any
func (a *App) LoadDefinitions(ctx context.Context) error {
	if a.Config.Definitions.Path == "" {
		return nil
	}
	return a.Service.ReloadDefinitions(ctx, a.Config.Definitions.Path)
}

// Close releases the transport and the database
func (a *App) Close() error {
	return errors.Join(a.Transport.Close(), a.Repo.Close())
}

func newTransport(cfg *config.Config) adapter.Transport {
	ssh := cfg.Transport.SSH
	t, err := adapter.NewSSHTransport(adapter.SSHConfig{
		User:           ssh.User,
		KeyPath:        ssh.KeyPath,
		Passphrase:     cfg.SSHPassphrase(),
		Password:       cfg.SSHPassword(),
		Port:           ssh.Port,
		ConnectTimeout: ssh.ConnectTimeout.Duration(),
	})
	if err != nil {
		log.Printf("App: SSH transport unavailable: %v", err)
		return unavailableTransport{err: err}
	}
	return t
}

func newProber(ctx context.Context, cfg *config.Config) adapter.Prober {
	timeout := cfg.Reachability.Timeout.Duration()
	if cfg.Reachability.UseNmap {
		nm := adapter.NmapProber{Timeout: timeout}
		if nm.Available(ctx) {
			return nm
		}
		log.Println("App: nmap not available, probing with TCP connects")
	}
	return adapter.TCPProber{Timeout: timeout}
}

// unavailableTransport fails every send so read-only features still work
// without device credentials
type unavailableTransport struct {
	err error
}

func (t unavailableTransport) Send(ctx context.Context, device domain.Device, command string) (string, error) {
	return "", &domain.ConnectionError{DeviceID: device.ID, Err: fmt.Errorf("transport not configured: %w", t.err)}
}

func (t unavailableTransport) Close() error {
	return nil
}
