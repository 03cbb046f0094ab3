package infra

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackzampolin/shelfscan/internal/config"
)

// Manager coordinates the full local stack.
type Manager struct {
	services []*ContainerManager
	logger   *slog.Logger
}

// Specs builds the service specs from configuration. The minio container
// gets its credentials from the storage section so a fresh stack matches
// what the gateway will connect with.
func Specs(cfg *config.Config) []ServiceSpec {
	return []ServiceSpec{
		{
			Name:          "rabbitmq",
			ContainerName: cfg.Infra.RabbitMQ.ContainerName,
			Image:         cfg.Infra.RabbitMQ.Image,
			HostPort:      cfg.Infra.RabbitMQ.Port,
			ContainerPort: "5672/tcp",
		},
		{
			Name:          "redis",
			ContainerName: cfg.Infra.Redis.ContainerName,
			Image:         cfg.Infra.Redis.Image,
			HostPort:      cfg.Infra.Redis.Port,
			ContainerPort: "6379/tcp",
		},
		{
			Name:          "minio",
			ContainerName: cfg.Infra.MinIO.ContainerName,
			Image:         cfg.Infra.MinIO.Image,
			HostPort:      cfg.Infra.MinIO.Port,
			ContainerPort: "9000/tcp",
			Cmd:           []string{"server", "/data"},
			Env: []string{
				"MINIO_ROOT_USER=" + cfg.Storage.AccessKey,
				"MINIO_ROOT_PASSWORD=" + cfg.StorageSecretKey(),
			},
			ReadyHTTPPath: "/minio/health/live",
		},
	}
}

// NewManager creates container managers for every service spec.
func NewManager(specs []ServiceSpec, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	services := make([]*ContainerManager, 0, len(specs))
	for _, spec := range specs {
		cm, err := NewContainerManager(spec)
		if err != nil {
			return nil, err
		}
		services = append(services, cm)
	}
	return &Manager{services: services, logger: logger}, nil
}

// Up starts every service and waits for readiness.
func (m *Manager) Up(ctx context.Context) error {
	for _, svc := range m.services {
		m.logger.Info("starting service", "service", svc.spec.Name, "image", svc.spec.Image)
		if err := svc.Start(ctx); err != nil {
			return fmt.Errorf("starting %s: %w", svc.spec.Name, err)
		}
		m.logger.Info("service ready", "service", svc.spec.Name, "port", svc.spec.HostPort)
	}
	return nil
}

// Down stops every service.
func (m *Manager) Down(ctx context.Context) error {
	var firstErr error
	for _, svc := range m.services {
		m.logger.Info("stopping service", "service", svc.spec.Name)
		if err := svc.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Status reports the status of every service.
func (m *Manager) Status(ctx context.Context) (map[string]ContainerStatus, error) {
	out := make(map[string]ContainerStatus, len(m.services))
	for _, svc := range m.services {
		status, err := svc.Status(ctx)
		if err != nil {
			return nil, err
		}
		out[svc.spec.Name] = status
	}
	return out, nil
}

// Close closes every docker client.
func (m *Manager) Close() error {
	var firstErr error
	for _, svc := range m.services {
		if err := svc.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
