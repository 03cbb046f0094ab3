// Package infra manages the local dev containers shelfscan depends on:
// the broker, Redis, and object storage. Production deployments bring
// their own; this exists so `shelfscan infra up` is all a laptop needs.
package infra

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

// Label marks containers managed by shelfscan.
const Label = "shelfscan-infra"

// ContainerStatus represents the state of a managed container.
type ContainerStatus string

const (
	StatusRunning  ContainerStatus = "running"
	StatusStopped  ContainerStatus = "stopped"
	StatusNotFound ContainerStatus = "not_found"
	StatusStarting ContainerStatus = "starting"
)

// ServiceSpec describes one managed container.
type ServiceSpec struct {
	Name          string // service name ("rabbitmq", "redis", "minio")
	ContainerName string
	Image         string
	HostPort      string
	ContainerPort string   // e.g. "5672/tcp"
	Cmd           []string // optional
	Env           []string // optional
	// ReadyHTTPPath, when set, is polled on the host port for readiness.
	// Empty means a plain TCP dial is enough.
	ReadyHTTPPath string
}

// ContainerManager manages one service container's lifecycle.
type ContainerManager struct {
	cli  *client.Client
	spec ServiceSpec
}

// NewContainerManager creates a manager for one service.
func NewContainerManager(spec ServiceSpec) (*ContainerManager, error) {
	if spec.ContainerName == "" || spec.Image == "" {
		return nil, fmt.Errorf("service %s requires container name and image", spec.Name)
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &ContainerManager{cli: cli, spec: spec}, nil
}

// Close closes the Docker client.
func (m *ContainerManager) Close() error {
	return m.cli.Close()
}

// Start ensures the container exists and is running, then waits for the
// service to accept connections.
func (m *ContainerManager) Start(ctx context.Context) error {
	if _, err := m.cli.Ping(ctx); err != nil {
		return fmt.Errorf("docker is not running: %w", err)
	}

	status, containerID, err := m.getContainerStatus(ctx)
	if err != nil {
		return err
	}

	switch status {
	case StatusRunning:
		return nil
	case StatusStopped:
		if err := m.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
			return fmt.Errorf("failed to start existing %s container: %w", m.spec.Name, err)
		}
		return m.waitForReady(ctx, 30*time.Second)
	case StatusNotFound:
		return m.createAndStart(ctx)
	default:
		return fmt.Errorf("%s container in unexpected state: %s", m.spec.Name, status)
	}
}

// Stop stops the container.
func (m *ContainerManager) Stop(ctx context.Context) error {
	status, containerID, err := m.getContainerStatus(ctx)
	if err != nil {
		return err
	}
	if status == StatusNotFound {
		return nil
	}

	timeout := 10
	if err := m.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("failed to stop %s container: %w", m.spec.Name, err)
	}
	return nil
}

// Remove stops and removes the container.
func (m *ContainerManager) Remove(ctx context.Context) error {
	status, containerID, err := m.getContainerStatus(ctx)
	if err != nil {
		return err
	}
	if status == StatusNotFound {
		return nil
	}

	if status == StatusRunning {
		if err := m.Stop(ctx); err != nil {
			return err
		}
	}

	if err := m.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{
		Force:         true,
		RemoveVolumes: true,
	}); err != nil {
		return fmt.Errorf("failed to remove %s container: %w", m.spec.Name, err)
	}
	return nil
}

// Status returns the current container status.
func (m *ContainerManager) Status(ctx context.Context) (ContainerStatus, error) {
	status, _, err := m.getContainerStatus(ctx)
	return status, err
}

// createAndStart creates and starts a new container.
func (m *ContainerManager) createAndStart(ctx context.Context) error {
	if err := m.ensureImage(ctx); err != nil {
		return err
	}

	port := nat.Port(m.spec.ContainerPort)
	containerConfig := &container.Config{
		Image:  m.spec.Image,
		Cmd:    m.spec.Cmd,
		Env:    m.spec.Env,
		Labels: map[string]string{Label: "true"},
		ExposedPorts: nat.PortSet{
			port: struct{}{},
		},
	}
	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			port: []nat.PortBinding{
				{HostIP: "127.0.0.1", HostPort: m.spec.HostPort},
			},
		},
	}

	resp, err := m.cli.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, m.spec.ContainerName)
	if err != nil {
		return fmt.Errorf("failed to create %s container: %w", m.spec.Name, err)
	}

	if err := m.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = m.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return fmt.Errorf("failed to start %s container: %w", m.spec.Name, err)
	}

	return m.waitForReady(ctx, 30*time.Second)
}

// getContainerStatus returns the status and ID of the container.
func (m *ContainerManager) getContainerStatus(ctx context.Context) (ContainerStatus, string, error) {
	filterArgs := filters.NewArgs()
	filterArgs.Add("name", m.spec.ContainerName)

	containers, err := m.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filterArgs,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to list containers: %w", err)
	}

	if len(containers) == 0 {
		return StatusNotFound, "", nil
	}

	c := containers[0]
	switch c.State {
	case "running":
		return StatusRunning, c.ID, nil
	case "exited", "dead":
		return StatusStopped, c.ID, nil
	case "created", "restarting":
		return StatusStarting, c.ID, nil
	default:
		return ContainerStatus(c.State), c.ID, nil
	}
}

// waitForReady polls the service until it accepts connections.
func (m *ContainerManager) waitForReady(ctx context.Context, timeout time.Duration) error {
	addr := net.JoinHostPort("localhost", m.spec.HostPort)
	httpClient := &http.Client{Timeout: 2 * time.Second}

	return retry.Do(
		func() error {
			if m.spec.ReadyHTTPPath != "" {
				url := "http://" + addr + m.spec.ReadyHTTPPath
				req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
				if err != nil {
					return err
				}
				resp, err := httpClient.Do(req)
				if err != nil {
					return err
				}
				_ = resp.Body.Close()
				if resp.StatusCode != http.StatusOK {
					return fmt.Errorf("unhealthy status: %d", resp.StatusCode)
				}
				return nil
			}

			conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
			if err != nil {
				return err
			}
			return conn.Close()
		},
		retry.Context(ctx),
		retry.Attempts(uint(timeout.Seconds())),
		retry.Delay(1*time.Second),
	)
}

// ensureImage pulls the service image if not present.
func (m *ContainerManager) ensureImage(ctx context.Context) error {
	_, err := m.cli.ImageInspect(ctx, m.spec.Image)
	if err == nil {
		return nil
	}

	reader, err := m.cli.ImagePull(ctx, m.spec.Image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull %s: %w", m.spec.Image, err)
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}
