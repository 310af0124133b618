// Package docker is a lease.Client that runs each environment as a local
// headless Chrome container with its DevTools port published on loopback.
package docker

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"

	"envpool/internal/lease"
)

const (
	DefaultImage = "chromedp/headless-shell:latest"
	DefaultPort  = 9222
)

type Config struct {
	Image string
	// DevToolsPort is the port the image listens on inside the container.
	DevToolsPort int
	// BindHost is the host address the port is published on.
	BindHost    string
	NamePrefix  string
	StopTimeout time.Duration
	Env         []string
}

type Driver struct {
	cli  client.APIClient
	cfg  Config
	port nat.Port
}

// New connects to the daemon from the environment (DOCKER_HOST etc).
func New(cfg Config) (*Driver, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return NewWithClient(cli, cfg), nil
}

func NewWithClient(cli client.APIClient, cfg Config) *Driver {
	if strings.TrimSpace(cfg.Image) == "" {
		cfg.Image = DefaultImage
	}
	if cfg.DevToolsPort <= 0 {
		cfg.DevToolsPort = DefaultPort
	}
	if cfg.BindHost == "" {
		cfg.BindHost = "127.0.0.1"
	}
	if cfg.NamePrefix == "" {
		cfg.NamePrefix = "envpool-"
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 5 * time.Second
	}
	port := nat.Port(fmt.Sprintf("%d/tcp", cfg.DevToolsPort))
	return &Driver{cli: cli, cfg: cfg, port: port}
}

func (d *Driver) Create(ctx context.Context) (string, error) {
	cfg := &container.Config{
		Image:        d.cfg.Image,
		Env:          d.cfg.Env,
		ExposedPorts: nat.PortSet{d.port: struct{}{}},
		Labels:       map[string]string{"envpool.managed": "true"},
	}
	hostCfg := &container.HostConfig{
		PortBindings: nat.PortMap{
			d.port: []nat.PortBinding{{HostIP: d.cfg.BindHost, HostPort: ""}},
		},
		ShmSize: 256 << 20,
	}
	name := d.cfg.NamePrefix + uuid.NewString()[:8]

	resp, err := d.cli.ContainerCreate(ctx, cfg, hostCfg, &network.NetworkingConfig{}, nil, name)
	if client.IsErrNotFound(err) {
		rc, pullErr := d.cli.ImagePull(ctx, d.cfg.Image, image.PullOptions{})
		if pullErr != nil {
			return "", lease.AsRemote(lease.OpCreate, fmt.Errorf("pull %s: %w", d.cfg.Image, pullErr))
		}
		_, _ = io.Copy(io.Discard, rc)
		_ = rc.Close()
		resp, err = d.cli.ContainerCreate(ctx, cfg, hostCfg, &network.NetworkingConfig{}, nil, name)
	}
	if err != nil {
		return "", lease.AsRemote(lease.OpCreate, err)
	}
	return resp.ID, nil
}

func (d *Driver) Start(ctx context.Context, id string) (string, error) {
	if err := d.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return "", lease.AsRemote(lease.OpStart, err)
	}
	info, err := d.cli.ContainerInspect(ctx, id)
	if err != nil {
		return "", lease.AsRemote(lease.OpStart, err)
	}
	if info.State == nil || !info.State.Running {
		return "", &lease.RemoteServiceError{Op: lease.OpStart, Message: "container not running"}
	}
	if info.NetworkSettings == nil {
		return "", &lease.RemoteServiceError{Op: lease.OpStart, Message: "no network settings"}
	}
	bindings := info.NetworkSettings.Ports[d.port]
	if len(bindings) == 0 || bindings[0].HostPort == "" {
		return "", &lease.RemoteServiceError{Op: lease.OpStart, Message: "devtools port not published"}
	}
	host := bindings[0].HostIP
	if host == "" || host == "0.0.0.0" {
		host = d.cfg.BindHost
	}
	return net.JoinHostPort(host, bindings[0].HostPort), nil
}

func (d *Driver) Close(ctx context.Context, id string) error {
	secs := int(d.cfg.StopTimeout / time.Second)
	return lease.AsRemote(lease.OpClose, d.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &secs}))
}

func (d *Driver) Delete(ctx context.Context, id string) error {
	return lease.AsRemote(lease.OpDelete, d.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}))
}
