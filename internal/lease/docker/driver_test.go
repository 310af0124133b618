package docker

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"envpool/internal/lease"
)

type notFound struct{}

func (notFound) Error() string { return "no such image" }
func (notFound) NotFound()     {}

type fakeAPI struct {
	client.APIClient

	missingImage bool
	pulled       []string
	created      *container.Config
	host         *container.HostConfig
	stopped      []string
	removed      []string
	running      bool
	ignoreStart  bool
}

func (f *fakeAPI) ContainerCreate(_ context.Context, cfg *container.Config, host *container.HostConfig, _ *network.NetworkingConfig, _ *ocispec.Platform, name string) (container.CreateResponse, error) {
	if f.missingImage {
		f.missingImage = false
		return container.CreateResponse{}, notFound{}
	}
	f.created, f.host = cfg, host
	return container.CreateResponse{ID: "c-" + name}, nil
}

func (f *fakeAPI) ImagePull(_ context.Context, ref string, _ image.PullOptions) (io.ReadCloser, error) {
	f.pulled = append(f.pulled, ref)
	return io.NopCloser(strings.NewReader("{}")), nil
}

func (f *fakeAPI) ContainerStart(context.Context, string, container.StartOptions) error {
	f.running = !f.ignoreStart
	return nil
}

func (f *fakeAPI) ContainerInspect(_ context.Context, id string) (container.InspectResponse, error) {
	resp := container.InspectResponse{
		ContainerJSONBase: &container.ContainerJSONBase{ID: id, State: &container.State{Running: f.running}},
		NetworkSettings: &container.NetworkSettings{NetworkSettingsBase: container.NetworkSettingsBase{
			Ports: nat.PortMap{"9222/tcp": []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: "49153"}}},
		}},
	}
	return resp, nil
}

func (f *fakeAPI) ContainerStop(_ context.Context, id string, _ container.StopOptions) error {
	f.stopped = append(f.stopped, id)
	return nil
}

func (f *fakeAPI) ContainerRemove(_ context.Context, id string, opts container.RemoveOptions) error {
	if !opts.Force {
		return errors.New("expected force")
	}
	f.removed = append(f.removed, id)
	return nil
}

func TestLifecyclePullsMissingImage(t *testing.T) {
	api := &fakeAPI{missingImage: true}
	d := NewWithClient(api, Config{})
	ctx := context.Background()

	id, err := d.Create(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "c-envpool-"))
	assert.Equal(t, []string{DefaultImage}, api.pulled)
	assert.Contains(t, api.created.ExposedPorts, nat.Port("9222/tcp"))
	assert.Equal(t, "127.0.0.1", api.host.PortBindings["9222/tcp"][0].HostIP)

	ep, err := d.Start(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:49153", ep)

	require.NoError(t, d.Close(ctx, id))
	require.NoError(t, d.Delete(ctx, id))
	assert.Equal(t, []string{id}, api.stopped)
	assert.Equal(t, []string{id}, api.removed)
}

func TestStartNotRunning(t *testing.T) {
	api := &fakeAPI{ignoreStart: true}
	d := NewWithClient(api, Config{})

	_, err := d.Start(context.Background(), "x")
	var rse *lease.RemoteServiceError
	require.True(t, errors.As(err, &rse))
	assert.Equal(t, lease.OpStart, rse.Op)
	assert.Equal(t, "container not running", rse.Message)
}
