// Package docker streams container logs from the Docker Engine API.
package docker

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/events"
	"github.com/docker/docker/api/types/filters"
	dockerclient "github.com/docker/docker/client"
)

// containerInfo is the subset of container metadata the ingester needs.
type containerInfo struct {
	ID    string
	Name  string
	Image string
	IsTTY bool
}

// shortID returns the familiar 12-character container ID for logs and fields.
func (c containerInfo) shortID() string {
	if len(c.ID) > 12 {
		return c.ID[:12]
	}
	return c.ID
}

// containerEvent is a container lifecycle notification.
type containerEvent struct {
	Action      string // "start", "stop", "die", "destroy"
	ContainerID string
}

// engineClient abstracts the Docker Engine API so tests can substitute a
// fake. Only the calls the ingester makes are covered.
type engineClient interface {
	ListContainers(ctx context.Context) ([]containerInfo, error)
	InspectContainer(ctx context.Context, id string) (containerInfo, error)
	FollowLogs(ctx context.Context, id string, since time.Time) (io.ReadCloser, bool, error)
	WatchEvents(ctx context.Context) (<-chan containerEvent, <-chan error)
}

// sdkClient implements engineClient on the official Docker SDK.
type sdkClient struct {
	cli *dockerclient.Client
}

// newSDKClient connects to the Docker daemon. An empty host uses the
// environment defaults (DOCKER_HOST or the platform socket).
func newSDKClient(host string) (*sdkClient, error) {
	opts := []dockerclient.Opt{
		dockerclient.FromEnv,
		dockerclient.WithAPIVersionNegotiation(),
	}
	if host != "" {
		opts = append(opts, dockerclient.WithHost(host))
	}

	cli, err := dockerclient.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &sdkClient{cli: cli}, nil
}

func (c *sdkClient) ListContainers(ctx context.Context) ([]containerInfo, error) {
	raw, err := c.cli.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("container list: %w", err)
	}

	infos := make([]containerInfo, len(raw))
	for i, r := range raw {
		name := ""
		if len(r.Names) > 0 {
			name = strings.TrimPrefix(r.Names[0], "/")
		}
		infos[i] = containerInfo{ID: r.ID, Name: name, Image: r.Image}
	}
	return infos, nil
}

func (c *sdkClient) InspectContainer(ctx context.Context, id string) (containerInfo, error) {
	raw, err := c.cli.ContainerInspect(ctx, id)
	if err != nil {
		return containerInfo{}, fmt.Errorf("container inspect: %w", err)
	}

	info := containerInfo{ID: raw.ID}
	if raw.Name != "" {
		info.Name = strings.TrimPrefix(raw.Name, "/")
	}
	if raw.Config != nil {
		info.Image = raw.Config.Image
		info.IsTTY = raw.Config.Tty
	}
	return info, nil
}

func (c *sdkClient) FollowLogs(ctx context.Context, id string, since time.Time) (io.ReadCloser, bool, error) {
	inspect, err := c.cli.ContainerInspect(ctx, id)
	if err != nil {
		return nil, false, fmt.Errorf("container inspect: %w", err)
	}
	isTTY := inspect.Config != nil && inspect.Config.Tty

	opts := container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
		Timestamps: true,
	}
	if !since.IsZero() {
		opts.Since = since.Format(time.RFC3339Nano)
	}

	body, err := c.cli.ContainerLogs(ctx, id, opts)
	if err != nil {
		return nil, false, fmt.Errorf("container logs: %w", err)
	}
	return body, isTTY, nil
}

func (c *sdkClient) WatchEvents(ctx context.Context) (<-chan containerEvent, <-chan error) {
	out := make(chan containerEvent)
	errs := make(chan error, 1)

	f := filters.NewArgs()
	f.Add("type", string(events.ContainerEventType))
	msgs, sdkErrs := c.cli.Events(ctx, events.ListOptions{Filters: f})

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-sdkErrs:
				errs <- err
				return
			case m := <-msgs:
				ev := containerEvent{Action: string(m.Action), ContainerID: m.Actor.ID}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, errs
}
