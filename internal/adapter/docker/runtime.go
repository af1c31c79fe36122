// Package docker implements the engine's container runtime port against
// the Docker Engine API.
package docker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/containerd/errdefs"
	dockercontainer "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	imagetypes "github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"

	"updock/internal/container"
	"updock/internal/engine"
)

var _ engine.ContainerRuntime = (*Runtime)(nil)

// Runtime implements engine.ContainerRuntime using the Docker Engine API.
type Runtime struct {
	cli client.APIClient
}

// NewRuntime creates a Runtime with a new Docker client from the
// environment.
func NewRuntime() (*Runtime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &Runtime{cli: cli}, nil
}

// NewRuntimeFromClient wraps an existing Docker API client.
func NewRuntimeFromClient(cli client.APIClient) *Runtime {
	return &Runtime{cli: cli}
}

func (r *Runtime) ContainerInspect(ctx context.Context, name string) (dockercontainer.InspectResponse, error) {
	return r.cli.ContainerInspect(ctx, name)
}

func (r *Runtime) ContainerNamesByLabels(ctx context.Context, labels map[string]string) ([]string, error) {
	args := filters.NewArgs()
	for k, v := range labels {
		args.Add("label", k+"="+v)
	}
	list, err := r.cli.ContainerList(ctx, dockercontainer.ListOptions{All: true, Filters: args})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}

	names := make([]string, 0, len(list))
	for _, c := range list {
		if len(c.Names) == 0 {
			continue
		}
		names = append(names, strings.TrimPrefix(c.Names[0], "/"))
	}
	return names, nil
}

// ContainerStop stops a container. Stopping an absent container succeeds:
// the desired state is already reached.
func (r *Runtime) ContainerStop(ctx context.Context, name string) error {
	if err := r.cli.ContainerStop(ctx, name, dockercontainer.StopOptions{}); err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("stop container %s: %w", name, err)
	}
	return nil
}

// ContainerRemove removes a container, tolerating an already-absent one.
func (r *Runtime) ContainerRemove(ctx context.Context, name string, force bool) error {
	if err := r.cli.ContainerRemove(ctx, name, dockercontainer.RemoveOptions{Force: force}); err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("remove container %s: %w", name, err)
	}
	return nil
}

func (r *Runtime) ContainerCreate(ctx context.Context, spec container.Spec) error {
	cfg, host := spec.CreateConfig()
	if _, err := r.cli.ContainerCreate(ctx, cfg, host, nil, nil, spec.Name); err != nil {
		return fmt.Errorf("create container %s: %w", spec.Name, err)
	}
	return nil
}

func (r *Runtime) ContainerStart(ctx context.Context, name string) error {
	if err := r.cli.ContainerStart(ctx, name, dockercontainer.StartOptions{}); err != nil {
		return fmt.Errorf("start container %s: %w", name, err)
	}
	return nil
}

func (r *Runtime) ImageInspect(ctx context.Context, ref string) (imagetypes.InspectResponse, error) {
	return r.cli.ImageInspect(ctx, ref)
}

// ImagePull pulls an image and drains the progress stream to completion.
func (r *Runtime) ImagePull(ctx context.Context, ref string) error {
	slog.Info("Pulling image.", "image", ref)
	resp, err := r.cli.ImagePull(ctx, ref, imagetypes.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", ref, err)
	}
	defer resp.Close()
	if _, err := io.Copy(io.Discard, resp); err != nil {
		return fmt.Errorf("pull image %s: read response: %w", ref, err)
	}
	return nil
}

// ImagePrune removes dangling images.
func (r *Runtime) ImagePrune(ctx context.Context) error {
	report, err := r.cli.ImagesPrune(ctx, filters.NewArgs())
	if err != nil {
		return fmt.Errorf("prune images: %w", err)
	}
	if n := len(report.ImagesDeleted); n > 0 {
		slog.Info("Pruned dangling images.", "count", n, "reclaimed_bytes", report.SpaceReclaimed)
	}
	return nil
}

func (r *Runtime) Close() error {
	return r.cli.Close()
}
