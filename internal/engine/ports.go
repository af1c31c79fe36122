// Package engine decides whether a target needs updating and, when it
// does, performs the in-place recreate that preserves the target's launch
// configuration. Every decision and outcome is appended to the ledger.
package engine

import (
	"context"
	"time"

	dockercontainer "github.com/docker/docker/api/types/container"
	imagetypes "github.com/docker/docker/api/types/image"

	"updock/internal/container"
	"updock/internal/ledger"
)

// ContainerRuntime abstracts the container engine.
// Production: adapter/docker.Runtime (wrapping a Docker *client.Client)
// Testing: in-memory fake
type ContainerRuntime interface {
	ContainerInspect(ctx context.Context, name string) (dockercontainer.InspectResponse, error)
	// ContainerNamesByLabels returns the names of containers, running or
	// not, carrying every given label.
	ContainerNamesByLabels(ctx context.Context, labels map[string]string) ([]string, error)
	ContainerStop(ctx context.Context, name string) error
	ContainerRemove(ctx context.Context, name string, force bool) error
	ContainerCreate(ctx context.Context, spec container.Spec) error
	ContainerStart(ctx context.Context, name string) error

	ImageInspect(ctx context.Context, ref string) (imagetypes.InspectResponse, error)
	ImagePull(ctx context.Context, ref string) error
	ImagePrune(ctx context.Context) error

	Close() error
}

// Recorder appends to the action history.
// Production: *ledger.Ledger
type Recorder interface {
	Append(rec ledger.Record) error
}

// Clock abstracts time.Now() for deterministic testing.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }
