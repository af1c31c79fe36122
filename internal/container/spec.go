// Package container reconstructs a container's launch configuration from
// engine introspection, precisely enough that a recreate with a new image
// preserves the original runtime behavior.
package container

import (
	"strings"

	dockercontainer "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/go-connections/nat"
)

// Spec is the full launch configuration of one container. Zero values mean
// "not set": an empty NetworkMode is the engine default, an empty
// RestartPolicy name means no policy, a nil Entrypoint/Cmd means the image's
// own is used unchanged.
type Spec struct {
	Name          string
	Image         string
	Env           []string
	Ports         nat.PortMap
	Mounts        []mount.Mount
	RestartPolicy dockercontainer.RestartPolicy
	NetworkMode   string
	Hostname      string
	User          string
	Entrypoint    []string
	Cmd           []string
	Labels        map[string]string
}

// CreateConfig converts the spec into the engine's create request types.
func (s Spec) CreateConfig() (*dockercontainer.Config, *dockercontainer.HostConfig) {
	cfg := &dockercontainer.Config{
		Image:      s.Image,
		Env:        append([]string(nil), s.Env...),
		Hostname:   s.Hostname,
		User:       s.User,
		Entrypoint: append([]string(nil), s.Entrypoint...),
		Cmd:        append([]string(nil), s.Cmd...),
		Labels:     s.Labels,
	}
	if len(s.Ports) > 0 {
		cfg.ExposedPorts = make(nat.PortSet, len(s.Ports))
		for port := range s.Ports {
			cfg.ExposedPorts[port] = struct{}{}
		}
	}

	host := &dockercontainer.HostConfig{
		PortBindings:  s.Ports,
		Mounts:        append([]mount.Mount(nil), s.Mounts...),
		RestartPolicy: s.RestartPolicy,
		NetworkMode:   dockercontainer.NetworkMode(s.NetworkMode),
	}
	return cfg, host
}

// WithImage returns a copy of the spec launching a different image.
func (s Spec) WithImage(ref string) Spec {
	s.Image = ref
	return s
}

// ComposeService returns the compose service name this container belongs
// to, or "" for a standalone container.
func (s Spec) ComposeService() string {
	return s.Labels[LabelComposeService]
}

func shortID(id string) string {
	id = strings.TrimPrefix(id, "sha256:")
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
