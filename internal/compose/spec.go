package compose

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	composetypes "github.com/compose-spec/compose-go/v2/types"
	dockercontainer "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/go-connections/nat"

	"updock/internal/container"
	"updock/internal/image"
)

// SpecFor builds the launch spec for one declared service. A non-empty
// tagOverride rewrites the declared image tag in memory; no overlay file is
// ever written. The returned reference is the declaration's own image
// reference before any override, which drift detection compares against.
func (p *Project) SpecFor(service, tagOverride string) (container.Spec, string, error) {
	svc, err := p.Service(service)
	if err != nil {
		return container.Spec{}, "", err
	}
	declared := svc.Image
	if strings.TrimSpace(declared) == "" {
		return container.Spec{}, "", fmt.Errorf("service %q declares no image", service)
	}

	ref := declared
	if tagOverride != "" {
		ref, err = image.Retag(declared, tagOverride)
		if err != nil {
			return container.Spec{}, "", err
		}
	}

	spec := container.Spec{
		Name:          p.ContainerName(service),
		Image:         ref,
		Env:           flattenEnvironment(svc.Environment),
		Ports:         container.NormalizePorts(portMap(service, svc.Ports)),
		Mounts:        serviceMounts(service, svc.Volumes),
		RestartPolicy: restartPolicy(svc.Restart),
		NetworkMode:   svc.NetworkMode,
		Hostname:      svc.Hostname,
		User:          svc.User,
		Entrypoint:    []string(svc.Entrypoint),
		Cmd:           []string(svc.Command),
		Labels:        p.ownershipLabels(service, svc.Labels),
	}
	return spec, declared, nil
}

// ownershipLabels merges declared labels with the compose ownership labels
// so the recreated container is detected as managed again.
func (p *Project) ownershipLabels(service string, declared composetypes.Labels) map[string]string {
	out := make(map[string]string, len(declared)+4)
	for k, v := range declared {
		out[k] = v
	}
	out[container.LabelComposeProject] = p.proj.Name
	out[container.LabelComposeService] = service
	out[container.LabelComposeConfigFiles] = p.ConfigPath
	out[container.LabelComposeWorkingDir] = p.WorkingDir
	return out
}

func flattenEnvironment(env composetypes.MappingWithEquals) []string {
	if len(env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, key := range keys {
		value := ""
		if v := env[key]; v != nil {
			value = *v
		}
		out = append(out, key+"="+value)
	}
	return out
}

func portMap(service string, ports []composetypes.ServicePortConfig) nat.PortMap {
	if len(ports) == 0 {
		return nil
	}
	out := make(nat.PortMap, len(ports))
	for _, p := range ports {
		if p.Target == 0 {
			slog.Warn("Dropping port with no container port.", "service", service)
			continue
		}
		proto := strings.ToLower(strings.TrimSpace(p.Protocol))
		if proto == "" {
			proto = "tcp"
		}
		port, err := nat.NewPort(proto, strconv.FormatUint(uint64(p.Target), 10))
		if err != nil {
			slog.Warn("Dropping unparseable port.", "service", service, "port", p.Target, "err", err)
			continue
		}
		out[port] = append(out[port], nat.PortBinding{HostIP: p.HostIP, HostPort: p.Published})
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func serviceMounts(service string, volumes []composetypes.ServiceVolumeConfig) []mount.Mount {
	if len(volumes) == 0 {
		return nil
	}
	out := make([]mount.Mount, 0, len(volumes))
	for _, v := range volumes {
		if strings.TrimSpace(v.Target) == "" {
			slog.Warn("Dropping volume with empty target.", "service", service, "source", v.Source)
			continue
		}
		m := mount.Mount{Source: v.Source, Target: v.Target, ReadOnly: v.ReadOnly}
		switch v.Type {
		case "volume", "":
			m.Type = mount.TypeVolume
		case "bind":
			m.Type = mount.TypeBind
		case "tmpfs":
			m.Type = mount.TypeTmpfs
			m.Source = ""
			m.ReadOnly = false
		default:
			slog.Warn("Dropping volume of unsupported kind.", "service", service, "kind", v.Type, "target", v.Target)
			continue
		}
		out = append(out, m)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// restartPolicy maps a compose restart value ("no", "always", "on-failure",
// "on-failure:3", "unless-stopped") to the engine's policy type. Unset and
// "no" both mean no policy.
func restartPolicy(restart string) dockercontainer.RestartPolicy {
	restart = strings.TrimSpace(restart)
	name, count, hasCount := strings.Cut(restart, ":")
	switch name {
	case "", "no", "none":
		return dockercontainer.RestartPolicy{}
	}

	policy := dockercontainer.RestartPolicy{Name: dockercontainer.RestartPolicyMode(name)}
	if hasCount {
		if n, err := strconv.Atoi(strings.TrimSpace(count)); err == nil {
			policy.MaximumRetryCount = n
		}
	}
	return policy
}
