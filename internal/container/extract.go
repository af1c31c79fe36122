package container

import (
	"log/slog"
	"slices"
	"strings"

	dockercontainer "github.com/docker/docker/api/types/container"
	imagetypes "github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/go-connections/nat"
)

// FromInspect rebuilds a Spec from an inspect response. img, when known,
// is the inspect of the container's image and lets inherited entrypoint and
// command values be told apart from explicit overrides; pass nil to treat
// every value as explicit.
//
// Extraction is partial-failure tolerant: a single malformed mount or port
// entry is dropped with a warning instead of failing the whole container,
// because every launch parameter has a safe default and one bad field must
// not block reconciliation of an otherwise healthy target.
func FromInspect(info dockercontainer.InspectResponse, img *imagetypes.InspectResponse) Spec {
	spec := Spec{
		Name: strings.TrimPrefix(info.Name, "/"),
	}

	if info.Config != nil {
		spec.Image = info.Config.Image
		spec.Env = append([]string(nil), info.Config.Env...)
		spec.User = info.Config.User
		spec.Labels = info.Config.Labels
		spec.Hostname = info.Config.Hostname
		spec.Entrypoint = []string(info.Config.Entrypoint)
		spec.Cmd = []string(info.Config.Cmd)
	}

	// The engine fills in a hostname derived from the container ID when
	// none was requested; carrying that forward would pin a stale value.
	if spec.Hostname == shortID(info.ID) {
		spec.Hostname = ""
	}

	if img != nil && img.Config != nil {
		if slices.Equal(spec.Entrypoint, img.Config.Entrypoint) {
			spec.Entrypoint = nil
		}
		if slices.Equal(spec.Cmd, img.Config.Cmd) {
			spec.Cmd = nil
		}
	}

	spec.Mounts = extractMounts(spec.Name, info.Mounts)

	if info.HostConfig != nil {
		spec.Ports = NormalizePorts(info.HostConfig.PortBindings)
		if rp := info.HostConfig.RestartPolicy; rp.Name != "" && !rp.IsNone() {
			spec.RestartPolicy = rp
		}
		if nm := info.HostConfig.NetworkMode; !nm.IsDefault() && !nm.IsBridge() && nm != "" {
			spec.NetworkMode = string(nm)
		}
	}

	return spec
}

func extractMounts(name string, points []dockercontainer.MountPoint) []mount.Mount {
	if len(points) == 0 {
		return nil
	}

	out := make([]mount.Mount, 0, len(points))
	for _, mp := range points {
		if mp.Destination == "" {
			slog.Warn("Dropping mount with empty destination.", "container", name, "source", mp.Source)
			continue
		}
		m := mount.Mount{Target: mp.Destination, ReadOnly: !mp.RW}
		switch mp.Type {
		case mount.TypeBind:
			m.Type = mount.TypeBind
			m.Source = mp.Source
		case mount.TypeVolume:
			m.Type = mount.TypeVolume
			m.Source = mp.Name
		case mount.TypeTmpfs:
			m.Type = mount.TypeTmpfs
			m.ReadOnly = false
		default:
			slog.Warn("Dropping mount of unsupported kind.", "container", name, "kind", string(mp.Type), "destination", mp.Destination)
			continue
		}
		out = append(out, m)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// NormalizePorts reduces port bindings to their minimal equivalent form.
// A wildcard host interface is the same as no host interface, and a binding
// with neither interface nor host port pins nothing and is dropped.
func NormalizePorts(bindings nat.PortMap) nat.PortMap {
	if len(bindings) == 0 {
		return nil
	}

	out := make(nat.PortMap, len(bindings))
	for port, hosts := range bindings {
		kept := make([]nat.PortBinding, 0, len(hosts))
		for _, b := range hosts {
			if b.HostIP == "0.0.0.0" || b.HostIP == "::" {
				b.HostIP = ""
			}
			if b.HostIP == "" && b.HostPort == "" {
				continue
			}
			kept = append(kept, b)
		}
		if len(kept) > 0 {
			out[port] = kept
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
