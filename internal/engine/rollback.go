package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/containerd/errdefs"
	dockercontainer "github.com/docker/docker/api/types/container"

	"updock/internal/compose"
	"updock/internal/container"
	"updock/internal/image"
	"updock/internal/ledger"
)

// Rollback recreates a target pinned to a previously recorded identity.
// The override satisfies the decision engine's explicit-override rule, so
// drift protection does not apply; an already-matching running identity
// still short-circuits to a skip, since nothing may recreate a target that
// is already correct. The outcome is appended to the ledger like any other
// action, so rollbacks are auditable through the history they read from.
func (e *Engine) Rollback(ctx context.Context, name string, override image.Identity) Result {
	res := e.rollback(ctx, name, override)
	e.record(res)
	return res
}

func (e *Engine) rollback(ctx context.Context, name string, override image.Identity) Result {
	info, found, err := e.locate(ctx, name)
	if err != nil {
		return Result{Name: name, Image: string(override), Action: ledger.ActionRollbackFail, Phase: PhaseFailed, Err: err}
	}
	if !found {
		return Result{Name: name, Image: string(override), Action: ledger.ActionRollbackFail, Phase: PhaseFailed,
			Err: fmt.Errorf("%w: no container or service instance named %s", ErrContainerNotFound, name)}
	}

	oldName, logical, spec := e.rollbackSpec(ctx, info)
	ref := string(override)
	spec = spec.WithImage(ref)

	res := Result{Name: logical, Image: ref, Phase: PhaseInspected}

	pulled, current := e.fetch(ctx, ref, info.Image)
	res.PriorIdentity = current
	res.Phase = PhasePulled

	switch Decide(pulled, current, true, false) {
	case ledger.ActionPullFail:
		res.Action = ledger.ActionRollbackFail
		res.Phase = PhaseFailed
		res.Err = fmt.Errorf("pull %s: %w", ref, image.ErrImageNotFound)
		return res
	case ledger.ActionSkipPinned:
		res.Action = ledger.ActionSkipPinned
		res.Identity = current
		res.Phase = PhaseSkipped
		return res
	}
	res.Phase = PhaseCompared

	e.recreate(ctx, spec, oldName, &res)
	if res.Action == ledger.ActionRecreateFail {
		res.Action = ledger.ActionRollbackFail
		return res
	}
	res.Action = ledger.ActionRollbackSuccess
	res.Identity = pulled
	return res
}

// locate finds the physical container behind a rollback target name, which
// may be a container name or a logical service name.
func (e *Engine) locate(ctx context.Context, name string) (dockercontainer.InspectResponse, bool, error) {
	info, err := e.Runtime.ContainerInspect(ctx, name)
	if err == nil {
		return info, true, nil
	}
	if !errdefs.IsNotFound(err) {
		return dockercontainer.InspectResponse{}, false, fmt.Errorf("inspect %s: %w", name, err)
	}

	names, err := e.Runtime.ContainerNamesByLabels(ctx, map[string]string{
		container.LabelComposeService: name,
	})
	if err != nil {
		return dockercontainer.InspectResponse{}, false, fmt.Errorf("list containers for service %s: %w", name, err)
	}
	if len(names) == 0 {
		return dockercontainer.InspectResponse{}, false, nil
	}

	info, err = e.Runtime.ContainerInspect(ctx, names[0])
	if err != nil {
		if errdefs.IsNotFound(err) {
			return dockercontainer.InspectResponse{}, false, nil
		}
		return dockercontainer.InspectResponse{}, false, fmt.Errorf("inspect %s: %w", names[0], err)
	}
	return info, true, nil
}

// rollbackSpec builds the relaunch spec for a located target: from the
// owning declaration when the target is managed and its compose file still
// loads, otherwise from the container's extracted configuration.
func (e *Engine) rollbackSpec(ctx context.Context, info dockercontainer.InspectResponse) (oldName, logical string, spec container.Spec) {
	spec = container.FromInspect(info, e.imageOf(ctx, info))
	oldName, logical = spec.Name, spec.Name

	var labels map[string]string
	if info.Config != nil {
		labels = info.Config.Labels
	}
	mc := compose.DetectContext(labels)
	if mc == nil {
		return oldName, logical, spec
	}

	logical = mc.Service
	proj, err := compose.LoadContext(ctx, *mc)
	if err != nil {
		slog.Warn("Managed container's compose file is unusable, rolling back from extracted config.",
			"container", oldName, "config", mc.ConfigPath, "err", err)
		return oldName, logical, spec
	}
	declSpec, _, err := proj.SpecFor(mc.Service, "")
	if err != nil {
		slog.Warn("Service declaration is unusable, rolling back from extracted config.",
			"container", oldName, "service", mc.Service, "err", err)
		return oldName, logical, spec
	}
	return oldName, logical, declSpec
}
