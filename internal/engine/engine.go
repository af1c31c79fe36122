package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/containerd/errdefs"
	dockercontainer "github.com/docker/docker/api/types/container"
	imagetypes "github.com/docker/docker/api/types/image"

	"updock/internal/compose"
	"updock/internal/container"
	"updock/internal/image"
	"updock/internal/ledger"
)

// ErrContainerNotFound reports that a target container does not exist.
var ErrContainerNotFound = errors.New("container not found")

// Engine reconciles targets against their desired image version. All
// operations are synchronous and targets are processed one at a time; a
// failed target never stops the ones after it.
type Engine struct {
	Runtime ContainerRuntime
	Ledger  Recorder
	Clock   Clock

	// Force is the explicit override: it defeats drift protection (rule 3)
	// but never recreates an already-correct target (rule 2).
	Force bool
}

func (e *Engine) clock() Clock {
	if e.Clock != nil {
		return e.Clock
	}
	return RealClock{}
}

// record appends the outcome for one target. A record that cannot be
// written is surfaced in the log but does not change the outcome: the
// operation itself already happened.
func (e *Engine) record(res Result) {
	rec := ledger.Record{
		Time:     e.clock().Now(),
		Name:     res.Name,
		Image:    res.Image,
		Identity: res.Identity,
		Action:   res.Action,
	}
	if rec.Image == "" {
		rec.Image = image.Placeholder
	}
	if err := e.Ledger.Append(rec); err != nil {
		slog.Error("Failed to append ledger record.", "target", res.Name, "action", string(res.Action), "err", err)
	}
}

// UpdateContainers runs the update protocol for each named container in
// order. Managed containers are routed through their owning compose
// project; standalone containers are recreated from their extracted spec.
func (e *Engine) UpdateContainers(ctx context.Context, names []string, tag string) Summary {
	var summary Summary
	for _, name := range names {
		res := e.updateByName(ctx, name, tag)
		e.record(res)
		summary.Results = append(summary.Results, res)
	}
	return summary
}

// UpdateProject runs the update protocol for services of a loaded compose
// project: the one named service, or every declared service when service is
// empty. Each service is an isolated failure domain.
func (e *Engine) UpdateProject(ctx context.Context, proj *compose.Project, service, tag string) Summary {
	services := proj.ServiceNames()
	if service != "" {
		services = []string{service}
	}

	var summary Summary
	for _, svc := range services {
		res := e.updateService(ctx, proj, svc, tag)
		e.record(res)
		summary.Results = append(summary.Results, res)
	}
	return summary
}

// PruneImages removes dangling images left behind by updates.
func (e *Engine) PruneImages(ctx context.Context) error {
	return e.Runtime.ImagePrune(ctx)
}

// updateByName dispatches one container to the compose or manual path
// based on a single ownership detection step.
func (e *Engine) updateByName(ctx context.Context, name, tag string) Result {
	info, err := e.Runtime.ContainerInspect(ctx, name)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return Result{Name: name, Action: ledger.ActionNotFound, Phase: PhaseFailed,
				Err: fmt.Errorf("%w: %s", ErrContainerNotFound, name)}
		}
		return Result{Name: name, Action: ledger.ActionNotFound, Phase: PhaseFailed,
			Err: fmt.Errorf("inspect %s: %w", name, err)}
	}

	var labels map[string]string
	if info.Config != nil {
		labels = info.Config.Labels
	}
	if mc := compose.DetectContext(labels); mc != nil {
		proj, err := compose.LoadContext(ctx, *mc)
		if err == nil {
			return e.updateService(ctx, proj, mc.Service, tag)
		}
		// The declaration is gone or unreadable; the container itself is
		// still a valid manual target.
		slog.Warn("Managed container's compose file is unusable, treating as standalone.",
			"container", name, "config", mc.ConfigPath, "err", err)
	}

	return e.updateStandalone(ctx, info, tag)
}

// updateStandalone reconciles one container against its own image
// reference. The launch spec is captured before anything destructive runs.
func (e *Engine) updateStandalone(ctx context.Context, info dockercontainer.InspectResponse, tag string) Result {
	spec := container.FromInspect(info, e.imageOf(ctx, info))
	res := Result{Name: spec.Name, Image: spec.Image, Phase: PhaseInspected}

	ref := spec.Image
	if tag != "" {
		retagged, err := image.Retag(ref, tag)
		if err != nil {
			res.Action, res.Phase, res.Err = ledger.ActionPullFail, PhaseFailed, err
			return res
		}
		ref = retagged
		res.Image = ref
	}
	override := tag != "" || e.Force

	pulled, current := e.fetch(ctx, ref, info.Image)
	res.PriorIdentity = current
	res.Phase = PhasePulled

	// Standalone containers have no managing declaration to drift from.
	res.Action = Decide(pulled, current, override, false)
	res.Phase = PhaseCompared

	switch res.Action {
	case ledger.ActionPullFail:
		res.Phase = PhaseFailed
		res.Err = fmt.Errorf("pull %s: %w", ref, image.ErrImageNotFound)
		return res
	case ledger.ActionSkipPinned:
		res.Identity = current
		res.Phase = PhaseSkipped
		return res
	}

	res.Identity = pulled
	e.recreate(ctx, spec.WithImage(ref), spec.Name, &res)
	return res
}

// updateService reconciles one declared service: the running instance is
// located by ownership labels and compared against the declaration's image
// (with any tag override applied in memory).
func (e *Engine) updateService(ctx context.Context, proj *compose.Project, service, tag string) Result {
	spec, declaredRef, err := proj.SpecFor(service, tag)
	if err != nil {
		return Result{Name: service, Action: ledger.ActionNotFound, Phase: PhaseFailed, Err: err}
	}
	override := tag != "" || e.Force

	res := Result{Name: service, Image: spec.Image, Phase: PhaseInspected}

	currentName, info, found, err := e.findServiceContainer(ctx, proj.Name(), service)
	if err != nil {
		res.Action, res.Phase, res.Err = ledger.ActionNotFound, PhaseFailed, err
		return res
	}

	var currentRef string
	drift := false
	if found && info.Config != nil {
		currentRef = info.Config.Image
		drift = !image.SameRef(currentRef, declaredRef)
	}

	pulled, current := e.fetch(ctx, spec.Image, currentRef)
	res.PriorIdentity = current
	res.Phase = PhasePulled

	res.Action = Decide(pulled, current, override, drift)
	res.Phase = PhaseCompared

	switch res.Action {
	case ledger.ActionPullFail:
		res.Phase = PhaseFailed
		res.Err = fmt.Errorf("pull %s: %w", spec.Image, image.ErrImageNotFound)
		return res
	case ledger.ActionSkipPinned:
		res.Identity = current
		res.Phase = PhaseSkipped
		return res
	case ledger.ActionSkipMismatch:
		res.Identity = current
		res.Phase = PhaseSkipped
		slog.Warn("Running image drifted from declaration, refusing to clobber without an explicit override.",
			"service", service, "running", currentRef, "declared", declaredRef)
		return res
	}

	res.Identity = pulled
	e.recreate(ctx, spec, currentName, &res)
	return res
}

// recreate is the destructive leg of the protocol: stop and remove the old
// instance (when one exists), then create, start, and verify the new one.
// It is entered only after the replacement image resolved to an identity,
// so a working target is never destroyed without a usable replacement. On
// failure the result keeps the prior identity: if the target is now absent,
// that identity is the operator's only handle to relaunch it.
func (e *Engine) recreate(ctx context.Context, spec container.Spec, oldName string, res *Result) {
	fail := func(step string, err error) {
		res.Action = ledger.ActionRecreateFail
		res.Identity = res.PriorIdentity
		res.Phase = PhaseFailed
		res.Err = fmt.Errorf("%s %s: %w", step, res.Name, err)
	}

	if oldName != "" {
		if err := e.Runtime.ContainerStop(ctx, oldName); err != nil {
			fail("stop", err)
			return
		}
		res.Phase = PhaseStopped
		if err := e.Runtime.ContainerRemove(ctx, oldName, true); err != nil {
			fail("remove", err)
			return
		}
		res.Phase = PhaseRemoved
	}

	if err := e.Runtime.ContainerCreate(ctx, spec); err != nil {
		fail("create", err)
		return
	}
	if err := e.Runtime.ContainerStart(ctx, spec.Name); err != nil {
		fail("start", err)
		return
	}
	res.Phase = PhaseStarted

	// A recreate that reports success but leaves no live instance behind
	// is still a failure.
	if _, err := e.Runtime.ContainerInspect(ctx, spec.Name); err != nil {
		fail("verify", err)
		return
	}
	res.Phase = PhaseVerified
}

// fetch pulls ref and resolves both sides of the comparison. A pull error
// is not terminal by itself: a previously fetched copy still resolves, and
// the decision rules treat an unresolvable pulled reference as the failure.
func (e *Engine) fetch(ctx context.Context, ref, currentRef string) (pulled, current image.Identity) {
	if err := e.Runtime.ImagePull(ctx, ref); err != nil {
		slog.Warn("Image pull failed, falling back to local copy.", "image", ref, "err", err)
	}
	pulled, err := image.Resolve(ctx, e.Runtime, ref)
	if err != nil {
		slog.Debug("Pulled reference did not resolve.", "image", ref, "err", err)
	}
	if currentRef != "" {
		current, err = image.Resolve(ctx, e.Runtime, currentRef)
		if err != nil {
			slog.Debug("Running image did not resolve.", "image", currentRef, "err", err)
		}
	}
	return pulled, current
}

// imageOf inspects the image a container was created from, or nil when the
// image is no longer in the local store.
func (e *Engine) imageOf(ctx context.Context, info dockercontainer.InspectResponse) *imagetypes.InspectResponse {
	if info.Image == "" {
		return nil
	}
	img, err := e.Runtime.ImageInspect(ctx, info.Image)
	if err != nil {
		return nil
	}
	return &img
}

// findServiceContainer locates the container instance of a service by its
// ownership labels. Missing is not an error: the service may simply never
// have been brought up.
func (e *Engine) findServiceContainer(ctx context.Context, project, service string) (string, dockercontainer.InspectResponse, bool, error) {
	names, err := e.Runtime.ContainerNamesByLabels(ctx, map[string]string{
		container.LabelComposeProject: project,
		container.LabelComposeService: service,
	})
	if err != nil {
		return "", dockercontainer.InspectResponse{}, false, fmt.Errorf("list containers for %s/%s: %w", project, service, err)
	}
	if len(names) == 0 {
		return "", dockercontainer.InspectResponse{}, false, nil
	}
	if len(names) > 1 {
		slog.Warn("Service has multiple container instances, reconciling the first.",
			"project", project, "service", service, "instances", len(names))
	}

	info, err := e.Runtime.ContainerInspect(ctx, names[0])
	if err != nil {
		if errdefs.IsNotFound(err) {
			return "", dockercontainer.InspectResponse{}, false, nil
		}
		return "", dockercontainer.InspectResponse{}, false, fmt.Errorf("inspect %s: %w", names[0], err)
	}
	return names[0], info, true, nil
}
