package rollback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/containerd/errdefs"
	dockercontainer "github.com/docker/docker/api/types/container"
	imagetypes "github.com/docker/docker/api/types/image"

	"updock/internal/container"
	"updock/internal/engine"
	"updock/internal/ledger"
)

const (
	refOld = "example.com/app@sha256:aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	refNew = "example.com/app@sha256:bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	idOld  = "sha256:1111111111111111111111111111111111111111111111111111111111111111"
	idNew  = "sha256:2222222222222222222222222222222222222222222222222222222222222222"
)

type fakeRuntime struct {
	containers map[string]dockercontainer.InspectResponse
	images     map[string]imagetypes.InspectResponse

	stops, removes, starts []string
	created                []container.Spec
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		containers: make(map[string]dockercontainer.InspectResponse),
		images:     make(map[string]imagetypes.InspectResponse),
	}
}

func (f *fakeRuntime) addImage(img imagetypes.InspectResponse, refs ...string) {
	f.images[img.ID] = img
	for _, ref := range refs {
		f.images[ref] = img
	}
}

func (f *fakeRuntime) addContainer(name, ref, imageID string, labels map[string]string) {
	f.containers[name] = dockercontainer.InspectResponse{
		ContainerJSONBase: &dockercontainer.ContainerJSONBase{
			ID:         "c0ffee" + name,
			Name:       "/" + name,
			Image:      imageID,
			HostConfig: &dockercontainer.HostConfig{},
		},
		Config: &dockercontainer.Config{Image: ref, Labels: labels},
	}
}

func (f *fakeRuntime) ContainerInspect(_ context.Context, name string) (dockercontainer.InspectResponse, error) {
	info, ok := f.containers[name]
	if !ok {
		return dockercontainer.InspectResponse{}, fmt.Errorf("no such container %s: %w", name, errdefs.ErrNotFound)
	}
	return info, nil
}

func (f *fakeRuntime) ContainerNamesByLabels(_ context.Context, labels map[string]string) ([]string, error) {
	var names []string
	for name, info := range f.containers {
		if info.Config == nil {
			continue
		}
		match := true
		for k, v := range labels {
			if info.Config.Labels[k] != v {
				match = false
				break
			}
		}
		if match {
			names = append(names, name)
		}
	}
	return names, nil
}

func (f *fakeRuntime) ContainerStop(_ context.Context, name string) error {
	f.stops = append(f.stops, name)
	return nil
}

func (f *fakeRuntime) ContainerRemove(_ context.Context, name string, _ bool) error {
	f.removes = append(f.removes, name)
	delete(f.containers, name)
	return nil
}

func (f *fakeRuntime) ContainerCreate(_ context.Context, spec container.Spec) error {
	f.created = append(f.created, spec)
	imageID := ""
	if img, ok := f.images[spec.Image]; ok {
		imageID = img.ID
	}
	f.addContainer(spec.Name, spec.Image, imageID, spec.Labels)
	return nil
}

func (f *fakeRuntime) ContainerStart(_ context.Context, name string) error {
	f.starts = append(f.starts, name)
	return nil
}

func (f *fakeRuntime) ImageInspect(_ context.Context, ref string) (imagetypes.InspectResponse, error) {
	img, ok := f.images[ref]
	if !ok {
		return imagetypes.InspectResponse{}, fmt.Errorf("no such image %s: %w", ref, errdefs.ErrNotFound)
	}
	return img, nil
}

func (f *fakeRuntime) ImagePull(_ context.Context, _ string) error { return nil }
func (f *fakeRuntime) ImagePrune(_ context.Context) error          { return nil }
func (f *fakeRuntime) Close() error                                { return nil }

func (f *fakeRuntime) destructiveCalls() int {
	return len(f.stops) + len(f.removes) + len(f.created)
}

func seededLedger(t *testing.T, recs ...ledger.Record) *ledger.Ledger {
	t.Helper()
	l, err := ledger.Open(filepath.Join(t.TempDir(), "history.log"))
	if err != nil {
		t.Fatal(err)
	}
	for _, rec := range recs {
		if err := l.Append(rec); err != nil {
			t.Fatal(err)
		}
	}
	return l
}

func newSelector(rt *fakeRuntime, l *ledger.Ledger, input string) (*Selector, *bytes.Buffer) {
	out := &bytes.Buffer{}
	sel := &Selector{
		Engine:  &engine.Engine{Runtime: rt, Ledger: l, Clock: engine.RealClock{}},
		History: l,
		In:      strings.NewReader(input),
		Out:     out,
	}
	return sel, out
}

func TestRunRollsBackToSelectedVersion(t *testing.T) {
	rt := newFakeRuntime()
	rt.addImage(imagetypes.InspectResponse{ID: idOld, RepoDigests: []string{refOld}}, refOld)
	rt.addImage(imagetypes.InspectResponse{ID: idNew, RepoDigests: []string{refNew}}, refNew, "example.com/app:latest")
	rt.addContainer("web", "example.com/app:latest", idNew, nil)

	l := seededLedger(t,
		ledger.Record{Time: when(0), Name: "web", Image: "example.com/app:latest", Identity: refOld, Action: ledger.ActionUpdate},
		ledger.Record{Time: when(time.Hour), Name: "web", Image: "example.com/app:latest", Identity: refNew, Action: ledger.ActionUpdate},
	)
	before, err := os.ReadFile(l.Path())
	if err != nil {
		t.Fatal(err)
	}

	// Candidates are newest first, so the older version is entry 2.
	sel, out := newSelector(rt, l, "2\n")
	res, err := sel.Run(context.Background(), "web")
	if err != nil {
		t.Fatal(err)
	}

	if res.Action != ledger.ActionRollbackSuccess {
		t.Fatalf("action = %q (err %v), want %q", res.Action, res.Err, ledger.ActionRollbackSuccess)
	}
	if string(res.Identity) != refOld {
		t.Errorf("identity = %q, want %q", res.Identity, refOld)
	}
	if len(rt.created) != 1 || rt.created[0].Image != refOld {
		t.Fatalf("created = %+v, want the prior version pinned by digest", rt.created)
	}
	if !strings.Contains(out.String(), "Previous versions of web") {
		t.Errorf("menu output missing header: %q", out.String())
	}

	// The rollback is itself history: appended, never rewritten.
	after, err := os.ReadFile(l.Path())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(after), string(before)) {
		t.Fatal("rollback rewrote existing ledger bytes")
	}
	recs, err := l.Query("web", []ledger.Action{ledger.ActionRollbackSuccess}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || string(recs[0].Identity) != refOld {
		t.Fatalf("rollback records = %+v, want one pointing at the prior version", recs)
	}
}

func TestRunSkipsWhenAlreadyAtTarget(t *testing.T) {
	rt := newFakeRuntime()
	rt.addImage(imagetypes.InspectResponse{ID: idNew, RepoDigests: []string{refNew}}, refNew, "example.com/app:latest")
	rt.addContainer("web", "example.com/app:latest", idNew, nil)

	l := seededLedger(t,
		ledger.Record{Time: when(0), Name: "web", Image: "example.com/app:latest", Identity: refNew, Action: ledger.ActionUpdate},
	)

	sel, _ := newSelector(rt, l, "1\n")
	res, err := sel.Run(context.Background(), "web")
	if err != nil {
		t.Fatal(err)
	}
	if res.Action != ledger.ActionSkipPinned {
		t.Fatalf("action = %q, want %q", res.Action, ledger.ActionSkipPinned)
	}
	if n := rt.destructiveCalls(); n != 0 {
		t.Fatalf("destructive calls = %d, want 0", n)
	}
}

func TestRunNoCandidates(t *testing.T) {
	rt := newFakeRuntime()
	rt.addContainer("web", "example.com/app:latest", idNew, nil)
	l := seededLedger(t)

	sel, _ := newSelector(rt, l, "1\n")
	if _, err := sel.Run(context.Background(), "web"); !errors.Is(err, ErrNoCandidates) {
		t.Fatalf("err = %v, want %v", err, ErrNoCandidates)
	}
}

func TestRunFiltersPlaceholderIdentities(t *testing.T) {
	rt := newFakeRuntime()
	rt.addContainer("web", "example.com/app:latest", idNew, nil)
	l := seededLedger(t,
		// Identity "" is stored as the placeholder; it pins nothing and
		// must never be offered.
		ledger.Record{Time: when(0), Name: "web", Image: "example.com/app:latest", Identity: "", Action: ledger.ActionUpdate},
	)

	sel, _ := newSelector(rt, l, "1\n")
	if _, err := sel.Run(context.Background(), "web"); !errors.Is(err, ErrNoCandidates) {
		t.Fatalf("err = %v, want %v", err, ErrNoCandidates)
	}
}

func TestRunRejectsBadSelection(t *testing.T) {
	seed := func() (*fakeRuntime, *ledger.Ledger) {
		rt := newFakeRuntime()
		rt.addImage(imagetypes.InspectResponse{ID: idNew, RepoDigests: []string{refNew}}, refNew, "example.com/app:latest")
		rt.addContainer("web", "example.com/app:latest", idNew, nil)
		l := seededLedger(t,
			ledger.Record{Time: when(0), Name: "web", Image: "example.com/app:latest", Identity: refOld, Action: ledger.ActionUpdate},
			ledger.Record{Time: when(time.Hour), Name: "web", Image: "example.com/app:latest", Identity: refNew, Action: ledger.ActionUpdate},
		)
		return rt, l
	}

	for _, input := range []string{"zap\n", "0\n", "3\n", "-1\n", ""} {
		t.Run(fmt.Sprintf("input %q", strings.TrimSpace(input)), func(t *testing.T) {
			rt, l := seed()
			before, err := os.ReadFile(l.Path())
			if err != nil {
				t.Fatal(err)
			}

			sel, _ := newSelector(rt, l, input)
			if _, err := sel.Run(context.Background(), "web"); !errors.Is(err, ErrBadSelection) {
				t.Fatalf("err = %v, want %v", err, ErrBadSelection)
			}
			if n := rt.destructiveCalls(); n != 0 {
				t.Fatalf("destructive calls = %d, want 0", n)
			}
			after, err := os.ReadFile(l.Path())
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(before, after) {
				t.Fatal("rejected selection touched the ledger")
			}
		})
	}
}

func TestRunFindsRecordsUnderServiceName(t *testing.T) {
	rt := newFakeRuntime()
	rt.addImage(imagetypes.InspectResponse{ID: idOld, RepoDigests: []string{refOld}}, refOld)
	rt.addImage(imagetypes.InspectResponse{ID: idNew, RepoDigests: []string{refNew}}, refNew, "example.com/app:2.0")
	rt.addContainer("demo-web-1", "example.com/app:2.0", idNew, map[string]string{
		container.LabelComposeProject:     "demo",
		container.LabelComposeService:     "web",
		container.LabelComposeConfigFiles: "/gone/compose.yaml",
		container.LabelComposeWorkingDir:  "/gone",
	})

	// Compose-path updates file records under the service name; rollback by
	// container name must still find them.
	l := seededLedger(t,
		ledger.Record{Time: when(0), Name: "web", Image: "example.com/app:1.0", Identity: refOld, Action: ledger.ActionUpdate},
	)

	sel, _ := newSelector(rt, l, "1\n")
	res, err := sel.Run(context.Background(), "demo-web-1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Action != ledger.ActionRollbackSuccess {
		t.Fatalf("action = %q (err %v), want %q", res.Action, res.Err, ledger.ActionRollbackSuccess)
	}
	if len(rt.created) != 1 || rt.created[0].Image != refOld {
		t.Fatalf("created = %+v, want the prior version", rt.created)
	}
}

func TestShortIdentity(t *testing.T) {
	tests := []struct{ in, want string }{
		{refOld, "sha256:aaaaaaaaaaaa"},
		{idOld, "sha256:111111111111"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := shortIdentity(tt.in); got != tt.want {
			t.Errorf("shortIdentity(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func when(offset time.Duration) time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).Add(offset)
}
