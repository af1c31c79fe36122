package compose

import (
	"testing"

	"updock/internal/container"
)

func TestDetectContext(t *testing.T) {
	full := func() map[string]string {
		return map[string]string{
			container.LabelComposeProject:     "demo",
			container.LabelComposeService:     "web",
			container.LabelComposeConfigFiles: "/srv/demo/compose.yaml",
			container.LabelComposeWorkingDir:  "/srv/demo",
		}
	}

	t.Run("managed", func(t *testing.T) {
		mc := DetectContext(full())
		if mc == nil {
			t.Fatal("want a context for fully labelled container")
		}
		if mc.ConfigPath != "/srv/demo/compose.yaml" || mc.Service != "web" || mc.Project != "demo" {
			t.Fatalf("context = %+v", mc)
		}
	})

	t.Run("nil labels", func(t *testing.T) {
		if mc := DetectContext(nil); mc != nil {
			t.Fatalf("context = %+v, want nil", mc)
		}
	})

	t.Run("any missing label means standalone", func(t *testing.T) {
		for _, label := range []string{
			container.LabelComposeService,
			container.LabelComposeConfigFiles,
			container.LabelComposeWorkingDir,
		} {
			labels := full()
			delete(labels, label)
			if mc := DetectContext(labels); mc != nil {
				t.Errorf("without %s: context = %+v, want nil", label, mc)
			}
		}
	})

	t.Run("missing project name is tolerated", func(t *testing.T) {
		labels := full()
		delete(labels, container.LabelComposeProject)
		mc := DetectContext(labels)
		if mc == nil {
			t.Fatal("want a context without the project label")
		}
		if mc.Project != "" {
			t.Fatalf("project = %q, want empty", mc.Project)
		}
	})

	t.Run("first of layered config files", func(t *testing.T) {
		labels := full()
		labels[container.LabelComposeConfigFiles] = "/srv/demo/compose.yaml,/srv/demo/compose.override.yaml"
		mc := DetectContext(labels)
		if mc == nil || mc.ConfigPath != "/srv/demo/compose.yaml" {
			t.Fatalf("context = %+v, want the base config file", mc)
		}
	})

	t.Run("relative path anchored to working dir", func(t *testing.T) {
		labels := full()
		labels[container.LabelComposeConfigFiles] = "compose.yaml"
		mc := DetectContext(labels)
		if mc == nil || mc.ConfigPath != "/srv/demo/compose.yaml" {
			t.Fatalf("context = %+v, want the anchored path", mc)
		}
	})
}
