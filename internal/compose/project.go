package compose

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	composetypes "github.com/compose-spec/compose-go/v2/types"
)

// Project is a loaded compose file plus the location it was loaded from.
type Project struct {
	ConfigPath string
	WorkingDir string

	proj *composetypes.Project
}

// Load parses the compose file at path. projectName overrides the project
// name; when empty the name is derived from the file's directory, matching
// compose's own default.
func Load(ctx context.Context, path, projectName string) (*Project, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve compose file path %q: %w", path, err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read compose file: %w", err)
	}

	workingDir := filepath.Dir(abs)
	name := strings.TrimSpace(projectName)
	if name == "" {
		name = loader.NormalizeProjectName(filepath.Base(workingDir))
	}

	details := composetypes.ConfigDetails{
		WorkingDir: workingDir,
		ConfigFiles: []composetypes.ConfigFile{
			{Filename: abs, Content: data},
		},
	}
	proj, err := loader.LoadWithContext(ctx, details, func(o *loader.Options) {
		o.SetProjectName(name, true)
	})
	if err != nil {
		return nil, fmt.Errorf("parse compose file: %w", err)
	}
	if len(proj.Services) == 0 {
		return nil, fmt.Errorf("compose file %s declares no services", abs)
	}

	return &Project{ConfigPath: abs, WorkingDir: workingDir, proj: proj}, nil
}

// LoadContext loads the project that owns a managed container.
func LoadContext(ctx context.Context, mc Context) (*Project, error) {
	p, err := Load(ctx, mc.ConfigPath, mc.Project)
	if err != nil {
		return nil, err
	}
	if _, ok := p.proj.Services[mc.Service]; !ok {
		return nil, fmt.Errorf("service %q not declared in %s", mc.Service, mc.ConfigPath)
	}
	return p, nil
}

// Name returns the compose project name.
func (p *Project) Name() string { return p.proj.Name }

// ServiceNames returns the declared service names, sorted.
func (p *Project) ServiceNames() []string {
	names := make([]string, 0, len(p.proj.Services))
	for name := range p.proj.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Service returns one declared service.
func (p *Project) Service(name string) (composetypes.ServiceConfig, error) {
	svc, ok := p.proj.Services[name]
	if !ok {
		return composetypes.ServiceConfig{}, fmt.Errorf("service %q not declared in %s", name, p.ConfigPath)
	}
	return svc, nil
}

// ContainerName returns the container name a service instance runs under:
// the declared container_name, or the compose default of
// <project>-<service>-1.
func (p *Project) ContainerName(service string) string {
	if svc, ok := p.proj.Services[service]; ok && svc.ContainerName != "" {
		return svc.ContainerName
	}
	return fmt.Sprintf("%s-%s-1", p.proj.Name, service)
}
