// Package compose handles declaratively managed targets: detecting compose
// ownership of a running container and loading the owning project so that
// services can be recreated from their declaration.
package compose

import (
	"path/filepath"
	"strings"

	"updock/internal/container"
)

// Context identifies compose ownership of a container: which config file
// declares it, where that file is anchored, and which service it is.
type Context struct {
	ConfigPath string
	WorkingDir string
	Service    string

	// Project is the compose project name. It is carried along when the
	// ownership labels provide it but is not required for detection; an
	// empty value falls back to the working directory name on load.
	Project string
}

// DetectContext reads compose ownership out of a container's labels. It
// returns nil unless config path, working directory, and service name are
// all present: a container missing any of the three is standalone. A
// relative config path is resolved against the working directory.
func DetectContext(labels map[string]string) *Context {
	if len(labels) == 0 {
		return nil
	}

	configFiles := strings.TrimSpace(labels[container.LabelComposeConfigFiles])
	workingDir := strings.TrimSpace(labels[container.LabelComposeWorkingDir])
	service := strings.TrimSpace(labels[container.LabelComposeService])
	if configFiles == "" || workingDir == "" || service == "" {
		return nil
	}

	// Multiple layered config files are recorded comma-separated; the
	// first one is the base declaration.
	configPath, _, _ := strings.Cut(configFiles, ",")
	configPath = strings.TrimSpace(configPath)
	if configPath == "" {
		return nil
	}
	if !filepath.IsAbs(configPath) {
		configPath = filepath.Join(workingDir, configPath)
	}

	return &Context{
		ConfigPath: configPath,
		WorkingDir: workingDir,
		Service:    service,
		Project:    strings.TrimSpace(labels[container.LabelComposeProject]),
	}
}
