package api

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/hashicorp/go-multierror"
)

var appNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,61}[a-z0-9]$`)

// IsKnownTask reports whether name is a task the catalogue provides.
func IsKnownTask(name string) bool {
	return slices.Contains(DefaultPipeline, name)
}

// Validate checks the manifest and reports every problem at once.
func (m *Manifest) Validate() error {
	var result *multierror.Error
	add := func(format string, args ...any) {
		result = multierror.Append(result, fmt.Errorf(format, args...))
	}

	if m.Name == "" {
		add("name is required")
	}
	if m.App != "" && !appNamePattern.MatchString(m.App) {
		add("app %q: must be 3-63 lowercase letters, digits or dashes", m.App)
	}

	if len(m.Pipeline) == 0 {
		add("pipeline has no tasks")
	}
	seen := make(map[string]int)
	for i, name := range m.Pipeline {
		if prev, exists := seen[name]; exists {
			add("task %d: duplicate task %q (first listed at task %d)", i, name, prev)
			continue
		}
		seen[name] = i
		if !IsKnownTask(name) {
			add("task %d: unknown task %q (valid: %s)", i, name, strings.Join(DefaultPipeline, ", "))
		}
	}
	if j, ok := seen[TaskAttachDatabase]; ok {
		if i, ok := seen[TaskCreateDatabase]; !ok || i > j {
			add("task %q requires %q earlier in the pipeline", TaskAttachDatabase, TaskCreateDatabase)
		}
	}
	if j, ok := seen[TaskVerifyStorage]; ok {
		if i, ok := seen[TaskCreateStorage]; !ok || i > j {
			add("task %q requires %q earlier in the pipeline", TaskVerifyStorage, TaskCreateStorage)
		}
	}

	if m.Source != nil && (m.Source.URL == "") == (m.Source.Path == "") {
		add("exactly one of source.url and source.path is required when source is set")
	}
	if m.Database.VolumeSizeGB < 0 || m.Database.ClusterSize < 0 {
		add("database sizes must not be negative")
	}
	if m.Polling.MaxAttempts < 0 || m.Polling.Interval < 0 || m.Polling.SettleDelay < 0 {
		add("polling values must not be negative")
	}
	if p := m.AppConfig.InternalPort; p < 0 || p > 65535 {
		add("appConfig.internalPort %d out of range", p)
	}

	envs := make(map[string]bool)
	for i, env := range m.Environments {
		if env.Name == "" {
			add("environment %d: name is required", i)
			continue
		}
		if envs[env.Name] {
			add("environment %q: duplicate name", env.Name)
		}
		envs[env.Name] = true
	}

	return result.ErrorOrNil()
}
