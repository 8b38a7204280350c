package api

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoadManifest reads a launchpad.yaml file, sets Dir/FilePath, applies
// defaults and validates it.
func LoadManifest(filename string) (*Manifest, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading manifest file: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest file: %w", err)
	}

	absPath, err := filepath.Abs(filename)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}
	m.FilePath = absPath
	m.Dir = filepath.Dir(absPath)

	m.applyDefaults()

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("validating manifest %s: %w", filename, err)
	}

	return &m, nil
}

func (m *Manifest) applyDefaults() {
	if m.App == "" {
		m.App = m.Name
	}
	if m.Region == "" {
		m.Region = DefaultRegion
	}
	if m.Org == "" {
		m.Org = "personal"
	}
	if m.WorkDir == "" {
		m.WorkDir = "."
	}
	if !filepath.IsAbs(m.WorkDir) && m.Dir != "" {
		m.WorkDir = filepath.Join(m.Dir, m.WorkDir)
	}
	if m.Source != nil && m.Source.Path != "" && !filepath.IsAbs(m.Source.Path) && m.Dir != "" {
		m.Source.Path = filepath.Join(m.Dir, m.Source.Path)
	}
	if len(m.Pipeline) == 0 {
		m.Pipeline = append([]string(nil), DefaultPipeline...)
	}
	if len(m.Templates.Files.Include) == 0 {
		m.Templates.Files.Include = []string{DefaultTemplateInclude}
	}
	if m.Secrets == nil {
		m.Secrets = make(map[string]string)
	}
}
