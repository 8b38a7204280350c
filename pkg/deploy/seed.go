package deploy

import (
	"fmt"
	"maps"
	"os"

	"gopkg.in/yaml.v3"
)

// SeedFile is the optional YAML file passed with -context-file. Values set
// here override the manifest.
type SeedFile struct {
	Owner       string            `yaml:"owner"`
	RPCEndpoint string            `yaml:"rpcEndpoint"`
	Region      string            `yaml:"region"`
	Org         string            `yaml:"org"`
	WorkDir     string            `yaml:"workDir"`
	Secrets     map[string]string `yaml:"secrets"`
}

// LoadSeedFile reads a YAML seed file.
func LoadSeedFile(filename string) (*SeedFile, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading context file: %w", err)
	}

	var sf SeedFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parsing context file: %w", err)
	}

	if sf.Secrets == nil {
		sf.Secrets = make(map[string]string)
	}

	return &sf, nil
}

// Apply overlays non-empty seed file values onto s.
func (sf *SeedFile) Apply(s Seed) Seed {
	if sf == nil {
		return s
	}
	if sf.Owner != "" {
		s.Owner = sf.Owner
	}
	if sf.RPCEndpoint != "" {
		s.RPCEndpoint = sf.RPCEndpoint
	}
	if sf.Region != "" {
		s.Region = sf.Region
	}
	if sf.Org != "" {
		s.OrgSlug = sf.Org
	}
	if sf.WorkDir != "" {
		s.WorkDir = sf.WorkDir
	}
	s.Secrets = MergeSecrets(s.Secrets, sf.Secrets)
	return s
}

// MergeSecrets performs a shallow merge of local over global.
// Local keys override global keys.
func MergeSecrets(global, local map[string]string) map[string]string {
	merged := make(map[string]string, len(global)+len(local))
	maps.Copy(merged, global)
	maps.Copy(merged, local)
	return merged
}
