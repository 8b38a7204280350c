package api

import (
	"fmt"

	"github.com/systemstart/launchpad/pkg/deploy"
)

// EnvironmentNames lists the declared environments in manifest order.
func (m *Manifest) EnvironmentNames() []string {
	names := make([]string, 0, len(m.Environments))
	for _, env := range m.Environments {
		names = append(names, env.Name)
	}
	return names
}

// ForEnvironment returns a copy of the manifest with the named environment
// applied. The deployment and app names get the environment suffix, so
// every environment owns its own set of resources. An empty name returns
// the manifest unchanged.
func (m *Manifest) ForEnvironment(name string) (*Manifest, error) {
	if name == "" {
		return m, nil
	}

	var env *Environment
	for i := range m.Environments {
		if m.Environments[i].Name == name {
			env = &m.Environments[i]
			break
		}
	}
	if env == nil {
		return nil, fmt.Errorf("environment %q not declared (have %v)", name, m.EnvironmentNames())
	}

	out := *m
	suffix := env.AppSuffix
	if suffix == "" {
		suffix = "-" + env.Name
	}
	out.Name = m.Name + "-" + env.Name
	out.App = m.App + suffix
	if env.Org != "" {
		out.Org = env.Org
	}
	if env.Region != "" {
		out.Region = env.Region
	}
	out.Secrets = deploy.MergeSecrets(m.Secrets, env.Secrets)
	out.Environments = nil

	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("environment %q: %w", name, err)
	}
	return &out, nil
}

// Seed converts the manifest into the seed of a deployment context.
func (m *Manifest) Seed() deploy.Seed {
	return deploy.Seed{
		Name:        m.Name,
		WorkDir:     m.WorkDir,
		AppName:     m.App,
		OrgSlug:     m.Org,
		Region:      m.Region,
		Owner:       m.Owner,
		RPCEndpoint: m.RPCEndpoint,
		Secrets:     m.Secrets,
	}
}
