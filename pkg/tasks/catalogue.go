// Package tasks provides the concrete pipeline tasks of a deployment.
package tasks

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/systemstart/launchpad/pkg/api"
	"github.com/systemstart/launchpad/pkg/deploy"
	"github.com/systemstart/launchpad/pkg/gateway"
	"github.com/systemstart/launchpad/pkg/pipeline"
	"github.com/systemstart/launchpad/pkg/poll"
	"github.com/systemstart/launchpad/pkg/provision"
	"github.com/systemstart/launchpad/pkg/source"
)

// SecretSource produces the deployment's generated secret.
type SecretSource func() (string, error)

// RandomSecret returns 32 random bytes, hex encoded.
func RandomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Cloner fetches a template repository into a directory.
type Cloner interface {
	Clone(ctx context.Context, dir string, opts source.Options) (source.Result, error)
}

// Deps are the collaborators tasks delegate to. Gateway is required; the
// rest have defaults.
type Deps struct {
	Gateway       gateway.Gateway
	Recorder      provision.Recorder
	Secret        SecretSource
	Cloner        Cloner
	BucketChecker provision.BucketChecker

	// Poll, when set, replaces the polling options derived from the manifest.
	Poll *poll.Options
}

// Catalogue builds tasks by name.
type Catalogue struct {
	deps     Deps
	manifest *api.Manifest
	database *provision.DatabaseProvisioner
	cache    *provision.CacheProvisioner
	storage  *provision.StorageProvisioner
}

// New creates a catalogue for m.
func New(deps Deps, m *api.Manifest) *Catalogue {
	if deps.Recorder == nil {
		deps.Recorder = provision.NopRecorder{}
	}
	if deps.Secret == nil {
		deps.Secret = RandomSecret
	}
	if deps.Cloner == nil {
		deps.Cloner = source.NewCloner()
	}

	pollOpts := PollOptions(m.Polling)
	if deps.Poll != nil {
		pollOpts = *deps.Poll
	}

	return &Catalogue{
		deps:     deps,
		manifest: m,
		database: provision.NewDatabase(deps.Gateway, provision.DatabaseOptions{
			Plan:          DatabasePlan(m.Database),
			Poll:          pollOpts,
			Recorder:      deps.Recorder,
			DatabaseName:  m.Database.DatabaseName,
			VariableName:  m.Database.VariableName,
			CheckExisting: !m.Database.SkipExistsCheck,
		}),
		cache: provision.NewCache(deps.Gateway, gateway.CachePlan{
			Plan:     m.Cache.Plan,
			Eviction: m.Cache.Eviction,
			Replicas: m.Cache.Replicas,
		}, deps.Recorder),
		storage: provision.NewStorage(deps.Gateway, m.Storage.Public, deps.BucketChecker, deps.Recorder),
	}
}

// DatabasePlan fills unset plan values from provision.DefaultDatabasePlan.
func DatabasePlan(cfg api.DatabaseConfig) gateway.DatabasePlan {
	plan := provision.DefaultDatabasePlan
	if cfg.VMSize != "" {
		plan.VMSize = cfg.VMSize
	}
	if cfg.VolumeSizeGB > 0 {
		plan.VolumeSizeGB = cfg.VolumeSizeGB
	}
	if cfg.ClusterSize > 0 {
		plan.ClusterSize = cfg.ClusterSize
	}
	return plan
}

// PollOptions fills unset polling values from poll.DefaultOptions.
func PollOptions(cfg api.PollingConfig) poll.Options {
	opts := poll.DefaultOptions()
	if cfg.MaxAttempts > 0 {
		opts.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.Interval > 0 {
		opts.Interval = cfg.Interval
	}
	if cfg.SettleDelay > 0 {
		opts.SettleDelay = cfg.SettleDelay
	}
	return opts
}

// Task returns the task registered under name.
func (c *Catalogue) Task(name string) (pipeline.Task, error) {
	var action pipeline.Action
	switch name {
	case api.TaskCloneSource:
		action = c.cloneSource
	case api.TaskGenerateSecret:
		action = c.generateSecret
	case api.TaskCreateApp:
		action = c.createApp
	case api.TaskCreateCache:
		action = c.createCache
	case api.TaskCreateStorage:
		action = c.createStorage
	case api.TaskVerifyStorage:
		action = c.verifyStorage
	case api.TaskCreateDatabase:
		action = c.createDatabase
	case api.TaskAttachDatabase:
		action = c.attachDatabase
	case api.TaskSetSecrets:
		action = c.setSecrets
	case api.TaskWriteAppConfig:
		action = c.writeAppConfig
	case api.TaskRenderTemplates:
		action = c.renderTemplates
	default:
		return pipeline.Task{}, fmt.Errorf("unknown task: %s", name)
	}
	return pipeline.Task{Title: name, Action: action}, nil
}

// Build returns the tasks for names in order.
func (c *Catalogue) Build(names []string) ([]pipeline.Task, error) {
	out := make([]pipeline.Task, 0, len(names))
	for _, name := range names {
		t, err := c.Task(name)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func provisionRequest(dc *deploy.Context) provision.Request {
	return provision.Request{App: dc.AppName, OrgSlug: dc.OrgSlug, Region: dc.Region}
}

