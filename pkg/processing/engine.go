// Package processing drives one deployment from manifest to written
// output.
package processing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/systemstart/launchpad/pkg/api"
	"github.com/systemstart/launchpad/pkg/deploy"
	"github.com/systemstart/launchpad/pkg/gateway"
	"github.com/systemstart/launchpad/pkg/output"
	"github.com/systemstart/launchpad/pkg/pipeline"
	"github.com/systemstart/launchpad/pkg/state"
	"github.com/systemstart/launchpad/pkg/tasks"
)

// Options configures Deploy.
type Options struct {
	ManifestFile string
	Environment  string
	ContextFile  string
	// OutputDir receives deployment.yaml and .env. Empty skips writing.
	OutputDir string

	Gateway gateway.Gateway
	// Ledger is optional; without it runs and resources are not recorded.
	Ledger *state.Ledger
	// Tasks carries task collaborators. Gateway and Recorder are filled in
	// by Deploy.
	Tasks tasks.Deps
}

// Result describes a finished or failed run.
type Result struct {
	RunID     string
	Context   *deploy.Context
	OutputDir string
}

// LoadDeployment loads the manifest, selects the environment and overlays
// the optional context file.
func LoadDeployment(manifestFile, environment, contextFile string) (*api.Manifest, deploy.Seed, error) {
	m, err := api.LoadManifest(manifestFile)
	if err != nil {
		return nil, deploy.Seed{}, err
	}
	m, err = m.ForEnvironment(environment)
	if err != nil {
		return nil, deploy.Seed{}, err
	}

	seed := m.Seed()
	if contextFile != "" {
		sf, err := deploy.LoadSeedFile(contextFile)
		if err != nil {
			return nil, deploy.Seed{}, err
		}
		seed = sf.Apply(seed)
	}
	return m, seed, nil
}

// Deploy loads the deployment described by opts and runs it.
func Deploy(ctx context.Context, opts Options) (*Result, error) {
	m, seed, err := LoadDeployment(opts.ManifestFile, opts.Environment, opts.ContextFile)
	if err != nil {
		return nil, err
	}
	return Run(ctx, m, seed, opts)
}

// Run executes the manifest's pipeline for seed. The returned Result is
// non-nil whenever the pipeline started, so callers can report what was
// provisioned before a failure.
func Run(ctx context.Context, m *api.Manifest, seed deploy.Seed, opts Options) (*Result, error) {
	deps := opts.Tasks
	deps.Gateway = opts.Gateway
	observer := pipeline.LogObserver()
	res := &Result{}

	if opts.Ledger != nil {
		warnConcurrentRuns(ctx, opts.Ledger, m.Name)

		run, err := opts.Ledger.StartRun(ctx, m.Name, seed.AppName)
		if err != nil {
			return nil, fmt.Errorf("starting run: %w", err)
		}
		res.RunID = run.ID
		deps.Recorder = opts.Ledger.Recorder(run.ID)
		observer = pipeline.Tee(observer, opts.Ledger.Observer(run.ID))
	}

	taskList, err := tasks.New(deps, m).Build(m.Pipeline)
	if err != nil {
		finishRun(ctx, opts.Ledger, res.RunID, err)
		return res, fmt.Errorf("building pipeline: %w", err)
	}

	slog.Info("executing deployment", "name", m.Name, "app", seed.AppName, "tasks", len(taskList), "run", res.RunID)
	dc, runErr := pipeline.Run(ctx, taskList, deploy.New(seed), pipeline.WithObserver(observer))
	res.Context = dc
	finishRun(ctx, opts.Ledger, res.RunID, runErr)
	if runErr != nil {
		return res, runErr
	}

	if opts.OutputDir != "" {
		dir, err := output.Write(opts.OutputDir, dc)
		if err != nil {
			return res, err
		}
		res.OutputDir = dir
	}

	slog.Info("deployment succeeded", "name", m.Name, "app", dc.AppName, "hostname", dc.Hostname)
	return res, nil
}

func warnConcurrentRuns(ctx context.Context, l *state.Ledger, name string) {
	running, err := l.RunningRuns(ctx, name)
	if err != nil {
		slog.Warn("failed to check for concurrent runs", "name", name, "error", err)
		return
	}
	for _, r := range running {
		slog.Warn("another run of this deployment has not finished", "name", name, "run", r.ID, "started", r.StartedAt)
	}
}

// finishRun records the outcome even when ctx was cancelled.
func finishRun(ctx context.Context, l *state.Ledger, runID string, runErr error) {
	if l == nil || runID == "" {
		return
	}
	if err := l.FinishRun(context.WithoutCancel(ctx), runID, runErr); err != nil {
		slog.Warn("failed to record run outcome", "run", runID, "error", err)
	}
}
