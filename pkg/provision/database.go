package provision

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/systemstart/launchpad/pkg/gateway"
	"github.com/systemstart/launchpad/pkg/logging"
	"github.com/systemstart/launchpad/pkg/poll"
)

// DefaultDatabasePlan is the smallest single-node cluster.
var DefaultDatabasePlan = gateway.DatabasePlan{
	VMSize:       "shared-cpu-1x",
	VolumeSizeGB: 1,
	ClusterSize:  1,
}

// DatabaseOptions configures a DatabaseProvisioner. Zero values fall back
// to DefaultDatabasePlan, poll.DefaultOptions and NopRecorder.
type DatabaseOptions struct {
	Plan         gateway.DatabasePlan
	Poll         poll.Options
	Recorder     Recorder
	DatabaseName string
	VariableName string

	// CheckExisting makes Create fail with gateway.ErrAlreadyExists, before
	// anything is created, when the cluster is already there.
	CheckExisting bool
}

// DatabaseProvisioner creates a Postgres cluster, waits for it and attaches
// it to the application.
type DatabaseProvisioner struct {
	gw     gateway.Databases
	opts   DatabaseOptions
	logger *slog.Logger
}

// DatabaseResult is what a fully provisioned database yields.
type DatabaseResult struct {
	Cluster string
	URL     string
	State   poll.ResourceState
}

func NewDatabase(gw gateway.Databases, opts DatabaseOptions) *DatabaseProvisioner {
	if opts.Plan == (gateway.DatabasePlan{}) {
		opts.Plan = DefaultDatabasePlan
	}
	if opts.Poll == (poll.Options{}) {
		opts.Poll = poll.DefaultOptions()
	}
	if opts.Recorder == nil {
		opts.Recorder = NopRecorder{}
	}
	return &DatabaseProvisioner{
		gw:     gw,
		opts:   opts,
		logger: logging.Component("provision").With("kind", Database),
	}
}

// Exists reports whether the app's cluster already exists.
func (p *DatabaseProvisioner) Exists(ctx context.Context, app string) (bool, error) {
	name := ResourceName(app, Database)
	ok, err := p.gw.DatabaseExists(ctx, name)
	if err != nil {
		return false, &Error{Kind: Database, Phase: PhaseCreate, Resource: name, Err: err}
	}
	return ok, nil
}

// Create issues the cluster create. The cluster is not usable until
// AwaitReady returns.
func (p *DatabaseProvisioner) Create(ctx context.Context, req Request) (gateway.Database, error) {
	name := ResourceName(req.App, Database)
	if p.opts.CheckExisting {
		exists, err := p.Exists(ctx, req.App)
		if err != nil {
			return gateway.Database{}, err
		}
		if exists {
			return gateway.Database{}, &Error{
				Kind:     Database,
				Phase:    PhaseCreate,
				Resource: name,
				Err:      fmt.Errorf("cluster is already provisioned: %w", gateway.ErrAlreadyExists),
			}
		}
	}
	p.logger.Info("creating database cluster", "name", name, "region", req.Region, "vmSize", p.opts.Plan.VMSize)

	db, err := p.gw.CreateDatabase(ctx, gateway.CreateDatabaseInput{
		Name:    name,
		OrgSlug: req.OrgSlug,
		Region:  req.Region,
		Plan:    p.opts.Plan,
	})
	if err != nil {
		if gateway.Created(err) {
			record(ctx, p.opts.Recorder, Resource{Kind: Database, Name: name, App: req.App})
		}
		return gateway.Database{}, &Error{Kind: Database, Phase: PhaseCreate, Resource: name, Err: err}
	}
	record(ctx, p.opts.Recorder, Resource{Kind: Database, Name: name, App: req.App})
	if db.Name == "" {
		db.Name = name
	}
	return db, nil
}

// AwaitReady polls the cluster until it is running. A timeout means the
// cluster may still come up later.
func (p *DatabaseProvisioner) AwaitReady(ctx context.Context, cluster string) (poll.ResourceState, error) {
	p.logger.Info("waiting for database cluster", "name", cluster, "maxAttempts", p.opts.Poll.MaxAttempts)

	fetch := func(ctx context.Context) (gateway.ClusterStatus, error) {
		return p.gw.DatabaseStatus(ctx, cluster)
	}
	st, err := poll.Until(ctx, fetch, interpretCluster, p.opts.Poll)
	if err != nil {
		return st, &Error{Kind: Database, Phase: PhaseAwait, Resource: cluster, Err: err}
	}
	return st, nil
}

func interpretCluster(cs gateway.ClusterStatus) poll.ResourceState {
	st := poll.ResourceState{ID: cs.Name, Raw: cs.Detail, Status: poll.Provisioning}
	switch cs.Phase {
	case gateway.PhaseRunning:
		st.Status = poll.Ready
	case gateway.PhaseFailed:
		st.Status = poll.Failed
	}
	return st
}

// Attach binds cluster to the app and returns the connection URL.
func (p *DatabaseProvisioner) Attach(ctx context.Context, req Request, cluster string) (string, error) {
	p.logger.Info("attaching database cluster", "name", cluster, "app", req.App)

	att, err := p.gw.AttachDatabase(ctx, gateway.AttachDatabaseInput{
		Cluster:      cluster,
		App:          req.App,
		DatabaseName: p.opts.DatabaseName,
		VariableName: p.opts.VariableName,
	})
	if err != nil {
		return "", &Error{Kind: Database, Phase: PhaseAttach, Resource: cluster, Err: err}
	}
	return att.URL, nil
}

// Provision runs create, await and attach.
func (p *DatabaseProvisioner) Provision(ctx context.Context, req Request) (DatabaseResult, error) {
	db, err := p.Create(ctx, req)
	if err != nil {
		return DatabaseResult{}, err
	}
	st, err := p.AwaitReady(ctx, db.Name)
	if err != nil {
		return DatabaseResult{Cluster: db.Name, State: st}, err
	}
	url, err := p.Attach(ctx, req, db.Name)
	if err != nil {
		return DatabaseResult{Cluster: db.Name, State: st}, err
	}
	return DatabaseResult{Cluster: db.Name, URL: url, State: st}, nil
}
