// Package gatewaytest provides an in-memory gateway for tests.
package gatewaytest

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/systemstart/launchpad/pkg/gateway"
)

// Fake implements gateway.Gateway. Each operation calls the matching func
// field when set and otherwise succeeds with a plausible result. Calls are
// recorded by operation name.
type Fake struct {
	ViewerFunc         func(ctx context.Context) (gateway.Identity, error)
	OrganizationsFunc  func(ctx context.Context) ([]gateway.Organization, error)
	CreateAppFunc      func(ctx context.Context, in gateway.CreateAppInput) (gateway.App, error)
	AppFunc            func(ctx context.Context, name string) (gateway.App, error)
	SetSecretsFunc     func(ctx context.Context, app string, secrets []gateway.Secret) error
	CreateDatabaseFunc func(ctx context.Context, in gateway.CreateDatabaseInput) (gateway.Database, error)
	DatabaseStatusFunc func(ctx context.Context, name string) (gateway.ClusterStatus, error)
	DatabaseExistsFunc func(ctx context.Context, name string) (bool, error)
	AttachDatabaseFunc func(ctx context.Context, in gateway.AttachDatabaseInput) (gateway.Attachment, error)
	CreateCacheFunc    func(ctx context.Context, in gateway.CreateCacheInput) (gateway.Cache, error)
	CreateStorageFunc  func(ctx context.Context, in gateway.CreateStorageInput) (gateway.Bucket, error)
	StreamLogsFunc     func(ctx context.Context, app string, w io.Writer, follow bool) error

	mu      sync.Mutex
	calls   []string
	secrets map[string]map[string]string
}

var _ gateway.Gateway = (*Fake)(nil)

func (f *Fake) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
}

// Calls returns the operations invoked so far, in order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Count returns how often op was invoked.
func (f *Fake) Count(op string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == op {
			n++
		}
	}
	return n
}

// AppSecrets returns the secrets the default SetSecrets stored for app.
func (f *Fake) AppSecrets(app string) map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.secrets[app]))
	for k, v := range f.secrets[app] {
		out[k] = v
	}
	return out
}

func (f *Fake) Viewer(ctx context.Context) (gateway.Identity, error) {
	f.record("Viewer")
	if f.ViewerFunc != nil {
		return f.ViewerFunc(ctx)
	}
	return gateway.Identity{ID: "user_1", Email: "ops@example.com", PersonalOrganization: gateway.Organization{Slug: "personal"}}, nil
}

func (f *Fake) Organizations(ctx context.Context) ([]gateway.Organization, error) {
	f.record("Organizations")
	if f.OrganizationsFunc != nil {
		return f.OrganizationsFunc(ctx)
	}
	return []gateway.Organization{
		{ID: "org_1", Slug: "personal", Name: "Personal", Type: "PERSONAL"},
		{ID: "org_2", Slug: "acme", Name: "Acme", Type: "SHARED"},
	}, nil
}

func (f *Fake) CreateApp(ctx context.Context, in gateway.CreateAppInput) (gateway.App, error) {
	f.record("CreateApp")
	if f.CreateAppFunc != nil {
		return f.CreateAppFunc(ctx, in)
	}
	return gateway.App{
		ID:           "app_" + in.Name,
		Name:         in.Name,
		Hostname:     in.Name + ".fly.dev",
		Organization: gateway.Organization{Slug: in.OrgSlug},
	}, nil
}

func (f *Fake) App(ctx context.Context, name string) (gateway.App, error) {
	f.record("App")
	if f.AppFunc != nil {
		return f.AppFunc(ctx, name)
	}
	return gateway.App{ID: "app_" + name, Name: name, Hostname: name + ".fly.dev"}, nil
}

// SetSecrets replaces the stored value of every key in the batch.
func (f *Fake) SetSecrets(ctx context.Context, app string, secrets []gateway.Secret) error {
	f.record("SetSecrets")
	if f.SetSecretsFunc != nil {
		return f.SetSecretsFunc(ctx, app, secrets)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.secrets == nil {
		f.secrets = make(map[string]map[string]string)
	}
	if f.secrets[app] == nil {
		f.secrets[app] = make(map[string]string)
	}
	for _, s := range secrets {
		f.secrets[app][s.Key] = s.Value
	}
	return nil
}

func (f *Fake) CreateDatabase(ctx context.Context, in gateway.CreateDatabaseInput) (gateway.Database, error) {
	f.record("CreateDatabase")
	if f.CreateDatabaseFunc != nil {
		return f.CreateDatabaseFunc(ctx, in)
	}
	return gateway.Database{Name: in.Name}, nil
}

func (f *Fake) DatabaseStatus(ctx context.Context, name string) (gateway.ClusterStatus, error) {
	f.record("DatabaseStatus")
	if f.DatabaseStatusFunc != nil {
		return f.DatabaseStatusFunc(ctx, name)
	}
	return gateway.ClusterStatus{Name: name, Phase: gateway.PhaseRunning}, nil
}

func (f *Fake) DatabaseExists(ctx context.Context, name string) (bool, error) {
	f.record("DatabaseExists")
	if f.DatabaseExistsFunc != nil {
		return f.DatabaseExistsFunc(ctx, name)
	}
	return false, nil
}

func (f *Fake) AttachDatabase(ctx context.Context, in gateway.AttachDatabaseInput) (gateway.Attachment, error) {
	f.record("AttachDatabase")
	if f.AttachDatabaseFunc != nil {
		return f.AttachDatabaseFunc(ctx, in)
	}
	return gateway.Attachment{
		VariableName: "DATABASE_URL",
		URL:          fmt.Sprintf("postgres://%s:pw@%s.flycast:5432/%s?sslmode=disable", in.App, in.Cluster, in.App),
	}, nil
}

func (f *Fake) CreateCache(ctx context.Context, in gateway.CreateCacheInput) (gateway.Cache, error) {
	f.record("CreateCache")
	if f.CreateCacheFunc != nil {
		return f.CreateCacheFunc(ctx, in)
	}
	return gateway.Cache{ID: "cache_1", Name: in.Name, URL: fmt.Sprintf("redis://default:pw@fly-%s.upstash.io:6379", in.Name)}, nil
}

func (f *Fake) CreateStorage(ctx context.Context, in gateway.CreateStorageInput) (gateway.Bucket, error) {
	f.record("CreateStorage")
	if f.CreateStorageFunc != nil {
		return f.CreateStorageFunc(ctx, in)
	}
	return gateway.Bucket{
		Name:            in.Name,
		AccessKeyID:     "tid_" + in.Name,
		SecretAccessKey: "tsec_" + in.Name,
		Endpoint:        "https://fly.storage.tigris.dev",
		Region:          "auto",
	}, nil
}

func (f *Fake) StreamLogs(ctx context.Context, app string, w io.Writer, follow bool) error {
	f.record("StreamLogs")
	if f.StreamLogsFunc != nil {
		return f.StreamLogsFunc(ctx, app, w, follow)
	}
	_, err := fmt.Fprintf(w, "%s: no logs\n", app)
	return err
}

// StatusSequence returns a DatabaseStatusFunc that reports Pending for the
// first pending calls and Running afterwards.
func StatusSequence(pending int) func(context.Context, string) (gateway.ClusterStatus, error) {
	var mu sync.Mutex
	n := 0
	return func(_ context.Context, name string) (gateway.ClusterStatus, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		if n <= pending {
			return gateway.ClusterStatus{Name: name, Phase: gateway.PhasePending, Detail: "m1=created"}, nil
		}
		return gateway.ClusterStatus{Name: name, Phase: gateway.PhaseRunning, Detail: "m1=started"}, nil
	}
}
