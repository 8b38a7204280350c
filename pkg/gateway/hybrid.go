package gateway

import (
	"context"
	"io"
)

// Hybrid sends app, secret and add-on operations to Typed and everything
// else to Command. With a nil Typed every operation goes to Command.
type Hybrid struct {
	Typed   Typed
	Command Gateway
}

var _ Gateway = (*Hybrid)(nil)

func (h *Hybrid) typed() Typed {
	if h.Typed != nil {
		return h.Typed
	}
	return h.Command
}

func (h *Hybrid) Viewer(ctx context.Context) (Identity, error) {
	return h.typed().Viewer(ctx)
}

func (h *Hybrid) Organizations(ctx context.Context) ([]Organization, error) {
	return h.typed().Organizations(ctx)
}

func (h *Hybrid) CreateApp(ctx context.Context, in CreateAppInput) (App, error) {
	return h.typed().CreateApp(ctx, in)
}

func (h *Hybrid) App(ctx context.Context, name string) (App, error) {
	return h.typed().App(ctx, name)
}

func (h *Hybrid) SetSecrets(ctx context.Context, app string, secrets []Secret) error {
	return h.typed().SetSecrets(ctx, app, secrets)
}

func (h *Hybrid) CreateCache(ctx context.Context, in CreateCacheInput) (Cache, error) {
	return h.typed().CreateCache(ctx, in)
}

func (h *Hybrid) CreateStorage(ctx context.Context, in CreateStorageInput) (Bucket, error) {
	return h.typed().CreateStorage(ctx, in)
}

func (h *Hybrid) CreateDatabase(ctx context.Context, in CreateDatabaseInput) (Database, error) {
	return h.Command.CreateDatabase(ctx, in)
}

func (h *Hybrid) DatabaseStatus(ctx context.Context, name string) (ClusterStatus, error) {
	return h.Command.DatabaseStatus(ctx, name)
}

func (h *Hybrid) DatabaseExists(ctx context.Context, name string) (bool, error) {
	return h.Command.DatabaseExists(ctx, name)
}

func (h *Hybrid) AttachDatabase(ctx context.Context, in AttachDatabaseInput) (Attachment, error) {
	return h.Command.AttachDatabase(ctx, in)
}

func (h *Hybrid) StreamLogs(ctx context.Context, app string, w io.Writer, follow bool) error {
	return h.Command.StreamLogs(ctx, app, w, follow)
}
