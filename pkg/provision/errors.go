package provision

import (
	"context"
	"fmt"
	"log/slog"
)

// Phase is a step of the provisioning protocol.
type Phase string

const (
	PhaseCreate Phase = "create"
	PhaseAwait  Phase = "await"
	PhaseAttach Phase = "attach"
	PhaseVerify Phase = "verify"
)

// Error identifies the resource and phase that failed. The wrapped error
// keeps the remote diagnostic text.
type Error struct {
	Kind     Kind
	Phase    Phase
	Resource string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %s failed: %v", e.Kind, e.Resource, e.Phase, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Resource is a remote resource that was created.
type Resource struct {
	Kind Kind
	Name string
	App  string
}

// Recorder is told about every resource right after it was created, so that
// resources orphaned by a later failure can be found again.
type Recorder interface {
	Record(ctx context.Context, r Resource) error
}

// NopRecorder discards records.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, Resource) error { return nil }

// record survives cancellation of ctx: the resource exists either way.
func record(ctx context.Context, rec Recorder, r Resource) {
	if rec == nil {
		return
	}
	if err := rec.Record(context.WithoutCancel(ctx), r); err != nil {
		slog.Warn("failed to record created resource", "kind", r.Kind, "name", r.Name, "error", err)
	}
}

// Request names the application a resource is provisioned for.
type Request struct {
	App     string
	OrgSlug string
	Region  string
}
