package provision

import (
	"context"
	"log/slog"

	"github.com/systemstart/launchpad/pkg/gateway"
	"github.com/systemstart/launchpad/pkg/logging"
	"github.com/systemstart/launchpad/pkg/s3check"
)

// BucketChecker verifies a bucket is reachable.
type BucketChecker interface {
	CheckBucket(ctx context.Context, t s3check.Target) error
}

// StorageProvisioner creates the app's object storage bucket. The bucket
// credentials are part of the create response.
type StorageProvisioner struct {
	gw      gateway.AddOns
	public  bool
	checker BucketChecker
	rec     Recorder
	logger  *slog.Logger
}

// NewStorage creates a provisioner. checker may be nil, in which case Verify
// is a no-op.
func NewStorage(gw gateway.AddOns, public bool, checker BucketChecker, rec Recorder) *StorageProvisioner {
	if rec == nil {
		rec = NopRecorder{}
	}
	return &StorageProvisioner{
		gw:      gw,
		public:  public,
		checker: checker,
		rec:     rec,
		logger:  logging.Component("provision").With("kind", Storage),
	}
}

func (p *StorageProvisioner) Provision(ctx context.Context, req Request) (gateway.Bucket, error) {
	name := ResourceName(req.App, Storage)
	p.logger.Info("creating storage bucket", "name", name, "public", p.public)

	b, err := p.gw.CreateStorage(ctx, gateway.CreateStorageInput{
		Name:    name,
		OrgSlug: req.OrgSlug,
		AppName: req.App,
		Public:  p.public,
	})
	if err != nil {
		if gateway.Created(err) {
			record(ctx, p.rec, Resource{Kind: Storage, Name: name, App: req.App})
		}
		return gateway.Bucket{}, &Error{Kind: Storage, Phase: PhaseCreate, Resource: name, Err: err}
	}
	record(ctx, p.rec, Resource{Kind: Storage, Name: name, App: req.App})
	return b, nil
}

// Verify checks the bucket with its own credentials.
func (p *StorageProvisioner) Verify(ctx context.Context, b gateway.Bucket) error {
	if p.checker == nil {
		return nil
	}
	err := p.checker.CheckBucket(ctx, s3check.Target{
		Bucket:          b.Name,
		Endpoint:        b.Endpoint,
		Region:          b.Region,
		AccessKeyID:     b.AccessKeyID,
		SecretAccessKey: b.SecretAccessKey,
	})
	if err != nil {
		return &Error{Kind: Storage, Phase: PhaseVerify, Resource: b.Name, Err: err}
	}
	p.logger.Info("storage bucket reachable", "name", b.Name)
	return nil
}
