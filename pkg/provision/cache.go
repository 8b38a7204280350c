package provision

import (
	"context"
	"log/slog"

	"github.com/systemstart/launchpad/pkg/gateway"
	"github.com/systemstart/launchpad/pkg/logging"
)

// CacheProvisioner creates the app's Redis add-on. Creation is synchronous
// and the returned URL is final.
type CacheProvisioner struct {
	gw     gateway.AddOns
	plan   gateway.CachePlan
	rec    Recorder
	logger *slog.Logger
}

func NewCache(gw gateway.AddOns, plan gateway.CachePlan, rec Recorder) *CacheProvisioner {
	if rec == nil {
		rec = NopRecorder{}
	}
	return &CacheProvisioner{
		gw:     gw,
		plan:   plan,
		rec:    rec,
		logger: logging.Component("provision").With("kind", Cache),
	}
}

func (p *CacheProvisioner) Provision(ctx context.Context, req Request) (gateway.Cache, error) {
	name := ResourceName(req.App, Cache)
	p.logger.Info("creating cache", "name", name, "region", req.Region)

	c, err := p.gw.CreateCache(ctx, gateway.CreateCacheInput{
		Name:    name,
		OrgSlug: req.OrgSlug,
		Region:  req.Region,
		AppName: req.App,
		Plan:    p.plan,
	})
	if err != nil {
		if gateway.Created(err) {
			record(ctx, p.rec, Resource{Kind: Cache, Name: name, App: req.App})
		}
		return gateway.Cache{}, &Error{Kind: Cache, Phase: PhaseCreate, Resource: name, Err: err}
	}
	record(ctx, p.rec, Resource{Kind: Cache, Name: name, App: req.App})
	return c, nil
}
