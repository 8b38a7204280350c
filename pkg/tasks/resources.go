package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/systemstart/launchpad/pkg/deploy"
	"github.com/systemstart/launchpad/pkg/gateway"
)

func (c *Catalogue) createApp(ctx context.Context, dc *deploy.Context) error {
	if err := dc.Require(deploy.FieldAppName, deploy.FieldOrgSlug); err != nil {
		return err
	}
	if err := c.checkOrganization(ctx, dc.OrgSlug); err != nil {
		return err
	}

	slog.Info("creating app", "app", dc.AppName, "org", dc.OrgSlug)
	app, err := c.deps.Gateway.CreateApp(ctx, gateway.CreateAppInput{
		Name:    dc.AppName,
		OrgSlug: dc.OrgSlug,
	})
	if err != nil {
		return fmt.Errorf("creating app %s: %w", dc.AppName, err)
	}

	if err := dc.SetAppID(app.ID); err != nil {
		return err
	}
	hostname := app.Hostname
	if hostname == "" {
		hostname = dc.AppName + ".fly.dev"
	}
	return dc.SetHostname(hostname)
}

// PersonalOrg is the slug that always names the caller's own organization.
const PersonalOrg = "personal"

// checkOrganization fails unless the authenticated identity can create apps
// in slug.
func (c *Catalogue) checkOrganization(ctx context.Context, slug string) error {
	me, err := c.deps.Gateway.Viewer(ctx)
	if err != nil {
		return fmt.Errorf("resolving identity: %w", err)
	}
	if slug == PersonalOrg || slug == me.PersonalOrganization.Slug {
		slog.Debug("using personal organization", "email", me.Email, "org", slug)
		return nil
	}

	orgs, err := c.deps.Gateway.Organizations(ctx)
	if err != nil {
		return fmt.Errorf("listing organizations: %w", err)
	}
	for _, o := range orgs {
		if o.Slug == slug {
			slog.Debug("organization resolved", "email", me.Email, "org", slug, "id", o.ID)
			return nil
		}
	}
	return fmt.Errorf("organization %q is not available to %s: %w", slug, me.Email, gateway.ErrNotFound)
}

func (c *Catalogue) createCache(ctx context.Context, dc *deploy.Context) error {
	if err := dc.Require(deploy.FieldAppName, deploy.FieldOrgSlug, deploy.FieldRegion); err != nil {
		return err
	}
	cache, err := c.cache.Provision(ctx, provisionRequest(dc))
	if err != nil {
		return err
	}
	return dc.SetCacheURL(cache.URL)
}

func (c *Catalogue) createStorage(ctx context.Context, dc *deploy.Context) error {
	if err := dc.Require(deploy.FieldAppName, deploy.FieldOrgSlug); err != nil {
		return err
	}
	b, err := c.storage.Provision(ctx, provisionRequest(dc))
	if err != nil {
		return err
	}
	if err := dc.SetBucket(b.Name); err != nil {
		return err
	}
	return dc.SetStorageCredentials(deploy.StorageCredentials{
		AccessKeyID:     b.AccessKeyID,
		SecretAccessKey: b.SecretAccessKey,
		Endpoint:        b.Endpoint,
		Region:          b.Region,
	})
}

func (c *Catalogue) verifyStorage(ctx context.Context, dc *deploy.Context) error {
	if err := dc.Require(deploy.FieldBucket, deploy.FieldStorageCredentials); err != nil {
		return err
	}
	return c.storage.Verify(ctx, gateway.Bucket{
		Name:            dc.Bucket,
		AccessKeyID:     dc.StorageCredentials.AccessKeyID,
		SecretAccessKey: dc.StorageCredentials.SecretAccessKey,
		Endpoint:        dc.StorageCredentials.Endpoint,
		Region:          dc.StorageCredentials.Region,
	})
}

// createDatabase creates the cluster and blocks until it is running. The
// cluster name is only committed once the cluster is usable.
func (c *Catalogue) createDatabase(ctx context.Context, dc *deploy.Context) error {
	if err := dc.Require(deploy.FieldAppName, deploy.FieldOrgSlug, deploy.FieldRegion); err != nil {
		return err
	}
	db, err := c.database.Create(ctx, provisionRequest(dc))
	if err != nil {
		return err
	}
	if _, err := c.database.AwaitReady(ctx, db.Name); err != nil {
		return err
	}
	return dc.SetDatabaseCluster(db.Name)
}

func (c *Catalogue) attachDatabase(ctx context.Context, dc *deploy.Context) error {
	if err := dc.Require(deploy.FieldAppName, deploy.FieldDatabaseCluster); err != nil {
		return err
	}
	url, err := c.database.Attach(ctx, provisionRequest(dc), dc.DatabaseCluster)
	if err != nil {
		return err
	}
	return dc.SetDatabaseURL(url)
}
