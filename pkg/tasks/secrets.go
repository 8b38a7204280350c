package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"maps"

	"github.com/systemstart/launchpad/pkg/deploy"
	"github.com/systemstart/launchpad/pkg/gateway"
)

// GeneratedSecretKey is the app secret carrying the generated secret.
const GeneratedSecretKey = "GENERATED_SECRET"

func (c *Catalogue) generateSecret(_ context.Context, dc *deploy.Context) error {
	if dc.GeneratedSecret != "" {
		return nil
	}
	secret, err := c.deps.Secret()
	if err != nil {
		return fmt.Errorf("generating secret: %w", err)
	}
	return dc.SetGeneratedSecret(secret)
}

// setSecrets pushes the configured secrets and the resource descriptors to
// the app. Keys already known to the context are replaced, never appended.
func (c *Catalogue) setSecrets(ctx context.Context, dc *deploy.Context) error {
	if err := dc.Require(deploy.FieldAppName); err != nil {
		return err
	}

	batch := SecretBatch(dc)
	if len(batch) == 0 {
		slog.Info("no secrets to set", "app", dc.AppName)
		return nil
	}

	slog.Info("setting app secrets", "app", dc.AppName, "count", len(batch))
	if err := c.deps.Gateway.SetSecrets(ctx, dc.AppName, gateway.SecretsFromMap(batch)); err != nil {
		return fmt.Errorf("setting secrets on %s: %w", dc.AppName, err)
	}
	dc.PutSecrets(batch)
	return nil
}

// SecretBatch is what set-secrets sends: the context's secrets overlaid with
// the resource descriptors and the generated secret.
func SecretBatch(dc *deploy.Context) map[string]string {
	batch := maps.Clone(dc.Secrets)
	if batch == nil {
		batch = make(map[string]string)
	}
	maps.Copy(batch, dc.ResourceEnv())
	if dc.GeneratedSecret != "" {
		batch[GeneratedSecretKey] = dc.GeneratedSecret
	}
	return batch
}
