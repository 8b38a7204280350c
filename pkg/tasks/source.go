package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/systemstart/launchpad/pkg/deploy"
	"github.com/systemstart/launchpad/pkg/source"
)

// GitTokenEnv names the variable holding a token for private repositories.
const GitTokenEnv = "GIT_TOKEN"

func (c *Catalogue) cloneSource(ctx context.Context, dc *deploy.Context) error {
	src := c.manifest.Source
	if src == nil {
		slog.Debug("no source repository configured")
		return nil
	}
	if err := dc.Require(deploy.FieldWorkDir); err != nil {
		return err
	}

	res, err := c.deps.Cloner.Clone(ctx, dc.WorkDir, source.Options{
		URL:   src.URL,
		Path:  src.Path,
		Ref:   src.Ref,
		Depth: src.Depth,
		Token: os.Getenv(GitTokenEnv),
	})
	if err != nil {
		return fmt.Errorf("fetching template: %w", err)
	}
	if res.Cloned {
		slog.Info("template fetched", "url", src.URL, "path", src.Path, "head", res.Head, "dir", dc.WorkDir)
	} else {
		slog.Info("work directory not empty, clone skipped", "dir", dc.WorkDir)
	}
	return nil
}
