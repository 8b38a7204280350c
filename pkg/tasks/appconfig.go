package tasks

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/systemstart/launchpad/pkg/deploy"
)

// AppConfigFilename is the app config written into WorkDir.
const AppConfigFilename = "fly.toml"

const defaultInternalPort = 8080

// writeAppConfig writes fly.toml. An existing file is kept and only the
// keys owned by the deployment are replaced.
func (c *Catalogue) writeAppConfig(_ context.Context, dc *deploy.Context) error {
	if err := dc.Require(deploy.FieldWorkDir, deploy.FieldAppName, deploy.FieldRegion); err != nil {
		return err
	}

	path := filepath.Join(dc.WorkDir, AppConfigFilename)
	doc, err := readAppConfig(path)
	if err != nil {
		return err
	}

	cfg := c.manifest.AppConfig
	doc["app"] = dc.AppName
	doc["primary_region"] = dc.Region

	if _, ok := doc["http_service"]; !ok {
		port := cfg.InternalPort
		if port == 0 {
			port = defaultInternalPort
		}
		forceHTTPS := true
		if cfg.ForceHTTPS != nil {
			forceHTTPS = *cfg.ForceHTTPS
		}
		doc["http_service"] = map[string]any{
			"internal_port": port,
			"force_https":   forceHTTPS,
		}
	}

	if len(cfg.Env) > 0 {
		env, _ := doc["env"].(map[string]any)
		if env == nil {
			env = make(map[string]any, len(cfg.Env))
		}
		for k, v := range cfg.Env {
			env[k] = v
		}
		doc["env"] = env
	}

	if err := os.MkdirAll(dc.WorkDir, 0750); err != nil {
		return fmt.Errorf("creating work directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", AppConfigFilename, err)
	}
	encErr := toml.NewEncoder(f).Encode(doc)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return fmt.Errorf("closing %s: %w", AppConfigFilename, closeErr)
	}
	if encErr != nil {
		return fmt.Errorf("encoding %s: %w", AppConfigFilename, encErr)
	}

	slog.Info("app config written", "path", path)
	return nil
}

func readAppConfig(path string) (map[string]any, error) {
	doc := make(map[string]any)
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return make(map[string]any), nil
		}
		return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	return doc, nil
}
