// Package output persists a finished deployment to disk and finds
// previously persisted deployments.
package output

import (
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/systemstart/launchpad/pkg/deploy"
)

const (
	MetadataFilename = "deployment.yaml"
	EnvFilename      = ".env"
)

// Metadata is the content of deployment.yaml.
type Metadata struct {
	Name            string    `yaml:"name"`
	Owner           string    `yaml:"owner,omitempty"`
	GeneratedSecret string    `yaml:"generatedSecret,omitempty"`
	RPCEndpoint     string    `yaml:"rpcEndpoint,omitempty"`
	App             string    `yaml:"app"`
	AppID           string    `yaml:"appId,omitempty"`
	Hostname        string    `yaml:"hostname,omitempty"`
	Org             string    `yaml:"org,omitempty"`
	Region          string    `yaml:"region,omitempty"`
	Resources       Resources `yaml:"resources"`
	CreatedAt       time.Time `yaml:"createdAt"`
}

type Resources struct {
	DatabaseCluster string `yaml:"databaseCluster,omitempty"`
	DatabaseURL     string `yaml:"databaseURL,omitempty"`
	CacheURL        string `yaml:"cacheURL,omitempty"`
	Bucket          string `yaml:"bucket,omitempty"`
	StorageEndpoint string `yaml:"storageEndpoint,omitempty"`
}

// MetadataFrom extracts the persisted view of dc.
func MetadataFrom(dc *deploy.Context, now time.Time) Metadata {
	return Metadata{
		Name:            dc.Name,
		Owner:           dc.Owner,
		GeneratedSecret: dc.GeneratedSecret,
		RPCEndpoint:     dc.RPCEndpoint,
		App:             dc.AppName,
		AppID:           dc.AppID,
		Hostname:        dc.Hostname,
		Org:             dc.OrgSlug,
		Region:          dc.Region,
		Resources: Resources{
			DatabaseCluster: dc.DatabaseCluster,
			DatabaseURL:     dc.DatabaseURL,
			CacheURL:        dc.CacheURL,
			Bucket:          dc.Bucket,
			StorageEndpoint: dc.StorageCredentials.Endpoint,
		},
		CreatedAt: now.UTC(),
	}
}

// EnvFrom returns the .env content for dc: deployment metadata, resource
// descriptors and every accumulated secret.
func EnvFrom(dc *deploy.Context) map[string]string {
	env := map[string]string{
		"DEPLOYMENT_NAME": dc.Name,
		"APP_NAME":        dc.AppName,
	}
	for k, v := range map[string]string{
		"OWNER":            dc.Owner,
		"GENERATED_SECRET": dc.GeneratedSecret,
		"RPC_ENDPOINT":     dc.RPCEndpoint,
		"APP_HOSTNAME":     dc.Hostname,
	} {
		if v != "" {
			env[k] = v
		}
	}
	maps.Copy(env, dc.ResourceEnv())
	maps.Copy(env, dc.Secrets)
	return env
}

// Write stores deployment.yaml and .env under root/<name>/ and returns that
// directory.
func Write(root string, dc *deploy.Context) (string, error) {
	if dc.Name == "" {
		return "", fmt.Errorf("writing deployment: %w", deploy.ErrMissingField)
	}
	dir := filepath.Join(root, dc.Name)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("creating deployment directory: %w", err)
	}

	data, err := yaml.Marshal(MetadataFrom(dc, time.Now()))
	if err != nil {
		return "", fmt.Errorf("encoding metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, MetadataFilename), data, 0o600); err != nil {
		return "", fmt.Errorf("writing metadata: %w", err)
	}

	envPath := filepath.Join(dir, EnvFilename)
	if err := godotenv.Write(EnvFrom(dc), envPath); err != nil {
		return "", fmt.Errorf("writing env file: %w", err)
	}
	if err := os.Chmod(envPath, 0o600); err != nil {
		return "", fmt.Errorf("restricting env file: %w", err)
	}

	slog.Info("deployment written", "name", dc.Name, "dir", dir)
	return dir, nil
}

// LoadMetadata reads a deployment.yaml.
func LoadMetadata(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading metadata: %w", err)
	}
	var m Metadata
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing metadata: %w", err)
	}
	return &m, nil
}
