// Package api defines the deployment manifest format.
package api

import "time"

const (
	DefaultManifestFilename = "launchpad.yaml"
	DefaultRegion           = "ams"
	DefaultTemplateInclude  = "**/*.tmpl"

	TaskCloneSource     = "clone-source"
	TaskGenerateSecret  = "generate-secret"
	TaskCreateApp       = "create-app"
	TaskCreateCache     = "create-cache"
	TaskCreateStorage   = "create-storage"
	TaskVerifyStorage   = "verify-storage"
	TaskCreateDatabase  = "create-database"
	TaskAttachDatabase  = "attach-database"
	TaskSetSecrets      = "set-secrets"
	TaskWriteAppConfig  = "write-app-config"
	TaskRenderTemplates = "render-templates"
)

// DefaultPipeline is the task order used when a manifest names none.
var DefaultPipeline = []string{
	TaskCloneSource,
	TaskGenerateSecret,
	TaskCreateApp,
	TaskCreateCache,
	TaskCreateStorage,
	TaskVerifyStorage,
	TaskCreateDatabase,
	TaskAttachDatabase,
	TaskSetSecrets,
	TaskWriteAppConfig,
	TaskRenderTemplates,
}

// Manifest is the launchpad.yaml configuration format.
type Manifest struct {
	Name        string            `yaml:"name"`
	App         string            `yaml:"app"`
	Org         string            `yaml:"org"`
	Region      string            `yaml:"region"`
	WorkDir     string            `yaml:"workDir"`
	Owner       string            `yaml:"owner"`
	RPCEndpoint string            `yaml:"rpcEndpoint"`
	Secrets     map[string]string `yaml:"secrets"`

	Source    *SourceConfig   `yaml:"source,omitempty"`
	Database  DatabaseConfig  `yaml:"database"`
	Cache     CacheConfig     `yaml:"cache"`
	Storage   StorageConfig   `yaml:"storage"`
	Polling   PollingConfig   `yaml:"polling"`
	AppConfig AppConfig       `yaml:"appConfig"`
	Templates TemplatesConfig `yaml:"templates"`

	Pipeline     []string      `yaml:"pipeline"`
	Environments []Environment `yaml:"environments"`

	// Set by the loader, not from YAML.
	Dir      string `yaml:"-"`
	FilePath string `yaml:"-"`
}

// SourceConfig names the template cloned into the work dir: a git
// repository (URL) or a local directory (Path).
type SourceConfig struct {
	URL   string `yaml:"url"`
	Path  string `yaml:"path"`
	Ref   string `yaml:"ref"`
	Depth int    `yaml:"depth"`
}

// DatabaseConfig sizes the Postgres cluster.
type DatabaseConfig struct {
	VMSize       string `yaml:"vmSize"`
	VolumeSizeGB int    `yaml:"volumeSizeGb"`
	ClusterSize  int    `yaml:"clusterSize"`
	DatabaseName string `yaml:"databaseName"`
	VariableName string `yaml:"variableName"`

	// SkipExistsCheck creates the cluster without first looking for one
	// with the same name.
	SkipExistsCheck bool `yaml:"skipExistsCheck"`
}

// CacheConfig selects the Redis plan.
type CacheConfig struct {
	Plan     string   `yaml:"plan"`
	Eviction bool     `yaml:"eviction"`
	Replicas []string `yaml:"replicas"`
}

// StorageConfig configures the bucket.
type StorageConfig struct {
	Public bool `yaml:"public"`
}

// PollingConfig bounds waiting for the database. Zero values use the
// defaults of package poll.
type PollingConfig struct {
	MaxAttempts int           `yaml:"maxAttempts"`
	Interval    time.Duration `yaml:"interval"`
	SettleDelay time.Duration `yaml:"settleDelay"`
}

// AppConfig is written to fly.toml.
type AppConfig struct {
	InternalPort int               `yaml:"internalPort"`
	ForceHTTPS   *bool             `yaml:"forceHttps,omitempty"` // default true
	Env          map[string]string `yaml:"env"`
}

// FileFilter defines include/exclude glob patterns.
type FileFilter struct {
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

// TemplatesConfig selects files for the render-templates task.
type TemplatesConfig struct {
	Files FileFilter `yaml:"files"`
}

// Environment overrides manifest values for one target, e.g. staging.
type Environment struct {
	Name      string            `yaml:"name"`
	AppSuffix string            `yaml:"appSuffix"`
	Org       string            `yaml:"org"`
	Region    string            `yaml:"region"`
	Secrets   map[string]string `yaml:"secrets"`
}
