// Package deploy holds the record threaded through a deployment run.
package deploy

import (
	"errors"
	"fmt"
	"maps"

	"github.com/hashicorp/go-multierror"
)

var (
	// ErrAlreadySet is returned when a write-once field is given a second,
	// different value during the same run.
	ErrAlreadySet = errors.New("field already set")

	// ErrMissingField marks a configuration error: a task was started without
	// a field it depends on.
	ErrMissingField = errors.New("required field missing")
)

// Field names a Context field for precondition checks.
type Field string

const (
	FieldName               Field = "name"
	FieldWorkDir            Field = "workDir"
	FieldAppName            Field = "appName"
	FieldOrgSlug            Field = "orgSlug"
	FieldRegion             Field = "region"
	FieldOwner              Field = "owner"
	FieldRPCEndpoint        Field = "rpcEndpoint"
	FieldAppID              Field = "appID"
	FieldHostname           Field = "hostname"
	FieldGeneratedSecret    Field = "generatedSecret"
	FieldDatabaseCluster    Field = "databaseCluster"
	FieldDatabaseURL        Field = "databaseURL"
	FieldCacheURL           Field = "cacheURL"
	FieldBucket             Field = "bucket"
	FieldStorageCredentials Field = "storageCredentials"
)

// StorageCredentials are the S3-compatible credentials issued with a bucket.
type StorageCredentials struct {
	AccessKeyID     string `yaml:"accessKeyId"`
	SecretAccessKey string `yaml:"secretAccessKey"`
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
}

// IsZero reports whether no credential has been recorded.
func (c StorageCredentials) IsZero() bool {
	return c == StorageCredentials{}
}

// Context accumulates everything a run learns about a deployment. It is
// owned by exactly one pipeline run and is not safe for concurrent use.
//
// Scalar fields are write-once: use the Set* methods, which refuse to
// overwrite a populated field. Secrets is the only field meant to be
// updated repeatedly (see PutSecrets).
type Context struct {
	Name        string
	WorkDir     string
	AppName     string
	OrgSlug     string
	Region      string
	Owner       string
	RPCEndpoint string

	AppID              string
	Hostname           string
	GeneratedSecret    string
	DatabaseCluster    string
	DatabaseURL        string
	CacheURL           string
	Bucket             string
	StorageCredentials StorageCredentials

	Secrets map[string]string
}

// Seed carries the fields required to start a run.
type Seed struct {
	Name        string
	WorkDir     string
	AppName     string
	OrgSlug     string
	Region      string
	Owner       string
	RPCEndpoint string
	Secrets     map[string]string
}

// New creates a Context from seed values. AppName defaults to the
// deployment name.
func New(seed Seed) *Context {
	app := seed.AppName
	if app == "" {
		app = seed.Name
	}
	c := &Context{
		Name:        seed.Name,
		WorkDir:     seed.WorkDir,
		AppName:     app,
		OrgSlug:     seed.OrgSlug,
		Region:      seed.Region,
		Owner:       seed.Owner,
		RPCEndpoint: seed.RPCEndpoint,
		Secrets:     make(map[string]string, len(seed.Secrets)),
	}
	maps.Copy(c.Secrets, seed.Secrets)
	return c
}

// Clone returns a deep copy.
func (c *Context) Clone() *Context {
	cp := *c
	cp.Secrets = maps.Clone(c.Secrets)
	if cp.Secrets == nil {
		cp.Secrets = make(map[string]string)
	}
	return &cp
}

func setOnce(dst *string, field Field, value string) error {
	if *dst != "" && *dst != value {
		return fmt.Errorf("%s: %w (have %q)", field, ErrAlreadySet, *dst)
	}
	*dst = value
	return nil
}

func (c *Context) SetAppID(v string) error { return setOnce(&c.AppID, FieldAppID, v) }

func (c *Context) SetHostname(v string) error { return setOnce(&c.Hostname, FieldHostname, v) }

func (c *Context) SetCacheURL(v string) error { return setOnce(&c.CacheURL, FieldCacheURL, v) }

func (c *Context) SetBucket(v string) error { return setOnce(&c.Bucket, FieldBucket, v) }

func (c *Context) SetDatabaseURL(v string) error {
	return setOnce(&c.DatabaseURL, FieldDatabaseURL, v)
}

func (c *Context) SetDatabaseCluster(v string) error {
	return setOnce(&c.DatabaseCluster, FieldDatabaseCluster, v)
}

func (c *Context) SetGeneratedSecret(v string) error {
	return setOnce(&c.GeneratedSecret, FieldGeneratedSecret, v)
}

// SetStorageCredentials records bucket credentials once.
func (c *Context) SetStorageCredentials(v StorageCredentials) error {
	if !c.StorageCredentials.IsZero() && c.StorageCredentials != v {
		return fmt.Errorf("%s: %w", FieldStorageCredentials, ErrAlreadySet)
	}
	c.StorageCredentials = v
	return nil
}

// PutSecrets merges kv into the secret map. Existing keys are replaced, so
// applying the same batch twice leaves one entry per key.
func (c *Context) PutSecrets(kv map[string]string) {
	if c.Secrets == nil {
		c.Secrets = make(map[string]string, len(kv))
	}
	maps.Copy(c.Secrets, kv)
}

// Require returns an error listing every field in fields that is empty.
func (c *Context) Require(fields ...Field) error {
	var result *multierror.Error
	for _, f := range fields {
		if !c.has(f) {
			result = multierror.Append(result, fmt.Errorf("%s: %w", f, ErrMissingField))
		}
	}
	return result.ErrorOrNil()
}

func (c *Context) has(f Field) bool {
	switch f {
	case FieldName:
		return c.Name != ""
	case FieldWorkDir:
		return c.WorkDir != ""
	case FieldAppName:
		return c.AppName != ""
	case FieldOrgSlug:
		return c.OrgSlug != ""
	case FieldRegion:
		return c.Region != ""
	case FieldOwner:
		return c.Owner != ""
	case FieldRPCEndpoint:
		return c.RPCEndpoint != ""
	case FieldAppID:
		return c.AppID != ""
	case FieldHostname:
		return c.Hostname != ""
	case FieldGeneratedSecret:
		return c.GeneratedSecret != ""
	case FieldDatabaseCluster:
		return c.DatabaseCluster != ""
	case FieldDatabaseURL:
		return c.DatabaseURL != ""
	case FieldCacheURL:
		return c.CacheURL != ""
	case FieldBucket:
		return c.Bucket != ""
	case FieldStorageCredentials:
		return !c.StorageCredentials.IsZero()
	default:
		return false
	}
}

// TemplateData exposes the context as a map for text/template rendering.
func (c *Context) TemplateData() map[string]any {
	return map[string]any{
		"name":            c.Name,
		"workDir":         c.WorkDir,
		"app":             c.AppName,
		"org":             c.OrgSlug,
		"region":          c.Region,
		"owner":           c.Owner,
		"rpcEndpoint":     c.RPCEndpoint,
		"hostname":        c.Hostname,
		"generatedSecret": c.GeneratedSecret,
		"databaseURL":     c.DatabaseURL,
		"cacheURL":        c.CacheURL,
		"bucket":          c.Bucket,
		"storage": map[string]any{
			"accessKeyId":     c.StorageCredentials.AccessKeyID,
			"secretAccessKey": c.StorageCredentials.SecretAccessKey,
			"endpoint":        c.StorageCredentials.Endpoint,
			"region":          c.StorageCredentials.Region,
		},
		"secrets": maps.Clone(c.Secrets),
	}
}

// ResourceEnv returns the connection descriptors of every provisioned
// resource under the variable names applications expect.
func (c *Context) ResourceEnv() map[string]string {
	env := make(map[string]string)
	put := func(k, v string) {
		if v != "" {
			env[k] = v
		}
	}
	put("DATABASE_URL", c.DatabaseURL)
	put("REDIS_URL", c.CacheURL)
	put("BUCKET_NAME", c.Bucket)
	put("AWS_ACCESS_KEY_ID", c.StorageCredentials.AccessKeyID)
	put("AWS_SECRET_ACCESS_KEY", c.StorageCredentials.SecretAccessKey)
	put("AWS_ENDPOINT_URL_S3", c.StorageCredentials.Endpoint)
	put("AWS_REGION", c.StorageCredentials.Region)
	return env
}
