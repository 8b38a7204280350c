// Package gateway is the only place that talks to the hosting platform.
//
// Two transports are provided: API issues typed GraphQL calls, CLI drives the
// platform's command-line tool as a subprocess. Both produce the same typed
// results, so callers never see response text. Hybrid routes each operation
// to the transport that supports it. No transport retries.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
)

var (
	// ErrAlreadyExists is matched by errors whose remote text reports a
	// naming conflict.
	ErrAlreadyExists = errors.New("already exists")

	// ErrNotFound is matched by errors whose remote text reports a missing
	// resource.
	ErrNotFound = errors.New("not found")
)

// DescriptorError reports a create call the platform accepted whose
// response lacked the resource's descriptor. The resource exists.
type DescriptorError struct {
	Resource string
	Detail   string
}

func (e *DescriptorError) Error() string {
	return fmt.Sprintf("%s created but %s", e.Resource, e.Detail)
}

// Created reports whether err comes from a create call that reached the
// platform and succeeded there.
func Created(err error) bool {
	var de *DescriptorError
	return errors.As(err, &de)
}

type Organization struct {
	ID   string
	Slug string
	Name string
	Type string
}

type Identity struct {
	ID                   string
	Email                string
	PersonalOrganization Organization
}

type Machine struct {
	ID     string
	State  string
	Region string
}

type App struct {
	ID           string
	Name         string
	Hostname     string
	Status       string
	Deployed     bool
	Organization Organization
	Machines     []Machine
}

type CreateAppInput struct {
	Name    string
	OrgSlug string
	Network string
}

type Secret struct {
	Key   string
	Value string
}

// SecretsFromMap converts kv into a key-sorted batch.
func SecretsFromMap(kv map[string]string) []Secret {
	out := make([]Secret, 0, len(kv))
	for k, v := range kv {
		out = append(out, Secret{Key: k, Value: v})
	}
	slices.SortFunc(out, func(a, b Secret) int { return strings.Compare(a.Key, b.Key) })
	return out
}

// DatabasePlan fixes every sizing option so the tool never prompts.
type DatabasePlan struct {
	VMSize       string
	VolumeSizeGB int
	ClusterSize  int
}

type CreateDatabaseInput struct {
	Name    string
	OrgSlug string
	Region  string
	Plan    DatabasePlan
}

type Database struct {
	Name             string
	ConnectionString string
}

// Phase is the decoded provisioning phase of a cluster.
type Phase int

const (
	PhaseUnknown Phase = iota
	PhasePending
	PhaseRunning
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseRunning:
		return "running"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type ClusterStatus struct {
	Name   string
	Phase  Phase
	Detail string
}

type AttachDatabaseInput struct {
	Cluster      string
	App          string
	DatabaseName string
	VariableName string
}

type Attachment struct {
	VariableName string
	URL          string
}

type CachePlan struct {
	Plan     string
	Eviction bool
	Replicas []string
}

type CreateCacheInput struct {
	Name    string
	OrgSlug string
	Region  string
	AppName string
	Plan    CachePlan
}

type Cache struct {
	ID   string
	Name string
	URL  string
}

type CreateStorageInput struct {
	Name    string
	OrgSlug string
	AppName string
	Public  bool
}

type Bucket struct {
	Name            string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	Region          string
}

type Apps interface {
	Viewer(ctx context.Context) (Identity, error)
	Organizations(ctx context.Context) ([]Organization, error)
	CreateApp(ctx context.Context, in CreateAppInput) (App, error)
	App(ctx context.Context, name string) (App, error)
}

type Secrets interface {
	// SetSecrets applies the batch as one release. Keys already present on
	// the app are replaced.
	SetSecrets(ctx context.Context, app string, secrets []Secret) error
}

type Databases interface {
	CreateDatabase(ctx context.Context, in CreateDatabaseInput) (Database, error)
	DatabaseStatus(ctx context.Context, name string) (ClusterStatus, error)
	AttachDatabase(ctx context.Context, in AttachDatabaseInput) (Attachment, error)
	// DatabaseExists reports whether a cluster named name is visible.
	DatabaseExists(ctx context.Context, name string) (bool, error)
}

type AddOns interface {
	CreateCache(ctx context.Context, in CreateCacheInput) (Cache, error)
	CreateStorage(ctx context.Context, in CreateStorageInput) (Bucket, error)
}

type Logs interface {
	StreamLogs(ctx context.Context, app string, w io.Writer, follow bool) error
}

// Typed is the subset of operations the GraphQL transport supports.
type Typed interface {
	Apps
	Secrets
	AddOns
}

// Gateway is every platform operation.
type Gateway interface {
	Apps
	Secrets
	Databases
	AddOns
	Logs
}

// classify maps remote diagnostic text onto a sentinel, or nil.
func classify(text string) error {
	t := strings.ToLower(text)
	switch {
	case strings.Contains(t, "already exists"),
		strings.Contains(t, "already been taken"),
		strings.Contains(t, "name is taken"):
		return ErrAlreadyExists
	case strings.Contains(t, "not found"),
		strings.Contains(t, "could not find"),
		strings.Contains(t, "could not resolve"):
		return ErrNotFound
	default:
		return nil
	}
}
