package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/systemstart/launchpad/pkg/logging"
)

// CLI drives the platform command-line tool. Every create call passes
// explicit flags so the tool never falls back to an interactive prompt.
type CLI struct {
	runner Runner
	dir    string
	logger *slog.Logger
}

var _ Gateway = (*CLI)(nil)

// NewCLI creates a subprocess transport. dir is the working directory used
// for every invocation; it may be empty.
func NewCLI(runner Runner, dir string) *CLI {
	return &CLI{
		runner: runner,
		dir:    dir,
		logger: logging.Component("gateway").With("transport", "cli"),
	}
}

func (c *CLI) run(ctx context.Context, stdin string, args ...string) (Output, error) {
	c.logger.Debug("running command", "args", redactArgs(args))
	out, err := c.runner.Run(ctx, Invocation{Args: args, Dir: c.dir, Stdin: stdin})
	if err != nil {
		return out, err
	}
	if out.ExitCode != 0 {
		return out, newCommandError(args, out)
	}
	return out, nil
}

func (c *CLI) Viewer(ctx context.Context) (Identity, error) {
	out, err := c.run(ctx, "", "auth", "whoami", "--json")
	if err != nil {
		return Identity{}, err
	}
	var resp struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal([]byte(out.Stdout), &resp); err != nil {
		return Identity{}, fmt.Errorf("decoding whoami output: %w", err)
	}
	return Identity{Email: resp.Email, PersonalOrganization: Organization{Slug: "personal"}}, nil
}

func (c *CLI) Organizations(ctx context.Context) ([]Organization, error) {
	out, err := c.run(ctx, "", "orgs", "list", "--json")
	if err != nil {
		return nil, err
	}
	return parseOrganizations(out.Stdout)
}

func (c *CLI) CreateApp(ctx context.Context, in CreateAppInput) (App, error) {
	args := []string{"apps", "create", in.Name, "--org", in.OrgSlug, "--json"}
	if in.Network != "" {
		args = append(args, "--network", in.Network)
	}
	out, err := c.run(ctx, "", args...)
	if err != nil {
		return App{}, err
	}
	app, err := parseAppJSON(out.Stdout)
	if err != nil {
		return App{}, err
	}
	if app.Name == "" {
		app.Name = in.Name
	}
	return app, nil
}

func (c *CLI) App(ctx context.Context, name string) (App, error) {
	out, err := c.run(ctx, "", "status", "--app", name, "--json")
	if err != nil {
		return App{}, err
	}
	return parseAppJSON(out.Stdout)
}

// SetSecrets pipes the batch to "secrets import" so values never appear on
// the command line.
func (c *CLI) SetSecrets(ctx context.Context, app string, secrets []Secret) error {
	payload, err := secretsImportPayload(secrets)
	if err != nil {
		return fmt.Errorf("encoding secrets: %w", err)
	}
	_, err = c.run(ctx, payload, "secrets", "import", "--app", app)
	return err
}

// secretsImportPayload writes one KEY=value line per secret and wraps
// multi-line values in """ lines. The importer takes values literally, so
// nothing is quoted or escaped.
func secretsImportPayload(secrets []Secret) (string, error) {
	var b strings.Builder
	for _, s := range secrets {
		if s.Key == "" || strings.ContainsAny(s.Key, "= \t\r\n") {
			return "", fmt.Errorf("invalid secret name %q", s.Key)
		}
		if !strings.ContainsAny(s.Value, "\r\n") {
			fmt.Fprintf(&b, "%s=%s\n", s.Key, s.Value)
			continue
		}
		for _, line := range strings.Split(s.Value, "\n") {
			if strings.TrimSpace(line) == `"""` {
				return "", fmt.Errorf("secret %s: value contains a line of three double quotes", s.Key)
			}
		}
		fmt.Fprintf(&b, "%s=\"\"\"\n%s\n\"\"\"\n", s.Key, s.Value)
	}
	return b.String(), nil
}

func (c *CLI) CreateDatabase(ctx context.Context, in CreateDatabaseInput) (Database, error) {
	out, err := c.run(ctx, "",
		"postgres", "create",
		"--name", in.Name,
		"--org", in.OrgSlug,
		"--region", in.Region,
		"--vm-size", in.Plan.VMSize,
		"--volume-size", strconv.Itoa(in.Plan.VolumeSizeGB),
		"--initial-cluster-size", strconv.Itoa(in.Plan.ClusterSize),
		"--detach",
	)
	if err != nil {
		return Database{}, err
	}
	return Database{Name: in.Name, ConnectionString: findURL(out.Stdout, "postgres://", "postgresql://")}, nil
}

func (c *CLI) DatabaseStatus(ctx context.Context, name string) (ClusterStatus, error) {
	out, err := c.run(ctx, "", "status", "--app", name, "--json")
	if err != nil {
		return ClusterStatus{Name: name}, err
	}
	return parseClusterStatus(name, out.Stdout), nil
}

func (c *CLI) DatabaseExists(ctx context.Context, name string) (bool, error) {
	_, err := c.run(ctx, "", "status", "--app", name, "--json")
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (c *CLI) AttachDatabase(ctx context.Context, in AttachDatabaseInput) (Attachment, error) {
	variable := in.VariableName
	if variable == "" {
		variable = "DATABASE_URL"
	}
	args := []string{"postgres", "attach", in.Cluster, "--app", in.App, "--variable-name", variable, "--yes"}
	if in.DatabaseName != "" {
		args = append(args, "--database-name", in.DatabaseName)
	}
	out, err := c.run(ctx, "", args...)
	if err != nil {
		return Attachment{}, err
	}

	url := parseAssignments(out.Stdout)[variable]
	if url == "" {
		url = findURL(out.Stdout, "postgres://", "postgresql://")
	}
	if url == "" {
		return Attachment{}, fmt.Errorf("attach output has no %s: %s", variable, strings.TrimSpace(out.Stdout))
	}
	return Attachment{VariableName: variable, URL: url}, nil
}

func (c *CLI) CreateCache(ctx context.Context, in CreateCacheInput) (Cache, error) {
	args := []string{"redis", "create", "--name", in.Name, "--org", in.OrgSlug, "--region", in.Region}
	if len(in.Plan.Replicas) == 0 {
		args = append(args, "--no-replicas")
	} else {
		args = append(args, "--replica-regions", strings.Join(in.Plan.Replicas, ","))
	}
	if in.Plan.Eviction {
		args = append(args, "--enable-eviction")
	} else {
		args = append(args, "--disable-eviction")
	}
	if in.Plan.Plan != "" {
		args = append(args, "--plan", in.Plan.Plan)
	}

	out, err := c.run(ctx, "", args...)
	if err != nil {
		return Cache{}, err
	}
	url := findURL(out.Stdout, "rediss://", "redis://")
	if url == "" {
		return Cache{Name: in.Name}, &DescriptorError{
			Resource: in.Name,
			Detail:   "redis create output has no connection URL: " + strings.TrimSpace(out.Stdout),
		}
	}
	return Cache{Name: in.Name, URL: url}, nil
}

func (c *CLI) CreateStorage(ctx context.Context, in CreateStorageInput) (Bucket, error) {
	args := []string{"storage", "create", "--name", in.Name, "--org", in.OrgSlug, "--yes"}
	if in.AppName != "" {
		args = append(args, "--app", in.AppName)
	}
	if in.Public {
		args = append(args, "--public")
	}
	out, err := c.run(ctx, "", args...)
	if err != nil {
		return Bucket{}, err
	}
	return parseBucket(in.Name, out.Stdout)
}

func (c *CLI) StreamLogs(ctx context.Context, app string, w io.Writer, follow bool) error {
	args := []string{"logs", "--app", app}
	if !follow {
		args = append(args, "--no-tail")
	}
	out, err := c.runner.Run(ctx, Invocation{Args: args, Dir: c.dir, Stream: w})
	if err != nil {
		return err
	}
	if out.ExitCode != 0 {
		return newCommandError(args, out)
	}
	return nil
}

// Version returns the raw version line of the tool.
func (c *CLI) Version(ctx context.Context) (string, error) {
	out, err := c.run(ctx, "", "version")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Stdout), nil
}

func redactArgs(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		if k, _, ok := strings.Cut(a, "="); ok && strings.ToUpper(k) == k {
			out[i] = k + "=***"
			continue
		}
		out[i] = a
	}
	return out
}
