package processing

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/systemstart/launchpad/pkg/api"
	"github.com/systemstart/launchpad/pkg/gateway"
	"github.com/systemstart/launchpad/pkg/gateway/gatewaytest"
	"github.com/systemstart/launchpad/pkg/output"
	"github.com/systemstart/launchpad/pkg/pipeline"
	"github.com/systemstart/launchpad/pkg/poll"
	"github.com/systemstart/launchpad/pkg/state"
	"github.com/systemstart/launchpad/pkg/tasks"
)

const testManifest = `
name: shop
org: acme
region: fra
owner: "0xowner"
secrets:
  API_KEY: k1
appConfig:
  internalPort: 3000
environments:
  - name: staging
    region: ams
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func openLedger(t *testing.T) *state.Ledger {
	t.Helper()
	l, err := state.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func testOptions(t *testing.T, fake *gatewaytest.Fake, ledger *state.Ledger) Options {
	t.Helper()
	fast := poll.Options{MaxAttempts: 5, Interval: time.Millisecond}
	return Options{
		ManifestFile: writeFile(t, t.TempDir(), "launchpad.yaml", testManifest),
		OutputDir:    t.TempDir(),
		Gateway:      fake,
		Ledger:       ledger,
		Tasks: tasks.Deps{
			Poll:   &fast,
			Secret: func() (string, error) { return "generated", nil },
		},
	}
}

func TestDeploy(t *testing.T) {
	fake := &gatewaytest.Fake{DatabaseStatusFunc: gatewaytest.StatusSequence(1)}
	ledger := openLedger(t)
	opts := testOptions(t, fake, ledger)

	res, err := Deploy(context.Background(), opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	dc := res.Context
	if dc.AppName != "shop" || dc.OrgSlug != "acme" || dc.Region != "fra" {
		t.Errorf("unexpected identity: app=%q org=%q region=%q", dc.AppName, dc.OrgSlug, dc.Region)
	}
	if dc.DatabaseURL == "" || dc.CacheURL == "" || dc.Bucket == "" {
		t.Errorf("expected every resource descriptor, got %+v", dc)
	}
	if dc.GeneratedSecret != "generated" {
		t.Errorf("unexpected generated secret: %q", dc.GeneratedSecret)
	}
	if got := fake.AppSecrets("shop")["API_KEY"]; got != "k1" {
		t.Errorf("expected API_KEY pushed to app, got %q", got)
	}

	if res.OutputDir != filepath.Join(opts.OutputDir, "shop") {
		t.Errorf("unexpected output dir: %q", res.OutputDir)
	}
	meta, err := output.LoadMetadata(filepath.Join(res.OutputDir, output.MetadataFilename))
	if err != nil {
		t.Fatal(err)
	}
	if meta.Resources.Bucket != "shop-storage" {
		t.Errorf("unexpected metadata resources: %+v", meta.Resources)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(opts.ManifestFile), tasks.AppConfigFilename)); err != nil {
		t.Errorf("expected app config in work dir: %v", err)
	}

	run, err := ledger.GetRun(context.Background(), res.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != state.RunSucceeded {
		t.Errorf("expected succeeded run, got %q", run.Status)
	}
	resources, err := ledger.ListResources(context.Background(), "shop")
	if err != nil {
		t.Fatal(err)
	}
	if len(resources) != 3 {
		t.Errorf("expected 3 recorded resources, got %d", len(resources))
	}
	taskRows, err := ledger.Tasks(context.Background(), res.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if len(taskRows) != len(api.DefaultPipeline) {
		t.Errorf("expected a task row per task, got %d", len(taskRows))
	}
}

func TestDeploy_DatabaseTimeout(t *testing.T) {
	fake := &gatewaytest.Fake{
		DatabaseStatusFunc: func(_ context.Context, name string) (gateway.ClusterStatus, error) {
			return gateway.ClusterStatus{Name: name, Phase: gateway.PhasePending}, nil
		},
	}
	ledger := openLedger(t)
	opts := testOptions(t, fake, ledger)

	res, err := Deploy(context.Background(), opts)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, poll.ErrTimedOut) {
		t.Errorf("expected timeout, got %v", err)
	}
	var te *pipeline.TaskError
	if !errors.As(err, &te) || te.Title != "create-database" {
		t.Errorf("expected create-database to fail, got %v", err)
	}
	if res == nil || res.Context.CacheURL == "" {
		t.Fatal("expected partial context with the cache")
	}
	if res.OutputDir != "" {
		t.Error("output must not be written for a failed run")
	}
	if _, statErr := os.Stat(filepath.Join(opts.OutputDir, "shop")); !os.IsNotExist(statErr) {
		t.Errorf("expected no deployment directory, stat error: %v", statErr)
	}

	run, err := ledger.GetRun(context.Background(), res.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != state.RunFailed || run.FailedTask != "create-database" {
		t.Errorf("unexpected run record: %+v", run)
	}

	resources, err := ledger.ListResources(context.Background(), "shop")
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range resources {
		if !r.Orphaned() {
			t.Errorf("resource %s should be orphaned", r.Name)
		}
	}
	if len(resources) != 3 {
		t.Errorf("expected cache, storage and database recorded, got %d", len(resources))
	}
}

func TestDeploy_Environment(t *testing.T) {
	fake := &gatewaytest.Fake{}
	opts := testOptions(t, fake, nil)
	opts.Environment = "staging"
	opts.OutputDir = ""

	res, err := Deploy(context.Background(), opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Context.AppName != "shop-staging" || res.Context.Region != "ams" {
		t.Errorf("unexpected environment context: app=%q region=%q", res.Context.AppName, res.Context.Region)
	}
	if res.Context.Bucket != "shop-staging-storage" {
		t.Errorf("unexpected bucket: %q", res.Context.Bucket)
	}
	if res.RunID != "" {
		t.Error("no run id expected without a ledger")
	}
}

func TestLoadDeployment_ContextFile(t *testing.T) {
	dir := t.TempDir()
	manifest := writeFile(t, dir, "launchpad.yaml", testManifest)
	ctxFile := writeFile(t, dir, "context.yaml", "owner: \"0xother\"\nsecrets:\n  API_KEY: override\n  EXTRA: x\n")

	_, seed, err := LoadDeployment(manifest, "", ctxFile)
	if err != nil {
		t.Fatal(err)
	}
	if seed.Owner != "0xother" {
		t.Errorf("expected context file owner, got %q", seed.Owner)
	}
	if seed.Secrets["API_KEY"] != "override" || seed.Secrets["EXTRA"] != "x" {
		t.Errorf("unexpected secrets: %v", seed.Secrets)
	}
}

func TestLoadDeployment_Errors(t *testing.T) {
	dir := t.TempDir()
	manifest := writeFile(t, dir, "launchpad.yaml", testManifest)

	tests := []struct {
		name        string
		manifest    string
		environment string
		contextFile string
		want        string
	}{
		{"missing manifest", filepath.Join(dir, "nope.yaml"), "", "", "reading manifest file"},
		{"unknown environment", manifest, "prod", "", `environment "prod"`},
		{"missing context file", manifest, "", filepath.Join(dir, "nope.yaml"), "reading context file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := LoadDeployment(tt.manifest, tt.environment, tt.contextFile)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected %q in %v", tt.want, err)
			}
		})
	}
}

func TestRun_WarnsOnConcurrentRun(t *testing.T) {
	ledger := openLedger(t)
	if _, err := ledger.StartRun(context.Background(), "shop", "shop"); err != nil {
		t.Fatal(err)
	}

	opts := testOptions(t, &gatewaytest.Fake{}, ledger)
	opts.OutputDir = ""
	if _, err := Deploy(context.Background(), opts); err != nil {
		t.Fatalf("a concurrent run must not block deployment: %v", err)
	}

	runs, err := ledger.ListRuns(context.Background(), "shop", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Errorf("expected 2 runs, got %d", len(runs))
	}
}
