package api

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	f := filepath.Join(dir, DefaultManifestFilename)
	if err := os.WriteFile(f, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return f
}

func TestLoadManifest_Valid(t *testing.T) {
	f := writeManifest(t, `
name: demo
org: acme
region: fra
workDir: app
owner: "0xabc"
secrets:
  API_KEY: k1
database:
  vmSize: shared-cpu-2x
  volumeSizeGb: 10
  clusterSize: 2
cache:
  plan: Free
  eviction: true
polling:
  maxAttempts: 30
  interval: 2s
  settleDelay: 10s
pipeline:
  - create-app
  - create-database
  - attach-database
  - set-secrets
`)

	m, err := LoadManifest(f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if m.App != "demo" {
		t.Errorf("expected app to default to name, got %q", m.App)
	}
	if m.Dir != filepath.Dir(f) {
		t.Errorf("expected Dir=%q, got %q", filepath.Dir(f), m.Dir)
	}
	if m.WorkDir != filepath.Join(m.Dir, "app") {
		t.Errorf("expected workDir resolved against manifest dir, got %q", m.WorkDir)
	}
	if m.Database.ClusterSize != 2 || m.Database.VMSize != "shared-cpu-2x" {
		t.Errorf("unexpected database config: %+v", m.Database)
	}
	if m.Polling.Interval != 2*time.Second || m.Polling.SettleDelay != 10*time.Second {
		t.Errorf("unexpected polling config: %+v", m.Polling)
	}
	if len(m.Pipeline) != 4 {
		t.Errorf("expected 4 tasks, got %d", len(m.Pipeline))
	}
	if m.Secrets["API_KEY"] != "k1" {
		t.Errorf("unexpected secrets: %v", m.Secrets)
	}
}

func TestLoadManifest_Defaults(t *testing.T) {
	m, err := LoadManifest(writeManifest(t, "name: demo\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if m.Region != DefaultRegion || m.Org != "personal" {
		t.Errorf("unexpected defaults: region=%q org=%q", m.Region, m.Org)
	}
	if strings.Join(m.Pipeline, ",") != strings.Join(DefaultPipeline, ",") {
		t.Errorf("expected default pipeline, got %v", m.Pipeline)
	}
	if m.WorkDir != m.Dir {
		t.Errorf("expected workDir=%q, got %q", m.Dir, m.WorkDir)
	}
	if len(m.Templates.Files.Include) != 1 || m.Templates.Files.Include[0] != DefaultTemplateInclude {
		t.Errorf("unexpected template include: %v", m.Templates.Files.Include)
	}
	if m.Secrets == nil {
		t.Error("secrets map should be initialised")
	}
}

func TestLoadManifest_FileNotFound(t *testing.T) {
	_, err := LoadManifest("/nonexistent/launchpad.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "reading manifest file") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadManifest_InvalidYAML(t *testing.T) {
	_, err := LoadManifest(writeManifest(t, "{{invalid"))
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
	if !strings.Contains(err.Error(), "parsing manifest file") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadManifest_ValidationFails(t *testing.T) {
	_, err := LoadManifest(writeManifest(t, "pipeline: [create-app]\n"))
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "validating manifest") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadManifest_SourcePath(t *testing.T) {
	m, err := LoadManifest(writeManifest(t, "name: demo\nsource:\n  path: templates/web\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Source.Path != filepath.Join(m.Dir, "templates", "web") {
		t.Errorf("expected source path resolved against manifest dir, got %q", m.Source.Path)
	}
}
