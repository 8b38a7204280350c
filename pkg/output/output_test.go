package output

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/joho/godotenv"

	"github.com/systemstart/launchpad/pkg/deploy"
)

func populatedContext(t *testing.T, name string) *deploy.Context {
	t.Helper()
	dc := deploy.New(deploy.Seed{
		Name:        name,
		OrgSlug:     "personal",
		Region:      "ams",
		Owner:       "0xabc",
		RPCEndpoint: "https://rpc.example.com",
		Secrets:     map[string]string{"API_KEY": "k1"},
	})
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(dc.SetGeneratedSecret("s3cr3t"))
	must(dc.SetHostname(name + ".fly.dev"))
	must(dc.SetDatabaseURL("postgres://u:p@h/db"))
	must(dc.SetCacheURL("redis://c"))
	must(dc.SetBucket(name + "-storage"))
	must(dc.SetStorageCredentials(deploy.StorageCredentials{AccessKeyID: "id", SecretAccessKey: "sk", Endpoint: "https://s3"}))
	return dc
}

func TestWrite(t *testing.T) {
	root := t.TempDir()
	dc := populatedContext(t, "demo")

	dir, err := Write(root, dc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dir != filepath.Join(root, "demo") {
		t.Errorf("dir = %q", dir)
	}

	m, err := LoadMetadata(filepath.Join(dir, MetadataFilename))
	if err != nil {
		t.Fatal(err)
	}
	if m.Name != "demo" || m.Owner != "0xabc" || m.GeneratedSecret != "s3cr3t" || m.RPCEndpoint != "https://rpc.example.com" {
		t.Errorf("unexpected metadata: %+v", m)
	}
	if m.Resources.Bucket != "demo-storage" || m.Resources.CacheURL != "redis://c" {
		t.Errorf("unexpected resources: %+v", m.Resources)
	}

	env, err := godotenv.Read(filepath.Join(dir, EnvFilename))
	if err != nil {
		t.Fatal(err)
	}
	for k, want := range map[string]string{
		"DEPLOYMENT_NAME":   "demo",
		"OWNER":             "0xabc",
		"GENERATED_SECRET":  "s3cr3t",
		"RPC_ENDPOINT":      "https://rpc.example.com",
		"DATABASE_URL":      "postgres://u:p@h/db",
		"REDIS_URL":         "redis://c",
		"AWS_ACCESS_KEY_ID": "id",
		"API_KEY":           "k1",
	} {
		if env[k] != want {
			t.Errorf("env %s = %q, want %q", k, env[k], want)
		}
	}

	info, err := os.Stat(filepath.Join(dir, EnvFilename))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("env file mode = %v", info.Mode().Perm())
	}
}

func TestWrite_MissingName(t *testing.T) {
	if _, err := Write(t.TempDir(), deploy.New(deploy.Seed{})); err == nil {
		t.Fatal("expected error for unnamed deployment")
	}
}

func TestEnvFrom_OmitsEmpty(t *testing.T) {
	env := EnvFrom(deploy.New(deploy.Seed{Name: "bare"}))
	if _, ok := env["OWNER"]; ok {
		t.Error("empty owner should be omitted")
	}
	if env["APP_NAME"] != "bare" {
		t.Errorf("APP_NAME = %q", env["APP_NAME"])
	}
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"beta", "alpha"} {
		if _, err := Write(root, populatedContext(t, name)); err != nil {
			t.Fatal(err)
		}
	}
	nested := filepath.Join(root, "archive")
	if _, err := Write(nested, populatedContext(t, "old")); err != nil {
		t.Fatal(err)
	}

	all, err := Discover(root, -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 deployments, got %d", len(all))
	}
	if all[0].Metadata.Name != "alpha" || all[1].Metadata.Name != "beta" || all[2].Metadata.Name != "old" {
		t.Errorf("unexpected order: %s, %s, %s", all[0].Metadata.Name, all[1].Metadata.Name, all[2].Metadata.Name)
	}

	shallow, err := Discover(root, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(shallow) != 2 {
		t.Errorf("expected 2 deployments at depth 1, got %d", len(shallow))
	}
}

func TestDiscover_MissingRoot(t *testing.T) {
	got, err := Discover(filepath.Join(t.TempDir(), "nope"), -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected nothing, got %d", len(got))
	}
}

func TestDiscover_InvalidMetadata(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "broken")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, MetadataFilename), []byte("{{{"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Discover(root, -1); err == nil {
		t.Fatal("expected error for invalid metadata")
	}
}
