package deploy

import (
	"errors"
	"strings"
	"testing"
)

func TestNew_DefaultsAppName(t *testing.T) {
	c := New(Seed{Name: "demo"})
	if c.AppName != "demo" {
		t.Errorf("expected app name to default to deployment name, got %q", c.AppName)
	}
	if c.Secrets == nil {
		t.Fatal("expected non-nil secrets map")
	}
}

func TestNew_CopiesSecrets(t *testing.T) {
	seed := map[string]string{"A": "1"}
	c := New(Seed{Name: "demo", Secrets: seed})
	seed["A"] = "changed"
	if c.Secrets["A"] != "1" {
		t.Errorf("context shares the seed map, got %q", c.Secrets["A"])
	}
}

func TestSetters_WriteOnce(t *testing.T) {
	tests := []struct {
		name string
		set  func(c *Context, v string) error
	}{
		{"app id", (*Context).SetAppID},
		{"hostname", (*Context).SetHostname},
		{"cache url", (*Context).SetCacheURL},
		{"bucket", (*Context).SetBucket},
		{"database url", (*Context).SetDatabaseURL},
		{"database cluster", (*Context).SetDatabaseCluster},
		{"generated secret", (*Context).SetGeneratedSecret},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(Seed{Name: "demo"})
			if err := tt.set(c, "first"); err != nil {
				t.Fatalf("first set: %v", err)
			}
			if err := tt.set(c, "first"); err != nil {
				t.Errorf("setting the same value again should be a no-op, got %v", err)
			}
			err := tt.set(c, "second")
			if !errors.Is(err, ErrAlreadySet) {
				t.Fatalf("expected ErrAlreadySet, got %v", err)
			}
		})
	}
}

func TestSetStorageCredentials_WriteOnce(t *testing.T) {
	c := New(Seed{Name: "demo"})
	creds := StorageCredentials{AccessKeyID: "id", SecretAccessKey: "secret"}
	if err := c.SetStorageCredentials(creds); err != nil {
		t.Fatal(err)
	}
	err := c.SetStorageCredentials(StorageCredentials{AccessKeyID: "other"})
	if !errors.Is(err, ErrAlreadySet) {
		t.Fatalf("expected ErrAlreadySet, got %v", err)
	}
	if c.StorageCredentials != creds {
		t.Errorf("credentials overwritten: %+v", c.StorageCredentials)
	}
}

func TestPutSecrets_LastWriteWins(t *testing.T) {
	c := New(Seed{Name: "demo"})
	c.PutSecrets(map[string]string{"A": "1", "B": "2"})
	c.PutSecrets(map[string]string{"B": "3", "C": "4"})

	want := map[string]string{"A": "1", "B": "3", "C": "4"}
	if len(c.Secrets) != len(want) {
		t.Fatalf("expected %d secrets, got %v", len(want), c.Secrets)
	}
	for k, v := range want {
		if c.Secrets[k] != v {
			t.Errorf("secret %s = %q, want %q", k, c.Secrets[k], v)
		}
	}
}

func TestClone_IsDeep(t *testing.T) {
	c := New(Seed{Name: "demo", Secrets: map[string]string{"A": "1"}})
	cp := c.Clone()
	cp.PutSecrets(map[string]string{"A": "2"})
	if err := cp.SetCacheURL("redis://x"); err != nil {
		t.Fatal(err)
	}

	if c.Secrets["A"] != "1" {
		t.Errorf("clone mutated original secrets: %v", c.Secrets)
	}
	if c.CacheURL != "" {
		t.Errorf("clone mutated original field: %q", c.CacheURL)
	}
}

func TestRequire(t *testing.T) {
	c := New(Seed{Name: "demo", OrgSlug: "personal"})

	if err := c.Require(FieldName, FieldAppName, FieldOrgSlug); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := c.Require(FieldName, FieldRegion, FieldDatabaseURL)
	if !errors.Is(err, ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
	for _, f := range []string{"region", "databaseURL"} {
		if !strings.Contains(err.Error(), f) {
			t.Errorf("error should name %s: %v", f, err)
		}
	}
	if strings.Contains(err.Error(), "name:") {
		t.Errorf("error should not name populated fields: %v", err)
	}
}

func TestTemplateData(t *testing.T) {
	c := New(Seed{Name: "demo", Region: "ams"})
	_ = c.SetBucket("demo-storage")
	data := c.TemplateData()
	if data["app"] != "demo" || data["region"] != "ams" || data["bucket"] != "demo-storage" {
		t.Errorf("unexpected template data: %v", data)
	}
}

func TestResourceEnv(t *testing.T) {
	c := New(Seed{Name: "demo"})
	if env := c.ResourceEnv(); len(env) != 0 {
		t.Errorf("expected empty env for fresh context, got %v", env)
	}

	_ = c.SetCacheURL("redis://cache")
	_ = c.SetBucket("demo-storage")
	_ = c.SetStorageCredentials(StorageCredentials{AccessKeyID: "id", SecretAccessKey: "secret"})

	env := c.ResourceEnv()
	want := map[string]string{
		"REDIS_URL":             "redis://cache",
		"BUCKET_NAME":           "demo-storage",
		"AWS_ACCESS_KEY_ID":     "id",
		"AWS_SECRET_ACCESS_KEY": "secret",
	}
	if len(env) != len(want) {
		t.Fatalf("env = %v, want %v", env, want)
	}
	for k, v := range want {
		if env[k] != v {
			t.Errorf("%s = %q, want %q", k, env[k], v)
		}
	}
}
