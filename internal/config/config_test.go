package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// mapBackend is an in-memory ConfigBackend.
type mapBackend struct {
	strs map[string]string
	ints map[string]int
}

func newMapBackend() *mapBackend {
	return &mapBackend{strs: map[string]string{}, ints: map[string]int{}}
}

func (m *mapBackend) GetString(key string) (string, bool, error) {
	v, ok := m.strs[key]
	return v, ok, nil
}

func (m *mapBackend) GetInt(key string) (int, bool, error) {
	v, ok := m.ints[key]
	return v, ok, nil
}

func (m *mapBackend) SetString(key, val string) error {
	m.strs[key] = val
	return nil
}

func (m *mapBackend) SetInt(key string, val int) error {
	m.ints[key] = val
	return nil
}

func (m *mapBackend) Delete(key string) error {
	delete(m.strs, key)
	delete(m.ints, key)
	return nil
}

// clearEnv blanks every CVDESK_* variable for the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

// TestDefaults verifies all default values are applied with an empty backend.
func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(newMapBackend())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.BaseURL != "http://localhost:5000" {
		t.Errorf("Server.BaseURL = %q", cfg.Server.BaseURL)
	}
	if cfg.Client.Timeout != 30*time.Second {
		t.Errorf("Client.Timeout = %s, want 30s", cfg.Client.Timeout)
	}
	if cfg.Search.PerPage != 10 {
		t.Errorf("Search.PerPage = %d, want 10", cfg.Search.PerPage)
	}
	if cfg.Audit.PerPage != 100 {
		t.Errorf("Audit.PerPage = %d, want 100", cfg.Audit.PerPage)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
	if cfg.Storage.DataDir == "" {
		t.Error("Storage.DataDir is empty")
	}
	if cfg.Auth.Token != "" {
		t.Errorf("Auth.Token = %q, want empty", cfg.Auth.Token)
	}
}

func TestBackendValues(t *testing.T) {
	clearEnv(t)
	b := newMapBackend()
	b.strs["server.base_url"] = "https://cv.example.com"
	b.strs["client.timeout"] = "5s"
	b.ints["search.per_page"] = 25
	b.strs["storage.data_dir"] = "/tmp/cvdesk-test"

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.BaseURL != "https://cv.example.com" {
		t.Errorf("Server.BaseURL = %q", cfg.Server.BaseURL)
	}
	if cfg.Client.Timeout != 5*time.Second {
		t.Errorf("Client.Timeout = %s", cfg.Client.Timeout)
	}
	if cfg.Search.PerPage != 25 {
		t.Errorf("Search.PerPage = %d", cfg.Search.PerPage)
	}
	if cfg.Storage.DataDir != "/tmp/cvdesk-test" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
}

// TestEnvOverride verifies that environment variables win over the backend.
func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	b := newMapBackend()
	b.strs["server.base_url"] = "https://file.example.com"
	b.ints["audit.per_page"] = 50

	t.Setenv("CVDESK_SERVER_BASE_URL", "https://env.example.com")
	t.Setenv("CVDESK_AUDIT_PER_PAGE", "20")
	t.Setenv("CVDESK_TOKEN", "env-token")

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.BaseURL != "https://env.example.com" {
		t.Errorf("Server.BaseURL = %q", cfg.Server.BaseURL)
	}
	if cfg.Audit.PerPage != 20 {
		t.Errorf("Audit.PerPage = %d", cfg.Audit.PerPage)
	}
	if cfg.Auth.Token != "env-token" {
		t.Errorf("Auth.Token = %q", cfg.Auth.Token)
	}
}

func TestInvalidEnvKeepsDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("CVDESK_SEARCH_PER_PAGE", "lots")
	t.Setenv("CVDESK_CLIENT_TIMEOUT", "soon")

	cfg, err := loadWith(newMapBackend())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Search.PerPage != 10 || cfg.Client.Timeout != 30*time.Second {
		t.Errorf("unparseable env replaced defaults: %+v", cfg)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"relative url", map[string]string{"CVDESK_SERVER_BASE_URL": "cv.example.com"}, "server.base_url"},
		{"ftp url", map[string]string{"CVDESK_SERVER_BASE_URL": "ftp://cv.example.com"}, "server.base_url"},
		{"page too small", map[string]string{"CVDESK_SEARCH_PER_PAGE": "2"}, "search.per_page"},
		{"page too large", map[string]string{"CVDESK_SEARCH_PER_PAGE": "500"}, "search.per_page"},
		{"negative timeout", map[string]string{"CVDESK_CLIENT_TIMEOUT": "-1s"}, "client.timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := loadWith(newMapBackend())
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestShowAllHidesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Auth.Token = "hunter2"

	for _, ki := range ShowAll(cfg) {
		if ki.Key == "auth.token" || strings.Contains(ki.Value, "hunter2") {
			t.Errorf("secret exposed: %+v", ki)
		}
	}
	if got, want := len(ShowAll(cfg)), len(ValidKeys()); got != want {
		t.Errorf("ShowAll returned %d keys, ValidKeys %d", got, want)
	}
}

func TestSetKey(t *testing.T) {
	b := newMapBackend()

	if err := setKeyIn(b, "search.per_page", "20"); err != nil {
		t.Fatalf("setKeyIn: %v", err)
	}
	if b.ints["search.per_page"] != 20 {
		t.Errorf("stored per_page = %d", b.ints["search.per_page"])
	}
	if err := setKeyIn(b, "client.timeout", "1m30s"); err != nil {
		t.Fatalf("setKeyIn: %v", err)
	}
	if b.strs["client.timeout"] != "1m30s" {
		t.Errorf("stored timeout = %q", b.strs["client.timeout"])
	}

	for _, tc := range []struct{ key, val string }{
		{"nope", "1"},
		{"auth.token", "secret"},
		{"search.per_page", "ten"},
		{"search.per_page", "1000"},
		{"server.base_url", "not a url"},
	} {
		if err := setKeyIn(b, tc.key, tc.val); err == nil {
			t.Errorf("setKeyIn(%q, %q) succeeded", tc.key, tc.val)
		}
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "CVDESK_SERVER_BASE_URL=https://dotenv.example.com\nCVDESK_LOG_LEVEL=debug\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	// Already set in the process: .env must not replace it.
	t.Setenv("CVDESK_LOG_LEVEL", "warn")
	// godotenv sets variables outside t.Setenv; restore afterwards.
	t.Cleanup(func() { os.Unsetenv("CVDESK_SERVER_BASE_URL") })
	os.Unsetenv("CVDESK_SERVER_BASE_URL")

	if err := loadDotEnv(path); err != nil {
		t.Fatalf("loadDotEnv: %v", err)
	}
	cfg, err := loadWith(newMapBackend())
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.BaseURL != "https://dotenv.example.com" {
		t.Errorf("Server.BaseURL = %q", cfg.Server.BaseURL)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, .env overrode the process environment", cfg.Log.Level)
	}
}

func TestLoadDotEnvMissing(t *testing.T) {
	if err := loadDotEnv(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Errorf("missing .env should be ignored, got %v", err)
	}
}
