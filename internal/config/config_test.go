package config

import (
	"os"
	"path/filepath"
	"testing"
)

const validYAML = `
app:
  name: nekopricer
backpacktf:
  access_token: file-token
database:
  path: listings.db
minio:
  endpoint: localhost:9000
  access_key: key
  secret_key: secret
  bucket: nekopricer
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.BackpackTF.AccessToken != "file-token" {
		t.Errorf("token not read from file: %q", cfg.BackpackTF.AccessToken)
	}
	// Untouched fields keep their defaults.
	if cfg.BackpackTF.WebsocketURL != "wss://ws.backpack.tf/events" {
		t.Errorf("default websocket url lost: %q", cfg.BackpackTF.WebsocketURL)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("default log level lost: %q", cfg.Logging.Level)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("BACKPACK_TF_ACCESS_TOKEN", "env-token")
	t.Setenv("LOGGING_LEVEL", "debug")

	cfg, err := LoadConfig(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.BackpackTF.AccessToken != "env-token" {
		t.Errorf("env token not applied: %q", cfg.BackpackTF.AccessToken)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("env log level not applied: %q", cfg.Logging.Level)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "missing access token",
			yaml: `
database:
  path: listings.db
minio:
  endpoint: localhost:9000
  bucket: b
`,
		},
		{
			name: "bad websocket url",
			yaml: `
backpacktf:
  access_token: t
  ws_url: http://not-a-socket
database:
  path: listings.db
minio:
  endpoint: localhost:9000
  bucket: b
`,
		},
		{
			name: "missing minio endpoint",
			yaml: `
backpacktf:
  access_token: t
database:
  path: listings.db
`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, tt.yaml)); err == nil {
				t.Error("expected validation to fail")
			}
		})
	}
}
