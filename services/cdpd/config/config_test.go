package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
listen: " :9000 "
genesis: " genesis.toml "
auth:
  jwt_secret: "0123456789abcdef"
keeper:
  enabled: true
  address: "0x00000000000000000000000000000000000000b3"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ListenAddress != ":9000" || cfg.Genesis != "genesis.toml" {
		t.Fatalf("unexpected trimmed values: %q %q", cfg.ListenAddress, cfg.Genesis)
	}
	if cfg.DataDir != "data" || cfg.Indexer.Driver != "sqlite" || cfg.Indexer.DSN == "" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Keeper.Interval != 10*time.Second || cfg.Shutdown != 5*time.Second {
		t.Fatalf("unexpected durations: %+v", cfg)
	}
	if cfg.KeeperAddress().Hex() != "0x00000000000000000000000000000000000000b3" {
		t.Fatalf("unexpected keeper address %s", cfg.KeeperAddress().Hex())
	}
}

func TestLoadConfigRejects(t *testing.T) {
	cases := map[string]string{
		"missing genesis": `
auth:
  jwt_secret: "0123456789abcdef"
`,
		"short secret": `
genesis: g.toml
auth:
  jwt_secret: "short"
`,
		"keeper without address": `
genesis: g.toml
auth:
  jwt_secret: "0123456789abcdef"
keeper:
  enabled: true
`,
		"postgres without dsn": `
genesis: g.toml
auth:
  jwt_secret: "0123456789abcdef"
indexer:
  driver: postgres
`,
		"unknown field": `
genesis: g.toml
colour: red
auth:
  jwt_secret: "0123456789abcdef"
`,
	}
	for name, contents := range cases {
		if _, err := Load(writeConfig(t, contents)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadConfigRequiresPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}
