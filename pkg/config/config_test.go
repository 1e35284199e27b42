package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithNoFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxDataBlockSize != 16*1024*1024 {
		t.Errorf("expected default MaxDataBlockSize, got %d", cfg.MaxDataBlockSize)
	}
	if cfg.ReplicaCount != 2 {
		t.Errorf("expected default ReplicaCount 2, got %d", cfg.ReplicaCount)
	}
	if cfg.Gateway.Type != "memory" {
		t.Errorf("expected default gateway type memory, got %q", cfg.Gateway.Type)
	}
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fabnet.yaml")
	writeFile(t, path, `
namespace: test-ns
data_dir: /tmp/fabnet/catalog
journal_path: /tmp/fabnet/catalog.journal
block_dir: /tmp/fabnet/blocks
put_workers: 7
put_error_timeout: 10s
replica_count: 3
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Namespace != "test-ns" {
		t.Errorf("expected namespace test-ns, got %q", cfg.Namespace)
	}
	if cfg.PutWorkers != 7 {
		t.Errorf("expected PutWorkers 7, got %d", cfg.PutWorkers)
	}
	if cfg.PutErrorTimeout != 10*time.Second {
		t.Errorf("expected PutErrorTimeout 10s, got %v", cfg.PutErrorTimeout)
	}
	if cfg.ReplicaCount != 3 {
		t.Errorf("expected ReplicaCount 3, got %d", cfg.ReplicaCount)
	}
	// Unconfigured knobs still fall back to defaults.
	if cfg.GetWorkers != 3 {
		t.Errorf("expected default GetWorkers 3, got %d", cfg.GetWorkers)
	}
}

func TestValidateRejectsMissingRequiredFields(t *testing.T) {
	cfg := &Config{}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for empty Config")
	}
}

func TestValidateRejectsUnknownGatewayType(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Gateway.Type = "ftp"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for unknown gateway type")
	}
}

func TestToFileConfigCompilesPatterns(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TmpFilePatterns = []TmpPatternConfig{{Pattern: `^\._.+`, MaxSize: 2048}}

	fc := cfg.ToFileConfig()
	if len(fc.TmpFilePatterns) != 1 {
		t.Fatalf("expected 1 compiled pattern, got %d", len(fc.TmpFilePatterns))
	}
	if !fc.TmpFilePatterns[0].Re.MatchString("._lock") {
		t.Error("expected compiled pattern to match \"._lock\"")
	}
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
