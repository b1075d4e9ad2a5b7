package hop_controllers_test

import (
	"os"
	"path/filepath"
	"testing"

	"hopfield_sync/hop_controllers"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

var configKeys = []string{
	"LISTEN_ADDR", "DB_DRIVER", "DB_PATH", "DB_USER", "DB_PASSWORD", "DB_HOST",
	"DB_PORT", "DB_NAME", "DB_TABLE", "NTP_SERVER", "SIMULATION_SETTINGS", "SIMULATE_ON_START",
	"RECALL_MAX_UNITS", "RECALL_MAX_PATTERNS", "RECALL_MAX_ITERATIONS", "RECALL_MAX_BODY_BYTES",
}

func TestLoadServerConfig_Defaults(t *testing.T) {
	clearEnv(t, configKeys...)
	cfg, err := hop_controllers.LoadServerConfig(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ListenAddr != ":8080" || cfg.DBDriver != "sqlite" || cfg.DBTable != "recall_sessions" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.SimulateOnStart {
		t.Fatal("SimulateOnStart must default to false")
	}
	if cfg.RecallMaxUnits != 4096 || cfg.RecallMaxPatterns != 256 || cfg.RecallMaxIterations != 100000 || cfg.RecallMaxBodyBytes != 1<<20 {
		t.Fatalf("unexpected recall limits: %+v", cfg)
	}
}

func TestLoadServerConfig_FileAndEnv(t *testing.T) {
	clearEnv(t, configKeys...)
	path := filepath.Join(t.TempDir(), ".env")
	content := "DB_DRIVER=mysql\nDB_USER=hop\nDB_TABLE=runs\nSIMULATE_ON_START=true\nLISTEN_ADDR=:9000\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LISTEN_ADDR", ":7000")

	cfg, err := hop_controllers.LoadServerConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DBDriver != "mysql" || cfg.DBUser != "hop" || cfg.DBTable != "runs" || !cfg.SimulateOnStart {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.ListenAddr != ":7000" {
		t.Fatalf("environment must win over the file, got %s", cfg.ListenAddr)
	}
}

func TestLoadServerConfig_InvalidValues(t *testing.T) {
	clearEnv(t, configKeys...)
	t.Setenv("DB_DRIVER", "postgres")
	if _, err := hop_controllers.LoadServerConfig(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Fatal("unknown driver must fail")
	}
	t.Setenv("DB_DRIVER", "")
	t.Setenv("SIMULATE_ON_START", "maybe")
	if _, err := hop_controllers.LoadServerConfig(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Fatal("unparsable bool must fail")
	}
	t.Setenv("SIMULATE_ON_START", "")
	for _, key := range []string{"RECALL_MAX_UNITS", "RECALL_MAX_ITERATIONS", "RECALL_MAX_BODY_BYTES"} {
		t.Setenv(key, "0")
		if _, err := hop_controllers.LoadServerConfig(filepath.Join(t.TempDir(), "missing.env")); err == nil {
			t.Fatalf("%s=0 must fail", key)
		}
		t.Setenv(key, "")
	}
}
