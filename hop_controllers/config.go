package hop_controllers

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type ServerConfig struct {
	ListenAddr         string
	DBDriver           string
	DBPath             string
	DBUser             string
	DBPassword         string
	DBHost             string
	DBPort             string
	DBName             string
	DBTable            string
	NtpServer          string
	SimulationSettings string
	SimulateOnStart    bool

	// Limits applied to POST /recall requests.
	RecallMaxUnits      int
	RecallMaxPatterns   int
	RecallMaxIterations int
	RecallMaxBodyBytes  int64
}

// LoadServerConfig reads the given .env files (".env" when none is named)
// and overlays the process environment on top. Missing files are ignored.
func LoadServerConfig(envFiles ...string) (ServerConfig, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	fileEnv := map[string]string{}
	for _, file := range envFiles {
		values, err := godotenv.Read(file)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return ServerConfig{}, fmt.Errorf("error loading %s: %w", file, err)
		}
		for k, v := range values {
			fileEnv[k] = v
		}
	}
	lookup := func(key string, fallback string) string {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			return v
		}
		if v, ok := fileEnv[key]; ok && v != "" {
			return v
		}
		return fallback
	}

	cfg := ServerConfig{
		ListenAddr:         lookup("LISTEN_ADDR", ":8080"),
		DBDriver:           lookup("DB_DRIVER", DriverSQLite),
		DBPath:             lookup("DB_PATH", "recall_sessions.db"),
		DBUser:             lookup("DB_USER", ""),
		DBPassword:         lookup("DB_PASSWORD", ""),
		DBHost:             lookup("DB_HOST", "127.0.0.1"),
		DBPort:             lookup("DB_PORT", "3306"),
		DBName:             lookup("DB_NAME", ""),
		DBTable:            lookup("DB_TABLE", "recall_sessions"),
		NtpServer:          lookup("NTP_SERVER", ""),
		SimulationSettings: lookup("SIMULATION_SETTINGS", "simulation_settings.json"),
	}
	if raw := lookup("SIMULATE_ON_START", "false"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return ServerConfig{}, fmt.Errorf("SIMULATE_ON_START is invalid: %w", err)
		}
		cfg.SimulateOnStart = v
	}
	limits := []struct {
		key      string
		fallback string
		target   *int
	}{
		{"RECALL_MAX_UNITS", "4096", &cfg.RecallMaxUnits},
		{"RECALL_MAX_PATTERNS", "256", &cfg.RecallMaxPatterns},
		{"RECALL_MAX_ITERATIONS", "100000", &cfg.RecallMaxIterations},
	}
	for _, limit := range limits {
		v, err := strconv.Atoi(lookup(limit.key, limit.fallback))
		if err != nil || v < 1 {
			return ServerConfig{}, fmt.Errorf("%s is invalid: %q", limit.key, lookup(limit.key, limit.fallback))
		}
		*limit.target = v
	}
	bodyBytes, err := strconv.ParseInt(lookup("RECALL_MAX_BODY_BYTES", "1048576"), 10, 64)
	if err != nil || bodyBytes < 1 {
		return ServerConfig{}, fmt.Errorf("RECALL_MAX_BODY_BYTES is invalid: %q", lookup("RECALL_MAX_BODY_BYTES", ""))
	}
	cfg.RecallMaxBodyBytes = bodyBytes

	if cfg.DBDriver != DriverSQLite && cfg.DBDriver != DriverMySQL {
		return ServerConfig{}, fmt.Errorf("DB_DRIVER is invalid: %s", cfg.DBDriver)
	}
	return cfg, nil
}
