package seeder

import (
	"fmt"
	"strconv"
	"strings"
)

type LookupFunc func(string) (string, bool)

type Config struct {
	Bucket          string
	CredentialsFile string
	Prefix          string
	Database        string
	Table           string
	Snapshots       int
	RowsPerSnapshot int
	KeyCardinality  int
	Seed            int64
}

func DefaultConfig() Config {
	return Config{
		Bucket:          "iceberg-storage",
		Prefix:          "warehouse",
		Database:        "db",
		Table:           "events",
		Snapshots:       3,
		RowsPerSnapshot: 200,
		KeyCardinality:  50,
		Seed:            42,
	}
}

func LoadConfigFromEnv(lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	cfg := DefaultConfig()
	if err := applyString(lookup, "ICEQUERY_SEED_BUCKET", &cfg.Bucket); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ICEQUERY_SEED_CREDENTIALS_FILE", &cfg.CredentialsFile); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ICEQUERY_SEED_PREFIX", &cfg.Prefix); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ICEQUERY_SEED_DATABASE", &cfg.Database); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ICEQUERY_SEED_TABLE", &cfg.Table); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "ICEQUERY_SEED_SNAPSHOTS", &cfg.Snapshots); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "ICEQUERY_SEED_ROWS_PER_SNAPSHOT", &cfg.RowsPerSnapshot); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "ICEQUERY_SEED_KEY_CARDINALITY", &cfg.KeyCardinality); err != nil {
		return Config{}, err
	}
	if err := applyInt64(lookup, "ICEQUERY_SEED_SEED", &cfg.Seed); err != nil {
		return Config{}, err
	}

	if cfg.Snapshots <= 0 || cfg.RowsPerSnapshot <= 0 || cfg.KeyCardinality <= 0 {
		return Config{}, fmt.Errorf("snapshots, rows per snapshot and key cardinality must be positive")
	}
	if cfg.Database == "" || cfg.Table == "" {
		return Config{}, fmt.Errorf("database and table are required")
	}
	return cfg, nil
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt64(lookup LookupFunc, key string, dst *int64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}
