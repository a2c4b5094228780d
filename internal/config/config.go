// Package config resolves the shovel fleet's settings. Grounded on the
// teacher's main.go, which itself reads everything from os.Getenv with
// defaults rather than routing through its own internal/config.Load — that
// env-var-first idiom, not the YAML file, is what's actually exercised
// end-to-end, so it's what this package follows. A YAML loader is kept for
// the handful of settings (historic node lists, per-shovel defaults) that
// benefit from a file instead of a pile of env vars.
package config

import (
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the fleet's resolved runtime configuration.
type Config struct {
	// ArchiveNodeURL is the single-node fallback used when ArchiveNodes is
	// empty. Mirrors internal/chain.NewClientFromEnv's own fallback
	// argument, so a caller can pass Config fields straight through.
	ArchiveNodeURL string
	// ArchiveNodes is a comma/space separated list of Substrate archive
	// node WebSocket URLs, read from SUBSTRATE_ARCHIVE_NODES.
	ArchiveNodes string

	ClickHouseHost     string
	ClickHousePort     int
	ClickHouseDatabase string
	ClickHouseUser     string
	ClickHousePassword string

	// CMCToken authenticates against the CoinMarketCap-compatible price
	// oracle (internal/market).
	CMCToken string

	// ShovelName selects which shovel a generic binary runs (cmd/shovel).
	ShovelName string
	// StartBlock is the block a shovel with no prior checkpoint begins at.
	StartBlock uint64
	// SkipInterval overrides a periodic shovel's default sampling cadence
	// (e.g. validators' 7200-block snapshot interval).
	SkipInterval uint64
	// Debug shortens the write buffer's flush interval from 5s to 1s.
	Debug bool
}

// FromEnv resolves Config from the environment, matching the teacher
// main.go's os.Getenv-with-default idiom.
func FromEnv() Config {
	return Config{
		ArchiveNodeURL: os.Getenv("SUBSTRATE_ARCHIVE_NODE_URL"),
		ArchiveNodes:   os.Getenv("SUBSTRATE_ARCHIVE_NODES"),

		ClickHouseHost:     envOr("CLICKHOUSE_HOST", "localhost"),
		ClickHousePort:     envIntOr("CLICKHOUSE_PORT", 8123),
		ClickHouseDatabase: envOr("CLICKHOUSE_DB", "default"),
		ClickHouseUser:     envOr("CLICKHOUSE_USER", "default"),
		ClickHousePassword: os.Getenv("CLICKHOUSE_PASSWORD"),

		CMCToken: os.Getenv("CMC_TOKEN"),

		ShovelName:   os.Getenv("SHOVEL_NAME"),
		StartBlock:   envUint64Or("SHOVEL_START_BLOCK", 0),
		SkipInterval: envUint64Or("SHOVEL_SKIP_INTERVAL", 0),
		Debug:        os.Getenv("SHOVEL_DEBUG") != "",
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envUint64Or(key string, fallback uint64) uint64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

// StaticSettings holds the handful of settings that are more naturally a
// checked-in file than an env var: the historic node roster, and
// per-shovel defaults an operator wants versioned alongside the fleet's
// deployment rather than passed as flags every time.
type StaticSettings struct {
	// HistoricNodes maps a chain name to an ordered list of archive node
	// URLs known to have served that chain historically, for operators
	// running against more than one Substrate chain from one checkout.
	HistoricNodes map[string][]string `yaml:"historic_nodes"`
	// ShovelDefaults maps a shovel name to its default skip interval,
	// letting an operator tune sampling cadence without env vars per shovel.
	ShovelDefaults map[string]uint64 `yaml:"shovel_defaults"`
}

// LoadStaticSettings reads StaticSettings from a YAML file. A missing file
// is not an error: it simply yields the zero value, since every field here
// has a sensible in-code default elsewhere.
func LoadStaticSettings(path string) (StaticSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return StaticSettings{}, nil
		}
		return StaticSettings{}, err
	}
	var s StaticSettings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return StaticSettings{}, err
	}
	return s, nil
}
