// Package anchor wires configuration parsing and startup for the anchor
// service command.
package anchor

import (
	"context"
	"flag"
	"strconv"
	"strings"

	platformcmd "github.com/ophelios-studio/codequill-contracts/internal/platform/cmd"
	server "github.com/ophelios-studio/codequill-contracts/internal/services/anchor/app"
)

// Config holds anchor command configuration.
type Config struct {
	Port   int
	DBPath string
}

// EnvLookup returns the value for a key when present.
type EnvLookup func(string) (string, bool)

// ParseConfig parses environment defaults and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string, lookup EnvLookup) (Config, error) {
	cfg := Config{
		Port:   envIntOrDefault(lookup, "CODEQUILL_ANCHOR_PORT", 8090),
		DBPath: envOrDefault(lookup, "CODEQUILL_ANCHOR_DB_PATH", ""),
	}

	fs.IntVar(&cfg.Port, "port", cfg.Port, "The anchor health endpoint port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "Path to the anchor SQLite database")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the anchor server with telemetry configured.
func Run(ctx context.Context, cfg Config) error {
	return platformcmd.RunWithTelemetry(ctx, platformcmd.ServiceAnchor, func(runCtx context.Context) error {
		return server.Run(runCtx, cfg.Port, cfg.DBPath)
	})
}

func envOrDefault(lookup EnvLookup, key, fallback string) string {
	if lookup == nil {
		return fallback
	}
	value, ok := lookup(key)
	if !ok {
		return fallback
	}
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}

func envIntOrDefault(lookup EnvLookup, key string, fallback int) int {
	raw := envOrDefault(lookup, key, "")
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}
