package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/xraph/jobgraph/artifact/rclone"
)

// envPrefix is the prefix of environment overrides: JOBGRAPH_STORE_DRIVER
// sets store.driver.
const envPrefix = "JOBGRAPH_"

// Settings is the process configuration. Pipeline inputs come from flags;
// everything about where and how jobs run lives here.
type Settings struct {
	Log       LogSettings      `koanf:"log"`
	Store     StoreSettings    `koanf:"store"`
	Work      WorkSettings     `koanf:"work"`
	Artifacts ArtifactSettings `koanf:"artifacts"`
	Transfer  TransferSettings `koanf:"transfer"`
	NATS      NATSSettings     `koanf:"nats"`
	Audit     bool             `koanf:"audit"`
}

type LogSettings struct {
	Level         string `koanf:"level"`
	Format        string `koanf:"format"`
	// AuditSeverity is the lowest severity the audit trail keeps: info,
	// warning or critical.
	AuditSeverity string `koanf:"audit_severity"`
}

type StoreSettings struct {
	// Driver is memory, postgres, bun (PostgreSQL through the bun ORM),
	// mongo or redis.
	Driver string `koanf:"driver"`
	URL    string `koanf:"url"`
	// Prefix namespaces redis keys.
	Prefix string `koanf:"prefix"`
}

type WorkSettings struct {
	Dir         string        `koanf:"dir"`
	Keep        bool          `koanf:"keep"`
	Concurrency int           `koanf:"concurrency"`
	Cores       int           `koanf:"cores"`
	MemoryGiB   int64         `koanf:"memory_gib"`
	DiskGiB     int64         `koanf:"disk_gib"`
	ToolTimeout time.Duration `koanf:"tool_timeout"`
}

type ArtifactSettings struct {
	Dir    string        `koanf:"dir"`
	Rclone rclone.Config `koanf:"rclone"`
}

type TransferSettings struct {
	Attempts      int    `koanf:"attempts"`
	MaxConcurrent int    `koanf:"max_concurrent"`
	BaseURL       string `koanf:"base_url"`
}

type NATSSettings struct {
	URL    string `koanf:"url"`
	Prefix string `koanf:"prefix"`
	// Codec is json or msgpack.
	Codec string `koanf:"codec"`
}

func loadDefaults(k *koanf.Koanf) {
	defaults := map[string]any{
		"log.level":  "info",
		"log.format": "pretty",

		"log.audit_severity": "info",

		"store.driver": "memory",
		"store.prefix": "jobgraph",

		"work.concurrency": 0,
		"work.cores":       0,
		"work.memory_gib":  0,
		"work.disk_gib":    0,

		"transfer.attempts":       3,
		"transfer.max_concurrent": 4,

		"nats.prefix": "jobgraph",
		"nats.codec":  "json",
	}
	for key, val := range defaults {
		_ = k.Set(key, val)
	}
}

// LoadSettings reads defaults, then the TOML file at path when given,
// then JOBGRAPH_* environment variables.
func LoadSettings(path string) (*Settings, error) {
	k := koanf.New(".")
	loadDefaults(k)

	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	// Empty values never override the file.
	if err := k.Load(env.ProviderWithValue(envPrefix, ".", func(key, value string) (string, any) {
		if value == "" {
			return "", nil
		}
		return envKey(key), value
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var s Settings
	if err := k.Unmarshal("", &s); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	return &s, nil
}

// envKey maps JOBGRAPH_WORK_MEMORY_GIB to work.memory_gib. The first
// underscore separates the section; the rest belong to the key.
func envKey(name string) string {
	name = strings.ToLower(strings.TrimPrefix(name, envPrefix))
	section, key, ok := strings.Cut(name, "_")
	if !ok {
		return name
	}
	if section == "artifacts" && strings.HasPrefix(key, "rclone_") {
		return "artifacts.rclone." + strings.TrimPrefix(key, "rclone_")
	}
	return section + "." + key
}
