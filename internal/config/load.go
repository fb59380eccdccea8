package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix selects the variables LoadFromEnvironment reads; "__" nests,
// so USERPROFILE__KAFKA__GROUP_ID sets kafka.group_id.
const EnvPrefix = "USERPROFILE__"

// list-valued keys accept comma separated env values
var listKeys = map[string]bool{"kafka.brokers": true}

// Load layers defaults, the YAML file at path (if present) and the
// environment, in that order.
func Load(path string) (ServiceConfig, error) {
	k := koanf.New(".")
	if err := loadFile(k, path); err != nil {
		return ServiceConfig{}, err
	}
	if err := loadEnv(k); err != nil {
		return ServiceConfig{}, err
	}
	return unmarshal(k)
}

// LoadFromFile applies only the YAML file on top of the defaults.
func LoadFromFile(path string) (ServiceConfig, error) {
	k := koanf.New(".")
	if err := loadFile(k, path); err != nil {
		return ServiceConfig{}, err
	}
	return unmarshal(k)
}

// LoadFromEnvironment applies only USERPROFILE__* variables on top of the defaults.
func LoadFromEnvironment() (ServiceConfig, error) {
	k := koanf.New(".")
	if err := loadEnv(k); err != nil {
		return ServiceConfig{}, err
	}
	return unmarshal(k)
}

func loadFile(k *koanf.Koanf, path string) error {
	if path == "" {
		return nil
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil &&
		!errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config %s: %w", path, err)
	}
	// schema version check (only when YAML is present)
	sv := k.String("schema_version")
	if sv != "" && sv != SupportedSchema {
		return fmt.Errorf("config schema_version %q not supported (want %s)", sv, SupportedSchema)
	}
	return nil
}

func loadEnv(k *koanf.Koanf) error {
	return k.Load(env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, any) {
		key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
		key = strings.ReplaceAll(key, "__", ".")
		if listKeys[key] {
			return key, splitList(value)
		}
		return key, value
	}), nil)
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func unmarshal(k *koanf.Koanf) (ServiceConfig, error) {
	cfg := Default()
	// slices decode element-wise onto the default; start them empty
	for key := range listKeys {
		if k.Exists(key) {
			cfg.Kafka.Brokers = nil
		}
	}
	if err := k.Unmarshal("", &cfg); err != nil {
		return ServiceConfig{}, fmt.Errorf("config: %w", err)
	}
	cfg.SchemaVersion = SupportedSchema
	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(c *ServiceConfig) {
	if c.Kafka.CommitMode == "" {
		c.Kafka.CommitMode = CommitE2E
	}
	if c.Kafka.StartFrom == "" {
		c.Kafka.StartFrom = "newest"
	}
	if c.Kafka.ClientID == "" {
		c.Kafka.ClientID = c.Service.Name
	}
	if c.Kafka.BackPressure.Capacity == 0 {
		c.Kafka.BackPressure.Capacity = 30_000
	}
	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
}
