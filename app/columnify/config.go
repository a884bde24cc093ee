package columnify

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Columns []ColumnConfig `yaml:"columns"`
}

type ColumnConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`

	// Adaptive stores integer columns at the narrowest width able to hold
	// the data.
	Adaptive bool `yaml:"adaptive"`

	// Dictionary dictionary-encodes string and binary columns.
	Dictionary bool `yaml:"dictionary"`

	// Precision and Scale apply to decimal128 columns only.
	Precision int32 `yaml:"precision"`
	Scale     int32 `yaml:"scale"`
}

func newConfigFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func (cfg *Config) validate() error {
	if len(cfg.Columns) == 0 {
		return fmt.Errorf("no columns described")
	}

	seen := make(map[string]struct{}, len(cfg.Columns))

	for i, column := range cfg.Columns {
		if column.Name == "" {
			return fmt.Errorf("column #%d has no name", i)
		}

		if _, exists := seen[column.Name]; exists {
			return fmt.Errorf("duplicate column name %s", column.Name)
		}

		seen[column.Name] = struct{}{}

		if column.Type == "" {
			return fmt.Errorf("column %s has no type", column.Name)
		}

		if column.Type == typeDecimal128 && column.Precision <= 0 {
			return fmt.Errorf("column %s: decimal128 requires a positive precision", column.Name)
		}
	}

	return nil
}
