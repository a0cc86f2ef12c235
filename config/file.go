package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// fileConfig mirrors the TOML job file. Zero values leave the defaults alone.
type fileConfig struct {
	Endpoint    string   `toml:"endpoint"`
	Engine      string   `toml:"engine"`
	Country     string   `toml:"country"`
	Language    string   `toml:"language"`
	APIKey      string   `toml:"api_key"`
	Queries     []string `toml:"queries"`
	MaxImages   int      `toml:"max_images_per_query"`
	Timeout     string   `toml:"timeout"`
	UserAgent   string   `toml:"user_agent"`
	Output      output   `toml:"output"`
	MetricsAddr string   `toml:"metrics_addr"`
}

type output struct {
	File   string `toml:"file"`
	Format string `toml:"format"`
}

// LoadFile reads a TOML job file and applies it on top of cfg.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if fc.Endpoint != "" {
		cfg.Endpoint = fc.Endpoint
	}
	if fc.Engine != "" {
		cfg.Engine = fc.Engine
	}
	if fc.Country != "" {
		cfg.Country = fc.Country
	}
	if fc.Language != "" {
		cfg.Language = fc.Language
	}
	if fc.APIKey != "" {
		cfg.APIKey = fc.APIKey
	}
	if fc.Queries != nil {
		cfg.Queries = NormalizeQueries(fc.Queries)
	}
	if fc.MaxImages != 0 {
		cfg.MaxImagesPerQuery = fc.MaxImages
	}
	if fc.Timeout != "" {
		d, err := time.ParseDuration(fc.Timeout)
		if err != nil {
			return fmt.Errorf("invalid timeout %q: %w", fc.Timeout, err)
		}
		cfg.Timeout = d
	}
	if fc.UserAgent != "" {
		cfg.UserAgent = fc.UserAgent
	}
	if fc.Output.File != "" {
		cfg.OutputFile = fc.Output.File
	}
	if fc.Output.Format != "" {
		cfg.OutputFormat = strings.ToLower(fc.Output.Format)
	}
	if fc.MetricsAddr != "" {
		cfg.MetricsAddr = fc.MetricsAddr
	}
	return nil
}

// NormalizeQueries trims each query and drops blank entries. Order and
// repeated queries are preserved.
func NormalizeQueries(queries []string) []string {
	out := make([]string, 0, len(queries))
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		out = append(out, q)
	}
	return out
}
