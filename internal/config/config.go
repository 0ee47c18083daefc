// Package config loads agentsim run settings from YAML files and
// environment variables, and validates them against an embedded JSON schema.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/talgya/agentsim/internal/economy"
	"github.com/talgya/agentsim/internal/life"
	"github.com/talgya/agentsim/internal/market"
	"github.com/talgya/agentsim/internal/world"
)

//go:embed schema.json
var schemaJSON string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("agentsim.schema.json", schemaJSON)
	})
	return schema, schemaErr
}

// Config is everything a run needs.
type Config struct {
	// Seed for the simulation's random source. 0 picks one at startup.
	Seed  int64 `json:"seed" yaml:"seed"`
	Ticks int   `json:"ticks" yaml:"ticks"`

	// SlowTickWarn logs ticks slower than this. 0 disables the warning.
	SlowTickWarn time.Duration `json:"slow_tick_warn" yaml:"slow_tick_warn"`

	Logging LoggingConfig `json:"logging" yaml:"logging"`
	Entropy EntropyConfig `json:"entropy" yaml:"entropy"`
	Life    LifeConfig    `json:"life" yaml:"life"`
	Market  market.Config `json:"market" yaml:"market"`
	Storage StorageConfig `json:"storage" yaml:"storage"`
	Series  SeriesConfig  `json:"series" yaml:"series"`
	API     APIConfig     `json:"api" yaml:"api"`
}

// LoggingConfig sets log verbosity: "warn", "info" (default), "debug" or "trace".
type LoggingConfig struct {
	Level string `json:"level" yaml:"level"`
}

// EntropyConfig configures seed generation.
type EntropyConfig struct {
	// RandomOrgKey enables random.org seeds. Supports ${VAR} syntax.
	RandomOrgKey string `json:"random_org_key" yaml:"random_org_key"`
}

// String keeps the key out of logs.
func (c EntropyConfig) String() string {
	if c.RandomOrgKey == "" {
		return "EntropyConfig{RandomOrgKey:}"
	}
	return "EntropyConfig{RandomOrgKey:(set)}"
}

// LifeConfig configures the cellular automaton scenario.
type LifeConfig struct {
	CellSize float64     `json:"cell_size" yaml:"cell_size"`
	Pattern  string      `json:"pattern" yaml:"pattern"`
	Noise    NoiseConfig `json:"noise" yaml:"noise"`
}

// NoiseConfig shapes the "noise" starting pattern.
type NoiseConfig struct {
	Radius    int     `json:"radius" yaml:"radius"`
	Threshold float64 `json:"threshold" yaml:"threshold"`
	Frequency float64 `json:"frequency" yaml:"frequency"`
	Octaves   int     `json:"octaves" yaml:"octaves"`
}

// Scenario converts c into the life package's settings. The noise pattern
// is seeded from seed so a run is reproducible.
func (c LifeConfig) Scenario(seed int64) life.Config {
	return life.Config{
		CellSize: c.CellSize,
		Pattern:  c.Pattern,
		Noise: world.NoiseConfig{
			Radius:    c.Noise.Radius,
			Seed:      seed,
			Threshold: c.Noise.Threshold,
			Frequency: c.Noise.Frequency,
			Octaves:   c.Noise.Octaves,
		},
	}
}

// StorageConfig locates the SQLite database. An empty path disables it.
type StorageConfig struct {
	DBPath string `json:"db_path" yaml:"db_path"`
}

// SeriesConfig locates the compressed series logs. An empty dir disables them.
type SeriesConfig struct {
	Dir string `json:"dir" yaml:"dir"`
}

// APIConfig configures the HTTP server used by served runs.
type APIConfig struct {
	Port     int    `json:"port" yaml:"port"`
	AdminKey string `json:"admin_key" yaml:"admin_key"`

	// Interval is the tick interval at speed 1.0.
	Interval time.Duration `json:"interval" yaml:"interval"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	n := world.DefaultNoiseConfig()
	return &Config{
		Ticks:        200,
		SlowTickWarn: 2 * time.Second,
		Logging:      LoggingConfig{Level: "info"},
		Life: LifeConfig{
			CellSize: life.DefaultCellSize,
			Pattern:  "gosper",
			Noise: NoiseConfig{
				Radius:    n.Radius,
				Threshold: n.Threshold,
				Frequency: n.Frequency,
				Octaves:   n.Octaves,
			},
		},
		Market: market.DefaultConfig(),
		Series: SeriesConfig{Dir: "runs"},
		API: APIConfig{
			Port:     8080,
			Interval: 100 * time.Millisecond,
		},
	}
}

// Load returns the defaults overlaid with path (if non-empty) and then the
// environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		fileCfg, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// LoadFromFile loads configuration from a specific YAML file. Fields the
// file omits keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.Entropy.RandomOrgKey = expandEnvVars(cfg.Entropy.RandomOrgKey)
	cfg.API.AdminKey = expandEnvVars(cfg.API.AdminKey)
	return cfg, nil
}

// Validate checks c against the schema, then the cross-field rules the
// schema cannot express.
func (c *Config) Validate() error {
	s, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compiling config schema: %w", err)
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("decoding config: %w", err)
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if _, err := economy.NewConversionTable(c.Market.Conversions); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := c.Market.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if p := c.Market.Perturbation; p.RateMin > p.RateMax {
		return fmt.Errorf("invalid config: perturbation rate_min %g above rate_max %g", p.RateMin, p.RateMax)
	}
	return nil
}

// applyEnvOverrides applies AGENTSIM_* environment variables to cfg.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AGENTSIM_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Seed = n
		}
	}
	if v := os.Getenv("AGENTSIM_TICKS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ticks = n
		}
	}
	if v := os.Getenv("AGENTSIM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("AGENTSIM_DB"); v != "" {
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("AGENTSIM_SERIES_DIR"); v != "" {
		cfg.Series.Dir = v
	}
	if v := os.Getenv("AGENTSIM_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = n
		}
	}
	if v := os.Getenv("AGENTSIM_ADMIN_KEY"); v != "" {
		cfg.API.AdminKey = v
	}
	if v := os.Getenv("RANDOM_ORG_API_KEY"); v != "" {
		cfg.Entropy.RandomOrgKey = v
	}
}

// expandEnvVars expands a value of the form ${VAR}. Anything else is
// returned unchanged.
func expandEnvVars(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return os.Getenv(s[2 : len(s)-1])
	}
	return s
}
