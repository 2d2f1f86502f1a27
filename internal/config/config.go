// Package config loads reqifnorm settings from a YAML or TOML file.
//
// Config file locations (priority order):
//  1. the --config flag
//  2. $REQIFNORM_CONFIG
//  3. ./reqifnorm.yaml, ./reqifnorm.yml, ./reqifnorm.toml
//  4. ~/.config/reqifnorm/config.yaml
//
// Keys missing from the file keep their defaults. Command-line flags
// override file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	rerrors "github.com/FocuswithJustin/reqifnorm/core/errors"
	"github.com/FocuswithJustin/reqifnorm/core/normalize"
	"github.com/FocuswithJustin/reqifnorm/core/reqif"
	"github.com/FocuswithJustin/reqifnorm/core/sdoc"
	"github.com/FocuswithJustin/reqifnorm/core/workaround"
	"github.com/FocuswithJustin/reqifnorm/internal/logging"
)

// EnvConfig names the environment variable pointing at a config file.
const EnvConfig = "REQIFNORM_CONFIG"

// Config is the full set of tunables.
type Config struct {
	// Preprocess runs the text repairs before XML parsing.
	Preprocess bool `yaml:"preprocess" toml:"preprocess"`
	// ErrorLimit bounds conversion error messages, in characters.
	ErrorLimit          int      `yaml:"error_limit" toml:"error_limit"`
	DisabledWorkarounds []string `yaml:"disabled_workarounds" toml:"disabled_workarounds"`

	Flatten FlattenConfig `yaml:"flatten" toml:"flatten"`
	Log     LogConfig     `yaml:"log" toml:"log"`
	Corpus  CorpusConfig  `yaml:"corpus" toml:"corpus"`
}

// FlattenConfig controls the flatten command.
type FlattenConfig struct {
	Repair bool `yaml:"repair" toml:"repair"`
}

// LogConfig selects log level and format.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// CorpusConfig controls the corpus runner.
type CorpusConfig struct {
	Jobs     int      `yaml:"jobs" toml:"jobs"`
	Patterns []string `yaml:"patterns" toml:"patterns"`
	Database string   `yaml:"database" toml:"database"`
	Metrics  string   `yaml:"metrics" toml:"metrics"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Preprocess: true,
		ErrorLimit: normalize.DefaultErrorLimit,
		Log:        LogConfig{Level: "warn", Format: "text"},
		Corpus: CorpusConfig{
			Jobs:     1,
			Patterns: []string{"*.reqif", "*.reqifz", "*.xml"},
		},
	}
}

// FindConfigPath returns the first config file that exists, or "".
func FindConfigPath() string {
	if p := os.Getenv(EnvConfig); p != "" {
		return p
	}
	candidates := []string{"reqifnorm.yaml", "reqifnorm.yml", "reqifnorm.toml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "reqifnorm", "config.yaml"))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

// Load reads path, or the discovered config file when path is empty. With
// no file at all the defaults are returned.
func Load(path string) (*Config, error) {
	if path == "" {
		path = FindConfigPath()
	}
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, rerrors.Wrap(err, "read config")
	}

	cfg := Default()
	if isTOML(path) {
		err = toml.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, rerrors.Wrapf(err, "parse config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, rerrors.Wrapf(err, "invalid config %s", path)
	}
	return cfg, nil
}

// Save writes the config to path, as TOML for .toml files and YAML
// otherwise.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	var data []byte
	var err error
	if isTOML(path) {
		data, err = toml.Marshal(c)
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// Validate checks every value for consistency.
func (c *Config) Validate() error {
	if c.ErrorLimit <= 0 {
		return fmt.Errorf("%w: error_limit must be positive, got %d", rerrors.ErrInvalidInput, c.ErrorLimit)
	}
	if c.Corpus.Jobs < 1 {
		return fmt.Errorf("%w: corpus.jobs must be at least 1, got %d", rerrors.ErrInvalidInput, c.Corpus.Jobs)
	}
	if _, err := workaround.NewEngine(c.DisabledWorkarounds...); err != nil {
		return err
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if _, err := logging.ParseFormat(c.Log.Format); err != nil {
		return err
	}
	return nil
}

// Engine builds the workaround engine without the disabled passes.
func (c *Config) Engine() (*workaround.Engine, error) {
	return workaround.NewEngine(c.DisabledWorkarounds...)
}

// Parser builds the ReqIF parser.
func (c *Config) Parser() reqif.Parser {
	return reqif.Parser{SkipPreprocess: !c.Preprocess}
}

// Orchestrator builds a conversion orchestrator from the config.
func (c *Config) Orchestrator() (*normalize.Orchestrator, error) {
	engine, err := c.Engine()
	if err != nil {
		return nil, err
	}
	return &normalize.Orchestrator{
		Parser:     c.Parser(),
		Converter:  sdoc.Converter{},
		Engine:     engine,
		ErrorLimit: c.ErrorLimit,
	}, nil
}
