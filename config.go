package flowgraph

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the YAML engine configuration consumed by LoadConfig and the
// CLI. All fields are optional; the zero value is a bare in-memory
// engine.
type Config struct {
	Journal struct {
		Path    string `yaml:"path"`
		Session string `yaml:"session"`
	} `yaml:"journal"`
	Policy struct {
		Script string `yaml:"script"` // path to a .risor policy script
	} `yaml:"policy"`
	DebugChecks bool `yaml:"debug_checks"`
}

// LoadConfig reads a YAML config file. A .env file in the working
// directory is loaded first, and FLOWGRAPH_* environment variables
// override the corresponding file values.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	file, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(file, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if p := os.Getenv("FLOWGRAPH_JOURNAL"); p != "" {
		cfg.Journal.Path = p
	}
	if s := os.Getenv("FLOWGRAPH_SESSION"); s != "" {
		cfg.Journal.Session = s
	}
	if p := os.Getenv("FLOWGRAPH_POLICY"); p != "" {
		cfg.Policy.Script = p
	}

	return &cfg, nil
}

// Options translates a Config into engine options.
func (c *Config) Options() []Option {
	var opts []Option
	if c.Journal.Path != "" {
		opts = append(opts, WithJournal(c.Journal.Path))
	}
	if c.Journal.Session != "" {
		opts = append(opts, WithSession(c.Journal.Session))
	}
	if c.Policy.Script != "" {
		opts = append(opts, WithPolicyScriptFile(c.Policy.Script))
	}
	if c.DebugChecks {
		opts = append(opts, WithDebugChecks())
	}
	return opts
}
