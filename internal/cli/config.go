// Package cli provides shared configuration and exit-code plumbing for the
// rlsguard CLI.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const maxWalkDepth = 25

// Config represents the effective rlsguard configuration, loaded from
// rlsguard.yaml with flag and environment overrides.
type Config struct {
	// PolicyDir is the directory of *.policy source files, aggregated in
	// lexicographic filename order.
	PolicyDir string `mapstructure:"policy_dir"`

	// Target is the PostgreSQL connection string the introspection and
	// apply adapters connect to.
	Target string `mapstructure:"target"`

	// Format selects "text" or "json" rendering for analyze/compile/monitor.
	Format string `mapstructure:"format"`

	// TraversalDepth overrides the default bound on nested exists(...)
	// traversals.
	TraversalDepth int `mapstructure:"traversal_depth"`

	Proof   ProofConfig   `mapstructure:"proof"`
	Apply   ApplyConfig   `mapstructure:"apply"`
	Monitor MonitorConfig `mapstructure:"monitor"`
}

// ProofConfig selects which proofs run and the per-proof-per-query
// solver timeout.
type ProofConfig struct {
	Enabled   []string `mapstructure:"enabled"`
	Disabled  []string `mapstructure:"disabled"`
	TimeoutMs int      `mapstructure:"timeout_ms"`

	// SolverPath locates the external SMT solver binary; resolved via
	// PATH when left as the bare default.
	SolverPath string `mapstructure:"solver_path"`
}

// ApplyConfig holds `apply` command settings.
type ApplyConfig struct {
	DryRun bool `mapstructure:"dry_run"`
}

// MonitorConfig holds `monitor` command settings.
type MonitorConfig struct {
	Reconcile bool `mapstructure:"reconcile"`
}

// LoadConfig discovers and loads configuration with proper precedence:
// flags > env > config file > defaults.
//
// Returns the loaded config, the path to the config file (empty if none
// found), and any error encountered.
func LoadConfig(explicitConfigPath string) (*Config, string, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("RLSGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath, err := findConfigFile(explicitConfigPath)
	if err != nil {
		return nil, "", err
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, configPath, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, configPath, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, configPath, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("policy_dir", "policies")
	v.SetDefault("target", "")
	v.SetDefault("format", "text")
	v.SetDefault("traversal_depth", 2)

	v.SetDefault("proof.enabled", []string{})
	v.SetDefault("proof.disabled", []string{})
	v.SetDefault("proof.timeout_ms", 5000)
	v.SetDefault("proof.solver_path", "z3")

	v.SetDefault("apply.dry_run", false)
	v.SetDefault("monitor.reconcile", false)
}

// configFileNames are the filenames probed in each directory during
// auto-discovery, in preference order.
var configFileNames = []string{"rlsguard.yaml", "rlsguard.yml"}

// findConfigFile resolves the config file to load: an explicit path must
// exist, otherwise discovery walks up from the working directory.
func findConfigFile(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicitPath)
		}
		return explicitPath, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting cwd: %w", err)
	}
	return discoverConfig(cwd), nil
}

// discoverConfig probes dir and its ancestors for a config file,
// returning "" when none is found. The walk never crosses a repository
// boundary: once a directory contains a .git entry, a config living in
// some parent checkout must not leak into this one. maxWalkDepth bounds
// pathological directory nesting.
func discoverConfig(dir string) string {
	for depth := 0; depth < maxWalkDepth; depth++ {
		for _, name := range configFileNames {
			candidate := filepath.Join(dir, name)
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate
			}
		}

		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return ""
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
	return ""
}
