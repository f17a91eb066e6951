package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DirName is the name of the global and per-repo configuration directories.
const DirName = ".quotemap"

// Config holds application configuration.
type Config struct {
	// FuzzyThreshold is the minimum 0-100 score for a text annotation to
	// match a segment. Literal containment always matches.
	// Nil means DefaultFuzzyThreshold; an explicit 0 matches every segment.
	FuzzyThreshold *int `json:"fuzzy_threshold,omitempty"`

	// Workers is the number of independent workers serving `quotemap worker`.
	Workers int `json:"workers"`

	// BatchMaxPosts caps the number of post ids in one fetch-and-align batch.
	BatchMaxPosts int `json:"batch_max_posts"`

	// AllowedPaths is an allowlist of directories for import/report files.
	// Paths outside ~/.quotemap/reports require either being in this list or AllowUnsafePaths=true.
	// Paths should be absolute (relative paths are ignored).
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// AllowUnsafePaths disables directory restrictions for import/report.
	// Symlink and extension checks still apply.
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes is a list of tool groups to disable entirely.
	// Known types: "analysis", "dataset". Unknown type names are logged as warnings.
	DisabledTypes []string `json:"disabled_types,omitempty"`
}

// DefaultFuzzyThreshold is the fuzzy threshold used when none is configured.
const DefaultFuzzyThreshold = 85

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		FuzzyThreshold: IntPtr(DefaultFuzzyThreshold),
		Workers:        1,
		BatchMaxPosts:  100,
	}
}

// Validate rejects values that cannot be used as-is.
func (c *Config) Validate() error {
	if t := c.Threshold(); t < 0 || t > 100 {
		return fmt.Errorf("fuzzy_threshold must be between 0 and 100, got %d", t)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if c.BatchMaxPosts < 0 {
		return fmt.Errorf("batch_max_posts must not be negative, got %d", c.BatchMaxPosts)
	}
	return nil
}

// Threshold returns the configured fuzzy threshold, or the default when unset.
func (c *Config) Threshold() int {
	if c == nil || c.FuzzyThreshold == nil {
		return DefaultFuzzyThreshold
	}
	return *c.FuzzyThreshold
}

// IntPtr returns a pointer to n.
func IntPtr(n int) *int {
	return &n
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.quotemap.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.quotemap) and repo (.quotemap) directories.
// Repo config is found by walking upward from startDir to find the nearest .quotemap/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	cfg := Merge(Merge(DefaultConfig(), global), repo)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FindRepoConfig walks upward from startDir to find the nearest .quotemap/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, DirName, "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configPath, err)
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	merged := Merge(DefaultConfig(), cfg)
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return merged, nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	// Threshold: overlay wins if set, including an explicit 0
	result.FuzzyThreshold = base.FuzzyThreshold
	if overlay.FuzzyThreshold != nil {
		result.FuzzyThreshold = IntPtr(*overlay.FuzzyThreshold)
	}

	// Scalars: overlay wins if non-zero, else base
	result.Workers = firstNonZero(overlay.Workers, base.Workers)
	result.BatchMaxPosts = firstNonZero(overlay.BatchMaxPosts, base.BatchMaxPosts)
	result.DBMaxOpenConns = firstNonZero(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = firstNonZero(overlay.DBMaxIdleConns, base.DBMaxIdleConns)

	// Booleans: overlay wins if true, else base
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths

	// Arrays: merge and deduplicate
	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

func firstNonZero(a, b int) int {
	if a != 0 {
		return a
	}
	return b
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, list := range [][]string{a, b} {
		for _, s := range list {
			s = strings.TrimSpace(s)
			if s != "" && !seen[s] {
				seen[s] = true
				result = append(result, s)
			}
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
