package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoad_DefaultWhenMissing(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Threshold() != 85 {
		t.Errorf("FuzzyThreshold = %d, want 85", cfg.Threshold())
	}
	if cfg.Workers != 1 {
		t.Errorf("Workers = %d, want 1", cfg.Workers)
	}
	if cfg.BatchMaxPosts != 100 {
		t.Errorf("BatchMaxPosts = %d, want 100", cfg.BatchMaxPosts)
	}
}

func TestLoad_OverridesFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{"fuzzy_threshold": 90, "workers": 4}`)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Threshold() != 90 {
		t.Errorf("FuzzyThreshold = %d, want 90", cfg.Threshold())
	}
	if cfg.Workers != 4 {
		t.Errorf("Workers = %d, want 4", cfg.Workers)
	}
	if cfg.BatchMaxPosts != 100 {
		t.Errorf("BatchMaxPosts = %d, want 100 (default)", cfg.BatchMaxPosts)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{not json}`)

	if _, err := Load(tmpDir); err == nil {
		t.Fatalf("Load() expected error, got nil")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"threshold above 100", `{"fuzzy_threshold": 101}`},
		{"negative threshold", `{"fuzzy_threshold": -1}`},
		{"negative workers", `{"workers": -2}`},
		{"negative batch", `{"batch_max_posts": -5}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			writeConfig(t, tmpDir, tt.body)
			if _, err := Load(tmpDir); err == nil {
				t.Fatalf("Load() expected error, got nil")
			}
		})
	}
}

func TestLoad_DisabledTools(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{"disabled_tools": ["dataset_delete", "dataset_import"]}`)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.DisabledTools) != 2 {
		t.Fatalf("DisabledTools length = %d, want 2", len(cfg.DisabledTools))
	}
	if cfg.DisabledTools[0] != "dataset_delete" {
		t.Errorf("DisabledTools[0] = %q, want %q", cfg.DisabledTools[0], "dataset_delete")
	}
	if cfg.DisabledTools[1] != "dataset_import" {
		t.Errorf("DisabledTools[1] = %q, want %q", cfg.DisabledTools[1], "dataset_import")
	}
}

func TestLoadWithRepo_BothPresent(t *testing.T) {
	globalDir := t.TempDir()
	repoRoot := t.TempDir()

	writeConfig(t, globalDir, `{"fuzzy_threshold": 80, "disabled_tools": ["dataset_delete"]}`)
	writeConfig(t, filepath.Join(repoRoot, DirName), `{"fuzzy_threshold": 92, "disabled_tools": ["dataset_import"]}`)

	cfg, err := LoadWithRepo(globalDir, repoRoot)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}

	if cfg.Threshold() != 92 {
		t.Errorf("FuzzyThreshold = %d, want 92 (repo override)", cfg.Threshold())
	}
	if len(cfg.DisabledTools) != 2 {
		t.Errorf("DisabledTools length = %d, want 2", len(cfg.DisabledTools))
	}
}

func TestLoadWithRepo_OnlyGlobal(t *testing.T) {
	globalDir := t.TempDir()
	repoDir := t.TempDir()

	writeConfig(t, globalDir, `{"batch_max_posts": 20, "disabled_types": ["dataset"]}`)

	cfg, err := LoadWithRepo(globalDir, repoDir)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}

	if cfg.BatchMaxPosts != 20 {
		t.Errorf("BatchMaxPosts = %d, want 20", cfg.BatchMaxPosts)
	}
	if len(cfg.DisabledTypes) != 1 || cfg.DisabledTypes[0] != "dataset" {
		t.Errorf("DisabledTypes = %v, want [dataset]", cfg.DisabledTypes)
	}
}

func TestLoadWithRepo_NeitherPresent(t *testing.T) {
	cfg, err := LoadWithRepo(t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}

	if cfg.Threshold() != 85 {
		t.Errorf("FuzzyThreshold = %d, want 85", cfg.Threshold())
	}
	if len(cfg.DisabledTools) != 0 {
		t.Errorf("DisabledTools = %v, want empty", cfg.DisabledTools)
	}
}

func TestLoadWithRepo_WalksUpward(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, filepath.Join(tmpDir, DirName), `{"allowed_paths": ["/data/exports"]}`)

	subdir := filepath.Join(tmpDir, "subdir")
	if err := os.MkdirAll(subdir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	cfg, err := LoadWithRepo(t.TempDir(), subdir)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}
	if len(cfg.AllowedPaths) != 1 || cfg.AllowedPaths[0] != "/data/exports" {
		t.Errorf("AllowedPaths = %v, want [/data/exports]", cfg.AllowedPaths)
	}
}

func TestMerge_ScalarOverride(t *testing.T) {
	base := &Config{FuzzyThreshold: IntPtr(85), DBMaxOpenConns: 5, Workers: 2}
	overlay := &Config{FuzzyThreshold: IntPtr(70)}

	result := Merge(base, overlay)

	if result.Threshold() != 70 {
		t.Errorf("FuzzyThreshold = %d, want 70 (overlay)", result.Threshold())
	}
	if result.DBMaxOpenConns != 5 {
		t.Errorf("DBMaxOpenConns = %d, want 5 (base, overlay is zero)", result.DBMaxOpenConns)
	}
	if result.Workers != 2 {
		t.Errorf("Workers = %d, want 2 (base)", result.Workers)
	}
}

func TestLoadWithRepo_ExplicitZeroThreshold(t *testing.T) {
	globalDir := t.TempDir()
	repoRoot := t.TempDir()

	writeConfig(t, globalDir, `{"fuzzy_threshold": 80}`)
	writeConfig(t, filepath.Join(repoRoot, DirName), `{"fuzzy_threshold": 0}`)

	cfg, err := LoadWithRepo(globalDir, repoRoot)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}
	if cfg.Threshold() != 0 {
		t.Errorf("FuzzyThreshold = %d, want 0 (explicit repo value)", cfg.Threshold())
	}
}

func TestMerge_UnsetThresholdKeepsBase(t *testing.T) {
	result := Merge(&Config{FuzzyThreshold: IntPtr(70)}, &Config{})
	if result.Threshold() != 70 {
		t.Errorf("FuzzyThreshold = %d, want 70 (base)", result.Threshold())
	}

	var unset *Config
	if unset.Threshold() != DefaultFuzzyThreshold {
		t.Errorf("nil config threshold = %d, want %d", unset.Threshold(), DefaultFuzzyThreshold)
	}
}

func TestMerge_BooleanOr(t *testing.T) {
	result := Merge(&Config{AllowUnsafePaths: true}, &Config{AllowUnsafePaths: false})
	if !result.AllowUnsafePaths {
		t.Error("AllowUnsafePaths should be true (base OR overlay)")
	}
}

func TestMerge_ArrayMergeDedup(t *testing.T) {
	base := &Config{DisabledTools: []string{"dataset_delete", " codes_report "}}
	overlay := &Config{DisabledTools: []string{"codes_report", "dataset_import", ""}}

	result := Merge(base, overlay)

	want := []string{"dataset_delete", "codes_report", "dataset_import"}
	if len(result.DisabledTools) != len(want) {
		t.Fatalf("DisabledTools = %v, want %v", result.DisabledTools, want)
	}
	for i := range want {
		if result.DisabledTools[i] != want[i] {
			t.Errorf("DisabledTools[%d] = %q, want %q", i, result.DisabledTools[i], want[i])
		}
	}
}

func TestFindRepoConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := writeConfig(t, filepath.Join(tmpDir, DirName), `{}`)

	deeper := filepath.Join(tmpDir, "subdir", "deeper")
	if err := os.MkdirAll(deeper, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	tests := []struct {
		name  string
		start string
		want  string
	}{
		{"current dir", tmpDir, configPath},
		{"parent dir", deeper, configPath},
		{"not found", t.TempDir(), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FindRepoConfig(tt.start); got != tt.want {
				t.Errorf("FindRepoConfig() = %q, want %q", got, tt.want)
			}
		})
	}
}
