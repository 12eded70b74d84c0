// Package config handles loading and managing the archive's configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/archivekeep/chathist/internal/apperr"
	"github.com/archivekeep/chathist/internal/fileutil"
)

// BackupConfig controls the persistent store's backup behavior (§4.2.1).
type BackupConfig struct {
	Retain int `toml:"retain"` // default 3; store backups always keep 3 and do not read this
}

// Config is the archive's configuration: where its data lives and a backup
// retention setting.
type Config struct {
	Data   DataConfig   `toml:"data"`
	Backup BackupConfig `toml:"backup"`

	// Computed paths (not from config file)
	HomeDir    string `toml:"-"`
	configPath string // resolved path to the loaded config file
}

// DataConfig holds data storage configuration.
type DataConfig struct {
	DataDir     string `toml:"data_dir"`
	DatabaseURL string `toml:"database_url"`
}

// DefaultHome returns the default archive home directory. Respects
// CHATHIST_HOME and expands ~ in its value.
func DefaultHome() string {
	if h := os.Getenv("CHATHIST_HOME"); h != "" {
		return expandPath(h)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chathist"
	}
	return filepath.Join(home, ".chathist")
}

// NewDefaultConfig returns a configuration with default values.
func NewDefaultConfig() *Config {
	homeDir := DefaultHome()
	return &Config{
		HomeDir: homeDir,
		Data:    DataConfig{DataDir: homeDir},
		Backup:  BackupConfig{Retain: 3},
	}
}

// Load reads the configuration from the specified file. If path is empty,
// uses the default location (~/.chathist/config.toml), which is optional
// (missing file returns defaults). If path is explicitly provided, the file
// must exist.
func Load(path string) (*Config, error) {
	explicit := path != ""

	cfg := NewDefaultConfig()

	if !explicit {
		path = filepath.Join(cfg.HomeDir, "config.toml")
	} else {
		path = expandPath(path)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if explicit {
			return nil, apperr.New(apperr.NotFound, "config file not found: %s", path)
		}
		return cfg, nil
	}

	cfg.configPath = path

	if explicit {
		cfg.HomeDir = filepath.Dir(path)
		cfg.Data.DataDir = cfg.HomeDir
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if strings.Contains(err.Error(), "invalid escape") ||
			strings.Contains(err.Error(), "hexadecimal digits after") {
			return nil, apperr.Wrap(apperr.InputShape, err, "decode config: Windows paths in TOML must use "+
				"forward slashes (C:/Users/me/archive) or single quotes")
		}
		return nil, apperr.Wrap(apperr.InputShape, err, "decode config")
	}

	if cfg.Backup.Retain <= 0 {
		cfg.Backup.Retain = 3
	}

	cfg.Data.DataDir = expandPath(cfg.Data.DataDir)
	if explicit {
		cfg.Data.DataDir = resolveRelative(cfg.Data.DataDir, cfg.HomeDir)
	}

	return cfg, nil
}

// OverrideHome replaces HomeDir and DataDir, expanding ~ in newHome. Called
// after Load, it takes precedence over the config file's data_dir.
func (c *Config) OverrideHome(newHome string) {
	newHome = expandPath(newHome)
	c.HomeDir = newHome
	c.Data.DataDir = newHome
}

// DatabaseDSN returns the database file path, or an explicit override URL.
func (c *Config) DatabaseDSN() string {
	if c.Data.DatabaseURL != "" {
		return c.Data.DatabaseURL
	}
	return filepath.Join(c.Data.DataDir, "data.sqlite")
}

// AttachmentsDir returns the dataset-root file store's base directory.
func (c *Config) AttachmentsDir() string {
	return filepath.Join(c.Data.DataDir, "attachments")
}

// ConfigFilePath returns the path to the config file actually used, or the
// default location based on HomeDir if none was loaded.
func (c *Config) ConfigFilePath() string {
	if c.configPath != "" {
		return c.configPath
	}
	return filepath.Join(c.HomeDir, "config.toml")
}

// EnsureHomeDir creates the archive home directory if it doesn't exist.
func (c *Config) EnsureHomeDir() error {
	return fileutil.SecureMkdirAll(c.HomeDir, 0700)
}

// MkTempDir creates a temporary directory with fallback logic for restricted
// environments (e.g. Windows where %TEMP% may be inaccessible due to
// permissions, antivirus, or group policy).
//
// It tries the following locations in order:
//  1. Each directory in preferredDirs (if any)
//  2. The system default temp directory (os.TempDir())
//  3. A "tmp" subdirectory under the archive home directory
func MkTempDir(pattern string, preferredDirs ...string) (string, error) {
	for _, base := range preferredDirs {
		if base == "" {
			continue
		}
		dir, err := os.MkdirTemp(base, pattern)
		if err == nil {
			secureTempDir(dir)
			return dir, nil
		}
	}

	dir, sysErr := os.MkdirTemp("", pattern)
	if sysErr == nil {
		secureTempDir(dir)
		return dir, nil
	}

	fallbackBase := filepath.Join(DefaultHome(), "tmp")
	if err := fileutil.SecureMkdirAll(fallbackBase, 0700); err != nil {
		return "", fmt.Errorf("create temp dir: %w (fallback also failed: %v)", sysErr, err)
	}
	dir, err := os.MkdirTemp(fallbackBase, pattern)
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w (fallback also failed: %v)", sysErr, err)
	}
	secureTempDir(dir)
	return dir, nil
}

// secureTempDir applies owner-only permissions to a temp directory created by
// os.MkdirTemp, which uses default permissions. On Windows, this also sets an
// owner-only DACL. Failures are logged but non-fatal.
func secureTempDir(dir string) {
	if err := fileutil.SecureChmod(dir, 0700); err != nil {
		slog.Warn("failed to secure temp directory permissions", "path", dir, "err", err)
	}
}

// resolveRelative makes a relative path absolute by joining it with base.
// Absolute paths and empty strings are returned unchanged.
func resolveRelative(path, base string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

// expandPath expands ~ to the user's home directory. Only expands paths
// that are exactly "~" or start with "~/". It also strips surrounding
// single or double quotes, which Windows CMD passes through literally
// (unlike Unix shells which strip them).
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if runtime.GOOS == "windows" && len(path) >= 2 &&
		((path[0] == '\'' && path[len(path)-1] == '\'') ||
			(path[0] == '"' && path[len(path)-1] == '"')) {
		path = path[1 : len(path)-1]
	}
	if path == "~" || strings.HasPrefix(path, "~"+string(os.PathSeparator)) || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return home
		}
		suffix := path[2:]
		for len(suffix) > 0 && (suffix[0] == '/' || suffix[0] == os.PathSeparator) {
			suffix = suffix[1:]
		}
		return filepath.Join(home, suffix)
	}
	return path
}
