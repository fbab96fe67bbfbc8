package toml

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bnema/presence-tracker/internal/domain"
	"github.com/natefinch/atomic"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	DataDirKey     = "data.dir"
	defaultDataDir = ".presence"
	stateFileMode  = 0o600
	stateDirMode   = 0o700
)

var (
	lockRegistryMu sync.Mutex
	pathLockMap    = map[string]*sync.RWMutex{}
)

type versionedSchema interface {
	applyDefaults()
	validateVersion() error
}

// DataDir resolves the state directory from cfg, defaulting to ~/.presence.
func DataDir(cfg *viper.Viper) (string, error) {
	if cfg == nil {
		cfg = viper.New()
	}

	dir := cfg.GetString(DataDirKey)
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		dir = filepath.Join(homeDir, defaultDataDir)
	}

	return normalizePath(dir)
}

func resolvePath(cfg *viper.Viper, key, fileName string) (string, error) {
	if cfg == nil {
		cfg = viper.New()
	}

	if path := cfg.GetString(key); path != "" {
		return normalizePath(path)
	}

	dir, err := DataDir(cfg)
	if err != nil {
		return "", err
	}

	return filepath.Join(dir, fileName), nil
}

func normalizePath(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve state path: %w", err)
	}

	return filepath.Clean(absPath), nil
}

func lockForPath(path string) *sync.RWMutex {
	lockRegistryMu.Lock()
	defer lockRegistryMu.Unlock()

	if mu, ok := pathLockMap[path]; ok {
		return mu
	}

	mu := &sync.RWMutex{}
	pathLockMap[path] = mu
	return mu
}

// readTOMLFile decodes path into file. A missing file leaves file at its
// defaults; an undecodable one is reported as domain.ErrCorruptState.
func readTOMLFile(path, kind string, file versionedSchema) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			file.applyDefaults()
			return nil
		}
		return fmt.Errorf("read %s file: %w", kind, err)
	}

	if err := toml.Unmarshal(data, file); err != nil {
		return fmt.Errorf("%w: decode %s file %s: %w", domain.ErrCorruptState, kind, path, err)
	}
	if err := file.validateVersion(); err != nil {
		return err
	}
	file.applyDefaults()

	return nil
}

func writeTOMLFile(path, kind string, file versionedSchema) error {
	file.applyDefaults()

	if err := os.MkdirAll(filepath.Dir(path), stateDirMode); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode %s file: %w", kind, err)
	}

	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("replace %s file: %w", kind, err)
	}

	if err := os.Chmod(path, stateFileMode); err != nil {
		return fmt.Errorf("chmod %s file: %w", kind, err)
	}

	return nil
}

func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}

	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad timestamp %q", domain.ErrCorruptState, raw)
	}

	return parsed.UTC(), nil
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}

	return value.UTC().Format(time.RFC3339Nano)
}
