// Package config reads and writes the user configuration file. Values are
// loaded through viper so CIDIAN_* environment variables override the file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/mesh-intelligence/cidian/pkg/types"
)

const (
	// FileName is the configuration file inside the config directory.
	FileName = "config.json"

	envPrefix = "CIDIAN"

	// DefaultBackupRetention is the number of snapshots kept when the file
	// does not say otherwise.
	DefaultBackupRetention = 10
	defaultLogLevel        = "info"
	defaultLogFormat       = "text"
)

// Config keys as they appear in config.json and on the command line.
const (
	KeyBackupDirectory = "backup_directory"
	KeyBackupRetention = "backup_retention"
	KeyDictionaryPath  = "dictionary_path"
	KeyHalfLifeDays    = "half_life_days"
	KeyLogLevel        = "log.level"
	KeyLogFormat       = "log.format"

	// legacyBackupDirectory is the camelCase key older config files use.
	legacyBackupDirectory = "backupDirectoryPath"
)

// Keys lists every settable key in display order.
var Keys = []string{
	KeyBackupDirectory,
	KeyBackupRetention,
	KeyDictionaryPath,
	KeyHalfLifeDays,
	KeyLogLevel,
	KeyLogFormat,
}

// ErrUnknownKey is returned by Set and Value for keys outside Keys.
var ErrUnknownKey = fmt.Errorf("%w: unknown config key", types.ErrInvalidInput)

// Config is the persisted user configuration.
type Config struct {
	BackupDirectory string    `mapstructure:"backup_directory" json:"backup_directory,omitempty" yaml:"backup_directory,omitempty"`
	BackupRetention int       `mapstructure:"backup_retention" json:"backup_retention" yaml:"backup_retention"`
	DictionaryPath  string    `mapstructure:"dictionary_path" json:"dictionary_path,omitempty" yaml:"dictionary_path,omitempty"`
	HalfLifeDays    float64   `mapstructure:"half_life_days" json:"half_life_days,omitempty" yaml:"half_life_days,omitempty"`
	Log             LogConfig `mapstructure:"log" json:"log" yaml:"log"`
}

// LogConfig selects the slog level and handler.
type LogConfig struct {
	Level  string `mapstructure:"level" json:"level" yaml:"level"`
	Format string `mapstructure:"format" json:"format" yaml:"format"`
}

// Default returns the configuration used when the file is empty.
func Default() Config {
	return Config{
		BackupRetention: DefaultBackupRetention,
		Log: LogConfig{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}

// Retention returns the snapshot retention, falling back to the default for
// non-positive values.
func (c Config) Retention() int {
	if c.BackupRetention <= 0 {
		return DefaultBackupRetention
	}
	return c.BackupRetention
}

// Value returns the string form of a single key.
func (c Config) Value(key string) (string, error) {
	switch key {
	case KeyBackupDirectory:
		return c.BackupDirectory, nil
	case KeyBackupRetention:
		return strconv.Itoa(c.BackupRetention), nil
	case KeyDictionaryPath:
		return c.DictionaryPath, nil
	case KeyHalfLifeDays:
		return strconv.FormatFloat(c.HalfLifeDays, 'g', -1, 64), nil
	case KeyLogLevel:
		return c.Log.Level, nil
	case KeyLogFormat:
		return c.Log.Format, nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnknownKey, key)
	}
}

// With returns a copy of c with key set to the parsed value.
func (c Config) With(key, value string) (Config, error) {
	switch key {
	case KeyBackupDirectory:
		c.BackupDirectory = value
	case KeyBackupRetention:
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return c, fmt.Errorf("%w: %s must be a non-negative integer", types.ErrInvalidInput, key)
		}
		c.BackupRetention = n
	case KeyDictionaryPath:
		c.DictionaryPath = value
	case KeyHalfLifeDays:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || f < 0 {
			return c, fmt.Errorf("%w: %s must be a non-negative number", types.ErrInvalidInput, key)
		}
		c.HalfLifeDays = f
	case KeyLogLevel:
		c.Log.Level = strings.ToLower(value)
	case KeyLogFormat:
		c.Log.Format = strings.ToLower(value)
	default:
		return c, fmt.Errorf("%w %q", ErrUnknownKey, key)
	}
	return c, nil
}

// Repository loads config.json once and serves the cached value until the
// next Update.
type Repository struct {
	mu     sync.Mutex
	dir    string
	cached *Config
}

// NewRepository returns a repository for config.json inside dir. Nothing is
// read until the first Get.
func NewRepository(dir string) *Repository {
	return &Repository{dir: dir}
}

// Path returns the location of config.json.
func (r *Repository) Path() string {
	return filepath.Join(r.dir, FileName)
}

// Get returns the configuration, reading it on the first call. A missing
// file is created empty.
func (r *Repository) Get() (Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cached != nil {
		return *r.cached, nil
	}
	cfg, err := r.load()
	if err != nil {
		return Config{}, err
	}
	r.cached = &cfg
	return cfg, nil
}

// Update writes cfg to disk atomically and replaces the cached value.
func (r *Repository) Update(cfg Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := writeFileAtomic(r.Path(), append(data, '\n')); err != nil {
		return err
	}
	r.cached = &cfg
	return nil
}

// Set changes a single key and persists the result.
func (r *Repository) Set(key, value string) (Config, error) {
	cfg, err := r.Get()
	if err != nil {
		return Config{}, err
	}
	cfg, err = cfg.With(key, value)
	if err != nil {
		return Config{}, err
	}
	if err := r.Update(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (r *Repository) load() (Config, error) {
	if err := ensureFile(r.dir, r.Path()); err != nil {
		return Config{}, err
	}

	def := Default()
	v := viper.New()
	v.SetConfigFile(r.Path())
	v.SetConfigType("json")
	v.SetDefault(KeyBackupDirectory, def.BackupDirectory)
	v.SetDefault(KeyBackupRetention, def.BackupRetention)
	v.SetDefault(KeyDictionaryPath, def.DictionaryPath)
	v.SetDefault(KeyHalfLifeDays, def.HalfLifeDays)
	v.SetDefault(KeyLogLevel, def.Log.Level)
	v.SetDefault(KeyLogFormat, def.Log.Format)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", r.Path(), err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config %s: %w", r.Path(), err)
	}
	if cfg.BackupDirectory == "" && v.IsSet(legacyBackupDirectory) {
		cfg.BackupDirectory = v.GetString(legacyBackupDirectory)
	}
	return cfg, nil
}

// ensureFile creates dir and an empty JSON object at path when missing.
func ensureFile(dir, path string) error {
	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat config file: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, []byte("{}\n"), 0o644)
}

// writeFileAtomic writes data to a temp file in the same directory, syncs it
// and renames it over path.
func writeFileAtomic(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp config: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp config: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}
