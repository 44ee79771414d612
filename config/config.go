// Package config loads the vecsync process configuration from YAML and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/vecsync/backup"
	"github.com/hupe1980/vecsync/internal/npz"
	"github.com/hupe1980/vecsync/slotstore"
)

// EnvPrefix prefixes environment overrides, e.g. VECSYNC_REMOTE_BACKEND.
const EnvPrefix = "VECSYNC"

// DefaultFile is the config file name looked up when Load gets no path.
const DefaultFile = "vecsync.yaml"

// Backends.
const (
	BackendNone   = "none"
	BackendLocal  = "local"
	BackendS3     = "s3"
	BackendMinIO  = "minio"
	BackendGDrive = "gdrive"
)

// Config is the whole vecsync configuration, as read from vecsync.yaml and
// VECSYNC_* environment variables.
type Config struct {
	LocalCachePath string       `yaml:"local_cache_path" mapstructure:"local_cache_path"`
	LocalCacheSize int64        `yaml:"local_cache_size" mapstructure:"local_cache_size"`
	Dimension      int          `yaml:"dimension" mapstructure:"dimension"`
	EvictionPolicy string       `yaml:"eviction_policy" mapstructure:"eviction_policy"`
	Remote         RemoteConfig `yaml:"remote" mapstructure:"remote"`
	Backup         BackupConfig `yaml:"backup" mapstructure:"backup"`
	Log            LogConfig    `yaml:"log" mapstructure:"log"`
}

// RemoteConfig selects the remote backend and how the primary object is synced.
type RemoteConfig struct {
	Backend          string        `yaml:"backend" mapstructure:"backend"`
	ObjectName       string        `yaml:"object_name" mapstructure:"object_name"`
	BackupFolder     string        `yaml:"backup_folder" mapstructure:"backup_folder"`
	Timeout          time.Duration `yaml:"timeout" mapstructure:"timeout"`
	AutoSyncInterval time.Duration `yaml:"auto_sync_interval" mapstructure:"auto_sync_interval"`
	// IORateLimit caps transfer bytes per second. 0 is unlimited.
	IORateLimit int64        `yaml:"io_rate_limit" mapstructure:"io_rate_limit"`
	S3          S3Config     `yaml:"s3" mapstructure:"s3"`
	MinIO       MinIOConfig  `yaml:"minio" mapstructure:"minio"`
	GDrive      GDriveConfig `yaml:"gdrive" mapstructure:"gdrive"`
	Local       LocalConfig  `yaml:"local" mapstructure:"local"`
}

// S3Config locates objects in an S3 bucket. LedgerTable names the DynamoDB
// table of the sync ledger; empty disables the ledger.
type S3Config struct {
	Bucket      string `yaml:"bucket" mapstructure:"bucket"`
	Prefix      string `yaml:"prefix" mapstructure:"prefix"`
	Region      string `yaml:"region" mapstructure:"region"`
	LedgerTable string `yaml:"ledger_table" mapstructure:"ledger_table"`
}

// MinIOConfig locates objects on an S3-compatible MinIO server.
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	Prefix    string `yaml:"prefix" mapstructure:"prefix"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
	Secure    bool   `yaml:"secure" mapstructure:"secure"`
}

// GDriveConfig holds the service account used for Google Drive.
type GDriveConfig struct {
	CredentialsFile string `yaml:"credentials_file" mapstructure:"credentials_file"`
}

// LocalConfig stores objects in a directory, for tests and single hosts.
type LocalConfig struct {
	Root string `yaml:"root" mapstructure:"root"`
}

// BackupConfig controls backup creation and retention.
type BackupConfig struct {
	Mode             string `yaml:"mode" mapstructure:"mode"`
	Compression      string `yaml:"compression" mapstructure:"compression"`
	CompressionLevel int    `yaml:"compression_level" mapstructure:"compression_level"`
	// FrequencyDays is the minimum age of the last backup before serve
	// creates another one. 0 disables frequency-driven backups.
	FrequencyDays int `yaml:"frequency_days" mapstructure:"frequency_days"`
	// Schedule is a cron spec that wins over FrequencyDays when set.
	Schedule string `yaml:"schedule" mapstructure:"schedule"`
	Keep     int    `yaml:"keep" mapstructure:"keep"`
}

// LogConfig selects the log level and the text or json format.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

var envVarRe = regexp.MustCompile(`\$\{?([A-Z_][A-Z0-9_]*)\}?`)

// expandEnv replaces $VAR and ${VAR} with the variable's value. Unknown
// variables are left as written.
func expandEnv(s string) string {
	return envVarRe.ReplaceAllStringFunc(s, func(match string) string {
		name := strings.Trim(strings.TrimPrefix(match, "$"), "{}")
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}

// Default returns the built-in configuration: an 8 MiB scalar cache and no remote.
func Default() *Config {
	return &Config{
		LocalCachePath: "hextrix_memory.bin",
		LocalCacheSize: 8 << 20,
		Dimension:      1,
		EvictionPolicy: slotstore.PolicyOverwriteOldest.String(),
		Remote: RemoteConfig{
			Backend:          BackendNone,
			ObjectName:       "hextrix_memory.bin",
			Timeout:          5 * time.Minute,
			AutoSyncInterval: time.Hour,
			Local:            LocalConfig{Root: "remote"},
		},
		Backup: BackupConfig{
			Mode:          backup.ModeFull.String(),
			Compression:   npz.CompressionDeflate.String(),
			FrequencyDays: 7,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path, or vecsync.yaml in the working directory when path is
// empty. A missing default file is not an error. Every key can be
// overridden from the environment: remote.s3.bucket becomes
// VECSYNC_REMOTE_S3_BUCKET.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(strings.TrimSuffix(DefaultFile, filepath.Ext(DefaultFile)))
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: reading %s: %w", configName(path), err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}
	cfg.expand()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func configName(path string) string {
	if path == "" {
		return DefaultFile
	}
	return path
}

// setDefaults registers every key with viper so AutomaticEnv can override
// keys the file does not mention.
func setDefaults(v *viper.Viper, cfg *Config) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return
	}
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, val := range m {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if sub, ok := val.(map[string]any); ok {
				walk(key, sub)
				continue
			}
			v.SetDefault(key, val)
		}
	}
	walk("", tree)
}

func (c *Config) expand() {
	c.LocalCachePath = expandEnv(c.LocalCachePath)
	c.Remote.Local.Root = expandEnv(c.Remote.Local.Root)
	c.Remote.MinIO.AccessKey = expandEnv(c.Remote.MinIO.AccessKey)
	c.Remote.MinIO.SecretKey = expandEnv(c.Remote.MinIO.SecretKey)
	c.Remote.MinIO.Endpoint = expandEnv(c.Remote.MinIO.Endpoint)
	c.Remote.GDrive.CredentialsFile = expandEnv(c.Remote.GDrive.CredentialsFile)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.LocalCachePath == "" {
		return fmt.Errorf("config: local_cache_path is required")
	}
	if c.Dimension < 1 {
		return fmt.Errorf("config: dimension must be positive, got %d", c.Dimension)
	}
	if slots := slotstore.CapacityForBytes(c.LocalCacheSize, c.Dimension); slots < c.Dimension {
		return fmt.Errorf("config: local_cache_size %d holds no row of dimension %d", c.LocalCacheSize, c.Dimension)
	}
	if _, err := slotstore.ParseEvictionPolicy(c.EvictionPolicy); err != nil {
		return fmt.Errorf("config: eviction_policy: %w", err)
	}
	if c.Remote.Timeout < 0 {
		return fmt.Errorf("config: remote.timeout must not be negative")
	}
	if c.Remote.IORateLimit < 0 {
		return fmt.Errorf("config: remote.io_rate_limit must not be negative")
	}

	switch c.Remote.Backend {
	case "", BackendNone:
	case BackendLocal:
		if c.Remote.Local.Root == "" {
			return fmt.Errorf("config: remote.local.root is required for backend local")
		}
	case BackendS3:
		if c.Remote.S3.Bucket == "" {
			return fmt.Errorf("config: remote.s3.bucket is required for backend s3")
		}
	case BackendMinIO:
		if c.Remote.MinIO.Endpoint == "" || c.Remote.MinIO.Bucket == "" {
			return fmt.Errorf("config: remote.minio.endpoint and remote.minio.bucket are required for backend minio")
		}
	case BackendGDrive:
		if c.Remote.GDrive.CredentialsFile == "" {
			return fmt.Errorf("config: remote.gdrive.credentials_file is required for backend gdrive")
		}
	default:
		return fmt.Errorf("config: unknown remote.backend %q (must be none, local, s3, minio or gdrive)", c.Remote.Backend)
	}

	if _, err := backup.ParseMode(c.Backup.Mode); err != nil {
		return fmt.Errorf("config: backup.mode: %w", err)
	}
	if _, err := npz.ParseCompression(c.Backup.Compression); err != nil {
		return fmt.Errorf("config: backup.compression: %w", err)
	}
	if c.Backup.FrequencyDays < 0 || c.Backup.Keep < 0 {
		return fmt.Errorf("config: backup.frequency_days and backup.keep must not be negative")
	}

	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log.level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("config: unknown log.format %q", c.Log.Format)
	}
	return nil
}

// Write stores cfg as YAML at path, creating parent directories.
func Write(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: encoding: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o600)
}
