// Package config loads BucketSync settings from defaults, a YAML config file,
// .env and BUCKETSYNC_* environment variables, and command-line flags.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/openmined/bucketsync/internal/utils"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	EnvPrefix      = "BUCKETSYNC"
	configFileName = "config"

	BackendS3       = "s3"
	BackendMemory   = "memory"
	BackendDynamoDB = "dynamodb"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

var (
	home, _           = os.UserHomeDir()
	DefaultDataDir    = filepath.Join(home, ".bucketsync")
	DefaultConfigPath = filepath.Join(DefaultDataDir, "config.yaml")
)

// Keys are the viper keys; flags bind to the same names.
const (
	KeyDataDir         = "data_dir"
	KeyLogLevel        = "log_level"
	KeyWorkers         = "workers"
	KeyObjectBackend   = "object_backend"
	KeyRegion          = "region"
	KeyProfile         = "profile"
	KeyEndpoint        = "endpoint"
	KeyAccessKey       = "access_key"
	KeySecretKey       = "secret_key"
	KeyMetadataBackend = "metadata_backend"
	KeyMetadataTable   = "metadata_table"
	KeyMetadataDSN     = "metadata_dsn"
	KeyMetricsAddr     = "metrics_addr"
)

type Config struct {
	DataDir         string `yaml:"data_dir"`
	LogLevel        string `yaml:"log_level"`
	Workers         int    `yaml:"workers"`
	ObjectBackend   string `yaml:"object_backend"`
	Region          string `yaml:"region"`
	Profile         string `yaml:"profile,omitempty"`
	Endpoint        string `yaml:"endpoint,omitempty"`
	AccessKey       string `yaml:"access_key,omitempty"`
	SecretKey       string `yaml:"secret_key,omitempty"`
	MetadataBackend string `yaml:"metadata_backend"`
	MetadataTable   string `yaml:"metadata_table"`
	MetadataDSN     string `yaml:"metadata_dsn,omitempty"`
	MetricsAddr     string `yaml:"metrics_addr,omitempty"`
	Path            string `yaml:"-"`
}

// SetDefaults registers the built-in value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyDataDir, DefaultDataDir)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyWorkers, 8)
	v.SetDefault(KeyObjectBackend, BackendS3)
	v.SetDefault(KeyRegion, "us-east-1")
	v.SetDefault(KeyMetadataBackend, BackendDynamoDB)
	v.SetDefault(KeyMetadataTable, "repositories")
}

// Load reads the config file at path (or the default search path when path is
// empty), applies .env and environment overrides and validates the result.
// Flags must already be bound on v.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(DefaultDataDir)
		v.AddConfigPath(filepath.Join(home, ".config", "bucketsync"))
		v.SetConfigName(configFileName)
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		var notFound viper.ConfigFileNotFoundError
		if !enoent && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
		}
	}

	// existing env vars win over .env
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		DataDir:         v.GetString(KeyDataDir),
		LogLevel:        v.GetString(KeyLogLevel),
		Workers:         v.GetInt(KeyWorkers),
		ObjectBackend:   v.GetString(KeyObjectBackend),
		Region:          v.GetString(KeyRegion),
		Profile:         v.GetString(KeyProfile),
		Endpoint:        v.GetString(KeyEndpoint),
		AccessKey:       v.GetString(KeyAccessKey),
		SecretKey:       v.GetString(KeySecretKey),
		MetadataBackend: v.GetString(KeyMetadataBackend),
		MetadataTable:   v.GetString(KeyMetadataTable),
		MetadataDSN:     v.GetString(KeyMetadataDSN),
		MetricsAddr:     v.GetString(KeyMetricsAddr),
		Path:            v.ConfigFileUsed(),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate normalizes paths and enum values and rejects inconsistent settings.
func (c *Config) Validate() error {
	dataDir, err := utils.ResolvePath(c.DataDir)
	if err != nil {
		return fmt.Errorf("data dir: %w", err)
	}
	c.DataDir = dataDir

	if c.Path != "" {
		if c.Path, err = utils.ResolvePath(c.Path); err != nil {
			return fmt.Errorf("config path: %w", err)
		}
	}

	if _, err := c.Level(); err != nil {
		return err
	}

	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}

	c.ObjectBackend = strings.ToLower(c.ObjectBackend)
	switch c.ObjectBackend {
	case BackendS3, BackendMemory:
	default:
		return fmt.Errorf("object backend must be %q or %q, got %q", BackendS3, BackendMemory, c.ObjectBackend)
	}

	c.MetadataBackend = strings.ToLower(c.MetadataBackend)
	switch c.MetadataBackend {
	case BackendDynamoDB, BackendSQLite:
	case BackendPostgres:
		if c.MetadataDSN == "" {
			return fmt.Errorf("metadata dsn is required for the %s backend", BackendPostgres)
		}
	default:
		return fmt.Errorf("metadata backend must be one of %s, %s, %s; got %q",
			BackendDynamoDB, BackendSQLite, BackendPostgres, c.MetadataBackend)
	}

	if c.MetadataTable == "" {
		return fmt.Errorf("metadata table is required")
	}

	if (c.AccessKey == "") != (c.SecretKey == "") {
		return fmt.Errorf("access key and secret key must be set together")
	}

	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return level, fmt.Errorf("log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

func (c *Config) CatalogPath() string {
	return filepath.Join(c.DataDir, "catalog.db")
}

// RegistryPath is the sqlite file used by the sqlite metadata backend.
func (c *Config) RegistryPath() string {
	return filepath.Join(c.DataDir, "registry.db")
}

func (c *Config) LocksDir() string {
	return filepath.Join(c.DataDir, "locks")
}

func (c *Config) LogFilePath() string {
	return filepath.Join(c.DataDir, "logs", "bucketsync.log")
}

// Save writes c as YAML to path.
func (c *Config) Save(path string) error {
	if err := utils.EnsureParent(path); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() *Config {
	cp := *c
	cp.AccessKey = maskSecret(cp.AccessKey)
	cp.SecretKey = maskSecret(cp.SecretKey)
	cp.MetadataDSN = maskSecret(cp.MetadataDSN)
	return &cp
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "*****"
	}
	return s[:4] + "*****"
}
