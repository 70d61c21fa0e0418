package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables that override storage credentials from any config file.
const (
	EnvS3AccessKey = "NOUNIMAGING_S3_ACCESS_KEY"
	EnvS3SecretKey = "NOUNIMAGING_S3_SECRET_KEY"
)

// configFileNames are tried in order inside the base directory.
var configFileNames = []string{"config.yaml", "config.yml", "config.json"}

// Config holds application configuration.
type Config struct {
	// Namespace is the storage prefix (and URL path segment) holding noun images.
	Namespace string `json:"namespace,omitempty" yaml:"namespace,omitempty"`

	// MatchBatchSize is the number of files handed to the matcher per batch.
	MatchBatchSize int `json:"match_batch_size,omitempty" yaml:"match_batch_size,omitempty"`

	// CleanBatchSize is the number of records handed to the cleaner per batch.
	CleanBatchSize int `json:"clean_batch_size,omitempty" yaml:"clean_batch_size,omitempty"`

	// Workers bounds concurrent storage calls within one matcher batch.
	Workers int `json:"workers,omitempty" yaml:"workers,omitempty"`

	// HeartbeatSeconds is the keep-alive interval of the progress stream.
	HeartbeatSeconds int `json:"heartbeat_seconds,omitempty" yaml:"heartbeat_seconds,omitempty"`

	// ProgressStep is the minimum fraction advance (0.01 = one percentage point)
	// that triggers a progress event between batch boundaries.
	ProgressStep float64 `json:"progress_step,omitempty" yaml:"progress_step,omitempty"`

	// StorageRatePerSecond limits storage mutations (delete/copy). 0 disables limiting.
	StorageRatePerSecond float64 `json:"storage_rate_per_second,omitempty" yaml:"storage_rate_per_second,omitempty"`

	// StorageBurst is the burst size for the storage mutation limiter.
	StorageBurst int `json:"storage_burst,omitempty" yaml:"storage_burst,omitempty"`

	// URLExpiryHours bounds presigned read URLs when no public base URL is set.
	URLExpiryHours int `json:"url_expiry_hours,omitempty" yaml:"url_expiry_hours,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty" yaml:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty" yaml:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty" yaml:"disabled_tools,omitempty"`

	S3  S3Config  `json:"s3" yaml:"s3"`
	Log LogConfig `json:"log" yaml:"log"`
	Web WebConfig `json:"web" yaml:"web"`
}

// S3Config holds object storage settings.
type S3Config struct {
	Endpoint  string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Region    string `json:"region,omitempty" yaml:"region,omitempty"`
	Bucket    string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	AccessKey string `json:"access_key,omitempty" yaml:"access_key,omitempty"`
	SecretKey string `json:"secret_key,omitempty" yaml:"secret_key,omitempty"`
	UseSSL    bool   `json:"use_ssl,omitempty" yaml:"use_ssl,omitempty"`

	// PublicBaseURL, when set, produces durable download URLs of the form
	// <base>/o/<escaped path>?alt=media instead of presigned URLs.
	PublicBaseURL string `json:"public_base_url,omitempty" yaml:"public_base_url,omitempty"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `json:"level,omitempty" yaml:"level,omitempty"`
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// WebConfig holds HTTP server settings.
type WebConfig struct {
	Bind string `json:"bind,omitempty" yaml:"bind,omitempty"`
	Port int    `json:"port,omitempty" yaml:"port,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Namespace:        "nouns",
		MatchBatchSize:   20,
		CleanBatchSize:   50,
		Workers:          4,
		HeartbeatSeconds: 15,
		ProgressStep:     0.01,
		StorageBurst:     1,
		URLExpiryHours:   168,
		Log:              LogConfig{Level: "info", Format: "console"},
		Web:              WebConfig{Bind: "127.0.0.1", Port: 5000},
	}
}

// Load loads configuration from the first of config.yaml, config.yml or
// config.json found in baseDir. Returns default config if none exists.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.nounimaging.
func Load(baseDir string) (*Config, error) {
	return LoadWithFile(baseDir, "")
}

// LoadWithFile loads defaults, then the base directory config, then the
// explicit file at path (if non-empty). Later sources win for scalars.
// An explicit path that does not exist is an error.
func LoadWithFile(baseDir, path string) (*Config, error) {
	base, err := loadFileRaw(FindConfig(baseDir))
	if err != nil {
		return nil, err
	}

	cfg := Merge(DefaultConfig(), base)

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file not found at: %s", path)
		}
		explicit, err := loadFileRaw(path)
		if err != nil {
			return nil, err
		}
		cfg = Merge(cfg, explicit)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// FindConfig returns the path of the first config file present in baseDir,
// or empty string if none exists.
func FindConfig(baseDir string) string {
	for _, name := range configFileNames {
		p := filepath.Join(baseDir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Validate checks settings the reconciliation pipeline cannot run without.
func (c *Config) Validate() error {
	if strings.Trim(c.Namespace, "/ ") == "" {
		return fmt.Errorf("namespace must not be empty")
	}
	if c.MatchBatchSize <= 0 {
		return fmt.Errorf("match_batch_size must be positive")
	}
	if c.CleanBatchSize <= 0 {
		return fmt.Errorf("clean_batch_size must be positive")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.ProgressStep < 0 || c.ProgressStep > 1 {
		return fmt.Errorf("progress_step must be within [0, 1]")
	}
	if c.StorageRatePerSecond < 0 {
		return fmt.Errorf("storage_rate_per_second must not be negative")
	}
	return nil
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the path is empty or the file doesn't exist.
// YAML files get ${VAR} expansion before parsing.
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
	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".yaml", ".yml":
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// applyEnv lets credentials come from the environment instead of disk.
func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvS3AccessKey); v != "" {
		cfg.S3.AccessKey = v
	}
	if v := os.Getenv(EnvS3SecretKey); v != "" {
		cfg.S3.SecretKey = v
	}
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.Namespace = firstString(overlay.Namespace, base.Namespace)
	result.MatchBatchSize = firstInt(overlay.MatchBatchSize, base.MatchBatchSize)
	result.CleanBatchSize = firstInt(overlay.CleanBatchSize, base.CleanBatchSize)
	result.Workers = firstInt(overlay.Workers, base.Workers)
	result.HeartbeatSeconds = firstInt(overlay.HeartbeatSeconds, base.HeartbeatSeconds)
	result.StorageBurst = firstInt(overlay.StorageBurst, base.StorageBurst)
	result.URLExpiryHours = firstInt(overlay.URLExpiryHours, base.URLExpiryHours)
	result.DBMaxOpenConns = firstInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = firstInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns)

	result.ProgressStep = overlay.ProgressStep
	if result.ProgressStep == 0 {
		result.ProgressStep = base.ProgressStep
	}
	result.StorageRatePerSecond = overlay.StorageRatePerSecond
	if result.StorageRatePerSecond == 0 {
		result.StorageRatePerSecond = base.StorageRatePerSecond
	}

	result.S3 = S3Config{
		Endpoint:      firstString(overlay.S3.Endpoint, base.S3.Endpoint),
		Region:        firstString(overlay.S3.Region, base.S3.Region),
		Bucket:        firstString(overlay.S3.Bucket, base.S3.Bucket),
		AccessKey:     firstString(overlay.S3.AccessKey, base.S3.AccessKey),
		SecretKey:     firstString(overlay.S3.SecretKey, base.S3.SecretKey),
		PublicBaseURL: firstString(overlay.S3.PublicBaseURL, base.S3.PublicBaseURL),
		// Booleans: overlay wins if true, else base
		UseSSL: base.S3.UseSSL || overlay.S3.UseSSL,
	}
	result.Log = LogConfig{
		Level:  firstString(overlay.Log.Level, base.Log.Level),
		Format: firstString(overlay.Log.Format, base.Log.Format),
	}
	result.Web = WebConfig{
		Bind: firstString(overlay.Web.Bind, base.Web.Bind),
		Port: firstInt(overlay.Web.Port, base.Web.Port),
	}

	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

func firstString(overlay, base string) string {
	if strings.TrimSpace(overlay) != "" {
		return overlay
	}
	return base
}

func firstInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
