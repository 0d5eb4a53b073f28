package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the DynamiCrafter CLI
type Config struct {
	// Hugging Face hub settings
	Hub HubConfig `yaml:"hub" json:"hub"`

	// Rate limiting configuration for hub requests
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Checkpoint storage settings
	Checkpoints CheckpointsConfig `yaml:"checkpoints" json:"checkpoints"`

	// Download settings
	Download DownloadConfig `yaml:"download" json:"download"`

	// Python environment settings
	Python PythonConfig `yaml:"python" json:"python"`

	// PyTorch wheel settings
	Torch TorchConfig `yaml:"torch" json:"torch"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// HubConfig holds Hugging Face hub configuration
type HubConfig struct {
	Endpoint  string `yaml:"endpoint" json:"endpoint"`
	Token     string `yaml:"token" json:"token"`
	UserAgent string `yaml:"user_agent" json:"user_agent"`
	Revision  string `yaml:"revision" json:"revision"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int           `yaml:"burst_size" json:"burst_size"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier" json:"backoff_multiplier"`
	MaxRetries        int           `yaml:"max_retries" json:"max_retries"`
	RetryDelay        time.Duration `yaml:"retry_delay" json:"retry_delay"`
}

// CheckpointsConfig holds checkpoint storage configuration
type CheckpointsConfig struct {
	RootDirectory string `yaml:"root_directory" json:"root_directory"`
}

// DownloadConfig holds download-specific configuration
type DownloadConfig struct {
	ConcurrentDownloads int           `yaml:"concurrent_downloads" json:"concurrent_downloads"`
	DownloadTimeout     time.Duration `yaml:"download_timeout" json:"download_timeout"`
	RetryAttempts       int           `yaml:"retry_attempts" json:"retry_attempts"`
	ChunkSize           int64         `yaml:"chunk_size" json:"chunk_size"`
	FastTransfer        bool          `yaml:"fast_transfer" json:"fast_transfer"`
	VerifyChecksums     bool          `yaml:"verify_checksums" json:"verify_checksums"`
}

// PythonConfig holds Python environment configuration
type PythonConfig struct {
	Version  string `yaml:"version" json:"version"`
	UVBinary string `yaml:"uv_binary" json:"uv_binary"`
	VenvDir  string `yaml:"venv_dir" json:"venv_dir"`
}

// TorchConfig holds PyTorch wheel configuration
type TorchConfig struct {
	TorchVersion       string `yaml:"torch_version" json:"torch_version"`
	TorchvisionVersion string `yaml:"torchvision_version" json:"torchvision_version"`
	TorchaudioVersion  string `yaml:"torchaudio_version" json:"torchaudio_version"`
	IndexBaseURL       string `yaml:"index_base_url" json:"index_base_url"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	File       string `yaml:"file" json:"file"`
	MaxSize    int    `yaml:"max_size" json:"max_size"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" json:"max_age"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Hub: HubConfig{
			Endpoint:  "https://huggingface.co",
			UserAgent: "dynamicrafter-cli/2.0",
			Revision:  "main",
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
			BurstSize:         10,
			BackoffMultiplier: 2.0,
			MaxRetries:        4,
			RetryDelay:        5 * time.Second,
		},
		Checkpoints: CheckpointsConfig{
			RootDirectory: "./checkpoints",
		},
		Download: DownloadConfig{
			ConcurrentDownloads: 3,
			DownloadTimeout:     30 * time.Minute,
			RetryAttempts:       4,
			ChunkSize:           8 * 1024 * 1024,
			FastTransfer:        false,
			VerifyChecksums:     true,
		},
		Python: PythonConfig{
			Version:  "3.8.5",
			UVBinary: "uv",
			VenvDir:  ".venv",
		},
		Torch: TorchConfig{
			TorchVersion:       "2.0.0",
			TorchvisionVersion: "0.15.1",
			TorchaudioVersion:  "2.0.1",
			IndexBaseURL:       "https://download.pytorch.org/whl",
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       "",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   false,
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	// Hub settings
	if endpoint := os.Getenv("HF_ENDPOINT"); endpoint != "" {
		c.Hub.Endpoint = endpoint
	}
	if token := os.Getenv("HF_TOKEN"); token != "" {
		c.Hub.Token = token
	}
	if userAgent := os.Getenv("DYNAMICRAFTER_USER_AGENT"); userAgent != "" {
		c.Hub.UserAgent = userAgent
	}

	// Fast transfer toggle, same switch the Python hub tooling honors
	if fast := os.Getenv("HF_HUB_ENABLE_HF_TRANSFER"); fast != "" {
		c.Download.FastTransfer = fast == "1" || strings.ToLower(fast) == "true"
	}

	// Checkpoint root
	if root := os.Getenv("DYNAMICRAFTER_CHECKPOINTS_DIR"); root != "" {
		c.Checkpoints.RootDirectory = root
	}

	// Concurrent downloads
	if concurrent := os.Getenv("DYNAMICRAFTER_CONCURRENT_DOWNLOADS"); concurrent != "" {
		var val int
		fmt.Sscanf(concurrent, "%d", &val)
		if val > 0 {
			c.Download.ConcurrentDownloads = val
		}
	}

	// Rate limiting
	if rpm := os.Getenv("DYNAMICRAFTER_REQUESTS_PER_MINUTE"); rpm != "" {
		var val int
		fmt.Sscanf(rpm, "%d", &val)
		if val > 0 {
			c.RateLimit.RequestsPerMinute = val
		}
	}

	// Python environment
	if ver := os.Getenv("DYNAMICRAFTER_PYTHON_VERSION"); ver != "" {
		c.Python.Version = ver
	}
	if uv := os.Getenv("DYNAMICRAFTER_UV_BINARY"); uv != "" {
		c.Python.UVBinary = uv
	}

	// Logging level
	if logLevel := os.Getenv("DYNAMICRAFTER_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	// Check in order of precedence
	locations := []string{
		".dynamicrafter.yaml",
		".dynamicrafter.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "dynamicrafter", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "dynamicrafter", "config.yml"),
		filepath.Join(os.Getenv("HOME"), ".dynamicrafter.yaml"),
		filepath.Join(os.Getenv("HOME"), ".dynamicrafter.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	// Validate hub settings
	if c.Hub.Endpoint == "" {
		errs = append(errs, errors.New("hub endpoint is required"))
	} else if !strings.HasPrefix(c.Hub.Endpoint, "http://") && !strings.HasPrefix(c.Hub.Endpoint, "https://") {
		errs = append(errs, errors.New("hub endpoint must be an http(s) URL"))
	}

	// Validate rate limiting
	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}
	if c.RateLimit.BurstSize <= 0 {
		errs = append(errs, errors.New("burst size must be positive"))
	}
	if c.RateLimit.MaxRetries < 0 {
		errs = append(errs, errors.New("max retries cannot be negative"))
	}

	// Validate download settings
	if c.Download.ConcurrentDownloads <= 0 {
		errs = append(errs, errors.New("concurrent downloads must be positive"))
	}
	if c.Download.ConcurrentDownloads > 16 {
		errs = append(errs, errors.New("concurrent downloads should not exceed 16"))
	}
	if c.Download.DownloadTimeout <= 0 {
		errs = append(errs, errors.New("download timeout must be positive"))
	}
	if c.Download.ChunkSize < 1024*1024 {
		errs = append(errs, errors.New("chunk size must be at least 1 MiB"))
	}

	// Validate checkpoint settings
	if c.Checkpoints.RootDirectory == "" {
		errs = append(errs, errors.New("checkpoints root directory is required"))
	}

	// Validate python settings
	if c.Python.Version == "" {
		errs = append(errs, errors.New("python version is required"))
	}
	if c.Torch.IndexBaseURL == "" {
		errs = append(errs, errors.New("torch index base URL is required"))
	}

	// Validate logging
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if root, ok := flags["checkpoints-dir"].(string); ok && root != "" {
		c.Checkpoints.RootDirectory = root
	}
	if endpoint, ok := flags["endpoint"].(string); ok && endpoint != "" {
		c.Hub.Endpoint = endpoint
	}
	if token, ok := flags["token"].(string); ok && token != "" {
		c.Hub.Token = token
	}
	if concurrent, ok := flags["concurrent"].(int); ok && concurrent > 0 {
		c.Download.ConcurrentDownloads = concurrent
	}
	if retries, ok := flags["max-retries"].(int); ok && retries > 0 {
		c.Download.RetryAttempts = retries
		c.RateLimit.MaxRetries = retries
	}
	if timeout, ok := flags["download-timeout"].(time.Duration); ok && timeout > 0 {
		c.Download.DownloadTimeout = timeout
	}
	if fast, ok := flags["fast-transfer"].(bool); ok {
		c.Download.FastTransfer = fast
	}
	if noVerify, ok := flags["no-verify"].(bool); ok && noVerify {
		c.Download.VerifyChecksums = false
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".env"))
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".dynamicrafter.env"))

	// Start with defaults
	config := DefaultConfig()

	// Load from config file
	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	// Override with environment variables (includes values from .env)
	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Override with command line flags
	config.MergeCommandLineFlags(flags)

	// Validate final configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
