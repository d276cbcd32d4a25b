package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	envPrefix    = "RECVAULT"
	keyDelimiter = "__"
	appDir       = "recvault"
)

type Config struct {
	DataDir   string         `mapstructure:"data_dir" validate:"required"`
	DBPath    string         `mapstructure:"db_path"`
	ExportDir string         `mapstructure:"export_dir"`
	Log       LogConfig      `mapstructure:"log"`
	Catalog   CatalogConfig  `mapstructure:"catalog"`
	Capture   CaptureConfig  `mapstructure:"capture"`
	Delivery  DeliveryConfig `mapstructure:"delivery"`
	Server    ServerConfig   `mapstructure:"server"`
}

type LogConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	File  string `mapstructure:"file"`
}

type CatalogConfig struct {
	Backend           string `mapstructure:"backend" validate:"required,oneof=sqlite file"`
	MaxBackups        int    `mapstructure:"max_backups" validate:"gte=1"`
	MaxBytes          int    `mapstructure:"max_bytes" validate:"gt=0"`
	EmergencyMaxBytes int    `mapstructure:"emergency_max_bytes" validate:"gt=0"`
	// QuotaBytes caps what the backend may hold in total; zero disables it.
	QuotaBytes int `mapstructure:"quota_bytes" validate:"gte=0"`
}

type CaptureConfig struct {
	AutosaveInterval time.Duration `mapstructure:"autosave_interval" validate:"gt=0"`
	ChunkSize        int           `mapstructure:"chunk_size" validate:"gt=0"`
}

type DeliveryConfig struct {
	Endpoint        string        `mapstructure:"endpoint" validate:"required,url"`
	SubmitPath      string        `mapstructure:"submit_path" validate:"required,startswith=/"`
	ChunkPath       string        `mapstructure:"chunk_path" validate:"required,startswith=/"`
	HealthPath      string        `mapstructure:"health_path" validate:"required,startswith=/"`
	Mode            string        `mapstructure:"mode" validate:"required,oneof=session chunk"`
	Policy          string        `mapstructure:"policy" validate:"required,oneof=background inline"`
	MaxRetries      int           `mapstructure:"max_retries" validate:"gte=0"`
	BaseDelay       time.Duration `mapstructure:"base_delay" validate:"gt=0"`
	CapDelay        time.Duration `mapstructure:"cap_delay" validate:"gtefield=BaseDelay"`
	TransferTimeout time.Duration `mapstructure:"transfer_timeout" validate:"gt=0"`
	GateRetry       time.Duration `mapstructure:"gate_retry" validate:"gt=0"`
	Gate            string        `mapstructure:"gate" validate:"required,oneof=health always"`
	HealthInterval  time.Duration `mapstructure:"health_interval" validate:"gt=0"`
	HealthTimeout   time.Duration `mapstructure:"health_timeout" validate:"gt=0"`
}

type ServerConfig struct {
	Listen string `mapstructure:"listen" validate:"required,hostname_port"`
}

// LoadOptions carries values that come from flags rather than the environment.
type LoadOptions struct {
	ConfigFile string
	DataDir    string
}

// Load resolves configuration from defaults, an optional YAML file and
// RECVAULT_* environment variables (nested keys joined with "__"), then
// validates the result.
func Load(opts LoadOptions) (Config, error) {
	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", opts.ConfigFile, err)
		}
	}
	if strings.TrimSpace(opts.DataDir) != "" {
		v.Set("data_dir", opts.DataDir)
	}
	if v.GetString("data_dir") == "" {
		dir, err := defaultDataDir()
		if err != nil {
			return Config{}, err
		}
		v.Set("data_dir", dir)
	}

	cfg := Config{}
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.fillPaths()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// New returns the default configuration rooted at dataDir.
func New(dataDir string) (Config, error) {
	if dataDir == "" {
		return Config{}, fmt.Errorf("data dir is required")
	}
	return Load(LoadOptions{DataDir: dataDir})
}

func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid config: %s failed %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// MaxAttempts resolves the retry ceiling: an explicit value wins, otherwise
// the preset decides.
func (d DeliveryConfig) MaxAttempts() int {
	if d.MaxRetries > 0 {
		return d.MaxRetries
	}
	if d.Policy == "inline" {
		return 3
	}
	return 5
}

func (c *Config) fillPaths() {
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.DataDir, "catalog.db")
	}
	if c.ExportDir == "" {
		c.ExportDir = filepath.Join(c.DataDir, "exports")
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "")
	v.SetDefault("db_path", "")
	v.SetDefault("export_dir", "")

	v.SetDefault("log__level", "info")
	v.SetDefault("log__file", "")

	v.SetDefault("catalog__backend", "sqlite")
	v.SetDefault("catalog__max_backups", 5)
	v.SetDefault("catalog__max_bytes", 5*1024*1024)
	v.SetDefault("catalog__emergency_max_bytes", 50*1024)
	v.SetDefault("catalog__quota_bytes", 0)

	v.SetDefault("capture__autosave_interval", 30*time.Second)
	v.SetDefault("capture__chunk_size", 16*1024)

	v.SetDefault("delivery__endpoint", "http://127.0.0.1:8000")
	v.SetDefault("delivery__submit_path", "/api/transcribe")
	v.SetDefault("delivery__chunk_path", "/api/save-chunk")
	v.SetDefault("delivery__health_path", "/api/health")
	v.SetDefault("delivery__mode", "session")
	v.SetDefault("delivery__policy", "background")
	v.SetDefault("delivery__max_retries", 0)
	v.SetDefault("delivery__base_delay", time.Second)
	v.SetDefault("delivery__cap_delay", 30*time.Second)
	v.SetDefault("delivery__transfer_timeout", 5*time.Minute)
	v.SetDefault("delivery__gate_retry", 5*time.Second)
	v.SetDefault("delivery__gate", "health")
	v.SetDefault("delivery__health_interval", 5*time.Second)
	v.SetDefault("delivery__health_timeout", 3*time.Second)

	v.SetDefault("server__listen", "127.0.0.1:8765")
}

func defaultDataDir() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return filepath.Join(xdg, appDir), nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve data dir: %w", err)
	}
	return filepath.Join(base, appDir), nil
}
