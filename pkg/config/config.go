package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// EnvPrefix prefixes every environment override, e.g. FEEDSCAN_OCR_PSM.
const EnvPrefix = "FEEDSCAN"

type Config struct {
	LogLevel string       `mapstructure:"log_level"`
	Server   ServerConfig `mapstructure:"server"`
	OCR      OCRConfig    `mapstructure:"ocr"`
	Output   OutputConfig `mapstructure:"output"`
	YNAB     YNABConfig   `mapstructure:"ynab"`
}

type ServerConfig struct {
	Addr        string `mapstructure:"addr"`
	UploadDir   string `mapstructure:"upload_dir"`
	MaxUploadMB int64  `mapstructure:"max_upload_mb"`
	// BatchTTL is how long a parsed table stays available after its last change.
	BatchTTL time.Duration `mapstructure:"batch_ttl"`
}

type OCRConfig struct {
	Binary   string        `mapstructure:"binary"`
	PSM      int           `mapstructure:"psm"`
	Language string        `mapstructure:"language"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type OutputConfig struct {
	Path   string `mapstructure:"path"`
	Format string `mapstructure:"format"`
}

type YNABConfig struct {
	Token     string `mapstructure:"token"`
	TokenEnv  string `mapstructure:"token_env"`
	BudgetID  string `mapstructure:"budget_id"`
	AccountID string `mapstructure:"account_id"`
	// Inflow pushes amounts as money received instead of money spent.
	Inflow bool `mapstructure:"inflow"`
}

// flagKeys maps command line flags to config keys.
var flagKeys = map[string]string{
	"log-level":  "log_level",
	"addr":       "server.addr",
	"upload-dir": "server.upload_dir",
	"tesseract":  "ocr.binary",
	"psm":        "ocr.psm",
	"lang":       "ocr.language",
	"output":     "output.path",
	"format":     "output.format",
	"token":      "ynab.token",
	"budget":     "ynab.budget_id",
	"account":    "ynab.account_id",
	"inflow":     "ynab.inflow",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("server.addr", "0.0.0.0:3000")
	v.SetDefault("server.upload_dir", "uploads")
	v.SetDefault("server.max_upload_mb", 32)
	v.SetDefault("server.batch_ttl", time.Hour)
	v.SetDefault("ocr.binary", "tesseract")
	v.SetDefault("ocr.psm", 6)
	v.SetDefault("ocr.language", "")
	v.SetDefault("ocr.timeout", 30*time.Second)
	v.SetDefault("output.path", "")
	v.SetDefault("output.format", "")
	v.SetDefault("ynab.token", "")
	v.SetDefault("ynab.token_env", "YNAB_TOKEN")
	v.SetDefault("ynab.budget_id", "")
	v.SetDefault("ynab.account_id", "")
	v.SetDefault("ynab.inflow", false)
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// defaults always decode
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Build layers defaults, the config file, .env, FEEDSCAN_* environment
// variables and explicitly set flags, in increasing priority. When cfgFile
// is empty an optional config.yaml in the working directory is used.
func Build(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", cfgFile, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		var bindErr error
		flags.Visit(func(f *pflag.Flag) {
			key, ok := flagKeys[f.Name]
			if !ok || bindErr != nil {
				return
			}
			bindErr = v.BindPFlag(key, f)
		})
		if bindErr != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", bindErr)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.YNAB.Token == "" && cfg.YNAB.TokenEnv != "" {
		cfg.YNAB.Token = os.Getenv(cfg.YNAB.TokenEnv)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Output.Format) {
	case "", "csv", "xlsx":
	default:
		return fmt.Errorf("invalid output format %q (want csv or xlsx)", c.Output.Format)
	}
	if c.OCR.PSM < 0 || c.OCR.PSM > 13 {
		return fmt.Errorf("invalid tesseract page segmentation mode %d", c.OCR.PSM)
	}
	if c.OCR.Binary == "" {
		return fmt.Errorf("ocr binary must be set")
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("server max_upload_mb must be positive")
	}
	if c.Server.BatchTTL <= 0 {
		return fmt.Errorf("server batch_ttl must be positive")
	}
	return nil
}
