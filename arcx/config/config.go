package config

import (
	"fmt"
	"path/filepath"
	"strings"

	internal "github.com/ZanzyTHEbar/arcx/arcx"
	"github.com/ZanzyTHEbar/arcx/arcx/extractor"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Case      CaseConfig      `mapstructure:"case"`
	Extractor ExtractorConfig `mapstructure:"extractor"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Log       LogConfig       `mapstructure:"log"`
}

// CaseConfig describes the case the extractor writes into
type CaseConfig struct {
	Dir             string         `mapstructure:"dir"`
	ModuleOutputDir string         `mapstructure:"moduleOutputDir"`
	Database        DatabaseConfig `mapstructure:"database"`
}

// DatabaseConfig stores database connection details.
type DatabaseConfig struct {
	DSN  string `mapstructure:"dsn"`
	Type string `mapstructure:"type"`
}

// ExtractorConfig holds the safety limits applied to every archive
type ExtractorConfig struct {
	MaxDepth                int      `mapstructure:"maxDepth"`
	MaxCompressionRatio     int64    `mapstructure:"maxCompressionRatio"`
	MinCompressionRatioSize int64    `mapstructure:"minCompressionRatioSize"`
	MinFreeDiskSpace        int64    `mapstructure:"minFreeDiskSpace"`
	ExtraExtensions         []string `mapstructure:"extraExtensions"`
}

type PipelineConfig struct {
	Workers int `mapstructure:"workers"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Limits converts the extractor section into extractor limits
func (c *Config) Limits() extractor.Limits {
	return extractor.Limits{
		MaxDepth:                c.Extractor.MaxDepth,
		MaxCompressionRatio:     c.Extractor.MaxCompressionRatio,
		MinCompressionRatioSize: c.Extractor.MinCompressionRatioSize,
		MinFreeDiskSpace:        c.Extractor.MinFreeDiskSpace,
		ExtraExtensions:         c.Extractor.ExtraExtensions,
	}
}

// ModuleOutputAbs resolves the module output directory against the case directory
func (c *Config) ModuleOutputAbs() string {
	if filepath.IsAbs(c.Case.ModuleOutputDir) {
		return c.Case.ModuleOutputDir
	}
	return filepath.Join(c.Case.Dir, c.Case.ModuleOutputDir)
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("..")
		v.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		v.AddConfigPath(internal.DefaultConfigPath)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	limits := extractor.DefaultLimits()
	v.SetDefault("case.dir", internal.DefaultCaseDir)
	v.SetDefault("case.moduleOutputDir", internal.DefaultModuleOutputDir)
	v.SetDefault("case.database.dsn", internal.DefaultDatabaseDSN)
	v.SetDefault("case.database.type", internal.DefaultDatabaseType)
	v.SetDefault("extractor.maxDepth", limits.MaxDepth)
	v.SetDefault("extractor.maxCompressionRatio", limits.MaxCompressionRatio)
	v.SetDefault("extractor.minCompressionRatioSize", limits.MinCompressionRatioSize)
	v.SetDefault("extractor.minFreeDiskSpace", limits.MinFreeDiskSpace)
	v.SetDefault("extractor.extraExtensions", []string{})
	v.SetDefault("pipeline.workers", 0)
	v.SetDefault("log.level", "info")

	v.AutomaticEnv()                                   // Read in environment variables that match
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // extractor.maxDepth becomes EXTRACTOR_MAXDEPTH

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	return &cfg, nil
}
