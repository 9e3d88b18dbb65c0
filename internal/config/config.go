// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Repo      RepoConfig      `mapstructure:"repo" yaml:"repo"`
	Evolution EvolutionConfig `mapstructure:"evolution" yaml:"evolution"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// GitConfig defines the committer identity.
type GitConfig struct {
	AuthorName  string `mapstructure:"author_name" yaml:"author_name"`
	AuthorEmail string `mapstructure:"author_email" yaml:"author_email"`
}

// RepoConfig locates the repository under cultivation. URL may be empty for
// a purely local working copy; when set, capture refreshes the workdir from
// it and the pipeline pushes back to it.
type RepoConfig struct {
	URL        string    `mapstructure:"url" yaml:"url"`
	Workdir    string    `mapstructure:"workdir" yaml:"workdir"`
	Branch     string    `mapstructure:"branch" yaml:"branch"`
	RemoteName string    `mapstructure:"remote_name" yaml:"remote_name"`
	Git        GitConfig `mapstructure:"git" yaml:"git"`
}

// EvolutionConfig tunes one improvement cycle.
type EvolutionConfig struct {
	MaxChangeRatio float64       `mapstructure:"max_change_ratio" yaml:"max_change_ratio"`
	CycleTimeout   time.Duration `mapstructure:"cycle_timeout" yaml:"cycle_timeout"`
	Cooldown       time.Duration `mapstructure:"cooldown" yaml:"cooldown"`
	JournalPath    string        `mapstructure:"journal_path" yaml:"journal_path"`
	// Detectors restricts the scanner to the named detector ids.
	// Empty means all registered detectors.
	Detectors []string `mapstructure:"detectors" yaml:"detectors"`
}

// ServerConfig configures the HTTP trigger/status surface.
type ServerConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr" yaml:"listen_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// SetDefaults registers the default values on a viper instance.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "gardener")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)

	v.SetDefault("repo.workdir", ".gardener/workdir")
	v.SetDefault("repo.branch", "main")
	v.SetDefault("repo.remote_name", "origin")
	v.SetDefault("repo.git.author_name", "gardener")
	v.SetDefault("repo.git.author_email", "gardener@localhost")

	v.SetDefault("evolution.max_change_ratio", 0.5)
	v.SetDefault("evolution.cycle_timeout", 5*time.Minute)
	v.SetDefault("evolution.cooldown", 0)
	v.SetDefault("evolution.journal_path", ".gardener/journal.jsonl")

	v.SetDefault("server.listen_addr", ":8742")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
}

// Load reads the config file (if any) and environment overrides into a
// Config. A missing config file is not an error; defaults and GARDENER_*
// env vars still apply.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("gardener")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("GARDENER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}
