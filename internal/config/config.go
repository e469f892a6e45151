package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const appName = "reel"

// Config is the complete application configuration
type Config struct {
	Logging    LoggingConfig    `mapstructure:"logging"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Player     PlayerConfig     `mapstructure:"player"`
	HLS        HLSConfig        `mapstructure:"hls"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	User       UserConfig       `mapstructure:"user"`
	Clipboard  ClipboardConfig  `mapstructure:"clipboard"`
}

// LoggingConfig configures the slog logger and log rotation
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	Format     string `mapstructure:"format"` // text, json
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
	Color      bool   `mapstructure:"color"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path           string `mapstructure:"path"`
	MaxConnections int    `mapstructure:"max_connections"`
	WALMode        bool   `mapstructure:"wal_mode"`
	AutoVacuum     bool   `mapstructure:"auto_vacuum"`
}

// PlayerConfig configures the mpv surface and the playback session
type PlayerConfig struct {
	MPVPath        string   `mapstructure:"mpv_path"`
	NativeHLS      bool     `mapstructure:"native_hls"`
	LoadUserConfig bool     `mapstructure:"load_user_config"`
	ExtraArgs      []string `mapstructure:"extra_args"`
	Volume         float64  `mapstructure:"volume"` // 0.0 - 1.0

	PollInterval      time.Duration `mapstructure:"poll_interval"`
	SettleDelay       time.Duration `mapstructure:"settle_delay"`
	FullscreenTimeout time.Duration `mapstructure:"fullscreen_timeout"`
}

// HLSConfig configures the software demuxer's HTTP client
type HLSConfig struct {
	Timeout   time.Duration     `mapstructure:"timeout"`
	UserAgent string            `mapstructure:"user_agent"`
	Referer   string            `mapstructure:"referer"`
	Headers   map[string]string `mapstructure:"headers"`
	Debug     bool              `mapstructure:"debug"`
}

// CheckpointConfig configures watch position persistence
type CheckpointConfig struct {
	CompletionPolicy string        `mapstructure:"completion_policy"` // monotonic, recompute
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
}

// UserConfig selects the active user for the CLI
type UserConfig struct {
	ID string `mapstructure:"id"`
}

// ClipboardConfig configures the fallback clipboard command
type ClipboardConfig struct {
	Command string `mapstructure:"command"`
}

// SetDefaults registers every default value on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", filepath.Join(getStateDir(), appName, appName+".log"))
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.max_size", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)
	v.SetDefault("logging.color", true)

	v.SetDefault("database.path", filepath.Join(GetDataDir(), appName+".db"))
	v.SetDefault("database.max_connections", 4)
	v.SetDefault("database.wal_mode", true)
	v.SetDefault("database.auto_vacuum", true)

	v.SetDefault("player.mpv_path", "")
	v.SetDefault("player.native_hls", true)
	v.SetDefault("player.load_user_config", false)
	v.SetDefault("player.extra_args", []string{})
	v.SetDefault("player.volume", 1.0)
	v.SetDefault("player.poll_interval", 250*time.Millisecond)
	v.SetDefault("player.settle_delay", 300*time.Millisecond)
	v.SetDefault("player.fullscreen_timeout", 10*time.Second)

	v.SetDefault("hls.timeout", 30*time.Second)
	v.SetDefault("hls.user_agent", "")
	v.SetDefault("hls.referer", "")
	v.SetDefault("hls.headers", map[string]string{})
	v.SetDefault("hls.debug", false)

	v.SetDefault("checkpoint.completion_policy", "monotonic")
	v.SetDefault("checkpoint.write_timeout", 5*time.Second)

	v.SetDefault("user.id", "")

	v.SetDefault("clipboard.command", "")
}

// Load reads the configuration file (if any) and environment overrides.
// cfgFile overrides the default search path.
func Load(cfgFile string) (*Config, *viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(GetConfigDir())
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("REEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg, err := Decode(v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

// Decode unmarshals and validates the configuration held by v
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that cannot be defaulted
func (c *Config) Validate() error {
	switch c.Checkpoint.CompletionPolicy {
	case "monotonic", "recompute":
	default:
		return fmt.Errorf("checkpoint.completion_policy must be monotonic or recompute, got %q", c.Checkpoint.CompletionPolicy)
	}
	if c.Player.Volume < 0 || c.Player.Volume > 1 {
		return fmt.Errorf("player.volume must be between 0 and 1, got %v", c.Player.Volume)
	}
	if c.Player.SettleDelay < 0 || c.Player.FullscreenTimeout <= 0 {
		return errors.New("player.settle_delay must be >= 0 and player.fullscreen_timeout > 0")
	}
	if c.Database.MaxConnections < 1 {
		c.Database.MaxConnections = 1
	}
	return nil
}

// SaveDefaultConfig writes a config file holding every default value
func SaveDefaultConfig(path string) error {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	return v.WriteConfigAs(path)
}

// InitializeDirs creates the config, data and state directories
func InitializeDirs() error {
	for _, dir := range []string{GetConfigDir(), GetDataDir(), filepath.Join(getStateDir(), appName)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// GetConfigDir returns $XDG_CONFIG_HOME/reel (or the platform equivalent)
func GetConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, appName)
	}
	if runtime.GOOS == "windows" {
		if dir, err := os.UserConfigDir(); err == nil {
			return filepath.Join(dir, appName)
		}
	}
	return filepath.Join(homeDir(), ".config", appName)
}

// GetDataDir returns $XDG_DATA_HOME/reel
func GetDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, appName)
	}
	return filepath.Join(homeDir(), ".local", "share", appName)
}

func getStateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return dir
	}
	return filepath.Join(homeDir(), ".local", "state")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.TempDir()
	}
	return home
}
