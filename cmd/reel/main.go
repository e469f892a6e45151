package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/gorm"

	"github.com/justchokingaround/reel/internal/config"
	"github.com/justchokingaround/reel/internal/database"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile  string
	logLevel string
	noColor  bool
	userID   string

	// Global config, logger and database
	cfg    *config.Config
	logger *slog.Logger
	db     *gorm.DB
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "reel",
	Short: "Stream short-form video from the terminal",
	Long: `reel plays catalog titles in mpv, remembers where you stopped and
resumes from there. Subscribers get playback speed control and originals.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// config commands work without a database
		if cmd.Parent() != nil && cmd.Parent().Name() == "config" {
			if cmd.Name() == "init" || cmd.Name() == "path" {
				return nil
			}
		}

		if err := config.InitializeDirs(); err != nil {
			return fmt.Errorf("failed to initialize directories: %w", err)
		}

		var (
			err error
			v   *viper.Viper
		)
		cfg, v, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		if noColor {
			cfg.Logging.Color = false
		}
		if userID == "" {
			userID = cfg.User.ID
		}

		var level *slog.LevelVar
		logger, level, err = config.InitLogger(&cfg.Logging)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		db, err = database.Open(&cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}

		// Hot reload: only the log level applies to a running session
		v.OnConfigChange(func(e fsnotify.Event) {
			reloaded, err := config.Decode(v)
			if err != nil {
				logger.Error("Failed to reload config", "file", e.Name, "error", err)
				return
			}
			if logLevel == "" {
				level.Set(config.ParseLogLevel(reloaded.Logging.Level))
			}
			logger.Info("Config file changed", "name", e.Name, "level", level.Level())
		})
		v.WatchConfig()

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if db == nil {
			return
		}
		if err := database.Close(db); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/reel/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored log output")
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "", "active user id (default: user.id from config, empty for guest)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(userCmd)
}

// versionCmd displays version information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display version information",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("reel version %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
	},
}

// configCmd handles configuration operations
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := cfgFile
		if configPath == "" {
			configPath = filepath.Join(config.GetConfigDir(), "config.yaml")
		}

		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("configuration file already exists: %s", configPath)
		}

		if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}

		if err := config.SaveDefaultConfig(configPath); err != nil {
			return fmt.Errorf("failed to save default configuration: %w", err)
		}

		fmt.Printf("Default configuration generated successfully at: %s\n", configPath)
		fmt.Printf("You can now edit this file to customize reel's settings.\n")
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Config file: %s\n", cfgFile)
		fmt.Printf("Log level: %s\n", cfg.Logging.Level)
		fmt.Printf("Database: %s\n", cfg.Database.Path)
		fmt.Printf("Native HLS: %t\n", cfg.Player.NativeHLS)
		fmt.Printf("Fullscreen timeout: %s\n", cfg.Player.FullscreenTimeout)
		fmt.Printf("Completion policy: %s\n", cfg.Checkpoint.CompletionPolicy)
		if userID == "" {
			fmt.Println("User: guest")
		} else {
			fmt.Printf("User: %s\n", userID)
		}
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Display configuration file path",
	Run: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			fmt.Println(cfgFile)
		} else {
			fmt.Println(config.GetConfigDir())
		}
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
}
