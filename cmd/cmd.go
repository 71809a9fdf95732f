package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/frahmantamala/travel-requests/internal"
	"github.com/frahmantamala/travel-requests/pkg/logger"
)

var (
	configPath  string
	traceEvents bool

	cfg *internal.Config
)

var rootCmd = &cobra.Command{
	Use:           "travel",
	Short:         "Travel requests",
	Long:          `Submit, list and approve corporate travel requests from the command line.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		loaded, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		cfg = loaded

		level := cfg.Logging.Level
		if traceEvents && logger.ParseLevel(level) > slog.LevelInfo {
			level = "info"
		}
		logger.Init(cfg.Logging.Format, level)
		return nil
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*internal.Config, error) {
	if err := godotenv.Load(filepath.Join(path, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v, internal.DefaultConfig())
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.SetEnvPrefix("TRAVEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var config internal.Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if config.Storage.Driver == "sqlite" && config.Storage.Source == "" {
		source, err := defaultSQLitePath()
		if err != nil {
			return nil, err
		}
		config.Storage.Source = source
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("error validating config: %w", err)
	}

	return &config, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d internal.Config) {
	v.SetDefault("api.base_url", d.API.BaseURL)
	v.SetDefault("api.origin", d.API.Origin)
	v.SetDefault("api.timeout", d.API.Timeout)

	v.SetDefault("session.cookie_name", d.Session.CookieName)
	v.SetDefault("session.token_ttl", d.Session.TokenTTL)
	v.SetDefault("session.cookie_ttl", d.Session.CookieTTL)

	v.SetDefault("cache.destination_ttl", d.Cache.DestinationTTL)
	v.SetDefault("cache.max_entries", d.Cache.MaxEntries)
	v.SetDefault("cache.search_limit", d.Cache.SearchLimit)

	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.source", d.Storage.Source)
	v.SetDefault("storage.auto_migrate", d.Storage.AutoMigrate)
	v.SetDefault("storage.redis.addr", d.Storage.Redis.Addr)
	v.SetDefault("storage.redis.password", d.Storage.Redis.Password)
	v.SetDefault("storage.redis.db", d.Storage.Redis.DB)
	v.SetDefault("storage.redis.prefix", d.Storage.Redis.Prefix)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}

func defaultSQLitePath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	dir = filepath.Join(dir, "travel-requests")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create state directory: %w", err)
	}
	return filepath.Join(dir, "state.db"), nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", ".", "directory containing config.yml and .env")
	rootCmd.PersistentFlags().BoolVar(&traceEvents, "trace-events", false, "log every store change event")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(destinationsCmd)
	rootCmd.AddCommand(requestsCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(storageCmd)
}
