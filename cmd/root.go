package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile     string
	dbPath      string
	redisURL    string
	logLevel    string
	backendMode string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "casedesk",
	Short: "Review desk for support knowledge-base records",
	Long: `Casedesk is a terminal-first review desk for knowledge-base records that are
stored as "Тема: ...; Вопрос: ...; Ответ: ..." text.

Features:
- Records table with search, archive filter and duplicate clusters
- Record review: edit, approve to Telegram, archive, mark duplicates
- Chat and templator webhook forwarding with step logs
- Feedback with case references extracted from free text
- JSON HTTP API, folder import and Redis Streams change events`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.casedesk.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "./data/casedesk.db", "SQLite database path (local backend, audit trail)")
	rootCmd.PersistentFlags().StringVar(&redisURL, "redis", "", "Redis connection URL (empty disables the event bus)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&backendMode, "backend", "local", "Record backend: rpc or local")

	// Bind flags to viper
	viper.BindPFlag("database.path", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("redis.url", rootCmd.PersistentFlags().Lookup("redis"))
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("backend.mode", rootCmd.PersistentFlags().Lookup("backend"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".casedesk" (without extension).
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".casedesk")
	}

	// CASEDESK_BACKEND_URL overrides backend.url and so on.
	viper.SetEnvPrefix("casedesk")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	setDefaults()
}

func setDefaults() {
	viper.SetDefault("database.path", "./data/casedesk.db")
	viper.SetDefault("redis.url", "")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("backend.mode", "local")
	viper.SetDefault("backend.timeout", 30*time.Second)
	viper.SetDefault("webhooks.chat_timeout", 60*time.Second)
	viper.SetDefault("webhooks.templator_timeout", 180*time.Second)
	viper.SetDefault("auth.endpoint", "https://identitytoolkit.googleapis.com/v1")
	viper.SetDefault("auth.timeout", 30*time.Second)
	viper.SetDefault("http.bind", "127.0.0.1:8080")
	viper.SetDefault("http.rps", 10)
	viper.SetDefault("http.burst", 20)
	viper.SetDefault("feedback.source_window", 48)
	viper.SetDefault("ingest.dir", "data/incoming")
}

// GetConfig returns the current configuration values
func GetConfig() Config {
	return Config{
		Database: DatabaseConfig{
			Path: viper.GetString("database.path"),
		},
		Redis: RedisConfig{
			URL: viper.GetString("redis.url"),
		},
		Log: LogConfig{
			Level: viper.GetString("log.level"),
		},
		Backend: BackendConfig{
			Mode:    strings.ToLower(viper.GetString("backend.mode")),
			URL:     viper.GetString("backend.url"),
			APIKey:  viper.GetString("backend.api_key"),
			Timeout: viper.GetDuration("backend.timeout"),
		},
		Webhooks: WebhooksConfig{
			ChatURL:          viper.GetString("webhooks.chat_url"),
			TemplatorURL:     viper.GetString("webhooks.templator_url"),
			ChatTimeout:      viper.GetDuration("webhooks.chat_timeout"),
			TemplatorTimeout: viper.GetDuration("webhooks.templator_timeout"),
		},
		Auth: AuthConfig{
			APIKey:   viper.GetString("auth.api_key"),
			Endpoint: viper.GetString("auth.endpoint"),
			Timeout:  viper.GetDuration("auth.timeout"),
		},
		HTTP: HTTPConfig{
			Bind:  viper.GetString("http.bind"),
			Token: viper.GetString("http.token"),
			RPS:   viper.GetInt("http.rps"),
			Burst: viper.GetInt("http.burst"),
		},
		Feedback: FeedbackConfig{
			SourceWindow:  viper.GetInt("feedback.source_window"),
			SourceAliases: viper.GetStringMapString("feedback.source_aliases"),
		},
		Ingest: IngestConfig{
			Dir: viper.GetString("ingest.dir"),
		},
	}
}

// Config represents the application configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
	Backend  BackendConfig  `mapstructure:"backend"`
	Webhooks WebhooksConfig `mapstructure:"webhooks"`
	Auth     AuthConfig     `mapstructure:"auth"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Feedback FeedbackConfig `mapstructure:"feedback"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// BackendConfig selects where records live. Mode "rpc" talks to the remote
// database; "local" uses the SQLite store.
type BackendConfig struct {
	Mode    string        `mapstructure:"mode"`
	URL     string        `mapstructure:"url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type WebhooksConfig struct {
	ChatURL          string        `mapstructure:"chat_url"`
	TemplatorURL     string        `mapstructure:"templator_url"`
	ChatTimeout      time.Duration `mapstructure:"chat_timeout"`
	TemplatorTimeout time.Duration `mapstructure:"templator_timeout"`
}

type AuthConfig struct {
	APIKey   string        `mapstructure:"api_key"`
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type HTTPConfig struct {
	Bind  string `mapstructure:"bind"`
	Token string `mapstructure:"token"`
	RPS   int    `mapstructure:"rps"`
	Burst int    `mapstructure:"burst"`
}

type FeedbackConfig struct {
	SourceWindow  int               `mapstructure:"source_window"`
	SourceAliases map[string]string `mapstructure:"source_aliases"`
}

type IngestConfig struct {
	Dir string `mapstructure:"dir"`
}
