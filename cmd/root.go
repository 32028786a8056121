package cmd

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/resume-updater/internal/api"
	"github.com/spigell/resume-updater/internal/consumer"
	"github.com/spigell/resume-updater/internal/lock"
	"github.com/spigell/resume-updater/internal/notification"
	"github.com/spigell/resume-updater/internal/search"
	"github.com/spigell/resume-updater/internal/tracker"
)

const (
	app       = "resume-updater"
	envPrefix = "RESUME_UPDATER"
)

type Config struct {
	Store        StoreConfig        `mapstructure:"store"`
	Search       SearchConfig       `mapstructure:"search"`
	AI           AIConfig           `mapstructure:"ai"`
	Blob         BlobConfig         `mapstructure:"blob"`
	Notification NotificationConfig `mapstructure:"notification"`
	Tracker      TrackerConfig      `mapstructure:"tracker"`
	Kafka        consumer.Config    `mapstructure:"kafka"`
	Lock         lock.Config        `mapstructure:"lock"`
	API          api.Config         `mapstructure:"api"`
}

type StoreConfig struct {
	Driver          string              `mapstructure:"driver"`
	DSN             string              `mapstructure:"dsn"`
	DSNFile         string              `mapstructure:"dsn-file"`
	Consistency     tracker.Consistency `mapstructure:"consistency"`
	ConflictRetries int                 `mapstructure:"conflict-retries"`
}

type SearchConfig struct {
	search.Config `mapstructure:",squash"`
	APIKey        string `mapstructure:"api-key"`
	APIKeyFile    string `mapstructure:"api-key-file"`
}

type AIConfig struct {
	Provider string        `mapstructure:"provider"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	MaxRetries   int    `mapstructure:"max-retries"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

type BlobConfig struct {
	Root      string `mapstructure:"root"`
	Container string `mapstructure:"container"`
}

type NotificationConfig struct {
	Sender        string                  `mapstructure:"sender"`
	From          string                  `mapstructure:"from"`
	Cooldown      time.Duration           `mapstructure:"cooldown"`
	ReviewerURL   string                  `mapstructure:"reviewer-url"`
	RatePerMinute int                     `mapstructure:"rate-per-minute"`
	SMTP          notification.SMTPConfig `mapstructure:"smtp"`
	PasswordFile  string                  `mapstructure:"smtp-password-file"`
}

type TrackerConfig struct {
	HoursThreshold float64       `mapstructure:"hours-threshold"`
	ReviewPeriod   time.Duration `mapstructure:"review-period"`
	DisabledChecks []string      `mapstructure:"disabled-checks"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "resume-updater keeps employee resumes in step with the projects they work on",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is resume-updater.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))

	setDefaults()
}

func setDefaults() {
	viper.SetDefault("store.driver", "memory")
	viper.SetDefault("store.consistency", string(tracker.LastWriterWins))
	viper.SetDefault("store.conflict-retries", 3)
	viper.SetDefault("search.api-version", "2023-11-01")
	viper.SetDefault("ai.provider", "gemini")
	viper.SetDefault("ai.gemini.model", "gemini-2.5-flash")
	viper.SetDefault("ai.gemini.max-retries", 3)
	viper.SetDefault("ai.gemini.max-log-length", 2000)
	viper.SetDefault("blob.root", "./data")
	viper.SetDefault("blob.container", "resumes")
	viper.SetDefault("notification.sender", "log")
	viper.SetDefault("notification.cooldown", notification.DefaultCooldown)
	viper.SetDefault("notification.rate-per-minute", 30)
	viper.SetDefault("tracker.hours-threshold", tracker.DefaultHoursThreshold)
	viper.SetDefault("tracker.review-period", tracker.DefaultReviewPeriod)
	viper.SetDefault("kafka.group-id", app)
	viper.SetDefault("lock.enabled", false)
	viper.SetDefault("api.addr", ":8080")
}

func initConfig() {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// Running from env only is fine. A config file that exists but does not parse is not.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	return config, nil
}
