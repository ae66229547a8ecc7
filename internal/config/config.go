// Package config loads runtime settings for toolrelay.
//
// Values come from (highest precedence first) command-line flags bound by
// the CLI, environment variables, an optional toolrelay.yaml file and the
// defaults below. A .env file in the working directory is loaded into the
// environment before anything else is read.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/HendryAvila/toolrelay/internal/tasks"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Keys double as environment variable names once upper-cased.
const (
	KeyHost             = "host"
	KeyPort             = "port"
	KeyTasksDir         = "tasks_dir"
	KeyDataDir          = "data_dir"
	KeySourceRoot       = "source_root"
	KeyProjectRoot      = "project_root"
	KeyGeocoderURL      = "geocoder_url"
	KeyGeocoderCacheTTL = "geocoder_cache_ttl"
	KeyToolTimeout      = "tool_timeout"
	KeyShutdownTimeout  = "shutdown_timeout"
	KeySSEKeepAlive     = "sse_keepalive"
	KeyStrictArgs       = "strict_args"
	KeyDefaultPriority  = "default_priority"
	KeyLogLevel         = "log_level"
	KeyLogFormat        = "log_format"
)

// DefaultGeocoderURL is a Nominatim-compatible search endpoint.
const DefaultGeocoderURL = "https://nominatim.openstreetmap.org/search"

// Config holds every runtime setting.
type Config struct {
	Host             string
	Port             int
	TasksDir         string
	DataDir          string
	SourceRoot       string
	ProjectRoot      string
	GeocoderURL      string
	GeocoderCacheTTL time.Duration
	ToolTimeout      time.Duration
	ShutdownTimeout  time.Duration
	SSEKeepAlive     time.Duration
	StrictArgs       bool
	DefaultPriority  tasks.Priority
	LogLevel         string
	LogFormat        string
}

// Addr is the host:port the HTTP server listens on.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// NewViper returns a viper instance with defaults and env binding set up.
func NewViper() *viper.Viper {
	v := viper.New()

	home, _ := os.UserHomeDir()

	v.SetDefault(KeyHost, "0.0.0.0")
	v.SetDefault(KeyPort, 3001)
	v.SetDefault(KeyTasksDir, "tasks")
	v.SetDefault(KeyDataDir, filepath.Join(home, ".toolrelay"))
	v.SetDefault(KeySourceRoot, ".")
	v.SetDefault(KeyProjectRoot, ".")
	v.SetDefault(KeyGeocoderURL, DefaultGeocoderURL)
	v.SetDefault(KeyGeocoderCacheTTL, time.Hour)
	v.SetDefault(KeyToolTimeout, 30*time.Second)
	v.SetDefault(KeyShutdownTimeout, 5*time.Second)
	v.SetDefault(KeySSEKeepAlive, 15*time.Second)
	v.SetDefault(KeyStrictArgs, false)
	v.SetDefault(KeyDefaultPriority, string(tasks.PriorityMedium))
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")

	v.AutomaticEnv()

	v.SetConfigName("toolrelay")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	return v
}

// LoadDotEnv loads .env files into the process environment. Missing
// files are not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// Load reads the optional config file and returns a validated Config.
func Load(v *viper.Viper) (Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := Config{
		Host:             v.GetString(KeyHost),
		Port:             v.GetInt(KeyPort),
		TasksDir:         v.GetString(KeyTasksDir),
		DataDir:          v.GetString(KeyDataDir),
		SourceRoot:       v.GetString(KeySourceRoot),
		ProjectRoot:      v.GetString(KeyProjectRoot),
		GeocoderURL:      v.GetString(KeyGeocoderURL),
		GeocoderCacheTTL: v.GetDuration(KeyGeocoderCacheTTL),
		ToolTimeout:      v.GetDuration(KeyToolTimeout),
		ShutdownTimeout:  v.GetDuration(KeyShutdownTimeout),
		SSEKeepAlive:     v.GetDuration(KeySSEKeepAlive),
		StrictArgs:       v.GetBool(KeyStrictArgs),
		DefaultPriority:  tasks.Priority(v.GetString(KeyDefaultPriority)),
		LogLevel:         v.GetString(KeyLogLevel),
		LogFormat:        v.GetString(KeyLogFormat),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 1 and 65535", c.Port)
	}
	if err := tasks.ValidatePriority(c.DefaultPriority); err != nil {
		return fmt.Errorf("invalid default priority: %w", err)
	}
	if c.ToolTimeout < 0 {
		return fmt.Errorf("invalid tool timeout %s: must not be negative", c.ToolTimeout)
	}
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("invalid shutdown timeout %s: must not be negative", c.ShutdownTimeout)
	}
	if c.GeocoderURL == "" {
		return errors.New("geocoder url must not be empty")
	}
	return nil
}
