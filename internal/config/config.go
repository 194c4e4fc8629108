package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bookctl/internal/dirs"
)

// Stream transports.
const (
	TransportSSE       = "sse"
	TransportWebSocket = "websocket"
)

// Config is the resolved runtime configuration.
type Config struct {
	Server         string
	RequestTimeout time.Duration
	PollInterval   time.Duration
	StateDir       string
	LogLevel       string
	NoUI           bool
	Stream         StreamConfig
}

// StreamConfig is the push-feed reconnection policy.
type StreamConfig struct {
	Transport      string
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Cooldown       time.Duration
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server", "http://localhost:8000/api/v1")
	v.SetDefault("request_timeout", 15*time.Second)
	v.SetDefault("poll_interval", 3*time.Second)
	v.SetDefault("log_level", "info")
	v.SetDefault("no_ui", false)
	v.SetDefault("stream.transport", TransportSSE)
	v.SetDefault("stream.max_retries", 5)
	v.SetDefault("stream.initial_backoff", 500*time.Millisecond)
	v.SetDefault("stream.max_backoff", 10*time.Second)
	v.SetDefault("stream.cooldown", 30*time.Second)
	if st, err := dirs.StateDir(); err == nil {
		v.SetDefault("state_dir", st)
	}
}

// Init wires Viper with config paths, .env, env, defaults, and flag bindings.
// It is non-fatal: a missing config file or .env is not an error.
func Init(root *cobra.Command) error {
	_ = dirs.EnsureAll()

	// .env in the working directory, if present. Real environment wins.
	_ = godotenv.Load()

	if cfgDir, err := dirs.ConfigDir(); err == nil {
		viper.AddConfigPath(cfgDir)
	}
	viper.SetConfigName("config") // supports config.{yaml|yml|json|toml}

	// Environment variables: BOOKCTL_*
	viper.SetEnvPrefix("BOOKCTL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	SetDefaults(viper.GetViper())

	pf := root.PersistentFlags()
	_ = viper.BindPFlag("server", pf.Lookup("server"))
	_ = viper.BindPFlag("request_timeout", pf.Lookup("timeout"))
	_ = viper.BindPFlag("state_dir", pf.Lookup("state-dir"))
	_ = viper.BindPFlag("log_level", pf.Lookup("log-level"))
	_ = viper.BindPFlag("no_ui", pf.Lookup("no-ui"))
	_ = viper.BindPFlag("stream.transport", pf.Lookup("transport"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}
	return nil
}

// Load resolves a Config from v. Out-of-range values are replaced by defaults.
func Load(v *viper.Viper) Config {
	c := Config{
		Server:         strings.TrimRight(v.GetString("server"), "/"),
		RequestTimeout: v.GetDuration("request_timeout"),
		PollInterval:   v.GetDuration("poll_interval"),
		StateDir:       v.GetString("state_dir"),
		LogLevel:       strings.ToLower(v.GetString("log_level")),
		NoUI:           v.GetBool("no_ui"),
		Stream: StreamConfig{
			Transport:      strings.ToLower(v.GetString("stream.transport")),
			MaxRetries:     v.GetInt("stream.max_retries"),
			InitialBackoff: v.GetDuration("stream.initial_backoff"),
			MaxBackoff:     v.GetDuration("stream.max_backoff"),
			Cooldown:       v.GetDuration("stream.cooldown"),
		},
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 15 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 3 * time.Second
	}
	if c.Stream.Transport != TransportWebSocket {
		c.Stream.Transport = TransportSSE
	}
	if c.Stream.MaxRetries < 0 {
		c.Stream.MaxRetries = 0
	}
	if c.Stream.InitialBackoff <= 0 {
		c.Stream.InitialBackoff = 500 * time.Millisecond
	}
	if c.Stream.MaxBackoff < c.Stream.InitialBackoff {
		c.Stream.MaxBackoff = c.Stream.InitialBackoff
	}
	if c.Stream.Cooldown <= 0 {
		c.Stream.Cooldown = 30 * time.Second
	}
	return c
}
