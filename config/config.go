// Package config loads nostr-gate settings from defaults, an optional
// nostr-gate.yaml file and NOSTRGATE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	EnvPrefix  = "NOSTRGATE"
	ConfigName = "nostr-gate"

	StoreMemory = "memory"
	StoreRedis  = "redis"

	EventsGoChannel = "gochannel"
	EventsRedis     = "redis"
	EventsNone      = "none"

	minSecretLength = 32
)

// Config is the validated service configuration
type Config struct {
	HTTP   HTTPConfig
	Auth   AuthConfig
	Store  StoreConfig
	Redis  RedisConfig
	Relay  RelayConfig
	Events EventsConfig
	Git    GitConfig
}

type HTTPConfig struct {
	Port           int
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
}

type AuthConfig struct {
	Secret       string
	Issuer       string
	SessionTTL   time.Duration
	ChallengeTTL time.Duration
	VerifiedTTL  time.Duration
	MaxClockSkew time.Duration
	Kinds        []int
	Schemes      []string
}

type StoreConfig struct {
	Backend       string
	Capacity      int
	SweepInterval time.Duration
}

type RedisConfig struct {
	URL string
}

type RelayConfig struct {
	URLs    []string
	Timeout time.Duration
}

type EventsConfig struct {
	Backend string
	Topic   string
}

type GitConfig struct {
	Dir    string
	Binary string
}

// New returns a viper instance with defaults, config paths and env binding set up
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigName(ConfigName)
	v.SetConfigType("yaml")
	v.AddConfigPath("configs")
	v.AddConfigPath(".")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)
	return v
}

// SetDefaults registers every key with its default value
func SetDefaults(v *viper.Viper) {
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.cors_origins", []string{})
	v.SetDefault("http.rate_limit_rps", 5)
	v.SetDefault("http.rate_limit_burst", 10)

	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.issuer", "nostr-gate")
	v.SetDefault("auth.session_ttl", "24h")
	v.SetDefault("auth.challenge_ttl", "5m")
	v.SetDefault("auth.verified_ttl", "10m")
	v.SetDefault("auth.max_clock_skew", "10m")
	v.SetDefault("auth.kinds", []int{22242, 27235})
	v.SetDefault("auth.schemes", []string{"schnorr", "eip191"})

	v.SetDefault("store.backend", StoreMemory)
	v.SetDefault("store.capacity", 100_000)
	v.SetDefault("store.sweep_interval", "1m")

	v.SetDefault("redis.url", "redis://localhost:6379/0")

	v.SetDefault("relay.urls", []string{"wss://relay.damus.io", "wss://nos.lol"})
	v.SetDefault("relay.timeout", "5s")

	v.SetDefault("events.backend", EventsNone)
	v.SetDefault("events.topic", "nostrgate.auth.verified")

	v.SetDefault("git.dir", ".")
	v.SetDefault("git.binary", "git")
}

// ReadFile reads the config file if one is present. It reports whether a file was used.
func ReadFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		var cfgNotFound viper.ConfigFileNotFoundError
		if errors.As(err, &cfgNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("read config: %w", err)
	}
	return true, nil
}

// Load builds a Config from v and validates it
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		HTTP: HTTPConfig{
			Port:           v.GetInt("http.port"),
			CORSOrigins:    splitList(v.GetStringSlice("http.cors_origins")),
			RateLimitRPS:   v.GetFloat64("http.rate_limit_rps"),
			RateLimitBurst: v.GetInt("http.rate_limit_burst"),
		},
		Auth: AuthConfig{
			Secret:       v.GetString("auth.secret"),
			Issuer:       v.GetString("auth.issuer"),
			SessionTTL:   v.GetDuration("auth.session_ttl"),
			ChallengeTTL: v.GetDuration("auth.challenge_ttl"),
			VerifiedTTL:  v.GetDuration("auth.verified_ttl"),
			MaxClockSkew: v.GetDuration("auth.max_clock_skew"),
			Schemes:      splitList(v.GetStringSlice("auth.schemes")),
		},
		Store: StoreConfig{
			Backend:       strings.ToLower(v.GetString("store.backend")),
			Capacity:      v.GetInt("store.capacity"),
			SweepInterval: v.GetDuration("store.sweep_interval"),
		},
		Redis: RedisConfig{
			URL: v.GetString("redis.url"),
		},
		Relay: RelayConfig{
			URLs:    splitList(v.GetStringSlice("relay.urls")),
			Timeout: v.GetDuration("relay.timeout"),
		},
		Events: EventsConfig{
			Backend: strings.ToLower(v.GetString("events.backend")),
			Topic:   v.GetString("events.topic"),
		},
		Git: GitConfig{
			Dir:    v.GetString("git.dir"),
			Binary: v.GetString("git.binary"),
		},
	}

	kinds, err := parseKinds(splitList(v.GetStringSlice("auth.kinds")))
	if err != nil {
		return nil, err
	}
	cfg.Auth.Kinds = kinds

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values Load cannot default
func (c *Config) Validate() error {
	var errs []error

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port %d is out of range", c.HTTP.Port))
	}
	if len(c.Auth.Secret) < minSecretLength {
		errs = append(errs, fmt.Errorf("auth.secret must be at least %d bytes", minSecretLength))
	}
	if c.Auth.SessionTTL <= 0 {
		errs = append(errs, errors.New("auth.session_ttl must be positive"))
	}
	if c.Auth.ChallengeTTL <= 0 || c.Auth.VerifiedTTL <= 0 {
		errs = append(errs, errors.New("auth.challenge_ttl and auth.verified_ttl must be positive"))
	}
	if c.Auth.MaxClockSkew < 0 {
		errs = append(errs, errors.New("auth.max_clock_skew must not be negative"))
	}
	if len(c.Auth.Kinds) == 0 {
		errs = append(errs, errors.New("auth.kinds must list at least one event kind"))
	}
	if len(c.Auth.Schemes) == 0 {
		errs = append(errs, errors.New("auth.schemes must name at least one scheme"))
	}

	switch c.Store.Backend {
	case StoreMemory:
		if c.Store.SweepInterval <= 0 {
			errs = append(errs, errors.New("store.sweep_interval must be positive"))
		}
	case StoreRedis:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("redis.url is required for the redis store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.backend %q", c.Store.Backend))
	}

	switch c.Events.Backend {
	case EventsNone, EventsGoChannel:
	case EventsRedis:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("redis.url is required for redis events"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown events.backend %q", c.Events.Backend))
	}

	if c.Relay.Timeout <= 0 {
		errs = append(errs, errors.New("relay.timeout must be positive"))
	}

	return errors.Join(errs...)
}

// splitList flattens comma separated entries, which is how list values arrive from env vars
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func parseKinds(in []string) ([]int, error) {
	kinds := make([]int, 0, len(in))
	for _, item := range in {
		k, err := strconv.Atoi(item)
		if err != nil || k < 0 {
			return nil, fmt.Errorf("auth.kinds: invalid event kind %q", item)
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}
