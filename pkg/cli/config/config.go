package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/urfave/cli/v3"
)

// Profile is an optional TOML file providing defaults for the command line
// flags. A flag given explicitly always wins over the profile.
//
//	api_url = "https://erp.example.com/api/index.php/risk"
//	api_key_header = "DOLAPIKEY"
//	timeout = "20s"
//
//	[cache]
//	backend = "redis"
//	redis_url = "redis://localhost:6379/0"
//	stale_time = "30s"
//
//	[autosave]
//	debounce = "1.2s"
//
//	[archive]
//	location = "s3://reports/riskdesk"
//	s3_region = "ap-northeast-1"
type Profile struct {
	APIURL       string          `toml:"api_url"`
	APIKeyHeader string          `toml:"api_key_header"`
	Timeout      string          `toml:"timeout"`
	RateLimit    float64         `toml:"rate_limit"`
	Cache        CacheProfile    `toml:"cache"`
	Autosave     AutosaveProfile `toml:"autosave"`
	Archive      ArchiveProfile  `toml:"archive"`
}

type CacheProfile struct {
	Backend   string `toml:"backend"`
	RedisURL  string `toml:"redis_url"`
	StaleTime string `toml:"stale_time"`
	GCTime    string `toml:"gc_time"`
}

type AutosaveProfile struct {
	Debounce string `toml:"debounce"`
}

type ArchiveProfile struct {
	Location   string `toml:"location"`
	S3Endpoint string `toml:"s3_endpoint"`
	S3Region   string `toml:"s3_region"`
	S3Insecure bool   `toml:"s3_insecure"`
}

// Validate checks durations and enumerations of the profile
func (p *Profile) Validate() error {
	durations := map[string]string{
		"timeout":           p.Timeout,
		"cache.stale_time":  p.Cache.StaleTime,
		"cache.gc_time":     p.Cache.GCTime,
		"autosave.debounce": p.Autosave.Debounce,
	}
	for field, value := range durations {
		if _, err := parseDuration(field, value); err != nil {
			return err
		}
	}

	switch p.Cache.Backend {
	case "", CacheBackendMemory, CacheBackendRedis:
	default:
		return goerr.Wrap(ErrInvalidBackend, "unknown cache backend",
			goerr.V(FieldKey, "cache.backend"), goerr.V(ValueKey, p.Cache.Backend))
	}

	if p.RateLimit < 0 {
		return goerr.Wrap(ErrInvalidConfig, "rate limit must not be negative",
			goerr.V(FieldKey, "rate_limit"), goerr.V(ValueKey, p.RateLimit))
	}
	return nil
}

// LoadProfile reads and validates a profile file
func LoadProfile(path string) (*Profile, error) {
	// #nosec G304 - path is expected to be provided by CLI argument
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, goerr.Wrap(ErrConfigNotFound, "profile does not exist", goerr.V(ConfigPathKey, path))
		}
		return nil, goerr.Wrap(err, "failed to read profile", goerr.V(ConfigPathKey, path))
	}

	var profile Profile
	if err := toml.Unmarshal(data, &profile); err != nil {
		return nil, goerr.Wrap(err, "failed to parse TOML profile", goerr.V(ConfigPathKey, path))
	}

	if err := profile.Validate(); err != nil {
		return nil, goerr.Wrap(err, "profile validation failed", goerr.V(ConfigPathKey, path))
	}

	return &profile, nil
}

// ProfileFile holds the --config flag
type ProfileFile struct {
	path string
}

func (x *ProfileFile) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Profile file (TOML) providing defaults",
			Sources:     cli.EnvVars("RISKDESK_CONFIG"),
			Destination: &x.path,
		},
	}
}

// Load returns the profile, or an empty one when no file is configured
func (x *ProfileFile) Load() (*Profile, error) {
	if x.path == "" {
		return &Profile{}, nil
	}
	return LoadProfile(x.path)
}

func parseDuration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return 0, goerr.Wrap(ErrInvalidDuration, "failed to parse duration",
			goerr.V(FieldKey, field), goerr.V(ValueKey, value))
	}
	return d, nil
}

// pick returns the first non zero value
func pick[T comparable](values ...T) T {
	var zero T
	for _, v := range values {
		if v != zero {
			return v
		}
	}
	return zero
}
