package config

import (
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/riskdesk/pkg/service/riskapi"
	"github.com/urfave/cli/v3"
	"golang.org/x/time/rate"
)

// Client holds the flags of the REST API client
type Client struct {
	apiURL       string
	apiKey       string
	apiKeyHeader string
	timeout      time.Duration
	rateLimit    float64
	burst        int
}

func (x *Client) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "api-url",
			Usage:       "Base URL of the risk management API",
			Category:    "API",
			Sources:     cli.EnvVars("RISKDESK_API_URL"),
			Destination: &x.apiURL,
		},
		&cli.StringFlag{
			Name:        "api-key",
			Usage:       "API access key",
			Category:    "API",
			Sources:     cli.EnvVars("RISKDESK_API_KEY"),
			Destination: &x.apiKey,
		},
		&cli.StringFlag{
			Name:        "api-key-header",
			Usage:       "Header carrying the API access key (default: " + riskapi.DefaultAPIKeyHeader + ")",
			Category:    "API",
			Sources:     cli.EnvVars("RISKDESK_API_KEY_HEADER"),
			Destination: &x.apiKeyHeader,
		},
		&cli.DurationFlag{
			Name:        "timeout",
			Usage:       "HTTP request timeout (default: 30s)",
			Category:    "API",
			Sources:     cli.EnvVars("RISKDESK_TIMEOUT"),
			Destination: &x.timeout,
		},
		&cli.FloatFlag{
			Name:        "rate-limit",
			Usage:       "Maximum requests per second, 0 disables throttling",
			Category:    "API",
			Sources:     cli.EnvVars("RISKDESK_RATE_LIMIT"),
			Destination: &x.rateLimit,
		},
		&cli.IntFlag{
			Name:        "rate-burst",
			Usage:       "Burst size of the rate limiter",
			Category:    "API",
			Value:       1,
			Sources:     cli.EnvVars("RISKDESK_RATE_BURST"),
			Destination: &x.burst,
		},
	}
}

func (x Client) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("api_url", x.apiURL),
		slog.Int("api_key.len", len(x.apiKey)),
		slog.String("api_key_header", x.apiKeyHeader),
		slog.Duration("timeout", x.timeout),
		slog.Float64("rate_limit", x.rateLimit),
	)
}

// Configure builds the API client. Unset flags fall back to the profile.
func (x *Client) Configure(profile *Profile, version string) (*riskapi.Client, error) {
	if profile == nil {
		profile = &Profile{}
	}

	apiURL := pick(x.apiURL, profile.APIURL)
	if apiURL == "" {
		return nil, goerr.Wrap(ErrMissingAPIURL, "set --api-url, RISKDESK_API_URL or api_url in the profile")
	}

	profileTimeout, err := parseDuration("timeout", profile.Timeout)
	if err != nil {
		return nil, err
	}
	if x.rateLimit < 0 {
		return nil, goerr.Wrap(ErrInvalidConfig, "rate limit must not be negative", goerr.V(FieldKey, "rate-limit"), goerr.V(ValueKey, x.rateLimit))
	}

	opts := []riskapi.Option{
		riskapi.WithSession(riskapi.NewSession(x.apiKey)),
		riskapi.WithAPIKeyHeader(pick(x.apiKeyHeader, profile.APIKeyHeader)),
		riskapi.WithTimeout(pick(x.timeout, profileTimeout, riskapi.DefaultTimeout)),
		riskapi.WithRateLimit(rate.Limit(pick(x.rateLimit, profile.RateLimit)), x.burst),
		riskapi.WithUserAgent("riskdesk/" + version),
	}

	client, err := riskapi.New(apiURL, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create API client")
	}
	return client, nil
}
