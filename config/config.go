// Package config loads and validates the source allowlist and run tunables.
// A Config that leaves this package has passed validation; nothing
// downstream re-checks it.
package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/pevans/feedsnap/failure"
)

const (
	// MaxFeedsPerAdapter is the soft cap on feeds configured for one adapter.
	MaxFeedsPerAdapter = 25

	maxConfigFileSize = 1024 * 1024 // 1MB

	envPrefix = "FEEDSNAP_"
)

// Configuration validation errors.
var (
	ErrNoFeeds              = errors.New("at least one feed is required")
	ErrTooManyFeeds         = errors.New("too many feeds")
	ErrFeedMissingID        = errors.New("feed id is required")
	ErrFeedInvalidID        = errors.New("feed id must match [a-z0-9][a-z0-9._-]*")
	ErrDuplicateFeedID      = errors.New("duplicate feed id")
	ErrFeedInvalidURL       = errors.New("feed url must be an absolute https URL")
	ErrInvalidExcerptLength = errors.New("options.excerptMaxLength must be between 20 and 1000")
	ErrInvalidTimeout       = errors.New("options.requestTimeoutMs must be between 100 and 120000")
	ErrMissingUserAgent     = errors.New("options.userAgent is required")
	ErrInvalidConcurrency   = errors.New("options.concurrency must be between 1 and 16")
	ErrInvalidRate          = errors.New("options.requestsPerSecond must be non-negative")
	ErrInvalidCoverage      = errors.New("gates.minFieldCoverage must be between 0 and 1")
	ErrInvalidAvgConfidence = errors.New("gates.minAvgConfidence must be between 0 and 1")
)

var feedIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// Environment variables that override file options.
var envKeys = map[string]string{
	envPrefix + "EXCERPT_MAX_LENGTH":  "options.excerptMaxLength",
	envPrefix + "REQUEST_TIMEOUT_MS":  "options.requestTimeoutMs",
	envPrefix + "USER_AGENT":          "options.userAgent",
	envPrefix + "CONCURRENCY":         "options.concurrency",
	envPrefix + "REQUESTS_PER_SECOND": "options.requestsPerSecond",
}

// Config is the validated run configuration.
type Config struct {
	Medium  FeedList `koanf:"medium"`
	RSS     FeedList `koanf:"rss"`
	Options Options  `koanf:"options"`
	Gates   Gates    `koanf:"gates"`
}

// FeedList is the feed allowlist of one adapter.
type FeedList struct {
	Feeds []Feed `koanf:"feeds"`
}

// Feed is one allowlisted syndication feed.
type Feed struct {
	ID  string `koanf:"id"`
	URL string `koanf:"url"`
}

// Options are the global run tunables.
type Options struct {
	ExcerptMaxLength  int     `koanf:"excerptMaxLength"`
	RequestTimeoutMs  int     `koanf:"requestTimeoutMs"`
	UserAgent         string  `koanf:"userAgent"`
	Concurrency       int     `koanf:"concurrency"`
	RequestsPerSecond float64 `koanf:"requestsPerSecond"` // 0 disables pacing
}

// Gates are the quality-gate thresholds.
type Gates struct {
	MinFieldCoverage float64 `koanf:"minFieldCoverage"`
	MinAvgConfidence float64 `koanf:"minAvgConfidence"`
}

// RequestTimeout returns the per-request timeout.
func (o Options) RequestTimeout() time.Duration {
	return time.Duration(o.RequestTimeoutMs) * time.Millisecond
}

func defaults() map[string]any {
	return map[string]any{
		"options.excerptMaxLength":  200,
		"options.requestTimeoutMs":  10000,
		"options.userAgent":         "feedsnap/1.0 (+https://github.com/pevans/feedsnap)",
		"options.concurrency":       2,
		"options.requestsPerSecond": 0.0,
		"gates.minFieldCoverage":    0.9,
		"gates.minAvgConfidence":    0.75,
	}
}

// Load reads the configuration file at path, applies environment overrides
// and validates the result. Every failure is a CONFIG_INVALID error.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, failure.New(failure.ConfigInvalid, fmt.Errorf("failed to open config file: %w", err))
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Config{}, failure.New(failure.ConfigInvalid, fmt.Errorf("failed to stat config file: %w", err))
	}
	if info.Size() > maxConfigFileSize {
		return Config{}, failure.Errorf(failure.ConfigInvalid, "config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return Config{}, failure.New(failure.ConfigInvalid, fmt.Errorf("failed to read config file: %w", err))
	}

	return Parse(content)
}

// Parse builds a Config from a YAML (or JSON) document. Precedence, highest
// first: environment variables, the document, built-in defaults.
func Parse(content []byte) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return Config{}, failure.New(failure.ConfigInvalid, fmt.Errorf("failed to load defaults: %w", err))
	}

	if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
		return Config{}, failure.New(failure.ConfigInvalid, fmt.Errorf("failed to parse config: %w", err))
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		// unmapped variables (log level and so on) are ignored
		return envKeys[s]
	}), nil); err != nil {
		return Config{}, failure.New(failure.ConfigInvalid, fmt.Errorf("failed to load environment variables: %w", err))
	}

	var cfg Config
	err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			TagName:          "koanf",
			ErrorUnused:      true,
			WeaklyTypedInput: true,
			Result:           &cfg,
		},
	})
	if err != nil {
		return Config{}, failure.New(failure.ConfigInvalid, fmt.Errorf("failed to decode config: %w", err))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, failure.New(failure.ConfigInvalid, fmt.Errorf("configuration validation failed: %w", err))
	}

	return cfg, nil
}

// Validate checks the configuration and reports every problem found.
func (c Config) Validate() error {
	var errs []error

	if len(c.Medium.Feeds)+len(c.RSS.Feeds) == 0 {
		errs = append(errs, ErrNoFeeds)
	}
	errs = append(errs, validateFeeds("medium", c.Medium.Feeds)...)
	errs = append(errs, validateFeeds("rss", c.RSS.Feeds)...)

	o := c.Options
	if o.ExcerptMaxLength < 20 || o.ExcerptMaxLength > 1000 {
		errs = append(errs, ErrInvalidExcerptLength)
	}
	if o.RequestTimeoutMs < 100 || o.RequestTimeoutMs > 120000 {
		errs = append(errs, ErrInvalidTimeout)
	}
	if strings.TrimSpace(o.UserAgent) == "" {
		errs = append(errs, ErrMissingUserAgent)
	}
	if o.Concurrency < 1 || o.Concurrency > 16 {
		errs = append(errs, ErrInvalidConcurrency)
	}
	if o.RequestsPerSecond < 0 {
		errs = append(errs, ErrInvalidRate)
	}

	if c.Gates.MinFieldCoverage < 0 || c.Gates.MinFieldCoverage > 1 {
		errs = append(errs, ErrInvalidCoverage)
	}
	if c.Gates.MinAvgConfidence < 0 || c.Gates.MinAvgConfidence > 1 {
		errs = append(errs, ErrInvalidAvgConfidence)
	}

	return errors.Join(errs...)
}

func validateFeeds(scope string, feeds []Feed) []error {
	var errs []error

	if len(feeds) > MaxFeedsPerAdapter {
		errs = append(errs, fmt.Errorf("%w: %s has %d (max %d)", ErrTooManyFeeds, scope, len(feeds), MaxFeedsPerAdapter))
	}

	seen := make(map[string]bool, len(feeds))
	for i, feed := range feeds {
		switch {
		case feed.ID == "":
			errs = append(errs, fmt.Errorf("%w: %s.feeds[%d]", ErrFeedMissingID, scope, i))
		case !feedIDPattern.MatchString(feed.ID):
			errs = append(errs, fmt.Errorf("%w: %s.feeds[%d] %q", ErrFeedInvalidID, scope, i, feed.ID))
		case seen[feed.ID]:
			errs = append(errs, fmt.Errorf("%w: %s.feeds[%d] %q", ErrDuplicateFeedID, scope, i, feed.ID))
		}
		seen[feed.ID] = true

		u, err := url.Parse(feed.URL)
		if err != nil || u.Scheme != "https" || u.Host == "" {
			errs = append(errs, fmt.Errorf("%w: %s.feeds[%d] %q", ErrFeedInvalidURL, scope, i, feed.URL))
		}
	}

	return errs
}

// EnvOverrides lists the environment variables that override file options,
// sorted by name.
func EnvOverrides() []string {
	names := make([]string, 0, len(envKeys))
	for name := range envKeys {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
