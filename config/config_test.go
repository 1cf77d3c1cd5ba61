package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pevans/feedsnap/failure"
)

const validConfig = `
medium:
  feeds:
    - id: eng
      url: https://medium.com/feed/@engineering
rss:
  feeds:
    - id: golang
      url: https://go.dev/blog/feed.atom
options:
  excerptMaxLength: 180
  userAgent: "test-agent/1.0"
`

// writeConfig writes content to a config file in a temp dir
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// TestLoad_Valid verifies a valid file is loaded with defaults applied
func TestLoad_Valid(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	require.Len(t, cfg.Medium.Feeds, 1)
	assert.Equal(t, Feed{ID: "eng", URL: "https://medium.com/feed/@engineering"}, cfg.Medium.Feeds[0])
	require.Len(t, cfg.RSS.Feeds, 1)
	assert.Equal(t, "golang", cfg.RSS.Feeds[0].ID)

	assert.Equal(t, 180, cfg.Options.ExcerptMaxLength)
	assert.Equal(t, "test-agent/1.0", cfg.Options.UserAgent)
	assert.Equal(t, 10000, cfg.Options.RequestTimeoutMs, "timeout should default")
	assert.Equal(t, 2, cfg.Options.Concurrency, "concurrency should default")
	assert.Equal(t, 0.75, cfg.Gates.MinAvgConfidence)
	assert.Equal(t, 0.9, cfg.Gates.MinFieldCoverage)
}

// TestLoad_JSONDocument verifies JSON documents are accepted
func TestLoad_JSONDocument(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{"rss": {"feeds": [{"id": "a", "url": "https://example.com/feed"}]}}`))
	require.NoError(t, err)
	assert.Equal(t, "a", cfg.RSS.Feeds[0].ID)
	assert.Equal(t, 200, cfg.Options.ExcerptMaxLength)
}

// TestLoad_MissingFile verifies an unreadable file is CONFIG_INVALID
func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, failure.ConfigInvalid, failure.CodeOf(err))
}

// TestLoad_EnvOverridesFile verifies environment variables win over the file
func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("FEEDSNAP_EXCERPT_MAX_LENGTH", "150")
	t.Setenv("FEEDSNAP_REQUEST_TIMEOUT_MS", "2500")
	t.Setenv("FEEDSNAP_CONCURRENCY", "4")

	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, 150, cfg.Options.ExcerptMaxLength)
	assert.Equal(t, 2500, cfg.Options.RequestTimeoutMs)
	assert.Equal(t, 4, cfg.Options.Concurrency)
	assert.Equal(t, "test-agent/1.0", cfg.Options.UserAgent, "unset env should keep file value")
}

// TestParse_Invalid verifies schema violations are rejected
func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{
			name:    "no feeds",
			content: `options: {excerptMaxLength: 200}`,
			wantErr: ErrNoFeeds,
		},
		{
			name:    "http url",
			content: "rss:\n  feeds:\n    - {id: a, url: http://example.com/feed}\n",
			wantErr: ErrFeedInvalidURL,
		},
		{
			name:    "duplicate id",
			content: "rss:\n  feeds:\n    - {id: a, url: https://a.example/feed}\n    - {id: a, url: https://b.example/feed}\n",
			wantErr: ErrDuplicateFeedID,
		},
		{
			name:    "missing id",
			content: "rss:\n  feeds:\n    - {url: https://a.example/feed}\n",
			wantErr: ErrFeedMissingID,
		},
		{
			name:    "bad id",
			content: "rss:\n  feeds:\n    - {id: 'Bad Id', url: https://a.example/feed}\n",
			wantErr: ErrFeedInvalidID,
		},
		{
			name:    "excerpt too short",
			content: "rss:\n  feeds:\n    - {id: a, url: https://a.example/feed}\noptions: {excerptMaxLength: 5}\n",
			wantErr: ErrInvalidExcerptLength,
		},
		{
			name:    "zero concurrency",
			content: "rss:\n  feeds:\n    - {id: a, url: https://a.example/feed}\noptions: {concurrency: 0}\n",
			wantErr: ErrInvalidConcurrency,
		},
		{
			name:    "coverage out of range",
			content: "rss:\n  feeds:\n    - {id: a, url: https://a.example/feed}\ngates: {minFieldCoverage: 1.5}\n",
			wantErr: ErrInvalidCoverage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.content))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, failure.ConfigInvalid, failure.CodeOf(err))
		})
	}
}

// TestParse_TooManyFeeds verifies the per-adapter soft cap
func TestParse_TooManyFeeds(t *testing.T) {
	var b strings.Builder
	b.WriteString("rss:\n  feeds:\n")
	for i := 0; i <= MaxFeedsPerAdapter; i++ {
		fmt.Fprintf(&b, "    - {id: f%d, url: https://example.com/%d}\n", i, i)
	}

	_, err := Parse([]byte(b.String()))
	assert.ErrorIs(t, err, ErrTooManyFeeds)
}

// TestParse_UnknownKey verifies loosely-typed documents are rejected
func TestParse_UnknownKey(t *testing.T) {
	_, err := Parse([]byte("rss:\n  feeds:\n    - {id: a, url: https://a.example/feed, colour: red}\n"))
	require.Error(t, err)
	assert.Equal(t, failure.ConfigInvalid, failure.CodeOf(err))
}

// TestParse_WrongType verifies type mismatches are rejected
func TestParse_WrongType(t *testing.T) {
	_, err := Parse([]byte("rss:\n  feeds:\n    - {id: a, url: https://a.example/feed}\noptions: {requestTimeoutMs: soon}\n"))
	require.Error(t, err)
	assert.Equal(t, failure.ConfigInvalid, failure.CodeOf(err))
}

// TestParse_ReportsEveryProblem verifies all violations are joined
func TestParse_ReportsEveryProblem(t *testing.T) {
	_, err := Parse([]byte("rss:\n  feeds:\n    - {id: a, url: http://a.example/feed}\n    - {id: a, url: https://b.example/feed}\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFeedInvalidURL)
	assert.ErrorIs(t, err, ErrDuplicateFeedID)
}

// TestEnvOverrides verifies the override list is sorted and prefixed
func TestEnvOverrides(t *testing.T) {
	names := EnvOverrides()
	assert.IsIncreasing(t, names)
	for _, name := range names {
		assert.True(t, strings.HasPrefix(name, "FEEDSNAP_"))
	}
}
