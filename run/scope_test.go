package run

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pevans/feedsnap/config"
	"github.com/pevans/feedsnap/logging"
)

// TestNewScope_TagsLogger verifies every entry carries the run id
func TestNewScope_TagsLogger(t *testing.T) {
	logger := logging.NewTestLogger()
	rs := NewScope(config.Config{}, logger.Logger, nil, nil)

	require.NotEqual(t, uuid.Nil, rs.ID)
	rs.Logger.Info("hello")

	entries := logger.All()
	require.Len(t, entries, 1)
	assert.Equal(t, rs.ID.String(), entries[0].ContextMap()["runId"])
}

// TestNewScope_Defaults verifies nil collaborators are replaced
func TestNewScope_Defaults(t *testing.T) {
	rs := NewScope(config.Config{}, nil, nil, nil)

	assert.NotNil(t, rs.Logger)
	assert.IsType(t, SystemClock{}, rs.Clock)
	assert.Equal(t, time.UTC, rs.Clock.Now().Location())
}

// TestNewScope_UniqueIDs verifies each run gets its own id
func TestNewScope_UniqueIDs(t *testing.T) {
	a := NewScope(config.Config{}, nil, nil, nil)
	b := NewScope(config.Config{}, nil, nil, nil)
	assert.NotEqual(t, a.ID, b.ID)
}

// TestFixedClock verifies the frozen clock
func TestFixedClock(t *testing.T) {
	at := time.Date(2026, 10, 15, 14, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	clock := FixedClock{T: at}

	assert.Equal(t, clock.Now(), clock.Now())
	assert.Equal(t, time.UTC, clock.Now().Location())
	assert.True(t, at.Equal(clock.Now()))
}
