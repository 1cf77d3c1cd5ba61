// Package run holds the state scoped to one pipeline run. A Scope is passed
// explicitly to every adapter and stage; nothing in feedsnap reads
// process-wide loggers or clocks.
package run

import (
	"time"

	"github.com/google/uuid"

	"github.com/pevans/feedsnap/config"
	"github.com/pevans/feedsnap/fetch"
	"github.com/pevans/feedsnap/logging"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns the same instant. Runs against fixtures with a
// FixedClock are byte-for-byte reproducible.
type FixedClock struct {
	T time.Time
}

func (c FixedClock) Now() time.Time { return c.T.UTC() }

// Scope is the run-scoped context.
type Scope struct {
	ID      uuid.UUID
	Logger  *logging.Logger
	Clock   Clock
	Config  config.Config
	Fetcher fetch.Fetcher
}

// NewScope creates a scope with a fresh run id. The logger is tagged with
// the run id. A nil clock means the system clock.
func NewScope(cfg config.Config, logger *logging.Logger, clock Clock, fetcher fetch.Fetcher) *Scope {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	id := uuid.New()
	return &Scope{
		ID:      id,
		Logger:  logger.With(logging.RunID(id.String())),
		Clock:   clock,
		Config:  cfg,
		Fetcher: fetcher,
	}
}
