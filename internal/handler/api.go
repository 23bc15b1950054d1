package handler

import (
	"context"
	"encoding/json"

	"github.com/blogpulse/internal/service"
	"github.com/blogpulse/internal/stats"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

type statsProvider interface {
	IngestPayload(ctx context.Context, metric stats.Metric, raw json.RawMessage) service.IngestResult
	IngestCanonical(ctx context.Context, stat service.CanonicalStat) service.IngestResult
	RecentStats(ctx context.Context, limit int) ([]stats.Record, error)
	Summary(ctx context.Context, limit int) ([]stats.Record, stats.Summary, error)
}

type narrativeProvider interface {
	RequestNarrative(ctx context.Context, series []stats.Record) service.NarrativeResult
}

// API bundles shared dependencies for HTTP handlers.
type API struct {
	db           *gorm.DB
	stats        statsProvider
	narratives   narrativeProvider
	analysisDays int
	logger       zerolog.Logger
}

// NewAPI constructs a handler set with shared services.
func NewAPI(db *gorm.DB, statsService *service.StatsService, narratives *service.NarrativeService, analysisDays int) *API {
	if analysisDays <= 0 {
		analysisDays = service.DefaultSeriesLimit
	}
	return &API{
		db:           db,
		stats:        statsService,
		narratives:   narratives,
		analysisDays: analysisDays,
		logger:       zerolog.Nop(),
	}
}

// WithLogger sets the logger used for handler-level diagnostics.
func (a *API) WithLogger(l zerolog.Logger) *API {
	a.logger = l
	return a
}
