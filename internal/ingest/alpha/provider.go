package alpha

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/voltbora/volt/internal/ingest"
	"github.com/voltbora/volt/internal/models"
)

// Provider imports Alpha Progression CSV exports into workout history.
type Provider struct {
	rec ingest.Recorder
	loc *time.Location
	log *slog.Logger
}

// NewProvider creates a new Alpha Progression ingest provider.
func NewProvider(rec ingest.Recorder, loc *time.Location, log *slog.Logger) *Provider {
	return &Provider{rec: rec, loc: loc, log: log}
}

// Ingest parses a CSV export and records its sessions for userID. Sessions
// already imported are skipped.
func (p *Provider) Ingest(ctx context.Context, r io.Reader, userID int) (*ingest.Result, error) {
	parsed, err := Parse(r, p.loc)
	if err != nil {
		return nil, fmt.Errorf("parsing CSV: %w", err)
	}

	result := &ingest.Result{SessionsReceived: len(parsed)}
	sessions := make([]models.WorkoutSession, 0, len(parsed))
	for _, s := range parsed {
		ws := ToWorkoutSession(s, userID)
		result.SetsReceived += len(ws.Exercises)
		sessions = append(sessions, ws)
	}

	if err := ingest.Store(ctx, p.rec, sessions, result); err != nil {
		return nil, fmt.Errorf("recording sessions: %w", err)
	}
	p.log.Info("alpha import complete",
		"user_id", userID,
		"sessions", result.SessionsReceived,
		"inserted", result.SessionsInserted,
		"skipped", result.SessionsSkipped,
		"sets", result.SetsReceived,
	)
	return result, nil
}
