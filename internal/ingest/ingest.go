// Package ingest normalizes loosely-shaped workout input into typed sessions.
//
// Defaulting happens here, once: downstream code can rely on every session it
// receives having a timestamp, finite non-negative weights and an RPE in 0-10.
package ingest

import (
	"context"

	"github.com/voltbora/volt/internal/models"
)

// Recorder stores one normalized session. inserted is false when a session with
// the same ID already exists.
type Recorder interface {
	Record(ctx context.Context, s models.WorkoutSession) (inserted bool, err error)
}

// Result holds the outcome of an ingest operation.
type Result struct {
	SessionsReceived int      `json:"sessions_received"`
	SessionsInserted int      `json:"sessions_inserted"`
	SessionsSkipped  int      `json:"sessions_skipped"`
	SessionsRejected int      `json:"sessions_rejected"`
	RejectedReasons  []string `json:"rejected_reasons,omitempty"`

	SetsReceived int `json:"sets_received"`

	Message string `json:"message,omitempty"`
}

func (r *Result) reject(reason string) {
	r.SessionsRejected++
	r.RejectedReasons = append(r.RejectedReasons, reason)
}

// Store records each session through rec and tallies the outcome into res.
// Storage errors abort the remaining sessions.
func Store(ctx context.Context, rec Recorder, sessions []models.WorkoutSession, res *Result) error {
	for _, s := range sessions {
		inserted, err := rec.Record(ctx, s)
		if err != nil {
			return err
		}
		if inserted {
			res.SessionsInserted++
		} else {
			res.SessionsSkipped++
		}
	}
	return nil
}
