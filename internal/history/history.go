// Package history serves a user's workout history from the hosted store with a
// local snapshot as fallback.
//
// Every successful hosted read refreshes the snapshot. When the hosted store is
// down, reads are answered from the snapshot and flagged stale, and recorded
// sessions are kept locally and pushed on the next successful read.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/voltbora/volt/internal/kv"
	"github.com/voltbora/volt/internal/models"
)

// maxSnapshot bounds the number of sessions kept in a local snapshot.
const maxSnapshot = 5000

// ErrUnavailable is returned when neither the hosted store nor a local
// snapshot can answer.
var ErrUnavailable = errors.New("workout history unavailable")

// Source is the hosted workout table.
type Source interface {
	RecentSessions(ctx context.Context, userID, limit int) ([]models.WorkoutSession, error)
	InsertSession(ctx context.Context, s models.WorkoutSession) (bool, error)
}

// Service reads and records workout history.
type Service struct {
	hosted  Source
	local   kv.Store
	log     *slog.Logger
	onStale func()

	mu sync.Mutex // serializes snapshot read-modify-write
}

// NewService creates a Service. hosted may be nil, in which case every user is
// served from the local store only.
func NewService(hosted Source, local kv.Store, log *slog.Logger) *Service {
	return &Service{hosted: hosted, local: local, log: log}
}

// OnStale registers a hook called whenever a read is answered from the snapshot
// because the hosted store failed.
func (s *Service) OnStale(fn func()) {
	s.onStale = fn
}

// SnapshotKey is the local key of a user's history snapshot.
func SnapshotKey(userID int) string {
	return fmt.Sprintf("history:%d", userID)
}

// PendingKey is the local key of sessions recorded while the hosted store was down.
func PendingKey(userID int) string {
	return fmt.Sprintf("history-pending:%d", userID)
}

func (s *Service) hostedFor(userID int) bool {
	return s.hosted != nil && userID != models.AnonymousUserID
}

// GetWorkoutHistory returns up to limit sessions, most recent first; a
// non-positive limit returns everything available. stale reports that the
// hosted store failed and the result comes from the local snapshot.
func (s *Service) GetWorkoutHistory(ctx context.Context, userID, limit int) (sessions []models.WorkoutSession, stale bool, err error) {
	if !s.hostedFor(userID) {
		snap, err := s.readList(ctx, SnapshotKey(userID))
		if err != nil && !errors.Is(err, kv.ErrNotFound) {
			return nil, false, fmt.Errorf("reading local history: %w", err)
		}
		return truncate(snap, limit), false, nil
	}

	unsynced := s.flushPending(ctx, userID)

	fetched, hostedErr := s.hosted.RecentSessions(ctx, userID, limit)
	if hostedErr == nil {
		s.refreshSnapshot(ctx, userID, fetched)
		if merged, changed := merge(fetched, unsynced); changed {
			fetched = truncate(merged, limit)
		}
		return fetched, false, nil
	}

	s.log.Warn("hosted history unavailable, using local snapshot", "user_id", userID, "error", hostedErr)
	if s.onStale != nil {
		s.onStale()
	}
	snap, err := s.readList(ctx, SnapshotKey(userID))
	if err != nil {
		return nil, true, fmt.Errorf("%w: %w", ErrUnavailable, errors.Join(hostedErr, err))
	}
	return truncate(snap, limit), true, nil
}

// Record stores a new session. For hosted users a failed hosted insert is not
// an error: the session is kept locally and pushed later. inserted is false
// when the session was already known.
func (s *Service) Record(ctx context.Context, session models.WorkoutSession) (inserted bool, err error) {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	if !s.hostedFor(session.UserID) {
		return s.appendLocal(ctx, SnapshotKey(session.UserID), session)
	}

	inserted, err = s.hosted.InsertSession(ctx, session)
	if err != nil {
		s.log.Warn("hosted insert failed, queueing session locally",
			"user_id", session.UserID, "session_id", session.ID, "error", err)
		if _, qerr := s.appendLocal(ctx, PendingKey(session.UserID), session); qerr != nil {
			return false, fmt.Errorf("queueing session: %w", errors.Join(err, qerr))
		}
		inserted = true
	}
	if _, err := s.appendLocal(ctx, SnapshotKey(session.UserID), session); err != nil {
		s.log.Warn("failed to update local snapshot", "user_id", session.UserID, "error", err)
	}
	return inserted, nil
}

// flushPending pushes sessions queued while the hosted store was down and
// returns the ones still not accepted.
func (s *Service) flushPending(ctx context.Context, userID int) []models.WorkoutSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, err := s.readList(ctx, PendingKey(userID))
	if err != nil || len(pending) == 0 {
		return nil
	}
	var remaining []models.WorkoutSession
	for _, p := range pending {
		if _, err := s.hosted.InsertSession(ctx, p); err != nil {
			remaining = append(remaining, p)
		}
	}
	if len(remaining) < len(pending) {
		s.log.Info("flushed queued sessions", "user_id", userID, "flushed", len(pending)-len(remaining))
		if err := s.writeList(ctx, PendingKey(userID), remaining); err != nil {
			s.log.Warn("failed to update pending queue", "user_id", userID, "error", err)
		}
	}
	return remaining
}

// refreshSnapshot merges fetched sessions into the snapshot, writing only on change.
func (s *Service) refreshSnapshot(ctx context.Context, userID int, fetched []models.WorkoutSession) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.readList(ctx, SnapshotKey(userID))
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		s.log.Warn("failed to read local snapshot", "user_id", userID, "error", err)
	}
	merged, changed := merge(snap, fetched)
	if !changed {
		return
	}
	if err := s.writeList(ctx, SnapshotKey(userID), merged); err != nil {
		s.log.Warn("failed to refresh local snapshot", "user_id", userID, "error", err)
	}
}

func (s *Service) appendLocal(ctx context.Context, key string, session models.WorkoutSession) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.readList(ctx, key)
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		return false, err
	}
	merged, changed := merge(list, []models.WorkoutSession{session})
	if !changed {
		return false, nil
	}
	if err := s.writeList(ctx, key, merged); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) readList(ctx context.Context, key string) ([]models.WorkoutSession, error) {
	data, err := s.local.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var list []models.WorkoutSession
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", key, err)
	}
	return list, nil
}

func (s *Service) writeList(ctx context.Context, key string, list []models.WorkoutSession) error {
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return s.local.Put(ctx, key, data)
}

// merge adds sessions not yet present (by ID) and returns the list ordered most
// recent first, capped at maxSnapshot.
func merge(existing, add []models.WorkoutSession) ([]models.WorkoutSession, bool) {
	seen := make(map[uuid.UUID]bool, len(existing)+len(add))
	out := make([]models.WorkoutSession, 0, len(existing)+len(add))
	for _, e := range existing {
		if !seen[e.ID] {
			seen[e.ID] = true
			out = append(out, e)
		}
	}
	changed := false
	for _, a := range add {
		if !seen[a.ID] {
			seen[a.ID] = true
			out = append(out, a)
			changed = true
		}
	}
	if !changed {
		return existing, false
	}
	SortRecentFirst(out)
	if len(out) > maxSnapshot {
		out = out[:maxSnapshot]
	}
	return out, true
}

// SortRecentFirst orders sessions by start time descending, then by ID.
func SortRecentFirst(sessions []models.WorkoutSession) {
	slices.SortStableFunc(sessions, func(a, b models.WorkoutSession) int {
		if c := b.StartedAt.Compare(a.StartedAt); c != 0 {
			return c
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})
}

func truncate(sessions []models.WorkoutSession, limit int) []models.WorkoutSession {
	if limit > 0 && len(sessions) > limit {
		return sessions[:limit]
	}
	return sessions
}
