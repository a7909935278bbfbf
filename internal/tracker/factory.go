package tracker

import (
	"context"
	"errors"
	"sync"

	"github.com/voltbora/volt/internal/models"
)

// Factory hands out one Tracker per user. Concurrent requests for the same user
// share its tracker and are serialized by it; different users never share state.
type Factory struct {
	deps Deps

	mu       sync.Mutex
	trackers map[int]*Tracker
}

// NewFactory creates a Factory over shared collaborators.
func NewFactory(deps Deps) *Factory {
	return &Factory{deps: deps, trackers: make(map[int]*Tracker)}
}

// Init returns the tracker of userID, creating it on first use. Registered
// users are looked up once; a failed lookup leaves the tracker usable with an
// empty profile.
func (f *Factory) Init(ctx context.Context, userID int) *Tracker {
	f.mu.Lock()
	if t, ok := f.trackers[userID]; ok {
		f.mu.Unlock()
		return t
	}
	// Locked until the profile is loaded so concurrent callers wait for it.
	t := &Tracker{factory: f, deps: &f.deps, userID: userID}
	t.mu.Lock()
	defer t.mu.Unlock()
	f.trackers[userID] = t
	active := len(f.trackers)
	f.mu.Unlock()

	if f.deps.Metrics != nil {
		f.deps.Metrics.GaugeActiveTrackers.Set(float64(active))
	}
	if f.deps.Users != nil && userID != models.AnonymousUserID {
		u, err := f.deps.Users.GetUser(ctx, userID)
		if err == nil {
			t.user = u
		} else if !errors.Is(err, context.Canceled) {
			f.deps.Log.Warn("user lookup failed", "user_id", userID, "error", err)
		}
	}
	return t
}

// Active returns the number of live trackers.
func (f *Factory) Active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.trackers)
}

func (f *Factory) release(t *Tracker) {
	f.mu.Lock()
	if f.trackers[t.userID] == t {
		delete(f.trackers, t.userID)
	}
	active := len(f.trackers)
	f.mu.Unlock()

	if f.deps.Metrics != nil {
		f.deps.Metrics.GaugeActiveTrackers.Set(float64(active))
	}
}

// Teardown releases the tracker of userID, if any, and reports whether one existed.
func (f *Factory) Teardown(userID int) bool {
	f.mu.Lock()
	t, ok := f.trackers[userID]
	f.mu.Unlock()
	if !ok {
		return false
	}
	t.Teardown()
	return true
}
