package achievements

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/voltbora/volt/internal/kv"
	"github.com/voltbora/volt/internal/models"
)

// ErrCorruptState is returned by Load when state is stored but no copy of it decodes.
var ErrCorruptState = errors.New("achievement state unreadable")

// Store persists per-user achievement state as a JSON blob in a kv.Store.
type Store struct {
	kv      kv.Store
	catalog Catalog
}

// NewStore creates a Store seeding loaded state against c.
func NewStore(s kv.Store, c Catalog) *Store {
	return &Store{kv: s, catalog: c}
}

// Key returns the storage key of a user's achievement state.
func Key(userID int) string {
	return fmt.Sprintf("achievements:%d", userID)
}

// Load returns the user's state, seeded against the catalog. A user without
// stored state gets a zero-initialized catalog. Errors other than absence are
// returned so the caller can tell "new user" from "store down".
//
// When the backing store keeps several copies (kv.MultiGetter), they are merged
// with Merge and a diverged set of copies is written back reconciled.
func (s *Store) Load(ctx context.Context, userID int) ([]models.AchievementState, error) {
	key := Key(userID)
	blobs, err := s.read(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return Seed(s.catalog, nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading achievements: %w", err)
	}

	var copies [][]models.AchievementState
	for _, b := range blobs {
		var st []models.AchievementState
		if err := json.Unmarshal(b, &st); err != nil {
			continue
		}
		copies = append(copies, st)
	}
	if len(copies) == 0 {
		return nil, fmt.Errorf("loading achievements: %w", ErrCorruptState)
	}

	state := Seed(s.catalog, Merge(copies...))
	if len(blobs) > 1 {
		data, err := json.Marshal(state)
		if err == nil && diverged(blobs, data) {
			// Best effort; the next Save writes every store again.
			_ = s.kv.Put(ctx, key, data)
		}
	}
	return state, nil
}

func (s *Store) read(ctx context.Context, key string) ([][]byte, error) {
	if mg, ok := s.kv.(kv.MultiGetter); ok {
		return mg.GetAll(ctx, key)
	}
	v, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return [][]byte{v}, nil
}

func diverged(blobs [][]byte, want []byte) bool {
	for _, b := range blobs {
		if !bytes.Equal(b, want) {
			return true
		}
	}
	return false
}

// Save writes the user's state.
func (s *Store) Save(ctx context.Context, userID int, state []models.AchievementState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding achievements: %w", err)
	}
	if err := s.kv.Put(ctx, Key(userID), data); err != nil {
		return fmt.Errorf("saving achievements: %w", err)
	}
	return nil
}

// Merge reconciles copies of one user's state. Per achievement the highest
// progress wins, and an unlock in any copy sticks with its earliest UnlockedAt.
// Rows keep the order in which their ID first appears.
func Merge(copies ...[]models.AchievementState) []models.AchievementState {
	var out []models.AchievementState
	idx := make(map[string]int)
	for _, c := range copies {
		for _, st := range c {
			i, ok := idx[st.ID]
			if !ok {
				idx[st.ID] = len(out)
				out = append(out, st)
				continue
			}
			cur := &out[i]
			cur.Progress = math.Max(cur.Progress, st.Progress)
			if !st.Unlocked {
				continue
			}
			if !cur.Unlocked || (st.UnlockedAt != nil && (cur.UnlockedAt == nil || st.UnlockedAt.Before(*cur.UnlockedAt))) {
				cur.UnlockedAt = st.UnlockedAt
			}
			cur.Unlocked = true
		}
	}
	return out
}
