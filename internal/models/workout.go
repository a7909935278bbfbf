package models

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// AnonymousUserID marks sessions that live only in the local store.
const AnonymousUserID = 0

// WorkoutSession is one completed training session. Sessions are immutable once
// recorded; StartedAt is the only ordering key.
type WorkoutSession struct {
	ID          uuid.UUID       `json:"id"`
	UserID      int             `json:"user_id"`
	StartedAt   time.Time       `json:"started_at"`
	Focus       string          `json:"focus"`
	DurationMin float64         `json:"duration_min"`
	Exercises   []ExerciseEntry `json:"exercises"`
}

// ExerciseEntry is one logged set.
type ExerciseEntry struct {
	Name     string  `json:"name"`
	WeightKg float64 `json:"weight_kg"`
	RPE      float64 `json:"rpe"`
	Reps     *int    `json:"reps,omitempty"`
	Note     string  `json:"note,omitempty"`
}

// MaxSetWeightKg caps a single logged set. Anything heavier is a data-entry
// error, not a lift.
const MaxSetWeightKg = 1000

// SetWeight returns kg when it is a plausible set weight and 0 otherwise.
func SetWeight(kg float64) float64 {
	if math.IsNaN(kg) || kg < 0 || kg > MaxSetWeightKg {
		return 0
	}
	return kg
}

// Volume returns the sum of logged weight across the session's sets. Sets with
// an implausible weight count as 0.
func (s WorkoutSession) Volume() float64 {
	var v float64
	for _, e := range s.Exercises {
		v += SetWeight(e.WeightKg)
	}
	return v
}

// User is a registered account on the hosted store.
type User struct {
	ID          int       `json:"id"`
	Login       string    `json:"login"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}
