package alpha

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/voltbora/volt/internal/models"
)

// sessionNamespace derives stable session IDs so re-importing the same export
// does not duplicate history.
var sessionNamespace = uuid.MustParse("6f1d3c2a-8b4e-4f7a-9c51-2e0d7b9a4c13")

// SessionID returns the stable ID of an imported session.
func SessionID(userID int, date time.Time) uuid.UUID {
	return uuid.NewSHA1(sessionNamespace, []byte(fmt.Sprintf("alpha:%d:%s", userID, date.UTC().Format(time.RFC3339))))
}

// ToWorkoutSession converts a parsed session. Every working set becomes one
// exercise entry; warmups are dropped. Effort is logged as reps in reserve,
// so RPE = 10 - RIR.
func ToWorkoutSession(s Session, userID int) models.WorkoutSession {
	ws := models.WorkoutSession{
		ID:          SessionID(userID, s.Date),
		UserID:      userID,
		StartedAt:   s.Date,
		Focus:       s.Name,
		DurationMin: DurationMinutes(s.Duration),
	}
	for _, ex := range s.Exercises {
		for _, set := range ex.Sets {
			if set.IsWarmup {
				continue
			}
			reps := set.Reps
			entry := models.ExerciseEntry{
				Name:     ex.Name,
				WeightKg: models.SetWeight(set.WeightKg),
				RPE:      math.Min(10, math.Max(0, 10-set.RIR)),
				Reps:     &reps,
				Note:     ex.Equipment,
			}
			if set.IsBodyweightPlus {
				entry.Note = fmt.Sprintf("bodyweight +%g kg", set.WeightKg)
			}
			ws.Exercises = append(ws.Exercises, entry)
		}
	}
	return ws
}
