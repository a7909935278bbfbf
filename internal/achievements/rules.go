package achievements

import (
	"time"

	"github.com/voltbora/volt/internal/models"
)

// Special achievement rules.
const (
	RuleEarlyBird    = "early_bird"
	RuleNightOwl     = "night_owl"
	RuleHeavySession = "heavy_session"
)

const (
	earlyBirdBeforeHour = 7
	nightOwlFromHour    = 21
	heavySessionKg      = 5000
)

type sessionRule func(s models.WorkoutSession, loc *time.Location) bool

var rules = map[string]sessionRule{
	RuleEarlyBird: func(s models.WorkoutSession, loc *time.Location) bool {
		return s.StartedAt.In(loc).Hour() < earlyBirdBeforeHour
	},
	RuleNightOwl: func(s models.WorkoutSession, loc *time.Location) bool {
		return s.StartedAt.In(loc).Hour() >= nightOwlFromHour
	},
	RuleHeavySession: func(s models.WorkoutSession, _ *time.Location) bool {
		return roundKg(s.Volume()) >= heavySessionKg
	},
}
