package achievements

import (
	"errors"
	"fmt"

	"github.com/voltbora/volt/internal/models"
)

// Catalog is the ordered, build-time list of achievement definitions.
type Catalog []models.AchievementDefinition

// DefaultCatalog returns the shipped achievement catalog. New entries go at the end;
// existing IDs are never renamed.
func DefaultCatalog() Catalog {
	return Catalog{
		{ID: "first_workout", Title: "First Rep", Description: "Log your first workout", Category: models.CategoryMilestone, Target: 1, Rarity: models.RarityCommon, XPReward: 50},
		{ID: "workouts_10", Title: "Regular", Description: "Log 10 workouts", Category: models.CategoryMilestone, Target: 10, Rarity: models.RarityCommon, XPReward: 100},
		{ID: "workouts_50", Title: "Committed", Description: "Log 50 workouts", Category: models.CategoryMilestone, Target: 50, Rarity: models.RarityRare, XPReward: 250},
		{ID: "workouts_100", Title: "Centurion", Description: "Log 100 workouts", Category: models.CategoryMilestone, Target: 100, Rarity: models.RarityEpic, XPReward: 500},
		{ID: "streak_3", Title: "Warming Up", Description: "Train 3 days in a row", Category: models.CategoryStreak, Target: 3, Rarity: models.RarityCommon, XPReward: 50},
		{ID: "streak_7", Title: "Full Week", Description: "Train 7 days in a row", Category: models.CategoryStreak, Target: 7, Rarity: models.RarityRare, XPReward: 150},
		{ID: "streak_30", Title: "Unbreakable", Description: "Train 30 days in a row", Category: models.CategoryStreak, Target: 30, Rarity: models.RarityLegendary, XPReward: 1000},
		{ID: "volume_1000", Title: "First Tonne", Description: "Lift 1,000 kg in total", Category: models.CategoryVolume, Target: 1000, Rarity: models.RarityCommon, XPReward: 100},
		{ID: "volume_10000", Title: "Heavy Lifter", Description: "Lift 10,000 kg in total", Category: models.CategoryVolume, Target: 10000, Rarity: models.RarityRare, XPReward: 250},
		{ID: "volume_100000", Title: "Mountain Mover", Description: "Lift 100,000 kg in total", Category: models.CategoryVolume, Target: 100000, Rarity: models.RarityEpic, XPReward: 750},
		{ID: "week_4", Title: "On Schedule", Description: "Log 4 workouts in one week", Category: models.CategoryConsistency, Target: 4, Rarity: models.RarityCommon, XPReward: 100, Window: models.WindowWeek},
		{ID: "month_12", Title: "Monthly Grind", Description: "Log 12 workouts in one month", Category: models.CategoryConsistency, Target: 12, Rarity: models.RarityRare, XPReward: 200, Window: models.WindowMonth},
		{ID: "early_bird_5", Title: "Early Bird", Description: "Log 5 workouts before 07:00", Category: models.CategorySpecial, Target: 5, Rarity: models.RarityRare, XPReward: 150, Rule: RuleEarlyBird},
		{ID: "night_owl_5", Title: "Night Owl", Description: "Log 5 workouts after 21:00", Category: models.CategorySpecial, Target: 5, Rarity: models.RarityRare, XPReward: 150, Rule: RuleNightOwl},
		{ID: "heavy_session_1", Title: "Big Day", Description: "Lift 5,000 kg in a single session", Category: models.CategorySpecial, Target: 1, Rarity: models.RarityEpic, XPReward: 300, Rule: RuleHeavySession},
	}
}

// Lookup returns the definition with the given ID.
func (c Catalog) Lookup(id string) (models.AchievementDefinition, bool) {
	for _, d := range c {
		if d.ID == id {
			return d, true
		}
	}
	return models.AchievementDefinition{}, false
}

// Validate checks that IDs are unique and every definition is measurable.
func (c Catalog) Validate() error {
	seen := make(map[string]bool, len(c))
	for _, d := range c {
		if d.ID == "" {
			return errors.New("definition without id")
		}
		if seen[d.ID] {
			return fmt.Errorf("duplicate definition %q", d.ID)
		}
		seen[d.ID] = true
		if d.Target <= 0 {
			return fmt.Errorf("definition %q: target must be positive", d.ID)
		}
		switch d.Category {
		case models.CategoryStreak, models.CategoryVolume, models.CategoryMilestone:
		case models.CategoryConsistency:
			if d.Window != models.WindowWeek && d.Window != models.WindowMonth {
				return fmt.Errorf("definition %q: unknown window %q", d.ID, d.Window)
			}
		case models.CategorySpecial:
			if _, ok := rules[d.Rule]; !ok {
				return fmt.Errorf("definition %q: unknown rule %q", d.ID, d.Rule)
			}
		default:
			return fmt.Errorf("definition %q: unknown category %q", d.ID, d.Category)
		}
	}
	return nil
}

// Seed aligns stored state with the catalog: rows for unknown definitions are
// dropped, stored rows keep their order, and definitions without a row are
// appended zero-initialized in catalog order.
func Seed(c Catalog, state []models.AchievementState) []models.AchievementState {
	out := make([]models.AchievementState, 0, len(c))
	have := make(map[string]bool, len(state))
	for _, st := range state {
		if _, ok := c.Lookup(st.ID); !ok || have[st.ID] {
			continue
		}
		have[st.ID] = true
		out = append(out, st)
	}
	for _, d := range c {
		if !have[d.ID] {
			out = append(out, models.AchievementState{ID: d.ID})
		}
	}
	return out
}

// Views joins state with catalog definitions for display, in state order.
func Views(c Catalog, state []models.AchievementState) []models.AchievementView {
	views := make([]models.AchievementView, 0, len(state))
	for _, st := range state {
		d, ok := c.Lookup(st.ID)
		if !ok {
			continue
		}
		pct := st.Progress / d.Target * 100
		if pct > 100 {
			pct = 100
		}
		views = append(views, models.AchievementView{
			AchievementDefinition: d,
			Progress:              st.Progress,
			ProgressPct:           pct,
			Unlocked:              st.Unlocked,
			UnlockedAt:            st.UnlockedAt,
		})
	}
	return views
}
