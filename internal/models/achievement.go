package models

import "time"

// Category groups achievements by the metric they are measured against.
type Category string

const (
	CategoryStreak      Category = "streak"
	CategoryVolume      Category = "volume"
	CategoryConsistency Category = "consistency"
	CategoryMilestone   Category = "milestone"
	CategorySpecial     Category = "special"
)

// Rarity is a display tier.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// Window is the calendar window a consistency achievement counts sessions in.
type Window string

const (
	WindowWeek  Window = "week"
	WindowMonth Window = "month"
)

// AchievementDefinition is a static catalog entry.
type AchievementDefinition struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    Category `json:"category"`
	Target      float64  `json:"target"`
	Rarity      Rarity   `json:"rarity"`
	XPReward    int      `json:"xp_reward"`

	// Window applies to consistency achievements.
	Window Window `json:"window,omitempty"`
	// Rule names the session predicate of a special achievement.
	Rule string `json:"rule,omitempty"`
}

// AchievementState is a user's progress against one definition.
// Progress never decreases, and an unlocked state never changes again.
type AchievementState struct {
	ID         string     `json:"id"`
	Progress   float64    `json:"progress"`
	Unlocked   bool       `json:"unlocked"`
	UnlockedAt *time.Time `json:"unlocked_at,omitempty"`
}

// AchievementView joins a definition with the user's state for display.
type AchievementView struct {
	AchievementDefinition
	Progress    float64    `json:"progress"`
	ProgressPct float64    `json:"progress_pct"`
	Unlocked    bool       `json:"unlocked"`
	UnlockedAt  *time.Time `json:"unlocked_at,omitempty"`
}
