package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/voltbora/volt/internal/ingest"
	"github.com/voltbora/volt/internal/models"
)

const (
	defaultLeaderboardLimit = 10
	defaultHistoryLimit     = 20
)

// --- Tool definitions ---

var toolGetProgress = mcp.NewTool("get_progress",
	mcp.WithDescription("Recompute and return the user's progress: XP, level, weekly goal ratio, total volume, current and best streak, achievements unlocked by this call, and which data sources were degraded."),
)

var toolGetAchievements = mcp.NewTool("get_achievements",
	mcp.WithDescription("List achievements with the user's progress towards each one."),
	mcp.WithBoolean("unlocked_only", mcp.Description("Only return unlocked achievements. Defaults to false.")),
	mcp.WithString("category", mcp.Description("Filter by category."), mcp.Enum("streak", "volume", "consistency", "milestone", "special")),
)

var toolGetLeaderboard = mcp.NewTool("get_leaderboard",
	mcp.WithDescription("Top users of the current rolling ranking period by score (volume, consistency and workout count), plus the user's own entry. Degraded when the ranking table cannot be read."),
	mcp.WithNumber("limit", mcp.Description("Number of entries. Defaults to 10, at most 100.")),
)

var toolGetWorkoutHistory = mcp.NewTool("get_workout_history",
	mcp.WithDescription("Most recent workout sessions with their exercises, weights, RPE and reps. stale is true when served from the local snapshot."),
	mcp.WithNumber("limit", mcp.Description("Number of sessions. Defaults to 20.")),
)

var toolLogWorkout = mcp.NewTool("log_workout",
	mcp.WithDescription("Record a completed workout session and return the recomputed progress, including achievements it unlocked."),
	mcp.WithString("started_at", mcp.Required(), mcp.Description("Session start (ISO 8601, or YYYY-MM-DD HH:MM in the server's timezone)")),
	mcp.WithString("focus", mcp.Description("Session focus, e.g. 'Push' or 'Legs'")),
	mcp.WithNumber("duration_min", mcp.Description("Duration in minutes")),
	mcp.WithArray("exercises",
		mcp.Description("Logged sets; one entry per set"),
		mcp.Items(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name":      map[string]any{"type": "string"},
				"weight_kg": map[string]any{"type": "number"},
				"rpe":       map[string]any{"type": "number"},
				"reps":      map[string]any{"type": "integer"},
				"note":      map[string]any{"type": "string"},
			},
		}),
	),
)

// --- Tool handlers ---

func (h *handlers) getProgress(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	uid := UserIDFromContext(ctx)
	res, err := h.ds.Progress(ctx, uid)
	if err != nil {
		h.log.Error("mcp get_progress", "user_id", uid, "error", err)
		return mcp.NewToolResultError("progress failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(map[string]any{
		"progress":       res.Snapshot,
		"streak":         res.Streak,
		"newly_unlocked": res.NewlyUnlocked,
		"ranking":        res.Ranking,
		"degraded":       res.Degraded,
	})
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getAchievements(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	uid := UserIDFromContext(ctx)
	res, err := h.ds.Progress(ctx, uid)
	if err != nil {
		h.log.Error("mcp get_achievements", "user_id", uid, "error", err)
		return mcp.NewToolResultError("achievements failed: " + err.Error()), nil
	}

	unlockedOnly := req.GetBool("unlocked_only", false)
	category := models.Category(req.GetString("category", ""))
	views := make([]models.AchievementView, 0, len(res.Achievements))
	for _, v := range res.Achievements {
		if unlockedOnly && !v.Unlocked {
			continue
		}
		if category != "" && v.Category != category {
			continue
		}
		views = append(views, v)
	}

	result, err := mcp.NewToolResultJSON(views)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getLeaderboard(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	uid := UserIDFromContext(ctx)
	limit := req.GetInt("limit", defaultLeaderboardLimit)
	if limit <= 0 {
		return mcp.NewToolResultError("limit must be positive"), nil
	}

	lb, err := h.ds.Leaderboard(ctx, uid, limit)
	if err != nil {
		h.log.Error("mcp get_leaderboard", "user_id", uid, "error", err)
		return mcp.NewToolResultError("leaderboard failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(lb)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getWorkoutHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	uid := UserIDFromContext(ctx)
	limit := req.GetInt("limit", defaultHistoryLimit)
	if limit <= 0 {
		return mcp.NewToolResultError("limit must be positive"), nil
	}

	history, err := h.ds.WorkoutHistory(ctx, uid, limit)
	if err != nil {
		h.log.Error("mcp get_workout_history", "user_id", uid, "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(history)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) logWorkout(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if _, err := req.RequireString("started_at"); err != nil {
		return mcp.NewToolResultError("started_at parameter is required"), nil
	}
	var p ingest.SessionPayload
	if err := req.BindArguments(&p); err != nil {
		return mcp.NewToolResultError("invalid arguments: " + err.Error()), nil
	}

	uid := UserIDFromContext(ctx)
	res, err := h.ds.LogWorkout(ctx, uid, p)
	if err != nil {
		h.log.Error("mcp log_workout", "user_id", uid, "error", err)
		return mcp.NewToolResultError("logging workout failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(map[string]any{
		"progress":       res.Snapshot,
		"streak":         res.Streak,
		"newly_unlocked": res.NewlyUnlocked,
		"degraded":       res.Degraded,
	})
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}
