package mcp

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/voltbora/volt/internal/achievements"
	"github.com/voltbora/volt/internal/models"
)

type contextKey int

const userIDKey contextKey = iota

// UserIDFromContext extracts the user ID injected by the transport layer.
// Without one, tools act for the anonymous local user.
func UserIDFromContext(ctx context.Context) int {
	if id, ok := ctx.Value(userIDKey).(int); ok {
		return id
	}
	return models.AnonymousUserID
}

// WithUserID returns a context with the given user ID.
func WithUserID(ctx context.Context, userID int) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// New creates an MCP server with all tools and resources registered.
func New(ds DataSource, catalog achievements.Catalog, version string, log *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("Volt", version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("Volt workout progress server. Read streaks, achievements, XP level, weekly goal progress and the leaderboard, browse workout history, and log new workouts. All data is scoped to the authenticated user."),
	)

	h := &handlers{ds: ds, catalog: catalog, log: log}

	// Tools
	s.AddTools(
		server.ServerTool{Tool: toolGetProgress, Handler: h.getProgress},
		server.ServerTool{Tool: toolGetAchievements, Handler: h.getAchievements},
		server.ServerTool{Tool: toolGetLeaderboard, Handler: h.getLeaderboard},
		server.ServerTool{Tool: toolGetWorkoutHistory, Handler: h.getWorkoutHistory},
		server.ServerTool{Tool: toolLogWorkout, Handler: h.logWorkout},
	)

	// Resources
	s.AddResources(
		server.ServerResource{Resource: resAchievementCatalog, Handler: h.achievementCatalog},
	)

	return s
}

// handlers holds dependencies for MCP tool/resource handlers.
type handlers struct {
	ds      DataSource
	catalog achievements.Catalog
	log     *slog.Logger
}

// --- Resource definitions ---

var resAchievementCatalog = mcp.NewResource(
	"volt://achievement_catalog",
	"Achievement Catalog",
	mcp.WithResourceDescription("Every achievement with its category, target, rarity and XP reward"),
	mcp.WithMIMEType("application/json"),
)
