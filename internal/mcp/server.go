// Package mcp exposes the training log and estimates to LLM assistants
// over the Model Context Protocol.
package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/meltforce/liftlog/internal/estimator"
	"github.com/meltforce/liftlog/internal/history"
	"github.com/meltforce/liftlog/internal/storage"
)

// New creates an MCP server with all tools and resources registered.
func New(db *storage.DB, hist *history.Store, cache *estimator.Cache, version string, log *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("LiftLog", version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("LiftLog training log server. Query logged workout sets, session history, weekly performance, and training-max estimates for a single lifter."),
	)

	h := &handlers{db: db, history: hist, cache: cache, log: log}

	// Tools
	s.AddTools(
		server.ServerTool{Tool: toolGetTrainingMax, Handler: h.getTrainingMax},
		server.ServerTool{Tool: toolListEstimates, Handler: h.listEstimates},
		server.ServerTool{Tool: toolGetExerciseHistory, Handler: h.getExerciseHistory},
		server.ServerTool{Tool: toolGetWeekPerformance, Handler: h.getWeekPerformance},
		server.ServerTool{Tool: toolListSessions, Handler: h.listSessions},
		server.ServerTool{Tool: toolCheckIntegrity, Handler: h.checkIntegrity},
	)

	// Resources
	s.AddResources(
		server.ServerResource{Resource: resEstimates, Handler: h.estimatesResource},
	)

	return s
}

// handlers holds dependencies for MCP tool/resource handlers.
type handlers struct {
	db      *storage.DB
	history *history.Store
	cache   *estimator.Cache
	log     *slog.Logger
}

// --- Resource definitions ---

var resEstimates = mcp.NewResource(
	"liftlog://estimates",
	"Training Max Estimates",
	mcp.WithResourceDescription("Current 1RM and training-max estimates for every logged exercise, including staleness flags and user overrides"),
	mcp.WithMIMEType("application/json"),
)
