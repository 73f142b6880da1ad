package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/meltforce/liftlog/internal/estimator"
)

// --- Tool definitions ---

var toolGetTrainingMax = mcp.NewTool("get_training_max",
	mcp.WithDescription("Get the current training max (TRM) and estimated 1RM for one exercise. The effective TRM honors a user override when set; the response includes staleness and a recent trend direction."),
	mcp.WithString("exercise", mcp.Required(), mcp.Description("Exercise name, exact match (e.g. 'Bench Press')")),
)

var toolListEstimates = mcp.NewTool("list_estimates",
	mcp.WithDescription("List training-max estimates for every logged exercise, sorted by name. Includes 1RM, TRM, sample count, last-performed date, staleness, and any user override."),
)

var toolGetExerciseHistory = mcp.NewTool("get_exercise_history",
	mcp.WithDescription("Full logged history for one exercise across all sessions, oldest first. Superseded duplicate sets are already collapsed."),
	mcp.WithString("exercise", mcp.Required(), mcp.Description("Exercise name, exact match")),
)

var toolGetWeekPerformance = mcp.NewTool("get_week_performance",
	mcp.WithDescription("Progressive-overload summary for one exercise in one program week: heaviest working set, set count, and average RPE."),
	mcp.WithString("exercise", mcp.Required(), mcp.Description("Exercise name, exact match")),
	mcp.WithString("program", mcp.Required(), mcp.Description("Program ID")),
	mcp.WithNumber("week", mcp.Required(), mcp.Description("Week number within the program")),
)

var toolListSessions = mcp.NewTool("list_sessions",
	mcp.WithDescription("List completed training sessions, newest first. Each session is one calendar date within one program."),
	mcp.WithNumber("limit", mcp.Description("Maximum sessions to return. Defaults to 20; 0 returns all.")),
)

var toolCheckIntegrity = mcp.NewTool("check_integrity",
	mcp.WithDescription("Compare the current record count against the last saved checkpoint and report possible data loss. Advisory only."),
)

// --- Tool handlers ---

func (h *handlers) getTrainingMax(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	exercise, err := req.RequireString("exercise")
	if err != nil {
		return mcp.NewToolResultError("exercise parameter is required"), nil
	}

	entry, ok := h.cache.Lookup(exercise)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("no estimate for %q; has it been logged?", exercise)), nil
	}

	var samples []estimator.Sample
	for _, rec := range h.history.ExerciseHistory(ctx, exercise) {
		if rec.IsCompoundParent || !rec.Completed || rec.Reps <= 0 || rec.Weight <= 0 {
			continue
		}
		samples = append(samples, estimator.Sample{Date: rec.Date, Weight: rec.Weight, Reps: rec.Reps, RPE: rec.RPE})
	}

	result, err := mcp.NewToolResultJSON(map[string]any{
		"estimate":      entry,
		"effective_trm": entry.EffectiveTRM(),
		"trend":         estimator.TrendOf(samples),
	})
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) listEstimates(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := mcp.NewToolResultJSON(h.cache.Entries())
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getExerciseHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	exercise, err := req.RequireString("exercise")
	if err != nil {
		return mcp.NewToolResultError("exercise parameter is required"), nil
	}

	recs := h.history.ExerciseHistory(ctx, exercise)
	if len(recs) == 0 {
		return mcp.NewToolResultError(fmt.Sprintf("no history for %q", exercise)), nil
	}

	result, err := mcp.NewToolResultJSON(recs)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getWeekPerformance(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	exercise, err := req.RequireString("exercise")
	if err != nil {
		return mcp.NewToolResultError("exercise parameter is required"), nil
	}
	program, err := req.RequireString("program")
	if err != nil {
		return mcp.NewToolResultError("program parameter is required"), nil
	}
	week, err := req.RequireInt("week")
	if err != nil {
		return mcp.NewToolResultError("week parameter is required"), nil
	}

	result, err := mcp.NewToolResultJSON(h.history.WeekPerformance(ctx, exercise, program, week))
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) listSessions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 20)
	if limit < 0 {
		return mcp.NewToolResultError("limit must not be negative"), nil
	}

	result, err := mcp.NewToolResultJSON(h.history.CompletedSessions(ctx, limit))
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) checkIntegrity(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := h.db.VerifyIntegrity(ctx)
	if err != nil {
		h.log.Error("mcp check_integrity", "error", err)
		return mcp.NewToolResultError("integrity check failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(report)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}
