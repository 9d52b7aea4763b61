package events

import (
	"context"
	"log/slog"
	"time"
)

// Build events emitted by the build driver.
const (
	EventNodeOutdated  = "node_outdated"
	EventNodeActual    = "node_actual"
	EventNodeBuilding  = "node_building"
	EventNodeBuilt     = "node_built"
	EventNodeFailed    = "node_failed"
	EventNodeSkipped   = "node_skipped"
	EventBuildFinished = "build_finished"
)

// BuildSummary is the payload of EventBuildFinished.
type BuildSummary struct {
	RunID    string
	Built    int
	Cached   int
	Failed   int
	Skipped  int
	Duration time.Duration
}

// Succeeded reports whether no node failed or was skipped.
func (s BuildSummary) Succeeded() bool { return s.Failed == 0 && s.Skipped == 0 }

// RegisterBuiltins declares the build events with default handlers that
// log through logger.
func RegisterBuiltins(m *Manager, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	nodeEvent := func(msg string, sev Severity) func(node string) {
		level := sev.slogLevel()
		return func(node string) {
			logger.Log(context.Background(), level, msg, slog.String("node", node))
		}
	}

	defs := []struct {
		name string
		fn   any
		sev  Severity
	}{
		{EventNodeOutdated, nodeEvent("node is outdated", Debug), Debug},
		{EventNodeActual, nodeEvent("node is up to date", Debug), Debug},
		{EventNodeBuilding, nodeEvent("building", Status), Status},
		{EventNodeBuilt, nodeEvent("built", Info), Info},
		{EventNodeSkipped, nodeEvent("skipped, a dependency failed", Warning), Warning},
		{EventNodeFailed, func(node string, err error) {
			logger.Error("build failed", slog.String("node", node), slog.String("error", err.Error()))
		}, Error},
		{EventBuildFinished, func(s BuildSummary) {
			logger.Info("build finished",
				slog.String("run_id", s.RunID),
				slog.Int("built", s.Built),
				slog.Int("cached", s.Cached),
				slog.Int("failed", s.Failed),
				slog.Int("skipped", s.Skipped),
				slog.Duration("duration", s.Duration))
		}, Status},
	}

	for _, d := range defs {
		if err := m.AddDefaultHandler(d.name, d.fn, d.sev); err != nil {
			return err
		}
	}
	return nil
}
