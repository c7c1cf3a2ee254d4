// Package app holds CLI-side wiring shared across commands.
package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"slipway/internal/config"
	"slipway/internal/engine"
	"slipway/internal/notify"
	"slipway/internal/repo"
	"slipway/internal/telemetry"
)

// ResolveProjectID picks the project a command operates on: the explicit
// override when given, otherwise the workspace's single project.
func ResolveProjectID(ctx context.Context, projectOverride string, r repo.Repo) (string, error) {
	if projectOverride != "" {
		if _, err := r.GetProject(ctx, projectOverride); err != nil {
			return "", err
		}
		return projectOverride, nil
	}
	p, err := r.SingleProject(ctx)
	if err != nil {
		return "", err
	}
	return p.ID, nil
}

// Wire assembles a fully wired engine plus dispatcher over an open database
// connection. The CLI runs the dispatcher synchronously so one-shot commands
// never exit before fan-out; the server switches it to the queued mode.
func Wire(db *repo.Repo, cfg *config.Config, log zerolog.Logger, sync bool) (*engine.Engine, *notify.Dispatcher, *telemetry.Metrics) {
	metrics := telemetry.NewMetrics()
	dispatcher := notify.New(*db, cfg, log)
	dispatcher.Metrics = metrics
	dispatcher.Sync = sync
	e := engine.New(db.DB, cfg, log)
	e.Notify = dispatcher
	e.Metrics = metrics
	e.Now = time.Now
	return e, dispatcher, metrics
}
