// Package app wires the discovery engine together and runs the poll
// loop.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/flathunters/flatwatch/internal/apply"
	"github.com/flathunters/flatwatch/internal/config"
	"github.com/flathunters/flatwatch/internal/filter"
	"github.com/flathunters/flatwatch/internal/model"
	"github.com/flathunters/flatwatch/internal/notify"
	"github.com/flathunters/flatwatch/internal/reconcile"
	"github.com/flathunters/flatwatch/internal/source"
	"github.com/flathunters/flatwatch/internal/store"
)

// App owns the poll loop and the in-memory known-state between cycles.
type App struct {
	cfg        config.Config
	store      store.Store
	runner     *source.Runner
	reconciler *reconcile.Engine
	filter     *filter.Engine
	notifier   notify.Notifier
	dispatcher *apply.Dispatcher

	known    map[string]model.Listing
	baseline bool

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
	log   *zap.Logger
}

// New assembles the application from its wired components.
func New(
	cfg config.Config,
	st store.Store,
	runner *source.Runner,
	rec *reconcile.Engine,
	fl *filter.Engine,
	notifier notify.Notifier,
	dispatcher *apply.Dispatcher,
) *App {
	return &App{
		cfg:        cfg,
		store:      st,
		runner:     runner,
		reconciler: rec,
		filter:     fl,
		notifier:   notifier,
		dispatcher: dispatcher,
		now:        time.Now,
		sleep:      sleepCtx,
		log:        zap.L().With(zap.String("component", "app")),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Run polls until the context is cancelled. A cycle error is reported
// best-effort through the notifier and followed by a cooldown; the loop
// favors continued availability over fail-fast termination.
func (a *App) Run(ctx context.Context) error {
	if err := a.init(ctx); err != nil {
		return err
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		if a.suspended(a.now()) {
			a.log.Info("inside suspension window, skipping cycle")
		} else if err := a.RunCycle(ctx); err != nil {
			a.log.Error("poll cycle failed", zap.Error(err))
			a.reportError(ctx, err)
			a.sleep(ctx, a.cfg.Poll.ErrorCooldown)
			continue
		}

		a.sleep(ctx, a.cfg.Poll.Interval)
	}
}

// RunOnce executes a single cycle (the --once mode).
func (a *App) RunOnce(ctx context.Context) error {
	if err := a.init(ctx); err != nil {
		return err
	}
	return a.RunCycle(ctx)
}

// init loads the known-state and decides whether the first cycle is a
// baseline run. With an empty store every listing is "new", which would
// flood the channel; the baseline cycle persists silently and sends one
// summary instead.
func (a *App) init(ctx context.Context) error {
	known, err := a.store.LoadAll(ctx)
	if err != nil {
		return eris.Wrap(err, "app: load known state")
	}
	a.known = known
	a.baseline = a.cfg.Poll.QuietBaseline && len(known) == 0

	a.log.Info("engine initialized",
		zap.Int("known", len(known)),
		zap.Bool("baseline", a.baseline),
	)
	return nil
}

// RunCycle performs one full poll cycle: discover, reconcile, filter,
// notify, auto-apply, and log the outcome.
func (a *App) RunCycle(ctx context.Context) error {
	start := a.now()

	cycle, err := a.runner.Run(ctx, a.known)
	if err != nil {
		return eris.Wrap(err, "app: run sources")
	}

	out, err := a.reconciler.Reconcile(ctx, a.known, cycle, a.cfg.Poll.MaxListingAge)
	if err != nil {
		return eris.Wrap(err, "app: reconcile cycle")
	}
	a.known = out.Known

	if a.baseline {
		a.baseline = false
		a.log.Info("baseline established", zap.Int("listings", len(out.New)))
		msg := fmt.Sprintf("🗂 Baseline initialized with %s listings\\.",
			notify.EscapeMarkdownV2(fmt.Sprint(len(out.New))))
		if err := a.notifier.Send(ctx, msg); err != nil {
			a.log.Warn("baseline summary not delivered", zap.Error(err))
		}
	} else {
		a.handleNew(ctx, out.New)
	}

	stats := store.CycleStats{
		ID:            uuid.NewString(),
		StartedAt:     start.UTC(),
		Duration:      a.now().Sub(start),
		New:           len(out.New),
		Reconfirmed:   out.Touched,
		Pruned:        out.Pruned,
		FailedSources: cycle.Failed,
	}
	if err := a.store.LogCycle(ctx, stats); err != nil {
		a.log.Warn("cycle log write failed", zap.Error(err))
	}

	return nil
}

// handleNew filters the cycle's new listings, notifies the survivors,
// and triggers auto-apply for each notified listing.
func (a *App) handleNew(ctx context.Context, fresh []model.Listing) {
	for _, l := range fresh {
		if a.filter.Excluded(l) {
			continue
		}

		if err := a.notifier.NotifyListing(ctx, l); err != nil {
			// Best-effort channel: log and move on.
			a.log.Warn("listing notification not delivered",
				zap.String("identifier", l.Identifier),
				zap.Error(err),
			)
		}

		res := a.dispatcher.Dispatch(ctx, l)
		if res.Success() && len(res.ApplicantData) > 0 {
			msg := notify.FormatApplication(l, res.ApplicantData, res.FieldOrder)
			if err := a.notifier.Send(ctx, msg); err != nil {
				a.log.Warn("application follow-up not delivered", zap.Error(err))
			}
		}
	}
}

// suspended reports whether the hour of t falls inside the configured
// quiet window. A window that ends before it starts wraps past
// midnight; start == end disables suspension.
func (a *App) suspended(t time.Time) bool {
	start := a.cfg.Poll.SuspensionStartHour
	end := a.cfg.Poll.SuspensionEndHour
	if start == end {
		return false
	}
	h := t.Hour()
	if start < end {
		return h >= start && h < end
	}
	return h >= start || h < end
}

// reportError sends a truncated, escaped error message to the channel.
func (a *App) reportError(ctx context.Context, err error) {
	msg := "⚠️ Poll cycle failed: " + notify.EscapeMarkdownV2(truncate(err.Error(), 500))
	if sendErr := a.notifier.Send(ctx, msg); sendErr != nil {
		a.log.Warn("error report not delivered", zap.Error(sendErr))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
