package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/flathunters/flatwatch/internal/app"
	"github.com/flathunters/flatwatch/internal/apply"
	"github.com/flathunters/flatwatch/internal/fetcher"
	"github.com/flathunters/flatwatch/internal/filter"
	"github.com/flathunters/flatwatch/internal/notify"
	"github.com/flathunters/flatwatch/internal/reconcile"
	"github.com/flathunters/flatwatch/internal/region"
	"github.com/flathunters/flatwatch/internal/source"
	"github.com/flathunters/flatwatch/internal/store"
)

// env bundles the wired components a command needs.
type env struct {
	Store store.Store
	App   *app.App
}

func (e *env) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("store close failed", zap.Error(err))
	}
}

// initStore opens and migrates the configured persistence backend.
func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		st, err = store.NewSQLite(cfg.Store.Path)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// initEnv wires the full engine: store, sources, filter, notifier, and
// appliers, all driven by the loaded configuration.
func initEnv(ctx context.Context) (*env, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}

	resolver, err := region.New()
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "init region resolver")
	}

	client := fetcher.New(fetcher.Options{
		UserAgent: cfg.Fetch.UserAgent,
		Timeout:   cfg.Fetch.Timeout,
	})

	reg := source.NewRegistry()
	if sourceEnabled("inberlinwohnen") {
		reg.Register(source.NewInberlinwohnen(client, resolver))
	}
	if sourceEnabled("deutschewohnen") {
		reg.Register(source.NewDeutschewohnen(client, resolver))
	}
	zap.L().Info("sources registered", zap.Strings("sources", reg.AllNames()))

	dispatcher := apply.NewDispatcher()
	if ac, ok := cfg.Appliers["wbm"]; ok && ac.Enabled {
		dispatcher.Register(apply.NewWBM(ac, client))
	}

	a := app.New(
		*cfg,
		st,
		source.NewRunner(reg, cfg.Poll.MaxConcurrentSources, cfg.Fetch.Timeout*2),
		reconcile.New(st),
		filter.New(cfg.Filters, resolver),
		notify.NewTelegram(cfg.Telegram),
		dispatcher,
	)

	return &env{Store: st, App: a}, nil
}

// sourceEnabled defaults to on when the sources section is absent, so a
// minimal config still watches everything.
func sourceEnabled(name string) bool {
	if len(cfg.Sources) == 0 {
		return true
	}
	sc, ok := cfg.Sources[name]
	return ok && sc.Enabled
}
