package cli

import (
	"context"
	"fmt"
	"time"

	"agenda/internal/config"
	"agenda/internal/ics"
	appLog "agenda/internal/log"
	"agenda/internal/store"
	"agenda/internal/store/memory"
	"agenda/internal/store/sqlite"
	"agenda/internal/tz"
)

// env is what every command works on: the configured zone and a registry
// holding the agenda document.
type env struct {
	cfg  *config.Config
	zone tz.Zone
	reg  *store.Registry
	doc  store.Document
}

// openEnv opens the configured document and registers it.
func openEnv(ctx context.Context, cfg *config.Config) (*env, error) {
	zone, err := cfg.Zone()
	if err != nil {
		return nil, err
	}

	var doc store.Document
	if cfg.Database == "" {
		doc = memory.New("")
	} else {
		d, err := sqlite.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		doc = d
	}

	reg := store.NewRegistry()
	reg.Lock()
	err = reg.Open(doc)
	reg.Unlock()
	if err != nil {
		doc.Close()
		return nil, err
	}
	appLog.Info("document opened", "document", doc.ID(), "database", cfg.Database, "timezone", zone.String())
	return &env{cfg: cfg, zone: zone, reg: reg, doc: doc}, nil
}

func (e *env) close() {
	e.reg.Lock()
	defer e.reg.Unlock()
	if err := e.reg.CloseAll(); err != nil {
		appLog.Error("close documents", err)
	}
}

func (e *env) importConfig(from time.Time) ics.ImportConfig {
	return ics.ImportConfig{
		Zone:                   e.zone,
		From:                   from,
		Horizon:                e.cfg.ImportHorizon(),
		MaxOccurrencesPerEvent: e.cfg.MaxOccurrences,
	}
}

// importCalendars imports every configured calendar. A failing calendar is
// logged and skipped.
func (e *env) importCalendars(ctx context.Context, from time.Time) {
	f := ics.NewFetcher(e.cfg.CacheDir)
	e.reg.Lock()
	defer e.reg.Unlock()
	for _, cal := range e.cfg.Calendars {
		src := ics.Source{ID: cal.ID, URL: cal.URL}
		if _, err := ics.Import(ctx, f, src, e.doc, e.importConfig(from)); err != nil {
			appLog.Error("calendar import failed", err, "calendar", cal.ID)
		}
	}
}

// parseWhen accepts an RFC 3339 instant or a date in loc.
func parseWhen(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither RFC 3339 nor YYYY-MM-DD", s)
	}
	return t, nil
}
