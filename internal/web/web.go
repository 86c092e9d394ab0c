package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"agenda/internal/alarm"
	"agenda/internal/config"
	"agenda/internal/ics"
	appLog "agenda/internal/log"
	"agenda/internal/model"
	"agenda/internal/occur"
	"agenda/internal/search"
	"agenda/internal/store"
	"agenda/internal/tz"
)

// Server provides the HTTP API over the open documents. Every handler that
// touches a document goes through the scheduler, so requests never run
// during an alarm activation.
type Server struct {
	cfg   *config.Config
	zone  tz.Zone
	sched *alarm.Scheduler
	mux   *http.ServeMux
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, zone tz.Zone, sched *alarm.Scheduler) *Server {
	s := &Server{
		cfg:   cfg,
		zone:  zone,
		sched: sched,
		mux:   http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="agenda", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Serve listens on cfg.Listen until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/occurrences", s.handleOccurrences)
	s.mux.HandleFunc("GET /api/occurrences.ics", s.handleOccurrencesICS)
	s.mux.HandleFunc("GET /api/next", s.handleNext)
	s.mux.HandleFunc("GET /api/alarms", s.handleAlarms)
	s.mux.HandleFunc("POST /api/alarms/dismiss", s.handleDismiss)
	s.mux.HandleFunc("GET /api/items", s.handleItems)
	s.mux.HandleFunc("POST /api/items", s.handlePutItem)
	s.mux.HandleFunc("DELETE /api/items/{id}", s.handleDeleteItem)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// occurrenceDTO is a JSON-friendly view of an occurrence.
type occurrenceDTO struct {
	Document string     `json:"document"`
	Item     string     `json:"item"`
	Text     string     `json:"text"`
	Start    time.Time  `json:"start"`
	End      *time.Time `json:"end,omitempty"`
	Alarm    *time.Time `json:"alarm,omitempty"`
}

type spanDTO struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// occurrencesResponse is the JSON response shape for /api/occurrences.
type occurrencesResponse struct {
	Occurrences []occurrenceDTO `json:"occurrences"`
	Gaps        []spanDTO       `json:"gaps"`
	Overlaps    []spanDTO       `json:"overlaps"`
	RangeStart  time.Time       `json:"range_start"`
	RangeEnd    time.Time       `json:"range_end"`
	TimeZone    string          `json:"timezone"`
}

type nextResponse struct {
	At          *time.Time      `json:"at,omitempty"`
	Occurrences []occurrenceDTO `json:"occurrences"`
}

type alarmDTO struct {
	occurrenceDTO
	ActivatedAt time.Time `json:"activated_at"`
}

type dismissRequest struct {
	Document string    `json:"document"`
	Item     string    `json:"item"`
	Start    time.Time `json:"start"`
}

// snapshot is a range search result together with the text of the items
// it refers to, read under one registry lock.
type snapshot struct {
	list  []model.Occurrence
	texts map[store.ItemRef]string
}

// rangeSnapshot searches [from, to] across all open documents.
func (s *Server) rangeSnapshot(ctx context.Context, from, to time.Time) (snapshot, error) {
	var snap snapshot
	err := s.sched.Do(ctx, func(ctx context.Context, reg *store.Registry) error {
		docs := reg.Documents()
		col := occur.NewRange(from, to)
		search.DocumentsRange(ctx, docs, s.zone, col)
		snap.list = col.Occurrences()
		snap.texts = store.ItemTexts(ctx, docs)
		return nil
	})
	return snap, err
}

// window reads the requested window. from/to take RFC 3339 instants or
// dates in the configured zone; without them the window is backfill days
// back and days days forward from now.
func (s *Server) window(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()
	loc := s.zone.Location()
	now := time.Now().In(loc)

	days := parseIntDefault(q.Get("days"), 7)
	if days <= 0 {
		days = 7
	}
	backfill := parseIntDefault(q.Get("backfill"), 0)
	if backfill < 0 {
		backfill = 0
	}

	from, err := parseTimeDefault(q.Get("from"), loc, now.AddDate(0, 0, -backfill))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := parseTimeDefault(q.Get("to"), loc, from.AddDate(0, 0, days))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, errors.New("to is before from")
	}
	return from, to, nil
}

// handleOccurrences returns the occurrences touching a window, with the
// time allocation of the window.
//
// GET /api/occurrences?from=2024-01-01&to=2024-01-08T00:00:00Z
func (s *Server) handleOccurrences(w http.ResponseWriter, r *http.Request) {
	from, to, err := s.window(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := s.rangeSnapshot(r.Context(), from, to)
	if err != nil {
		appLog.Error("api occurrences failed", err)
		writeError(w, http.StatusServiceUnavailable, "search unavailable")
		return
	}

	alloc := occur.Allocate(snap.list, from, to)
	writeJSON(w, http.StatusOK, occurrencesResponse{
		Occurrences: s.toDTOs(snap.list, snap.texts),
		Gaps:        s.spans(alloc.Gaps),
		Overlaps:    s.spans(alloc.Overlaps),
		RangeStart:  from,
		RangeEnd:    to,
		TimeZone:    s.zone.String(),
	})
}

// handleOccurrencesICS exports the same window as an iCalendar feed.
func (s *Server) handleOccurrencesICS(w http.ResponseWriter, r *http.Request) {
	from, to, err := s.window(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := s.rangeSnapshot(r.Context(), from, to)
	if err != nil {
		appLog.Error("api occurrences.ics failed", err)
		writeError(w, http.StatusServiceUnavailable, "search unavailable")
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	summary := func(doc, item string) string {
		if t := snap.texts[store.ItemRef{Document: doc, Item: item}]; t != "" {
			return t
		}
		return item
	}
	if err := ics.Export(w, snap.list, summary, time.Now()); err != nil {
		appLog.Error("ics export failed", err)
	}
}

// handleNext returns the occurrences whose alarm the scheduler waits for.
func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	list, err := s.sched.Next(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler unavailable")
		return
	}
	resp := nextResponse{Occurrences: s.toDTOs(list, nil)}
	if len(list) > 0 {
		at := list[0].Due().In(s.zone.Location())
		resp.At = &at
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleAlarms lists the active alarms of all open documents.
func (s *Server) handleAlarms(w http.ResponseWriter, r *http.Request) {
	var out []alarmDTO
	err := s.sched.Do(r.Context(), func(ctx context.Context, reg *store.Registry) error {
		docs := reg.Documents()
		texts := store.ItemTexts(ctx, docs)
		for _, doc := range docs {
			active, err := doc.ActiveAlarms(ctx)
			if err != nil {
				appLog.Error("read active alarms", err, "document", doc.ID())
				continue
			}
			for _, a := range active {
				out = append(out, alarmDTO{
					occurrenceDTO: s.toDTO(a.Occurrence, texts),
					ActivatedAt:   a.ActivatedAt.In(s.zone.Location()),
				})
			}
		}
		return nil
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler unavailable")
		return
	}
	if out == nil {
		out = []alarmDTO{}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleDismiss clears an active alarm.
//
// POST /api/alarms/dismiss {"document": "...", "item": "...", "start": "..."}
func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	var req dismissRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	err := s.sched.Do(r.Context(), func(ctx context.Context, reg *store.Registry) error {
		doc, err := documentOrFirst(reg, req.Document)
		if err != nil {
			return err
		}
		return doc.DismissAlarm(ctx, req.Item, req.Start)
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleItems lists the items of a document.
//
// GET /api/items?document=<id>
func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	var items []store.Item
	err := s.sched.Do(r.Context(), func(ctx context.Context, reg *store.Registry) error {
		doc, err := documentOrFirst(reg, r.URL.Query().Get("document"))
		if err != nil {
			return err
		}
		items, err = doc.Items(ctx)
		return err
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if items == nil {
		items = []store.Item{}
	}
	writeJSON(w, http.StatusOK, items)
}

// handlePutItem inserts or replaces an item. Its rules are validated while
// decoding; an invalid rule is a 400.
//
// POST /api/items?document=<id> {"id": "...", "text": "...", "rules": [...]}
func (s *Server) handlePutItem(w http.ResponseWriter, r *http.Request) {
	var it store.Item
	if err := json.NewDecoder(r.Body).Decode(&it); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var id string
	err := s.sched.Do(r.Context(), func(ctx context.Context, reg *store.Registry) error {
		doc, err := documentOrFirst(reg, r.URL.Query().Get("document"))
		if err != nil {
			return err
		}
		id, err = doc.PutItem(ctx, it)
		return err
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.sched.Reschedule()
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

// handleDeleteItem removes an item.
//
// DELETE /api/items/{id}?document=<id>
func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := s.sched.Do(r.Context(), func(ctx context.Context, reg *store.Registry) error {
		doc, err := documentOrFirst(reg, r.URL.Query().Get("document"))
		if err != nil {
			return err
		}
		return doc.DeleteItem(ctx, id)
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.sched.Reschedule()
	w.WriteHeader(http.StatusNoContent)
}

// documentOrFirst returns the document named id, or the first open one when
// id is empty.
func documentOrFirst(reg *store.Registry, id string) (store.Document, error) {
	if id != "" {
		return reg.Document(id)
	}
	docs := reg.Documents()
	if len(docs) == 0 {
		return nil, store.ErrNotFound
	}
	return docs[0], nil
}

func (s *Server) toDTOs(list []model.Occurrence, texts map[store.ItemRef]string) []occurrenceDTO {
	out := make([]occurrenceDTO, 0, len(list))
	for _, o := range list {
		out = append(out, s.toDTO(o, texts))
	}
	return out
}

func (s *Server) toDTO(o model.Occurrence, texts map[store.ItemRef]string) occurrenceDTO {
	o = o.In(s.zone.Location())
	dto := occurrenceDTO{
		Document: o.ContainerID,
		Item:     o.ItemID,
		Text:     texts[store.ItemRef{Document: o.ContainerID, Item: o.ItemID}],
		Start:    o.Start,
	}
	if end, ok := o.End.Get(); ok {
		dto.End = &end
	}
	if at, ok := o.Alarm.Get(); ok {
		dto.Alarm = &at
	}
	return dto
}

func (s *Server) spans(list []occur.Span) []spanDTO {
	out := make([]spanDTO, 0, len(list))
	for _, sp := range list {
		out = append(out, spanDTO{Start: sp.Start.In(s.zone.Location()), End: sp.End.In(s.zone.Location())})
	}
	return out
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// parseTimeDefault accepts an RFC 3339 instant or a date in loc.
func parseTimeDefault(s string, loc *time.Location, def time.Time) (time.Time, error) {
	if s == "" {
		return def, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, s, loc)
	if err != nil {
		return time.Time{}, errors.New("time must be RFC 3339 or YYYY-MM-DD: " + s)
	}
	return t, nil
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, alarm.ErrStopped), errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "scheduler unavailable")
	default:
		appLog.Error("api store request failed", err)
		writeError(w, http.StatusInternalServerError, "store error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
