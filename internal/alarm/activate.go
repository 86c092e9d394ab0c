// Package alarm fires the alarms of the open documents.
//
// Activate is the step run whenever alarms come due: it marks them active
// and searches the next ones. Scheduler is the goroutine that owns the
// timer and serializes activation with interactive requests.
package alarm

import (
	"context"
	"time"

	"agenda/internal/log"
	"agenda/internal/model"
	"agenda/internal/occur"
	"agenda/internal/search"
	"agenda/internal/store"
	"agenda/internal/tz"
)

// Activate marks the occurrences in due as having an active alarm in their
// documents, then searches every open document for the occurrences due next
// after t. It holds the registry lock throughout and blocks until it gets it.
//
// With no open document it does nothing and returns an empty collector.
// A document that fails to store its alarms is logged and skipped.
func Activate(ctx context.Context, reg *store.Registry, zone tz.Resolver, t time.Time, due []model.Occurrence) *occur.Next {
	reg.Lock()
	defer reg.Unlock()
	return activate(ctx, reg.Documents(), zone, t, due)
}

func activate(ctx context.Context, docs []store.Document, zone tz.Resolver, t time.Time, due []model.Occurrence) *occur.Next {
	next := occur.NewNext(t)
	if len(docs) == 0 {
		return next
	}

	byDoc := make(map[string][]model.Occurrence)
	for _, o := range due {
		byDoc[o.ContainerID] = append(byDoc[o.ContainerID], o)
	}
	for _, doc := range docs {
		list := byDoc[doc.ID()]
		if len(list) == 0 {
			continue
		}
		if err := doc.ActivateAlarms(ctx, list, t); err != nil {
			log.Error("activate alarms", err, "document", doc.ID(), "count", len(list))
			continue
		}
		log.Info("alarms activated", "document", doc.ID(), "count", len(list), "at", t)
	}

	search.DocumentsNext(ctx, docs, zone, next)
	return next
}
