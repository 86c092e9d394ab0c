package search

import (
	"context"

	"agenda/internal/log"
	"agenda/internal/occur"
	"agenda/internal/store"
	"agenda/internal/tz"
)

// DocumentsRange collects the occurrences of every item of docs touching
// the window of col. A document whose items cannot be read is logged and
// skipped. The caller holds the registry lock.
func DocumentsRange(ctx context.Context, docs []store.Document, zone tz.Resolver, col *occur.Range) {
	for _, doc := range docs {
		items, err := doc.Items(ctx)
		if err != nil {
			log.Error("read items", err, "document", doc.ID())
			continue
		}
		for _, it := range items {
			ItemRange(it.Rules, zone, Source{ContainerID: doc.ID(), ItemID: it.ID}, col)
		}
	}
}

// DocumentsNext offers next the occurrences of every item of docs. Failing
// documents are skipped like in DocumentsRange.
func DocumentsNext(ctx context.Context, docs []store.Document, zone tz.Resolver, next *occur.Next) {
	for _, doc := range docs {
		items, err := doc.Items(ctx)
		if err != nil {
			log.Error("read items", err, "document", doc.ID())
			continue
		}
		for _, it := range items {
			ItemNext(it.Rules, zone, Source{ContainerID: doc.ID(), ItemID: it.ID}, next)
		}
	}
}
