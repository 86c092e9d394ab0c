package ics

import (
	"context"
	"fmt"

	appLog "agenda/internal/log"
	"agenda/internal/store"
)

// Import fetches src, converts its events and stores them as items of doc.
// Items are keyed by UID, so a repeated import replaces them. The caller
// holds the registry lock when doc is open in one.
func Import(ctx context.Context, f *Fetcher, src Source, doc store.Document, cfg ImportConfig) (ImportResult, error) {
	body, err := f.Fetch(ctx, src)
	if err != nil {
		return ImportResult{}, fmt.Errorf("import %s: %w", src.ID, err)
	}
	events, err := Parse(src, body)
	if err != nil {
		return ImportResult{}, fmt.Errorf("import %s: %w", src.ID, err)
	}
	res, err := ToItems(events, cfg)
	if err != nil {
		return ImportResult{}, fmt.Errorf("import %s: %w", src.ID, err)
	}
	for _, it := range res.Items {
		if _, err := doc.PutItem(ctx, it); err != nil {
			return res, fmt.Errorf("import %s: %w", src.ID, err)
		}
	}
	appLog.Info("ics imported", "source", src.ID, "document", doc.ID(),
		"items", len(res.Items), "expanded", len(res.Expanded), "truncated", len(res.Truncated))
	return res, nil
}
