// Package store defines the documents the agenda searches and the registry
// of open ones.
//
// A document holds items, each with its recurrence rules, and remembers
// which occurrences have an active (fired, not dismissed) alarm. The
// registry is guarded by one coarse lock: whoever walks the open documents,
// the alarm activation step or an interactive request, holds it for the
// whole walk.
package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	appLog "agenda/internal/log"
	"agenda/internal/model"
	"agenda/internal/rule"
)

var (
	// ErrNotFound is returned when a document or item does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyOpen is returned when a document ID is opened twice.
	ErrAlreadyOpen = errors.New("document already open")
)

// Item is one scheduled item of a document.
type Item struct {
	ID    string      `json:"id"`
	Text  string      `json:"text"`
	Rules []rule.Rule `json:"rules"`
}

// ItemRef names an item across documents.
type ItemRef struct {
	Document string
	Item     string
}

// ItemTexts returns the text of every item of docs. A document whose items
// cannot be read is logged and left out.
func ItemTexts(ctx context.Context, docs []Document) map[ItemRef]string {
	out := make(map[ItemRef]string)
	for _, doc := range docs {
		items, err := doc.Items(ctx)
		if err != nil {
			appLog.Error("read items", err, "document", doc.ID())
			continue
		}
		for _, it := range items {
			out[ItemRef{Document: doc.ID(), Item: it.ID}] = it.Text
		}
	}
	return out
}

// Document is one open container of items.
type Document interface {
	ID() string
	Items(ctx context.Context) ([]Item, error)
	// PutItem inserts or replaces an item. An empty ID gets a fresh one,
	// which is returned.
	PutItem(ctx context.Context, it Item) (string, error)
	DeleteItem(ctx context.Context, id string) error

	// ActivateAlarms marks the given occurrences of this document as
	// having a fired alarm.
	ActivateAlarms(ctx context.Context, due []model.Occurrence, at time.Time) error
	ActiveAlarms(ctx context.Context) ([]model.ActiveAlarm, error)
	// DismissAlarm clears the active alarms of an item's occurrence
	// starting at start.
	DismissAlarm(ctx context.Context, itemID string, start time.Time) error

	Close() error
}

// Registry holds the open documents. Lock must be held around every call
// and around any use of the returned documents.
type Registry struct {
	mu    sync.Mutex
	docs  map[string]Document
	order []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{docs: make(map[string]Document)}
}

func (r *Registry) Lock()   { r.mu.Lock() }
func (r *Registry) Unlock() { r.mu.Unlock() }

// Open registers doc.
func (r *Registry) Open(doc Document) error {
	if _, ok := r.docs[doc.ID()]; ok {
		return fmt.Errorf("open %s: %w", doc.ID(), ErrAlreadyOpen)
	}
	r.docs[doc.ID()] = doc
	r.order = append(r.order, doc.ID())
	return nil
}

// Close unregisters and closes the document with the given ID.
func (r *Registry) Close(id string) error {
	doc, ok := r.docs[id]
	if !ok {
		return fmt.Errorf("close %s: %w", id, ErrNotFound)
	}
	delete(r.docs, id)
	r.order = slices.DeleteFunc(r.order, func(s string) bool { return s == id })
	return doc.Close()
}

// Document returns the open document with the given ID.
func (r *Registry) Document(id string) (Document, error) {
	doc, ok := r.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return doc, nil
}

// Documents returns the open documents in the order they were opened.
func (r *Registry) Documents() []Document {
	out := make([]Document, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.docs[id])
	}
	return out
}

// CloseAll closes every open document and returns the first error.
func (r *Registry) CloseAll() error {
	var first error
	for _, id := range slices.Clone(r.order) {
		if err := r.Close(id); err != nil && first == nil {
			first = err
		}
	}
	return first
}
