// Package memory is an in-memory store.Document, used by tests and when
// no database is configured.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"agenda/internal/model"
	"agenda/internal/store"
)

// Document implements store.Document using maps.
type Document struct {
	id string

	mu     sync.RWMutex
	items  map[string]store.Item
	alarms map[model.Key]model.ActiveAlarm
}

var _ store.Document = (*Document)(nil)

// New creates an empty document. An empty id gets a random one.
func New(id string) *Document {
	if id == "" {
		id = uuid.NewString()
	}
	return &Document{
		id:     id,
		items:  make(map[string]store.Item),
		alarms: make(map[model.Key]model.ActiveAlarm),
	}
}

func (d *Document) ID() string { return d.id }

// Items returns the items ordered by ID.
func (d *Document) Items(_ context.Context) ([]store.Item, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]store.Item, 0, len(d.items))
	for _, it := range d.items {
		it.Rules = slices.Clone(it.Rules)
		out = append(out, it)
	}
	slices.SortFunc(out, func(a, b store.Item) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (d *Document) PutItem(_ context.Context, it store.Item) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	it.Rules = slices.Clone(it.Rules)
	d.items[it.ID] = it
	return it.ID, nil
}

func (d *Document) DeleteItem(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.items[id]; !ok {
		return fmt.Errorf("item %s: %w", id, store.ErrNotFound)
	}
	delete(d.items, id)
	for k := range d.alarms {
		if k.ItemID == id {
			delete(d.alarms, k)
		}
	}
	return nil
}

func (d *Document) ActivateAlarms(_ context.Context, due []model.Occurrence, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, o := range due {
		if o.ContainerID != d.id {
			continue
		}
		k := o.Key()
		if _, ok := d.alarms[k]; ok {
			continue
		}
		d.alarms[k] = model.ActiveAlarm{Occurrence: o, ActivatedAt: at}
	}
	return nil
}

func (d *Document) ActiveAlarms(_ context.Context) ([]model.ActiveAlarm, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]model.ActiveAlarm, 0, len(d.alarms))
	for _, a := range d.alarms {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b model.ActiveAlarm) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return strings.Compare(a.ItemID, b.ItemID)
	})
	return out, nil
}

func (d *Document) DismissAlarm(_ context.Context, itemID string, start time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	found := false
	for k := range d.alarms {
		if k.ItemID == itemID && k.Start == start.UnixNano() {
			delete(d.alarms, k)
			found = true
		}
	}
	if !found {
		return fmt.Errorf("alarm %s@%s: %w", itemID, start.Format(time.RFC3339), store.ErrNotFound)
	}
	return nil
}

func (d *Document) Close() error { return nil }
