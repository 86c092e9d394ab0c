package alarm

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agenda/internal/log"
	"agenda/internal/model"
	"agenda/internal/rule"
	"agenda/internal/store"
	"agenda/internal/store/memory"
	"agenda/internal/tz"
)

var utc = tz.NewZone(time.UTC)

func init() {
	log.SetOutput(io.Discard)
}

func once(t *testing.T, start time.Time, opts ...rule.Option) []rule.Rule {
	t.Helper()
	r, err := rule.NewOnce(start, opts...)
	require.NoError(t, err)
	return []rule.Rule{r}
}

// failingDoc rejects alarm activation.
type failingDoc struct {
	*memory.Document
}

func (failingDoc) ActivateAlarms(context.Context, []model.Occurrence, time.Time) error {
	return errors.New("disk full")
}

// unreadableDoc fails to list its items.
type unreadableDoc struct {
	*memory.Document
}

func (unreadableDoc) Items(context.Context) ([]store.Item, error) {
	return nil, errors.New("corrupt item table")
}

func TestActivate_NoDocuments(t *testing.T) {
	next := Activate(context.Background(), store.NewRegistry(), utc, time.Now(), nil)
	_, ok := next.Time()
	assert.False(t, ok)
	assert.Empty(t, next.Occurrences())
}

func TestActivate_MarksAndSearchesNext(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	a, b := memory.New("a"), failingDoc{memory.New("b")}
	aID, err := a.PutItem(ctx, store.Item{Text: "first", Rules: once(t, t0)})
	require.NoError(t, err)
	_, err = a.PutItem(ctx, store.Item{Text: "later", Rules: once(t, t0.Add(2*time.Hour))})
	require.NoError(t, err)
	bID, err := b.PutItem(ctx, store.Item{Text: "early alarm", Rules: once(t, t0.Add(3*time.Hour), rule.WithAlarm(2*time.Hour))})
	require.NoError(t, err)

	reg := store.NewRegistry()
	reg.Lock()
	require.NoError(t, reg.Open(a))
	require.NoError(t, reg.Open(b))
	reg.Unlock()

	due := []model.Occurrence{
		{ContainerID: "a", ItemID: aID, Start: t0},
		{ContainerID: "b", ItemID: bID, Start: t0},
	}
	next := Activate(ctx, reg, utc, t0, due)

	active, err := a.ActiveAlarms(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, aID, active[0].ItemID)
	assert.Equal(t, t0, active[0].ActivatedAt)

	// The failing document is skipped but still searched.
	got, ok := next.Time()
	require.True(t, ok)
	assert.Equal(t, t0.Add(time.Hour), got)
	require.Len(t, next.Occurrences(), 1)
	assert.Equal(t, bID, next.Occurrences()[0].ItemID)
}

func TestActivate_UnreadableDocumentSkipped(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	broken := unreadableDoc{memory.New("broken")}
	hidden, err := broken.PutItem(ctx, store.Item{Text: "hidden", Rules: once(t, t0.Add(time.Minute))})
	require.NoError(t, err)
	good := memory.New("good")
	goodID, err := good.PutItem(ctx, store.Item{Text: "visible", Rules: once(t, t0.Add(time.Hour))})
	require.NoError(t, err)

	reg := store.NewRegistry()
	reg.Lock()
	require.NoError(t, reg.Open(broken))
	require.NoError(t, reg.Open(good))
	reg.Unlock()

	due := []model.Occurrence{{ContainerID: "broken", ItemID: hidden, Start: t0}}
	next := Activate(ctx, reg, utc, t0, due)

	active, err := broken.ActiveAlarms(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	got, ok := next.Time()
	require.True(t, ok)
	assert.Equal(t, t0.Add(time.Hour), got)
	require.Len(t, next.Occurrences(), 1)
	assert.Equal(t, "good", next.Occurrences()[0].ContainerID)
	assert.Equal(t, goodID, next.Occurrences()[0].ItemID)
}

func TestParseResync(t *testing.T) {
	s, err := ParseResync("")
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = ParseResync("@every 6h")
	require.NoError(t, err)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, base.Add(6*time.Hour), s.Next(base))

	_, err = ParseResync("not a schedule")
	assert.Error(t, err)
}

func TestScheduler_FiresAndReschedules(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	doc := memory.New("doc")
	reg := store.NewRegistry()
	reg.Lock()
	require.NoError(t, reg.Open(doc))
	reg.Unlock()

	fired := make(chan []model.Occurrence, 4)
	s := NewScheduler(reg, utc, WithOnFire(func(_ time.Time, due []model.Occurrence) {
		fired <- due
	}))
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// Nothing scheduled yet; add an item through the scheduler.
	start := time.Now().Add(100 * time.Millisecond).Truncate(time.Second).Add(time.Second)
	var id string
	err := s.Do(ctx, func(ctx context.Context, reg *store.Registry) error {
		d, err := reg.Document("doc")
		if err != nil {
			return err
		}
		id, err = d.PutItem(ctx, store.Item{Text: "ping", Rules: once(t, start)})
		return err
	})
	require.NoError(t, err)
	s.Reschedule()
	s.Reschedule()

	require.Eventually(t, func() bool {
		next, err := s.Next(ctx)
		return err == nil && len(next) == 1
	}, time.Second, 10*time.Millisecond)

	select {
	case due := <-fired:
		require.Len(t, due, 1)
		assert.Equal(t, id, due[0].ItemID)
	case <-time.After(5 * time.Second):
		t.Fatal("alarm did not fire")
	}

	active, err := doc.ActiveAlarms(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.True(t, start.Equal(active[0].Start))

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.ErrorIs(t, s.Do(context.Background(), func(context.Context, *store.Registry) error { return nil }), ErrStopped)
}
