package memory

import (
	"context"
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agenda/internal/model"
	"agenda/internal/rule"
	"agenda/internal/store"
)

func TestDocument_Items(t *testing.T) {
	ctx := context.Background()
	doc := New("")
	assert.NotEmpty(t, doc.ID())

	r, err := rule.NewOnce(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	id, err := doc.PutItem(ctx, store.Item{Text: "dentist", Rules: []rule.Rule{r}})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, err = doc.PutItem(ctx, store.Item{ID: id, Text: "dentist (moved)", Rules: []rule.Rule{r}})
	require.NoError(t, err)

	items, err := doc.Items(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "dentist (moved)", items[0].Text)

	require.NoError(t, doc.DeleteItem(ctx, id))
	assert.ErrorIs(t, doc.DeleteItem(ctx, id), store.ErrNotFound)
}

func TestDocument_Alarms(t *testing.T) {
	ctx := context.Background()
	doc := New("doc")
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	at := start.Add(-5 * time.Minute)
	o := model.Occurrence{ContainerID: "doc", ItemID: "x", Start: start, Alarm: mo.Some(at)}
	foreign := model.Occurrence{ContainerID: "other", ItemID: "y", Start: start}

	require.NoError(t, doc.ActivateAlarms(ctx, []model.Occurrence{o, foreign}, at))
	require.NoError(t, doc.ActivateAlarms(ctx, []model.Occurrence{o}, at.Add(time.Minute)))

	active, err := doc.ActiveAlarms(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, o, active[0].Occurrence)
	assert.Equal(t, at, active[0].ActivatedAt)

	require.NoError(t, doc.DismissAlarm(ctx, "x", start))
	assert.ErrorIs(t, doc.DismissAlarm(ctx, "x", start), store.ErrNotFound)

	active, err = doc.ActiveAlarms(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}
