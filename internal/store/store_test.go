package store_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appLog "agenda/internal/log"
	"agenda/internal/store"
	"agenda/internal/store/memory"
)

func init() {
	appLog.SetOutput(io.Discard)
}

// unreadable is a document whose items cannot be read.
type unreadable struct {
	*memory.Document
}

func (unreadable) Items(context.Context) ([]store.Item, error) {
	return nil, errors.New("disk on fire")
}

func TestRegistry(t *testing.T) {
	reg := store.NewRegistry()
	reg.Lock()
	defer reg.Unlock()

	a, b := memory.New("a"), memory.New("b")
	require.NoError(t, reg.Open(b))
	require.NoError(t, reg.Open(a))
	assert.ErrorIs(t, reg.Open(memory.New("a")), store.ErrAlreadyOpen)

	docs := reg.Documents()
	require.Len(t, docs, 2)
	assert.Equal(t, "b", docs[0].ID())
	assert.Equal(t, "a", docs[1].ID())

	got, err := reg.Document("a")
	require.NoError(t, err)
	assert.Same(t, a, got)

	require.NoError(t, reg.Close("b"))
	assert.ErrorIs(t, reg.Close("b"), store.ErrNotFound)
	_, err = reg.Document("b")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, reg.CloseAll())
	assert.Empty(t, reg.Documents())
}

func TestItemTexts(t *testing.T) {
	ctx := context.Background()
	a, b := memory.New("a"), memory.New("b")
	_, err := a.PutItem(ctx, store.Item{ID: "standup", Text: "Standup"})
	require.NoError(t, err)
	_, err = b.PutItem(ctx, store.Item{ID: "standup", Text: "Team standup"})
	require.NoError(t, err)
	broken := unreadable{memory.New("broken")}

	got := store.ItemTexts(ctx, []store.Document{a, broken, b})
	assert.Equal(t, map[store.ItemRef]string{
		{Document: "a", Item: "standup"}: "Standup",
		{Document: "b", Item: "standup"}: "Team standup",
	}, got)
}
