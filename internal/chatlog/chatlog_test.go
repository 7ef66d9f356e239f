package chatlog_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/action-initiative/internal/chatlog"
)

func TestMemory_PublishAssignsIDAndTime(t *testing.T) {
	log := chatlog.NewMemory()
	msg, err := log.Publish(context.Background(), chatlog.Message{
		Speaker: "Aria",
		Flavor:  "Aria rolls for Initiative!",
		Formula: "1d20+3",
		Dice:    []int{14},
		Total:   17,
	})
	require.NoError(t, err)
	_, err = uuid.Parse(msg.ID)
	assert.NoError(t, err)
	assert.False(t, msg.Created.IsZero())

	got, err := log.Get(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
	assert.Len(t, log.All(), 1)
}

func TestMemory_GetUnknown(t *testing.T) {
	log := chatlog.NewMemory()
	_, err := log.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, chatlog.ErrNotFound)
}

func TestMemory_RejectsDuplicateID(t *testing.T) {
	log := chatlog.NewMemory()
	_, err := log.Publish(context.Background(), chatlog.Message{ID: "m1"})
	require.NoError(t, err)
	_, err = log.Publish(context.Background(), chatlog.Message{ID: "m1"})
	assert.ErrorIs(t, err, chatlog.ErrDuplicate)
}

func TestPrepare_KeepsExistingFields(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := chatlog.Prepare(chatlog.Message{ID: "fixed", Created: at}, time.Now())
	assert.Equal(t, "fixed", msg.ID)
	assert.Equal(t, at, msg.Created)
}
