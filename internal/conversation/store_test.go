package conversation_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/a-kowalski/mindkeep/internal/config"
	"github.com/a-kowalski/mindkeep/internal/conversation"
	"github.com/a-kowalski/mindkeep/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *storage.DB {
	t.Helper()
	cfg := &config.Config{
		DBPath: filepath.Join(t.TempDir(), "test.sqlite3"),
	}

	db, err := storage.NewDB(cfg)
	require.NoError(t, err, "Failed to create test database")
	t.Cleanup(func() { db.Close() })

	return db
}

func TestAppendAssignsDefaults(t *testing.T) {
	db := setupTestDB(t)
	store := conversation.NewStore(db)

	turn := &conversation.Turn{
		UserID:      "user-1",
		MessageType: conversation.UserTurn,
		Content:     "hello there",
		Topics:      []string{"greetings"},
	}
	require.NoError(t, store.Append(turn))

	assert.NotEmpty(t, turn.ID)
	assert.False(t, turn.Timestamp.IsZero())

	turns, err := store.RecentByUser("user-1", 10)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "hello there", turns[0].Content)
	assert.Equal(t, []string{"greetings"}, turns[0].Topics)
}

func TestAppendRejectsUnknownMessageType(t *testing.T) {
	db := setupTestDB(t)
	store := conversation.NewStore(db)

	err := store.Append(&conversation.Turn{
		UserID:      "user-1",
		MessageType: "system",
		Content:     "nope",
	})
	assert.Error(t, err)
}

func TestRecentByUserChronologicalWindow(t *testing.T) {
	db := setupTestDB(t)
	store := conversation.NewStore(db)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		msgType := conversation.UserTurn
		if i%2 == 1 {
			msgType = conversation.AssistantTurn
		}
		require.NoError(t, store.Append(&conversation.Turn{
			UserID:      "user-1",
			MessageType: msgType,
			Content:     string(rune('a' + i)),
			Timestamp:   base.Add(time.Duration(i) * time.Minute),
		}))
	}

	turns, err := store.RecentByUser("user-1", 3)
	require.NoError(t, err)
	require.Len(t, turns, 3)

	// The three newest turns, oldest first.
	assert.Equal(t, "c", turns[0].Content)
	assert.Equal(t, "d", turns[1].Content)
	assert.Equal(t, "e", turns[2].Content)
}

func TestSinceAndCounts(t *testing.T) {
	db := setupTestDB(t)
	store := conversation.NewStore(db)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		require.NoError(t, store.Append(&conversation.Turn{
			UserID:      "user-1",
			MessageType: conversation.UserTurn,
			Content:     string(rune('a' + i)),
			Timestamp:   base.Add(time.Duration(i) * time.Hour),
		}))
	}
	require.NoError(t, store.Append(&conversation.Turn{
		UserID:      "user-2",
		MessageType: conversation.UserTurn,
		Content:     "other user",
		Timestamp:   base,
	}))

	cutoff := base.Add(90 * time.Minute)
	turns, err := store.Since("user-1", cutoff)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "c", turns[0].Content)
	assert.Equal(t, "d", turns[1].Content)

	count, err := store.CountSince("user-1", cutoff)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	total, err := store.CountByUser("user-1")
	require.NoError(t, err)
	assert.Equal(t, 4, total)
}
