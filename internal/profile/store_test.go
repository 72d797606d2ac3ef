package profile_test

import (
	"path/filepath"
	"testing"

	"github.com/a-kowalski/mindkeep/internal/config"
	"github.com/a-kowalski/mindkeep/internal/profile"
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

func TestGetOrCreateIsLazy(t *testing.T) {
	db := setupTestDB(t)
	store := profile.NewStore(db)

	_, err := store.Get("user-1")
	assert.ErrorIs(t, err, profile.ErrNotFound)

	created, err := store.GetOrCreate("user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", created.UserID)
	assert.Equal(t, 0.5, created.FormalityScore)

	// Second call loads the same row.
	loaded, err := store.GetOrCreate("user-1")
	require.NoError(t, err)
	assert.Equal(t, created.UserID, loaded.UserID)
}

func TestUpdateRoundTripsAggregates(t *testing.T) {
	db := setupTestDB(t)
	store := profile.NewStore(db)

	p, err := store.GetOrCreate("user-1")
	require.NoError(t, err)

	p.PersonalFacts["city"] = "Berlin"
	p.CommunicationPreferences["tone"] = "casual"
	p.TopicsOfInterest.Union([]string{"jazz", "cycling"})
	p.ExpertiseAreas.Union([]string{"golang"})
	p.AvgMessageLength = 37.5
	p.FormalityScore = 0.62
	p.PreferredResponseLength = "short"
	p.TotalMessages = 20
	require.NoError(t, store.Update(p))

	loaded, err := store.Get("user-1")
	require.NoError(t, err)
	assert.Equal(t, "Berlin", loaded.PersonalFacts["city"])
	assert.Equal(t, "casual", loaded.CommunicationPreferences["tone"])
	assert.Equal(t, []string{"cycling", "jazz"}, loaded.TopicsOfInterest.Values())
	assert.Equal(t, []string{"golang"}, loaded.ExpertiseAreas.Values())
	assert.InDelta(t, 37.5, loaded.AvgMessageLength, 1e-9)
	assert.InDelta(t, 0.62, loaded.FormalityScore, 1e-9)
	assert.Equal(t, "short", loaded.PreferredResponseLength)
	assert.Equal(t, 20, loaded.TotalMessages)
}

func TestUpdateMissingProfile(t *testing.T) {
	db := setupTestDB(t)
	store := profile.NewStore(db)

	err := store.Update(profile.New("ghost"))
	assert.ErrorIs(t, err, profile.ErrNotFound)
}
