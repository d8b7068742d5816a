package db

import (
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func TestPlayerBalance(t *testing.T) {
	database := newTestDB(t)

	_, err := database.GetPlayerBalance("ghost")
	assert.Error(t, err)

	require.NoError(t, database.UpdatePlayerBalance("alice", 500, "deposit", "initial"))
	require.NoError(t, database.UpdatePlayerBalance("alice", -100, "stake", "session s1"))

	balance, err := database.GetPlayerBalance("alice")
	require.NoError(t, err)
	assert.Equal(t, int64(400), balance)
}

func TestSessionSnapshotRoundTrip(t *testing.T) {
	database := newTestDB(t)

	row := &SessionRow{ID: "s1", Status: "playing", Snapshot: `{"id":"s1"}`}
	require.NoError(t, database.SaveSessionSnapshot(row))

	// Upsert replaces the previous snapshot.
	row.Status = "match_end"
	row.WinnerID = "alice"
	require.NoError(t, database.SaveSessionSnapshot(row))

	loaded, err := database.LoadSessionSnapshot("s1")
	require.NoError(t, err)
	assert.Equal(t, "match_end", loaded.Status)
	assert.Equal(t, "alice", loaded.WinnerID)
	assert.Equal(t, `{"id":"s1"}`, loaded.Snapshot)

	ids, err := database.GetAllSessionIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, ids)

	require.NoError(t, database.DeleteSessionSnapshot("s1"))
	_, err = database.LoadSessionSnapshot("s1")
	assert.Error(t, err)
}

func TestDealStats(t *testing.T) {
	database := newTestDB(t)

	require.NoError(t, database.RecordDealStats("s1", 3, false))
	require.NoError(t, database.RecordDealStats("s2", 100, true))

	summary, err := database.GetDealStatsSummary()
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.Deals)
	assert.Equal(t, int64(1), summary.Fallbacks)
	assert.InDelta(t, 51.5, summary.MeanAttempts, 0.001)
}

func TestViolations(t *testing.T) {
	database := newTestDB(t)

	require.NoError(t, database.RecordViolation("s1", "alice", "invalid_play", "", `{"suit":"♠","rank":"A"}`))
	require.NoError(t, database.RecordViolation("s1", "bob", "protected_field", "trumpSuit", `"♥"`))

	rows, err := database.GetViolations("s1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "alice", rows[0].PlayerID)
	assert.Equal(t, "invalid_play", rows[0].Kind)
	assert.Equal(t, "trumpSuit", rows[1].Field)

	rows, err = database.GetViolations("other")
	require.NoError(t, err)
	assert.Empty(t, rows)
}
