package snapshot

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Run   int      `json:"run"`
	Coins []string `json:"coins"`
}

func TestSaveAndLoadLatest(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	s := NewStore(dir)

	t0 := time.Date(2025, 7, 14, 8, 0, 0, 0, time.UTC)
	p1, err := s.SaveJSON(RawMarket, t0, payload{Run: 1})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "coingecko_market_data_20250714_080000.json"), p1)

	_, err = s.SaveJSON(RawMarket, t0.Add(time.Hour), payload{Run: 2, Coins: []string{"bitcoin"}})
	require.NoError(t, err)
	// another prefix must not be picked up
	_, err = s.SaveJSON(RawHistorical, t0.Add(2*time.Hour), payload{Run: 3})
	require.NoError(t, err)

	var got payload
	path, err := s.LoadLatestJSON(RawMarket, &got)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Run)
	assert.Equal(t, []string{"bitcoin"}, got.Coins)
	assert.Equal(t, "coingecko_market_data_20250714_090000.json", filepath.Base(path))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 3, "no temp files left behind")
}

func TestLatestMissing(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "absent"))
	_, err := s.Latest(TransformedMarket, ".json")
	assert.True(t, errors.Is(err, ErrNotFound))

	s = NewStore(t.TempDir())
	var v payload
	_, err = s.LoadLatestJSON(TransformedHistorical, &v)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSaveText(t *testing.T) {
	s := NewStore(t.TempDir())
	path, err := s.SaveText(SchemaScript, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), ".sql", "CREATE SCHEMA x;")
	require.NoError(t, err)
	assert.Equal(t, "schema_coingecko_20250102_030405.sql", filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "CREATE SCHEMA x;", string(data))
}
