// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paperdex/pkg/types"
)

func entry(key, title string) types.CacheEntry {
	return types.CacheEntry{
		Key: key,
		Paper: types.ResolvedPaper{
			Title:   title,
			ArxivID: key,
			PDFURL:  "https://arxiv.org/pdf/" + key,
		},
		CollectedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "papers.json")

	s, err := Open(path, nil)
	require.NoError(t, err)

	e := entry("2302.04761", "Toolformer")
	e.Summary = &types.SummaryRecord{PaperKey: e.Key, Markdown: "## Summary", Model: "m1"}
	require.NoError(t, s.Put(e, "t:abc123"))

	// Reopen from disk and compare.
	s2, err := Open(path, nil)
	require.NoError(t, err)

	got, ok := s2.Get("2302.04761")
	require.True(t, ok)
	assert.Equal(t, e.Paper.Title, got.Paper.Title)
	require.NotNil(t, got.Summary)
	assert.Equal(t, "## Summary", got.Summary.Markdown)
	assert.True(t, got.Complete())

	// Alias lookup survives the round trip.
	viaAlias, ok := s2.Get("t:abc123")
	require.True(t, ok)
	assert.Equal(t, "2302.04761", viaAlias.Key)
}

func TestGetMissing(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "papers.json"), nil)
	require.NoError(t, err)

	_, ok := s.Get("nope")
	assert.False(t, ok)
	assert.False(t, s.Exists("nope"))
}

func TestPutPreservesCollectedAt(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "papers.json"), nil)
	require.NoError(t, err)

	e := entry("2302.04761", "Toolformer")
	first := e.CollectedAt
	require.NoError(t, s.Put(e))

	e.CollectedAt = first.Add(time.Hour)
	e.Summary = &types.SummaryRecord{PaperKey: e.Key, Markdown: "s"}
	require.NoError(t, s.Put(e))

	got, ok := s.Get("2302.04761")
	require.True(t, ok)
	assert.True(t, got.CollectedAt.Equal(first), "CollectedAt moved on update")
	assert.True(t, got.Complete())
}

func TestCorruptedFileDegradesToEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "papers.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s, err := Open(path, nil)
	require.NoError(t, err, "corruption must not be fatal")
	assert.Equal(t, 0, s.Len())

	// The store stays writable after recovery.
	require.NoError(t, s.Put(entry("2301.00001", "Fresh")))
	assert.Equal(t, 1, s.Len())
}

func TestListSortedNewestFirst(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "papers.json"), nil)
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		e := entry(fmt.Sprintf("2301.0000%d", i), fmt.Sprintf("Paper %d", i))
		e.CollectedAt = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, s.Put(e))
	}

	list := s.List()
	require.Len(t, list, 3)
	assert.Equal(t, "Paper 2", list[0].Paper.Title)
	assert.Equal(t, "Paper 0", list[2].Paper.Title)
}

func TestReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "papers.json")

	s, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Put(entry("2301.00001", "A")))

	// A second handle writes a new entry to the same file.
	s2, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, s2.Put(entry("2301.00002", "B")))

	assert.Equal(t, 1, s.Len())
	require.NoError(t, s.Reload())
	assert.Equal(t, 2, s.Len())
}

func TestConcurrentPuts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "papers.json")
	s, err := Open(path, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e := entry(fmt.Sprintf("2302.%05d", i), fmt.Sprintf("Paper %d", i))
			assert.NoError(t, s.Put(e))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, s.Len())

	s2, err := Open(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 10, s2.Len())
}
