package leaderboard

import (
	"sort"
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	return NewStore(logs.NewTestingLog(t))
}

func ptr[T any](v T) *T {
	return &v
}

// requireRankInvariant checks that finished entries sorted by rank are the
// same sequence as sorted by finish time, and that ranks are exactly 1..N.
func requireRankInvariant(t *testing.T, s *Store) {
	finished := s.ListFinished()
	byRank := make([]Entry, len(finished))
	copy(byRank, finished)
	sort.Slice(byRank, func(i, j int) bool { return *byRank[i].Rank < *byRank[j].Rank })
	for i, e := range byRank {
		require.Equal(t, i+1, *e.Rank)
		require.Equal(t, finished[i].ID, e.ID)
	}
}

func TestRecordFinishCreatesWhenUnregistered(t *testing.T) {
	s := newTestStore(t)
	e, created := s.RecordFinish("512", 90000, Identity{})
	require.True(t, created)
	require.Equal(t, "512", e.BibNumber)
	require.Equal(t, "Racer #512", e.RacerName)
	require.Equal(t, float64(90000), *e.FinishTime)
	require.Equal(t, 1, *e.Rank)

	e2, created := s.RecordFinish("77", 80000, Identity{RacerName: "Thandi M", Gender: "female", Team: " AC Harriers "})
	require.True(t, created)
	require.Equal(t, "Thandi M", e2.RacerName)
	require.Equal(t, "W", e2.Gender)
	require.Equal(t, "AC Harriers", e2.Team)
	requireRankInvariant(t, s)
}

func TestRecordFinishOverwritesExisting(t *testing.T) {
	s := newTestStore(t)
	s.ImportRoster([]RosterRow{{BibNumber: "5", RacerName: "Anna"}})

	e, created := s.RecordFinish("5", 120000, Identity{})
	require.False(t, created)
	require.Equal(t, "Anna", e.RacerName)
	require.Equal(t, float64(120000), *e.FinishTime)

	// A later write overwrites: corrections are allowed.
	e, created = s.RecordFinish("5", 118000, Identity{})
	require.False(t, created)
	require.Equal(t, float64(118000), *e.FinishTime)
	require.Equal(t, 1, len(s.ListFinished()))
}

func TestRankRecomputation(t *testing.T) {
	s := newTestStore(t)
	s.RecordFinish("1", 300000, Identity{})
	s.RecordFinish("2", 100000, Identity{})
	s.RecordFinish("3", 200000, Identity{})

	finished := s.ListFinished()
	require.Equal(t, []string{"2", "3", "1"}, []string{finished[0].BibNumber, finished[1].BibNumber, finished[2].BibNumber})
	requireRankInvariant(t, s)

	// Ties break by insertion order, not bib number.
	s.RecordFinish("9", 200000, Identity{})
	finished = s.ListFinished()
	require.Equal(t, "3", finished[1].BibNumber)
	require.Equal(t, "9", finished[2].BibNumber)
	requireRankInvariant(t, s)
}

func TestUpdateEntryRederivesFromRoster(t *testing.T) {
	s := newTestStore(t)
	s.ImportRoster([]RosterRow{
		{BibNumber: "10", RacerName: "Sipho K", Gender: "M", Team: "North"},
		{BibNumber: "11", RacerName: "Mary L", Gender: "W", Team: "South"},
	})
	e, _ := s.RecordFinish("10", 95000, Identity{})

	// Renumbering to a rostered bib pulls identity from the roster,
	// overriding the stale name.
	updated, bibChanged, err := s.UpdateEntry(e.ID, Patch{BibNumber: ptr("11")})
	require.NoError(t, err)
	require.True(t, bibChanged)
	require.Equal(t, "11", updated.BibNumber)
	require.Equal(t, "Mary L", updated.RacerName)
	require.Equal(t, "South", updated.Team)
	require.Equal(t, float64(95000), *updated.FinishTime)

	// An explicitly supplied non-empty name still wins over the roster.
	updated, bibChanged, err = s.UpdateEntry(e.ID, Patch{BibNumber: ptr("11"), RacerName: ptr("Mary Lewis")})
	require.NoError(t, err)
	require.False(t, bibChanged)
	require.Equal(t, "Mary Lewis", updated.RacerName)
}

func TestUpdateEntryPlainPatch(t *testing.T) {
	s := newTestStore(t)
	e, _ := s.RecordFinish("42", 60000, Identity{})

	updated, bibChanged, err := s.UpdateEntry(e.ID, Patch{RacerName: ptr("Jo"), Gender: ptr("man"), FinishTime: ptr(61000.0)})
	require.NoError(t, err)
	require.False(t, bibChanged)
	require.Equal(t, "Jo", updated.RacerName)
	require.Equal(t, "M", updated.Gender)
	require.Equal(t, float64(61000), *updated.FinishTime)
	requireRankInvariant(t, s)

	_, _, err = s.UpdateEntry(999, Patch{})
	require.ErrorIs(t, err, ErrEntryNotFound)
}

func TestDeleteEntry(t *testing.T) {
	s := newTestStore(t)
	a, _ := s.RecordFinish("1", 100, Identity{})
	s.RecordFinish("2", 200, Identity{})
	s.RecordFinish("3", 300, Identity{})

	require.NoError(t, s.DeleteEntry(a.ID))
	require.ErrorIs(t, s.DeleteEntry(a.ID), ErrEntryNotFound)

	// Ranks close the gap after a delete.
	finished := s.ListFinished()
	require.Equal(t, 2, len(finished))
	require.Equal(t, 1, *finished[0].Rank)
	require.Equal(t, 2, *finished[1].Rank)
	requireRankInvariant(t, s)
}

func TestReorderPrunes(t *testing.T) {
	s := newTestStore(t)
	a, _ := s.RecordFinish("1", 100, Identity{})
	b, _ := s.RecordFinish("2", 100, Identity{})
	c, _ := s.RecordFinish("3", 100, Identity{})

	// Reorder the three-way tie to c,a and drop b entirely.
	s.Reorder([]OrderedID{{ID: c.ID, Rank: 1}, {ID: a.ID, Rank: 2}})

	finished := s.ListFinished()
	require.Equal(t, 2, len(finished))
	require.Equal(t, c.ID, finished[0].ID)
	require.Equal(t, a.ID, finished[1].ID)
	for _, e := range finished {
		require.NotEqual(t, b.ID, e.ID)
	}
	requireRankInvariant(t, s)
}
