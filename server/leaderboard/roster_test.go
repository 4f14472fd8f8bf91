package leaderboard

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestImportRoster(t *testing.T) {
	s := newTestStore(t)
	summary := s.ImportRoster([]RosterRow{
		{BibNumber: "1", RacerName: "Anna", Gender: "female", Team: " North "},
		{BibNumber: "2", RacerName: "Ben", Gender: "man"},
		{BibNumber: "3", RacerName: "Cleo", Gender: "nonbinary"},
	})
	require.Equal(t, 3, summary.Created)
	require.Equal(t, 0, summary.Updated)
	require.Equal(t, 3, summary.TotalProcessed)
	require.Empty(t, summary.Errors)

	entries := s.List()
	require.Equal(t, 3, len(entries))
	require.Equal(t, "W", entries[0].Gender)
	require.Equal(t, "North", entries[0].Team)
	require.Equal(t, "M", entries[1].Gender)
	require.Equal(t, "NONBINARY", entries[2].Gender) // unrecognized values pass through
	require.Nil(t, entries[0].FinishTime)
	require.Equal(t, 3, len(s.Roster()))
}

func TestImportRosterIdempotent(t *testing.T) {
	s := newTestStore(t)
	rows := []RosterRow{
		{BibNumber: "1", RacerName: "Anna"},
		{BibNumber: "2", RacerName: "Ben"},
	}
	s.ImportRoster(rows)
	first := s.List()

	summary := s.ImportRoster(rows)
	require.Equal(t, 0, summary.Created)
	require.Equal(t, 2, summary.Updated)
	require.Equal(t, first, s.List())
}

func TestImportRosterRowErrors(t *testing.T) {
	s := newTestStore(t)
	summary := s.ImportRoster([]RosterRow{
		{BibNumber: "1", RacerName: "Anna"},
		{BibNumber: "", RacerName: "NoBib"},
		{BibNumber: "2", RacerName: ""},
		{BibNumber: "1", RacerName: "Dup"},
		{BibNumber: "3", RacerName: "Cleo"},
	})
	// Bad rows are reported, good rows still apply.
	require.Equal(t, 2, summary.Created)
	require.Equal(t, 0, summary.Updated)
	require.Equal(t, 3, len(summary.Errors))
	require.Equal(t, 2, summary.TotalProcessed)
}

func TestRosterExcludesFinished(t *testing.T) {
	s := newTestStore(t)
	s.ImportRoster([]RosterRow{
		{BibNumber: "1", RacerName: "Anna"},
		{BibNumber: "2", RacerName: "Ben"},
	})
	s.RecordFinish("1", 90000, Identity{})

	// Re-import drops the already-finished bib from the roster-of-truth,
	// while its result entry keeps finish time and rank.
	s.ImportRoster([]RosterRow{
		{BibNumber: "1", RacerName: "Anna"},
		{BibNumber: "2", RacerName: "Ben"},
	})
	roster := s.Roster()
	require.NotContains(t, roster, "1")
	require.Contains(t, roster, "2")

	e, _ := s.RecordFinish("1", 90000, Identity{})
	require.Equal(t, float64(90000), *e.FinishTime)
	require.Equal(t, 1, *e.Rank)
}
