package leaderboard

import (
	"strconv"

	"github.com/finishcam/finishcam/pkg/racetime"
	"github.com/jedib0t/go-pretty/v6/table"
)

// FormatTable renders entries as a human readable table, for logging the
// final standings when a session ends.
func FormatTable(entries []Entry) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Rank", "Bib", "Name", "Gender", "Team", "Time"})
	for _, e := range entries {
		rank := ""
		if e.Rank != nil {
			rank = strconv.Itoa(*e.Rank)
		}
		finishTime := ""
		if e.FinishTime != nil {
			finishTime = racetime.Format(*e.FinishTime)
		}
		t.AppendRow(table.Row{rank, e.BibNumber, e.RacerName, e.Gender, e.Team, finishTime})
	}
	return t.Render()
}
