package leaderboard

import (
	"fmt"
	"strings"
)

// RosterEntry is one row of the roster-of-truth: the immutable mapping from
// bib number to identity, used to resolve identity when an operator edits a
// bib number. Populated only by roster import.
type RosterEntry struct {
	BibNumber string `json:"bibNumber"`
	RacerName string `json:"racerName"`
	Gender    string `json:"gender,omitempty"`
	Team      string `json:"team,omitempty"`
}

// RosterRow is one parsed row of an imported roster file, before validation
type RosterRow struct {
	BibNumber string
	RacerName string
	Gender    string
	Team      string
}

// ImportSummary reports the outcome of a roster import. The import is never
// all-or-nothing: rows that fail validation are reported here while the
// rest of the batch still applies.
type ImportSummary struct {
	Created        int      `json:"uploadedCount"`
	Updated        int      `json:"updatedCount"`
	TotalProcessed int      `json:"totalProcessed"`
	Errors         []string `json:"errors"`
}

// NormalizeGender maps common gender spellings to "M"/"W". Unrecognized
// values pass through uppercased. Empty stays empty.
func NormalizeGender(g string) string {
	g = strings.ToUpper(strings.TrimSpace(g))
	switch g {
	case "M", "MALE", "MAN":
		return "M"
	case "W", "F", "FEMALE", "WOMAN":
		return "W"
	}
	return g
}

// ImportRoster merges a roster batch into the result set.
// Rows with a bib that already has an entry update identity fields only,
// preserving finish time and rank. Rows with a new bib create a
// not-yet-finished entry. Duplicate bibs within the batch are per-row
// errors. After the merge, the roster-of-truth is replaced with the merged
// set's not-yet-finished entries: its job is resolving future bib lookups,
// and already-settled finishers are excluded on purpose.
func (s *Store) ImportRoster(rows []RosterRow) ImportSummary {
	s.lock.Lock()
	defer s.lock.Unlock()

	summary := ImportSummary{Errors: []string{}}
	seen := map[string]bool{}

	for i, row := range rows {
		bib := strings.TrimSpace(row.BibNumber)
		name := strings.TrimSpace(row.RacerName)
		if bib == "" || name == "" {
			summary.Errors = append(summary.Errors, fmt.Sprintf("Row %v: missing required bibNumber or racerName", i+1))
			continue
		}
		if seen[bib] {
			summary.Errors = append(summary.Errors, fmt.Sprintf("Row %v: duplicate bib number %v in batch", i+1, bib))
			continue
		}
		seen[bib] = true

		gender := NormalizeGender(row.Gender)
		team := strings.TrimSpace(row.Team)

		if e := s.findByBibLocked(bib); e != nil {
			e.RacerName = name
			e.Gender = gender
			e.Team = team
			summary.Updated++
		} else {
			s.entries = append(s.entries, &Entry{
				ID:        s.ids.Next(),
				BibNumber: bib,
				RacerName: name,
				Gender:    gender,
				Team:      team,
				seq:       s.seqs.Next(),
			})
			summary.Created++
		}
		summary.TotalProcessed++
	}

	// Rebuild the roster-of-truth from the merged, not-yet-finished entries
	s.roster = map[string]RosterEntry{}
	for _, e := range s.entries {
		if !e.finished() {
			s.roster[e.BibNumber] = RosterEntry{
				BibNumber: e.BibNumber,
				RacerName: e.RacerName,
				Gender:    e.Gender,
				Team:      e.Team,
			}
		}
	}

	s.log.Infof("Roster import: %v created, %v updated, %v errors", summary.Created, summary.Updated, len(summary.Errors))
	return summary
}

// Roster returns a copy of the roster-of-truth, keyed by bib number
func (s *Store) Roster() map[string]RosterEntry {
	s.lock.Lock()
	defer s.lock.Unlock()
	out := make(map[string]RosterEntry, len(s.roster))
	for bib, r := range s.roster {
		out[bib] = r
	}
	return out
}
