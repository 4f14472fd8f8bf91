package server

import (
	"encoding/csv"
	"io"
	"net/http"
	"strings"

	"github.com/cyclopcam/www"
	"github.com/finishcam/finishcam/server/hub"
	"github.com/finishcam/finishcam/server/leaderboard"
	"github.com/julienschmidt/httprouter"
)

const maxRosterUploadBytes = 8 * 1024 * 1024

// POST /api/roster/upload
// Multipart upload of a roster CSV. Required columns bibNumber and
// racerName, optional gender and team. Bad rows are reported in the
// summary; good rows still apply.
func (s *Server) httpRosterUpload(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.Check(r.ParseMultipartForm(maxRosterUploadBytes))
	file, _, err := r.FormFile("file")
	if err != nil {
		www.PanicBadRequestf("Missing 'file' field in upload")
	}
	defer file.Close()

	rows, err := parseRosterCSV(file)
	if err != nil {
		www.PanicBadRequestf("%v", err)
	}

	summary := s.store.ImportRoster(rows)
	// A roster import can touch any number of entries. Reload everyone.
	s.hub.Publish(hub.Reload())
	www.SendJSON(w, summary)
}

// GET /api/roster
func (s *Server) httpRosterGet(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.SendJSON(w, s.store.Roster())
}

// parseRosterCSV reads a roster file with a header row into RosterRows.
// Column order is free; unknown columns are ignored.
func parseRosterCSV(reader io.Reader) ([]leaderboard.RosterRow, error) {
	cr := csv.NewReader(reader)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1 // ragged rows are handled per-cell

	header, err := cr.Read()
	if err != nil {
		return nil, errBadRoster("CSV file is empty or unreadable")
	}
	colIdx := map[string]int{}
	for i, name := range header {
		colIdx[strings.TrimSpace(name)] = i
	}
	bibCol, hasBib := colIdx["bibNumber"]
	nameCol, hasName := colIdx["racerName"]
	if !hasBib || !hasName {
		return nil, errBadRoster("CSV must contain headers: bibNumber, racerName")
	}
	genderCol, hasGender := colIdx["gender"]
	teamCol, hasTeam := colIdx["team"]

	cell := func(record []string, idx int) string {
		if idx < len(record) {
			return record[idx]
		}
		return ""
	}

	rows := []leaderboard.RosterRow{}
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errBadRoster("Malformed CSV: " + err.Error())
		}
		row := leaderboard.RosterRow{
			BibNumber: cell(record, bibCol),
			RacerName: cell(record, nameCol),
		}
		if hasGender {
			row.Gender = cell(record, genderCol)
		}
		if hasTeam {
			row.Team = cell(record, teamCol)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

type errBadRoster string

func (e errBadRoster) Error() string {
	return string(e)
}
