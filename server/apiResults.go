package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/cyclopcam/www"
	"github.com/finishcam/finishcam/pkg/racetime"
	"github.com/finishcam/finishcam/server/hub"
	"github.com/finishcam/finishcam/server/leaderboard"
	"github.com/julienschmidt/httprouter"
)

// finishSubmission is the POST /api/results payload. FinishTime accepts
// either a number (milliseconds) or a legacy "MM:SS.cc" string. When
// neither FinishTime nor WallClockTime is given, the request is rejected.
type finishSubmission struct {
	BibNumber     string          `json:"bibNumber"`
	FinishTime    json.RawMessage `json:"finishTime"`
	WallClockTime *float64        `json:"wallClockTime"` // Unix seconds
	RacerName     string          `json:"racerName"`
	Gender        string          `json:"gender"`
	Team          string          `json:"team"`
}

// entryPatch is the PUT /api/results/:id payload. FinishTime accepts the
// same dual format as finishSubmission.
type entryPatch struct {
	BibNumber  *string         `json:"bibNumber"`
	RacerName  *string         `json:"racerName"`
	Gender     *string         `json:"gender"`
	Team       *string         `json:"team"`
	FinishTime json.RawMessage `json:"finishTime"`
}

// parseTimeMs converts a JSON finish time (number of milliseconds, or
// "MM:SS.cc" string) to milliseconds. Panics with 400 on malformed input.
func parseTimeMs(raw json.RawMessage) float64 {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		ms := racetime.Parse(asString)
		if ms == racetime.Invalid {
			www.PanicBadRequestf("Invalid time format. Use MM:SS.cc")
		}
		return float64(ms)
	}
	var asNumber float64
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return asNumber
	}
	www.PanicBadRequestf("finishTime must be a number of milliseconds or an MM:SS.cc string")
	return 0
}

func timeFromUnixSeconds(secs float64) time.Time {
	return time.UnixMilli(int64(secs * 1000))
}

func parseEntryID(params httprouter.Params) int64 {
	id := www.ParseID(params.ByName("id"))
	if id == 0 {
		www.PanicBadRequestf("Invalid entry ID")
	}
	return id
}

// GET /api/results
// All finished entries, ascending by finish time.
func (s *Server) httpResultsList(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.SendJSON(w, s.store.ListFinished())
}

// POST /api/results
// Record a finish by bib number: either a direct finish time, or a wall
// clock instant that we convert via the race clock.
func (s *Server) httpResultsRecord(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	body := finishSubmission{}
	www.ReadJSON(w, r, &body, 1024*1024)
	if body.BibNumber == "" {
		www.PanicBadRequestf("bibNumber is required")
	}

	var finishTimeMs float64
	switch {
	case body.WallClockTime != nil:
		secs := *body.WallClockTime
		wall := timeFromUnixSeconds(secs)
		ms, err := s.clock.OfficialMilli(wall)
		if err != nil {
			www.PanicBadRequestf("Race clock is not running. Please start the race clock first.")
		}
		finishTimeMs = ms
	case body.FinishTime != nil:
		finishTimeMs = parseTimeMs(body.FinishTime)
	default:
		www.PanicBadRequestf("Either wallClockTime or finishTime is required")
	}

	entry, created := s.store.RecordFinish(body.BibNumber, finishTimeMs, leaderboard.Identity{
		RacerName: body.RacerName,
		Gender:    body.Gender,
		Team:      body.Team,
	})
	if created {
		s.hub.Publish(hub.Incremental(hub.KindAdd, entry))
	} else {
		s.hub.Publish(hub.Incremental(hub.KindUpdate, entry))
	}
	www.SendJSON(w, entry)
}

// PUT /api/results/:id
func (s *Server) httpResultsUpdate(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	id := parseEntryID(params)
	body := entryPatch{}
	www.ReadJSON(w, r, &body, 1024*1024)

	patch := leaderboard.Patch{
		BibNumber: body.BibNumber,
		RacerName: body.RacerName,
		Gender:    body.Gender,
		Team:      body.Team,
	}
	if body.FinishTime != nil {
		ms := parseTimeMs(body.FinishTime)
		patch.FinishTime = &ms
	}

	entry, bibChanged, err := s.store.UpdateEntry(id, patch)
	if errors.Is(err, leaderboard.ErrEntryNotFound) {
		www.PanicNotFound()
	}
	www.Check(err)

	if bibChanged {
		// A renumber can collide with another entry's view of the world.
		// Make every client refetch.
		s.hub.Publish(hub.Reload())
	} else {
		s.hub.Publish(hub.Incremental(hub.KindUpdate, entry))
	}
	www.SendJSON(w, entry)
}

// DELETE /api/results/:id
func (s *Server) httpResultsDelete(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	id := parseEntryID(params)
	err := s.store.DeleteEntry(id)
	if errors.Is(err, leaderboard.ErrEntryNotFound) {
		www.PanicNotFound()
	}
	www.Check(err)
	s.hub.Publish(hub.Reload())
	www.SendOK(w)
}

// POST /api/reorder
// Replace the result ordering with the named entries. Entries not named
// are dropped.
func (s *Server) httpResultsReorder(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	body := struct {
		Order []leaderboard.OrderedID `json:"order"`
	}{}
	www.ReadJSON(w, r, &body, 1024*1024)
	s.store.Reorder(body.Order)
	s.hub.Publish(hub.Reload())
	www.SendOK(w)
}
