package server

import (
	"encoding/json"
	"net/http"

	"github.com/cyclopcam/www"
	"github.com/finishcam/finishcam/server/hub"
	"github.com/julienschmidt/httprouter"
)

// GET /api/clock/status
func (s *Server) httpClockStatus(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.SendJSON(w, s.clock.State())
}

// POST /api/clock/start
func (s *Server) httpClockStart(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	state := s.clock.Start()
	s.Log.Infof("Race clock started")
	s.hub.Publish(hub.Incremental(hub.KindClockUpdate, state))
	www.SendJSON(w, state)
}

// POST /api/clock/stop
func (s *Server) httpClockStop(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	state := s.clock.Stop()
	s.Log.Infof("Race clock stopped")
	s.hub.Publish(hub.Incremental(hub.KindClockUpdate, state))
	www.SendJSON(w, state)
}

// POST /api/clock/edit
// Set the current official race time. Body: {"time": "MM:SS.cc"} or
// {"time": <milliseconds>}.
func (s *Server) httpClockEdit(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	body := struct {
		Time json.RawMessage `json:"time"`
	}{}
	www.ReadJSON(w, r, &body, 64*1024)
	if body.Time == nil {
		www.PanicBadRequestf("time is required")
	}
	desiredMs := parseTimeMs(body.Time)
	state := s.clock.Edit(desiredMs)
	s.Log.Infof("Race clock edited to %.0fms", desiredMs)
	s.hub.Publish(hub.Incremental(hub.KindClockUpdate, state))
	www.SendJSON(w, state)
}

// POST /api/clock/reset
func (s *Server) httpClockReset(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	state := s.clock.Reset()
	s.Log.Infof("Race clock reset")
	s.hub.Publish(hub.Incremental(hub.KindClockUpdate, state))
	www.SendJSON(w, state)
}
