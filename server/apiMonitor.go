package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/cyclopcam/www"
	"github.com/finishcam/finishcam/pkg/racetime"
	"github.com/finishcam/finishcam/server/monitor"
	"github.com/julienschmidt/httprouter"
)

type monitorStatusJSON struct {
	Active          bool  `json:"active"`
	FramesProcessed int64 `json:"framesProcessed"`
	TrackersSeen    int   `json:"trackersSeen"`
	Subscribers     int   `json:"subscribers"`
}

// GET /api/monitor/status
func (s *Server) httpMonitorStatus(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	status := monitorStatusJSON{
		Subscribers: s.hub.NumSubscribers(),
	}
	if s.monitor != nil {
		status.Active = true
		status.FramesProcessed = s.monitor.FramesProcessed()
		status.TrackersSeen = len(s.tracks.TrackerIDs())
	}
	www.SendJSON(w, status)
}

// GET /api/monitor/snapshot
// The most recent frame as JPEG, with the tracking overlay drawn on it.
func (s *Server) httpMonitorSnapshot(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	if s.monitor == nil {
		www.PanicNotFound()
	}
	clockLabel := ""
	if ms, err := s.clock.OfficialMilli(time.Now()); err == nil {
		clockLabel = racetime.Format(ms)
	}
	jpg, err := s.monitor.SnapshotJPEG(clockLabel)
	if errors.Is(err, monitor.ErrNoFrame) {
		www.PanicNotFound()
	}
	www.Check(err)
	www.CacheNever(w)
	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(jpg)
}
