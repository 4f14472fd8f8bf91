// Package server wires the finish line pipeline, the leaderboard, the race
// clock and the push hub together, and serves the operator API.
package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/finishcam/finishcam/pkg/ocr"
	"github.com/finishcam/finishcam/server/configdb"
	"github.com/finishcam/finishcam/server/hub"
	"github.com/finishcam/finishcam/server/leaderboard"
	"github.com/finishcam/finishcam/server/monitor"
	"github.com/finishcam/finishcam/server/raceclock"
	"github.com/finishcam/finishcam/server/track"
	"github.com/julienschmidt/httprouter"
)

type Server struct {
	Log          logs.Log
	HotReloadWWW bool

	configDB *configdb.ConfigDB
	settings configdb.Settings

	tracks  *track.Registry
	store   *leaderboard.Store
	clock   *raceclock.Clock
	hub     *hub.Hub
	monitor *monitor.Monitor // nil when running without a video source

	finishEvents chan *track.FinishEvent
	pumpStop     chan bool
	pumpStopped  chan bool

	signalIn   chan os.Signal
	httpServer *http.Server
	httpRouter *httprouter.Router
}

// NewServer creates a server for one race session.
// 'source' and 'textReader' may be nil, in which case there is no finish
// line pipeline and all results arrive through manual entry.
func NewServer(logger logs.Log, configDBFilename string, source monitor.FrameSource, textReader ocr.TextReader, hotReloadWWW bool) (*Server, error) {
	configDB, err := configdb.NewConfigDB(logger, configDBFilename)
	if err != nil {
		return nil, err
	}
	settings, err := configDB.GetSettings()
	if err != nil {
		return nil, err
	}

	s := &Server{
		Log:          logger,
		HotReloadWWW: hotReloadWWW,
		configDB:     configDB,
		settings:     settings,
		tracks:       track.NewRegistry(),
		store:        leaderboard.NewStore(logger),
		clock:        raceclock.NewClock(),
		hub:          hub.NewHub(logger),
	}
	if source != nil {
		options := monitor.Options{
			FinishFraction:   float32(settings.FinishFraction),
			MinBibConfidence: float32(settings.MinBibConfidence),
			OCRCropPadding:   settings.OCRCropPadding,
		}
		s.monitor = monitor.NewMonitor(logger, source, textReader, s.tracks, options)
	}
	if err := s.setupHttpRoutes(); err != nil {
		return nil, err
	}
	return s, nil
}

// Settings returns the settings the server was started with
func (s *Server) Settings() configdb.Settings {
	return s.settings
}

// Start launches the finish line pipeline (if any) and the event pump
func (s *Server) Start() {
	s.pumpStop = make(chan bool)
	s.pumpStopped = make(chan bool)
	if s.monitor != nil {
		s.monitor.Start()
		s.finishEvents = s.monitor.AddFinishWatcher()
		go func() {
			s.monitor.Wait()
			s.logFinalLeaderboard()
		}()
	}
	go s.runFinishEventPump()
}

// runFinishEventPump moves finish events from the monitor into the
// leaderboard, and publishes the result. Store mutation happens here, hub
// delivery happens inside Publish without holding any store lock.
func (s *Server) runFinishEventPump() {
	defer close(s.pumpStopped)
	for {
		select {
		case ev := <-s.eventChannel():
			s.handleFinishEvent(ev)
		case <-s.pumpStop:
			return
		}
	}
}

// eventChannel returns the finish event channel, or nil (blocks forever in
// select) when there is no pipeline.
func (s *Server) eventChannel() chan *track.FinishEvent {
	return s.finishEvents
}

func (s *Server) handleFinishEvent(ev *track.FinishEvent) {
	officialMs, err := s.clock.OfficialMilli(ev.WallClockTime)
	if err != nil {
		// The operator never started the clock. We refuse to guess a time.
		s.Log.Warnf("Race clock is not running. Dropping finish for bib %v (tracker %v).", ev.BibNumber, ev.TrackerID)
		return
	}
	entry, created := s.store.RecordFinish(ev.BibNumber, officialMs, leaderboard.Identity{})
	if created {
		s.hub.Publish(hub.Incremental(hub.KindAdd, entry))
	} else {
		s.hub.Publish(hub.Incremental(hub.KindUpdate, entry))
	}
}

// logFinalLeaderboard prints the standings when the video source ends
func (s *Server) logFinalLeaderboard() {
	finished := s.store.ListFinished()
	if len(finished) == 0 {
		s.Log.Infof("Video source ended. No finishers recorded.")
		return
	}
	s.Log.Infof("Video source ended. Final standings:\n%v", leaderboard.FormatTable(finished))
}

// port example: ":8000"
func (s *Server) ListenHTTP(port string) error {
	s.Log.Infof("Listening on %v", port)
	s.httpServer = &http.Server{
		Addr:    port,
		Handler: s.httpRouter,
	}
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) ListenForKillSignals() {
	s.signalIn = make(chan os.Signal, 1)
	signal.Notify(s.signalIn, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig, ok := <-s.signalIn
		if ok {
			s.Log.Infof("Received OS signal '%v'. Shutting down.", sig.String())
			s.Shutdown()
		} else {
			// Shutdown() was called by somebody else, and closed signalIn.
			s.Log.Infof("signalIn closed. ListenForKillSignals will exit now")
		}
	}()
}

func (s *Server) Shutdown() {
	s.Log.Infof("Shutdown")
	if s.signalIn != nil {
		signal.Stop(s.signalIn)
		close(s.signalIn)
	}
	if s.monitor != nil {
		s.monitor.Stop()
	}
	close(s.pumpStop)
	<-s.pumpStopped
	s.hub.Close()
	if s.httpServer != nil {
		s.Log.Infof("Closing HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.Log.Warnf("Shutdown complete, with error: %v", err)
			return
		}
	}
	s.Log.Infof("Shutdown complete")
}
