package server

import (
	"embed"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cyclopcam/staticfiles"
	"github.com/cyclopcam/www"
	"github.com/go-chi/httprate"
	"github.com/julienschmidt/httprouter"
)

//go:embed www
var staticWWW embed.FS

func (s *Server) setupHttpRoutes() error {
	router := httprouter.New()

	open := func(method, route string, handle httprouter.Handle) {
		www.Handle(s.Log, router, method, route, handle)
	}

	// ratelimited wraps mutating endpoints that a misbehaving client could
	// spam. One limiter per endpoint, keyed by client IP.
	ratelimited := func(method, route string, handle httprouter.Handle, requestLimit int, windowLength time.Duration) {
		limited := httprate.Limit(requestLimit, windowLength, httprate.WithKeyFuncs(httprate.KeyByIP))
		www.Handle(s.Log, router, method, route, func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
			limited(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handle(w, r, params)
			})).ServeHTTP(w, r)
		})
	}

	open("GET", "/api/ping", s.httpPing)

	open("GET", "/api/results", s.httpResultsList)
	open("POST", "/api/results", s.httpResultsRecord)
	open("PUT", "/api/results/:id", s.httpResultsUpdate)
	open("DELETE", "/api/results/:id", s.httpResultsDelete)
	open("POST", "/api/reorder", s.httpResultsReorder)

	ratelimited("POST", "/api/roster/upload", s.httpRosterUpload, 5, time.Minute)
	open("GET", "/api/roster", s.httpRosterGet)

	open("GET", "/api/clock/status", s.httpClockStatus)
	ratelimited("POST", "/api/clock/start", s.httpClockStart, 30, time.Minute)
	ratelimited("POST", "/api/clock/stop", s.httpClockStop, 30, time.Minute)
	ratelimited("POST", "/api/clock/edit", s.httpClockEdit, 30, time.Minute)
	ratelimited("POST", "/api/clock/reset", s.httpClockReset, 30, time.Minute)

	open("GET", "/api/config", s.httpConfigGet)
	open("POST", "/api/config", s.httpConfigSet)

	open("GET", "/api/monitor/status", s.httpMonitorStatus)
	open("GET", "/api/monitor/snapshot", s.httpMonitorSnapshot)

	open("GET", "/api/ws", s.httpWebSocket)

	isImmutable := true
	var fsys fs.FS
	fsysRoot := "www"
	fsys = staticWWW
	if s.HotReloadWWW {
		relRoot := "server/www"
		absRoot, err := filepath.Abs(relRoot)
		if err != nil {
			s.Log.Errorf("Failed to resolve static file directory %v: %v", relRoot, err)
			return errors.New("Failed to resolve static file directory for hot reload")
		}
		s.Log.Infof("Serving static files from %v, with hot reload", absRoot)
		fsys = os.DirFS(absRoot)
		fsysRoot = ""
		isImmutable = false
	}
	static, err := staticfiles.NewCachedStaticFileServer(fsys, fsysRoot, []string{"/api/"}, s.Log, isImmutable, nil)
	if err != nil {
		return err
	}
	router.NotFound = static

	s.httpRouter = router
	return nil
}

func (s *Server) httpPing(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.SendJSON(w, map[string]any{
		"greeting": "finishcam",
		"time":     time.Now().UTC().Format(time.RFC3339),
	})
}
