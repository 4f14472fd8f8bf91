package server

import (
	"net/http"

	"github.com/cyclopcam/www"
	"github.com/finishcam/finishcam/server/configdb"
	"github.com/julienschmidt/httprouter"
)

// GET /api/config
func (s *Server) httpConfigGet(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	settings, err := s.configDB.GetSettings()
	www.Check(err)
	www.SendJSON(w, settings)
}

// POST /api/config
// Stored settings take effect for the pipeline on the next restart; only
// the HTTP-facing bits apply live.
func (s *Server) httpConfigSet(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	settings := configdb.Settings{}
	www.ReadJSON(w, r, &settings, 1024*1024)
	if err := s.configDB.SetSettings(settings); err != nil {
		www.PanicBadRequestf("%v", err)
	}
	s.settings = settings
	www.SendOK(w)
}
