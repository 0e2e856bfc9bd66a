package api

import (
	"net/http"

	"meshchat/internal/retention"
	"meshchat/pkg/logger"
	"meshchat/pkg/shutdown"
	"meshchat/pkg/utils"
)

// adminRetentionRun triggers an immediate retention pass. The gateway has
// already required an admin key for this path.
func (s *Server) adminRetentionRun(w http.ResponseWriter, r *http.Request) {
	if err := retention.RunImmediate(); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "ok"})
}

// adminShutdown records an operator exit request; the supervisor acts on it.
func (s *Server) adminShutdown(w http.ResponseWriter, r *http.Request) {
	path, err := shutdown.RequestExitFile(s.dataDir, "operator requested shutdown")
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	logger.Warn("shutdown_requested", "request", path)
	_ = utils.JSONWrite(w, http.StatusAccepted, map[string]string{"request": path})
}
