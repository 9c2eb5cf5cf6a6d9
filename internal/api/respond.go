package api

import (
	"encoding/json"
	"net/http"

	commonerrors "mission-dispatch/internal/common/errors"
	"mission-dispatch/internal/common/logger"
)

type errorBody struct {
	Error *commonerrors.StandardError `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError maps err onto the StandardError envelope. Internal failures are
// logged; caller errors are not.
func writeError(w http.ResponseWriter, r *http.Request, log logger.Logger, err error) {
	std := commonerrors.AsStandard(err)
	status := commonerrors.HTTPStatus(std.Code)
	if status >= http.StatusInternalServerError {
		log.Error("Request failed", map[string]interface{}{
			"method": r.Method,
			"path":   r.URL.Path,
			"code":   string(std.Code),
			"error":  err.Error(),
		})
	}
	writeJSON(w, status, errorBody{Error: std})
}
