package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) publish(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if err := decode(r, s.validate, &req); err != nil {
		writeError(w, r, s.Logger, err)
		return
	}
	res, err := s.Offers.Publish(r.Context(), chi.URLParam(r, "missionID"), req.TTLMinutes, req.IncludeEmployees)
	if err != nil {
		writeError(w, r, s.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// claim answers 200 for every contention outcome; only failures are errors.
func (s *Server) claim(w http.ResponseWriter, r *http.Request) {
	result, err := s.Arbiter.Claim(r.Context(), chi.URLParam(r, "missionID"), caller(r).UserID)
	if err != nil {
		writeError(w, r, s.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, claimResponse{Result: result})
}

func (s *Server) refuse(w http.ResponseWriter, r *http.Request) {
	if err := s.Offers.Refuse(r.Context(), chi.URLParam(r, "missionID"), caller(r).UserID); err != nil {
		writeError(w, r, s.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) assign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := decode(r, s.validate, &req); err != nil {
		writeError(w, r, s.Logger, err)
		return
	}
	if err := s.Arbiter.AssignManually(r.Context(), chi.URLParam(r, "missionID"), req.CandidateID, caller(r)); err != nil {
		writeError(w, r, s.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := decode(r, s.validate, &req); err != nil {
		writeError(w, r, s.Logger, err)
		return
	}
	if err := s.Arbiter.Cancel(r.Context(), chi.URLParam(r, "missionID"), caller(r), req.Reason); err != nil {
		writeError(w, r, s.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) start(w http.ResponseWriter, r *http.Request) {
	if err := s.Arbiter.Start(r.Context(), chi.URLParam(r, "missionID"), caller(r)); err != nil {
		writeError(w, r, s.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) complete(w http.ResponseWriter, r *http.Request) {
	if err := s.Arbiter.Complete(r.Context(), chi.URLParam(r, "missionID"), caller(r)); err != nil {
		writeError(w, r, s.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listMyOffers(w http.ResponseWriter, r *http.Request) {
	views, err := s.Offers.ListForCandidate(r.Context(), caller(r))
	if err != nil {
		writeError(w, r, s.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"offers": views})
}

func (s *Server) listMissionOffers(w http.ResponseWriter, r *http.Request) {
	views, err := s.Offers.ListForMission(r.Context(), chi.URLParam(r, "missionID"), caller(r))
	if err != nil {
		writeError(w, r, s.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"offers": views})
}
