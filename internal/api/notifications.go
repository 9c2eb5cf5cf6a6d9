package api

import (
	"errors"
	"net/http"
	"strconv"

	commonerrors "mission-dispatch/internal/common/errors"
	"mission-dispatch/internal/models"
	"mission-dispatch/internal/notifications"
	"mission-dispatch/internal/notifications/inbox"

	"github.com/go-chi/chi/v5"
)

const maxInboxLimit = 200

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, commonerrors.NewValidationError(name + " must be a non-negative integer")
	}
	return n, nil
}

func (s *Server) listInbox(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 50)
	if err != nil {
		writeError(w, r, s.Logger, err)
		return
	}
	if limit == 0 || limit > maxInboxLimit {
		limit = maxInboxLimit
	}
	includeArchived := r.URL.Query().Get("archived") == "true"

	items, err := s.Notifications.ListInbox(r.Context(), caller(r).UserID, includeArchived, limit)
	if err != nil {
		writeError(w, r, s.Logger, commonerrors.NewDatabaseError("list inbox", err))
		return
	}
	if items == nil {
		items = []models.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"notifications": items})
}

func (s *Server) archive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "notificationID")
	err := s.Notifications.Archive(r.Context(), id, caller(r).UserID, s.now().UTC())
	switch {
	case errors.Is(err, notifications.ErrNotificationNotFound):
		writeError(w, r, s.Logger, commonerrors.NewNotificationNotFoundError(id))
	case err != nil:
		writeError(w, r, s.Logger, commonerrors.NewDatabaseError("archive notification", err))
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) getPreferences(w http.ResponseWriter, r *http.Request) {
	id := caller(r).UserID
	prefs, err := s.Notifications.GetPreferences(r.Context(), id)
	if err != nil {
		writeError(w, r, s.Logger, commonerrors.NewDatabaseError("get preferences", err))
		return
	}
	if prefs == nil {
		prefs = &notifications.Preferences{RecipientID: id, Channels: map[models.Channel]bool{}}
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (s *Server) putPreferences(w http.ResponseWriter, r *http.Request) {
	var req preferencesRequest
	if err := decode(r, s.validate, &req); err != nil {
		writeError(w, r, s.Logger, err)
		return
	}
	prefs, err := req.toPreferences(caller(r).UserID)
	if err != nil {
		writeError(w, r, s.Logger, err)
		return
	}
	if err := s.Notifications.SavePreferences(r.Context(), prefs); err != nil {
		writeError(w, r, s.Logger, commonerrors.NewDatabaseError("save preferences", err))
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (s *Server) searchNotifications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		writeError(w, r, s.Logger, err)
		return
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil {
		writeError(w, r, s.Logger, err)
		return
	}

	res, err := s.Inbox.Search(r.Context(), inbox.Query{
		RecipientID: q.Get("recipient"),
		Channel:     models.Channel(q.Get("channel")),
		Status:      models.DeliveryStatus(q.Get("status")),
		EventType:   models.EventType(q.Get("eventType")),
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		writeError(w, r, s.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
