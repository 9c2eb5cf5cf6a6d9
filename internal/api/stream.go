package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"mission-dispatch/internal/common/metrics"
	"mission-dispatch/internal/dispatch/events"

	"github.com/go-chi/chi/v5"
)

func (s *Server) streamMission(w http.ResponseWriter, r *http.Request) {
	s.stream(w, r, events.MissionTopic(chi.URLParam(r, "missionID")))
}

// streamMine follows the caller's offers and in-app notifications.
func (s *Server) streamMine(w http.ResponseWriter, r *http.Request) {
	id := caller(r).UserID
	s.stream(w, r, events.WorkerTopic(id), events.InboxTopic(id))
}

// stream relays hub messages as server-sent events. The subscription lives
// exactly as long as the request.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, topics ...string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	sub, err := s.Stream.Open(ctx, topics...)
	if err != nil {
		writeError(w, r, s.Logger, err)
		return
	}
	defer sub.Close()
	metrics.StreamSubscribers.Inc()
	defer metrics.StreamSubscribers.Dec()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(s.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventName(msg.Topic), msg.Payload)
			flusher.Flush()
		}
	}
}

func eventName(topic string) string {
	if strings.HasPrefix(topic, events.InboxTopic("")) {
		return "notification"
	}
	return "dispatch"
}
