// Package api is the HTTP surface of the dispatch manager.
package api

import (
	"context"
	"net/http"
	"time"

	"mission-dispatch/internal/common/logger"
	"mission-dispatch/internal/dispatch/events"
	"mission-dispatch/internal/models"
	"mission-dispatch/internal/notifications"
	"mission-dispatch/internal/notifications/inbox"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// OfferService is implemented by offers.Manager.
type OfferService interface {
	Publish(ctx context.Context, missionID string, ttlMinutes int, includeEmployees bool) (*models.PublishResult, error)
	ListForCandidate(ctx context.Context, viewer models.Identity) ([]models.OfferView, error)
	ListForMission(ctx context.Context, missionID string, viewer models.Identity) ([]models.OfferView, error)
	Refuse(ctx context.Context, missionID, candidateID string) error
}

// ArbiterService is implemented by arbiter.Arbiter.
type ArbiterService interface {
	Claim(ctx context.Context, missionID, candidateID string) (models.ClaimResult, error)
	AssignManually(ctx context.Context, missionID, candidateID string, caller models.Identity) error
	Cancel(ctx context.Context, missionID string, caller models.Identity, reason string) error
	Start(ctx context.Context, missionID string, caller models.Identity) error
	Complete(ctx context.Context, missionID string, caller models.Identity) error
}

// StreamOpener is implemented by events.Hub.
type StreamOpener interface {
	Open(ctx context.Context, topics ...string) (*events.Subscription, error)
}

// NotificationStore is the part of notifications.Store the inbox endpoints use.
type NotificationStore interface {
	ListInbox(ctx context.Context, recipientID string, includeArchived bool, limit int) ([]models.Notification, error)
	Archive(ctx context.Context, id, recipientID string, at time.Time) error
	GetPreferences(ctx context.Context, recipientID string) (*notifications.Preferences, error)
	SavePreferences(ctx context.Context, p notifications.Preferences) error
}

// InboxSearcher is implemented by inbox.Index.
type InboxSearcher interface {
	Search(ctx context.Context, q inbox.Query) (*inbox.Result, error)
}

// ReadinessCheck reports whether a dependency is reachable.
type ReadinessCheck func(ctx context.Context) error

type Deps struct {
	Offers        OfferService
	Arbiter       ArbiterService
	Stream        StreamOpener
	Notifications NotificationStore
	Inbox         InboxSearcher
	Identifier    Identifier
	Ready         map[string]ReadinessCheck
	Logger        logger.Logger

	// Heartbeat is the SSE keep-alive interval; zero means 25s.
	Heartbeat time.Duration
}

type Server struct {
	Deps
	validate *validator.Validate
	now      func() time.Time
}

// NewRouter builds the chi router for the dispatch API.
func NewRouter(d Deps) http.Handler {
	if d.Heartbeat <= 0 {
		d.Heartbeat = 25 * time.Second
	}
	s := &Server{Deps: d, validate: validator.New(), now: time.Now}
	log := d.Logger

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	r.Get("/health", s.health)
	r.Get("/ready", s.ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(authenticate(d.Identifier, log))

		r.Get("/offers", s.listMyOffers)
		r.Get("/events", s.streamMine)

		r.Route("/missions/{missionID}", func(r chi.Router) {
			r.With(requireRole(log, "publish mission", models.Identity.CanPublish)).Post("/publish", s.publish)
			r.With(requireRole(log, "claim mission", models.Identity.IsWorker)).Post("/claim", s.claim)
			r.With(requireRole(log, "refuse offer", models.Identity.IsWorker)).Post("/refuse", s.refuse)
			r.Post("/assign", s.assign)
			r.Post("/cancel", s.cancel)
			r.Post("/start", s.start)
			r.Post("/complete", s.complete)
			r.With(requireRole(log, "list mission offers", models.Identity.CanPublish)).Get("/offers", s.listMissionOffers)
			r.With(requireRole(log, "stream mission events", models.Identity.CanPublish)).Get("/events", s.streamMission)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", s.listInbox)
			r.Get("/preferences", s.getPreferences)
			r.Put("/preferences", s.putPreferences)
			r.Post("/{notificationID}/archive", s.archive)
		})

		r.With(requireRole(log, "search notifications", models.Identity.CanPublish)).
			Get("/operator/notifications", s.searchNotifications)
	})
	return r
}

func caller(r *http.Request) models.Identity {
	id, _ := IdentityFrom(r.Context())
	return id
}
