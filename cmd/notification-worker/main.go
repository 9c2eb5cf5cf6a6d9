// cmd/notification-worker/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"mission-dispatch/internal/common/aws"
	"mission-dispatch/internal/common/bootstrap"
	"mission-dispatch/internal/common/config"
	"mission-dispatch/internal/common/logger"
	"mission-dispatch/internal/common/scheduler"
	"mission-dispatch/internal/dispatch/events"
	"mission-dispatch/internal/models"
	"mission-dispatch/internal/notifications"
	"mission-dispatch/internal/notifications/channels"
	"mission-dispatch/internal/notifications/inbox"
)

const serviceName = "notification-worker"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}
	log := bootstrap.Logger(cfg.Logging).WithFields(map[string]interface{}{"service": serviceName})

	if err := run(cfg, log); err != nil {
		log.Error("notification worker stopped with error", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	log.Info("notification worker stopped", nil)
}

func run(cfg *config.Config, log logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing := bootstrap.Tracing(cfg.Tracing, serviceName, log)
	defer shutdownTracing(context.Background())

	pg, err := bootstrap.Postgres(ctx, cfg.Database.Postgres, log)
	if err != nil {
		return err
	}
	defer pg.Close()

	rdb, err := bootstrap.Redis(ctx, cfg.Database.Redis, log)
	if err != nil {
		return err
	}
	defer rdb.Close()

	es, err := bootstrap.Elasticsearch(ctx, cfg.Database.Elasticsearch, inbox.Mapping, log)
	if err != nil {
		return err
	}

	broker, err := bootstrap.RabbitMQ(cfg.RabbitMQ, true, log)
	if err != nil {
		return err
	}
	defer broker.Close()

	store := notifications.NewPostgresStore(pg.DB)
	if cfg.Database.Postgres.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate notification schema: %w", err)
		}
	}

	nc := cfg.Notifications
	index := inbox.New(es.Client, cfg.Database.Elasticsearch.InboxIndex, log)
	prefs := notifications.NewCachedPreferences(store, config.GetDuration(nc.PreferenceTTL))
	enqueuer := notifications.NewEnqueuer(store, prefs, index, nc.MaxRetries, log)
	handler := notifications.NewEventHandler(notifications.NewTemplates(nc.ActionBaseURL), enqueuer, log)

	senders, err := buildSenders(ctx, cfg, events.NewHub(rdb.Client, log), log)
	if err != nil {
		return err
	}

	sched := scheduler.New(log, config.GetDuration(nc.VisibilityTimeout))
	for _, sender := range senders {
		cc := channelConfig(nc, sender.Channel())
		w := notifications.NewWorker(store, sender, index, notifications.WorkerConfig{
			BatchSize:         cc.BatchSize,
			VisibilityTimeout: config.GetDuration(nc.VisibilityTimeout),
			BackoffBase:       config.GetDuration(nc.BackoffBase),
			BackoffMax:        config.GetDuration(nc.BackoffMax),
			RatePerSecond:     cc.RatePerSecond,
			Burst:             cc.Burst,
		}, log)

		name := "deliver-" + string(sender.Channel())
		err := sched.Add(name, cc.Schedule, func(ctx context.Context) error {
			stats, err := w.RunOnce(ctx)
			if stats.Claimed > 0 {
				log.Info("Delivery batch processed", map[string]interface{}{
					"channel": string(w.Channel()),
					"claimed": stats.Claimed,
					"sent":    stats.Sent,
					"retried": stats.Retried,
					"failed":  stats.Failed,
				})
			}
			return err
		})
		if err != nil {
			return fmt.Errorf("schedule %s: %w", name, err)
		}
	}
	sched.Start()

	srv := &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           healthRouter(pg.Ping, rdb.Ping, es.Ping, broker.IsConnected),
		ReadHeaderTimeout: config.GetDuration(cfg.HTTP.ReadTimeout),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return handler.Consume(gctx, broker, serviceName)
	})
	g.Go(func() error {
		log.Info("Health endpoint listening", map[string]interface{}{"address": srv.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down", nil)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.HTTP.ShutdownTimeout))
		defer cancel()
		if err := sched.Stop(shutdownCtx); err != nil {
			log.Warn("Scheduler did not stop cleanly", map[string]interface{}{"error": err.Error()})
		}
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// buildSenders returns the in-app sender plus whichever AWS channels are enabled.
func buildSenders(ctx context.Context, cfg *config.Config, hub *events.Hub, log logger.Logger) ([]notifications.Sender, error) {
	senders := []notifications.Sender{channels.NewInApp(hub)}

	awsCfg := cfg.Integrations.AWS
	if !awsCfg.SES.Enabled && !awsCfg.SNS.Enabled {
		log.Warn("AWS channels disabled, only in-app notifications will be delivered", nil)
		return senders, nil
	}

	sdkCfg, err := aws.LoadConfig(ctx, awsCfg.Region, awsCfg.MaxAttempts)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	if awsCfg.SES.Enabled {
		senders = append(senders, channels.NewEmail(aws.NewSESClient(sdkCfg, awsCfg.SES.ConfigurationSet), awsCfg.SES.FromEmail))
	}
	if awsCfg.SNS.Enabled {
		sns := aws.NewSNSClient(sdkCfg, awsCfg.SNS.SMSMaxPrice)
		senders = append(senders,
			channels.NewSMS(sns, awsCfg.SNS.DefaultSMSSenderID),
			channels.NewPush(sns),
		)
	}
	return senders, nil
}

func channelConfig(nc config.NotificationConfig, c models.Channel) config.ChannelConfig {
	switch c {
	case models.ChannelEmail:
		return nc.Email
	case models.ChannelSMS:
		return nc.SMS
	case models.ChannelPush:
		return nc.Push
	default:
		return nc.InApp
	}
}

func healthRouter(pgPing, redisPing, esPing func(context.Context) error, brokerUp func() bool) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		checks := map[string]string{}
		status := http.StatusOK
		for name, ping := range map[string]func(context.Context) error{
			"postgres":      pgPing,
			"redis":         redisPing,
			"elasticsearch": esPing,
		} {
			checks[name] = "ok"
			if err := ping(ctx); err != nil {
				checks[name] = err.Error()
				status = http.StatusServiceUnavailable
			}
		}
		checks["rabbitmq"] = "ok"
		if !brokerUp() {
			checks["rabbitmq"] = "connection closed"
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"checks": checks})
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}
