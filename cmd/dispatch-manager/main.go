// cmd/dispatch-manager/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"golang.org/x/sync/errgroup"

	"mission-dispatch/internal/api"
	"mission-dispatch/internal/common/auth"
	"mission-dispatch/internal/common/bootstrap"
	"mission-dispatch/internal/common/camunda"
	"mission-dispatch/internal/common/config"
	"mission-dispatch/internal/common/logger"
	"mission-dispatch/internal/common/observability"
	"mission-dispatch/internal/common/scheduler"
	"mission-dispatch/internal/dispatch/arbiter"
	"mission-dispatch/internal/dispatch/eligibility"
	"mission-dispatch/internal/dispatch/events"
	"mission-dispatch/internal/dispatch/offers"
	"mission-dispatch/internal/dispatch/privacy"
	"mission-dispatch/internal/dispatch/store"
	"mission-dispatch/internal/notifications"
	"mission-dispatch/internal/notifications/inbox"

	am "mission-dispatch/internal/workers/dispatch/assign-mission"
	cm "mission-dispatch/internal/workers/dispatch/cancel-mission"
	pm "mission-dispatch/internal/workers/dispatch/publish-mission"
)

const serviceName = "dispatch-manager"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}
	log := bootstrap.Logger(cfg.Logging).WithFields(map[string]interface{}{"service": serviceName})

	if err := run(cfg, log); err != nil {
		log.Error("dispatch manager stopped with error", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	log.Info("dispatch manager stopped", nil)
}

func run(cfg *config.Config, log logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing := bootstrap.Tracing(cfg.Tracing, serviceName, log)
	defer shutdownTracing(context.Background())

	obs, err := observability.New(serviceName)
	if err != nil {
		log.Warn("OpenTelemetry metrics disabled", map[string]interface{}{"error": err.Error()})
		obs = observability.NewNoop()
	}
	defer obs.Shutdown(context.Background())

	// --- Backing services ---
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

	broker, err := bootstrap.RabbitMQ(cfg.RabbitMQ, false, log)
	if err != nil {
		return err
	}
	defer broker.Close()

	dispatchStore := store.NewPostgresStore(pg.DB)
	notificationStore := notifications.NewPostgresStore(pg.DB)
	if cfg.Database.Postgres.AutoMigrate {
		if err := dispatchStore.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate dispatch schema: %w", err)
		}
		if err := notificationStore.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate notification schema: %w", err)
		}
	}

	// --- Event fan-out ---
	hub := events.NewHub(rdb.Client, log)
	bus := events.NewBus(EventBus.New(), log)
	defer bus.Drain()
	if err := bus.Attach("amqp", events.NewAMQPSink(broker)); err != nil {
		return err
	}
	if err := bus.Attach("hub", hub); err != nil {
		return err
	}

	var zeebe *camunda.Client
	if cfg.Camunda.Enabled {
		err = bootstrap.RetryWithBackoff(ctx, log, "Zeebe client initialization", 10, 2*time.Second, func() error {
			var err error
			zeebe, err = camunda.NewClient(cfg.Camunda.BrokerAddress, config.GetDuration(cfg.Camunda.RequestTimeout))
			return err
		})
		if err != nil {
			return err
		}
		defer zeebe.Close()
		if err := bus.Attach("zeebe", events.NewZeebeSink(zeebe, config.GetDuration(cfg.Camunda.MessageTTL))); err != nil {
			return err
		}
	}

	// --- Domain services ---
	policy, err := privacy.ParsePolicy(cfg.Dispatch.PrivacyPolicy)
	if err != nil {
		return err
	}
	manager := offers.NewManager(
		dispatchStore,
		eligibility.NewResolver(dispatchStore, log),
		privacy.NewMasker(policy),
		bus,
		log,
		time.Duration(cfg.Dispatch.DefaultTTLMinutes)*time.Minute,
	)
	arb := arbiter.New(dispatchStore, bus, log, time.Now)

	// --- Zeebe job workers ---
	if zeebe != nil {
		jobWorkers := openWorkers(cfg, zeebe, manager, arb, obs, log)
		defer func() {
			for _, w := range jobWorkers {
				w.Close()
				w.AwaitClose()
			}
		}()
	}

	// --- Expiry sweep ---
	sched := scheduler.New(log, time.Minute)
	err = sched.Add("offer-expiry-sweep", cfg.Dispatch.ExpirySweepSchedule, func(ctx context.Context) error {
		n, err := manager.SweepExpired(ctx)
		if n > 0 {
			log.Info("Expired offers swept", map[string]interface{}{"count": n})
		}
		return err
	})
	if err != nil {
		return err
	}
	sched.Start()

	// --- HTTP API ---
	identifier := auth.NewKeycloakClient(
		cfg.Auth.Keycloak.URL,
		cfg.Auth.Keycloak.Realm,
		cfg.Auth.Keycloak.ClientID,
		cfg.Auth.Keycloak.ClientSecret,
		config.GetDuration(cfg.Auth.Keycloak.CacheTTL),
	)
	ready := map[string]api.ReadinessCheck{
		"postgres":      pg.Ping,
		"redis":         rdb.Ping,
		"elasticsearch": es.Ping,
		"rabbitmq": func(context.Context) error {
			if !broker.IsConnected() {
				return errors.New("connection closed")
			}
			return nil
		},
	}
	if zeebe != nil {
		ready["zeebe"] = zeebe.HealthCheck
	}

	srv := &http.Server{
		Addr: cfg.HTTP.Address,
		Handler: api.NewRouter(api.Deps{
			Offers:        manager,
			Arbiter:       arb,
			Stream:        hub,
			Notifications: notificationStore,
			Inbox:         inbox.New(es.Client, cfg.Database.Elasticsearch.InboxIndex, log),
			Identifier:    identifier,
			Ready:         ready,
			Logger:        log,
		}),
		ReadHeaderTimeout: config.GetDuration(cfg.HTTP.ReadTimeout),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("HTTP API listening", map[string]interface{}{"address": srv.Addr})
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

func openWorkers(cfg *config.Config, zeebe *camunda.Client, manager *offers.Manager, arb *arbiter.Arbiter, obs *observability.Observability, log logger.Logger) []worker.JobWorker {
	var opened []worker.JobWorker
	open := func(taskType string, build func(timeout time.Duration) camunda.JobHandler) {
		if !config.IsWorkerEnabled(cfg, taskType) {
			log.Info("Worker disabled", map[string]interface{}{"taskType": taskType})
			return
		}
		wc := config.GetWorkerConfig(cfg, taskType)
		timeout := config.GetDuration(wc.Timeout)
		opened = append(opened, camunda.OpenWorker(zeebe.GetClient(), taskType, camunda.WorkerOptions{
			MaxJobsActive: wc.MaxJobsActive,
			Timeout:       timeout,
		}, build(timeout), log))
	}

	open(pm.TaskType, func(timeout time.Duration) camunda.JobHandler {
		c := pm.DefaultConfig()
		c.Timeout = timeout
		return pm.NewHandler(c, manager, log, obs)
	})
	open(am.TaskType, func(timeout time.Duration) camunda.JobHandler {
		c := am.DefaultConfig()
		c.Timeout = timeout
		return am.NewHandler(c, arb, log, obs)
	})
	open(cm.TaskType, func(timeout time.Duration) camunda.JobHandler {
		c := cm.DefaultConfig()
		c.Timeout = timeout
		return cm.NewHandler(c, arb, log, obs)
	})

	log.Info("Zeebe workers registered", map[string]interface{}{"count": len(opened)})
	return opened
}
