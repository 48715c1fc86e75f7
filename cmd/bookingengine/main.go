package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"golang.org/x/sync/errgroup"

	"bookingengine/internal/app/commands"
	inventoryapp "bookingengine/internal/app/handlers/inventory"
	reservationsapp "bookingengine/internal/app/handlers/reservations"
	"bookingengine/internal/app/middleware"
	"bookingengine/internal/app/queries"
	"bookingengine/internal/app/services/verification"
	"bookingengine/internal/domain/reservation"
	"bookingengine/internal/infra/broker/kafka"
	"bookingengine/internal/infra/cache"
	"bookingengine/internal/infra/config"
	ginserver "bookingengine/internal/infra/http/gin"
	"bookingengine/internal/infra/obs"
	outboxrelay "bookingengine/internal/infra/outbox"
	"bookingengine/internal/infra/payments"
	"bookingengine/internal/infra/storage/memory"
	"bookingengine/internal/infra/storage/s3"
)

const serviceName = "bookingengine"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		obs.NewLogger("prod").Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("bookingengine stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("bookingengine stopped")
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	fixtures := memory.NewCatalog()
	if path := fixturesPath(cfg.ListingsFixtures); path != "" {
		n, err := fixtures.LoadFixtures(path)
		if err != nil {
			logger.Warn("listing fixtures load failed", "path", path, "error", err)
		} else {
			logger.Info("listing fixtures loaded", "path", path, "listings", n)
		}
	}

	st, err := openStorage(ctx, cfg, fixtures, logger)
	if err != nil {
		return err
	}
	defer st.close()
	logger.Info("storage ready", "driver", cfg.StoreDriver)

	var remote cache.Remote
	if cfg.MemcachedAddr != "" {
		remote = memcache.New(cfg.MemcachedAddr)
	}
	catalog := cache.NewCatalog(st.catalog, remote, cfg.CatalogCacheTTL, logger)
	defer catalog.Stop()

	producer, closeProducer, err := newProducer(cfg, logger)
	if err != nil {
		return err
	}
	defer closeProducer()
	worker := &outboxrelay.Worker{
		Relay:       st.relay,
		Producer:    producer,
		Interval:    cfg.OutboxPoll,
		TopicPrefix: cfg.KafkaTopicPrefix,
		Source:      serviceName,
		Backoff:     cfg.RetryBackoff,
		Logger:      logger,
	}

	var reports inventoryapp.ReportSink
	if cfg.S3Endpoint != "" {
		store, err := s3.NewReportStore(cfg.S3Endpoint, cfg.S3UseSSL, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, logger)
		if err != nil {
			return err
		}
		reports = store
	}

	cmds := commands.NewRegistry()
	qs := queries.NewRegistry()
	reservationsapp.Register(cmds, qs, reservationsapp.Deps{
		UoW:     st.factory,
		Catalog: catalog,
		Logger:  logger,
		Mirror:  cfg.LedgerMirror,
	}, payments.Recorder{MaxAmount: cfg.PaymentMaxAmount}, cfg.PaymentCurrency)
	inventoryapp.Register(cmds, qs, inventoryapp.Deps{
		UoW:     st.factory,
		Catalog: catalog,
		Logger:  logger,
		Mirror:  cfg.LedgerMirror,
	}, reports)

	cmdBus := middleware.ChainCommands(cmds,
		middleware.Validation(nil),
		middleware.Authorization(nil),
		middleware.Idempotency(st.idempotency, nil),
		middleware.OutboxFlush(worker, logger),
		middleware.Timeout(cfg.RequestTimeout),
		middleware.Transaction(st.factory, nil),
	)
	queryBus := middleware.ChainQueries(qs, middleware.QueryValidation(nil), middleware.QueryAuthorization(nil))

	sessions := cache.NewVerificationStore(cfg.VerificationTTL, 100000)
	defer sessions.Stop()

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{Ready: st.ready}, ginserver.Handlers{
		Reservations:   ginserver.ReservationHandler{Commands: cmdBus, Queries: queryBus, Logger: logger},
		Inventory:      ginserver.InventoryHandler{Commands: cmdBus, Queries: queryBus, Logger: logger},
		Verification:   ginserver.VerificationHandler{Service: &verification.Service{Store: sessions, Logger: logger}, Logger: logger},
		AuthMiddleware: ginserver.Authenticator{Secret: []byte(cfg.JWTSecret), Logger: logger}.Handle,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ignoreCanceled(worker.Run(gctx))
	})
	g.Go(func() error {
		logger.Info("HTTP server starting", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
		if _, err := worker.Drain(shutdownCtx); err != nil {
			logger.Warn("final outbox drain failed", "error", err)
		}
		return nil
	})

	if cfg.GRPCHealthAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCHealthAddr)
		if err != nil {
			return fmt.Errorf("grpc health listen: %w", err)
		}
		grpcHealth := obs.NewGRPCHealth(st.ready)
		g.Go(func() error {
			logger.Info("gRPC health server starting", "addr", cfg.GRPCHealthAddr)
			return grpcHealth.Server.Serve(lis)
		})
		g.Go(func() error {
			grpcHealth.Watch(gctx, 5*time.Second)
			grpcHealth.Server.GracefulStop()
			return nil
		})
	}

	if len(cfg.KafkaBrokers) > 0 {
		repair := &kafka.RepairHandler{Bus: cmdBus, Inbox: st.inbox, Logger: logger}
		consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, nil, repair, logger)
		if err != nil {
			return fmt.Errorf("kafka consumer: %w", err)
		}
		topic := outboxrelay.TopicFor(cfg.KafkaTopicPrefix, reservation.EventLedgerReleaseFailed)
		g.Go(func() error {
			defer consumer.Close()
			logger.Info("ledger repair consumer starting", "topic", topic, "group", cfg.KafkaGroupID)
			return ignoreCanceled(consumer.Run(gctx, []string{topic}))
		})
	}

	if cfg.ReconcileInterval > 0 {
		g.Go(func() error {
			reconcileEvery(gctx, cmdBus, cfg.ReconcileInterval, logger)
			return nil
		})
	}

	if st.maintain != nil {
		g.Go(func() error {
			st.maintain(gctx)
			return nil
		})
	}

	return g.Wait()
}

// reconcileEvery runs a full ledger reconciliation pass on each tick.
func reconcileEvery(ctx context.Context, bus commands.Bus, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		out, err := bus.Dispatch(ctx, inventoryapp.ReconcileCommand{Reason: "scheduled"})
		if err != nil {
			logger.Warn("scheduled reconciliation failed", "error", err)
			continue
		}
		logger.Info("scheduled reconciliation finished", "report", out)
	}
}

func newProducer(cfg config.Config, logger *slog.Logger) (outboxrelay.Producer, func(), error) {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Warn("KAFKA_BROKERS not set, outbox events are only logged")
		return logProducer{logger: logger}, func() {}, nil
	}
	p, err := kafka.NewProducer(cfg.KafkaBrokers, kafka.NewConfig(serviceName))
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return p, func() {
		if err := p.Close(); err != nil {
			logger.Warn("kafka producer close failed", "error", err)
		}
	}, nil
}

// logProducer stands in for the broker when none is configured.
type logProducer struct {
	logger *slog.Logger
}

func (p logProducer) Publish(ctx context.Context, topic, key string, payload []byte, headers map[string]string) error {
	p.logger.InfoContext(ctx, "outbox event", "topic", topic, "key", key, "type", headers["ce-type"], "bytes", len(payload))
	return nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func fixturesPath(configured string) string {
	if configured != "" {
		return configured
	}
	candidate := filepath.Join("data", "listings.json")
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return ""
}
