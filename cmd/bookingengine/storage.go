package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"bookingengine/internal/app/middleware"
	appoutbox "bookingengine/internal/app/outbox"
	"bookingengine/internal/app/uow"
	"bookingengine/internal/domain/listings"
	"bookingengine/internal/infra/broker/kafka"
	"bookingengine/internal/infra/cache"
	"bookingengine/internal/infra/config"
	mongostore "bookingengine/internal/infra/db/mongo"
	pgstore "bookingengine/internal/infra/db/postgres"
	"bookingengine/internal/infra/obs"
	"bookingengine/internal/infra/storage/memory"
)

// storage is everything the selected driver provides.
type storage struct {
	factory     uow.Factory
	relay       appoutbox.Relay
	idempotency middleware.IdempotencyStore
	inbox       kafka.Inbox
	catalog     listings.Catalog
	ready       obs.ReadyFunc
	// maintain runs driver housekeeping until ctx ends; nil when there is none.
	maintain func(ctx context.Context)
	closers  []func()
}

func (s *storage) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openStorage(ctx context.Context, cfg config.Config, fixtures *memory.Catalog, logger *slog.Logger) (*storage, error) {
	switch cfg.StoreDriver {
	case config.DriverMongo:
		return openMongo(ctx, cfg, fixtures, logger)
	case config.DriverPostgres:
		return openPostgres(ctx, cfg, fixtures, logger)
	default:
		return openMemory(cfg, fixtures), nil
	}
}

func openMemory(cfg config.Config, fixtures *memory.Catalog) *storage {
	store := memory.NewStore()
	idem := cache.NewIdempotencyStore(cfg.IdempotencyTTL)
	inbox := cache.NewInbox(0)
	return &storage{
		factory:     store,
		relay:       store,
		idempotency: idem,
		inbox:       inbox,
		catalog:     fixtures,
		closers:     []func(){idem.Stop, inbox.Stop},
	}
}

func openMongo(ctx context.Context, cfg config.Config, fixtures *memory.Catalog, logger *slog.Logger) (*storage, error) {
	client, err := mongostore.New(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	closeClient := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Close(shutdownCtx); err != nil {
			logger.Warn("mongo disconnect failed", "error", err)
		}
	}
	if err := client.EnsureIndexes(ctx); err != nil {
		closeClient()
		return nil, fmt.Errorf("mongo indexes: %w", err)
	}
	idem, err := mongostore.NewIdempotencyStore(ctx, client.DB, cfg.IdempotencyTTL)
	if err != nil {
		closeClient()
		return nil, fmt.Errorf("mongo idempotency store: %w", err)
	}
	catalog := mongostore.NewCatalog(client.DB)
	if err := seedCatalog(ctx, fixtures, catalog.Upsert); err != nil {
		closeClient()
		return nil, err
	}
	return &storage{
		factory:     mongostore.Factory{DB: client.DB},
		relay:       mongostore.NewRelay(client.DB),
		idempotency: idem,
		inbox:       mongostore.NewInbox(client.DB, cfg.KafkaGroupID),
		catalog:     catalog,
		ready:       client.Ping,
		closers:     []func(){closeClient},
	}, nil
}

func openPostgres(ctx context.Context, cfg config.Config, fixtures *memory.Catalog, logger *slog.Logger) (*storage, error) {
	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN, logger)
	if err != nil {
		return nil, err
	}
	if err := pgstore.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	catalog := pgstore.NewCatalog(pool)
	if err := seedCatalog(ctx, fixtures, catalog.Upsert); err != nil {
		pool.Close()
		return nil, err
	}
	idem := pgstore.NewIdempotencyStore(pool, cfg.IdempotencyTTL)
	return &storage{
		factory:     pgstore.Factory{Pool: pool},
		relay:       pgstore.NewRelay(pool),
		idempotency: idem,
		inbox:       pgstore.NewInbox(pool, cfg.KafkaGroupID),
		catalog:     catalog,
		ready:       pool.Ping,
		maintain: func(ctx context.Context) {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
				if n, err := idem.Purge(ctx); err != nil {
					logger.Warn("idempotency purge failed", "error", err)
				} else if n > 0 {
					logger.Info("idempotency records purged", "count", n)
				}
			}
		},
		closers: []func(){pool.Close},
	}, nil
}

// seedCatalog copies fixture listings into a persistent catalog.
func seedCatalog(ctx context.Context, fixtures *memory.Catalog, upsert func(context.Context, listings.Listing) error) error {
	for _, l := range fixtures.All() {
		if err := upsert(ctx, l); err != nil {
			return fmt.Errorf("seed listing %s: %w", l.ID, err)
		}
	}
	return nil
}
