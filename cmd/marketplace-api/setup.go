package main

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/taskbridge/marketplace/internal/config"
	"github.com/taskbridge/marketplace/internal/events"
	"github.com/taskbridge/marketplace/internal/ledger"
	"github.com/taskbridge/marketplace/internal/reconciler"
	"github.com/taskbridge/marketplace/internal/service"
	"github.com/taskbridge/marketplace/internal/store"
	"github.com/taskbridge/marketplace/pkg/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"
)

// setup loads the configuration and installs the global logger. The returned func flushes it.
func setup() (*config.Config, func(), error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, fmt.Errorf("reading configuration: %w", err)
	}
	flags.apply(cfg)

	if err := validateConfig(cfg); err != nil {
		return nil, nil, err
	}

	logLvl, err := zap.ParseAtomicLevel(cfg.Service.LogLevel)
	if err != nil {
		logLvl = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	logger, err := log.InitLog(log.Options{
		Level:   logLvl,
		Format:  cfg.Service.LogFormat,
		Service: "marketplace-api",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("building logger: %w", err)
	}
	undo := zap.ReplaceGlobals(logger)

	return cfg, func() {
		_ = logger.Sync()
		undo()
	}, nil
}

func validateConfig(cfg *config.Config) error {
	switch cfg.Ledger.FundsLockPoint {
	case config.FundsLockAtAccept, config.FundsLockAtOffer:
	default:
		return fmt.Errorf("unknown funds lock point %q", cfg.Ledger.FundsLockPoint)
	}

	switch cfg.Ledger.Type {
	case config.LedgerMemory:
	case config.LedgerGateway:
		if cfg.Ledger.Endpoint == "" {
			return fmt.Errorf("ledger gateway requires LEDGER_ENDPOINT")
		}
	default:
		return fmt.Errorf("unknown ledger type %q", cfg.Ledger.Type)
	}

	if cfg.Reconciler.Enabled {
		if cfg.Ledger.ConfirmTimeout >= cfg.Reconciler.GracePeriod {
			return fmt.Errorf("ledger confirm timeout %s must be shorter than the reconciler grace period %s",
				cfg.Ledger.ConfirmTimeout, cfg.Reconciler.GracePeriod)
		}
		if cfg.Reconciler.EscalateAfter < cfg.Reconciler.GracePeriod {
			return fmt.Errorf("reconciler escalation bound %s is shorter than its grace period %s",
				cfg.Reconciler.EscalateAfter, cfg.Reconciler.GracePeriod)
		}
		if cfg.Reconciler.MaxAttempts < 1 {
			return fmt.Errorf("reconciler max attempts must be at least 1, got %d", cfg.Reconciler.MaxAttempts)
		}
	}

	if _, err := log.ParseFormat(cfg.Service.LogFormat); err != nil {
		return err
	}

	return nil
}

func openStore(cfg *config.Config) (store.Store, *gorm.DB, error) {
	zap.S().Info("Initializing data store")
	db, err := store.InitDB(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing data store: %w", err)
	}
	return store.NewStore(db), db, nil
}

func newLedger(cfg *config.Config) (ledger.Client, error) {
	if cfg.Ledger.Type != config.LedgerGateway {
		zap.S().Warn("using the in-memory ledger, jobs are not persisted on chain")
		return ledger.NewMemoryLedger(ledger.WithFeeBasisPoints(cfg.Ledger.FeeBasisPoints)), nil
	}

	gateway, err := ledger.NewGatewayClient(
		cfg.Ledger.Endpoint,
		ledger.WithHTTPClient(&http.Client{Timeout: cfg.Ledger.RequestTimeout}),
		ledger.WithRateLimit(cfg.Ledger.RateLimit, 1),
		ledger.WithIdempotentSubmission(cfg.Ledger.Idempotent),
	)
	if err != nil {
		return nil, fmt.Errorf("creating ledger gateway client: %w", err)
	}
	return gateway, nil
}

func newEventProducer(cfg *config.Config) (*events.EventProducer, error) {
	opts := []events.ProducerOptions{events.WithOutputTopic(cfg.Events.Topic)}

	if cfg.Events.Sink == "" {
		return events.NewEventProducer(&events.StdoutWriter{}, opts...), nil
	}

	w, err := events.NewHTTPWriter(cfg.Events.Sink)
	if err != nil {
		return nil, fmt.Errorf("creating event writer: %w", err)
	}
	return events.NewEventProducer(w, opts...), nil
}

// newReconciler shares an advisory lock between replicas on postgres. sqlite deployments are
// single process.
func newReconciler(ctx context.Context, cfg *config.Config, s store.Store, offers *service.OfferService, l ledger.Client, producer *events.EventProducer) (*reconciler.Reconciler, func(), error) {
	if cfg.Database.Type != "pgsql" {
		return reconciler.New(s, offers, l, producer, cfg), func() {}, nil
	}

	poolCfg, err := pgxpool.ParseConfig(store.PostgresDSN(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse pgx config: %w", err)
	}
	poolCfg.MaxConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}

	locker := reconciler.NewAdvisoryLocker(pool, cfg.Reconciler.LockID)
	return reconciler.New(s, offers, l, producer, cfg, reconciler.WithLocker(locker)), pool.Close, nil
}

func newListener(address string) (net.Listener, error) {
	if address == "" {
		address = "localhost:0"
	}
	return net.Listen("tcp", address)
}
