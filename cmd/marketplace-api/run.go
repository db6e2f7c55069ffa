package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	apiserver "github.com/taskbridge/marketplace/internal/api_server"
	handlers "github.com/taskbridge/marketplace/internal/handlers/v1alpha1"
	"github.com/taskbridge/marketplace/internal/service"
	"github.com/taskbridge/marketplace/pkg/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	skipReconciler bool
	autoMigrate    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the marketplace api, the metrics server and the reconciler",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, flush, err := setup()
		if err != nil {
			return err
		}
		defer flush()

		zap.S().Info("Starting API service")
		defer zap.S().Info("API service stopped")

		s, db, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		if autoMigrate {
			if err := migrateStore(cfg, db); err != nil {
				return err
			}
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
		defer cancel()

		producer, err := newEventProducer(cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := producer.Close(); err != nil {
				zap.S().Warnw("failed to close event producer", "error", err)
			}
		}()

		ledgerClient, err := newLedger(cfg)
		if err != nil {
			return err
		}

		offerService := service.NewOfferService(s, ledgerClient, producer, cfg)
		h := handlers.NewServiceHandler(
			service.NewTaskService(s, producer),
			offerService,
			service.NewHealthService(s),
		)

		apiListener, err := newListener(cfg.Service.Address)
		if err != nil {
			return err
		}
		metricsListener, err := newListener(cfg.Service.MetricsAddress)
		if err != nil {
			return err
		}

		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			return apiserver.New(cfg, h, apiListener).Run(gctx)
		})

		g.Go(func() error {
			return apiserver.NewMetricServer(cfg.Service.MetricsAddress, metricsListener, metrics.NewStoreStatsCollector(s)).Run(gctx)
		})

		if cfg.Reconciler.Enabled && !skipReconciler {
			r, release, err := newReconciler(ctx, cfg, s, offerService, ledgerClient, producer)
			if err != nil {
				return err
			}
			defer release()

			g.Go(func() error {
				return r.Run(gctx)
			})
		} else {
			zap.S().Warn("reconciler disabled, in-flight conversions are not recovered by this process")
		}

		return g.Wait()
	},
}

func init() {
	addCommonFlags(runCmd.Flags())
	runCmd.Flags().BoolVar(&skipReconciler, "no-reconciler", false, "do not run the ledger reconciler in this process")
	runCmd.Flags().BoolVar(&autoMigrate, "migrate", false, "apply the schema migrations before serving")
}

