package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/taskbridge/marketplace/internal/service"
	"go.uber.org/zap"
)

var digest bool

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run one reconciliation sweep and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, flush, err := setup()
		if err != nil {
			return err
		}
		defer flush()

		s, _, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		producer, err := newEventProducer(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = producer.Close() }()

		ledgerClient, err := newLedger(cfg)
		if err != nil {
			return err
		}

		r, release, err := newReconciler(ctx, cfg, s, service.NewOfferService(s, ledgerClient, producer, cfg), ledgerClient, producer)
		if err != nil {
			return err
		}
		defer release()

		result, err := r.Sweep(ctx)
		if err != nil {
			return err
		}
		zap.S().Infow("sweep done",
			"skipped", result.Skipped,
			"committed", result.Committed,
			"pending", result.Pending,
			"resubmitted", result.Resubmitted,
			"escalated", result.Escalated,
			"rejected", result.Rejected,
			"surfaced", result.Surfaced,
			"parked", result.Parked,
		)

		if digest {
			n, err := r.Digest(ctx)
			if err != nil {
				return err
			}
			zap.S().Infow("digest done", "surfaced", n)
		}
		return nil
	},
}

func init() {
	addCommonFlags(reconcileCmd.Flags())
	reconcileCmd.Flags().BoolVar(&digest, "digest", false, "also surface every overdue disposition again")
}
