package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lthibault/jitterbug/v2"
	"github.com/robfig/cron/v3"
	"github.com/taskbridge/marketplace/internal/config"
	"github.com/taskbridge/marketplace/internal/events"
	"github.com/taskbridge/marketplace/internal/ledger"
	"github.com/taskbridge/marketplace/internal/service"
	"github.com/taskbridge/marketplace/internal/store"
	"github.com/taskbridge/marketplace/internal/store/model"
	"github.com/taskbridge/marketplace/pkg/metrics"
	"go.uber.org/zap"
)

const (
	outcomeCommitted   = "committed"
	outcomePending     = "pending"
	outcomeResubmitted = "resubmitted"
	outcomeEscalated   = "escalated"
	outcomeRejected    = "rejected"
)

// Reconciler finishes conversions left behind by callers and reminds employers of declined
// offers whose funds are still locked. It never decides anything on behalf of a party.
type Reconciler struct {
	store    store.Store
	offers   *service.OfferService
	ledger   ledger.Client
	producer *events.EventProducer
	cfg      *config.Config
	locker   Locker
	now      func() time.Time
}

type Option func(r *Reconciler)

func WithLocker(l Locker) Option {
	return func(r *Reconciler) {
		r.locker = l
	}
}

// WithClock replaces the clock used to decide what is stale.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		r.now = now
	}
}

func New(s store.Store, offers *service.OfferService, ledgerClient ledger.Client, producer *events.EventProducer, cfg *config.Config, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:    s,
		offers:   offers,
		ledger:   ledgerClient,
		producer: producer,
		cfg:      cfg,
		locker:   NewLocalLocker(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

type SweepResult struct {
	Skipped     bool
	Committed   int
	Pending     int
	Resubmitted int
	Escalated   int
	Rejected    int
	Surfaced    int
	// Parked counts conversions waiting for an operator.
	Parked int
}

// Run sweeps on a jittered interval and runs the disposition digest on its schedule until ctx
// is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	log := zap.S().Named("reconciler")

	schedule := cron.New()
	if _, err := schedule.AddFunc(r.cfg.Reconciler.DigestSchedule, func() {
		if _, err := r.Digest(ctx); err != nil {
			log.Errorw("disposition digest failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid digest schedule %q: %w", r.cfg.Reconciler.DigestSchedule, err)
	}
	if _, err := schedule.AddFunc("@weekly", metrics.UniquePartiesPerWeek.Reset); err != nil {
		return err
	}
	schedule.Start()
	defer func() {
		<-schedule.Stop().Done()
	}()

	interval := r.cfg.Reconciler.Interval
	ticker := jitterbug.New(interval, &jitterbug.Norm{Stdev: interval / 10})
	defer ticker.Stop()

	log.Infow("reconciler started", "interval", interval, "grace_period", r.cfg.Reconciler.GracePeriod, "digest_schedule", r.cfg.Reconciler.DigestSchedule)
	for {
		if _, err := r.Sweep(ctx); err != nil {
			log.Errorw("sweep failed", "error", err)
		}

		select {
		case <-ctx.Done():
			log.Info("reconciler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep runs one pass over stale conversions and overdue dispositions.
func (r *Reconciler) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult

	release, acquired, err := r.locker.TryLock(ctx)
	if err != nil {
		metrics.IncreaseReconcilerSweepsMetric("error")
		return result, fmt.Errorf("failed to take the reconciler lock: %w", err)
	}
	if !acquired {
		metrics.IncreaseReconcilerSweepsMetric("skipped")
		result.Skipped = true
		return result, nil
	}
	defer release()

	if err := r.reconcileConversions(ctx, &result); err != nil {
		metrics.IncreaseReconcilerSweepsMetric("error")
		return result, err
	}

	surfaced, err := r.surfaceDispositions(ctx, false)
	if err != nil {
		metrics.IncreaseReconcilerSweepsMetric("error")
		return result, err
	}
	result.Surfaced = surfaced

	metrics.IncreaseReconcilerSweepsMetric("ok")
	zap.S().Named("reconciler").Debugw("sweep done", "result", result)
	return result, nil
}

// Digest surfaces every overdue disposition again, including those already surfaced.
func (r *Reconciler) Digest(ctx context.Context) (int, error) {
	release, acquired, err := r.locker.TryLock(ctx)
	if err != nil {
		return 0, err
	}
	if !acquired {
		return 0, nil
	}
	defer release()

	return r.surfaceDispositions(ctx, true)
}

func (r *Reconciler) reconcileConversions(ctx context.Context, result *SweepResult) error {
	log := zap.S().Named("reconciler")

	cutoff := r.now().Add(-r.cfg.Reconciler.GracePeriod)
	filter := store.NewConversionQueryFilter().
		ByState(model.ConversionStateConverting, model.ConversionStateSubmitted).
		UpdatedBefore(cutoff)

	stale := make([]model.Conversion, 0)
	for conv, err := range r.store.Conversion().Query(ctx, filter) {
		if err != nil {
			return err
		}
		stale = append(stale, conv)
		if len(stale) == r.cfg.Reconciler.BatchSize {
			break
		}
	}

	for _, conv := range stale {
		outcome, err := r.reconcile(ctx, conv)
		if err != nil {
			log.Warnw("conversion not reconciled", "offer_id", conv.ID, "kind", conv.Kind, "state", conv.State, "error", err)
		}
		metrics.IncreaseConversionsTotalMetric(string(conv.Kind), outcome)

		switch outcome {
		case outcomeCommitted:
			result.Committed++
		case outcomeResubmitted:
			result.Resubmitted++
		case outcomeEscalated:
			result.Escalated++
		case outcomeRejected:
			result.Rejected++
		default:
			result.Pending++
		}
	}

	parked, err := store.Collect(r.store.Conversion().Query(ctx, store.NewConversionQueryFilter().ByState(model.ConversionStateEscalated)))
	if err != nil {
		return err
	}
	result.Parked = len(parked)
	if len(parked) > 0 {
		log.Warnw("conversions waiting for an operator", "count", len(parked))
	}
	return nil
}

// reconcile brings one stale conversion forward. A transaction known to the ledger is only ever
// confirmed, never submitted again. Conversions that stay unresolved past the configured bounds
// are escalated.
func (r *Reconciler) reconcile(ctx context.Context, conv model.Conversion) (string, error) {
	var lost string

	confirmed, address, err := r.offers.CheckConversion(ctx, &conv)
	switch {
	case errors.Is(err, ledger.ErrTransactionFailed):
		return outcomeEscalated, r.offers.EscalateConversion(ctx, conv.ID, err.Error())
	case errors.Is(err, ledger.ErrUnknownTransaction):
		lost = conv.TxID
		if err := r.offers.ForgetTransaction(ctx, &conv, err); err != nil {
			return outcomePending, err
		}
	case err != nil:
		return outcomePending, err
	case confirmed:
		if _, err := r.offers.CommitConversion(ctx, conv, address); err != nil {
			return outcomePending, err
		}
		return outcomeCommitted, nil
	case conv.TxID != "":
		if age := r.now().Sub(submittedAt(conv)); age >= r.cfg.Reconciler.EscalateAfter {
			return outcomeEscalated, r.offers.EscalateConversion(ctx, conv.ID,
				fmt.Sprintf("transaction %s unconfirmed after %s", conv.TxID, age.Round(time.Second)))
		}
		zap.S().Named("reconciler").Warnw("conversion still unconfirmed", "offer_id", conv.ID, "kind", conv.Kind, "tx_id", conv.TxID, "submitted_at", conv.SubmittedAt)
		return outcomePending, nil
	}

	if !ledger.IsIdempotent(r.ledger) {
		return outcomeEscalated, r.offers.EscalateConversion(ctx, conv.ID, "ledger outcome unknown and submissions are not idempotent")
	}
	if conv.Attempts >= r.cfg.Reconciler.MaxAttempts {
		return outcomeEscalated, r.offers.EscalateConversion(ctx, conv.ID, fmt.Sprintf("no confirmed transaction after %d submissions", conv.Attempts))
	}

	if err := r.offers.SubmitConversion(ctx, &conv); err != nil {
		if errors.Is(err, ledger.ErrRejected) {
			return outcomeRejected, r.offers.AbandonConversion(ctx, conv.ID, err)
		}
		return outcomePending, err
	}
	zap.S().Named("reconciler").Infow("conversion resubmitted", "offer_id", conv.ID, "kind", conv.Kind, "tx_id", conv.TxID, "attempt", conv.Attempts)

	if lost != "" && conv.TxID == lost {
		return outcomeEscalated, r.offers.EscalateConversion(ctx, conv.ID, fmt.Sprintf("ledger answered with the lost transaction %s again", lost))
	}

	confirmed, address, err = r.ledger.Confirm(ctx, conv.TxID)
	if err != nil || !confirmed {
		return outcomeResubmitted, nil
	}
	if _, err := r.offers.CommitConversion(ctx, conv, address); err != nil {
		return outcomeResubmitted, err
	}
	return outcomeCommitted, nil
}

func submittedAt(conv model.Conversion) time.Time {
	if conv.SubmittedAt != nil {
		return *conv.SubmittedAt
	}
	return conv.CreatedAt
}

// surfaceDispositions reports declined offers whose funds stay locked past the disposition
// timeout. Unless all is set, an offer is surfaced again only once per timeout.
func (r *Reconciler) surfaceDispositions(ctx context.Context, all bool) (int, error) {
	if !r.offers.FundsLockedAtOffer() {
		return 0, nil
	}

	now := r.now().UTC()
	cutoff := now.Add(-r.cfg.Reconciler.DispositionTimeout)
	overdue, err := store.Collect(r.store.Offer().Query(ctx, store.NewOfferQueryFilter().
		ByStatus(model.OfferStatusDeclined).
		Funded().
		DeclinedBefore(cutoff)))
	if err != nil {
		return 0, err
	}
	metrics.UpdatePendingDispositionsMetric(len(overdue))

	if !all {
		overdue, err = store.Collect(r.store.Offer().Query(ctx, store.NewOfferQueryFilter().
			ByStatus(model.OfferStatusDeclined).
			Funded().
			DeclinedBefore(cutoff).
			NotSurfacedSince(cutoff)))
		if err != nil {
			return 0, err
		}
	}

	surfaced := 0
	for _, offer := range overdue {
		next := offer
		next.SurfacedAt = &now
		ok, err := r.store.Offer().CompareAndSwap(ctx, offer.Version, &next)
		if err != nil {
			return surfaced, err
		}
		if !ok {
			// the employer acted in the meantime
			continue
		}
		surfaced++

		zap.S().Named("reconciler").Warnw("declined offer waiting for a disposition", "offer_id", offer.ID, "employer", offer.Employer, "escrow_address", offer.EscrowAddress, "declined_at", offer.DeclinedAt)
		ev := events.DispositionEvent{
			OfferID:       offer.ID.String(),
			Employer:      offer.Employer,
			EscrowAddress: offer.EscrowAddress,
			LockedValue:   offer.LockedValue.String(),
			DeclinedAt:    offer.DeclinedAt.UTC().Format(time.RFC3339),
		}
		if err := r.producer.Publish(ctx, events.DispositionSurfacedKind, ev); err != nil {
			zap.S().Named("reconciler").Errorw("failed to write event", "error", err, "event_kind", events.DispositionSurfacedKind)
		}
	}
	return surfaced, nil
}
