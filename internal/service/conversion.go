package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/taskbridge/marketplace/internal/events"
	"github.com/taskbridge/marketplace/internal/ledger"
	"github.com/taskbridge/marketplace/internal/store"
	"github.com/taskbridge/marketplace/internal/store/model"
	"github.com/taskbridge/marketplace/pkg/metrics"
	"go.uber.org/zap"
)

// runConversion drives a conversion already marked CONVERTING through submission, confirmation
// and the final record update. It never reports an ambiguous ledger outcome as a failure: the
// marker stays in place and the reconciler finishes the work.
func (s *OfferService) runConversion(ctx context.Context, conv model.Conversion, offer model.Offer) (Outcome, error) {
	// the caller may go away, the conversion must not
	ctx = context.WithoutCancel(ctx)
	log := zap.S().Named("offer_service")

	if err := s.SubmitConversion(ctx, &conv); err != nil {
		if errors.Is(err, ledger.ErrRejected) {
			metrics.IncreaseConversionsTotalMetric(string(conv.Kind), "rejected")
			metrics.IncreaseOffersTotalMetric("rejected")
			log.Warnw("ledger rejected conversion", "offer_id", offer.ID, "kind", conv.Kind, "error", err)
			if abandonErr := s.AbandonConversion(ctx, conv.ID, err); abandonErr != nil {
				log.Errorw("failed to remove conversion marker", "offer_id", offer.ID, "kind", conv.Kind, "error", abandonErr)
			}
			return Outcome{}, err
		}
		metrics.IncreaseConversionsTotalMetric(string(conv.Kind), "pending")
		log.Warnw("ledger outcome unknown, conversion left to the reconciler", "offer_id", offer.ID, "kind", conv.Kind, "error", err)
		return pending(offer), nil
	}

	confirmed, address, err := s.awaitConfirmation(ctx, conv)
	if err != nil {
		if escErr := s.EscalateConversion(ctx, conv.ID, err.Error()); escErr != nil {
			log.Errorw("failed to escalate conversion", "offer_id", offer.ID, "kind", conv.Kind, "error", escErr)
		}
		return failed(offer, err.Error()), nil
	}
	if !confirmed {
		metrics.IncreaseConversionsTotalMetric(string(conv.Kind), "pending")
		log.Infow("transaction not confirmed yet, conversion left to the reconciler", "offer_id", offer.ID, "kind", conv.Kind, "tx_id", conv.TxID)
		return pending(offer), nil
	}

	outcome, err := s.CommitConversion(ctx, conv, address)
	if err != nil {
		metrics.IncreaseConversionsTotalMetric(string(conv.Kind), "pending")
		log.Errorw("failed to record confirmed conversion", "offer_id", offer.ID, "kind", conv.Kind, "tx_id", conv.TxID, "error", err)
		return pending(offer), nil
	}
	return outcome, nil
}

// SubmitConversion sends the ledger transaction of conv using its idempotency token and records
// the transaction id. Errors wrapping ledger.ErrRejected are definitive, any other error leaves
// the outcome unknown.
func (s *OfferService) SubmitConversion(ctx context.Context, conv *model.Conversion) error {
	offer, err := s.store.Offer().Get(ctx, conv.ID)
	if err != nil {
		return err
	}

	var txID string
	if conv.Kind == model.ConversionKindRefund {
		txID, err = s.ledger.Refund(ctx, ledger.RefundRequest{
			LockedRef:        offer.EscrowAddress,
			Recipient:        offer.Employer,
			IdempotencyToken: conv.Token(),
		})
	} else {
		txID, err = s.ledger.CreateFundedJob(ctx, jobParams(conv.Kind, *offer, conv.Token()))
	}

	next := *conv
	next.Attempts++
	if err != nil {
		next.LastError = err.Error()
		if ok, casErr := s.store.Conversion().CompareAndSwap(ctx, conv.Version, &next); casErr == nil && ok {
			*conv = next
		}
		return fmt.Errorf("failed to submit %s conversion for offer %s: %w", conv.Kind, conv.ID, err)
	}

	now := time.Now().UTC()
	next.State = model.ConversionStateSubmitted
	next.TxID = txID
	next.SubmittedAt = &now
	next.LastError = ""

	ok, err := s.store.Conversion().CompareAndSwap(ctx, conv.Version, &next)
	if err != nil {
		return err
	}
	if !ok {
		current, err := s.store.Conversion().Get(ctx, conv.ID)
		if err != nil {
			return err
		}
		if current.TxID == "" {
			return store.ErrVersionConflict
		}
		next = *current
	}
	*conv = next

	zap.S().Named("offer_service").Infow("conversion submitted", "offer_id", conv.ID, "kind", conv.Kind, "tx_id", conv.TxID, "attempt", conv.Attempts)
	return nil
}

// CheckConversion looks up the ledger outcome of conv without waiting. A conversion without a
// known transaction is matched by its token when the ledger can resolve tokens.
func (s *OfferService) CheckConversion(ctx context.Context, conv *model.Conversion) (bool, string, error) {
	if conv.TxID == "" {
		resolver, ok := s.ledger.(ledger.TokenResolver)
		if !ok {
			return false, "", nil
		}
		txID, found, err := resolver.LookupToken(ctx, conv.Token())
		if err != nil {
			return false, "", err
		}
		if !found {
			return false, "", nil
		}

		now := time.Now().UTC()
		next := *conv
		next.State = model.ConversionStateSubmitted
		next.TxID = txID
		next.SubmittedAt = &now
		ok, err = s.store.Conversion().CompareAndSwap(ctx, conv.Version, &next)
		if err != nil {
			return false, "", err
		}
		if !ok {
			return false, "", store.ErrVersionConflict
		}
		*conv = next
	}

	return s.ledger.Confirm(ctx, conv.TxID)
}

func (s *OfferService) awaitConfirmation(ctx context.Context, conv model.Conversion) (bool, string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Ledger.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(s.cfg.Ledger.ConfirmPollInterval)
	defer ticker.Stop()

	for {
		confirmed, address, err := s.ledger.Confirm(ctx, conv.TxID)
		switch {
		case errors.Is(err, ledger.ErrTransactionFailed):
			return false, "", err
		case err != nil:
			zap.S().Named("offer_service").Debugw("confirmation attempt failed", "tx_id", conv.TxID, "error", err)
		case confirmed:
			if conv.SubmittedAt != nil {
				metrics.ObserveLedgerConfirmSeconds(string(conv.Kind), time.Since(*conv.SubmittedAt).Seconds())
			}
			return true, address, nil
		}

		select {
		case <-ctx.Done():
			return false, "", nil
		case <-ticker.C:
		}
	}
}

// CommitConversion records the outcome of a confirmed conversion. address is the job address
// reported by the ledger confirmation, which is the proof the records are updated from.
// Committing an already committed conversion is a no-op.
func (s *OfferService) CommitConversion(ctx context.Context, conv model.Conversion, address string) (Outcome, error) {
	var (
		outcome Outcome
		kind    model.ConversionKind
		fresh   bool
	)

	err := store.InTransaction(ctx, s.store, func(ctx context.Context) error {
		current, err := s.store.Conversion().Get(ctx, conv.ID)
		if err != nil {
			return err
		}
		offer, err := s.store.Offer().Get(ctx, conv.ID)
		if err != nil {
			return err
		}

		if current.State == model.ConversionStateCommitted {
			job, err := s.findJob(ctx, offer.ID)
			if err != nil {
				return err
			}
			outcome = committed(*offer, job)
			return nil
		}
		if !current.InFlight() {
			return fmt.Errorf("conversion for offer %s is %s", current.ID, current.State)
		}
		if current.TxID == "" {
			current.TxID = conv.TxID
		}

		var job *model.Job
		switch current.Kind {
		case model.ConversionKindAccept:
			job, err = s.commitAccept(ctx, offer, address, current.TxID)
		case model.ConversionKindEscrow:
			job, err = s.commitEscrow(ctx, offer, address, current.TxID)
		case model.ConversionKindPublish:
			job, err = s.commitPublish(ctx, offer, address, current.TxID)
		case model.ConversionKindRefund:
			job, err = s.commitRefund(ctx, offer, current.TxID)
		default:
			err = fmt.Errorf("unknown conversion kind %s", current.Kind)
		}
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		next := *current
		next.State = model.ConversionStateCommitted
		next.ConfirmedAt = &now
		next.LastError = ""
		if address != "" {
			next.JobAddress = address
		}
		if err := s.casConversion(ctx, current.Version, &next); err != nil {
			return err
		}

		outcome = committed(*offer, job)
		kind = current.Kind
		fresh = true
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}

	if fresh {
		metrics.IncreaseConversionsTotalMetric(string(kind), "committed")
		if kind != model.ConversionKindEscrow {
			metrics.IncreaseOffersTotalMetric(strings.ToLower(string(outcome.Offer.Status)))
		}
		zap.S().Named("offer_service").Infow("conversion committed", "offer_id", conv.ID, "kind", kind, "status", outcome.Offer.Status, "job_address", address)
		s.publishOffer(ctx, committedEventKind(kind, outcome.Offer), outcome.Offer)
	}
	return outcome, nil
}

func (s *OfferService) commitAccept(ctx context.Context, offer *model.Offer, address, txID string) (*model.Job, error) {
	if offer.Status != model.OfferStatusConverting {
		return nil, fmt.Errorf("offer %s is %s while its acceptance was confirmed", offer.ID, offer.Status)
	}

	job, err := s.ensureJob(ctx, model.NewJobFromOffer(*offer, address, txID))
	if err != nil {
		return nil, err
	}

	offer.Status = model.OfferStatusAccepted
	offer.JobAddress = address
	if err := s.casOffer(ctx, offer); err != nil {
		return nil, err
	}
	return job, s.moveTask(ctx, *offer, model.TaskStatusConverted)
}

func (s *OfferService) commitEscrow(ctx context.Context, offer *model.Offer, address, txID string) (*model.Job, error) {
	job, err := s.ensureJob(ctx, model.NewJobFromOffer(*offer, address, txID))
	if err != nil {
		return nil, err
	}

	offer.EscrowAddress = address
	offer.EscrowTxID = txID
	return job, s.casOffer(ctx, offer)
}

func (s *OfferService) commitPublish(ctx context.Context, offer *model.Offer, address, txID string) (*model.Job, error) {
	if offer.Status != model.OfferStatusConverting {
		return nil, fmt.Errorf("offer %s is %s while its publication was confirmed", offer.ID, offer.Status)
	}

	listing := model.NewJobFromOffer(*offer, address, txID)
	listing.Worker = ""
	listing.Public = true
	job, err := s.ensureJob(ctx, listing)
	if err != nil {
		return nil, err
	}

	offer.Status = model.OfferStatusPublished
	offer.JobAddress = address
	if err := s.casOffer(ctx, offer); err != nil {
		return nil, err
	}
	return job, s.moveTask(ctx, *offer, model.TaskStatusOpen)
}

func (s *OfferService) commitRefund(ctx context.Context, offer *model.Offer, txID string) (*model.Job, error) {
	if offer.Status != model.OfferStatusRefunding {
		return nil, fmt.Errorf("offer %s is %s while its refund was confirmed", offer.ID, offer.Status)
	}

	job, err := s.store.Job().GetByOfferID(ctx, offer.ID)
	if err != nil {
		return nil, err
	}
	job.RefundTxID = txID
	if job, err = s.store.Job().Update(ctx, *job); err != nil {
		return nil, err
	}

	// an offer refunded before the worker answered was cancelled by its employer
	offer.Status = model.OfferStatusRefunded
	if offer.DeclinedAt == nil {
		offer.Status = model.OfferStatusCancelled
	}
	if err := s.casOffer(ctx, offer); err != nil {
		return nil, err
	}
	return job, s.moveTask(ctx, *offer, model.TaskStatusOpen)
}

// AbandonConversion undoes the marker of a conversion the ledger definitively rejected, so
// nothing durable is left behind.
func (s *OfferService) AbandonConversion(ctx context.Context, id uuid.UUID, cause error) error {
	return store.InTransaction(ctx, s.store, func(ctx context.Context) error {
		current, err := s.store.Conversion().Get(ctx, id)
		if err != nil {
			return err
		}
		if !current.InFlight() {
			return nil
		}
		offer, err := s.store.Offer().Get(ctx, id)
		if err != nil {
			return err
		}

		if current.Kind == model.ConversionKindRefund {
			// the escrow is still locked: the marker goes back to describing it
			next := *current
			next.Kind = model.ConversionKindEscrow
			next.State = model.ConversionStateCommitted
			next.TxID = offer.EscrowTxID
			next.JobAddress = offer.EscrowAddress
			next.LastError = cause.Error()
			if err := s.casConversion(ctx, current.Version, &next); err != nil {
				return err
			}

			offer.Status = model.OfferStatusPending
			if offer.DeclinedAt != nil {
				offer.Status = model.OfferStatusDeclined
			}
			return s.casOffer(ctx, offer)
		}

		deleted, err := s.store.Conversion().Delete(ctx, id, current.Version)
		if err != nil {
			return err
		}
		if !deleted {
			return store.ErrVersionConflict
		}

		switch current.Kind {
		case model.ConversionKindAccept:
			if offer.Status != model.OfferStatusConverting {
				return nil
			}
			offer.Status = model.OfferStatusPending
		case model.ConversionKindPublish:
			if offer.Status != model.OfferStatusConverting {
				return nil
			}
			offer.Status = model.OfferStatusDeclined
		case model.ConversionKindEscrow:
			offer.Status = model.OfferStatusCancelled
			if err := s.moveTask(ctx, *offer, model.TaskStatusOpen); err != nil {
				return err
			}
		}
		return s.casOffer(ctx, offer)
	})
}

// ForgetTransaction drops the transaction id of a conversion the ledger has no record of, so the
// next submission starts from the idempotency token alone.
func (s *OfferService) ForgetTransaction(ctx context.Context, conv *model.Conversion, cause error) error {
	next := *conv
	next.State = model.ConversionStateConverting
	next.TxID = ""
	next.LastError = cause.Error()
	if err := s.casConversion(ctx, conv.Version, &next); err != nil {
		return err
	}
	*conv = next

	zap.S().Named("offer_service").Warnw("ledger lost the conversion transaction", "offer_id", conv.ID, "kind", conv.Kind, "error", cause)
	return nil
}

// EscalateConversion parks a conversion for an operator. Nothing is decided on its behalf.
func (s *OfferService) EscalateConversion(ctx context.Context, id uuid.UUID, reason string) error {
	current, err := s.store.Conversion().Get(ctx, id)
	if err != nil {
		return err
	}
	if !current.InFlight() {
		return nil
	}

	next := *current
	next.State = model.ConversionStateEscalated
	next.LastError = reason
	if err := s.casConversion(ctx, current.Version, &next); err != nil {
		return err
	}

	metrics.IncreaseConversionEscalationsMetric(string(next.Kind))
	zap.S().Named("offer_service").Errorw("conversion escalated", "offer_id", id, "kind", next.Kind, "tx_id", next.TxID, "reason", reason)

	ev := events.ConversionEvent{
		OfferID:  id.String(),
		Kind:     string(next.Kind),
		State:    string(next.State),
		TxID:     next.TxID,
		Attempts: next.Attempts,
		Reason:   reason,
	}
	if err := s.producer.Publish(ctx, events.ConversionEscalatedKind, ev); err != nil {
		zap.S().Named("offer_service").Errorw("failed to write event", "error", err, "event_kind", events.ConversionEscalatedKind)
	}
	return nil
}

func (s *OfferService) ensureJob(ctx context.Context, job model.Job) (*model.Job, error) {
	existing, err := s.store.Job().GetByOfferID(ctx, job.OfferID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrRecordNotFound) {
		return nil, err
	}
	return s.store.Job().Create(ctx, job)
}

func (s *OfferService) findJob(ctx context.Context, offerID uuid.UUID) (*model.Job, error) {
	job, err := s.store.Job().GetByOfferID(ctx, offerID)
	if errors.Is(err, store.ErrRecordNotFound) {
		return nil, nil
	}
	return job, err
}

func (s *OfferService) casConversion(ctx context.Context, expectedVersion int64, conv *model.Conversion) error {
	ok, err := s.store.Conversion().CompareAndSwap(ctx, expectedVersion, conv)
	if err != nil {
		return err
	}
	if !ok {
		return store.ErrVersionConflict
	}
	return nil
}

func jobParams(kind model.ConversionKind, offer model.Offer, token string) ledger.JobParams {
	p := ledger.JobParams{
		Employer:         offer.Employer,
		Worker:           offer.Worker,
		Mode:             offer.Mode,
		PerPeriod:        offer.Amount,
		DurationWeeks:    offer.DurationWeeks,
		LockedValue:      offer.LockedValue,
		Fee:              offer.Fee,
		IdempotencyToken: token,
	}
	if kind == model.ConversionKindPublish {
		p.Worker = ""
	}
	return p
}

func committedEventKind(kind model.ConversionKind, offer model.Offer) string {
	switch kind {
	case model.ConversionKindAccept:
		return events.OfferAcceptedKind
	case model.ConversionKindEscrow:
		return events.OfferFundedKind
	case model.ConversionKindPublish:
		return events.OfferPublishedKind
	default:
		if offer.Status == model.OfferStatusCancelled {
			return events.OfferCancelledKind
		}
		return events.OfferRefundedKind
	}
}
