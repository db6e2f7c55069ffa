package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/taskbridge/marketplace/internal/events"
	"github.com/taskbridge/marketplace/internal/store"
	"github.com/taskbridge/marketplace/internal/store/model"
	"github.com/taskbridge/marketplace/pkg/metrics"
	"go.uber.org/zap"
)

// ConvertToPublicJob publishes the value of a declined offer as a job any worker can take.
// The task returns to the open pool.
func (s *OfferService) ConvertToPublicJob(ctx context.Context, id uuid.UUID, employer string) (Outcome, error) {
	offer, err := s.GetOffer(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	if offer.Employer != employer {
		return Outcome{}, NewErrNotAuthorized(employer, "publish offer "+id.String())
	}
	if offer.Status != model.OfferStatusDeclined {
		if outcome, ok := s.inFlight(ctx, *offer, model.ConversionKindPublish); ok {
			return outcome, nil
		}
		return Outcome{}, NewErrOfferNotDeclined(id, offer.Status)
	}

	if s.FundsLockedAtOffer() {
		return s.publishFunded(ctx, *offer)
	}

	conv, err := s.markConverting(ctx, offer, model.ConversionKindPublish, model.OfferStatusConverting)
	if err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return s.reread(ctx, id, model.ConversionKindPublish, func(o model.Offer) error { return NewErrOfferNotDeclined(id, o.Status) })
		}
		return Outcome{}, err
	}

	zap.S().Named("offer_service").Infow("public job conversion started", "offer_id", id, "employer", employer)
	return s.runConversion(ctx, *conv, *offer)
}

// publishFunded opens the escrowed job of a declined offer to every worker. No ledger
// transaction is needed since the funds are already locked.
func (s *OfferService) publishFunded(ctx context.Context, offer model.Offer) (Outcome, error) {
	if !offer.Funded() {
		return Outcome{}, NewErrOfferNotFunded(offer.ID)
	}

	var job *model.Job
	err := store.InTransaction(ctx, s.store, func(ctx context.Context) error {
		current, err := s.store.Job().GetByOfferID(ctx, offer.ID)
		if err != nil {
			return err
		}
		current.Worker = ""
		current.Public = true
		if job, err = s.store.Job().Update(ctx, *current); err != nil {
			return err
		}

		offer.Status = model.OfferStatusPublished
		offer.JobAddress = offer.EscrowAddress
		if err := s.casOffer(ctx, &offer); err != nil {
			return err
		}
		return s.moveTask(ctx, offer, model.TaskStatusOpen)
	})
	if err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return Outcome{}, NewErrOfferNotDeclined(offer.ID, model.OfferStatusDeclined)
		}
		return Outcome{}, err
	}

	metrics.IncreaseOffersTotalMetric("published")
	zap.S().Named("offer_service").Infow("escrowed job published", "offer_id", offer.ID, "job_address", offer.JobAddress)
	s.publishOffer(ctx, events.OfferPublishedKind, offer)
	return committed(offer, job), nil
}

// CancelAndRefund returns the value of a declined offer to its employer. When the refund is not
// confirmed the returned error is ErrRefundFailed and the outcome tells whether the refund is
// still in flight.
func (s *OfferService) CancelAndRefund(ctx context.Context, id uuid.UUID, employer string) (Outcome, error) {
	offer, err := s.GetOffer(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	if offer.Employer != employer {
		return Outcome{}, NewErrNotAuthorized(employer, "refund offer "+id.String())
	}
	if offer.Status != model.OfferStatusDeclined {
		if outcome, ok := s.inFlight(ctx, *offer, model.ConversionKindRefund); ok {
			return refundOutcome(id, outcome)
		}
		return Outcome{}, NewErrOfferNotDeclined(id, offer.Status)
	}

	if !s.FundsLockedAtOffer() {
		return s.refundUnfunded(ctx, *offer)
	}
	if !offer.Funded() {
		return Outcome{}, NewErrOfferNotFunded(id)
	}

	outcome, err := s.startRefund(ctx, *offer)
	if err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return s.reread(ctx, id, model.ConversionKindRefund, func(o model.Offer) error { return NewErrOfferNotDeclined(id, o.Status) })
		}
		return outcome, NewErrRefundFailed(id, err)
	}
	return refundOutcome(id, outcome)
}

// refundOutcome reports a refund that is not committed as ErrRefundFailed, whether it was just
// started or is already running.
func refundOutcome(id uuid.UUID, outcome Outcome) (Outcome, error) {
	switch outcome.Status {
	case OutcomePending:
		return outcome, NewErrRefundFailed(id, nil)
	case OutcomeFailed:
		return outcome, NewErrRefundFailed(id, errors.New(outcome.Reason))
	}
	return outcome, nil
}

// refundUnfunded closes a declined offer whose value never left the employer.
func (s *OfferService) refundUnfunded(ctx context.Context, offer model.Offer) (Outcome, error) {
	err := store.InTransaction(ctx, s.store, func(ctx context.Context) error {
		offer.Status = model.OfferStatusRefunded
		if err := s.casOffer(ctx, &offer); err != nil {
			return err
		}
		return s.moveTask(ctx, offer, model.TaskStatusOpen)
	})
	if err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return Outcome{}, NewErrOfferNotDeclined(offer.ID, model.OfferStatusDeclined)
		}
		return Outcome{}, err
	}

	metrics.IncreaseOffersTotalMetric("refunded")
	zap.S().Named("offer_service").Infow("declined offer closed", "offer_id", offer.ID, "employer", offer.Employer)
	s.publishOffer(ctx, events.OfferRefundedKind, offer)
	return committed(offer, nil), nil
}
