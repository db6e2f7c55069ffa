package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/taskbridge/marketplace/internal/config"
	"github.com/taskbridge/marketplace/internal/events"
	"github.com/taskbridge/marketplace/internal/ledger"
	"github.com/taskbridge/marketplace/internal/payment"
	"github.com/taskbridge/marketplace/internal/service/mappers"
	"github.com/taskbridge/marketplace/internal/store"
	"github.com/taskbridge/marketplace/internal/store/model"
	"github.com/taskbridge/marketplace/pkg/metrics"
	"github.com/taskbridge/marketplace/pkg/money"
	"go.uber.org/zap"
)

type OfferService struct {
	store    store.Store
	ledger   ledger.Client
	producer *events.EventProducer
	cfg      *config.Config
}

func NewOfferService(store store.Store, ledgerClient ledger.Client, producer *events.EventProducer, cfg *config.Config) *OfferService {
	return &OfferService{
		store:    store,
		ledger:   ledgerClient,
		producer: producer,
		cfg:      cfg,
	}
}

// FundsLockedAtOffer reports whether offer values are escrowed when the offer is sent rather
// than when it is accepted.
func (s *OfferService) FundsLockedAtOffer() bool {
	return s.cfg.Ledger.FundsLockPoint == config.FundsLockAtOffer
}

// FeeBasisPoints returns the fee rate enforced by the ledger, or the configured rate when the
// ledger cannot report it.
func (s *OfferService) FeeBasisPoints(ctx context.Context) int64 {
	if src, ok := s.ledger.(ledger.FeeSource); ok {
		bps, err := src.FeeBasisPoints(ctx)
		if err == nil {
			return bps
		}
		zap.S().Named("offer_service").Warnw("failed to read fee rate from ledger, using configured rate", "error", err)
	}
	return s.cfg.Ledger.FeeBasisPoints
}

func (s *OfferService) Quote(ctx context.Context, amount money.Amount, mode payment.Mode, durationWeeks int64) (payment.Result, error) {
	return payment.Compute(amount, mode, durationWeeks, s.FeeBasisPoints(ctx))
}

// CreateOffer sends an offer for an open task. The task is reserved in the same transaction
// that records the offer, so concurrent offers on one task produce exactly one winner.
func (s *OfferService) CreateOffer(ctx context.Context, form mappers.OfferCreateForm) (Outcome, error) {
	task, err := s.store.Task().Get(ctx, form.TaskID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return Outcome{}, NewErrTaskNotFound(form.TaskID)
		}
		return Outcome{}, err
	}

	if task.Worker == form.Employer {
		return Outcome{}, NewErrNotAuthorized(form.Employer, "make an offer on own task "+task.ID.String())
	}
	switch task.Status {
	case model.TaskStatusOpen:
	case model.TaskStatusOffered:
		return Outcome{}, NewErrTaskAlreadyOffered(task.ID)
	default:
		return Outcome{}, NewErrTaskNotOpen(task.ID, task.Status)
	}

	result, err := payment.Compute(form.Amount, form.Mode, form.DurationWeeks, s.FeeBasisPoints(ctx))
	if err != nil {
		return Outcome{}, err
	}

	offer := form.ToOffer(*task, result)
	lockAtOffer := s.FundsLockedAtOffer()

	var conv *model.Conversion
	err = store.InTransaction(ctx, s.store, func(ctx context.Context) error {
		next := *task
		next.Status = model.TaskStatusOffered
		next.OfferID = &offer.ID
		ok, err := s.store.Task().CompareAndSwap(ctx, task.Version, &next)
		if err != nil {
			return err
		}
		if !ok {
			return NewErrTaskAlreadyOffered(task.ID)
		}

		created, err := s.store.Offer().Create(ctx, offer)
		if err != nil {
			return err
		}
		offer = *created

		if lockAtOffer {
			conv, err = s.store.Conversion().Create(ctx, model.Conversion{
				ID:    offer.ID,
				Kind:  model.ConversionKindEscrow,
				State: model.ConversionStateConverting,
			})
			return err
		}
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}

	metrics.IncreaseOffersTotalMetric("created")
	zap.S().Named("offer_service").Infow("offer created", "offer_id", offer.ID, "task_id", offer.TaskID, "employer", offer.Employer, "locked_value", offer.LockedValue, "fee", offer.Fee)
	s.publishOffer(ctx, events.OfferCreatedKind, offer)

	if !lockAtOffer {
		return committed(offer, nil), nil
	}
	return s.runConversion(ctx, *conv, offer)
}

// AcceptOffer turns a pending offer into a funded job on behalf of its worker.
func (s *OfferService) AcceptOffer(ctx context.Context, id uuid.UUID, worker string) (Outcome, error) {
	offer, err := s.GetOffer(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	if offer.Worker != worker {
		return Outcome{}, NewErrNotAuthorized(worker, "accept offer "+id.String())
	}
	if offer.Status != model.OfferStatusPending {
		if outcome, ok := s.inFlight(ctx, *offer, model.ConversionKindAccept); ok {
			return outcome, nil
		}
		return Outcome{}, NewErrOfferNotPending(id, offer.Status)
	}

	if s.FundsLockedAtOffer() {
		return s.acceptFunded(ctx, *offer)
	}

	conv, err := s.markConverting(ctx, offer, model.ConversionKindAccept, model.OfferStatusConverting)
	if err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return s.reread(ctx, id, model.ConversionKindAccept, func(o model.Offer) error { return NewErrOfferNotPending(id, o.Status) })
		}
		return Outcome{}, err
	}

	zap.S().Named("offer_service").Infow("offer acceptance started", "offer_id", id, "worker", worker)
	return s.runConversion(ctx, *conv, *offer)
}

// acceptFunded records the acceptance of an offer whose job already exists on the ledger.
func (s *OfferService) acceptFunded(ctx context.Context, offer model.Offer) (Outcome, error) {
	if !offer.Funded() {
		return Outcome{}, NewErrOfferNotFunded(offer.ID)
	}

	var job *model.Job
	err := store.InTransaction(ctx, s.store, func(ctx context.Context) error {
		offer.Status = model.OfferStatusAccepted
		offer.JobAddress = offer.EscrowAddress
		if err := s.casOffer(ctx, &offer); err != nil {
			return err
		}

		var err error
		if job, err = s.findJob(ctx, offer.ID); err != nil {
			return err
		}
		return s.moveTask(ctx, offer, model.TaskStatusConverted)
	})
	if err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return Outcome{}, NewErrOfferNotPending(offer.ID, model.OfferStatusPending)
		}
		return Outcome{}, err
	}

	metrics.IncreaseOffersTotalMetric("accepted")
	zap.S().Named("offer_service").Infow("funded offer accepted", "offer_id", offer.ID, "job_address", offer.JobAddress)
	s.publishOffer(ctx, events.OfferAcceptedKind, offer)
	return committed(offer, job), nil
}

// DeclineOffer records the refusal of the worker. The employer then chooses what happens to
// the offer value.
func (s *OfferService) DeclineOffer(ctx context.Context, id uuid.UUID, worker string) (*model.Offer, error) {
	offer, err := s.GetOffer(ctx, id)
	if err != nil {
		return nil, err
	}
	if offer.Worker != worker {
		return nil, NewErrNotAuthorized(worker, "decline offer "+id.String())
	}
	if offer.Status != model.OfferStatusPending {
		return nil, NewErrOfferNotPending(id, offer.Status)
	}

	now := s.now()
	offer.Status = model.OfferStatusDeclined
	offer.DeclinedAt = &now
	if err := s.casOffer(ctx, offer); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return nil, s.notPendingNow(ctx, id)
		}
		return nil, err
	}

	metrics.IncreaseOffersTotalMetric("declined")
	zap.S().Named("offer_service").Infow("offer declined", "offer_id", id, "worker", worker)
	s.publishOffer(ctx, events.OfferDeclinedKind, *offer)
	return offer, nil
}

// CancelOffer withdraws a pending offer on behalf of its employer. Escrowed funds are refunded.
func (s *OfferService) CancelOffer(ctx context.Context, id uuid.UUID, employer string) (Outcome, error) {
	offer, err := s.GetOffer(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	if offer.Employer != employer {
		return Outcome{}, NewErrNotAuthorized(employer, "cancel offer "+id.String())
	}
	if offer.Status != model.OfferStatusPending {
		if outcome, ok := s.inFlight(ctx, *offer, model.ConversionKindRefund); ok {
			return outcome, nil
		}
		return Outcome{}, NewErrOfferNotPending(id, offer.Status)
	}

	if s.FundsLockedAtOffer() {
		if offer.Funded() {
			return s.startRefund(ctx, *offer)
		}
		conv, err := s.store.Conversion().Get(ctx, id)
		if err != nil && !errors.Is(err, store.ErrRecordNotFound) {
			return Outcome{}, err
		}
		if conv != nil && conv.InFlight() {
			return Outcome{}, NewErrOfferNotFunded(id)
		}
	}

	err = store.InTransaction(ctx, s.store, func(ctx context.Context) error {
		offer.Status = model.OfferStatusCancelled
		if err := s.casOffer(ctx, offer); err != nil {
			return err
		}
		return s.moveTask(ctx, *offer, model.TaskStatusOpen)
	})
	if err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return Outcome{}, s.notPendingNow(ctx, id)
		}
		return Outcome{}, err
	}

	metrics.IncreaseOffersTotalMetric("cancelled")
	zap.S().Named("offer_service").Infow("offer cancelled", "offer_id", id, "employer", employer)
	s.publishOffer(ctx, events.OfferCancelledKind, *offer)
	return committed(*offer, nil), nil
}

func (s *OfferService) GetOffer(ctx context.Context, id uuid.UUID) (*model.Offer, error) {
	offer, err := s.store.Offer().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrOfferNotFound(id)
		}
		return nil, err
	}
	return offer, nil
}

// GetJob returns the funded job created for an offer.
func (s *OfferService) GetJob(ctx context.Context, offerID uuid.UUID) (*model.Job, error) {
	job, err := s.store.Job().GetByOfferID(ctx, offerID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrResourceNotFound(offerID, "job of offer")
		}
		return nil, err
	}
	return job, nil
}

// ListOffersFor returns the offers where party is the employer or the worker.
func (s *OfferService) ListOffersFor(ctx context.Context, party string, filter OfferFilter) ([]model.Offer, error) {
	storeFilter := store.NewOfferQueryFilter().ByParty(party)
	if len(filter.Statuses) > 0 {
		storeFilter = storeFilter.ByStatus(filter.Statuses...)
	}
	if filter.TaskID != nil {
		storeFilter = storeFilter.ByTaskID(*filter.TaskID)
	}

	offers := make([]model.Offer, 0)
	for offer, err := range s.store.Offer().Query(ctx, storeFilter) {
		if err != nil {
			return nil, err
		}
		offers = append(offers, offer)
		if filter.Limit > 0 && len(offers) == filter.Limit {
			break
		}
	}
	return offers, nil
}

// markConverting moves offer to status and records the conversion marker in one transaction.
func (s *OfferService) markConverting(ctx context.Context, offer *model.Offer, kind model.ConversionKind, status model.OfferStatus) (*model.Conversion, error) {
	var conv *model.Conversion
	err := store.InTransaction(ctx, s.store, func(ctx context.Context) error {
		offer.Status = status
		if err := s.casOffer(ctx, offer); err != nil {
			return err
		}

		var err error
		conv, err = s.store.Conversion().Create(ctx, model.Conversion{
			ID:    offer.ID,
			Kind:  kind,
			State: model.ConversionStateConverting,
		})
		return err
	})
	return conv, err
}

// startRefund reuses the escrow marker of a funded offer for the refund of its value.
func (s *OfferService) startRefund(ctx context.Context, offer model.Offer) (Outcome, error) {
	var conv model.Conversion
	err := store.InTransaction(ctx, s.store, func(ctx context.Context) error {
		current, err := s.store.Conversion().Get(ctx, offer.ID)
		if err != nil {
			return err
		}
		if current.Kind != model.ConversionKindEscrow || current.State != model.ConversionStateCommitted {
			return NewErrOfferNotFunded(offer.ID)
		}

		offer.Status = model.OfferStatusRefunding
		if err := s.casOffer(ctx, &offer); err != nil {
			return err
		}

		conv = *current
		conv.Kind = model.ConversionKindRefund
		conv.State = model.ConversionStateConverting
		conv.TxID = ""
		conv.Attempts = 0
		conv.LastError = ""
		conv.SubmittedAt = nil
		conv.ConfirmedAt = nil
		return s.casConversion(ctx, current.Version, &conv)
	})
	if err != nil {
		return Outcome{}, err
	}

	zap.S().Named("offer_service").Infow("refund started", "offer_id", offer.ID, "escrow_address", offer.EscrowAddress)
	return s.runConversion(ctx, conv, offer)
}

// inFlight reports the outcome of an operation of the given kind already running for offer.
func (s *OfferService) inFlight(ctx context.Context, offer model.Offer, kind model.ConversionKind) (Outcome, bool) {
	if offer.Status != model.OfferStatusConverting && offer.Status != model.OfferStatusRefunding {
		return Outcome{}, false
	}
	conv, err := s.store.Conversion().Get(ctx, offer.ID)
	if err != nil || conv.Kind != kind {
		return Outcome{}, false
	}
	if conv.State == model.ConversionStateEscalated {
		return failed(offer, conv.LastError), true
	}
	return pending(offer), true
}

// reread resolves a lost race: the winner may be the same operation, which is reported as in
// flight, otherwise conflict builds the error from the current state.
func (s *OfferService) reread(ctx context.Context, id uuid.UUID, kind model.ConversionKind, conflict func(model.Offer) error) (Outcome, error) {
	offer, err := s.GetOffer(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	if outcome, ok := s.inFlight(ctx, *offer, kind); ok {
		return outcome, nil
	}
	return Outcome{}, conflict(*offer)
}

func (s *OfferService) notPendingNow(ctx context.Context, id uuid.UUID) error {
	offer, err := s.GetOffer(ctx, id)
	if err != nil {
		return err
	}
	return NewErrOfferNotPending(id, offer.Status)
}

func (s *OfferService) now() time.Time {
	return time.Now().UTC()
}

func (s *OfferService) casOffer(ctx context.Context, offer *model.Offer) error {
	ok, err := s.store.Offer().CompareAndSwap(ctx, offer.Version, offer)
	if err != nil {
		return err
	}
	if !ok {
		return store.ErrVersionConflict
	}
	return nil
}

// moveTask sets the status of the task reserved by offer. A task already released or deleted
// is left alone.
func (s *OfferService) moveTask(ctx context.Context, offer model.Offer, status model.TaskStatus) error {
	task, err := s.store.Task().Get(ctx, offer.TaskID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if task.OfferID == nil || *task.OfferID != offer.ID {
		return nil
	}

	next := *task
	next.Status = status
	if status == model.TaskStatusOpen {
		next.OfferID = nil
	}
	ok, err := s.store.Task().CompareAndSwap(ctx, task.Version, &next)
	if err != nil {
		return err
	}
	if !ok {
		return store.ErrVersionConflict
	}
	return nil
}

func (s *OfferService) publishOffer(ctx context.Context, kind string, offer model.Offer) {
	ev := events.OfferEvent{
		OfferID:     offer.ID.String(),
		TaskID:      offer.TaskID.String(),
		Employer:    offer.Employer,
		Worker:      offer.Worker,
		Status:      string(offer.Status),
		LockedValue: offer.LockedValue.String(),
		Fee:         offer.Fee.String(),
		JobAddress:  offer.JobAddress,
		TxID:        offer.EscrowTxID,
	}
	if err := s.producer.Publish(ctx, kind, ev); err != nil {
		zap.S().Named("offer_service").Errorw("failed to write event", "error", err, "event_kind", kind)
	}
}
