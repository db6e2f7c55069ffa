package service

import (
	"github.com/google/uuid"
	"github.com/taskbridge/marketplace/internal/store/model"
)

type OutcomeStatus string

const (
	// OutcomePending means the ledger outcome is not known yet. The reconciler owns the rest of
	// the operation and the caller should check back later.
	OutcomePending   OutcomeStatus = "PENDING"
	OutcomeCommitted OutcomeStatus = "COMMITTED"
	OutcomeFailed    OutcomeStatus = "FAILED"
)

// Outcome is returned by operations that may involve a ledger transaction.
type Outcome struct {
	Status OutcomeStatus
	Reason string
	Offer  model.Offer
	Job    *model.Job
}

func pending(offer model.Offer) Outcome {
	return Outcome{Status: OutcomePending, Offer: offer}
}

func committed(offer model.Offer, job *model.Job) Outcome {
	return Outcome{Status: OutcomeCommitted, Offer: offer, Job: job}
}

func failed(offer model.Offer, reason string) Outcome {
	return Outcome{Status: OutcomeFailed, Offer: offer, Reason: reason}
}

func (o Outcome) Pending() bool {
	return o.Status == OutcomePending
}

func (o Outcome) Committed() bool {
	return o.Status == OutcomeCommitted
}

type TaskFilter struct {
	Tag    string
	Worker string
	Limit  int
}

type OfferFilter struct {
	Statuses []model.OfferStatus
	TaskID   *uuid.UUID
	Limit    int
}
