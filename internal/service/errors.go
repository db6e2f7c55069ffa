package service

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/taskbridge/marketplace/internal/store/model"
)

type ErrResourceNotFound struct {
	error
}

func NewErrResourceNotFound(id uuid.UUID, resourceType string) *ErrResourceNotFound {
	return &ErrResourceNotFound{fmt.Errorf("%s %s not found", resourceType, id)}
}

func NewErrTaskNotFound(id uuid.UUID) *ErrResourceNotFound {
	return NewErrResourceNotFound(id, "task")
}

func NewErrOfferNotFound(id uuid.UUID) *ErrResourceNotFound {
	return NewErrResourceNotFound(id, "offer")
}

type ErrNotAuthorized struct {
	error
}

func NewErrNotAuthorized(party, action string) *ErrNotAuthorized {
	return &ErrNotAuthorized{fmt.Errorf("%s is not allowed to %s", party, action)}
}

type ErrTaskNotOpen struct {
	error
}

func NewErrTaskNotOpen(id uuid.UUID, status model.TaskStatus) *ErrTaskNotOpen {
	return &ErrTaskNotOpen{fmt.Errorf("task %s is not open: %s", id, status)}
}

type ErrTaskAlreadyOffered struct {
	error
}

func NewErrTaskAlreadyOffered(id uuid.UUID) *ErrTaskAlreadyOffered {
	return &ErrTaskAlreadyOffered{fmt.Errorf("task %s already has an outstanding offer", id)}
}

type ErrOfferNotPending struct {
	error
}

func NewErrOfferNotPending(id uuid.UUID, status model.OfferStatus) *ErrOfferNotPending {
	return &ErrOfferNotPending{fmt.Errorf("offer %s is not pending: %s", id, status)}
}

type ErrOfferNotDeclined struct {
	error
}

func NewErrOfferNotDeclined(id uuid.UUID, status model.OfferStatus) *ErrOfferNotDeclined {
	return &ErrOfferNotDeclined{fmt.Errorf("offer %s is not declined: %s", id, status)}
}

// ErrOfferNotFunded is returned while the funds of an offer are not locked on the ledger yet.
type ErrOfferNotFunded struct {
	error
}

func NewErrOfferNotFunded(id uuid.UUID) *ErrOfferNotFunded {
	return &ErrOfferNotFunded{fmt.Errorf("funds of offer %s are not locked yet", id)}
}

type ErrRefundFailed struct {
	error
}

func NewErrRefundFailed(id uuid.UUID, cause error) *ErrRefundFailed {
	if cause == nil {
		return &ErrRefundFailed{fmt.Errorf("refund of offer %s is not confirmed yet", id)}
	}
	return &ErrRefundFailed{fmt.Errorf("refund of offer %s failed: %w", id, cause)}
}

func (e *ErrRefundFailed) Unwrap() error {
	return e.error
}
