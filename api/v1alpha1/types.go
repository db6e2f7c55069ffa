package v1alpha1

import (
	"time"

	"github.com/google/uuid"
)

type TaskStatus string

const (
	TaskStatusOpen      TaskStatus = "OPEN"
	TaskStatusOffered   TaskStatus = "OFFERED"
	TaskStatusConverted TaskStatus = "CONVERTED"
)

type OfferStatus string

const (
	OfferStatusPending    OfferStatus = "PENDING"
	OfferStatusConverting OfferStatus = "CONVERTING"
	OfferStatusAccepted   OfferStatus = "ACCEPTED"
	OfferStatusDeclined   OfferStatus = "DECLINED"
	OfferStatusPublished  OfferStatus = "PUBLISHED"
	OfferStatusRefunding  OfferStatus = "REFUNDING"
	OfferStatusRefunded   OfferStatus = "REFUNDED"
	OfferStatusCancelled  OfferStatus = "CANCELLED"
)

type PaymentMode string

const (
	PaymentModeWeekly PaymentMode = "WEEKLY"
	PaymentModeOneOff PaymentMode = "ONE_OFF"
)

type OutcomeStatus string

const (
	OutcomeStatusPending   OutcomeStatus = "PENDING"
	OutcomeStatusCommitted OutcomeStatus = "COMMITTED"
	OutcomeStatusFailed    OutcomeStatus = "FAILED"
)

// Amounts are decimal strings in ledger base units.

type Task struct {
	Id          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Tags        []string   `json:"tags"`
	Worker      string     `json:"worker"`
	Status      TaskStatus `json:"status"`
	OfferId     *uuid.UUID `json:"offer_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type TaskList []Task

type TaskCreate struct {
	Name        string   `json:"name" validate:"required,min=1,max=200"`
	Description string   `json:"description" validate:"max=4000"`
	Tags        []string `json:"tags" validate:"max=20,dive,tag"`
}

type Offer struct {
	Id            uuid.UUID   `json:"id"`
	TaskId        uuid.UUID   `json:"task_id"`
	Employer      string      `json:"employer"`
	Worker        string      `json:"worker"`
	Amount        string      `json:"amount"`
	Mode          PaymentMode `json:"mode"`
	DurationWeeks int64       `json:"duration_weeks,omitempty"`
	LockedValue   string      `json:"locked_value"`
	Fee           string      `json:"fee"`
	FundingValue  string      `json:"funding_value"`
	FeeBps        int64       `json:"fee_bps"`
	Status        OfferStatus `json:"status"`
	EscrowAddress string      `json:"escrow_address,omitempty"`
	JobAddress    string      `json:"job_address,omitempty"`
	DeclinedAt    *time.Time  `json:"declined_at,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}

type OfferList []Offer

type OfferCreate struct {
	Amount        string      `json:"amount" validate:"required,amount"`
	Mode          PaymentMode `json:"mode" validate:"required,payment_mode"`
	DurationWeeks int64       `json:"duration_weeks" validate:"required_if=Mode WEEKLY,gte=0,lte=520"`
}

type Job struct {
	Address       string      `json:"address"`
	OfferId       uuid.UUID   `json:"offer_id"`
	TaskId        uuid.UUID   `json:"task_id"`
	Employer      string      `json:"employer"`
	Worker        string      `json:"worker,omitempty"`
	Public        bool        `json:"public"`
	Mode          PaymentMode `json:"mode"`
	PerPeriod     string      `json:"per_period"`
	DurationWeeks int64       `json:"duration_weeks,omitempty"`
	LockedValue   string      `json:"locked_value"`
	Fee           string      `json:"fee"`
	TxId          string      `json:"tx_id"`
	RefundTxId    string      `json:"refund_tx_id,omitempty"`
}

// Outcome is the result of an operation that may involve a ledger transaction.
type Outcome struct {
	Status OutcomeStatus `json:"status"`
	Reason string        `json:"reason,omitempty"`
	Offer  Offer         `json:"offer"`
	Job    *Job          `json:"job,omitempty"`
}

type QuoteRequest struct {
	Amount        string      `json:"amount" validate:"required,amount"`
	Mode          PaymentMode `json:"mode" validate:"required,payment_mode"`
	DurationWeeks int64       `json:"duration_weeks" validate:"required_if=Mode WEEKLY,gte=0,lte=520"`
}

type Quote struct {
	LockedValue  string `json:"locked_value"`
	Fee          string `json:"fee"`
	FundingValue string `json:"funding_value"`
	FeeBps       int64  `json:"fee_bps"`
}

type Error struct {
	Message   string  `json:"message"`
	RequestId *string `json:"request_id,omitempty"`
}
