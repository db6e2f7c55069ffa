package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/taskbridge/marketplace/internal/payment"
	"github.com/taskbridge/marketplace/pkg/money"
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

// Terminal reports whether no further transition is possible.
func (s OfferStatus) Terminal() bool {
	switch s {
	case OfferStatusAccepted, OfferStatusPublished, OfferStatusRefunded, OfferStatusCancelled:
		return true
	default:
		return false
	}
}

type Offer struct {
	ID            uuid.UUID    `json:"id" gorm:"primaryKey;type:uuid"`
	Version       int64        `json:"version" gorm:"not null;default:1"`
	TaskID        uuid.UUID    `json:"task_id" gorm:"type:uuid;not null;index"`
	Employer      string       `json:"employer" gorm:"not null;index"`
	Worker        string       `json:"worker" gorm:"not null;index"`
	Amount        money.Amount `json:"amount" gorm:"type:text;not null"`
	Mode          payment.Mode `json:"mode" gorm:"not null"`
	DurationWeeks int64        `json:"duration_weeks"`
	LockedValue   money.Amount `json:"locked_value" gorm:"type:text;not null"`
	Fee           money.Amount `json:"fee" gorm:"type:text;not null"`
	FeeBps        int64        `json:"fee_bps"`
	Status        OfferStatus  `json:"status" gorm:"not null;index"`
	EscrowAddress string       `json:"escrow_address,omitempty"`
	EscrowTxID    string       `json:"escrow_tx_id,omitempty"`
	JobAddress    string       `json:"job_address,omitempty"`
	DeclinedAt    *time.Time   `json:"declined_at,omitempty"`
	SurfacedAt    *time.Time   `json:"surfaced_at,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

type OfferList []Offer

func (o Offer) String() string {
	val, _ := json.Marshal(o)
	return string(val)
}

// Funded reports whether funds for the offer are already locked on the ledger.
func (o Offer) Funded() bool {
	return o.EscrowAddress != ""
}

func (o Offer) FundingValue() money.Amount {
	return o.LockedValue.Add(o.Fee)
}
