package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/taskbridge/marketplace/internal/payment"
	"github.com/taskbridge/marketplace/pkg/money"
)

// Job caches the reference to a funded job confirmed on the ledger.
type Job struct {
	Address       string       `json:"address" gorm:"primaryKey"`
	OfferID       uuid.UUID    `json:"offer_id" gorm:"type:uuid;not null;uniqueIndex"`
	TaskID        uuid.UUID    `json:"task_id" gorm:"type:uuid;not null;index"`
	Employer      string       `json:"employer" gorm:"not null;index"`
	Worker        string       `json:"worker,omitempty" gorm:"index"`
	Public        bool         `json:"public"`
	Mode          payment.Mode `json:"mode" gorm:"not null"`
	PerPeriod     money.Amount `json:"per_period" gorm:"type:text;not null"`
	DurationWeeks int64        `json:"duration_weeks"`
	LockedValue   money.Amount `json:"locked_value" gorm:"type:text;not null"`
	Fee           money.Amount `json:"fee" gorm:"type:text;not null"`
	TxID          string       `json:"tx_id" gorm:"not null"`
	RefundTxID    string       `json:"refund_tx_id,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

type JobList []Job

func (j Job) String() string {
	val, _ := json.Marshal(j)
	return string(val)
}

func NewJobFromOffer(o Offer, address, txID string) Job {
	return Job{
		Address:       address,
		OfferID:       o.ID,
		TaskID:        o.TaskID,
		Employer:      o.Employer,
		Worker:        o.Worker,
		Mode:          o.Mode,
		PerPeriod:     o.Amount,
		DurationWeeks: o.DurationWeeks,
		LockedValue:   o.LockedValue,
		Fee:           o.Fee,
		TxID:          txID,
	}
}
