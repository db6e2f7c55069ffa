package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type ConversionKind string

const (
	// ConversionKindAccept funds the job of an accepted offer.
	ConversionKindAccept ConversionKind = "ACCEPT"
	// ConversionKindEscrow locks the offer value when the offer is sent.
	ConversionKindEscrow ConversionKind = "ESCROW"
	// ConversionKindPublish funds a public job for a declined offer.
	ConversionKindPublish ConversionKind = "PUBLISH"
	// ConversionKindRefund returns escrowed funds of a declined offer to the employer.
	ConversionKindRefund ConversionKind = "REFUND"
)

type ConversionState string

const (
	ConversionStateConverting ConversionState = "CONVERTING"
	ConversionStateSubmitted  ConversionState = "SUBMITTED"
	ConversionStateCommitted  ConversionState = "COMMITTED"
	ConversionStateEscalated  ConversionState = "ESCALATED"
)

// Conversion is the durable record of a ledger transaction requested for an offer.
// Its ID is the offer ID, which also serves as the idempotency token.
type Conversion struct {
	ID          uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid"`
	Version     int64           `json:"version" gorm:"not null;default:1"`
	Kind        ConversionKind  `json:"kind" gorm:"not null"`
	State       ConversionState `json:"state" gorm:"not null;index"`
	TxID        string          `json:"tx_id,omitempty"`
	JobAddress  string          `json:"job_address,omitempty"`
	Attempts    int             `json:"attempts"`
	LastError   string          `json:"last_error,omitempty"`
	SubmittedAt *time.Time      `json:"submitted_at,omitempty"`
	ConfirmedAt *time.Time      `json:"confirmed_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type ConversionList []Conversion

func (c Conversion) String() string {
	val, _ := json.Marshal(c)
	return string(val)
}

// Token is the idempotency token sent to the ledger. Refunds use their own namespace so they
// never collide with the job creation submitted for the same offer.
func (c Conversion) Token() string {
	if c.Kind == ConversionKindRefund {
		return "refund-" + c.ID.String()
	}
	return c.ID.String()
}

// InFlight reports whether the conversion still waits for a ledger outcome.
func (c Conversion) InFlight() bool {
	return c.State == ConversionStateConverting || c.State == ConversionStateSubmitted
}
