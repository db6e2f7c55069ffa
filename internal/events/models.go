package events

const (
	TaskCreatedKind         string = "marketplace.task.created"
	TaskDeletedKind         string = "marketplace.task.deleted"
	OfferCreatedKind        string = "marketplace.offer.created"
	OfferFundedKind         string = "marketplace.offer.funded"
	OfferAcceptedKind       string = "marketplace.offer.accepted"
	OfferDeclinedKind       string = "marketplace.offer.declined"
	OfferCancelledKind      string = "marketplace.offer.cancelled"
	OfferPublishedKind      string = "marketplace.offer.published"
	OfferRefundedKind       string = "marketplace.offer.refunded"
	DispositionSurfacedKind string = "marketplace.offer.disposition_pending"
	ConversionEscalatedKind string = "marketplace.conversion.escalated"
)

type TaskEvent struct {
	TaskID string   `json:"task_id"`
	Worker string   `json:"worker"`
	Status string   `json:"status"`
	Tags   []string `json:"tags,omitempty"`
}

type OfferEvent struct {
	OfferID     string `json:"offer_id"`
	TaskID      string `json:"task_id"`
	Employer    string `json:"employer"`
	Worker      string `json:"worker"`
	Status      string `json:"status"`
	LockedValue string `json:"locked_value"`
	Fee         string `json:"fee"`
	JobAddress  string `json:"job_address,omitempty"`
	TxID        string `json:"tx_id,omitempty"`
}

type ConversionEvent struct {
	OfferID  string `json:"offer_id"`
	Kind     string `json:"kind"`
	State    string `json:"state"`
	TxID     string `json:"tx_id,omitempty"`
	Attempts int    `json:"attempts"`
	Reason   string `json:"reason,omitempty"`
}

type DispositionEvent struct {
	OfferID       string `json:"offer_id"`
	Employer      string `json:"employer"`
	EscrowAddress string `json:"escrow_address"`
	LockedValue   string `json:"locked_value"`
	DeclinedAt    string `json:"declined_at"`
}
