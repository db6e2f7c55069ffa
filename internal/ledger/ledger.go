package ledger

import (
	"context"
	"errors"

	"github.com/taskbridge/marketplace/internal/payment"
	"github.com/taskbridge/marketplace/pkg/money"
)

var (
	// ErrRejected is a definitive refusal: the transaction never reached the chain.
	ErrRejected = errors.New("ledger rejected the transaction")
	// ErrTransactionFailed means the transaction was mined but reverted.
	ErrTransactionFailed  = errors.New("ledger transaction failed")
	ErrUnknownTransaction = errors.New("unknown transaction")
	// ErrUnavailable covers transport failures and timeouts. The outcome of the call is unknown.
	ErrUnavailable = errors.New("ledger unavailable")
)

type JobParams struct {
	Employer         string       `json:"employer"`
	Worker           string       `json:"worker"`
	Mode             payment.Mode `json:"mode"`
	PerPeriod        money.Amount `json:"per_period"`
	DurationWeeks    int64        `json:"duration_weeks"`
	LockedValue      money.Amount `json:"locked_value"`
	Fee              money.Amount `json:"fee"`
	IdempotencyToken string       `json:"idempotency_token"`
}

// FundingValue is the value sent along with the job creation transaction.
func (p JobParams) FundingValue() money.Amount {
	return p.LockedValue.Add(p.Fee)
}

type RefundRequest struct {
	LockedRef        string `json:"locked_ref"`
	Recipient        string `json:"recipient"`
	IdempotencyToken string `json:"idempotency_token"`
}

// Client submits funded-job and refund transactions and reports their confirmation.
type Client interface {
	CreateFundedJob(ctx context.Context, params JobParams) (txID string, err error)
	// Confirm reports whether txID is confirmed. A reverted transaction returns ErrTransactionFailed.
	Confirm(ctx context.Context, txID string) (confirmed bool, jobAddress string, err error)
	Refund(ctx context.Context, req RefundRequest) (txID string, err error)
}

// FeeSource is implemented by clients able to report the fee rate enforced on-chain.
type FeeSource interface {
	FeeBasisPoints(ctx context.Context) (int64, error)
}

// Idempotent is implemented by clients whose submissions are deduplicated by idempotency token.
type Idempotent interface {
	IdempotentSubmission() bool
}

// TokenResolver is implemented by clients able to find the transaction submitted for a token.
type TokenResolver interface {
	LookupToken(ctx context.Context, token string) (txID string, found bool, err error)
}

// RequiredFee is the fee the contract demands for a locked value. It splits the value into
// whole units of the denominator and a remainder so intermediate products stay small on-chain.
func RequiredFee(locked money.Amount, feeBps int64) money.Amount {
	den := payment.BasisPointsDenominator
	q := locked.MulDiv(1, den)
	r := locked.Sub(q.MulInt64(den))
	return q.MulInt64(feeBps).Add(r.MulDiv(feeBps, den))
}

func IsIdempotent(c Client) bool {
	i, ok := c.(Idempotent)
	return ok && i.IdempotentSubmission()
}
