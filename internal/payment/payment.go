package payment

import (
	"errors"
	"fmt"

	"github.com/taskbridge/marketplace/pkg/money"
)

type Mode string

const (
	ModeWeekly Mode = "WEEKLY"
	ModeOneOff Mode = "ONE_OFF"

	DefaultFeeBasisPoints  int64 = 75
	BasisPointsDenominator int64 = 10000
)

var (
	ErrInvalidAmount   = errors.New("amount must be greater than zero")
	ErrInvalidDuration = errors.New("duration must be greater than zero for weekly payments")
	ErrInvalidMode     = errors.New("unknown payment mode")
	ErrInvalidFeeRate  = errors.New("fee rate must be between 0 and 10000 basis points")
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeWeekly, ModeOneOff:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

type Result struct {
	LockedValue money.Amount `json:"locked_value"`
	Fee         money.Amount `json:"fee"`
	FeeBps      int64        `json:"fee_bps"`
}

// FundingValue is what the employer remits: the locked value plus the platform fee.
func (r Result) FundingValue() money.Amount {
	return r.LockedValue.Add(r.Fee)
}

// Compute returns the value locked for an offer and the platform fee charged on it.
// The fee is truncated toward zero so it matches integer ledger arithmetic.
func Compute(amount money.Amount, mode Mode, durationWeeks int64, feeBps int64) (Result, error) {
	if amount.Sign() <= 0 {
		return Result{}, ErrInvalidAmount
	}
	if feeBps < 0 || feeBps > BasisPointsDenominator {
		return Result{}, ErrInvalidFeeRate
	}

	var locked money.Amount
	switch mode {
	case ModeWeekly:
		if durationWeeks <= 0 {
			return Result{}, ErrInvalidDuration
		}
		locked = amount.MulInt64(durationWeeks)
	case ModeOneOff:
		locked = amount
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	return Result{
		LockedValue: locked,
		Fee:         locked.MulDiv(feeBps, BasisPointsDenominator),
		FeeBps:      feeBps,
	}, nil
}
