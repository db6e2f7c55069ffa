package validator

import (
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/taskbridge/marketplace/internal/payment"
	"github.com/taskbridge/marketplace/pkg/money"
)

var (
	tagRegex   = regexp.MustCompile(`^[a-z0-9]([a-z0-9._-]*[a-z0-9])?$`)
	partyRegex = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
)

// amountValidator accepts a strictly positive integer in base units.
func amountValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}

	a, err := money.Parse(val)
	if err != nil {
		return false
	}
	return a.Sign() > 0
}

func paymentModeValidator(fl validator.FieldLevel) bool {
	val := fl.Field().String()
	_, err := payment.ParseMode(val)
	return err == nil
}

func tagValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	return len(val) <= 64 && tagRegex.MatchString(val)
}

func partyValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	return partyRegex.MatchString(val)
}
