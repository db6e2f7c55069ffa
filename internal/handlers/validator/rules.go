package validator

import "github.com/go-playground/validator/v10"

func registerFn(tag string, fn func(fl validator.FieldLevel) bool) func(v *validator.Validate) {
	return func(v *validator.Validate) {
		_ = v.RegisterValidation(tag, fn)
	}
}

func NewTaskValidationRules() []ValidationRule {
	return []ValidationRule{
		{
			Rule: registerFn("tag", tagValidator),
		},
	}
}

func NewOfferValidationRules() []ValidationRule {
	return []ValidationRule{
		{
			Rule: registerFn("amount", amountValidator),
		},
		{
			Rule: registerFn("payment_mode", paymentModeValidator),
		},
	}
}

func NewPartyValidationRules() []ValidationRule {
	return []ValidationRule{
		{
			Rule: registerFn("party", partyValidator),
		},
	}
}
