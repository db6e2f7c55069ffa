package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

type ValidationRule struct {
	Rule func(v *validator.Validate)
}

// Validator is a wrapper around the actual validator
// It sets up the validator and extract the rule error message from the underlying error
type Validator struct {
	validator *validator.Validate
	rules     []ValidationRule
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	return &Validator{validator: v}
}

func (v *Validator) Register(rules ...ValidationRule) {
	for _, validationRule := range rules {
		validationRule.Rule(v.validator)
	}
	v.rules = append(v.rules, rules...)
}

// Struct validates s and flattens the failing fields into a single ErrInvalidRequest.
func (v *Validator) Struct(s any) error {
	return toRequestError(v.validator.Struct(s))
}

// Var validates a single value against a tag expression.
func (v *Validator) Var(field any, tag string) error {
	return toRequestError(v.validator.Var(field, tag))
}

func toRequestError(err error) error {
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Field() == "" {
			msgs = append(msgs, fmt.Sprintf("value fails %q", fe.Tag()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("field %s fails %q", fe.Field(), fe.Tag()))
	}
	return NewErrInvalidRequest("invalid request: %s", strings.Join(msgs, ", "))
}
