package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"wbpulse/internal/types"
)

// Validator wraps go-playground/validator and translates tag failures into
// validation AppErrors suitable for API responses.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a Validator with struct tag validation enabled.
func NewValidator() *Validator {
	return &Validator{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Struct validates a request payload. Returns nil or a validation AppError
// listing the failing fields.
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return types.NewAppError(types.ErrCodeValidationInvalidBody, "invalid request payload", err)
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return types.NewAppError(types.ErrCodeValidationMissingField,
		"invalid fields: "+strings.Join(fields, ", "), err)
}
