package api

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/punchamoorthee/minledger/internal/domain"
	"github.com/shopspring/decimal"
)

type createAccountRequest struct {
	Name           string          `json:"name" validate:"required,max=255"`
	InitialBalance decimal.Decimal `json:"initial_balance" validate:"nonnegative_decimal"`
}

type transferRequest struct {
	SenderAccountID   uuid.UUID       `json:"sender_account_id" validate:"required"`
	ReceiverAccountID uuid.UUID       `json:"receiver_account_id" validate:"required"`
	Amount            decimal.Decimal `json:"amount" validate:"positive_decimal"`
	Message           string          `json:"message" validate:"max=500"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

type balanceRequest struct {
	Balance decimal.Decimal `json:"balance" validate:"nonnegative_decimal"`
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
	validateErr  error
)

func newValidator() (*validator.Validate, error) {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	if err := v.RegisterValidation("positive_decimal", func(fl validator.FieldLevel) bool {
		d, ok := fl.Field().Interface().(decimal.Decimal)
		return ok && d.IsPositive()
	}); err != nil {
		return nil, fmt.Errorf("register positive_decimal: %w", err)
	}

	if err := v.RegisterValidation("nonnegative_decimal", func(fl validator.FieldLevel) bool {
		d, ok := fl.Field().Interface().(decimal.Decimal)
		return ok && !d.IsNegative()
	}); err != nil {
		return nil, fmt.Errorf("register nonnegative_decimal: %w", err)
	}

	return v, nil
}

// validateRequest checks the struct tags of a decoded request body. A rule
// violation is an invalid operation; the first failing field is reported.
func validateRequest(req any) error {
	validateOnce.Do(func() {
		validate, validateErr = newValidator()
	})
	if validateErr != nil {
		return validateErr
	}

	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return fmt.Errorf("%w: %s", domain.ErrInvalidOperation, describe(fe))
	}
	return fmt.Errorf("%w: %v", domain.ErrInvalidOperation, err)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("field '%s' is required", fe.Field())
	case "max":
		return fmt.Sprintf("field '%s' must be at most %s characters", fe.Field(), fe.Param())
	case "positive_decimal":
		return fmt.Sprintf("field '%s' must be a positive amount", fe.Field())
	case "nonnegative_decimal":
		return fmt.Sprintf("field '%s' must not be negative", fe.Field())
	default:
		return fmt.Sprintf("field '%s' failed '%s'", fe.Field(), fe.Tag())
	}
}
