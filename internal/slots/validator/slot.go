package validator

import (
	"errors"
	"fmt"
	"strings"

	"licensedesk/pkg/logger"
	"licensedesk/pkg/model"

	"github.com/go-playground/validator/v10"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

type SlotValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewSlotValidator(log *logger.Logger) *SlotValidator {
	v := validator.New()
	v.RegisterStructValidation(validateSlotRules, model.Slot{})

	log.Info("Slot validator initialized successfully")

	return &SlotValidator{
		validate: v,
		logger:   log,
	}
}

// validateSlotRules holds the cross-field rules that tags cannot express.
func validateSlotRules(sl validator.StructLevel) {
	slot := sl.Current().Interface().(model.Slot)

	if slot.MaxCapacity > 1 && !slot.Kind.AllowsMultiCapacity() {
		sl.ReportError(slot.MaxCapacity, "max_capacity", "MaxCapacity", "single_capacity", "")
	}
	if slot.CurrentBookings > slot.Capacity() {
		sl.ReportError(slot.CurrentBookings, "current_bookings", "CurrentBookings", "lte_capacity", "")
	}
	if slot.StartTime != "" && slot.EndTime != "" && slot.EndTime <= slot.StartTime {
		sl.ReportError(slot.EndTime, "end_time", "EndTime", "after_start", "")
	}
	if slot.Price.IsNegative() {
		sl.ReportError(slot.Price.String(), "price", "Price", "non_negative", "")
	}

	switch slot.Kind {
	case model.KindAppointment:
		if strings.TrimSpace(slot.Location) == "" {
			sl.ReportError(slot.Location, "location", "Location", "required", "")
		}
	case model.KindVoucher:
		if strings.TrimSpace(slot.Authority) == "" {
			sl.ReportError(slot.Authority, "authority", "Authority", "required", "")
		}
	}
}

func (v *SlotValidator) Validate(slot *model.Slot) error {
	return v.check(v.validate.Struct(slot))
}

func (v *SlotValidator) ValidateFilter(filter *model.SlotFilter) error {
	if err := v.check(v.validate.Struct(filter)); err != nil {
		return err
	}
	if filter.DateFrom != "" && filter.DateTo != "" && filter.DateTo < filter.DateFrom {
		return ValidationErrors{{Field: "date_to", Message: "date_to must not be before date_from"}}
	}
	return nil
}

func (v *SlotValidator) check(err error) error {
	if err == nil {
		return nil
	}
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		return v.translateValidationErrors(validationErrs)
	}
	return err
}

func (v *SlotValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
		case "oneof":
			message = fmt.Sprintf("%s must be one of [%s]", err.Field(), err.Param())
		case "datetime":
			message = fmt.Sprintf("%s must match the layout %s", err.Field(), err.Param())
		case "single_capacity":
			message = "max_capacity greater than 1 is only supported for voucher slots"
		case "lte_capacity":
			message = "current_bookings cannot exceed max_capacity"
		case "after_start":
			message = "end_time must be after start_time"
		case "non_negative":
			message = "price cannot be negative"
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
