package validator

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

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

type BookingValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewBookingValidator(log *logger.Logger) *BookingValidator {
	v := validator.New()
	v.RegisterStructValidation(validateGuestContact, model.GuestContact{})

	log.Info("Booking validator initialized successfully")

	return &BookingValidator{
		validate: v,
		logger:   log,
	}
}

// validateGuestContact requires a guest to leave some way to reach them.
func validateGuestContact(sl validator.StructLevel) {
	guest := sl.Current().Interface().(model.GuestContact)
	if guest.Email == "" && guest.Phone == "" {
		sl.ReportError(guest.Email, "email", "Email", "email_or_phone", "")
	}
}

func (v *BookingValidator) Validate(booking *model.Booking) error {
	return v.check(booking)
}

func (v *BookingValidator) ValidateConfirm(req *model.ConfirmRequest) error {
	return v.check(req)
}

// ValidateReview checks the admin message length before anything else so an
// oversized message never reaches the store.
func (v *BookingValidator) ValidateReview(review *model.Review) error {
	if review.AdminMessage != nil && utf8.RuneCountInString(*review.AdminMessage) > model.MaxAdminMessageLength {
		return ValidationErrors{{
			Field:   "AdminMessage",
			Message: fmt.Sprintf("AdminMessage must be at most %d characters", model.MaxAdminMessageLength),
		}}
	}
	if review.Status == "" && review.AdminMessage == nil {
		return ValidationErrors{{
			Field:   "Status",
			Message: "Status or AdminMessage is required",
		}}
	}
	return v.check(review)
}

func (v *BookingValidator) ValidateExamBooking(booking *model.ExamBooking) error {
	return v.check(booking)
}

func (v *BookingValidator) ValidateExamCreate(req *model.ExamBookingCreate) error {
	return v.check(req)
}

func (v *BookingValidator) check(s any) error {
	if err := v.validate.Struct(s); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}
	return nil
}

func (v *BookingValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required", "required_without":
			message = fmt.Sprintf("%s is required", err.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s characters", err.Field(), err.Param())
		case "mongodb":
			message = fmt.Sprintf("%s must be a valid MongoDB ObjectID", err.Field())
		case "e164":
			message = fmt.Sprintf("%s must be in E.164 format (e.g., +923001234567)", err.Field())
		case "email":
			message = fmt.Sprintf("%s must be a valid email address", err.Field())
		case "url":
			message = fmt.Sprintf("%s must be a valid URL", err.Field())
		case "oneof":
			message = fmt.Sprintf("%s must be one of: %s", err.Field(), err.Param())
		case "email_or_phone":
			message = "guest contact needs an email or a phone number"
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
