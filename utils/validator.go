package utils

import (
	"errors"
	"strings"

	"econsensus/models"

	"github.com/badoux/checkmail"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("mailformat", func(fl validator.FieldLevel) bool {
		return checkmail.ValidateFormat(fl.Field().String()) == nil
	})
	_ = v.RegisterValidation("decisionstatus", func(fl validator.FieldLevel) bool {
		return models.IsValidStatus(fl.Field().String())
	})
	_ = v.RegisterValidation("rating", func(fl validator.FieldLevel) bool {
		return models.IsValidRating(int(fl.Field().Int()))
	})
	_ = v.RegisterValidation("notificationlevel", func(fl validator.FieldLevel) bool {
		return models.IsValidNotificationLevel(int(fl.Field().Int()))
	})
	return v
}

func ValidateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	// Format validation errors
	var messages []string
	for _, err := range validationErrors {
		field := strings.ToLower(err.Field())
		tag := err.Tag()
		param := err.Param()

		switch tag {
		case "required":
			messages = append(messages, field+" is required")
		case "min":
			messages = append(messages, field+" must be at least "+param+" characters")
		case "max":
			messages = append(messages, field+" must be at most "+param+" characters")
		case "email", "mailformat":
			messages = append(messages, field+" must be a valid email")
		case "decisionstatus":
			messages = append(messages, field+" must be one of "+strings.Join(models.Statuses, ", "))
		case "rating":
			messages = append(messages, field+" must be one of "+strings.Join(models.RatingNames, ", "))
		case "notificationlevel":
			messages = append(messages, field+" must be between 0 and 4")
		default:
			messages = append(messages, field+" is invalid")
		}
	}

	return errors.New(strings.Join(messages, ", "))
}
