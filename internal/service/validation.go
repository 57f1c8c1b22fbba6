package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/openrecords-api/internal/dto"
	"github.com/noah-isme/openrecords-api/internal/models"
	appErrors "github.com/noah-isme/openrecords-api/pkg/errors"
)

// NewValidator returns a validator with the workflow tags registered.
func NewValidator() *validator.Validate {
	v := validator.New()
	registerWorkflowValidations(v)
	return v
}

func registerWorkflowValidations(v *validator.Validate) {
	_ = v.RegisterValidation("submission_method", func(fl validator.FieldLevel) bool {
		return models.SubmissionMethod(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("privacy", func(fl validator.FieldLevel) bool {
		return models.ResponsePrivacy(fl.Field().String()).Valid()
	})
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s:%s", strings.ToLower(fe.Field()), fe.Tag()))
		}
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload: "+strings.Join(fields, ", "))
	}
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
}

func parseDate(raw string) (time.Time, error) {
	t, err := time.Parse(dto.DateLayout, raw)
	if err != nil {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "date must use YYYY-MM-DD")
	}
	return t, nil
}

func privacyOrDefault(raw string, fallback models.ResponsePrivacy) models.ResponsePrivacy {
	if raw == "" {
		return fallback
	}
	return models.ResponsePrivacy(raw)
}
