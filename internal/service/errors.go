package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	appErrors "github.com/noah-isme/sma-warning-api/pkg/errors"
)

// storeFailure keeps typed errors raised below the service and classifies anything else as an
// unavailable store.
func storeFailure(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return appErrors.Unavailable(err, message)
}

// validationFailure converts validator errors into a validation error listing each offending field.
func validationFailure(err error, message string) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
	}
	details := make([]appErrors.FieldDetail, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, appErrors.FieldDetail{Field: fieldPath(fe), Message: describeTag(fe)})
	}
	return appErrors.WithDetails(appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message), details...)
}

// fieldPath drops the root struct name: CreateRuleRequest.Conditions[0].Metric becomes conditions[0].metric.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.Index(ns, "."); idx >= 0 {
		ns = ns[idx+1:]
	}
	return strings.ToLower(ns)
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of %s", fe.Param())
	case "warning_metric":
		return "unknown metric"
	case "warning_operator":
		return "operator must be one of <, <=, >, >=, ==, !="
	case "warning_severity":
		return "severity must be one of low, medium, high, critical"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
