package app

import (
	"errors"
	"fmt"
	"net/http"

	"toolcatalog/internal/model"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// invalid turns a model validation failure into a 422.
func invalid(err error) error {
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", verr.Error(), map[string]string{"field": verr.Field})
	}
	return err
}

func duplicateName(kind model.Kind, title string) *DomainError {
	return domainError(http.StatusConflict, "DUPLICATE_NAME",
		fmt.Sprintf("%s %q already exists", kind.Name, title), nil)
}

func missingParent(field string, id int64) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR",
		fmt.Sprintf("%s %d does not exist", field, id), map[string]string{"field": field})
}
