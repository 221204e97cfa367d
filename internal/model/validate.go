package model

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrDuplicateName is returned when a sibling already uses the same name.
var ErrDuplicateName = errors.New("name already in use")

// ValidationError reports one invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{Field: field, Message: "is required"}
	}
	return nil
}

func parent(field string, id int64) error {
	if id <= 0 {
		return &ValidationError{Field: field, Message: "must reference an existing record"}
	}
	return nil
}

func (c Customer) Validate() error {
	return required("name", c.Name)
}

func (a Application) Validate() error {
	if err := parent("customerId", a.CustomerID); err != nil {
		return err
	}
	return required("name", a.Name)
}

func (t Tool) Validate() error {
	if err := parent("applicationId", t.ApplicationID); err != nil {
		return err
	}
	if err := required("name", t.Name); err != nil {
		return err
	}
	if t.APIEndpoint != "" {
		u, err := url.ParseRequestURI(t.APIEndpoint)
		if err != nil || u.Host == "" {
			return &ValidationError{Field: "apiEndpoint", Message: "must be an absolute URL"}
		}
	}
	return nil
}

func (i ToolInput) Validate() error {
	if err := parent("toolId", i.ToolID); err != nil {
		return err
	}
	if err := required("name", i.Name); err != nil {
		return err
	}
	if !i.FieldType.Valid() {
		return &ValidationError{Field: "fieldType", Message: "is not a known input type"}
	}
	return nil
}

func (o ToolOutput) Validate() error {
	if err := parent("toolId", o.ToolID); err != nil {
		return err
	}
	if err := required("name", o.Name); err != nil {
		return err
	}
	if !o.FieldType.Valid() {
		return &ValidationError{Field: "fieldType", Message: "is not a known output type"}
	}
	return nil
}

func (o InputOption) Validate() error {
	if err := parent("inputId", o.InputID); err != nil {
		return err
	}
	return required("label", o.Label)
}

// DuplicateTitle reports whether another record under the same parent already
// uses candidate's title. Comparison ignores case and surrounding space.
func DuplicateTitle[T Record[T]](items []T, candidate T) bool {
	title := strings.TrimSpace(candidate.Title())
	for _, item := range items {
		if item.RecordID() == candidate.RecordID() || item.ParentID() != candidate.ParentID() {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(item.Title()), title) {
			return true
		}
	}
	return false
}

// NextID returns one more than the largest id in items, or 1 when empty.
func NextID[T Record[T]](items []T) int64 {
	var maxID int64
	for _, item := range items {
		if id := item.RecordID(); id > maxID {
			maxID = id
		}
	}
	return maxID + 1
}
