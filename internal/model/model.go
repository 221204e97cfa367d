// Package model defines the catalog entities, their partial-update patches and
// the validation rules shared by the client stores and the REST server.
package model

import "encoding/json"

// Record is implemented by every catalog entity. Methods use value receivers
// so records can be copied freely between snapshots.
type Record[T any] interface {
	RecordID() int64
	ParentID() int64
	WithID(id int64) T
	Title() string
	Validate() error
}

// Patch merges a partial update into a record. Fields left nil keep their
// current value.
type Patch[T any] interface {
	Apply(T) T
}

// Kind names one entity collection in every place it is addressed.
type Kind struct {
	Name       string // singular, used in logs and errors
	StorageKey string // key of the JSON array in a key/value namespace
	Resource   string // REST resource segment
}

var (
	CustomerKind    = Kind{Name: "customer", StorageKey: "customers", Resource: "customers"}
	ApplicationKind = Kind{Name: "application", StorageKey: "applications", Resource: "applications"}
	ToolKind        = Kind{Name: "tool", StorageKey: "tools", Resource: "tools"}
	ToolInputKind   = Kind{Name: "tool input", StorageKey: "toolInputs", Resource: "tool-inputs"}
	ToolOutputKind  = Kind{Name: "tool output", StorageKey: "toolOutputs", Resource: "tool-outputs"}
	InputOptionKind = Kind{Name: "input option", StorageKey: "inputOptions", Resource: "input-options"}
)

// Kinds lists every collection, parents before children.
func Kinds() []Kind {
	return []Kind{CustomerKind, ApplicationKind, ToolKind, ToolInputKind, ToolOutputKind, InputOptionKind}
}

// KindByResource resolves a REST resource segment.
func KindByResource(resource string) (Kind, bool) {
	for _, kind := range Kinds() {
		if kind.Resource == resource {
			return kind, true
		}
	}
	return Kind{}, false
}

type Customer struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func (c Customer) RecordID() int64 { return c.ID }
func (c Customer) ParentID() int64 { return 0 }
func (c Customer) Title() string { return c.Name }
func (c Customer) WithID(id int64) Customer {
	c.ID = id
	return c
}

type CustomerPatch struct {
	Name *string `json:"name,omitempty"`
}

func (p CustomerPatch) Apply(c Customer) Customer {
	if p.Name != nil {
		c.Name = *p.Name
	}
	return c
}

type Application struct {
	ID         int64  `json:"id"`
	CustomerID int64  `json:"customerId"`
	Name       string `json:"name"`
}

func (a Application) RecordID() int64 { return a.ID }
func (a Application) ParentID() int64 { return a.CustomerID }
func (a Application) Title() string { return a.Name }
func (a Application) WithID(id int64) Application {
	a.ID = id
	return a
}

type ApplicationPatch struct {
	Name *string `json:"name,omitempty"`
}

func (p ApplicationPatch) Apply(a Application) Application {
	if p.Name != nil {
		a.Name = *p.Name
	}
	return a
}

type Tool struct {
	ID            int64  `json:"id"`
	ApplicationID int64  `json:"applicationId"`
	Name          string `json:"name"`
	APIEndpoint   string `json:"apiEndpoint"`
}

func (t Tool) RecordID() int64 { return t.ID }
func (t Tool) ParentID() int64 { return t.ApplicationID }
func (t Tool) Title() string { return t.Name }
func (t Tool) WithID(id int64) Tool {
	t.ID = id
	return t
}

type ToolPatch struct {
	Name        *string `json:"name,omitempty"`
	APIEndpoint *string `json:"apiEndpoint,omitempty"`
}

func (p ToolPatch) Apply(t Tool) Tool {
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.APIEndpoint != nil {
		t.APIEndpoint = *p.APIEndpoint
	}
	return t
}

type ToolInput struct {
	ID          int64          `json:"id"`
	ToolID      int64          `json:"toolId"`
	Name        string         `json:"name"`
	Label       string         `json:"label"`
	Placeholder string         `json:"placeholder"`
	FieldType   InputFieldType `json:"fieldType"`
}

func (i ToolInput) RecordID() int64 { return i.ID }
func (i ToolInput) ParentID() int64 { return i.ToolID }
func (i ToolInput) Title() string { return i.Name }
func (i ToolInput) WithID(id int64) ToolInput {
	i.ID = id
	return i
}

type ToolInputPatch struct {
	Name        *string         `json:"name,omitempty"`
	Label       *string         `json:"label,omitempty"`
	Placeholder *string         `json:"placeholder,omitempty"`
	FieldType   *InputFieldType `json:"fieldType,omitempty"`
}

func (p ToolInputPatch) Apply(i ToolInput) ToolInput {
	if p.Name != nil {
		i.Name = *p.Name
	}
	if p.Label != nil {
		i.Label = *p.Label
	}
	if p.Placeholder != nil {
		i.Placeholder = *p.Placeholder
	}
	if p.FieldType != nil {
		i.FieldType = *p.FieldType
	}
	return i
}

type ToolOutput struct {
	ID        int64           `json:"id"`
	ToolID    int64           `json:"toolId"`
	Name      string          `json:"name"`
	FieldType OutputFieldType `json:"fieldType"`
	Value     json.RawMessage `json:"value,omitempty"`
}

func (o ToolOutput) RecordID() int64 { return o.ID }
func (o ToolOutput) ParentID() int64 { return o.ToolID }
func (o ToolOutput) Title() string { return o.Name }
func (o ToolOutput) WithID(id int64) ToolOutput {
	o.ID = id
	return o
}

type ToolOutputPatch struct {
	Name      *string          `json:"name,omitempty"`
	FieldType *OutputFieldType `json:"fieldType,omitempty"`
	Value     json.RawMessage  `json:"value,omitempty"`
}

func (p ToolOutputPatch) Apply(o ToolOutput) ToolOutput {
	if p.Name != nil {
		o.Name = *p.Name
	}
	if p.FieldType != nil {
		o.FieldType = *p.FieldType
	}
	if p.Value != nil {
		o.Value = append(json.RawMessage(nil), p.Value...)
	}
	return o
}

type InputOption struct {
	ID      int64  `json:"id"`
	InputID int64  `json:"inputId"`
	Label   string `json:"label"`
	Value   string `json:"value"`
}

func (o InputOption) RecordID() int64 { return o.ID }
func (o InputOption) ParentID() int64 { return o.InputID }
func (o InputOption) Title() string { return o.Label }
func (o InputOption) WithID(id int64) InputOption {
	o.ID = id
	return o
}

type InputOptionPatch struct {
	Label *string `json:"label,omitempty"`
	Value *string `json:"value,omitempty"`
}

func (p InputOptionPatch) Apply(o InputOption) InputOption {
	if p.Label != nil {
		o.Label = *p.Label
	}
	if p.Value != nil {
		o.Value = *p.Value
	}
	return o
}

// Ptr returns a pointer to v. Handy for building patches.
func Ptr[T any](v T) *T {
	return &v
}
