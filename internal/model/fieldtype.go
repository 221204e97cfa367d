package model

import "fmt"

// InputFieldType selects the form control rendered for a tool input.
type InputFieldType int

const (
	InputText   InputFieldType = 1
	InputNumber InputFieldType = 2
	InputSelect InputFieldType = 3
)

var inputFieldTypeNames = map[InputFieldType]string{
	InputText:   "Text",
	InputNumber: "Number",
	InputSelect: "Select",
}

func (t InputFieldType) String() string {
	if name, ok := inputFieldTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("InputFieldType(%d)", int(t))
}

func (t InputFieldType) Valid() bool {
	_, ok := inputFieldTypeNames[t]
	return ok
}

// OutputFieldType describes how a tool output value is displayed.
type OutputFieldType int

const (
	OutputText OutputFieldType = 0
)

var outputFieldTypeNames = map[OutputFieldType]string{
	OutputText: "Text",
}

func (t OutputFieldType) String() string {
	if name, ok := outputFieldTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("OutputFieldType(%d)", int(t))
}

func (t OutputFieldType) Valid() bool {
	_, ok := outputFieldTypeNames[t]
	return ok
}

// SelectOption is a value/label pair for rendering an enum as a select list.
type SelectOption struct {
	Value int    `json:"value"`
	Label string `json:"label"`
}

// InputFieldTypeOptions returns the input field types in declaration order.
func InputFieldTypeOptions() []SelectOption {
	return []SelectOption{
		{Value: int(InputText), Label: InputText.String()},
		{Value: int(InputNumber), Label: InputNumber.String()},
		{Value: int(InputSelect), Label: InputSelect.String()},
	}
}

func OutputFieldTypeOptions() []SelectOption {
	return []SelectOption{
		{Value: int(OutputText), Label: OutputText.String()},
	}
}
