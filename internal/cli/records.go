package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"toolcatalog/internal/entitystore"
	"toolcatalog/internal/model"
)

func ListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <resource>",
		Short: "List the records of one resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := resolveKind(args[0])
			if err != nil {
				return err
			}
			var parent *int64
			if cmd.Flags().Changed("parent") {
				id, _ := cmd.Flags().GetInt64("parent")
				parent = &id
			}

			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			switch kind.Resource {
			case model.CustomerKind.Resource:
				printRecords(w, s.Customers, parent, func(model.Customer) string { return "" })
			case model.ApplicationKind.Resource:
				printRecords(w, s.Applications, parent, func(model.Application) string { return "" })
			case model.ToolKind.Resource:
				printRecords(w, s.Tools, parent, func(t model.Tool) string { return t.APIEndpoint })
			case model.ToolInputKind.Resource:
				printRecords(w, s.ToolInputs, parent, func(i model.ToolInput) string {
					return fmt.Sprintf("%s %q", i.FieldType, i.Label)
				})
			case model.ToolOutputKind.Resource:
				printRecords(w, s.ToolOutputs, parent, func(o model.ToolOutput) string {
					return fmt.Sprintf("%s %s", o.FieldType, formatValue(o.Value))
				})
			case model.InputOptionKind.Resource:
				printRecords(w, s.InputOptions, parent, func(o model.InputOption) string { return o.Value })
			}
			return w.Flush()
		},
	}
	cmd.Flags().Int64("parent", 0, "only list children of this parent id")
	return cmd
}

func printRecords[T model.Record[T], P model.Patch[T]](w io.Writer, store *entitystore.Store[T, P], parent *int64, detail func(T) string) {
	items := store.Items()
	if parent != nil {
		items = store.ChildrenOf(*parent)
	}
	fmt.Fprintln(w, "ID\tPARENT\tNAME\tDETAIL")
	for _, item := range items {
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\n", item.RecordID(), item.ParentID(), item.Title(), detail(item))
	}
}

func formatValue(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "-"
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	return string(raw)
}

// fieldFlags are shared by add and edit.
func fieldFlags(cmd *cobra.Command) {
	cmd.Flags().String("name", "", "record name (label for input options)")
	cmd.Flags().String("endpoint", "", "tool API endpoint")
	cmd.Flags().String("label", "", "input label")
	cmd.Flags().String("placeholder", "", "input placeholder")
	cmd.Flags().String("type", "", "input field type: text, number or select")
	cmd.Flags().String("value", "", "option value or output value (JSON or plain text)")
}

func parseInputType(name string) (model.InputFieldType, error) {
	for _, option := range model.InputFieldTypeOptions() {
		if strings.EqualFold(name, option.Label) {
			return model.InputFieldType(option.Value), nil
		}
	}
	return 0, fmt.Errorf("invalid field type: %s\nValid types: text, number, select", name)
}

// outputValue keeps valid JSON as is and quotes anything else.
func outputValue(value string) json.RawMessage {
	if json.Valid([]byte(value)) {
		return json.RawMessage(value)
	}
	raw, _ := json.Marshal(value)
	return raw
}

func AddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <resource> <name>",
		Short: "Add a record",
		Long: `Add a record under --parent.

Examples:
  catalogctl add customers Acme
  catalogctl add applications Portal --parent 1
  catalogctl add tools Invoice --parent 10 --endpoint https://example.com/invoice
  catalogctl add tool-inputs amount --parent 100 --type number --label Amount`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := resolveKind(args[0])
			if err != nil {
				return err
			}
			name := args[1]
			flags := cmd.Flags()
			parent, _ := flags.GetInt64("parent")
			if kind != model.CustomerKind && !flags.Changed("parent") {
				return fmt.Errorf("adding a %s requires --parent", kind.Name)
			}
			endpoint, _ := flags.GetString("endpoint")
			label, _ := flags.GetString("label")
			placeholder, _ := flags.GetString("placeholder")
			typeName, _ := flags.GetString("type")
			value, _ := flags.GetString("value")

			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			var id int64
			switch kind {
			case model.CustomerKind:
				id, err = add(s, s.Customers, model.Customer{Name: name})
			case model.ApplicationKind:
				id, err = add(s, s.Applications, model.Application{CustomerID: parent, Name: name})
			case model.ToolKind:
				id, err = add(s, s.Tools, model.Tool{ApplicationID: parent, Name: name, APIEndpoint: endpoint})
			case model.ToolInputKind:
				fieldType := model.InputText
				if typeName != "" {
					if fieldType, err = parseInputType(typeName); err != nil {
						return err
					}
				}
				if label == "" {
					label = name
				}
				id, err = add(s, s.ToolInputs, model.ToolInput{
					ToolID: parent, Name: name, Label: label, Placeholder: placeholder, FieldType: fieldType,
				})
			case model.ToolOutputKind:
				output := model.ToolOutput{ToolID: parent, Name: name, FieldType: model.OutputText}
				if flags.Changed("value") {
					output.Value = outputValue(value)
				}
				id, err = add(s, s.ToolOutputs, output)
			case model.InputOptionKind:
				if value == "" {
					value = name
				}
				id, err = add(s, s.InputOptions, model.InputOption{InputID: parent, Label: name, Value: value})
			}
			if err != nil {
				return fmt.Errorf("failed to add %s: %w", kind.Name, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Added %s %d: %s\n", okMark, kind.Name, id, name)
			return nil
		},
	}
	fieldFlags(cmd)
	cmd.Flags().Int64("parent", 0, "parent record id")
	return cmd
}

// add submits item, waits for the store and returns the id it was given.
func add[T model.Record[T], P model.Patch[T]](s *session, store *entitystore.Store[T, P], item T) (int64, error) {
	store.Add(item)
	if err := s.settle(); err != nil {
		return 0, err
	}
	items := store.Items()
	for i := len(items) - 1; i >= 0; i-- {
		if items[i].ParentID() == item.ParentID() && strings.EqualFold(strings.TrimSpace(items[i].Title()), strings.TrimSpace(item.Title())) {
			return items[i].RecordID(), nil
		}
	}
	return 0, fmt.Errorf("%s %q was not stored", store.Kind().Name, item.Title())
}

func EditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <resource> <id>",
		Short: "Change fields of a record",
		Long: `Change the fields given as flags. Fields without a flag keep their value.

Examples:
  catalogctl edit tools 100 --endpoint https://example.com/v2/invoice
  catalogctl edit tool-inputs 1000 --type select`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := resolveKind(args[0])
			if err != nil {
				return err
			}
			id, err := parseID(args[1])
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			str := func(name string) *string {
				if !flags.Changed(name) {
					return nil
				}
				v, _ := flags.GetString(name)
				return &v
			}
			name := str("name")

			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			switch kind {
			case model.CustomerKind:
				err = edit(s, s.Customers, id, model.CustomerPatch{Name: name})
			case model.ApplicationKind:
				err = edit(s, s.Applications, id, model.ApplicationPatch{Name: name})
			case model.ToolKind:
				err = edit(s, s.Tools, id, model.ToolPatch{Name: name, APIEndpoint: str("endpoint")})
			case model.ToolInputKind:
				patch := model.ToolInputPatch{Name: name, Label: str("label"), Placeholder: str("placeholder")}
				if typeName := str("type"); typeName != nil {
					fieldType, err := parseInputType(*typeName)
					if err != nil {
						return err
					}
					patch.FieldType = &fieldType
				}
				err = edit(s, s.ToolInputs, id, patch)
			case model.ToolOutputKind:
				patch := model.ToolOutputPatch{Name: name}
				if value := str("value"); value != nil {
					patch.Value = outputValue(*value)
				}
				err = edit(s, s.ToolOutputs, id, patch)
			case model.InputOptionKind:
				label := str("label")
				if label == nil {
					label = name
				}
				err = edit(s, s.InputOptions, id, model.InputOptionPatch{Label: label, Value: str("value")})
			}
			if err != nil {
				return fmt.Errorf("failed to edit %s %d: %w", kind.Name, id, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Updated %s %d\n", okMark, kind.Name, id)
			return nil
		},
	}
	fieldFlags(cmd)
	return cmd
}

func edit[T model.Record[T], P model.Patch[T]](s *session, store *entitystore.Store[T, P], id int64, patch P) error {
	if _, ok := store.Get(id); !ok {
		return fmt.Errorf("%s %d not found", store.Kind().Name, id)
	}
	store.Edit(id, patch)
	return s.settle()
}

func RemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <resource> <id>",
		Short: "Remove a record and everything below it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := resolveKind(args[0])
			if err != nil {
				return err
			}
			id, err := parseID(args[1])
			if err != nil {
				return err
			}

			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			before := s.Counts()
			switch kind {
			case model.CustomerKind:
				err = remove(s, s.Customers, id)
			case model.ApplicationKind:
				err = remove(s, s.Applications, id)
			case model.ToolKind:
				err = remove(s, s.Tools, id)
			case model.ToolInputKind:
				err = remove(s, s.ToolInputs, id)
			case model.ToolOutputKind:
				err = remove(s, s.ToolOutputs, id)
			case model.InputOptionKind:
				err = remove(s, s.InputOptions, id)
			}
			if err != nil {
				return fmt.Errorf("failed to remove %s %d: %w", kind.Name, id, err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s Removed %s %d\n", okMark, kind.Name, id)
			after := s.Counts()
			for _, k := range model.Kinds() {
				if gone := before[k.StorageKey] - after[k.StorageKey]; gone > 0 && k != kind {
					fmt.Fprintf(out, "  cascade: %d %s record(s)\n", gone, k.Name)
				}
			}
			return nil
		},
	}
}

func remove[T model.Record[T], P model.Patch[T]](s *session, store *entitystore.Store[T, P], id int64) error {
	if _, ok := store.Get(id); !ok {
		return fmt.Errorf("%s %d not found", store.Kind().Name, id)
	}
	store.Remove(id)
	return s.settle()
}
