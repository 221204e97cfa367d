package cli

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"toolcatalog/internal/execute"
	"toolcatalog/internal/model"
)

func RunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <tool-id> [input=value ...]",
		Short: "Call a tool's endpoint with input values",
		Long: `Post the given input values to the tool's API endpoint and show the
outputs filled from its response. --save stores the new output values.

Example:
  catalogctl run 100 amount=12.5 currency=EUR --save`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			raw := make(map[string]string, len(args)-1)
			for _, arg := range args[1:] {
				name, value, ok := strings.Cut(arg, "=")
				if !ok || name == "" {
					return fmt.Errorf("invalid input %q, expected name=value", arg)
				}
				raw[name] = value
			}
			save, _ := cmd.Flags().GetBool("save")

			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			tool, ok := s.Tools.Get(id)
			if !ok {
				return fmt.Errorf("tool %d not found", id)
			}
			inputs := s.ToolInputs.ChildrenOf(id)
			for name := range raw {
				if !hasInput(inputs, name) {
					return fmt.Errorf("tool %d has no input %q", id, name)
				}
			}
			values, err := execute.InputValues(inputs, raw)
			if err != nil {
				return err
			}

			executor := execute.New(&http.Client{Timeout: s.cfg.APITimeout}, s.logger)
			executor.Run(s.ctx, tool, values)
			executor.Wait()
			state := executor.State()
			if state.Err != nil {
				return fmt.Errorf("failed to run %s: %w", tool.Name, state.Err)
			}

			current := s.ToolOutputs.ChildrenOf(id)
			filled := execute.Outputs(state.Response, current)
			out := cmd.OutOrStdout()
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "OUTPUT\tVALUE")
			for _, o := range filled {
				fmt.Fprintf(w, "%s\t%s\n", o.Name, formatValue(o.Value))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if !save {
				return nil
			}

			saved := 0
			for i, o := range filled {
				if bytes.Equal(o.Value, current[i].Value) {
					continue
				}
				// edits of one store run one at a time
				s.ToolOutputs.Edit(o.ID, model.ToolOutputPatch{Value: o.Value})
				if err := s.settle(); err != nil {
					return fmt.Errorf("failed to save output %s: %w", o.Name, err)
				}
				saved++
			}
			fmt.Fprintf(out, "%s Saved %d output value(s)\n", okMark, saved)
			return nil
		},
	}
	cmd.Flags().Bool("save", false, "store the returned output values")
	return cmd
}

func hasInput(inputs []model.ToolInput, name string) bool {
	for _, input := range inputs {
		if input.Name == name {
			return true
		}
	}
	return false
}
