package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"toolcatalog/internal/catalog"
)

func TreeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Show customers with their applications, tools, inputs and outputs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")

			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			tree := s.Tree()
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(tree)
			}
			if len(tree) == 0 {
				fmt.Fprintln(out, "No customers yet.")
				return nil
			}
			printTree(cmd, tree)
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "print the tree as JSON")
	return cmd
}

func printTree(cmd *cobra.Command, tree []catalog.CustomerNode) {
	out := cmd.OutOrStdout()
	customer := color.New(color.FgCyan, color.Bold).SprintFunc()
	application := color.New(color.FgGreen).SprintFunc()
	tool := color.New(color.FgYellow).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	for _, c := range tree {
		fmt.Fprintf(out, "%s %s\n", customer(c.Name), dim(fmt.Sprintf("#%d", c.ID)))
		for _, a := range c.Applications {
			fmt.Fprintf(out, "  %s %s\n", application(a.Name), dim(fmt.Sprintf("#%d", a.ID)))
			for _, t := range a.Tools {
				endpoint := t.APIEndpoint
				if endpoint == "" {
					endpoint = "(no endpoint)"
				}
				fmt.Fprintf(out, "    %s %s %s\n", tool(t.Name), dim(fmt.Sprintf("#%d", t.ID)), endpoint)
				for _, in := range t.Inputs {
					line := fmt.Sprintf("      in  %s [%s] %s", in.Name, in.FieldType, dim(fmt.Sprintf("#%d", in.ID)))
					if len(in.Options) > 0 {
						labels := make([]string, len(in.Options))
						for i, o := range in.Options {
							labels[i] = fmt.Sprintf("%s=%s", o.Label, o.Value)
						}
						line += ": " + strings.Join(labels, ", ")
					}
					fmt.Fprintln(out, line)
				}
				for _, o := range t.Outputs {
					fmt.Fprintf(out, "      out %s %s = %s\n", o.Name, dim(fmt.Sprintf("#%d", o.ID)), formatValue(o.Value))
				}
			}
		}
	}
}

func CheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Report records whose parent no longer exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			out := cmd.OutOrStdout()
			if err := s.Err(); err != nil {
				fmt.Fprintf(out, "%s store error: %v\n", failMark, err)
			}
			orphans := s.Orphans()
			if len(orphans) == 0 {
				fmt.Fprintf(out, "%s No orphaned records\n", okMark)
				return nil
			}
			for _, o := range orphans {
				fmt.Fprintf(out, "%s %s %d points at missing parent %d\n", failMark, o.Kind, o.ID, o.ParentID)
			}
			return fmt.Errorf("found %d orphaned record(s)", len(orphans))
		},
	}
}
