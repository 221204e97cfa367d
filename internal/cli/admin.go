package cli

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"toolcatalog/internal/auth"
	"toolcatalog/internal/backend"
)

func PurgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge <parent-resource> <id> <child-resource>",
		Short: "Delete every child of a record on the REST server in one request",
		Long: `Delete all children of one kind below a parent record. Runs against the
REST server named by --api-url; local catalogs cascade through remove instead.

Example:
  catalogctl purge tools 100 tool-outputs`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			parent, err := resolveKind(args[0])
			if err != nil {
				return err
			}
			id, err := parseID(args[1])
			if err != nil {
				return err
			}
			child, err := resolveKind(args[2])
			if err != nil {
				return err
			}

			cfg := loadConfig(cmd)
			timeout, _ := cmd.Flags().GetDuration("timeout")
			client := backend.NewClient(cfg.APIURL, cfg.APIToken, &http.Client{Timeout: timeout})
			n, err := client.DeleteChildren(cmd.Context(), parent, id, child)
			if err != nil {
				return fmt.Errorf("failed to purge %s of %s %d: %w", child.Resource, parent.Name, id, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Deleted %d %s record(s)\n", okMark, n, child.Name)
			return nil
		},
	}
}

func TokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Admin key helpers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "hash <admin-key>",
		Short: "Print the bcrypt hash to put in TOOLCATALOG_ADMIN_KEY_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.HashAdminKey(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	})
	return cmd
}
