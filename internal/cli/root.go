// Package cli implements the catalogctl commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"toolcatalog/internal/catalog"
	"toolcatalog/internal/config"
	"toolcatalog/internal/model"
)

var (
	okMark   = color.New(color.FgGreen).Sprint("✓")
	failMark = color.New(color.FgRed).Sprint("✗")
)

// NewRootCmd builds catalogctl with every subcommand attached.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "catalogctl",
		Short:         "Manage the customer / application / tool catalog",
		Long:          "catalogctl edits the tool catalog through a local key/value namespace or the REST server.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.String("backend", "", "catalog backend: local or remote (default from TOOLCATALOG_BACKEND)")
	flags.String("api-url", "", "REST server base URL for the remote backend")
	flags.String("token", "", "bearer token for the remote backend")
	flags.String("kv", "", "local key/value driver: memory, sqlite, redis or object")
	flags.String("sqlite-path", "", "sqlite file for the sqlite driver")
	flags.String("redis-url", "", "redis URL for the redis driver")
	flags.Duration("timeout", 30*time.Second, "how long to wait for the catalog")
	flags.BoolP("verbose", "v", false, "log store activity to stderr")

	rootCmd.AddCommand(TreeCmd())
	rootCmd.AddCommand(ListCmd())
	rootCmd.AddCommand(AddCmd())
	rootCmd.AddCommand(EditCmd())
	rootCmd.AddCommand(RemoveCmd())
	rootCmd.AddCommand(CheckCmd())
	rootCmd.AddCommand(RunCmd())
	rootCmd.AddCommand(PurgeCmd())
	rootCmd.AddCommand(TokenCmd())
	return rootCmd
}

// loadConfig reads the environment and applies the persistent flags on top.
func loadConfig(cmd *cobra.Command) config.Config {
	cfg := config.Load()
	flags := cmd.Flags()
	overrides := map[string]*string{
		"backend":     &cfg.Backend,
		"api-url":     &cfg.APIURL,
		"token":       &cfg.APIToken,
		"kv":          &cfg.KVDriver,
		"sqlite-path": &cfg.SQLitePath,
		"redis-url":   &cfg.RedisURL,
	}
	for name, target := range overrides {
		if flags.Changed(name) {
			*target, _ = flags.GetString(name)
		}
	}
	return cfg
}

func newLogger(cmd *cobra.Command) *log.Logger {
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		return log.New(cmd.ErrOrStderr(), "catalogctl ", log.LstdFlags)
	}
	return log.New(io.Discard, "", 0)
}

// session is an open catalog plus the deadline for the current command.
type session struct {
	*catalog.Catalog
	cfg    config.Config
	logger *log.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// openSession opens the catalog and waits for every store to load.
func openSession(cmd *cobra.Command) (*session, error) {
	cfg := loadConfig(cmd)
	logger := newLogger(cmd)
	timeout, _ := cmd.Flags().GetDuration("timeout")

	c, err := catalog.Open(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	s := &session{Catalog: c, cfg: cfg, logger: logger, ctx: ctx, cancel: cancel}
	if err := c.WaitLoaded(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return s, nil
}

// settle waits for queued work and reports the first store failure.
func (s *session) settle() error {
	if err := s.Settle(s.ctx); err != nil {
		return err
	}
	return s.Err()
}

func (s *session) Close() {
	if err := s.Catalog.Close(); err != nil {
		s.logger.Printf("close catalog: %v", err)
	}
	s.cancel()
}

// resolveKind accepts a resource segment ("tool-inputs") or the singular
// form ("tool-input").
func resolveKind(arg string) (model.Kind, error) {
	arg = strings.ToLower(strings.TrimSpace(arg))
	if kind, ok := model.KindByResource(arg); ok {
		return kind, nil
	}
	for _, kind := range model.Kinds() {
		if arg == strings.ReplaceAll(kind.Name, " ", "-") {
			return kind, nil
		}
	}
	names := make([]string, 0, len(model.Kinds()))
	for _, kind := range model.Kinds() {
		names = append(names, kind.Resource)
	}
	return model.Kind{}, fmt.Errorf("unknown resource %q\nValid resources: %s", arg, strings.Join(names, ", "))
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return id, nil
}
