package cli

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"rawsql/internal/app"
	"rawsql/internal/server"
)

func newRewriteCmd(st *state) *cobra.Command {
	var binds map[string]string

	cmd := &cobra.Command{
		Use:   "rewrite [SQL]",
		Short: "Materialize the files a statement reads and print the rewritten SQL",
		Example: `  rawsql rewrite "SELECT * FROM 'sales.csv' WHERE amount > 10"
  echo "SELECT * FROM CSV('d.csv', sep=s)" | rawsql rewrite --bind s=';'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sql, err := readSQL(cmd, args)
			if err != nil {
				return err
			}
			a, err := st.openApp()
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			res, err := a.Rewrite(cmd.Context(), st.owner, sql, parseBindings(binds))
			if err != nil {
				return err
			}
			if st.output == "json" {
				return printJSON(cmd.OutOrStdout(), res)
			}
			renderRewrite(cmd.OutOrStdout(), res)
			return nil
		},
	}
	cmd.Flags().StringToStringVar(&binds, "bind", nil, "value for a bare name in call arguments (name=value, repeatable)")
	return cmd
}

func newQueryCmd(st *state) *cobra.Command {
	var binds map[string]string

	cmd := &cobra.Command{
		Use:   "query [SQL]",
		Short: "Rewrite a statement and run it against the materialized tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			sql, err := readSQL(cmd, args)
			if err != nil {
				return err
			}
			a, err := st.openApp()
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			res, err := a.Query(cmd.Context(), st.owner, sql, parseBindings(binds))
			if err != nil {
				var execErr *app.ExecutionError
				if errors.As(err, &execErr) {
					if st.cfg.ShortErrors {
						fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", execErr.Err)
						return errReported
					}
					return fmt.Errorf("%w\nrewritten SQL: %s", err, execErr.SQL)
				}
				return err
			}

			if st.output == "json" {
				return printJSON(cmd.OutOrStdout(), map[string]interface{}{
					"sql":       res.Rewrite.SQL,
					"columns":   res.Result.Columns,
					"rows":      res.Result.Rows,
					"truncated": res.Result.Truncated,
				})
			}
			renderResult(cmd.OutOrStdout(), res.Result)
			return nil
		},
	}
	cmd.Flags().StringToStringVar(&binds, "bind", nil, "value for a bare name in call arguments (name=value, repeatable)")
	return cmd
}

func newHistoryCmd(st *state) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent rewrites of the owner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive, got %d", limit)
			}
			a, err := st.openApp()
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			entries, err := a.History(cmd.Context(), st.owner, limit)
			if err != nil {
				return err
			}
			if st.output == "json" {
				return printJSON(cmd.OutOrStdout(), entries)
			}
			renderHistory(cmd.OutOrStdout(), entries)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of entries")
	return cmd
}

func newServeCmd(st *state) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the rewrite API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("addr") {
				st.cfg.ListenAddr = addr
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer cancel()
			return server.Run(ctx, st.cfg, st.logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address (default $LISTEN_ADDR)")
	return cmd
}
