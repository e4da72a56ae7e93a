package cli

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lu-zhengda/mailsweep/internal/server"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the classifier and list/rule management over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sess, err := openSession(ctx, false)
			if err != nil {
				return err
			}
			defer sess.Close()

			// Stats need an account; the rest of the API works without one.
			accountID, _ := resolveAccountID(ctx, sess.db, sess.cfg)
			if addr == "" {
				addr = sess.cfg.Server.Addr
			}

			srv := server.New(sess.db, server.Options{
				AccountID:              accountID,
				MinConfidence:          sess.cfg.Cleanup.MinConfidence,
				RulesOverrideAllowList: sess.cfg.Cleanup.RulesOverrideAllowList,
				Logger:                 newLoggerAt(slog.LevelInfo),
			})
			return srv.ListenAndServe(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	return cmd
}
