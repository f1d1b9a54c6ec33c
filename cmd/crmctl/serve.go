package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/authstate"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/gateway"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/logger"
)

func serveCmd(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local gateway",
		Long: `Run a local HTTP gateway that owns the session for as long as it runs.

  GET  /session        current auth state
  POST /login          sign in
  POST /logout         sign out
  GET  /app/...        routes that require a signed-in user
  GET  /metrics        Prometheus metrics`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := newRuntime(ctx, opts, os.Stderr)
			if err != nil {
				return err
			}
			defer rt.close()

			if addr == "" {
				addr = rt.cfg.GatewayAddr
			}

			rt.provider.OnChange(func(st authstate.AuthState) {
				rt.log.Info("auth state changed", "status", st.Status.String(), "notice", st.Notice)
			})

			if rt.relay != nil {
				go func() {
					if err := rt.relay.Run(ctx); err != nil {
						rt.log.Error("relay stopped", "error", err)
					}
				}()
			}

			app := gateway.New(rt.provider, rt.api, gateway.Options{
				Metrics: rt.metrics,
				Logger:  logger.With("gateway"),
			})

			// Restore in the background so guarded routes answer 503 while it runs
			go func() {
				if err := rt.start(ctx, false); err != nil {
					rt.log.Error("failed to start auth provider", "error", err)
				}
			}()

			go func() {
				rt.log.Info("gateway starting", "addr", addr)
				if err := app.Listen(addr); err != nil {
					rt.log.Error("gateway failed", "error", err)
					stop()
				}
			}()

			<-ctx.Done()
			rt.log.Info("shutting down gateway")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return app.ShutdownWithContext(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}
