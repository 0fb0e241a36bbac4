package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/azdo-client/internal/proxy"
	"github.com/spf13/cobra"
)

var proxyAddr string

var proxyCmd = &cobra.Command{
	Use:   "proxy",
	Short: "Run the HTTP pass-through",
	Long: `Run an HTTP server that forwards /azdo/{path} to {AZDO_ORG_URL}/{path}
through the rate-limited pipeline. /health, /ready and /metrics are served too.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := newSession(cmd.Context())
		if err != nil {
			return err
		}
		defer sess.close()

		addr := sess.cfg.ProxyAddr
		if proxyAddr != "" {
			addr = proxyAddr
		}
		srv := proxy.New(addr, sess.dispatcher, sess.registry)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	rootCmd.AddCommand(proxyCmd)
	proxyCmd.Flags().StringVar(&proxyAddr, "addr", "", "listen address (overrides PROXY_ADDR)")
}
