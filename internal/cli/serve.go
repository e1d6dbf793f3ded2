package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/tyuo/internal/config"
	"github.com/roach88/tyuo/internal/service"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen string

	// Ready, when set, receives the bound address once the server accepts
	// connections (for testing with port 0).
	Ready chan<- net.Addr
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the JSON HTTP API until interrupted.

Endpoints: POST /speak, /learn, /ban, /unban, /drop; GET /healthz, /metrics.

Example:
  tyuo serve --listen :48100 --data-dir ./data
  tyuo serve --config tyuo.yaml --verbose`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (overrides config)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	s, err := openSession(opts.RootOptions, cmd, func(c *config.Config) {
		if opts.Listen != "" {
			c.Service.Listen = opts.Listen
		}
	})
	if err != nil {
		return err
	}
	defer s.Close()

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := service.New(s.engine, service.Options{
		Tokenizer:      s.tokenizer,
		RateLimitRPS:   s.cfg.Service.RateLimitRPS,
		RateLimitBurst: s.cfg.Service.RateLimitBurst,
		Logger:         s.logger,
		Metrics:        s.metrics,
	})
	srv := &http.Server{
		Handler:      svc.Handler(ctx),
		ReadTimeout:  s.cfg.Service.ReadTimeout,
		WriteTimeout: s.cfg.Service.WriteTimeout,
		ErrorLog:     zap.NewStdLog(s.logger),
	}

	ln, err := net.Listen("tcp", s.cfg.Service.Listen)
	if err != nil {
		return s.out.Fail("listen", err)
	}
	s.logger.Info("serving", zap.String("addr", ln.Addr().String()))
	if opts.Ready != nil {
		opts.Ready <- ln.Addr()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Service.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return s.out.Fail("serve", err)
	}
	s.logger.Info("server stopped")
	return nil
}
