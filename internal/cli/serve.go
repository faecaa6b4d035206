package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/scopeguard/internal/app"
	"github.com/ppiankov/scopeguard/internal/config"
	"github.com/ppiankov/scopeguard/internal/httpapi"
	"github.com/ppiankov/scopeguard/internal/ratelimit"
	"github.com/ppiankov/scopeguard/internal/server"
)

const shutdownTimeout = 15 * time.Second

var (
	serveAddr string
	servePort int
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "HTTP listen address (overrides http.addr)")
	serveCmd.Flags().IntVar(&servePort, "grpc-port", -1, "gRPC listen port, 0 disables (overrides grpc.port)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and gRPC scope-check APIs",
	Long: "Runs the guardian as a service. The HTTP API serves POST /api/ai/scope-check\n" +
		"for authenticated callers; the gRPC API serves scopeguard.v1.GuardianService.\n" +
		"Scope extensions, alert webhooks, redaction rules and rate limits hot-reload from the config file.\n" +
		"SIGINT or SIGTERM drains in-flight checks and transcript writes before exit.",
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveAddr != "" {
		cfg.HTTP.Addr = serveAddr
	}
	if servePort >= 0 {
		cfg.GRPC.Port = servePort
	}
	if cfg.HTTP.Addr == "" && cfg.GRPC.Port == 0 {
		return errors.New("nothing to serve: both http.addr and grpc.port are disabled")
	}

	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, app.Options{Logger: logger})
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("shutdown incomplete", zap.Error(err))
		}
	}()

	limiter := ratelimit.NewTracker(cfg.RateLimit)
	g, gctx := errgroup.WithContext(ctx)

	if cfg.HTTP.Addr != "" {
		secret := cfg.JWTSecret()
		if len(secret) == 0 {
			logger.Warn("no JWT secret configured, every scope-check request will be rejected",
				zap.String("env", cfg.HTTP.JWTSecretEnv))
		}
		httpSrv := &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           httpapi.NewHandler(a.Engine(), secret, logger.Named("http")).WithLimiter(limiter).Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		})
		fmt.Fprintf(os.Stderr, "scopeguard HTTP API listening on %s\n", cfg.HTTP.Addr)
	}

	if cfg.GRPC.Port > 0 {
		grpcSrv, err := server.New(a.Engine(), server.Config{Port: cfg.GRPC.Port}, logger.Named("grpc"))
		if err != nil {
			return err
		}
		g.Go(grpcSrv.Serve)
		g.Go(func() error {
			<-gctx.Done()
			grpcSrv.GracefulStop()
			return nil
		})
		fmt.Fprintf(os.Stderr, "scopeguard gRPC API listening on :%d\n", cfg.GRPC.Port)
	}

	apply := func(next *config.Config, hash string) error {
		limiter.SetLimits(next.RateLimit)
		return a.Apply(next, hash)
	}
	reloader, err := config.NewReloader(resolvedConfigPath(), apply, logger.Named("config"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: hot-reload disabled: %v\n", err)
	} else {
		g.Go(func() error { return reloader.Run(gctx) })
	}

	fmt.Fprintf(os.Stderr, "Config: %s (%s)\n\n", resolvedConfigPath(), cfgHash)

	err = g.Wait()
	fmt.Fprintln(os.Stderr, "\nShutting down scopeguard...")
	return err
}
