package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"qualityline/internal/app"
	"qualityline/internal/logging"
	"qualityline/internal/metrics"
	"qualityline/internal/server"
)

func serveCmd() *cobra.Command {
	var addr, basePath string
	var legacyHeader, devLogin bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		Long:  "Serves the HTTP API, Prometheus metrics at /metrics and webhook deliveries. Requires QUALITYLINE_JWT_SECRET.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			e, conn, err := openEngine()
			if err != nil {
				return err
			}
			defer conn.Close()
			_, cfg, err := app.ResolveProjectAndConfig(ctx, e, viper.GetString("project"), viper.GetString("actor-id"))
			if err != nil {
				return err
			}
			e.Config = cfg
			e.Metrics = metrics.New()

			authCfg := server.AuthConfig{
				JWTSecret:              viper.GetString("jwt-secret"),
				AllowLegacyActorHeader: legacyHeader,
				DevLogin:               devLogin,
				Logger:                 logging.New("auth"),
			}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("QUALITYLINE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}

			if d := server.NewWebhookDispatcher(e); d != nil {
				go d.Run(ctx)
			}

			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			log := logging.New("serve")
			log.Info("listening", "addr", addr, "base_path", basePath, "project", cfg.Project.ID)
			fmt.Printf("Serving Qualityline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&legacyHeader, "allow-actor-header", false, "accept X-Actor-Id without a token (local use only)")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "enable POST /auth/dev/login")
	cmd.Flags().String("jwt-secret", "", "HS256 secret for bearer tokens (or QUALITYLINE_JWT_SECRET)")
	_ = viper.BindPFlag("jwt-secret", cmd.Flags().Lookup("jwt-secret"))
	return cmd
}
