package cli

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mmynk/cooper/internal/auth"
	"github.com/mmynk/cooper/internal/server"
	"github.com/mmynk/cooper/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server and the payment workers",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	app, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app.queue.Start()
	defer app.queue.Shutdown()
	if _, err := app.queue.Resume(ctx); err != nil {
		slog.Error("Failed to resume payment jobs", "error", err)
	}

	go app.orch.RunReconciler(ctx, cfg.Pipeline.ReconcileInterval, app.queue)

	orchCfg := cfg.OrchestratorConfig()
	handler := server.NewHandler(server.Deps{
		Store:         app.store,
		JWT:           auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		Authenticator: auth.NewPasswordAuthenticator(app.store),
		Gateway:       app.gateway,
		Settler:       app.orch,
		Queue:         app.queue,
		Intents: service.IntentOptions{
			Currency:          orchCfg.Currency,
			Type:              orchCfg.IntentType,
			SettlementMethod:  orchCfg.SettlementMethod,
			DestinationPrefix: orchCfg.DestinationPrefix,
		},
		Receipts:    app.archive,
		Metrics:     app.registry,
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	slog.Info("Cooper starting", "address", cfg.Server.Addr, "public_url", cfg.Server.PublicURL, "gateway", cfg.Gateway.BaseURL)
	if err := server.Run(ctx, cfg.Server.Addr, handler); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}
