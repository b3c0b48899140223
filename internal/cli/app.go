package cli

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mmynk/cooper/internal/config"
	"github.com/mmynk/cooper/internal/gateway"
	"github.com/mmynk/cooper/internal/metrics"
	"github.com/mmynk/cooper/internal/pipeline"
	"github.com/mmynk/cooper/internal/receipts"
	"github.com/mmynk/cooper/internal/storage/sqlstore"
)

// app holds the long-lived collaborators shared by the commands.
type app struct {
	cfg      *config.Config
	store    *sqlstore.Store
	registry *prometheus.Registry
	gateway  *gateway.Client
	archive  *receipts.Archive
	orch     *pipeline.Orchestrator
	queue    *pipeline.Queue
}

func newApp(cfg *config.Config) (*app, error) {
	store, err := sqlstore.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	slog.Info("Storage initialized", "driver", cfg.Database.Driver)

	registry := metrics.NewRegistry()
	m := metrics.New(registry)

	gw := gateway.New(cfg.Gateway.BaseURL, cfg.Gateway.APIKey,
		gateway.WithTimeout(cfg.Gateway.Timeout),
		gateway.WithObserver(m),
	)

	var uploader receipts.Uploader
	if cfg.Receipts.CloudName != "" {
		cld, err := receipts.NewCloudinaryUploader(cfg.Receipts.CloudName, cfg.Receipts.APIKey, cfg.Receipts.APISecret, cfg.Receipts.Folder)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
		}
		uploader = cld
		slog.Info("Receipts mirrored to Cloudinary", "cloud", cfg.Receipts.CloudName, "folder", cfg.Receipts.Folder)
	}
	archive := receipts.NewArchive(store, cfg.Server.PublicURL, uploader)

	orch := pipeline.New(store, gw, archive, m, cfg.OrchestratorConfig())
	queue := pipeline.NewQueue(store, orch, cfg.Pipeline.Workers, cfg.Pipeline.QueueSize)

	return &app{
		cfg:      cfg,
		store:    store,
		registry: registry,
		gateway:  gw,
		archive:  archive,
		orch:     orch,
		queue:    queue,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}
