package commands

import (
	"context"
	"fmt"

	"github.com/fabnet/client/internal/logger"
	"github.com/fabnet/client/pkg/catalog"
	"github.com/fabnet/client/pkg/config"
	"github.com/fabnet/client/pkg/file"
	"github.com/fabnet/client/pkg/lock"
	"github.com/fabnet/client/pkg/metrics"
	"github.com/fabnet/client/pkg/transfer"
)

// app bundles every component a subcommand needs: a Catalog, a running
// transfer Manager, and a Store built on top of both. close tears them
// down in reverse construction order.
type app struct {
	cfg   *config.Config
	cat   *catalog.Catalog
	mgr   *transfer.Manager
	store *file.Store

	cancel context.CancelFunc
}

// openApp loads config from cfgFile (falling back to defaults if unset or
// missing), opens the catalog and gateway it names, and starts a transfer
// manager against them.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("fabnetctl: load config: %w", err)
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return nil, fmt.Errorf("fabnetctl: init logger: %w", err)
	}
	metrics.InitRegistry(cfg.Metrics.Enabled)

	gw, err := cfg.BuildGateway(ctx)
	if err != nil {
		return nil, fmt.Errorf("fabnetctl: build gateway: %w", err)
	}
	sec, err := cfg.BuildSecurity()
	if err != nil {
		return nil, fmt.Errorf("fabnetctl: build security manager: %w", err)
	}

	cat, err := catalog.Open(cfg.ToCatalogConfig())
	if err != nil {
		return nil, fmt.Errorf("fabnetctl: open catalog: %w", err)
	}

	mgr := transfer.NewManager(gw, sec, cfg.ToTransferConfig())
	mgr.SetExistenceCache(cfg.BuildExistenceCache())

	runCtx, cancel := context.WithCancel(ctx)
	mgr.Start(runCtx)

	registry := lock.NewRegistry()
	store := file.NewStore(cat, mgr, sec, registry, cfg.ToBlockConfig(), cfg.ToFileConfig())

	return &app{cfg: cfg, cat: cat, mgr: mgr, store: store, cancel: cancel}, nil
}

// close stops the transfer manager (draining its queues) and closes the
// catalog.
func (a *app) close() error {
	a.mgr.Stop()
	a.cancel()
	return a.cat.Close()
}
