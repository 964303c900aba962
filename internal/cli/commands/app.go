package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/declwidgets/declwidgets/internal/cli/config"
	"github.com/declwidgets/declwidgets/internal/cli/ui"
	"github.com/declwidgets/declwidgets/internal/install"
	"github.com/declwidgets/declwidgets/internal/kernel"
	"github.com/declwidgets/declwidgets/internal/serialize"
	"github.com/declwidgets/declwidgets/internal/store"
	"github.com/declwidgets/declwidgets/internal/web/websocket"
)

// loadConfig loads the file named by --config, printing a formatted failure
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprint(cmd.ErrOrStderr(), ui.ConfigError(err, noColor))
		return nil, err
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (store.Store, error) {
	return store.New(store.Config{
		Backend:   cfg.Store.Backend,
		Prefix:    cfg.Store.Prefix,
		RedisAddr: cfg.Store.RedisAddr,
		RedisDB:   cfg.Store.RedisDB,
	})
}

// openHistory opens the install history, creating the sqlite directory
func openHistory(ctx context.Context, cfg *config.Config) (*install.History, error) {
	if cfg.Install.DBDriver == install.DriverSQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.Install.DBDSN), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}
	return install.OpenHistory(ctx, cfg.Install.DBDriver, cfg.Install.DBDSN)
}

// newBower prepares the widgets directory and returns a bower runner in it
func newBower(cfg *config.Config) (*install.Bower, error) {
	if _, err := install.EnsureBowerRC(cfg.Widgets.Dir); err != nil {
		return nil, err
	}
	return install.NewBower(cfg.Widgets.Bower, cfg.Widgets.Dir), nil
}

// newQueue builds an install queue recording to history when it is set
func newQueue(installer install.Installer, history *install.History, logger *zap.Logger) *install.Queue {
	opts := []install.Option{install.WithLogger(logger.Named("install"))}
	if history != nil {
		opts = append(opts, install.WithRecorder(history))
	}
	return install.NewQueue(installer, opts...)
}

// newKernel wires a kernel from cfg. The kernel owns and closes the store,
// the history and the queue.
func newKernel(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*kernel.Kernel, error) {
	codec, err := websocket.CodecByName(cfg.Transport.Codec)
	if err != nil {
		return nil, err
	}

	st, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	bower, err := newBower(cfg)
	if err != nil {
		st.Close()
		return nil, err
	}

	history, err := openHistory(ctx, cfg)
	if err != nil {
		logger.Warn("install history unavailable", zap.Error(err))
		history = nil
	}

	kcfg := kernel.Config{
		Logger:          logger,
		Serializer:      serialize.Default(),
		Store:           st,
		Queue:           newQueue(bower, history, logger),
		Packages:        bower,
		History:         history,
		BaseURL:         cfg.Server.BaseURL,
		ComponentsDir:   install.ComponentsDir(cfg.Widgets.Dir),
		Limit:           cfg.Serialize.Limit,
		ReplayOnConnect: cfg.Channels.ReplayOnConnect,
		Codec:           codec,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		InstallRate:     cfg.Server.InstallRate,
		Profiling:       cfg.Server.Profiling,
	}
	if cfg.Server.TokenSecret != "" {
		kcfg.Auth = websocket.NewTokenAuth(cfg.Server.TokenSecret, 0).Handler()
	}

	return kernel.New(ctx, kcfg), nil
}
