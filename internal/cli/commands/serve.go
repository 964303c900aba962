package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/declwidgets/declwidgets/internal/cli/ui"
	"github.com/declwidgets/declwidgets/internal/kernel"
	"github.com/declwidgets/declwidgets/internal/web/server"
)

var (
	servePort int
	serveDemo bool
)

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the widgets kernel server",
		Long: `Start the kernel HTTP server: the websocket comm transport, the package
install routes, the installed component files and the JSON-RPC endpoint.

Examples:
  declwidgets serve
  declwidgets serve --port 9000
  declwidgets serve --demo`,
		RunE: runServe,
	}

	cmd.Flags().IntVarP(&servePort, "port", "p", 8888, "Port to listen on (overrides server.port)")
	cmd.Flags().BoolVar(&serveDemo, "demo", false, "Register the example functions and channels")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = servePort
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	k, err := newKernel(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to start kernel: %w", err)
	}
	defer k.Close()

	if serveDemo {
		if err := kernel.RegisterDemo(ctx, k); err != nil {
			return fmt.Errorf("failed to register demo: %w", err)
		}
	}

	handler, err := k.Routes()
	if err != nil {
		return err
	}

	srv, err := server.New(server.DefaultConfig(cfg.Address(), handler), logger.Named("server"))
	if err != nil {
		return err
	}
	if err := srv.Listen(); err != nil {
		return err
	}

	k.Start()

	shutdown := server.NewGracefulShutdown(srv, 30*time.Second)
	shutdown.RegisterHook(func(_ context.Context) error {
		return k.Close()
	})

	out := cmd.OutOrStdout()
	color.New(color.FgGreen, color.Bold).Fprintf(out, "declwidgets serving on http://%s%s\n", srv.Addr(), cfg.Server.BaseURL)

	banner := ui.NewKeyValueTable(out, noColor)
	banner.AddRow("Codec", cfg.Transport.Codec)
	banner.AddRow("Store", cfg.Store.Backend)
	banner.AddRow("Replay", strconv.FormatBool(cfg.Channels.ReplayOnConnect))
	banner.AddRow("Auth", strconv.FormatBool(cfg.Server.TokenSecret != ""))
	banner.AddRow("Widgets", cfg.Widgets.Dir)
	banner.AddRow("Profiling", strconv.FormatBool(cfg.Server.Profiling))
	banner.AddRow("Demo", strconv.FormatBool(serveDemo))
	banner.Render()

	logger.Info("kernel started",
		zap.String("addr", srv.Addr()),
		zap.String("base_url", cfg.Server.BaseURL),
	)

	if err := shutdown.Run(ctx); err != nil {
		return err
	}
	color.New(color.FgCyan).Fprintln(out, "Server stopped gracefully")
	return nil
}
