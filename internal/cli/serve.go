package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-formruntime/internal/devserver"
	"github.com/goliatone/go-formruntime/pkg/layout"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	LayoutDir string
	Listen    string
	DataFile  string

	// Ready is called once the server listens (for testing).
	Ready func(addr net.Addr)
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return newServeCommand(&ServeOptions{RootOptions: rootOpts})
}

func newServeCommand(opts *ServeOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [layout-dir]",
		Short: "Serve a layout directory over the backend API",
		Long: `Serve the pages of a layout directory through the same HTTP API an
application backend exposes, backed by an in-memory store. Point
"formrt fill --base-url" or any other client at the printed address.

Example:
  formrt serve ./layouts --listen 127.0.0.1:7391`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.LayoutDir = args[0]
			}
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "address to listen on (default 127.0.0.1:7391)")
	cmd.Flags().StringVar(&opts.DataFile, "data", "", "JSON document seeding the form data")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg := opts.Config
	overrideString(&cfg.LayoutDir, opts.LayoutDir)
	overrideString(&cfg.Listen, opts.Listen)
	overrideString(&cfg.DataFile, opts.DataFile)
	if cfg.Listen == "" {
		cfg.Listen = "127.0.0.1:7391"
	}
	logger := opts.logger()
	out := cmd.OutOrStdout()

	local, err := loadLocalForm(cfg.LayoutDir, cfg.DataFile, cfg.AppID, cfg.PartyID, layout.NewKinds())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load layouts", err)
	}
	srv, err := devserver.New(local.backend(), devserver.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitFailure, "failed to create server", err)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	ready := func(addr net.Addr) {
		fmt.Fprintln(out, titleStyle.Render("Serving "+cfg.LayoutDir))
		fmt.Fprintln(out, field("base URL", "http://"+addr.String()))
		fmt.Fprintln(out, field("instance", local.instance.ID))
		fmt.Fprintln(out, field("data element", local.key.DataElementID))
		if opts.Ready != nil {
			opts.Ready(addr)
		}
	}

	err = srv.ListenAndServe(ctx, cfg.Listen, ready)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return WrapExitError(ExitFailure, "server failed", err)
	}
	return nil
}
