// Package cli implements the formrt command line: filling forms in the
// terminal, serving a layout directory over the backend API and inspecting
// layouts.
package cli

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-formruntime/internal/config"
)

// RootOptions holds global flags and the loaded configuration.
type RootOptions struct {
	Verbose    bool
	ConfigPath string

	Config config.Config
	Logger *slog.Logger
}

// NewRootCommand creates the root command for the formrt CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{Config: config.Default()}

	cmd := &cobra.Command{
		Use:   "formrt",
		Short: "Run declarative forms against an application backend",
		Long: `formrt loads form layouts, binds them to a form data document and keeps
the document in sync with the application backend while you fill it in.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}
			opts.Config = cfg
			opts.Logger = newLogger(cmd.ErrOrStderr(), opts.Verbose)
			slog.SetDefault(opts.Logger)
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default ~/.config/formrt/config.toml)")

	cmd.AddCommand(NewFillCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewLayoutCommand(opts))

	return cmd
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func (o *RootOptions) logger() *slog.Logger {
	if o == nil || o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}
