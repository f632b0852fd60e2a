package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-formruntime/pkg/orchestrator"
	"github.com/goliatone/go-formruntime/pkg/renderers/tui"
)

// FillOptions holds flags for the fill command.
type FillOptions struct {
	*RootOptions
	BaseURL    string
	InstanceID string
	PartyID    string
	LayoutDir  string
	DataFile   string
	Schema     string

	// Driver replaces the survey prompts (for testing).
	Driver tui.PromptDriver
}

// NewFillCommand creates the fill command.
func NewFillCommand(rootOpts *RootOptions) *cobra.Command {
	return newFillCommand(&FillOptions{RootOptions: rootOpts})
}

func newFillCommand(opts *FillOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fill [layout-dir]",
		Short: "Fill in a form in the terminal",
		Long: `Fill in a form page by page in the terminal.

With a base URL the form is loaded from the application backend and every
edit is saved there. Without one, the pages of a local layout directory are
filled against an in-memory backend.

Example:
  formrt fill --base-url https://apps.example.com/acme/permit --instance 1337/7f3c
  formrt fill ./layouts --data seed.json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.LayoutDir = args[0]
			}
			return runFill(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.BaseURL, "base-url", "", "application backend URL")
	cmd.Flags().StringVar(&opts.InstanceID, "instance", "", "instance id as party/guid")
	cmd.Flags().StringVar(&opts.PartyID, "party", "", "party id for stateless forms")
	cmd.Flags().StringVar(&opts.DataFile, "data", "", "JSON document seeding local form data")
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "OpenAPI or JSON schema with validation constraints")

	return cmd
}

func runFill(opts *FillOptions, cmd *cobra.Command) error {
	cfg := opts.Config
	overrideString(&cfg.BaseURL, opts.BaseURL)
	overrideString(&cfg.InstanceID, opts.InstanceID)
	overrideString(&cfg.PartyID, opts.PartyID)
	overrideString(&cfg.LayoutDir, opts.LayoutDir)
	overrideString(&cfg.DataFile, opts.DataFile)
	overrideString(&cfg.Schema, opts.Schema)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()
	logger := opts.logger()

	s, err := openSession(cfg, opts.RootOptions, true)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := s.Close(); closeErr != nil {
			logger.Error("error closing session", "error", closeErr)
		}
	}()

	outcome, err := s.form.Start(ctx)
	switch outcome {
	case orchestrator.OutcomeRedirect:
		fmt.Fprintln(out, warnStyle.Render("This form requires you to log in."))
		return NewExitError(ExitAuthRequired, "authentication required")
	case orchestrator.OutcomeFailed:
		return WrapExitError(ExitFailure, "failed to load form", err)
	}

	fmt.Fprintln(out, titleStyle.Render("Filling "+s.form.Key().String()))

	renderOpts := []tui.Option{tui.WithLogger(logger)}
	if opts.Driver != nil {
		renderOpts = append(renderOpts, tui.WithPromptDriver(opts.Driver))
	} else {
		renderOpts = append(renderOpts, tui.WithPromptDriver(tui.NewSurveyDriver(out)))
	}
	renderer, err := tui.New(s.form, renderOpts...)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to create renderer", err)
	}

	result, err := renderer.Run(ctx)
	switch {
	case errors.Is(err, tui.ErrAborted):
		if saveErr := s.form.SaveAll(ctx); saveErr != nil {
			return WrapExitError(ExitFailure, "failed to save progress", saveErr)
		}
		fmt.Fprintln(out, warnStyle.Render("Progress saved, resume any time."))
		return nil
	case err != nil:
		return WrapExitError(ExitFailure, "form session failed", err)
	}

	s.form.Wait()
	if !result.Advanced {
		return NewExitError(ExitFailure, "form was not submitted")
	}
	fmt.Fprintln(out, okStyle.Render("Form submitted."))
	fmt.Fprintln(out, field("state", s.form.State().String()))
	return nil
}

func overrideString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}
