package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-formruntime/pkg/layout"
	"github.com/goliatone/go-formruntime/pkg/orchestrator"
	"github.com/goliatone/go-formruntime/pkg/renderers/vanilla"
)

// LayoutOptions holds flags for the layout command.
type LayoutOptions struct {
	*RootOptions
	LayoutDir string
	HTML      string
	Templates string
	DataFile  string
}

// NewLayoutCommand creates the layout command.
func NewLayoutCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LayoutOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "layout [layout-dir]",
		Short: "Inspect a layout directory",
		Long: `Print the layout sets, page order and components of a layout directory.

With --html the pages of the selected layout set are rendered to an HTML
file ("-" writes to stdout).

Example:
  formrt layout ./layouts
  formrt layout ./layouts --html preview.html --data seed.json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.LayoutDir = args[0]
			}
			return runLayout(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.HTML, "html", "", "render the pages to this HTML file")
	cmd.Flags().StringVar(&opts.Templates, "templates", "", "directory overriding the HTML templates")
	cmd.Flags().StringVar(&opts.DataFile, "data", "", "JSON document used when rendering HTML")

	return cmd
}

func runLayout(opts *LayoutOptions, cmd *cobra.Command) error {
	cfg := opts.Config
	overrideString(&cfg.LayoutDir, opts.LayoutDir)
	overrideString(&cfg.DataFile, opts.DataFile)
	cfg.BaseURL = ""
	out := cmd.OutOrStdout()

	local, err := loadLocalForm(cfg.LayoutDir, cfg.DataFile, cfg.AppID, cfg.PartyID, layout.NewKinds())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load layouts", err)
	}
	printDirectory(out, cfg.LayoutDir, local.dir)

	if opts.HTML == "" {
		return nil
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := openSession(cfg, opts.RootOptions, false)
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := s.form.Start(ctx); err != nil {
		return WrapExitError(ExitFailure, "failed to resolve layout", err)
	}
	renderer, err := vanilla.New(vanilla.WithTemplatesDir(opts.Templates), vanilla.WithLogger(opts.logger()))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load templates", err)
	}
	html, err := renderPages(ctx, s.form, renderer)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to render pages", err)
	}

	if opts.HTML == "-" {
		_, err = out.Write(html)
		return err
	}
	if err := os.WriteFile(opts.HTML, html, 0o644); err != nil {
		return WrapExitError(ExitFailure, "failed to write HTML", err)
	}
	fmt.Fprintln(out, okStyle.Render("Wrote "+opts.HTML))
	return nil
}

func renderPages(ctx context.Context, form *orchestrator.Orchestrator, renderer *vanilla.Renderer) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("<!doctype html>\n<html><head><meta charset=\"utf-8\"><title>formrt preview</title></head><body>\n")
	for _, id := range form.Pages() {
		instances, err := form.RenderPage(id)
		if err != nil {
			return nil, err
		}
		page, err := renderer.RenderPage(ctx, vanilla.Page{ID: id, Title: id, Instances: instances})
		if err != nil {
			return nil, err
		}
		buf.Write(page)
		buf.WriteString("\n")
	}
	buf.WriteString("</body></html>\n")
	return buf.Bytes(), nil
}

func printDirectory(w io.Writer, root string, dir *layout.Directory) {
	fmt.Fprintln(w, titleStyle.Render("Layouts in "+root))

	setIDs := make([]string, 0, len(dir.Bundles))
	for id := range dir.Bundles {
		setIDs = append(setIDs, id)
	}
	sort.Strings(setIDs)

	dataTypes := map[string]string{}
	if dir.Sets != nil {
		for _, set := range dir.Sets.Sets {
			dataTypes[set.ID] = set.DataType
		}
	}

	for _, id := range setIDs {
		bundle := dir.Bundles[id]
		name := id
		if name == "" {
			name = "(default)"
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, field("layout set", name))
		if dt := dataTypes[id]; dt != "" {
			fmt.Fprintln(w, field("data type", dt))
		}
		autoSave := "on"
		if bundle.AutoSave != nil && !*bundle.AutoSave {
			autoSave = "off"
		}
		fmt.Fprintln(w, field("autosave", autoSave))

		order := layout.PageOrder(bundle, dir.Settings[id])
		fmt.Fprintln(w, field("pages", strings.Join(order, " → ")))
		for _, pageID := range order {
			fmt.Fprintf(w, "  %s %s\n", pageID, labelStyle.Render(kindCounts(bundle.Pages[pageID])))
		}
	}
}

func kindCounts(page *layout.Page) string {
	if page == nil {
		return ""
	}
	counts := map[layout.Kind]int{}
	for _, node := range page.All {
		counts[node.Kind]++
	}
	kinds := make([]string, 0, len(counts))
	for kind := range counts {
		kinds = append(kinds, string(kind))
	}
	sort.Strings(kinds)
	parts := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		parts = append(parts, fmt.Sprintf("%s×%d", kind, counts[layout.Kind(kind)]))
	}
	return strings.Join(parts, " ")
}
