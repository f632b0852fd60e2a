package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-formruntime/internal/config"
	"github.com/goliatone/go-formruntime/pkg/options"
	"github.com/goliatone/go-formruntime/pkg/renderers/tui"
)

const personPage = `{"data":{"layout":[
  {"id":"title","type":"Header","textResourceBindings":{"title":"About you"}},
  {"id":"name","type":"Input","required":true,"dataModelBindings":{"simpleBinding":"person.name"}}
]}}`

const zonePage = `data:
  layout:
    - id: zone
      type: Dropdown
      optionsId: timezones
      dataModelBindings:
        simpleBinding: person.zone
    - id: nav
      type: NavigationButtons
`

func writeLayouts(t *testing.T, pages map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range pages {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func testRoot(t *testing.T) *RootOptions {
	t.Helper()
	cfg := config.Default()
	cfg.PageDB = filepath.Join(t.TempDir(), "state", "pages.db")
	cfg.Debounce = time.Millisecond
	return &RootOptions{
		Config: cfg,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// scriptedDriver answers every text prompt with value and picks action at
// the navigation menu.
type scriptedDriver struct {
	value  string
	action string
	infos  []string
}

func (d *scriptedDriver) Input(context.Context, tui.InputConfig) (string, error) {
	return d.value, nil
}

func (d *scriptedDriver) Confirm(context.Context, tui.ConfirmConfig) (bool, error) {
	return true, nil
}

func (d *scriptedDriver) Select(_ context.Context, cfg tui.SelectConfig) (int, error) {
	for i, opt := range cfg.Options {
		if opt == d.action {
			return i, nil
		}
	}
	return cfg.DefaultIndex, nil
}

func (d *scriptedDriver) MultiSelect(_ context.Context, cfg tui.SelectConfig) ([]int, error) {
	return cfg.Defaults, nil
}

func (d *scriptedDriver) TextArea(_ context.Context, cfg tui.TextAreaConfig) (string, error) {
	return cfg.Default, nil
}

func (d *scriptedDriver) Info(_ context.Context, msg string) error {
	d.infos = append(d.infos, msg)
	return nil
}

func TestFillSubmitsLocalForm(t *testing.T) {
	dir := writeLayouts(t, map[string]string{"person.json": personPage})
	driver := &scriptedDriver{value: "Ada", action: "Submit"}

	rootOpts := testRoot(t)
	buf := &bytes.Buffer{}
	cmd := newFillCommand(&FillOptions{RootOptions: rootOpts, Driver: driver})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{dir})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	assert.Contains(t, output, "Form submitted.")
	assert.Contains(t, output, "completed")
	assert.Contains(t, strings.Join(driver.infos, "\n"), "About you")
	assert.FileExists(t, rootOpts.Config.PageDB)
}

func TestFillQuitSavesProgress(t *testing.T) {
	dir := writeLayouts(t, map[string]string{"person.json": personPage})
	driver := &scriptedDriver{value: "Ada", action: "Quit"}

	buf := &bytes.Buffer{}
	cmd := newFillCommand(&FillOptions{RootOptions: testRoot(t), Driver: driver})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{dir})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "Progress saved")
}

func TestFillRequiresLayoutsOrBaseURL(t *testing.T) {
	rootOpts := testRoot(t)
	cmd := NewFillCommand(rootOpts)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestFillRejectsBadDataFile(t *testing.T) {
	dir := writeLayouts(t, map[string]string{"person.json": personPage})
	data := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(data, []byte("{not json"), 0o644))

	cmd := NewFillCommand(testRoot(t))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{dir, "--data", data})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "parse data file")
}

func TestLayoutPrintsSummaryAndHTML(t *testing.T) {
	dir := writeLayouts(t, map[string]string{
		"person.json":   personPage,
		"zone.yaml":     zonePage,
		"Settings.json": `{"pages":{"order":["zone","person"]}}`,
	})
	data := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(data, []byte(`{"person":{"name":"Grace <Hopper>"}}`), 0o644))
	htmlPath := filepath.Join(t.TempDir(), "preview.html")

	buf := &bytes.Buffer{}
	cmd := NewLayoutCommand(testRoot(t))
	cmd.SetOut(buf)
	cmd.SetArgs([]string{dir, "--html", htmlPath, "--data", data})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	assert.Contains(t, output, "(default)")
	assert.Contains(t, output, "zone → person")
	assert.Contains(t, output, "Dropdown×1")
	assert.Contains(t, output, "Header×1 Input×1")
	assert.Contains(t, output, "Wrote "+htmlPath)

	html, err := os.ReadFile(htmlPath)
	require.NoError(t, err)
	assert.Contains(t, string(html), `data-page="zone"`)
	assert.Contains(t, string(html), `data-page="person"`)
	assert.Contains(t, string(html), "Grace &lt;Hopper&gt;")
}

func TestLayoutRejectsEmptyDirectory(t *testing.T) {
	cmd := NewLayoutCommand(testRoot(t))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{t.TempDir()})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no pages")
}

func TestServeAnswersBackendRoutes(t *testing.T) {
	dir := writeLayouts(t, map[string]string{"zone.yaml": zonePage})

	rootOpts := testRoot(t)
	rootOpts.Config.Listen = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type result struct {
		meta  map[string]any
		zones []options.Option
		err   error
	}
	results := make(chan result, 1)

	opts := &ServeOptions{RootOptions: rootOpts}
	opts.Ready = func(addr net.Addr) {
		go func() {
			defer cancel()
			var res result
			base := "http://" + addr.String()
			res.err = getJSON(base+"/api/v1/applicationmetadata", &res.meta)
			if res.err == nil {
				res.err = getJSON(base+"/api/options/timezones?q=oslo", &res.zones)
			}
			results <- res
		}()
	}

	buf := &bytes.Buffer{}
	cmd := newServeCommand(opts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{dir})
	cmd.SetContext(ctx)

	require.NoError(t, cmd.Execute())

	res := <-results
	require.NoError(t, res.err)
	assert.Equal(t, "local/form", res.meta["id"])
	assert.Equal(t, []options.Option{{Value: "Europe/Oslo", Label: "Europe/Oslo"}}, res.zones)
	assert.Contains(t, buf.String(), "base URL")
	assert.Contains(t, buf.String(), "500000/")
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(assert.AnError))
	wrapped := WrapExitError(ExitAuthRequired, "login", assert.AnError)
	assert.Equal(t, ExitAuthRequired, GetExitCode(wrapped))
	assert.ErrorIs(t, wrapped, assert.AnError)
	assert.Equal(t, "login: "+assert.AnError.Error(), wrapped.Error())
}

func TestRootCommandLoadsConfig(t *testing.T) {
	dir := writeLayouts(t, map[string]string{"person.json": personPage})
	cfgPath := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("layout_dir = \""+filepath.ToSlash(dir)+"\"\n"), 0o644))

	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", cfgPath, "layout"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "Layouts in "+filepath.ToSlash(dir))
	assert.Contains(t, buf.String(), "Header×1 Input×1")
}

func TestRootCommandReportsBadConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("debounce = \"soon\"\n"), 0o644))

	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", cfgPath, "layout", t.TempDir()})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func getJSON(url string, dest any) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(dest)
}
