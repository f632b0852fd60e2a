package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds the settings shared by formrt commands. Command-line flags
// override file values.
type Config struct {
	// BaseURL is the application backend the fill command talks to.
	BaseURL    string
	InstanceID string
	AppID      string
	PartyID    string
	// LayoutDir is served by the serve command and read by the layout
	// command.
	LayoutDir string
	// DataFile is a JSON document seeding the form data of local sessions.
	DataFile string
	// Schema is an OpenAPI or JSON schema document describing the data
	// model; its constraints become client validation rules.
	Schema string
	// PageDB is the SQLite file remembering the last visited page.
	PageDB   string
	Listen   string
	Debounce time.Duration
	Timeout  time.Duration
	Texts    map[string]string
}

const (
	defaultConfigPath = "~/.config/formrt/config.toml"
	defaultPageDB     = "~/.local/share/formrt/pages.db"
	defaultListen     = "127.0.0.1:7391"
	defaultDebounce   = 200 * time.Millisecond
	defaultTimeout    = 30 * time.Second
)

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		PageDB:   mustExpand(defaultPageDB),
		Listen:   defaultListen,
		Debounce: defaultDebounce,
		Timeout:  defaultTimeout,
	}
}

// Load locates and parses the config file, falling back to defaults when it
// is missing. An empty path selects the default location.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("config: open: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return Config{}, fmt.Errorf("config: read: %w", err)
	}

	var raw struct {
		BaseURL    string            `toml:"base_url"`
		InstanceID string            `toml:"instance_id"`
		AppID      string            `toml:"app_id"`
		PartyID    string            `toml:"party_id"`
		LayoutDir  string            `toml:"layout_dir"`
		DataFile   string            `toml:"data"`
		Schema     string            `toml:"schema"`
		PageDB     string            `toml:"page_db"`
		Listen     string            `toml:"listen"`
		Debounce   string            `toml:"debounce"`
		Timeout    string            `toml:"timeout"`
		Texts      map[string]string `toml:"texts"`
	}
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", resolved, err)
	}

	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(raw.BaseURL), "/")
	cfg.InstanceID = strings.TrimSpace(raw.InstanceID)
	cfg.AppID = strings.TrimSpace(raw.AppID)
	cfg.PartyID = strings.TrimSpace(raw.PartyID)
	if dir := strings.TrimSpace(raw.LayoutDir); dir != "" {
		cfg.LayoutDir = mustExpand(dir)
	}
	if data := strings.TrimSpace(raw.DataFile); data != "" {
		cfg.DataFile = mustExpand(data)
	}
	if schema := strings.TrimSpace(raw.Schema); schema != "" {
		cfg.Schema = mustExpand(schema)
	}
	if db := strings.TrimSpace(raw.PageDB); db != "" {
		cfg.PageDB = mustExpand(db)
	}
	if listen := strings.TrimSpace(raw.Listen); listen != "" {
		cfg.Listen = listen
	}
	if cfg.Debounce, err = parseDuration("debounce", raw.Debounce, defaultDebounce); err != nil {
		return Config{}, err
	}
	if cfg.Timeout, err = parseDuration("timeout", raw.Timeout, defaultTimeout); err != nil {
		return Config{}, err
	}
	cfg.Texts = raw.Texts
	return cfg, nil
}

func parseDuration(name, value string, fallback time.Duration) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: %s must be positive, got %s", name, value)
	}
	return d, nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("config: path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("config: resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
