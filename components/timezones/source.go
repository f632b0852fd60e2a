package timezones

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/goliatone/go-formruntime/pkg/options"
)

// OptionsID is the options id layouts use to request time zones.
const OptionsID = "timezones"

// Source answers option requests with time zones.
type Source struct {
	opts Options
}

// New constructs a Source with default options plus any overrides.
func New(fns ...OptionFn) *Source {
	return &Source{opts: NewOptions(fns...)}
}

// Options returns a copy of the source configuration.
func (s *Source) Options() Options {
	if s == nil {
		return DefaultOptions()
	}
	return NewOptions(func(o *Options) { *o = s.opts })
}

// Lookup resolves the option list for the mapped query parameters.
func (s *Source) Lookup(params map[string]string) ([]options.Option, error) {
	opts := s.Options()
	zones := opts.Zones
	if zones == nil {
		loaded, err := DefaultZones()
		if err != nil {
			return nil, fmt.Errorf("timezones: load zones: %w", err)
		}
		zones = loaded
	}
	limit, err := parseLimit(params[opts.LimitParam])
	if err != nil {
		return nil, err
	}
	return SearchOptions(zones, params[opts.SearchParam], limit, opts), nil
}

// Fetcher adapts the source into an options.Fetcher answering OptionsID.
func (s *Source) Fetcher() options.FetcherFunc {
	return func(ctx context.Context, id string, params map[string]string) ([]options.Option, error) {
		if id != OptionsID {
			return nil, fmt.Errorf("timezones: unknown options id %q", id)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return s.Lookup(params)
	}
}

func parseLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("timezones: invalid limit %q: %w", raw, err)
	}
	return value, nil
}
