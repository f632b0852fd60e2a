package validation

import (
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/goliatone/go-formruntime/pkg/textres"
)

// Type is the semantic type used for range checks.
type Type string

const (
	TypeText   Type = "text"
	TypeNumber Type = "number"
	TypeDate   Type = "date"
)

// DateLayout is the storage format of date values.
const DateLayout = "2006-01-02"

// Today may be used as MinDate or MaxDate to refer to the current day.
const Today = "today"

// Default date bounds applied when a date rule declares none.
const (
	DefaultMinDate = "1900-01-01"
	DefaultMaxDate = "2100-01-01"
)

// Rules are the client-side constraints of one binding.
type Rules struct {
	Required  bool     `json:"required,omitempty"`
	Type      Type     `json:"type,omitempty"`
	Format    string   `json:"format,omitempty"`
	MinDate   string   `json:"minDate,omitempty"`
	MaxDate   string   `json:"maxDate,omitempty"`
	TimeStamp bool     `json:"timeStamp,omitempty"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	MinLength *int     `json:"minLength,omitempty"`
	MaxLength *int     `json:"maxLength,omitempty"`
	Pattern   string   `json:"pattern,omitempty"`
	// Label names the field in messages.
	Label string `json:"label,omitempty"`
}

// Overlay returns r with every field set in o taking precedence.
func (r Rules) Overlay(o Rules) Rules {
	out := r
	if o.Required {
		out.Required = true
	}
	if o.Type != "" {
		out.Type = o.Type
	}
	if o.Format != "" {
		out.Format = o.Format
	}
	if o.MinDate != "" {
		out.MinDate = o.MinDate
	}
	if o.MaxDate != "" {
		out.MaxDate = o.MaxDate
	}
	if o.TimeStamp {
		out.TimeStamp = true
	}
	if o.Min != nil {
		out.Min = o.Min
	}
	if o.Max != nil {
		out.Max = o.Max
	}
	if o.MinLength != nil {
		out.MinLength = o.MinLength
	}
	if o.MaxLength != nil {
		out.MaxLength = o.MaxLength
	}
	if o.Pattern != "" {
		out.Pattern = o.Pattern
	}
	if o.Label != "" {
		out.Label = o.Label
	}
	return out
}

// Option customises a Validator.
type Option func(*Validator)

// WithTexts sets the text resources used to render messages.
func WithTexts(texts *textres.Resources) Option {
	return func(v *Validator) {
		if texts != nil {
			v.texts = texts
		}
	}
}

// WithNow replaces the clock used to resolve Today.
func WithNow(now func() time.Time) Option {
	return func(v *Validator) {
		if now != nil {
			v.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// Validator runs client-side rules. It is safe for concurrent use.
type Validator struct {
	texts    *textres.Resources
	now      func() time.Time
	logger   *slog.Logger
	patterns sync.Map
}

// New constructs a Validator.
func New(opts ...Option) *Validator {
	v := &Validator{}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	if v.texts == nil {
		v.texts = textres.New(nil)
	}
	if v.now == nil {
		v.now = time.Now
	}
	if v.logger == nil {
		v.logger = slog.Default()
	}
	return v
}

// ValidateField checks raw against rules. key only feeds diagnostics.
func (v *Validator) ValidateField(key, raw string, rules Rules) Messages {
	var out Messages
	value := strings.TrimSpace(raw)
	if value == "" {
		if rules.Required {
			out.Add(SeverityError, v.texts.Text(textres.KeyRequired, map[string]any{"field": rules.Label}))
		}
		return out
	}

	switch rules.Type {
	case TypeDate:
		v.checkDate(&out, value, rules)
	case TypeNumber:
		v.checkNumber(&out, value, rules)
	default:
		v.checkLength(&out, value, rules)
	}

	if rules.Pattern != "" {
		re, err := v.pattern(rules.Pattern)
		if err != nil {
			v.logger.Warn("validation: invalid pattern", "binding", key, "pattern", rules.Pattern, "error", err)
		} else if !re.MatchString(value) {
			out.Add(SeverityError, v.texts.Text(textres.KeyPattern, map[string]any{"pattern": rules.Pattern}))
		}
	}
	return out
}

func (v *Validator) checkNumber(out *Messages, value string, rules Rules) {
	n, err := strconv.ParseFloat(strings.ReplaceAll(value, ",", "."), 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		out.Add(SeverityError, v.texts.Text(textres.KeyNumber, nil))
		return
	}
	if rules.Min != nil && n < *rules.Min {
		out.Add(SeverityError, v.texts.Text(textres.KeyNumberMin, map[string]any{"min": formatNumber(*rules.Min)}))
	}
	if rules.Max != nil && n > *rules.Max {
		out.Add(SeverityError, v.texts.Text(textres.KeyNumberMax, map[string]any{"max": formatNumber(*rules.Max)}))
	}
}

func (v *Validator) checkLength(out *Messages, value string, rules Rules) {
	n := utf8.RuneCountInString(value)
	if rules.MinLength != nil && n < *rules.MinLength {
		out.Add(SeverityError, v.texts.Text(textres.KeyMinLength, map[string]any{"min": *rules.MinLength}))
	}
	if rules.MaxLength != nil && n > *rules.MaxLength {
		out.Add(SeverityError, v.texts.Text(textres.KeyMaxLength, map[string]any{"max": *rules.MaxLength}))
	}
}

func (v *Validator) checkDate(out *Messages, value string, rules Rules) {
	layout := rules.Format
	if layout == "" {
		layout = DateLayout
	}
	day, ok := parseDate(value, layout, rules.TimeStamp)
	if !ok {
		out.Add(SeverityError, v.texts.Text(textres.KeyDateFormat, map[string]any{"format": DisplayFormat(layout)}))
		return
	}
	minDate := v.bound(rules.MinDate, DefaultMinDate)
	maxDate := v.bound(rules.MaxDate, DefaultMaxDate)
	if day.Before(minDate) {
		out.Add(SeverityError, v.texts.Text(textres.KeyDateMin, map[string]any{"min": minDate.Format(layout)}))
	}
	if day.After(maxDate) {
		out.Add(SeverityError, v.texts.Text(textres.KeyDateMax, map[string]any{"max": maxDate.Format(layout)}))
	}
}

func (v *Validator) bound(raw, fallback string) time.Time {
	raw = strings.TrimSpace(raw)
	if strings.EqualFold(raw, Today) {
		return truncateDay(v.now())
	}
	if raw != "" {
		if day, ok := parseDate(raw, DateLayout, true); ok {
			return day
		}
		v.logger.Warn("validation: invalid date bound", "bound", raw)
	}
	day, _ := time.Parse(DateLayout, fallback)
	return day
}

func (v *Validator) pattern(expr string) (*regexp.Regexp, error) {
	if cached, ok := v.patterns.Load(expr); ok {
		return cached.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	v.patterns.Store(expr, re)
	return re, nil
}

func parseDate(value, layout string, timestamp bool) (time.Time, bool) {
	if t, err := time.Parse(layout, value); err == nil {
		return truncateDay(t), true
	}
	if timestamp {
		if t, err := time.Parse(time.RFC3339, value); err == nil {
			return truncateDay(t), true
		}
	}
	return time.Time{}, false
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DisplayFormat renders a Go date layout in the DD.MM.YYYY style shown to
// users.
func DisplayFormat(layout string) string {
	return strings.NewReplacer("2006", "YYYY", "01", "MM", "02", "DD").Replace(layout)
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
