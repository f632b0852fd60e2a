package orchestrator

import (
	"errors"

	"github.com/goliatone/go-formruntime/pkg/validation"
)

// State is the lifecycle state of a form session.
type State int

const (
	StateIdle State = iota
	StateFetching
	StateReady
	StateSaving
	StateSubmitPending
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateReady:
		return "ready"
	case StateSaving:
		return "saving"
	case StateSubmitPending:
		return "submit-pending"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the result of Start.
type Outcome int

const (
	// OutcomeReady means the session loaded and accepts edits.
	OutcomeReady Outcome = iota
	// OutcomeRedirect means the backend asked for a stronger login before
	// stateless data can be read. The caller should send the user through
	// the upgrade flow.
	OutcomeRedirect
	// OutcomeFailed means the initial load failed.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeReady:
		return "ready"
	case OutcomeRedirect:
		return "redirect"
	default:
		return "failed"
	}
}

// RedirectUpgradeLevel is the authentication level requested when stateless
// data needs a login.
const RedirectUpgradeLevel = 2

// Trigger names what caused a save.
type Trigger string

const (
	TriggerDebounce Trigger = "debounce"
	TriggerBlur     Trigger = "blur"
	TriggerNavigate Trigger = "navigate"
	TriggerSubmit   Trigger = "submit"
	TriggerReset    Trigger = "option-reset"
	TriggerManual   Trigger = "manual"
)

// SignalKind identifies a signal.
type SignalKind string

const (
	SignalStateChanged       SignalKind = "state-changed"
	SignalPageChanged        SignalKind = "page-changed"
	SignalValueChanged       SignalKind = "value-changed"
	SignalValueReset         SignalKind = "value-reset"
	SignalValidationsChanged SignalKind = "validations-changed"
	SignalOptionsLoaded      SignalKind = "options-loaded"
	SignalSaveFailed         SignalKind = "save-failed"
	SignalFetchFailed        SignalKind = "fetch-failed"
	SignalRedirect           SignalKind = "redirect"
	SignalCompleted          SignalKind = "completed"
)

// Signal notifies subscribers of session changes. Only the fields relevant
// to Kind are set.
type Signal struct {
	Kind         SignalKind
	State        State
	Page         string
	Keys         []string
	Seq          uint64
	TaskID       string
	Trigger      Trigger
	UpgradeLevel int
	Message      string
	Err          error
}

// Focus points at the component a caller should scroll to.
type Focus struct {
	Page        string
	ComponentID string
	Binding     string
}

// SubmitResult is returned by Submit.
type SubmitResult struct {
	Advanced bool
	Issues   map[string]validation.Messages
	Focus    *Focus
}

// NavResult is returned by the navigation methods.
type NavResult struct {
	Moved bool
	Page  string
	Focus *Focus
}

// Task is one save, built from the document snapshot at trigger time.
type Task struct {
	ID      string
	Seq     uint64
	Trigger Trigger
	Keys    []string
	Doc     map[string]any
}

var (
	// ErrNotReady is returned when an operation needs a loaded session.
	ErrNotReady = errors.New("orchestrator: session is not ready")
	// ErrStarted is returned when Start is called twice.
	ErrStarted = errors.New("orchestrator: session already started")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("orchestrator: session closed")
	// ErrUnknownPage is returned when navigating to a page that does not
	// exist.
	ErrUnknownPage = errors.New("orchestrator: unknown page")
)
