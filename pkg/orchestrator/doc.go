// Package orchestrator runs the form session state machine: the initial fetch
// of layout, settings and data, debounced and explicit saves, option reset,
// page navigation and submission.
//
// States move Idle -> Fetching -> Ready, between Ready and Saving while saves
// are in flight, through SubmitPending to Completed, or to Failed when the
// initial load or a non-retryable save fails. Network calls are the only
// suspension points; they run outside the orchestrator lock and re-acquire it
// to apply their results. Save responses carry a sequence number and are
// discarded when a newer response was already applied.
package orchestrator
