// Package validation computes client-side field messages, maps server issues
// onto data-model bindings and keeps the merged validation state of a form.
//
// Client rules run when a value is committed. Server messages arrive in
// sequence-numbered batches; a batch older than the last one applied for a
// binding is discarded. Messages are plain data and never returned as errors.
package validation
