// Package backend defines the operations the form runtime consumes from the
// application backend, the error taxonomy those operations report, and the
// key identifying a form-data document.
package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-formruntime/pkg/layout"
	"github.com/goliatone/go-formruntime/pkg/options"
	"github.com/goliatone/go-formruntime/pkg/validation"
)

// Backend is implemented by transports serving layouts, data and options.
type Backend interface {
	FetchLayoutSets(ctx context.Context) (*layout.LayoutSets, error)
	FetchLayout(ctx context.Context, layoutSetID string) (layout.Bundle, error)
	FetchLayoutSettings(ctx context.Context, layoutSetID string) (*layout.Settings, error)
	FetchFormData(ctx context.Context, key DataKey) (any, error)
	SaveFormData(ctx context.Context, key DataKey, doc map[string]any) ([]validation.Issue, error)
	FetchOptions(ctx context.Context, optionsID string, params map[string]string) ([]options.Option, error)
	ValidateInstance(ctx context.Context, instanceID string) ([]validation.Issue, error)
	CompleteProcessTask(ctx context.Context, instanceID, taskID string) error
}

// Bootstrapper is implemented by backends that can also serve application
// metadata and instances.
type Bootstrapper interface {
	FetchApplicationMetadata(ctx context.Context) (layout.AppMetadata, error)
	FetchInstance(ctx context.Context, instanceID string) (*layout.Instance, error)
}

// Operation names used in errors and scripted failures.
const (
	OpFetchLayoutSets     = "fetchLayoutSets"
	OpFetchLayout         = "fetchLayout"
	OpFetchLayoutSettings = "fetchLayoutSettings"
	OpFetchFormData       = "fetchFormData"
	OpSaveFormData        = "saveFormData"
	OpFetchOptions        = "fetchOptions"
	OpValidateInstance    = "validateInstance"
	OpCompleteProcessTask = "completeProcessTask"
)

// DataKey identifies a form-data document. Instance mode addresses a data
// element of an instance; stateless mode addresses a data type, optionally
// on behalf of a party.
type DataKey struct {
	InstanceID     string
	DataElementID  string
	DataType       string
	PartyID        string
	AllowAnonymous bool
}

// InstanceKey returns the key of a data element in an instance.
func InstanceKey(instanceID, dataElementID string) DataKey {
	return DataKey{InstanceID: strings.TrimSpace(instanceID), DataElementID: strings.TrimSpace(dataElementID)}
}

// StatelessKey returns the key of a stateless data type.
func StatelessKey(dataType, partyID string, allowAnonymous bool) DataKey {
	return DataKey{DataType: strings.TrimSpace(dataType), PartyID: strings.TrimSpace(partyID), AllowAnonymous: allowAnonymous}
}

// Stateless reports whether k addresses stateless data.
func (k DataKey) Stateless() bool { return k.InstanceID == "" }

// String returns a stable identifier for k.
func (k DataKey) String() string {
	if !k.Stateless() {
		return k.InstanceID + "/" + k.DataElementID
	}
	if k.AllowAnonymous || k.PartyID == "" {
		return "stateless:" + k.DataType + "@anonymous"
	}
	return "stateless:" + k.DataType + "@" + k.PartyID
}

// Validate reports whether k carries the identifiers its mode needs.
func (k DataKey) Validate() error {
	if k.Stateless() {
		if k.DataType == "" {
			return fmt.Errorf("backend: stateless data key requires a data type")
		}
		return nil
	}
	if k.DataElementID == "" {
		return fmt.Errorf("backend: instance %q data key requires a data element id", k.InstanceID)
	}
	return nil
}
