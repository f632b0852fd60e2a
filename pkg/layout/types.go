package layout

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/goliatone/go-formruntime/pkg/options"
)

// Condition holds a visibility expression. Layout files may declare it as a
// boolean or as an expression string; booleans are kept as "true"/"false".
type Condition string

// UnmarshalJSON accepts booleans, strings and null.
func (c *Condition) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	switch trimmed {
	case "null", "":
		*c = ""
		return nil
	case "true", "false":
		*c = Condition(trimmed)
		return nil
	}
	var expr string
	if err := json.Unmarshal(data, &expr); err != nil {
		return fmt.Errorf("layout: condition must be a boolean or expression string: %w", err)
	}
	*c = Condition(strings.TrimSpace(expr))
	return nil
}

// Empty reports whether no condition was declared.
func (c Condition) Empty() bool { return strings.TrimSpace(string(c)) == "" }

// Node is one component declaration. Nodes are immutable after a layout is
// loaded; render-time state lives in component instances.
type Node struct {
	ID                   string            `json:"id"`
	Type                 string            `json:"type"`
	DataModelBindings    map[string]string `json:"dataModelBindings,omitempty"`
	TextResourceBindings map[string]string `json:"textResourceBindings,omitempty"`
	Required             bool              `json:"required,omitempty"`
	ReadOnly             bool              `json:"readOnly,omitempty"`
	Hidden               Condition         `json:"hidden,omitempty"`
	VisibilityRule       Condition         `json:"visibilityRule,omitempty"`
	Triggers             []string          `json:"triggers,omitempty"`

	OptionsID              string            `json:"optionsId,omitempty"`
	Mapping                map[string]string `json:"mapping,omitempty"`
	Options                []options.Option  `json:"options,omitempty"`
	Source                 *options.Source   `json:"source,omitempty"`
	PreselectedOptionIndex *int              `json:"preselectedOptionIndex,omitempty"`

	Children []string `json:"children,omitempty"`
	MaxCount int      `json:"maxCount,omitempty"`

	Format    string   `json:"format,omitempty"`
	Pattern   string   `json:"pattern,omitempty"`
	MinLength *int     `json:"minLength,omitempty"`
	MaxLength *int     `json:"maxLength,omitempty"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	MinDate   string   `json:"minDate,omitempty"`
	MaxDate   string   `json:"maxDate,omitempty"`
	TimeStamp *bool    `json:"timeStamp,omitempty"`

	// Props keeps attributes the runtime does not interpret so that leaf
	// renderers of unknown kinds can still read them.
	Props map[string]any `json:"-"`

	// Kind is the normalized component kind; Type keeps the declared name.
	Kind Kind `json:"-"`
	// Nodes holds resolved children for groups.
	Nodes []*Node `json:"-"`
}

var knownNodeKeys = map[string]struct{}{
	"id": {}, "type": {}, "dataModelBindings": {}, "textResourceBindings": {},
	"required": {}, "readOnly": {}, "hidden": {}, "visibilityRule": {}, "triggers": {},
	"optionsId": {}, "mapping": {}, "options": {}, "source": {}, "preselectedOptionIndex": {},
	"children": {}, "maxCount": {}, "format": {}, "pattern": {}, "minLength": {},
	"maxLength": {}, "min": {}, "max": {}, "minDate": {}, "maxDate": {}, "timeStamp": {},
}

// UnmarshalJSON decodes a node and keeps unrecognised attributes in Props.
func (n *Node) UnmarshalJSON(data []byte) error {
	type plain Node
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key := range knownNodeKeys {
		delete(raw, key)
	}
	if len(raw) > 0 {
		decoded.Props = raw
	}
	*n = Node(decoded)
	return nil
}

// Binding returns the data-model binding registered under key ("simpleBinding"
// for most leaf components, "group" for repeating groups).
func (n *Node) Binding(key string) string {
	if n == nil || n.DataModelBindings == nil {
		return ""
	}
	return strings.TrimSpace(n.DataModelBindings[key])
}

// SimpleBinding is shorthand for Binding("simpleBinding").
func (n *Node) SimpleBinding() string { return n.Binding("simpleBinding") }

// Repeating reports whether the node is a group bound to a data-model array.
func (n *Node) Repeating() bool {
	return n != nil && n.Kind == KindGroup && n.MaxCount > 1 && n.Binding("group") != ""
}

// HasTrigger reports whether the node declares trigger.
func (n *Node) HasTrigger(trigger string) bool {
	for _, t := range n.Triggers {
		if strings.EqualFold(t, trigger) {
			return true
		}
	}
	return false
}

// Walk visits n and its resolved descendants depth first.
func (n *Node) Walk(fn func(*Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, child := range n.Nodes {
		child.Walk(fn)
	}
}

// Page is one layout page.
type Page struct {
	ID         string
	Nodes      []*Node
	All        []*Node
	Navigation map[string]any
}

// Node returns the page node with id.
func (p *Page) Node(id string) (*Node, bool) {
	if p == nil {
		return nil, false
	}
	for _, n := range p.All {
		if n.ID == id {
			return n, true
		}
	}
	return nil, false
}

// Bundle is the set of pages returned for one layout set.
type Bundle struct {
	Pages map[string]*Page
	// AutoSave is nil when no page declares it.
	AutoSave *bool
}

// Settings mirrors the layout settings resource.
type Settings struct {
	Pages PageSettings `json:"pages"`
}

// PageSettings configures page order and page-level triggers.
type PageSettings struct {
	Order    []string `json:"order,omitempty"`
	Triggers []string `json:"triggers,omitempty"`
}

// LayoutSets lists the layout sets an application defines.
type LayoutSets struct {
	Sets []LayoutSet `json:"sets"`
}

// LayoutSet binds a layout to a data type and process tasks.
type LayoutSet struct {
	ID       string   `json:"id"`
	DataType string   `json:"dataType"`
	Tasks    []string `json:"tasks,omitempty"`
}

// AppMetadata is the subset of application metadata the runtime needs.
type AppMetadata struct {
	ID        string     `json:"id"`
	Org       string     `json:"org,omitempty"`
	DataTypes []DataType `json:"dataTypes,omitempty"`
	OnEntry   *OnEntry   `json:"onEntry,omitempty"`
}

// DataType describes one data type declared by the application.
type DataType struct {
	ID       string    `json:"id"`
	TaskID   string    `json:"taskId,omitempty"`
	AppLogic *AppLogic `json:"appLogic,omitempty"`
}

// AppLogic marks a data type as a form data model.
type AppLogic struct {
	ClassRef       string `json:"classRef,omitempty"`
	AllowAnonymous bool   `json:"allowAnonymousOnStateless,omitempty"`
	AutoCreate     bool   `json:"autoCreate,omitempty"`
}

// OnEntry configures what an application shows when opened.
type OnEntry struct {
	Show string `json:"show"`
}

// Stateless reports whether the application runs forms without an instance.
func (a AppMetadata) Stateless() bool {
	if a.OnEntry == nil {
		return false
	}
	switch strings.TrimSpace(a.OnEntry.Show) {
	case "", "new-instance", "select-instance":
		return false
	default:
		return true
	}
}

// FormDataType returns the form data type bound to taskID.
func (a AppMetadata) FormDataType(taskID string) (DataType, bool) {
	for _, dt := range a.DataTypes {
		if dt.AppLogic == nil || dt.AppLogic.ClassRef == "" {
			continue
		}
		if dt.TaskID == taskID {
			return dt, true
		}
	}
	return DataType{}, false
}

// DataTypeByID returns the data type with id.
func (a AppMetadata) DataTypeByID(id string) (DataType, bool) {
	for _, dt := range a.DataTypes {
		if dt.ID == id {
			return dt, true
		}
	}
	return DataType{}, false
}

// Instance is the subset of instance metadata the runtime needs.
type Instance struct {
	ID            string        `json:"id"`
	AppID         string        `json:"appId,omitempty"`
	InstanceOwner InstanceOwner `json:"instanceOwner"`
	Process       *ProcessState `json:"process,omitempty"`
	Data          []DataElement `json:"data,omitempty"`
}

// InstanceOwner identifies the party owning an instance.
type InstanceOwner struct {
	PartyID string `json:"partyId"`
}

// ProcessState holds the current process task.
type ProcessState struct {
	CurrentTask *ProcessTask `json:"currentTask,omitempty"`
}

// ProcessTask identifies a process task.
type ProcessTask struct {
	ElementID string `json:"elementId"`
	Name      string `json:"name,omitempty"`
}

// DataElement is a data element stored on an instance.
type DataElement struct {
	ID       string `json:"id"`
	DataType string `json:"dataType"`
}

// CurrentTask returns the current process task id.
func (i *Instance) CurrentTask() string {
	if i == nil || i.Process == nil || i.Process.CurrentTask == nil {
		return ""
	}
	return i.Process.CurrentTask.ElementID
}

// DataElementID returns the id of the first data element of dataType.
func (i *Instance) DataElementID(dataType string) (string, bool) {
	if i == nil {
		return "", false
	}
	for _, el := range i.Data {
		if el.DataType == dataType {
			return el.ID, true
		}
	}
	return "", false
}
