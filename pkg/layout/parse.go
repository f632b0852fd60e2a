package layout

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// SinglePageID names the only page of a bundle served in the single-layout
// shape.
const SinglePageID = "FormLayout"

type pageFile struct {
	Data pageData `json:"data"`
}

type pageData struct {
	Layout     []*Node        `json:"layout"`
	Navigation map[string]any `json:"navigation,omitempty"`
	AutoSave   *bool          `json:"autoSave,omitempty"`
}

// ParseBundle decodes a layout response. Two shapes are accepted: a single
// page ({"data":{"layout":[...]}}) which becomes page SinglePageID, and a map
// of page id to page document.
func ParseBundle(data []byte, kinds *Kinds) (Bundle, error) {
	if kinds == nil {
		kinds = NewKinds()
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return Bundle{}, fmt.Errorf("layout: decode bundle: %w", err)
	}

	bundle := Bundle{Pages: make(map[string]*Page)}

	if rawData, ok := probe["data"]; ok {
		var single pageData
		if err := json.Unmarshal(rawData, &single); err == nil && single.Layout != nil {
			page, err := BuildPage(SinglePageID, single.Layout, kinds)
			if err != nil {
				return Bundle{}, err
			}
			page.Navigation = single.Navigation
			bundle.Pages[SinglePageID] = page
			bundle.AutoSave = single.AutoSave
			return bundle, nil
		}
	}

	for _, id := range sortedKeys(probe) {
		if strings.HasPrefix(id, "$") {
			continue
		}
		var file pageFile
		if err := json.Unmarshal(probe[id], &file); err != nil {
			return Bundle{}, fmt.Errorf("layout: decode page %q: %w", id, err)
		}
		page, err := BuildPage(id, file.Data.Layout, kinds)
		if err != nil {
			return Bundle{}, err
		}
		page.Navigation = file.Data.Navigation
		bundle.Pages[id] = page
		if file.Data.AutoSave != nil {
			bundle.AutoSave = file.Data.AutoSave
		}
	}
	return bundle, nil
}

// MarshalBundle encodes a bundle in the multi-page shape accepted by
// ParseBundle.
func MarshalBundle(bundle Bundle) ([]byte, error) {
	out := make(map[string]pageFile, len(bundle.Pages))
	for id, page := range bundle.Pages {
		out[id] = pageFile{Data: pageData{
			Layout:     page.All,
			Navigation: page.Navigation,
			AutoSave:   bundle.AutoSave,
		}}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("layout: encode bundle: %w", err)
	}
	return data, nil
}

// MarshalJSON encodes the node with its pass-through attributes.
func (n *Node) MarshalJSON() ([]byte, error) {
	type plain Node
	data, err := json.Marshal((*plain)(n))
	if err != nil {
		return nil, err
	}
	if len(n.Props) == 0 {
		return data, nil
	}
	var merged map[string]any
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	for key, value := range n.Props {
		if _, known := knownNodeKeys[key]; known {
			continue
		}
		merged[key] = value
	}
	return json.Marshal(merged)
}

// BuildPage normalizes component kinds and folds the flat component list
// into a tree using the groups' children references. Components that no
// group claims are the page's top-level nodes, kept in declaration order.
func BuildPage(id string, nodes []*Node, kinds *Kinds) (*Page, error) {
	if kinds == nil {
		kinds = NewKinds()
	}
	page := &Page{ID: id}
	byID := make(map[string]*Node, len(nodes))

	for idx, node := range nodes {
		if node == nil {
			return nil, fmt.Errorf("layout: page %q component %d is null", id, idx)
		}
		node.ID = strings.TrimSpace(node.ID)
		if node.ID == "" {
			return nil, fmt.Errorf("layout: page %q component %d has no id", id, idx)
		}
		if _, dup := byID[node.ID]; dup {
			return nil, fmt.Errorf("layout: page %q declares component %q twice", id, node.ID)
		}
		kind, known := kinds.Normalize(node.Type)
		node.Kind = kind
		if known {
			node.Type = string(kind)
		}
		node.Nodes = nil
		byID[node.ID] = node
		page.All = append(page.All, node)
	}

	claimedBy := make(map[string]string)
	for _, node := range page.All {
		for _, childID := range node.Children {
			childID = strings.TrimSpace(childID)
			child, ok := byID[childID]
			if !ok {
				return nil, fmt.Errorf("layout: page %q group %q references unknown component %q", id, node.ID, childID)
			}
			if owner, taken := claimedBy[childID]; taken {
				return nil, fmt.Errorf("layout: page %q component %q is a child of both %q and %q", id, childID, owner, node.ID)
			}
			claimedBy[childID] = node.ID
			node.Nodes = append(node.Nodes, child)
		}
	}

	for _, node := range page.All {
		if _, claimed := claimedBy[node.ID]; !claimed {
			page.Nodes = append(page.Nodes, node)
		}
	}

	reached := 0
	for _, node := range page.Nodes {
		node.Walk(func(*Node) bool {
			reached++
			return true
		})
	}
	if reached != len(page.All) {
		return nil, fmt.Errorf("layout: page %q has a cycle in group children", id)
	}

	return page, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
