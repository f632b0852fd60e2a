package layout

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	settingsFile   = "settings"
	layoutSetsFile = "layout-sets"
)

// Directory is a layout tree read from disk. Files at the root describe the
// default layout set (id ""); files in a sub directory describe the layout set
// named after it.
type Directory struct {
	Sets     *LayoutSets
	Bundles  map[string]Bundle
	Settings map[string]*Settings
}

// Bundle returns the bundle for setID.
func (d *Directory) Bundle(setID string) (Bundle, bool) {
	if d == nil {
		return Bundle{}, false
	}
	b, ok := d.Bundles[setID]
	return b, ok
}

// LoadFS walks fsys and parses JSON/YAML layout files. "layout-sets" and
// "Settings" files are recognised by name; every other file is a page whose
// id is the file name without extension.
func LoadFS(fsys fs.FS, kinds *Kinds) (*Directory, error) {
	if kinds == nil {
		kinds = NewKinds()
	}
	dir := &Directory{
		Bundles:  make(map[string]Bundle),
		Settings: make(map[string]*Settings),
	}
	if fsys == nil {
		return dir, nil
	}

	err := fs.WalkDir(fsys, ".", func(p string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if entry.IsDir() || !isLayoutFile(p) {
			return nil
		}

		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("layout: read %s: %w", p, err)
		}
		doc, err := toJSON(data, p)
		if err != nil {
			return err
		}

		setID := path.Dir(p)
		if setID == "." {
			setID = ""
		}
		if strings.Contains(setID, "/") {
			return fmt.Errorf("layout: %s is nested deeper than one layout set directory", p)
		}
		name := strings.TrimSuffix(path.Base(p), path.Ext(p))

		switch strings.ToLower(name) {
		case layoutSetsFile:
			var sets LayoutSets
			if err := json.Unmarshal(doc, &sets); err != nil {
				return fmt.Errorf("layout: decode %s: %w", p, err)
			}
			dir.Sets = &sets
		case settingsFile:
			var settings Settings
			if err := json.Unmarshal(doc, &settings); err != nil {
				return fmt.Errorf("layout: decode %s: %w", p, err)
			}
			dir.Settings[setID] = &settings
		default:
			var file pageFile
			if err := json.Unmarshal(doc, &file); err != nil {
				return fmt.Errorf("layout: decode %s: %w", p, err)
			}
			page, err := BuildPage(name, file.Data.Layout, kinds)
			if err != nil {
				return fmt.Errorf("%w (file %s)", err, p)
			}
			page.Navigation = file.Data.Navigation

			bundle := dir.Bundles[setID]
			if bundle.Pages == nil {
				bundle.Pages = make(map[string]*Page)
			}
			if _, exists := bundle.Pages[name]; exists {
				return fmt.Errorf("layout: duplicate page %q in layout set %q (file %s)", name, setID, p)
			}
			bundle.Pages[name] = page
			if file.Data.AutoSave != nil {
				bundle.AutoSave = file.Data.AutoSave
			}
			dir.Bundles[setID] = bundle
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dir, nil
}

// toJSON returns data as JSON, converting YAML documents when needed.
func toJSON(data []byte, source string) ([]byte, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, fmt.Errorf("layout: file %s is empty", source)
	}
	if json.Valid(data) {
		return data, nil
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("layout: parse %s: invalid JSON or YAML: %w", source, err)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("layout: parse %s: %w", source, err)
	}
	return out, nil
}

func isLayoutFile(p string) bool {
	switch strings.ToLower(path.Ext(p)) {
	case ".json", ".yaml", ".yml":
		return true
	default:
		return false
	}
}
