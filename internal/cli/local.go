package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/goliatone/go-formruntime/components/timezones"
	"github.com/goliatone/go-formruntime/pkg/backend"
	"github.com/goliatone/go-formruntime/pkg/backend/memory"
	"github.com/goliatone/go-formruntime/pkg/layout"
)

const (
	defaultLocalParty = "500000"
	defaultLocalApp   = "local/form"
	defaultLocalTask  = "Task_1"
	defaultLocalModel = "model"
)

// localForm is an application synthesised around a layout directory so the
// runtime can run it without a remote backend.
type localForm struct {
	dir      *layout.Directory
	app      layout.AppMetadata
	instance layout.Instance
	key      backend.DataKey
	doc      map[string]any
}

func loadLocalForm(layoutDir, dataFile, appID, partyID string, kinds *layout.Kinds) (*localForm, error) {
	if strings.TrimSpace(layoutDir) == "" {
		return nil, errors.New("a layout directory or a base URL is required")
	}
	info, err := os.Stat(layoutDir)
	if err != nil {
		return nil, fmt.Errorf("layout directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("layout directory: %s is not a directory", layoutDir)
	}
	dir, err := layout.LoadFS(os.DirFS(layoutDir), kinds)
	if err != nil {
		return nil, err
	}
	if len(dir.Bundles) == 0 {
		return nil, fmt.Errorf("layout directory %s contains no pages", layoutDir)
	}

	if appID == "" {
		appID = defaultLocalApp
	}
	if partyID == "" {
		partyID = defaultLocalParty
	}

	task := defaultLocalTask
	primary := defaultLocalModel
	if dir.Sets != nil && len(dir.Sets.Sets) > 0 {
		first := dir.Sets.Sets[0]
		if first.DataType != "" {
			primary = first.DataType
		}
		if len(first.Tasks) > 0 {
			task = first.Tasks[0]
		}
	}

	app := layout.AppMetadata{ID: appID}
	instance := layout.Instance{
		ID:            partyID + "/" + uuid.NewString(),
		AppID:         appID,
		InstanceOwner: layout.InstanceOwner{PartyID: partyID},
		Process:       &layout.ProcessState{CurrentTask: &layout.ProcessTask{ElementID: task}},
	}
	addDataType := func(id, taskID string) {
		if _, ok := app.DataTypeByID(id); ok {
			return
		}
		app.DataTypes = append(app.DataTypes, layout.DataType{
			ID:       id,
			TaskID:   taskID,
			AppLogic: &layout.AppLogic{ClassRef: "Local"},
		})
		instance.Data = append(instance.Data, layout.DataElement{ID: id, DataType: id})
	}
	addDataType(primary, task)
	if dir.Sets != nil {
		for _, set := range dir.Sets.Sets {
			if set.DataType == "" {
				continue
			}
			taskID := ""
			if len(set.Tasks) > 0 {
				taskID = set.Tasks[0]
			}
			addDataType(set.DataType, taskID)
		}
	}

	doc, err := readDataFile(dataFile)
	if err != nil {
		return nil, err
	}

	return &localForm{
		dir:      dir,
		app:      app,
		instance: instance,
		key:      backend.InstanceKey(instance.ID, primary),
		doc:      doc,
	}, nil
}

// backend returns an in-memory backend serving the form, its seed data and
// the time zone options.
func (l *localForm) backend(extra ...memory.Option) *memory.Backend {
	zones := timezones.New()
	opts := []memory.Option{
		memory.WithApp(l.app),
		memory.WithInstance(l.instance),
		memory.WithOptionsFunc(timezones.OptionsID, zones.Lookup),
	}
	if l.doc != nil {
		opts = append(opts, memory.WithData(l.key, l.doc))
	}
	return memory.FromDirectory(l.dir, append(opts, extra...)...)
}

func readDataFile(path string) (map[string]any, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read data file: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse data file %s: %w", path, err)
	}
	return doc, nil
}
