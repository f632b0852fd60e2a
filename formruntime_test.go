package formruntime

import (
	"context"
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-formruntime/pkg/backend"
	"github.com/goliatone/go-formruntime/pkg/backend/memory"
	"github.com/goliatone/go-formruntime/pkg/layout"
	"github.com/goliatone/go-formruntime/pkg/orchestrator"
)

func TestLocalSessionStartsOnFirstPage(t *testing.T) {
	files := fstest.MapFS{
		"intro.json":    {Data: []byte(`{"data":{"layout":[{"id":"name","type":"Input","dataModelBindings":{"simpleBinding":"person.name"}}]}}`)},
		"profile.yaml":  {Data: []byte("data:\n  layout:\n    - id: age\n      type: Input\n      dataModelBindings:\n        simpleBinding: person.age\n")},
		"Settings.json": {Data: []byte(`{"pages":{"order":["intro","profile"]}}`)},
	}
	app := layout.AppMetadata{
		ID:        "acme/intro",
		DataTypes: []layout.DataType{{ID: "model", TaskID: "Task_1", AppLogic: &layout.AppLogic{ClassRef: "Model"}}},
	}
	instance := layout.Instance{
		ID:      "1/abc",
		Process: &layout.ProcessState{CurrentTask: &layout.ProcessTask{ElementID: "Task_1"}},
		Data:    []layout.DataElement{{ID: "d1", DataType: "model"}},
	}
	key := backend.InstanceKey(instance.ID, "d1")

	mem, err := NewLocalBackend(files,
		memory.WithApp(app),
		memory.WithInstance(instance),
		memory.WithData(key, map[string]any{"person": map[string]any{"name": "Ada"}}),
	)
	require.NoError(t, err)

	s := NewSession(mem, Config{InstanceID: instance.ID})
	t.Cleanup(func() { _ = s.Close() })

	outcome, err := s.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, orchestrator.OutcomeReady, outcome)
	assert.Equal(t, []string{"intro", "profile"}, s.Pages())
	assert.Equal(t, "intro", s.Page())
	assert.Equal(t, "Ada", s.Value("person.name"))
	assert.Equal(t, key, s.Key())
}

func TestLoadLayoutsRejectsBrokenFiles(t *testing.T) {
	_, err := LoadLayouts(fstest.MapFS{"page.json": {Data: []byte("data: [")}})
	require.Error(t, err)
}

func TestEmbeddedTemplatesIncludePage(t *testing.T) {
	data, err := fs.ReadFile(EmbeddedTemplates(), "page.tmpl")
	require.NoError(t, err)
	assert.Contains(t, string(data), "formrt-page")
}
