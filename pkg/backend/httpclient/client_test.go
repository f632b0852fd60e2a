package httpclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/goliatone/go-formruntime/pkg/backend"
	"github.com/goliatone/go-formruntime/pkg/options"
	"github.com/goliatone/go-formruntime/pkg/validation"
)

func TestParseBaseURL(t *testing.T) {
	if _, err := parseBaseURL("  "); err == nil {
		t.Fatalf("expected error for empty base url")
	}
	u, err := parseBaseURL("example.com:8080/org/app/?x=1#frag")
	if err != nil {
		t.Fatalf("parseBaseURL returned error: %v", err)
	}
	if u.String() != "http://example.com:8080/org/app" {
		t.Fatalf("base url = %q", u.String())
	}
}

type recorded struct {
	method string
	path   string
	query  string
	party  string
	body   map[string]any
}

func TestClientEndpoints(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var calls []recorded
	var correlations []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{method: r.Method, path: r.URL.Path, query: r.URL.RawQuery, party: r.Header.Get("party")}
		if r.Body != nil {
			raw, _ := io.ReadAll(r.Body)
			if len(raw) > 0 {
				_ = json.Unmarshal(raw, &rec.body)
			}
		}
		mu.Lock()
		calls = append(calls, rec)
		correlations = append(correlations, r.Header.Get(CorrelationHeader))
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/org/app/api/layoutsets":
			_, _ = io.WriteString(w, `{"sets":[{"id":"form","dataType":"model","tasks":["Task_1"]}]}`)
		case "/org/app/api/layouts/form":
			_, _ = io.WriteString(w, `{"p1":{"data":{"layout":[{"id":"a","type":"input","dataModelBindings":{"simpleBinding":"x"}}]}}}`)
		case "/org/app/api/layoutsettings/form":
			http.NotFound(w, r)
		case "/org/app/instances/1337/abc/data/d1":
			if r.Method == http.MethodPut {
				_, _ = io.WriteString(w, `{"validations":[{"field":"x","description":"bad","severity":1}]}`)
				return
			}
			_, _ = io.WriteString(w, `{"x":"1"}`)
		case "/org/app/v1/data":
			_, _ = io.WriteString(w, `{"y":2}`)
		case "/org/app/v1/data/anonymous":
			w.WriteHeader(http.StatusForbidden)
		case "/org/app/api/options/cities":
			_, _ = io.WriteString(w, `[{"value":"osl","label":"Oslo"}]`)
		case "/org/app/instances/1337/abc/validate":
			_, _ = io.WriteString(w, `[]`)
		case "/org/app/instances/1337/abc/process/next":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	c, err := New(server.URL+"/org/app", WithTimeout(2*time.Second))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)

	sets, err := c.FetchLayoutSets(ctx)
	if err != nil || len(sets.Sets) != 1 || sets.Sets[0].DataType != "model" {
		t.Fatalf("FetchLayoutSets = %+v, %v", sets, err)
	}

	bundle, err := c.FetchLayout(ctx, "form")
	if err != nil {
		t.Fatalf("FetchLayout returned error: %v", err)
	}
	if page := bundle.Pages["p1"]; page == nil || page.Nodes[0].Type != "Input" {
		t.Fatalf("layout not parsed: %+v", bundle.Pages)
	}

	if _, err := c.FetchLayoutSettings(ctx, "form"); !backend.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	instanceKey := backend.InstanceKey("1337/abc", "d1")
	doc, err := c.FetchFormData(ctx, instanceKey)
	if err != nil {
		t.Fatalf("FetchFormData returned error: %v", err)
	}
	if diff := cmp.Diff(map[string]any{"x": "1"}, doc); diff != "" {
		t.Fatalf("form data mismatch (-want +got):\n%s", diff)
	}

	issues, err := c.SaveFormData(ctx, instanceKey, map[string]any{"x": "2"})
	if err != nil {
		t.Fatalf("SaveFormData returned error: %v", err)
	}
	wantIssues := []validation.Issue{{Field: "x", Description: "bad", Severity: validation.SeverityError}}
	if diff := cmp.Diff(wantIssues, issues); diff != "" {
		t.Fatalf("issues mismatch (-want +got):\n%s", diff)
	}

	if _, err := c.FetchFormData(ctx, backend.StatelessKey("model", "1234", false)); err != nil {
		t.Fatalf("stateless fetch returned error: %v", err)
	}
	if _, err := c.FetchFormData(ctx, backend.StatelessKey("model", "", true)); !backend.IsAuthRequired(err) {
		t.Fatalf("expected auth required, got %v", err)
	}

	opts, err := c.FetchOptions(ctx, "cities", map[string]string{"country": "NO"})
	if err != nil {
		t.Fatalf("FetchOptions returned error: %v", err)
	}
	if diff := cmp.Diff([]options.Option{{Value: "osl", Label: "Oslo"}}, opts); diff != "" {
		t.Fatalf("options mismatch (-want +got):\n%s", diff)
	}

	if issues, err := c.ValidateInstance(ctx, "1337/abc"); err != nil || len(issues) != 0 {
		t.Fatalf("ValidateInstance = %v, %v", issues, err)
	}
	if err := c.CompleteProcessTask(ctx, "1337/abc", "Task_1"); !backend.IsTransport(err) {
		t.Fatalf("expected transport error, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	byPath := make(map[string]recorded)
	for _, rec := range calls {
		byPath[rec.method+" "+rec.path] = rec
	}
	if rec := byPath["PUT /org/app/instances/1337/abc/data/d1"]; rec.body["x"] != "2" {
		t.Fatalf("save body = %+v", rec.body)
	}
	if rec := byPath["GET /org/app/v1/data"]; rec.party != "partyid:1234" || rec.query != "dataType=model" {
		t.Fatalf("stateless request = %+v", rec)
	}
	if rec := byPath["GET /org/app/api/options/cities"]; rec.query != "country=NO" {
		t.Fatalf("options query = %q", rec.query)
	}
	if rec := byPath["PUT /org/app/instances/1337/abc/process/next"]; rec.query != "elementId=Task_1" {
		t.Fatalf("process query = %q", rec.query)
	}
	seen := make(map[string]bool)
	for _, id := range correlations {
		if _, err := uuid.Parse(id); err != nil {
			t.Fatalf("correlation id %q is not a uuid", id)
		}
		if seen[id] {
			t.Fatalf("correlation id %q reused", id)
		}
		seen[id] = true
	}
}

func TestInvalidDataKeyIsClientError(t *testing.T) {
	t.Parallel()

	c, err := New("http://127.0.0.1:1")
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	_, err = c.FetchFormData(context.Background(), backend.DataKey{InstanceID: "1/2"})
	if backend.KindOf(err) != backend.KindClient {
		t.Fatalf("expected client error, got %v", err)
	}
}
