package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testExecutor(searcher Searcher) *Executor {
	e := NewExecutor(searcher, nil)
	e.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return e
}

func TestExecute_CurrentTime(t *testing.T) {
	got := testExecutor(nil).Execute(context.Background(), "getCurrentTime", "{}")

	want := "현재 시간: 2025-06-01T12:00:00Z"
	if got.Text != want {
		t.Errorf("Execute(getCurrentTime) = %q, want %q", got.Text, want)
	}
}

func TestExecute_Calculate(t *testing.T) {
	got := testExecutor(nil).Execute(context.Background(), "calculate", `{"expression":"2 + 3 * 4"}`)

	want := "계산 결과: 2 + 3 * 4 = 14"
	if got.Text != want {
		t.Errorf("Execute(calculate) = %q, want %q", got.Text, want)
	}
}

func TestExecute_CalculateFailureContained(t *testing.T) {
	e := testExecutor(nil)

	cases := []string{
		`{"expression":"1 +"}`,
		`{"expression":"1/0"}`,
		`not json at all`,
	}
	for _, args := range cases {
		got := e.Execute(context.Background(), "calculate", args)
		if !strings.HasPrefix(got.Text, "Tool error: ") {
			t.Errorf("Execute(calculate, %q) = %q, want tool error text", args, got.Text)
		}
	}
}

func TestExecute_UnknownTool(t *testing.T) {
	got := testExecutor(nil).Execute(context.Background(), "launchMissiles", "{}")

	if got.Text != "Unknown tool: launchMissiles" {
		t.Errorf("Execute(unknown) = %q", got.Text)
	}
}

func TestExecute_WebSearchUnconfigured(t *testing.T) {
	got := testExecutor(nil).Execute(context.Background(), "webSearch", `{"query":"go generics"}`)

	if !strings.Contains(got.Text, "Web search is not configured") {
		t.Errorf("Execute(webSearch) = %q, want placeholder", got.Text)
	}
	if !strings.Contains(got.Text, "go generics") {
		t.Errorf("Execute(webSearch) = %q, want query echoed", got.Text)
	}
	if got.Sources != nil {
		t.Errorf("unconfigured search returned sources %v", got.Sources)
	}
}

func TestExecute_WebSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Ocp-Apim-Subscription-Key"); got != "bing-key" {
			t.Errorf("subscription key = %q", got)
		}
		if got := r.URL.Query().Get("q"); got != "golang" {
			t.Errorf("query = %q, want golang", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"webPages": map[string]any{
				"value": []map[string]string{
					{"name": "The Go Programming Language", "url": "https://go.dev/doc", "snippet": "Docs."},
					{"name": "Go Blog", "url": "https://go.dev/blog", "snippet": "News."},
				},
			},
		})
	}))
	defer srv.Close()

	c := NewBingClient("bing-key", nil)
	c.endpoint = srv.URL

	got := testExecutor(c).Execute(context.Background(), "webSearch", `{"query":"golang"}`)

	if len(got.Sources) != 2 {
		t.Fatalf("got %d sources, want 2", len(got.Sources))
	}
	first := got.Sources[0]
	if first.Domain != "go.dev" {
		t.Errorf("domain = %q, want go.dev", first.Domain)
	}
	if !strings.Contains(first.Favicon, "go.dev") {
		t.Errorf("favicon = %q, want host embedded", first.Favicon)
	}
	if !strings.HasPrefix(got.Text, "1. **The Go Programming Language**") {
		t.Errorf("text = %q, want numbered markdown list", got.Text)
	}
}

func TestExecute_WebSearchEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	c := NewBingClient("bing-key", nil)
	c.endpoint = srv.URL

	got := testExecutor(c).Execute(context.Background(), "webSearch", `{"query":"nothing"}`)

	if got.Text != `No results found for "nothing"` {
		t.Errorf("text = %q", got.Text)
	}
}

func TestParseKind(t *testing.T) {
	for _, kind := range []Kind{KindCurrentTime, KindCalculate, KindWebSearch} {
		parsed, ok := ParseKind(kind.Name())
		if !ok || parsed != kind {
			t.Errorf("ParseKind(%q) = %v, %v", kind.Name(), parsed, ok)
		}
	}
	if _, ok := ParseKind("eval"); ok {
		t.Error("ParseKind(eval) accepted, want rejection")
	}
}

func TestDefinitions(t *testing.T) {
	defs := Definitions()
	if len(defs) != 3 {
		t.Fatalf("got %d definitions, want 3", len(defs))
	}
	for _, d := range defs {
		if d.Type != "function" {
			t.Errorf("definition %q type = %q", d.Function.Name, d.Type)
		}
		if _, ok := ParseKind(d.Function.Name); !ok {
			t.Errorf("definition %q not parseable as Kind", d.Function.Name)
		}
		if d.Function.Parameters == nil {
			t.Errorf("definition %q has nil parameters schema", d.Function.Name)
		}
	}
}
