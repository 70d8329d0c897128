package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/Joeyzzyy/seopages-pro-sub002/internal/agent/ai"
	"github.com/Joeyzzyy/seopages-pro-sub002/internal/agent/runner"
	"github.com/Joeyzzyy/seopages-pro-sub002/internal/agent/skills"
	"github.com/Joeyzzyy/seopages-pro-sub002/internal/agent/task"
	"github.com/Joeyzzyy/seopages-pro-sub002/internal/artifact"
	"github.com/Joeyzzyy/seopages-pro-sub002/internal/config"
	"github.com/Joeyzzyy/seopages-pro-sub002/internal/db"
	"github.com/Joeyzzyy/seopages-pro-sub002/internal/logging"
	"github.com/Joeyzzyy/seopages-pro-sub002/internal/session"
)

type scriptedProvider struct {
	events []ai.StreamEvent
}

func (p *scriptedProvider) ID() string { return "scripted" }

func (p *scriptedProvider) Stream(ctx context.Context, req *ai.ChatRequest) (<-chan ai.StreamEvent, error) {
	ch := make(chan ai.StreamEvent, len(p.events))
	for _, ev := range p.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func setupServer(t *testing.T) *httptest.Server {
	t.Helper()
	logging.Disable()

	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { database.Close() })

	sessions, err := session.NewManager(database)
	if err != nil {
		t.Fatal(err)
	}
	tasks := task.NewManager(database, sessions, artifact.NewStore(database))

	registry, err := skills.NewRegistryFromFS(fstest.MapFS{
		"catalog/blog-writer/SKILL.md": &fstest.MapFile{Data: []byte(`---
name: blog-writer
description: Writes blog posts
classifications: [blog]
---
Write the post.
`)},
	})
	if err != nil {
		t.Fatal(err)
	}

	provider := &scriptedProvider{events: []ai.StreamEvent{
		{Type: ai.EventTypeText, Text: "done writing"},
		{Type: ai.EventTypeDone},
	}}
	cfg := config.Default()
	r := runner.New(cfg, sessions, tasks, skills.NewResolver(registry), []ai.Provider{provider})

	srv := httptest.NewServer(New(cfg, sessions, tasks, registry, r).Router())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatal(err)
	}
	return v
}

// waitForTasks polls until the session's tasks all reach a terminal state
func waitForTasks(t *testing.T, baseURL, key string) []task.Task {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(baseURL + "/api/v1/sessions/" + key + "/tasks")
		if err != nil {
			t.Fatal(err)
		}
		tasks := decode[[]task.Task](t, resp)
		done := len(tasks) > 0
		for _, tk := range tasks {
			if !tk.Status.Terminal() {
				done = false
			}
		}
		if done {
			return tasks
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("tasks never reached a terminal state")
	return nil
}

func TestHealth(t *testing.T) {
	srv := setupServer(t)
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestGenerateFlow(t *testing.T) {
	srv := setupServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/sessions/proj-1/generate", map[string]any{
		"prompt":    "Write the pricing page",
		"target_id": "page-pricing",
		"kind":      "page_generation",
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	resp.Body.Close()

	tasks := waitForTasks(t, srv.URL, "proj-1")
	if len(tasks) != 1 || tasks[0].Status != task.StatusCompleted {
		t.Fatalf("tasks = %+v, want one completed", tasks)
	}

	// Transcript has the user and assistant turns
	turnsResp, err := http.Get(srv.URL + "/api/v1/sessions/proj-1/turns")
	if err != nil {
		t.Fatal(err)
	}
	turns := decode[[]session.Turn](t, turnsResp)
	if len(turns) != 2 {
		t.Fatalf("got %d turns, want 2", len(turns))
	}
	if turns[1].Content != "done writing" {
		t.Errorf("assistant turn = %q", turns[1].Content)
	}

	// Task view endpoint returns the same turns scoped to the task
	viewResp, err := http.Get(srv.URL + "/api/v1/sessions/proj-1/tasks/" + tasks[0].ID + "/turns")
	if err != nil {
		t.Fatal(err)
	}
	view := decode[[]session.Turn](t, viewResp)
	if len(view) != 2 {
		t.Errorf("task view has %d turns, want 2", len(view))
	}
}

func TestGenerateValidation(t *testing.T) {
	srv := setupServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/sessions/proj-1/generate", map[string]any{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing prompt: status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestTaskStatusNotFound(t *testing.T) {
	srv := setupServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/sessions/proj-1/tasks/nope")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestCancelWithoutRun(t *testing.T) {
	srv := setupServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/sessions/proj-1/cancel", map[string]any{})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestListSkills(t *testing.T) {
	srv := setupServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/skills")
	if err != nil {
		t.Fatal(err)
	}
	list := decode[[]map[string]any](t, resp)
	if len(list) != 1 {
		t.Fatalf("got %d skills, want 1", len(list))
	}
	if list[0]["name"] != "blog-writer" || list[0]["enabled"] != true {
		t.Errorf("unexpected skill entry: %v", list[0])
	}
}
