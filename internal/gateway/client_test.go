package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"board-sync/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *tracetest.InMemoryExporter) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	logger, _ := test.NewNullLogger()
	c := New(srv.URL, StaticToken("tok-123"), logger)
	c.Tracer = tp.Tracer("test")
	return c, exporter
}

func TestCreateTaskUnwrapsEnvelopeAndSendsBearer(t *testing.T) {
	var gotAuth, gotBody, gotPath string
	c, exporter := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.Method + " " + r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"task":{"id":"srv-1","title":"Write","status":"todo","projectId":"p1"}}`))
	})

	task, err := c.CreateTask(context.Background(), "p1", domain.TaskInput{Title: "Write"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.ID != "srv-1" || task.ProjectID != "p1" {
		t.Fatalf("unexpected task %+v", task)
	}
	if gotAuth != "Bearer tok-123" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotPath != "POST /api/projects/p1/tasks" {
		t.Fatalf("unexpected request %q", gotPath)
	}
	if !strings.Contains(gotBody, `"title":"Write"`) {
		t.Fatalf("unexpected body %s", gotBody)
	}
	spans := exporter.GetSpans()
	if len(spans) != 1 || spans[0].Name != "gateway.create_task" {
		t.Fatalf("unexpected spans %+v", spans)
	}
}

func TestUpdateTaskAcceptsBareEntity(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/api/projects/p1/tasks/t1" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"id":"t1","title":"Write","status":"done","projectId":"p1"}`))
	})

	task, err := c.UpdateTask(context.Background(), "p1", "t1", domain.TaskInput{Title: "Write", Status: domain.StatusDone})
	if err != nil {
		t.Fatalf("update task: %v", err)
	}
	if task.Status != domain.StatusDone {
		t.Fatalf("unexpected status %q", task.Status)
	}
}

func TestListTasksAcceptsArray(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"t1","title":"a","status":"todo","projectId":"p1"},{"id":"t2","title":"b","status":"in-progress","projectId":"p1"}]`))
	})

	tasks, err := c.ListTasks(context.Background(), "p1")
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 2 || tasks[1].Status != domain.StatusInProgress {
		t.Fatalf("unexpected tasks %+v", tasks)
	}
}

func TestFailureUsesServerMessage(t *testing.T) {
	c, exporter := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"Only project members can update tasks"}`))
	})

	_, err := c.UpdateTask(context.Background(), "p1", "t1", domain.TaskInput{Title: "x"})
	var opErr *RemoteOperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected RemoteOperationError, got %T %v", err, err)
	}
	if opErr.Message != "Only project members can update tasks" || opErr.Status != http.StatusForbidden {
		t.Fatalf("unexpected error %+v", opErr)
	}
	spans := exporter.GetSpans()
	if len(spans) != 1 || spans[0].Status.Code != codes.Error {
		t.Fatalf("expected errored span, got %+v", spans)
	}
}

func TestFailureFallsBackToOperationMessage(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`<html>oops</html>`))
	})

	_, err := c.ProjectStats(context.Background(), "p1")
	var opErr *RemoteOperationError
	if !errors.As(err, &opErr) || opErr.Message != "Failed to fetch project stats" {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestUnauthorizedIsDetectable(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.Profile(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestTransportFailureIsNormalized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	logger, hook := test.NewNullLogger()
	c := New(url, nil, logger)
	err := c.DeleteTask(context.Background(), "p1", "t1")
	var opErr *RemoteOperationError
	if !errors.As(err, &opErr) || opErr.Message != "Failed to delete task" || opErr.Status != 0 {
		t.Fatalf("unexpected error %v", err)
	}
	entry := hook.LastEntry()
	if entry == nil || entry.Level != log.WarnLevel || entry.Data["op"] != "delete_task" {
		t.Fatalf("expected warn log for failed call, got %+v", entry)
	}
}

func TestMissingTokenOmitsHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h := r.Header.Get("Authorization"); h != "" {
			t.Errorf("expected no auth header, got %q", h)
		}
		res := domain.AuthResult{Token: "new", User: domain.User{ID: "u1", Email: "a@b.c"}}
		data, _ := sonic.Marshal(res)
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	c := New(srv.URL, nil, nil)
	res, err := c.Login(context.Background(), domain.Credentials{Email: "a@b.c", Password: "pw"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.Token != "new" || res.User.ID != "u1" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestInviteAndRemoveMemberPaths(t *testing.T) {
	var calls []string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		if r.Method == http.MethodPost {
			_, _ = w.Write([]byte(`{"membership":{"id":"m9","userId":"u2","role":"member"}}`))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	m, err := c.InviteMember(context.Background(), "p1", "u2")
	if err != nil {
		t.Fatalf("invite: %v", err)
	}
	if m.ID != "m9" || m.Role != domain.RoleMember {
		t.Fatalf("unexpected membership %+v", m)
	}
	if err := c.RemoveMember(context.Background(), "p1", "m9"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	want := []string{"POST /api/projects/p1/members", "DELETE /api/projects/p1/members/m9"}
	if len(calls) != 2 || calls[0] != want[0] || calls[1] != want[1] {
		t.Fatalf("unexpected calls %v", calls)
	}
}

func TestSearchUsersEscapesEmail(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("email"); got != "a+b@example.com" {
			t.Errorf("unexpected email query %q", got)
		}
		_, _ = w.Write([]byte(`{"users":[{"id":"u2","email":"a+b@example.com"}]}`))
	})

	users, err := c.SearchUsers(context.Background(), "a+b@example.com")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(users) != 1 || users[0].ID != "u2" {
		t.Fatalf("unexpected users %+v", users)
	}
}

func TestProjectMemberTaskAndProfileRoutes(t *testing.T) {
	var calls []string
	bodies := map[string]string{}
	c, exporter := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		calls = append(calls, key)
		if body, _ := io.ReadAll(r.Body); len(body) > 0 {
			bodies[key] = string(body)
		}
		switch key {
		case "POST /api/projects":
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"project":{"id":"p2","name":"Roadmap","ownerId":"u1"}}`))
		case "PUT /api/projects/p2":
			_, _ = w.Write([]byte(`{"project":{"id":"p2","name":"Roadmap 2026","ownerId":"u1"}}`))
		case "GET /api/projects/p2/members":
			_, _ = w.Write([]byte(`{"members":[{"id":"m1","userId":"u1","role":"owner"}]}`))
		case "GET /api/projects/p2/tasks/t7":
			_, _ = w.Write([]byte(`{"task":{"id":"t7","title":"Plan","status":"todo","projectId":"p2"}}`))
		case "PUT /api/users/profile":
			_, _ = w.Write([]byte(`{"user":{"id":"u1","name":"Ada L","email":"ada@example.com"}}`))
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	})
	ctx := context.Background()

	p, err := c.CreateProject(ctx, domain.ProjectInput{Name: "Roadmap"})
	if err != nil || p.ID != "p2" {
		t.Fatalf("create project: %+v %v", p, err)
	}
	p, err = c.UpdateProject(ctx, "p2", domain.ProjectInput{Name: "Roadmap 2026"})
	if err != nil || p.Name != "Roadmap 2026" {
		t.Fatalf("update project: %+v %v", p, err)
	}
	members, err := c.ListMembers(ctx, "p2")
	if err != nil || len(members) != 1 || members[0].Role != domain.RoleOwner {
		t.Fatalf("list members: %+v %v", members, err)
	}
	task, err := c.GetTask(ctx, "p2", "t7")
	if err != nil || task.Title != "Plan" || task.Status != domain.StatusTodo {
		t.Fatalf("get task: %+v %v", task, err)
	}
	user, err := c.UpdateProfile(ctx, domain.ProfileInput{Name: "Ada L"})
	if err != nil || user.Name != "Ada L" {
		t.Fatalf("update profile: %+v %v", user, err)
	}
	if err := c.DeleteProject(ctx, "p2"); err != nil {
		t.Fatalf("delete project: %v", err)
	}

	wantCalls := []string{
		"POST /api/projects",
		"PUT /api/projects/p2",
		"GET /api/projects/p2/members",
		"GET /api/projects/p2/tasks/t7",
		"PUT /api/users/profile",
		"DELETE /api/projects/p2",
	}
	if strings.Join(calls, ",") != strings.Join(wantCalls, ",") {
		t.Fatalf("unexpected calls %v", calls)
	}
	if got := bodies["PUT /api/users/profile"]; got != `{"name":"Ada L"}` {
		t.Fatalf("unexpected profile body %s", got)
	}
	if got := bodies["PUT /api/projects/p2"]; got != `{"name":"Roadmap 2026"}` {
		t.Fatalf("unexpected project body %s", got)
	}

	wantSpans := []string{
		"gateway.create_project",
		"gateway.update_project",
		"gateway.list_members",
		"gateway.get_task",
		"gateway.update_profile",
		"gateway.delete_project",
	}
	spans := exporter.GetSpans()
	if len(spans) != len(wantSpans) {
		t.Fatalf("expected %d spans, got %d", len(wantSpans), len(spans))
	}
	for i, s := range spans {
		if s.Name != wantSpans[i] {
			t.Fatalf("span %d = %s, want %s", i, s.Name, wantSpans[i])
		}
	}
}
