package domain

import (
	"errors"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
)

func TestDecodeTaskPayloadAcceptsBareTask(t *testing.T) {
	raw := []byte(`{"id":"t1","title":"Write docs","status":"in-progress","projectId":"p1"}`)

	task, err := DecodeTaskPayload(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if task.ID != "t1" || task.Status != StatusInProgress || task.ProjectID != "p1" {
		t.Fatalf("unexpected task %+v", task)
	}
}

func TestDecodeTaskPayloadUnwrapsTaskField(t *testing.T) {
	raw := []byte(`{"task":{"id":"t2","title":"Ship","status":"done","projectId":"p1"},"changedBy":"u1"}`)

	task, err := DecodeTaskPayload(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if task.ID != "t2" || task.Status != StatusDone {
		t.Fatalf("unexpected task %+v", task)
	}
}

func TestDecodeTaskPayloadRejectsMissingID(t *testing.T) {
	for _, raw := range []string{`{"title":"x"}`, `{"task":{"title":"x"}}`} {
		if _, err := DecodeTaskPayload([]byte(raw)); !errors.Is(err, ErrMissingTaskID) {
			t.Fatalf("payload %s: expected ErrMissingTaskID, got %v", raw, err)
		}
	}
}

func TestDecodeTaskPayloadRejectsUnknownStatus(t *testing.T) {
	if _, err := DecodeTaskPayload([]byte(`{"id":"t1","status":"blocked"}`)); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestDecodeTaskPayloadAllowsMissingStatus(t *testing.T) {
	task, err := DecodeTaskPayload([]byte(`{"id":"t1","projectId":"p1"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if task.Status != "" {
		t.Fatalf("expected empty status, got %q", task.Status)
	}
}

func TestTaskMarshalUsesWireNames(t *testing.T) {
	payload, err := sonic.Marshal(Task{ID: "t1", Title: "x", Status: StatusTodo, ProjectID: "p1"})
	if err != nil {
		t.Fatalf("marshal task: %v", err)
	}
	for _, want := range []string{`"projectId":"p1"`, `"status":"todo"`} {
		if !strings.Contains(string(payload), want) {
			t.Fatalf("expected %s in %s", want, payload)
		}
	}
}

func TestTaskInputValidation(t *testing.T) {
	in := TaskInput{Title: "   ", Description: " notes "}.Normalize()
	var verr *ValidationError
	if err := in.Validate(); !errors.As(err, &verr) || verr.Field != "title" {
		t.Fatalf("expected title validation error, got %v", err)
	}
	if in.Description != "notes" {
		t.Fatalf("expected trimmed description, got %q", in.Description)
	}

	in = TaskInput{Title: "ok", Status: "later"}.Normalize()
	if err := in.Validate(); !errors.As(err, &verr) || verr.Field != "status" {
		t.Fatalf("expected status validation error, got %v", err)
	}

	in = TaskInput{Title: " ok ", Status: StatusDone}.Normalize()
	if err := in.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParseStatus(t *testing.T) {
	if s, err := ParseStatus(" in-progress "); err != nil || s != StatusInProgress {
		t.Fatalf("unexpected result %q %v", s, err)
	}
	if _, err := ParseStatus("archived"); err == nil {
		t.Fatal("expected error")
	}
}
