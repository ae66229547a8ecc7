package templates

import (
	"strings"
	"testing"
)

// --- NewRenderer ---

func TestNewRenderer_Succeeds(t *testing.T) {
	r, err := NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer() failed: %v", err)
	}
	if r == nil {
		t.Fatal("NewRenderer() returned nil")
	}
}

// --- Render: Task ---

func TestRender_Task(t *testing.T) {
	r, err := NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}

	data := TaskData{
		ID:          "task_01HZX",
		Title:       "Fix login bug",
		Description: "Fix login bug",
		Context:     "Users are logged out on refresh",
		Priority:    "urgent",
		Status:      "open",
		CreatedAt:   "2026-01-02T03:04:05Z",
		NextSteps:   []string{"Analyze the request", "Implement the change"},
	}

	result, err := r.Render(Task, data)
	if err != nil {
		t.Fatalf("Render(Task) failed: %v", err)
	}

	checks := []string{
		"# Task: Fix login bug",
		"**ID:** `task_01HZX`",
		"**Priority:** urgent",
		"**Status:** open",
		"## Description",
		"## Context",
		"Users are logged out on refresh",
		"- [ ] Analyze the request",
		"- [ ] Implement the change",
	}
	for _, check := range checks {
		if !strings.Contains(result, check) {
			t.Errorf("Task output missing: %q", check)
		}
	}
}

func TestRender_Task_EmptyContext(t *testing.T) {
	r, err := NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}

	result, err := r.Render(Task, TaskData{ID: "x", Title: "t", Description: "d"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(result, "No additional context provided") {
		t.Error("empty context should render the placeholder line")
	}
}

func TestRender_UnknownTemplate(t *testing.T) {
	r, err := NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	if _, err := r.Render(Name("nope"), nil); err == nil {
		t.Error("expected error for unknown template")
	}
}
