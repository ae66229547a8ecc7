package tasks

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/HendryAvila/toolrelay/internal/templates"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	tasksDir := filepath.Join(t.TempDir(), "tasks")
	idx, err := OpenIndex(t.TempDir())
	if err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return NewStore(NewFileStore(tasksDir, mustRenderer(t)), idx), tasksDir
}

func mustRenderer(t *testing.T) *templates.TemplateRenderer {
	t.Helper()
	r, err := templates.NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	return r
}

func fixedClock(t *testing.T, ts time.Time) {
	t.Helper()
	orig := timeNow
	timeNow = func() time.Time { return ts }
	t.Cleanup(func() { timeNow = orig })
}

// ─── Types ──────────────────────────────────────────────────────────────────

func TestNewTask_IDPrefix(t *testing.T) {
	task := NewTask("Add dark mode", "", PriorityMedium)
	if !strings.HasPrefix(task.ID, "task_") {
		t.Errorf("ID = %q, want task_ prefix", task.ID)
	}
	if task.Status != StatusOpen {
		t.Errorf("Status = %s, want open", task.Status)
	}
}

func TestNewTask_UniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewTask("x", "", PriorityLow).ID
		if seen[id] {
			t.Fatalf("duplicate ID %s", id)
		}
		seen[id] = true
	}
}

func TestValidatePriority(t *testing.T) {
	for _, p := range PriorityNames() {
		if err := ValidatePriority(Priority(p)); err != nil {
			t.Errorf("ValidatePriority(%q): %v", p, err)
		}
	}
	if err := ValidatePriority("someday"); err == nil {
		t.Error("expected error for unknown priority")
	}
}

func TestTask_Title(t *testing.T) {
	task := &Task{Description: "First line\nsecond line"}
	if got := task.Title(); got != "First line" {
		t.Errorf("Title = %q, want First line", got)
	}

	long := &Task{Description: strings.Repeat("é", 120)}
	got := long.Title()
	if !strings.HasSuffix(got, "...") {
		t.Errorf("long title should be truncated, got %q", got)
	}
	if n := len([]rune(strings.TrimSuffix(got, "..."))); n != 80 {
		t.Errorf("truncated title has %d runes, want 80", n)
	}
}

// ─── Store ──────────────────────────────────────────────────────────────────

func TestStore_SaveWritesMarkdown(t *testing.T) {
	s, dir := newTestStore(t)
	fixedClock(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	task := NewTask("Implement driver ratings", "Needed for launch", PriorityHigh)
	if err := s.Save(context.Background(), task); err != nil {
		t.Fatalf("Save: %v", err)
	}

	want := filepath.Join(dir, task.ID+".md")
	if task.File != want {
		t.Errorf("File = %s, want %s", task.File, want)
	}

	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("reading task file: %v", err)
	}
	content := string(data)
	for _, s := range []string{
		"# Task: Implement driver ratings",
		task.ID,
		"high",
		"2026-03-01T12:00:00Z",
		"Needed for launch",
	} {
		if !strings.Contains(content, s) {
			t.Errorf("task file missing %q", s)
		}
	}
}

func TestStore_OpenNewestFirst(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, desc := range []string{"first", "second", "third"} {
		fixedClock(t, base.Add(time.Duration(i)*time.Minute))
		if err := s.Save(ctx, NewTask(desc, "", PriorityLow)); err != nil {
			t.Fatalf("Save(%s): %v", desc, err)
		}
	}

	list, err := s.Open(ctx, 2)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d tasks, want 2", len(list))
	}
	if list[0].Description != "third" || list[1].Description != "second" {
		t.Errorf("order = [%s %s], want [third second]", list[0].Description, list[1].Description)
	}
	if !list[0].CreatedAt.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("CreatedAt = %s, want %s", list[0].CreatedAt, base.Add(2*time.Minute))
	}
}

func TestStore_WithoutIndex(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tasks")
	s := NewStore(NewFileStore(dir, mustRenderer(t)), nil)

	task := NewTask("no index", "", PriorityMedium)
	if err := s.Save(context.Background(), task); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(task.File); err != nil {
		t.Errorf("task file not written: %v", err)
	}
	if _, err := s.Open(context.Background(), 10); !errors.Is(err, ErrNoIndex) {
		t.Errorf("Open err = %v, want ErrNoIndex", err)
	}
}

func TestStore_SaveFailsOnUnwritableDir(t *testing.T) {
	// A regular file where the directory should be.
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := NewStore(NewFileStore(filepath.Join(blocker, "tasks"), mustRenderer(t)), nil)

	task := NewTask("doomed", "", PriorityLow)
	if err := s.Save(context.Background(), task); err == nil {
		t.Fatal("expected error writing under a file")
	}
	if task.File != "" {
		t.Errorf("File = %q, want empty on failure", task.File)
	}
	if err := s.Ping(context.Background()); err == nil {
		t.Error("Ping should fail when the tasks dir cannot be created")
	}
}

func TestStore_Ping(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestGroupByPriority(t *testing.T) {
	list := []Task{
		{ID: "a", Priority: PriorityHigh},
		{ID: "b", Priority: PriorityLow},
		{ID: "c", Priority: PriorityHigh},
	}
	groups := GroupByPriority(list)
	if len(groups[PriorityHigh]) != 2 || groups[PriorityHigh][0].ID != "a" {
		t.Errorf("high group = %+v", groups[PriorityHigh])
	}
	if len(groups[PriorityLow]) != 1 {
		t.Errorf("low group = %+v", groups[PriorityLow])
	}
}

// ─── Index ──────────────────────────────────────────────────────────────────

func TestOpenIndex_CreatesDBFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	idx, err := OpenIndex(dir)
	if err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}
	defer func() { _ = idx.Close() }()

	if _, err := os.Stat(filepath.Join(dir, IndexFile)); err != nil {
		t.Errorf("database file not created: %v", err)
	}
}

func TestOpenIndex_IdempotentReopen(t *testing.T) {
	dir := t.TempDir()
	idx, err := OpenIndex(dir)
	if err != nil {
		t.Fatalf("first OpenIndex: %v", err)
	}
	task := NewTask("persisted", "", PriorityUrgent)
	if err := idx.Insert(context.Background(), task); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	_ = idx.Close()

	idx, err = OpenIndex(dir)
	if err != nil {
		t.Fatalf("second OpenIndex: %v", err)
	}
	defer func() { _ = idx.Close() }()

	list, err := idx.ListByStatus(context.Background(), StatusOpen, 0)
	if err != nil {
		t.Fatalf("ListByStatus: %v", err)
	}
	if len(list) != 1 || list[0].ID != task.ID || list[0].Priority != PriorityUrgent {
		t.Errorf("after reopen got %+v", list)
	}
}

func TestIndex_DuplicateInsert(t *testing.T) {
	idx, err := OpenIndex(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = idx.Close() }()

	task := NewTask("dup", "", PriorityLow)
	if err := idx.Insert(context.Background(), task); err != nil {
		t.Fatal(err)
	}
	if err := idx.Insert(context.Background(), task); err == nil {
		t.Error("expected error inserting the same ID twice")
	}
}
