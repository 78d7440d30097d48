package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileStoreSessionRoundTrip(t *testing.T) {
	store := NewFileStore(t.TempDir())

	sess := &ChatSession{
		ID:       "s1",
		Title:    "First chat",
		ThreadID: "t1",
		Messages: []Message{
			{ID: "m1", Role: RoleUser, Text: "hello"},
			{ID: "m2", Role: RoleAssistant, Text: "hi there"},
		},
		CreatedAt: time.Now().Add(-time.Minute),
		UpdatedAt: time.Now(),
	}
	if err := store.SaveSession(sess); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := store.LoadSessions()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("want 1 session, got %d", len(loaded))
	}
	got := loaded[0]
	if got.ID != "s1" || got.Title != "First chat" || got.ThreadID != "t1" {
		t.Fatalf("session=%+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[1].Text != "hi there" {
		t.Fatalf("messages=%+v", got.Messages)
	}
}

func TestFileStoreLoadOrdersByCreatedAt(t *testing.T) {
	store := NewFileStore(t.TempDir())
	base := time.Now()

	for _, sess := range []*ChatSession{
		{ID: "newer", CreatedAt: base},
		{ID: "older", CreatedAt: base.Add(-time.Hour)},
	} {
		if err := store.SaveSession(sess); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}

	loaded, err := store.LoadSessions()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded[0].ID != "older" || loaded[1].ID != "newer" {
		t.Fatalf("order wrong: %s, %s", loaded[0].ID, loaded[1].ID)
	}
}

func TestFileStoreDeleteSession(t *testing.T) {
	store := NewFileStore(t.TempDir())
	if err := store.SaveSession(&ChatSession{ID: "s1"}); err != nil {
		t.Fatal(err)
	}

	if err := store.DeleteSession("s1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := store.DeleteSession("s1"); err != nil {
		t.Fatalf("deleting an absent session must succeed: %v", err)
	}

	loaded, err := store.LoadSessions()
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 0 {
		t.Fatalf("session survived delete")
	}
}

func TestFileStoreSkipsCorruptDocuments(t *testing.T) {
	root := t.TempDir()
	store := NewFileStore(root)
	if err := store.SaveSession(&ChatSession{ID: "good"}); err != nil {
		t.Fatal(err)
	}
	corrupt := filepath.Join(root, "session", "bad.json")
	if err := os.WriteFile(corrupt, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	loaded, err := store.LoadSessions()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(loaded) != 1 || loaded[0].ID != "good" {
		t.Fatalf("loaded=%+v", loaded)
	}
}

func TestFileStoreEmptyRootLoadsNothing(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "never-created"))

	sessions, err := store.LoadSessions()
	if err != nil || len(sessions) != 0 {
		t.Fatalf("sessions=%v err=%v", sessions, err)
	}
	projects, err := store.LoadProjects()
	if err != nil || len(projects) != 0 {
		t.Fatalf("projects=%v err=%v", projects, err)
	}
}

func TestFileStoreProjectRoundTrip(t *testing.T) {
	store := NewFileStore(t.TempDir())
	project := &Project{
		ID:      "p1",
		Name:    "Research",
		ChatIDs: []string{"s1", "s2"},
		Attachments: []ProjectAttachment{
			{ID: "a1", Name: "notes.txt", Path: "/tmp/notes.txt", Mime: "text/plain", Size: 5},
		},
		CreatedAt: time.Now(),
	}
	if err := store.SaveProject(project); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := store.LoadProjects()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("want 1 project, got %d", len(loaded))
	}
	got := loaded[0]
	if got.Name != "Research" || len(got.ChatIDs) != 2 || len(got.Attachments) != 1 {
		t.Fatalf("project=%+v", got)
	}

	if err := store.DeleteProject("p1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	loaded, _ = store.LoadProjects()
	if len(loaded) != 0 {
		t.Fatalf("project survived delete")
	}
}
