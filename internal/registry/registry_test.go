package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nextlevelbuilder/orcd/internal/fork"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "team_contexts.json")
	r, err := New(path, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return r
}

func TestRegistry_CreateGetList(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.Create(TeamContext{ContextName: "team1", TmuxSession: "orc-team1"}); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	c, ok := r.Get("team1")
	if !ok {
		t.Fatal("Get() after Create: not found")
	}
	if c.TmuxSession != "orc-team1" {
		t.Errorf("TmuxSession = %q, want %q", c.TmuxSession, "orc-team1")
	}
	if c.CreatedAt.IsZero() || c.UpdatedAt.IsZero() {
		t.Error("Create() should stamp CreatedAt/UpdatedAt")
	}

	if got := r.List(); len(got) != 1 {
		t.Errorf("List() = %d contexts, want 1", len(got))
	}
}

func TestRegistry_Create_Duplicate(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.Create(TeamContext{ContextName: "team1"}); err != nil {
		t.Fatal(err)
	}
	if err := r.Create(TeamContext{ContextName: "team1"}); err == nil {
		t.Error("Create() with duplicate name: want error, got nil")
	}
}

func TestRegistry_Update(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.Create(TeamContext{ContextName: "team1"}); err != nil {
		t.Fatal(err)
	}
	err := r.Update("team1", map[string]any{"workingDir": "/new/dir"})
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	c, _ := r.Get("team1")
	if c.WorkingDir != "/new/dir" {
		t.Errorf("WorkingDir = %q, want /new/dir", c.WorkingDir)
	}
}

func TestRegistry_Update_UnknownField(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.Create(TeamContext{ContextName: "team1"}); err != nil {
		t.Fatal(err)
	}
	if err := r.Update("team1", map[string]any{"bogus": "x"}); err == nil {
		t.Error("Update() with unknown field: want error, got nil")
	}
}

func TestRegistry_Update_NotFound(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.Update("ghost", map[string]any{"workingDir": "/x"}); err == nil {
		t.Error("Update() on missing context: want error, got nil")
	}
}

func TestRegistry_Delete(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.Create(TeamContext{ContextName: "team1"}); err != nil {
		t.Fatal(err)
	}
	if err := r.Delete("team1"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, ok := r.Get("team1"); ok {
		t.Error("Get() after Delete: still found")
	}
}

func TestRegistry_Resume_MissingTranscript(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	r := newTestRegistry(t)
	ctx := TeamContext{
		ContextName: "team1",
		Agents:      []AgentInfo{{Name: "alice", TranscriptId: ""}},
	}
	if err := r.Create(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Resume("team1"); err == nil {
		t.Error("Resume() with agent missing TranscriptId: want error, got nil")
	}
}

func TestRegistry_Resume_OK(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	r := newTestRegistry(t)
	ctx := TeamContext{
		ContextName: "team1",
		Agents:      []AgentInfo{{Name: "alice", TranscriptId: "abc"}},
	}
	if err := r.Create(ctx); err != nil {
		t.Fatal(err)
	}

	dir := fork.TranscriptDir(home, "team1", "alice", "")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "abc.jsonl"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := r.Resume("team1")
	if err != nil {
		t.Fatalf("Resume() error: %v", err)
	}
	if len(got.Agents) != 1 || got.Agents[0].TranscriptId != "abc" {
		t.Errorf("Resume() = %+v", got)
	}
}

func TestRegistry_Resume_ForksForwardToDescendantTranscript(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	r := newTestRegistry(t)
	ctx := TeamContext{
		ContextName: "team1",
		Agents:      []AgentInfo{{Name: "alice", TranscriptId: "old-session"}},
	}
	if err := r.Create(ctx); err != nil {
		t.Fatal(err)
	}

	dir := fork.TranscriptDir(home, "team1", "alice", "")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "old-session.jsonl"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	newPath := filepath.Join(dir, "new-session.jsonl")
	if err := os.WriteFile(newPath, []byte(`{"sessionId":"old-session"}`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := r.Resume("team1")
	if err != nil {
		t.Fatalf("Resume() error: %v", err)
	}
	if got.Agents[0].TranscriptId != "new-session" {
		t.Errorf("Resume() TranscriptId = %q, want new-session (forked forward)", got.Agents[0].TranscriptId)
	}

	reloaded, ok := r.Get("team1")
	if !ok || reloaded.Agents[0].TranscriptId != "new-session" {
		t.Errorf("forked TranscriptId was not persisted: %+v", reloaded)
	}
}

func TestRegistry_Resume_NoDescendantFound(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	r := newTestRegistry(t)
	ctx := TeamContext{
		ContextName: "team1",
		Agents:      []AgentInfo{{Name: "alice", TranscriptId: "missing"}},
	}
	if err := r.Create(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Resume("team1"); err == nil {
		t.Error("Resume() with no transcript dir and no descendant: want error, got nil")
	}
}

func TestRegistry_PersistsAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "team_contexts.json")
	r1, err := New(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := r1.Create(TeamContext{ContextName: "team1", TmuxSession: "orc-team1"}); err != nil {
		t.Fatal(err)
	}

	r2, err := New(path, nil)
	if err != nil {
		t.Fatalf("New() on reload error: %v", err)
	}
	c, ok := r2.Get("team1")
	if !ok || c.TmuxSession != "orc-team1" {
		t.Errorf("reloaded registry Get() = %+v, %v", c, ok)
	}
}

func TestRegistry_CorruptedFileTreatedAsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "team_contexts.json")
	if err := os.WriteFile(path, []byte("not valid json {{{"), 0o644); err != nil {
		t.Fatal(err)
	}
	r, err := New(path, nil)
	if err != nil {
		t.Fatalf("New() on corrupted file: want nil error, got %v", err)
	}
	if got := r.List(); len(got) != 0 {
		t.Errorf("List() on corrupted-file registry = %d, want 0", len(got))
	}
}

func TestRegistry_Cleanup(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.Create(TeamContext{ContextName: "team1"}); err != nil {
		t.Fatal(err)
	}
	if err := r.Cleanup("team1"); err != nil {
		t.Fatalf("Cleanup() error: %v", err)
	}
	if _, ok := r.Get("team1"); ok {
		t.Error("Cleanup() should remove the context entry")
	}
}
