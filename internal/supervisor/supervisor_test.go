package supervisor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/orcd/internal/launch"
	"github.com/nextlevelbuilder/orcd/internal/terminal"
)

type fakeTerminal struct {
	mu        sync.Mutex
	sentLines []string
	panes     []terminal.PaneInfo
}

func (f *fakeTerminal) SessionExists(ctx context.Context) bool { return false }
func (f *fakeTerminal) CreateSession(ctx context.Context, numPanes int, force bool, splits []string) error {
	return nil
}
func (f *fakeTerminal) SendToPane(ctx context.Context, pane int, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sentLines = append(f.sentLines, text)
	return nil
}
func (f *fakeTerminal) TypeInPane(ctx context.Context, pane int, text string) error { return nil }
func (f *fakeTerminal) CapturePane(pane int, historyLimit int) (string, error)      { return "", nil }
func (f *fakeTerminal) SetPaneTitle(ctx context.Context, pane int, title string) error {
	return nil
}
func (f *fakeTerminal) SetPaneAnnotation(ctx context.Context, pane int, key, value string) error {
	return nil
}
func (f *fakeTerminal) ListPanes(ctx context.Context) ([]terminal.PaneInfo, error) {
	return f.panes, nil
}
func (f *fakeTerminal) GetLayoutInfo(ctx context.Context) (int, int, error) {
	return 0, 0, fmt.Errorf("fakeTerminal: no attached client")
}
func (f *fakeTerminal) KillSession(ctx context.Context) error { return nil }

type fakeBuilder struct{}

func (fakeBuilder) BuildLaunchCommand(spec launch.Spec) (string, string, error) {
	sessionId := spec.SessionId
	if sessionId == "" {
		sessionId = "fake-session-" + spec.InstanceName
	}
	return "launch " + spec.InstanceName, sessionId, nil
}

func newTestSupervisor() *Supervisor {
	return New(nil, Config{
		PollInterval:    50 * time.Millisecond,
		MonitorInterval: 50 * time.Millisecond,
		ShutdownTimeout: time.Second,
	}, &fakeTerminal{}, fakeBuilder{})
}

func TestRegisterAgent_AssignsIncrementingPaneIndex(t *testing.T) {
	s := newTestSupervisor()
	if err := s.RegisterAgent("alice", "", "", ""); err != nil {
		t.Fatalf("RegisterAgent() error: %v", err)
	}
	if err := s.RegisterAgent("bob", "", "", ""); err != nil {
		t.Fatalf("RegisterAgent() error: %v", err)
	}

	idx, ok := s.PaneIndex("alice")
	if !ok || idx != 0 {
		t.Errorf("alice pane index = %d, %v, want 0, true", idx, ok)
	}
	idx, ok = s.PaneIndex("bob")
	if !ok || idx != 1 {
		t.Errorf("bob pane index = %d, %v, want 1, true", idx, ok)
	}
}

func TestRegisterAgent_DuplicateNameRejected(t *testing.T) {
	s := newTestSupervisor()
	if err := s.RegisterAgent("alice", "", "", ""); err != nil {
		t.Fatal(err)
	}
	if err := s.RegisterAgent("alice", "", "", ""); err == nil {
		t.Error("RegisterAgent() with duplicate name: want error, got nil")
	}
}

func TestPaneIndex_UnknownAgent(t *testing.T) {
	s := newTestSupervisor()
	if _, ok := s.PaneIndex("ghost"); ok {
		t.Error("PaneIndex() for unregistered agent: want false")
	}
}

func TestLookupCaseInsensitive(t *testing.T) {
	s := newTestSupervisor()
	if err := s.RegisterAgent("Alice", "", "", ""); err != nil {
		t.Fatal(err)
	}
	a, ok := s.lookupCaseInsensitive("alice")
	if !ok || a.Name != "Alice" {
		t.Errorf("lookupCaseInsensitive() = %+v, %v, want Alice, true", a, ok)
	}
}

func TestDispatcher_SendMessage_UnknownRecipient(t *testing.T) {
	s := newTestSupervisor()
	if _, err := s.SendMessage("alice", "ghost", "hi"); err == nil {
		t.Error("SendMessage() to unknown recipient: want error, got nil")
	}
}

func TestDispatcher_SendMessage_FallsBackToMailboxWithoutDeliveryEngine(t *testing.T) {
	s := newTestSupervisor()
	if err := s.RegisterAgent("bob", "", "", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SendMessage("alice", "bob", "hi"); err != nil {
		t.Fatalf("SendMessage() error: %v", err)
	}
	if s.box.Count("bob") != 1 {
		t.Errorf("box.Count(bob) = %d, want 1", s.box.Count("bob"))
	}
}

func TestDispatcher_CheckMessages_RespectsLimit(t *testing.T) {
	s := newTestSupervisor()
	if err := s.RegisterAgent("bob", "", "", ""); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, err := s.SendMessage("alice", "bob", "hi"); err != nil {
			t.Fatal(err)
		}
	}
	text, err := s.CheckMessages("bob", 2)
	if err != nil {
		t.Fatalf("CheckMessages() error: %v", err)
	}
	if text == "" {
		t.Error("CheckMessages() returned empty text for a non-empty mailbox")
	}
	if got := strings.Count(text, "From alice: hi"); got != 2 {
		t.Errorf("CheckMessages() rendered %d messages, want 2 (the limit)", got)
	}
	if s.box.Count("bob") != 0 {
		t.Error("CheckMessages() should drain the mailbox")
	}
}

func TestDispatcher_CheckMessages_Empty(t *testing.T) {
	s := newTestSupervisor()
	text, err := s.CheckMessages("bob", 10)
	if err != nil {
		t.Fatalf("CheckMessages() error: %v", err)
	}
	if text != "No new messages" {
		t.Errorf("CheckMessages() = %q, want %q", text, "No new messages")
	}
}

func TestDispatcher_ListAgents(t *testing.T) {
	s := newTestSupervisor()
	_ = s.RegisterAgent("alice", "", "", "")
	_ = s.RegisterAgent("bob", "", "", "")
	text, err := s.ListAgents()
	if err != nil {
		t.Fatalf("ListAgents() error: %v", err)
	}
	if text != "alice, bob" {
		t.Errorf("ListAgents() = %q, want %q", text, "alice, bob")
	}
}

func TestDispatcher_BroadcastMessage_ExcludesSender(t *testing.T) {
	s := newTestSupervisor()
	_ = s.RegisterAgent("alice", "", "", "")
	_ = s.RegisterAgent("bob", "", "", "")
	_ = s.RegisterAgent("carol", "", "", "")

	count, err := s.BroadcastMessage("alice", "hello team")
	if err != nil {
		t.Fatalf("BroadcastMessage() error: %v", err)
	}
	if count != "broadcast delivered to 2 agent(s)" {
		t.Errorf("BroadcastMessage() = %q", count)
	}
	if s.box.Count("alice") != 0 {
		t.Error("sender should not receive their own broadcast")
	}
	if s.box.Count("bob") != 1 || s.box.Count("carol") != 1 {
		t.Error("every other agent should receive the broadcast")
	}
}
