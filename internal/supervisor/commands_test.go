package supervisor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/nextlevelbuilder/orcd/internal/transcript"
)

func TestHandleSendMessage_UnknownRecipientRespondsError(t *testing.T) {
	s := newTestSupervisor()
	if err := s.RegisterAgent("alice", "", "", ""); err != nil {
		t.Fatal(err)
	}
	term := s.term.(*fakeTerminal)

	s.handleSendMessage(context.Background(), "alice", transcript.Command{To: "ghost", Content: "hi"})

	term.mu.Lock()
	defer term.mu.Unlock()
	if len(term.sentLines) != 1 || !strings.Contains(term.sentLines[0], "unknown agent") {
		t.Errorf("sent lines = %v, want an unknown-agent error response", term.sentLines)
	}
}

func TestHandleSendMessage_NormalPriorityAppendsMailboxAndNotifies(t *testing.T) {
	s := newTestSupervisor()
	_ = s.RegisterAgent("alice", "", "", "")
	_ = s.RegisterAgent("bob", "", "", "")
	term := s.term.(*fakeTerminal)

	s.handleSendMessage(context.Background(), "alice", transcript.Command{To: "bob", Content: "hi", Priority: "normal"})

	if s.box.Count("bob") != 1 {
		t.Errorf("box.Count(bob) = %d, want 1", s.box.Count("bob"))
	}
	term.mu.Lock()
	defer term.mu.Unlock()
	if len(term.sentLines) != 1 || !strings.Contains(term.sentLines[0], "MAILBOX NOTIFICATION") {
		t.Errorf("sent lines = %v, want a mailbox notification", term.sentLines)
	}
}

func TestHandleSendMessage_HighPriorityInterruptRespectsCooldown(t *testing.T) {
	s := newTestSupervisor()
	_ = s.RegisterAgent("alice", "", "", "")
	_ = s.RegisterAgent("bob", "", "", "")
	term := s.term.(*fakeTerminal)

	s.handleSendMessage(context.Background(), "alice", transcript.Command{To: "bob", Content: "urgent", Priority: "high"})
	term.mu.Lock()
	first := len(term.sentLines)
	term.mu.Unlock()
	if first != 1 || !strings.Contains(term.sentLines[0], "INTERRUPT") {
		t.Fatalf("first high-priority send should interrupt, got %v", term.sentLines)
	}

	s.handleSendMessage(context.Background(), "alice", transcript.Command{To: "bob", Content: "urgent again", Priority: "high"})
	term.mu.Lock()
	defer term.mu.Unlock()
	if len(term.sentLines) != 2 {
		t.Fatalf("second send within cooldown should fall back to mailbox path, got %v", term.sentLines)
	}
	if strings.Contains(term.sentLines[1], "INTERRUPT") {
		t.Error("second send within cooldown should not be another interrupt")
	}
}

func TestHandleListAgentsCommand_RespondsWithJSON(t *testing.T) {
	s := newTestSupervisor()
	_ = s.RegisterAgent("alice", "", "", "")
	term := s.term.(*fakeTerminal)

	s.handleListAgentsCommand(context.Background(), "alice")

	term.mu.Lock()
	defer term.mu.Unlock()
	if len(term.sentLines) != 1 || !strings.Contains(term.sentLines[0], `"name":"alice"`) {
		t.Errorf("sent lines = %v, want JSON listing alice", term.sentLines)
	}
}

func TestHandleMailboxCheckCommand_DrainsAndFormats(t *testing.T) {
	s := newTestSupervisor()
	_ = s.RegisterAgent("alice", "", "", "")
	_ = s.RegisterAgent("bob", "", "", "")
	term := s.term.(*fakeTerminal)

	if _, err := s.SendMessage("alice", "bob", "hello"); err != nil {
		t.Fatal(err)
	}

	s.handleMailboxCheckCommand(context.Background(), "bob")

	term.mu.Lock()
	defer term.mu.Unlock()
	if len(term.sentLines) != 1 || !strings.Contains(term.sentLines[0], "From alice: hello") {
		t.Errorf("sent lines = %v", term.sentLines)
	}
}

func TestHandleMailboxCheckCommand_EmptyMailbox(t *testing.T) {
	s := newTestSupervisor()
	_ = s.RegisterAgent("bob", "", "", "")
	term := s.term.(*fakeTerminal)

	s.handleMailboxCheckCommand(context.Background(), "bob")

	term.mu.Lock()
	defer term.mu.Unlock()
	if len(term.sentLines) != 1 || !strings.Contains(term.sentLines[0], "No new messages") {
		t.Errorf("sent lines = %v", term.sentLines)
	}
}

func TestDispatchCommand_UnknownCommandNameIsIgnored(t *testing.T) {
	s := newTestSupervisor()
	_ = s.RegisterAgent("alice", "", "", "")
	term := s.term.(*fakeTerminal)

	s.dispatchCommand(context.Background(), "alice", transcript.Command{Name: "bogus"})

	term.mu.Lock()
	defer term.mu.Unlock()
	if len(term.sentLines) != 0 {
		t.Errorf("unknown command should produce no pane output, got %v", term.sentLines)
	}
}

func TestStateDot(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Busy", "●"},
		{"Writing", "●"},
		{"Error", "✗"},
		{"Quit", "✗"},
		{"Idle", "○"},
		{"Initializing", "·"},
	}
	for _, tt := range tests {
		if got := stateDot(tt.in); got != tt.want {
			t.Errorf("stateDot(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestItoa(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{0, "0"},
		{42, "42"},
		{-7, "-7"},
	}
	for _, tt := range tests {
		if got := itoa(tt.n); got != tt.want {
			t.Errorf("itoa(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestSupervisor_WaitForAgentIdle_NoStateMonitor(t *testing.T) {
	s := newTestSupervisor()
	if s.WaitForAgentIdle("alice", 100*time.Millisecond) {
		t.Error("WaitForAgentIdle() without a state monitor should return false")
	}
}
