package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/nextlevelbuilder/orcd/internal/mailbox"
	"github.com/nextlevelbuilder/orcd/internal/transcript"
)

const interruptCooldown = 2 * time.Second
const contextSizeWarnThreshold = 5 * 1024 * 1024 // 5 MB

// handleSendMessage implements the send_message command handler (spec.md
// §4.8): case-insensitive recipient lookup, high-priority interrupt path
// subject to per-recipient cooldown, else ordinary mailbox + notification.
func (s *Supervisor) handleSendMessage(ctx context.Context, owner string, cmd transcript.Command) {
	if cmd.To == "" {
		s.respond(ctx, owner, "send_message", "error: 'to' is required")
		return
	}
	recipient, ok := s.lookupCaseInsensitive(cmd.To)
	if !ok {
		s.respond(ctx, owner, "send_message", fmt.Sprintf("error: unknown agent %q", cmd.To))
		return
	}

	if cmd.Priority == "high" {
		s.interruptLock.Lock()
		last, seen := s.lastInterruptSent[recipient.Name]
		cooldownElapsed := !seen || time.Since(last) >= interruptCooldown
		if cooldownElapsed {
			s.lastInterruptSent[recipient.Name] = time.Now()
		}
		s.interruptLock.Unlock()

		if cooldownElapsed {
			line := fmt.Sprintf("[INTERRUPT FROM: %s] %s", owner, cmd.Content)
			_ = s.term.SendToPane(ctx, recipient.PaneIndex, line)
			s.box.Append(recipient.Name, mailbox.Message{
				From: owner, To: recipient.Name, Title: cmd.Title,
				Content: cmd.Content, Priority: cmd.Priority, Timestamp: time.Now(),
			})
			return
		}
	}

	s.box.Append(recipient.Name, mailbox.Message{
		From: owner, To: recipient.Name, Title: cmd.Title,
		Content: cmd.Content, Priority: cmd.Priority, Timestamp: time.Now(),
	})
	line := fmt.Sprintf("[MAILBOX NOTIFICATION] New message from %s.", owner)
	_ = s.term.SendToPane(ctx, recipient.PaneIndex, line)

	if s.stateMonitor != nil && s.stateMonitor.IsBusy(recipient.Name) {
		s.stateMonitor.IncrementMessagesSentWhileBusy(recipient.Name)
	}
}

type agentSummary struct {
	Name         string `json:"name"`
	TranscriptId string `json:"transcriptId"`
	PaneIndex    int    `json:"paneIndex"`
	LastActive   string `json:"lastActive"`
	MailboxCount int    `json:"mailboxCount"`
}

func (s *Supervisor) handleListAgentsCommand(ctx context.Context, owner string) {
	s.agentsLock.Lock()
	var out []agentSummary
	for _, name := range s.agentOrder {
		a := s.agents[name]
		out = append(out, agentSummary{
			Name:         a.Name,
			TranscriptId: a.TranscriptId,
			PaneIndex:    a.PaneIndex,
			LastActive:   a.LastActive.Format(time.RFC3339),
			MailboxCount: s.box.Count(a.Name),
		})
	}
	s.agentsLock.Unlock()

	data, _ := json.Marshal(out)
	s.respond(ctx, owner, "list_agents", string(data))
}

func (s *Supervisor) handleMailboxCheckCommand(ctx context.Context, owner string) {
	msgs := s.box.Drain(owner)
	if len(msgs) == 0 {
		s.respond(ctx, owner, "mailbox", "No new messages")
		return
	}
	text := ""
	for _, m := range msgs {
		text += fmt.Sprintf("From %s: %s\n", m.From, m.Content)
	}
	s.respond(ctx, owner, "mailbox", text)
}

func (s *Supervisor) handleContextStatusCommand(ctx context.Context, owner string) {
	s.transcriptsLock.Lock()
	_, ok := s.transcripts[owner]
	s.transcriptsLock.Unlock()
	if !ok {
		s.respond(ctx, owner, "context_status", "no transcript bound")
		return
	}

	path := s.transcriptPathOf(owner)
	info, err := os.Stat(path)
	if err != nil {
		s.respond(ctx, owner, "context_status", "transcript file unavailable")
		return
	}

	estimatedLines := info.Size() / 100
	warning := ""
	if info.Size() > contextSizeWarnThreshold {
		warning = " (warning: transcript is large, consider summarizing)"
	}
	s.respond(ctx, owner, "context_status", fmt.Sprintf("size=%d bytes, ~%d lines%s", info.Size(), estimatedLines, warning))
}

func (s *Supervisor) transcriptPathOf(agentName string) string {
	a := s.agents[agentName]
	return expectedTranscriptPath(s.cfg.HomeDir, s.cfg.ContextName, agentName, a.WorkingDir, a.TranscriptId)
}

func (s *Supervisor) respond(ctx context.Context, owner, kind, body string) {
	s.agentsLock.Lock()
	a, ok := s.agents[owner]
	s.agentsLock.Unlock()
	if !ok {
		return
	}
	line := fmt.Sprintf("[ORC RESPONSE: %s] %s", kind, body)
	_ = s.term.SendToPane(ctx, a.PaneIndex, line)
}
