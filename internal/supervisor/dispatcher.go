package supervisor

import (
	"context"
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/orcd/internal/mailbox"
)

// SendMessage implements broker.Dispatcher: the MCP tool path for
// send_message, used by an agent calling the tool directly (distinct from
// the embedded-command path in commands.go).
func (s *Supervisor) SendMessage(caller, to, message string) (string, error) {
	recipient, ok := s.lookupCaseInsensitive(to)
	if !ok {
		return "", fmt.Errorf("unknown agent %q", to)
	}
	ctx := context.Background()
	if s.delivery != nil {
		if _, err := s.delivery.SendMessageToAgent(ctx, recipient.Name, caller, message, "normal"); err != nil {
			return "", err
		}
	} else {
		s.box.Append(recipient.Name, mailbox.Message{From: caller, To: recipient.Name, Content: message})
	}
	return fmt.Sprintf("message sent to %s", recipient.Name), nil
}

// CheckMessages implements broker.Dispatcher: drains the caller's mailbox
// and renders up to limit messages as text.
func (s *Supervisor) CheckMessages(caller string, limit int) (string, error) {
	msgs := s.box.Drain(caller)
	if len(msgs) == 0 {
		return "No new messages", nil
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	var sb strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&sb, "From %s: %s\n", m.From, m.Content)
	}
	return sb.String(), nil
}

// ListAgents implements broker.Dispatcher: a comma-separated list of
// currently registered agent names.
func (s *Supervisor) ListAgents() (string, error) {
	s.agentsLock.Lock()
	defer s.agentsLock.Unlock()
	return strings.Join(s.agentOrder, ", "), nil
}

// BroadcastMessage implements broker.Dispatcher: appends message (prefixed
// "[BROADCAST]") to every agent's mailbox except the sender's.
func (s *Supervisor) BroadcastMessage(caller, message string) (string, error) {
	s.agentsLock.Lock()
	names := append([]string(nil), s.agentOrder...)
	s.agentsLock.Unlock()

	count := 0
	for _, name := range names {
		if equalFold(name, caller) {
			continue
		}
		s.box.Append(name, mailbox.Message{
			From:    caller,
			To:      name,
			Content: "[BROADCAST] " + message,
		})
		count++
	}
	return fmt.Sprintf("broadcast delivered to %d agent(s)", count), nil
}
