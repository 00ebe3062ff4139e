package supervisor

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nextlevelbuilder/orcd/internal/transcript"
)

var tracer = otel.Tracer("github.com/nextlevelbuilder/orcd/internal/supervisor")

type queuedCommand struct {
	owner string
	cmd   transcript.Command
}

// pollLoop reads new transcript messages every PollInterval, extracts
// embedded commands, and dispatches them (spec.md §4.8).
func (s *Supervisor) pollLoop() {
	defer close(s.pollDone)
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for s.running.Load() {
		<-ticker.C
		if !s.running.Load() {
			return
		}
		s.pollOnce(context.Background())
	}
}

func (s *Supervisor) pollOnce(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "supervisor.poll_tick")
	defer span.End()

	s.transcriptsLock.Lock()
	monitors := make(map[string]*transcript.Monitor, len(s.transcripts))
	for name, m := range s.transcripts {
		monitors[name] = m
	}
	s.transcriptsLock.Unlock()

	var queue []queuedCommand
	for name, mon := range monitors {
		msgs, err := mon.GetNewMessages()
		if err != nil {
			s.log.Debug("transcript read failed", slog.String("agent", name), slog.Any("error", err))
			continue
		}
		if len(msgs) == 0 {
			continue
		}

		s.agentsLock.Lock()
		if a, ok := s.agents[name]; ok {
			a.LastActive = time.Now()
		}
		s.agentsLock.Unlock()

		for _, msg := range msgs {
			for _, cmd := range transcript.ExtractCommands(msg.Content, name) {
				queue = append(queue, queuedCommand{owner: name, cmd: cmd})
			}
		}
	}

	span.SetAttributes(attribute.Int("commands.count", len(queue)))
	for _, qc := range queue {
		s.dispatchCommand(ctx, qc.owner, qc.cmd)
	}
}

func (s *Supervisor) dispatchCommand(ctx context.Context, owner string, cmd transcript.Command) {
	switch cmd.Name {
	case "send_message":
		s.handleSendMessage(ctx, owner, cmd)
	case "list_agents":
		s.handleListAgentsCommand(ctx, owner)
	case "mailbox_check":
		s.handleMailboxCheckCommand(ctx, owner)
	case "context_status":
		s.handleContextStatusCommand(ctx, owner)
	default:
		s.log.Debug("unknown embedded command", slog.String("name", cmd.Name), slog.String("owner", owner))
	}
}

// stateLoop refreshes each agent's classified state, pane annotations, and
// delivers pending reminders every MonitorInterval (enhanced variant only).
func (s *Supervisor) stateLoop() {
	defer close(s.stateDone)
	ticker := time.NewTicker(s.cfg.MonitorInterval)
	defer ticker.Stop()

	previousStates := make(map[string]string)
	previousCounts := make(map[string]int)

	for s.running.Load() {
		<-ticker.C
		if !s.running.Load() {
			return
		}
		s.stateTick(context.Background(), previousStates, previousCounts)
	}
}

func (s *Supervisor) stateTick(ctx context.Context, previousStates map[string]string, previousCounts map[string]int) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("state tick panicked", slog.Any("recover", r))
		}
	}()

	s.agentsLock.Lock()
	names := append([]string(nil), s.agentOrder...)
	s.agentsLock.Unlock()

	for _, name := range names {
		s.agentsLock.Lock()
		a, ok := s.agents[name]
		s.agentsLock.Unlock()
		if !ok {
			continue
		}

		newState, err := s.stateMonitor.UpdateAgentState(name, a.PaneIndex)
		if err != nil {
			continue
		}

		if previousStates[name] != newState.String() {
			previousStates[name] = newState.String()
			_ = s.term.SetPaneAnnotation(ctx, a.PaneIndex, "state_dot", stateDot(newState.String()))
		}

		count := s.box.Count(name)
		if previousCounts[name] != count {
			previousCounts[name] = count
			_ = s.term.SetPaneAnnotation(ctx, a.PaneIndex, "msg_count", itoa(count))
		}
	}

	if s.delivery != nil {
		s.delivery.CheckAndDeliverPendingReminders(ctx, names)
	}

	if int(time.Now().Unix())%30 == 0 {
		s.log.Info("agent state summary", slog.Any("states", s.stateMonitor.Summary()))
	}
}

func stateDot(stateName string) string {
	switch strings.ToLower(stateName) {
	case "busy", "writing":
		return "●"
	case "error", "quit":
		return "✗"
	case "idle":
		return "○"
	default:
		return "·"
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
