// Package delivery sequences keystroke injections to agent panes so
// notifications and reminders never interleave garbled (spec.md §4.6).
package delivery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/orcd/internal/mailbox"
	"github.com/nextlevelbuilder/orcd/internal/state"
)

// PaneWriter is the subset of the Terminal Adapter the Delivery Engine needs.
type PaneWriter interface {
	SendToPane(ctx context.Context, pane int, text string) error
	TypeInPane(ctx context.Context, pane int, text string) error
}

// StateReader is the subset of the State Monitor the Delivery Engine needs.
type StateReader interface {
	Status(agentName string) (state.Status, bool)
}

// AgentPane resolves an agent name to its pane index.
type AgentPane interface {
	PaneIndex(agentName string) (int, bool)
}

const (
	notificationGap   = 200 * time.Millisecond
	interruptCooldown = 2 * time.Second
)

// Engine is the single point through which every pane notification and
// reminder is sent. All operations serialize on one lock (the contract's
// "delivery lock is a leaf": never held together with any other lock).
type Engine struct {
	mu sync.Mutex

	panes  PaneWriter
	states StateReader
	agents AgentPane
	box    *mailbox.Box

	limiters         map[string]*rate.Limiter
	reminderLatched  map[string]bool
	lastInterruptAt  map[string]time.Time
}

func New(panes PaneWriter, states StateReader, agents AgentPane, box *mailbox.Box) *Engine {
	return &Engine{
		panes:           panes,
		states:          states,
		agents:          agents,
		box:             box,
		limiters:        make(map[string]*rate.Limiter),
		reminderLatched: make(map[string]bool),
		lastInterruptAt: make(map[string]time.Time),
	}
}

func (e *Engine) limiterFor(agent string) *rate.Limiter {
	l, ok := e.limiters[agent]
	if !ok {
		l = rate.NewLimiter(rate.Every(notificationGap), 1)
		e.limiters[agent] = l
	}
	return l
}

// SendMessageToAgent always appends to the recipient's mailbox, then emits
// a one-line pane notification (rate-limited to one per notificationGap per
// recipient), and resets the recipient's idle-reminder latch.
func (e *Engine) SendMessageToAgent(ctx context.Context, to, from, body, priority string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.box.Append(to, mailbox.Message{
		From:      from,
		To:        to,
		Content:   body,
		Priority:  priority,
		Timestamp: time.Now(),
	})
	e.reminderLatched[to] = false

	pane, ok := e.agents.PaneIndex(to)
	if !ok {
		return true, nil
	}

	_ = e.limiterFor(to).Wait(ctx)
	line := fmt.Sprintf("[MESSAGE] You have a new message from %s. Check it when convenient using 'check_messages'.", from)
	if err := e.panes.SendToPane(ctx, pane, line); err != nil {
		return false, fmt.Errorf("notify %s: %w", to, err)
	}
	return true, nil
}

// CheckAndDeliverPendingReminders emits an idle reminder to any agent that
// is Idle, has a non-empty mailbox, and has not already been reminded since
// its last mailbox write.
func (e *Engine) CheckAndDeliverPendingReminders(ctx context.Context, agentNames []string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, agent := range agentNames {
		count := e.box.Count(agent)
		if count == 0 {
			e.reminderLatched[agent] = false
			continue
		}
		if e.reminderLatched[agent] {
			continue
		}
		st, ok := e.states.Status(agent)
		if !ok || st.State != state.Idle {
			continue
		}
		pane, ok := e.agents.PaneIndex(agent)
		if !ok {
			continue
		}
		line := fmt.Sprintf("[MESSAGE] Reminder: You have %d unread message(s).", count)
		if err := e.panes.SendToPane(ctx, pane, line); err == nil {
			e.reminderLatched[agent] = true
		}
	}
}

// SendTextToAgentInput is a thin passthrough to the adapter's type operation.
func (e *Engine) SendTextToAgentInput(ctx context.Context, agent, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	pane, ok := e.agents.PaneIndex(agent)
	if !ok {
		return fmt.Errorf("unknown agent %q", agent)
	}
	return e.panes.TypeInPane(ctx, pane, text)
}

// SendCommandToAgent is a thin passthrough to the adapter's send operation.
func (e *Engine) SendCommandToAgent(ctx context.Context, agent, command string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	pane, ok := e.agents.PaneIndex(agent)
	if !ok {
		return fmt.Errorf("unknown agent %q", agent)
	}
	return e.panes.SendToPane(ctx, pane, command)
}

// TrySendInterrupt emits a dedicated interrupt line if the per-recipient
// cooldown has elapsed, returning false (no interrupt sent) otherwise — in
// which case the caller should fall back to the ordinary mailbox path.
func (e *Engine) TrySendInterrupt(ctx context.Context, to, from string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if last, ok := e.lastInterruptAt[to]; ok && time.Since(last) < interruptCooldown {
		return false, nil
	}
	pane, ok := e.agents.PaneIndex(to)
	if !ok {
		return false, fmt.Errorf("unknown agent %q", to)
	}
	line := fmt.Sprintf("[INTERRUPT FROM: %s]", from)
	if err := e.panes.SendToPane(ctx, pane, line); err != nil {
		return false, fmt.Errorf("interrupt %s: %w", to, err)
	}
	e.lastInterruptAt[to] = time.Now()
	return true, nil
}
