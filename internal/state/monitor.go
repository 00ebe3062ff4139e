package state

import (
	"log/slog"
	"strings"
	"sync"
	"time"
)

// PaneReader captures visible text from a terminal pane. Satisfied by
// internal/terminal.Adapter; declared here to avoid an import cycle.
type PaneReader interface {
	CapturePane(pane int, historyLimit int) (string, error)
}

// Monitor tracks classification state for every registered agent and
// accumulates UI anomalies into a bounded AnomalyHistory.
type Monitor struct {
	log     *slog.Logger
	panes   PaneReader
	history *AnomalyHistory

	mu       sync.Mutex
	statuses map[string]*Status
}

func NewMonitor(panes PaneReader, historyCfg HistoryConfig, log *slog.Logger) *Monitor {
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{
		log:      log,
		panes:    panes,
		history:  NewAnomalyHistory(historyCfg),
		statuses: make(map[string]*Status),
	}
}

func (m *Monitor) History() *AnomalyHistory { return m.history }

// UpdateAgentState captures the given pane, classifies it, runs anomaly
// detection, and updates the agent's stored Status. The first observation
// of an agent unconditionally latches Initializing regardless of the
// classifier's output (spec.md §4.4).
func (m *Monitor) UpdateAgentState(agentName string, pane int) (AgentState, error) {
	content, err := m.panes.CapturePane(pane, 0)
	if err != nil {
		return Unknown, err
	}

	m.mu.Lock()
	status, exists := m.statuses[agentName]
	if !exists {
		status = &Status{InitializationTime: time.Now()}
		m.statuses[agentName] = status
	}
	m.mu.Unlock()

	age := time.Since(status.InitializationTime)

	var newState AgentState
	if !status.observed {
		newState = Initializing
	} else {
		lines := strings.Split(content, "\n")
		newState = Classify(lines, age)
	}

	anomalies := DetectAnomalies(content)
	if len(anomalies) > 0 {
		m.history.Record(agentName, anomalies, newState)
	}

	m.mu.Lock()
	oldState := status.State
	status.State = newState
	status.LastStateUpdate = time.Now()
	status.observed = true
	m.mu.Unlock()

	if oldState != newState {
		m.log.Info("agent state transition",
			slog.String("agent", agentName),
			slog.String("from", oldState.String()),
			slog.String("to", newState.String()))
	}

	return newState, nil
}

// Status returns the last-known status for an agent, or false if unknown.
func (m *Monitor) Status(agentName string) (Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.statuses[agentName]
	if !ok {
		return Status{}, false
	}
	return *s, true
}

// IsBusy reports whether the agent's last-known state is Busy or Writing.
func (m *Monitor) IsBusy(agentName string) bool {
	s, ok := m.Status(agentName)
	return ok && (s.State == Busy || s.State == Writing)
}

// IsIdle reports whether the agent's last-known state is Idle.
func (m *Monitor) IsIdle(agentName string) bool {
	s, ok := m.Status(agentName)
	return ok && s.State == Idle
}

// IncrementMessagesSentWhileBusy records that a message was delivered to
// agentName while it was busy (used for context_status reporting only; it
// never gates delivery, per spec.md §4.6).
func (m *Monitor) IncrementMessagesSentWhileBusy(agentName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.statuses[agentName]; ok {
		s.MessagesSentWhileBusy++
	}
}

// Summary returns a snapshot of every tracked agent's current state, for
// periodic logging (mirrors the original's get_agent_summary).
func (m *Monitor) Summary() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.statuses))
	for name, s := range m.statuses {
		out[name] = s.State.String()
	}
	return out
}

// Remove drops an agent's tracked status (used on Supervisor.Stop).
func (m *Monitor) Remove(agentName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.statuses, agentName)
}
