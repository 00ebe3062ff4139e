// Package supervisor owns agent registration, launch orchestration, the
// transcript/state poll loops, command dispatch, and ordered shutdown
// (spec.md §4.8).
package supervisor

import (
	"fmt"
	"time"
)

// Agent is one registered, potentially-running child agent.
type Agent struct {
	Name                  string
	PlaceholderTranscript string
	SystemPrompt          string
	WorkingDir            string
	PaneIndex             int
	TranscriptId          string
	LastActive            time.Time
	MessagesSentWhileBusy int
}

// RegisterAgent adds an agent with the next free pane index. Duplicate
// names are rejected.
func (s *Supervisor) RegisterAgent(name, placeholderTranscriptId, systemPrompt, workingDir string) error {
	s.agentsLock.Lock()
	defer s.agentsLock.Unlock()

	if _, exists := s.agents[name]; exists {
		return fmt.Errorf("agent %q already registered", name)
	}
	s.agents[name] = &Agent{
		Name:                  name,
		PlaceholderTranscript: placeholderTranscriptId,
		SystemPrompt:          systemPrompt,
		WorkingDir:            workingDir,
		PaneIndex:             len(s.agents),
	}
	s.agentOrder = append(s.agentOrder, name)
	return nil
}

// PaneIndex resolves agentName to its pane index (delivery.AgentPane).
func (s *Supervisor) PaneIndex(agentName string) (int, bool) {
	s.agentsLock.Lock()
	defer s.agentsLock.Unlock()
	a, ok := s.agents[agentName]
	if !ok {
		return 0, false
	}
	return a.PaneIndex, true
}

// lookupCaseInsensitive finds an agent by a case-insensitive name match.
func (s *Supervisor) lookupCaseInsensitive(name string) (*Agent, bool) {
	s.agentsLock.Lock()
	defer s.agentsLock.Unlock()
	for _, a := range s.agents {
		if equalFold(a.Name, name) {
			return a, true
		}
	}
	return nil, false
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
