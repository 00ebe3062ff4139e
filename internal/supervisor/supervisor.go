package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nextlevelbuilder/orcd/internal/delivery"
	"github.com/nextlevelbuilder/orcd/internal/fork"
	"github.com/nextlevelbuilder/orcd/internal/launch"
	"github.com/nextlevelbuilder/orcd/internal/layout"
	"github.com/nextlevelbuilder/orcd/internal/mailbox"
	"github.com/nextlevelbuilder/orcd/internal/state"
	"github.com/nextlevelbuilder/orcd/internal/terminal"
	"github.com/nextlevelbuilder/orcd/internal/transcript"
)

// Terminal is the subset of internal/terminal.Adapter the Supervisor uses.
type Terminal interface {
	SessionExists(ctx context.Context) bool
	CreateSession(ctx context.Context, numPanes int, force bool, splits []string) error
	SendToPane(ctx context.Context, pane int, text string) error
	TypeInPane(ctx context.Context, pane int, text string) error
	CapturePane(pane int, historyLimit int) (string, error)
	SetPaneTitle(ctx context.Context, pane int, title string) error
	SetPaneAnnotation(ctx context.Context, pane int, key, value string) error
	ListPanes(ctx context.Context) ([]terminal.PaneInfo, error)
	GetLayoutInfo(ctx context.Context) (width, height int, err error)
	KillSession(ctx context.Context) error
}

// Config bundles the tunables named in spec.md §4.8/§5.
type Config struct {
	PollInterval         time.Duration
	MonitorInterval      time.Duration
	StabilizationPeriod  time.Duration
	AgentIdleTimeout     time.Duration
	ShutdownTimeout      time.Duration
	Enhanced             bool
	ScratchDir           string
	Layout               layout.Config

	// ContextName and HomeDir select the transcript directory convention
	// (spec.md §4.9): ~/.claude/projects/ccbox-{context}-{agent}-{workdir}.
	// HomeDir defaults to os.UserHomeDir() when empty.
	ContextName string
	HomeDir     string

	// Force, when true, kills and replaces a pre-existing tmux session of
	// the same name instead of failing without mutation (spec.md §4.1).
	Force bool
}

// Supervisor orchestrates a fleet of agents hosted in one tmux session.
type Supervisor struct {
	log     *slog.Logger
	cfg     Config
	term    Terminal
	builder launch.LaunchCommandBuilder
	box     *mailbox.Box
	delivery *delivery.Engine
	stateMonitor *state.Monitor

	agentsLock sync.Mutex
	agents     map[string]*Agent
	agentOrder []string

	transcriptsLock sync.Mutex
	transcripts     map[string]*transcript.Monitor

	interruptLock     sync.Mutex
	lastInterruptSent map[string]time.Time

	running   atomic.Bool
	pollDone  chan struct{}
	stateDone chan struct{}
}

func New(log *slog.Logger, cfg Config, term Terminal, builder launch.LaunchCommandBuilder) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	box := mailbox.New()
	s := &Supervisor{
		log:               log,
		cfg:               cfg,
		term:              term,
		builder:           builder,
		box:               box,
		agents:            make(map[string]*Agent),
		transcripts:       make(map[string]*transcript.Monitor),
		lastInterruptSent: make(map[string]time.Time),
	}
	return s
}

// Start launches every registered agent and spawns the poll loop(s).
// Requires at least one registered agent.
func (s *Supervisor) Start(ctx context.Context, mcpPort int) error {
	s.agentsLock.Lock()
	agentCount := len(s.agents)
	s.agentsLock.Unlock()
	if agentCount < 1 {
		return fmt.Errorf("supervisor: at least one agent must be registered before Start")
	}

	if s.cfg.ScratchDir == "" {
		dir, err := os.MkdirTemp("", "orcd-scratch-*")
		if err != nil {
			return fmt.Errorf("create scratch dir: %w", err)
		}
		s.cfg.ScratchDir = dir
	}
	for _, sub := range []string{"bin", "mcp_configs"} {
		if err := os.MkdirAll(filepath.Join(s.cfg.ScratchDir, sub), 0o755); err != nil {
			return fmt.Errorf("create scratch subdir %s: %w", sub, err)
		}
	}
	if s.cfg.HomeDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home dir: %w", err)
		}
		s.cfg.HomeDir = home
	}

	splits, err := layout.Plan(s.cfg.Layout, agentCount)
	if err != nil {
		return fmt.Errorf("plan layout: %w", err)
	}
	splitArgs := make([]string, len(splits))
	for i, c := range splits {
		splitArgs[i] = fmt.Sprintf("-t 0.%d -%s -p %d", c.TargetPane, directionFlag(c.Direction), 100-c.SizePct)
	}

	minWidth, minHeight := layout.CalculateTerminalRequirements(s.cfg.Layout, agentCount)
	if width, height, err := s.term.GetLayoutInfo(ctx); err == nil {
		if width < minWidth || height < minHeight {
			s.log.Warn("terminal smaller than the layout's minimum requirements",
				slog.Int("width", width), slog.Int("height", height),
				slog.Int("min_width", minWidth), slog.Int("min_height", minHeight))
		}
	} else {
		s.log.Debug("could not determine terminal size for layout validation", slog.Any("error", err))
	}

	if err := s.term.CreateSession(ctx, agentCount, s.cfg.Force, splitArgs); err != nil {
		return fmt.Errorf("create tmux session: %w", err)
	}

	if s.cfg.Enhanced {
		s.stateMonitor = state.NewMonitor(paneReaderAdapter{s.term}, state.DefaultHistoryConfig(), s.log)
		s.delivery = delivery.New(paneWriterAdapter{s.term}, s.stateMonitor, s, s.box)
	}

	s.agentsLock.Lock()
	names := append([]string(nil), s.agentOrder...)
	s.agentsLock.Unlock()

	for _, name := range names {
		a := s.agents[name]
		_ = s.term.SetPaneTitle(ctx, a.PaneIndex, name)

		var mcpConfigPath string
		if mcpPort > 0 {
			mcpConfigPath, err = writeMCPConfig(s.cfg.ScratchDir, name, mcpPort)
			if err != nil {
				return fmt.Errorf("write mcp config for %s: %w", name, err)
			}
		}

		cmdLine, sessionId, err := s.builder.BuildLaunchCommand(launch.Spec{
			InstanceName:  name,
			SessionId:     a.PlaceholderTranscript,
			SystemPrompt:  a.SystemPrompt,
			MCPConfigPath: mcpConfigPath,
			WorkingDir:    a.WorkingDir,
		})
		if err != nil {
			return fmt.Errorf("build launch command for %s: %w", name, err)
		}
		if a.WorkingDir != "" {
			_ = s.term.SendToPane(ctx, a.PaneIndex, "cd "+a.WorkingDir)
		}
		if err := s.term.SendToPane(ctx, a.PaneIndex, cmdLine); err != nil {
			return fmt.Errorf("launch agent %s: %w", name, err)
		}
		launch.WaitUntilReady(ctx, paneCapturerAdapter{s.term}, a.PaneIndex, 15*time.Second)

		_ = s.term.SetPaneAnnotation(ctx, a.PaneIndex, "agent_name", name)
		a.TranscriptId = sessionId

		_ = s.term.SendToPane(ctx, a.PaneIndex, fmt.Sprintf("System initialized. You are agent %q.", name))

		if mcpPort > 0 {
			s.box.Append(name, mailbox.Message{
				From:      "orchestrator",
				To:        name,
				Content:   "Welcome! Use the MCP tools (send_message, check_messages, list_agents, broadcast_message) to coordinate with your team.",
				Priority:  "normal",
				Timestamp: time.Now(),
			})
		}
	}

	time.Sleep(s.cfg.StabilizationPeriod)

	for _, name := range names {
		a := s.agents[name]
		path := expectedTranscriptPath(s.cfg.HomeDir, s.cfg.ContextName, name, a.WorkingDir, a.TranscriptId)
		s.transcriptsLock.Lock()
		s.transcripts[name] = transcript.NewMonitor(path, name)
		s.transcriptsLock.Unlock()
	}

	s.running.Store(true)
	s.pollDone = make(chan struct{})
	go s.pollLoop()

	if s.cfg.Enhanced {
		s.stateDone = make(chan struct{})
		go s.stateLoop()
	}

	return nil
}

func directionFlag(direction string) string {
	if direction == "vertical" {
		return "v"
	}
	return "h"
}

// expectedTranscriptPath is the file the real Claude CLI child process
// writes to, per the ~/.claude/projects/ccbox-{context}-{agent}-{workdir}
// convention (spec.md §4.9) — not a scratch-directory placeholder.
func expectedTranscriptPath(homeDir, contextName, agentName, workingDir, transcriptId string) string {
	return filepath.Join(fork.TranscriptDir(homeDir, contextName, agentName, workingDir), transcriptId+".jsonl")
}

// Stop signals both poll loops to exit, joins them with a bounded timeout,
// kills the multiplexer session, and clears in-memory state.
func (s *Supervisor) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	s.joinWithTimeout(s.pollDone, s.cfg.ShutdownTimeout)
	if s.cfg.Enhanced {
		s.joinWithTimeout(s.stateDone, s.cfg.ShutdownTimeout)
	}

	if err := s.term.KillSession(ctx); err != nil {
		s.log.Warn("kill session failed during shutdown", slog.Any("error", err))
	}

	s.agentsLock.Lock()
	for name := range s.agents {
		s.box.Remove(name)
		if s.stateMonitor != nil {
			s.stateMonitor.Remove(name)
		}
	}
	s.agents = make(map[string]*Agent)
	s.agentOrder = nil
	s.agentsLock.Unlock()

	s.interruptLock.Lock()
	s.lastInterruptSent = make(map[string]time.Time)
	s.interruptLock.Unlock()

	return nil
}

func (s *Supervisor) joinWithTimeout(done chan struct{}, timeout time.Duration) {
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(timeout):
		s.log.Warn("worker did not stop within timeout")
	}
}

// WaitForAgentIdle polls the agent's classified state every 500ms up to
// timeout, returning true once it becomes Idle (spec.md §5.8 supplement,
// grounded on wait_for_agent_idle).
func (s *Supervisor) WaitForAgentIdle(agentName string, timeout time.Duration) bool {
	if s.stateMonitor == nil {
		return false
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.stateMonitor.IsIdle(agentName) {
			return true
		}
		time.Sleep(500 * time.Millisecond)
	}
	return false
}

type paneReaderAdapter struct{ t Terminal }

func (p paneReaderAdapter) CapturePane(pane int, historyLimit int) (string, error) {
	return p.t.CapturePane(pane, historyLimit)
}

type paneWriterAdapter struct{ t Terminal }

func (p paneWriterAdapter) SendToPane(ctx context.Context, pane int, text string) error {
	return p.t.SendToPane(ctx, pane, text)
}
func (p paneWriterAdapter) TypeInPane(ctx context.Context, pane int, text string) error {
	return p.t.TypeInPane(ctx, pane, text)
}

type paneCapturerAdapter struct{ t Terminal }

func (p paneCapturerAdapter) CapturePane(pane int, historyLimit int) (string, error) {
	return p.t.CapturePane(pane, historyLimit)
}
func (p paneCapturerAdapter) SendToPane(ctx context.Context, pane int, text string) error {
	return p.t.SendToPane(ctx, pane, text)
}
