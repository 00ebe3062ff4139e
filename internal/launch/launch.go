// Package launch defines the child-process launch contract the Supervisor
// uses to start an agent, grounded on simple_launcher.py (spec.md §6, §5.11).
package launch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Spec describes one agent launch request.
type Spec struct {
	InstanceName   string
	SessionId      string // empty → a new one is minted and Resume is false
	SystemPrompt   string
	MCPConfigPath  string
	WorkingDir     string
	Model          string
	Role           string
}

// LaunchCommandBuilder builds the shell command line used to start an
// agent's child process. Injected at Supervisor construction time instead
// of being hard-coded, per spec.md §9's monkey-patching note. It returns the
// session id the command line actually launches with — freshly minted when
// spec.SessionId is empty, or the given one when resuming — so the caller
// can bind downstream state (the Transcript Monitor) to the real id instead
// of guessing at one.
type LaunchCommandBuilder interface {
	BuildLaunchCommand(spec Spec) (cmdLine string, sessionId string, err error)
}

// DefaultBuilder constructs a launch command invoking a well-known launcher
// script by positional flags, grounded on claude_launcher_config.py.
type DefaultBuilder struct {
	LauncherPath string
}

func (b DefaultBuilder) BuildLaunchCommand(spec Spec) (string, string, error) {
	if spec.InstanceName == "" {
		return "", "", fmt.Errorf("launch: InstanceName is required")
	}
	sessionId := spec.SessionId
	resume := sessionId != ""
	if !resume {
		sessionId = uuid.NewString()
	}

	var sb strings.Builder
	sb.WriteString(b.LauncherPath)
	fmt.Fprintf(&sb, " --instance-name %s", shellQuote(spec.InstanceName))
	fmt.Fprintf(&sb, " --session-id %s", shellQuote(sessionId))
	if resume {
		sb.WriteString(" --resume")
	}
	if spec.SystemPrompt != "" {
		fmt.Fprintf(&sb, " --system-prompt %s", shellQuote(spec.SystemPrompt))
	}
	if spec.MCPConfigPath != "" {
		fmt.Fprintf(&sb, " --mcp-config %s", shellQuote(spec.MCPConfigPath))
	}
	if spec.Model != "" {
		fmt.Fprintf(&sb, " --model %s", shellQuote(spec.Model))
	}
	if spec.Role != "" {
		fmt.Fprintf(&sb, " --role %s", shellQuote(spec.Role))
	}
	return sb.String(), sessionId, nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// PaneCapturer is the subset of the Terminal Adapter WaitUntilReady needs.
type PaneCapturer interface {
	CapturePane(pane int, historyLimit int) (string, error)
	SendToPane(ctx context.Context, pane int, text string) error
}

var readyIndicators = []string{
	"Welcome to Claude Code",
	"Tips for getting started:",
	"│ >",
	"claude-code-interactive",
	`Try "`,
	"System Diagnostics",
}

// WaitUntilReady polls CapturePane until a ready indicator appears,
// auto-answering the theme-selection and trust prompts along the way, and
// treating "Invalid MCP configuration" as an immediate hard failure.
// Grounded on simple_launcher.py's _wait_for_claude_ready.
func WaitUntilReady(ctx context.Context, panes PaneCapturer, pane int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		content, err := panes.CapturePane(pane, -50)
		if err != nil {
			time.Sleep(500 * time.Millisecond)
			continue
		}

		if strings.Contains(content, "Invalid MCP configuration") {
			return false
		}

		if strings.Contains(content, "Dark mode") && strings.Contains(content, "Light mode") &&
			(strings.Contains(content, "Preview") || strings.Contains(content, "To change this later")) {
			_ = panes.SendToPane(ctx, pane, "1")
			time.Sleep(time.Second)
			continue
		}
		if strings.Contains(content, "Do you trust the files in this folder?") {
			_ = panes.SendToPane(ctx, pane, "1")
			time.Sleep(time.Second)
			continue
		}

		for _, indicator := range readyIndicators {
			if strings.Contains(content, indicator) {
				return true
			}
		}
		if strings.Contains(content, "│ >") || strings.Contains(content, "| >") {
			return true
		}

		time.Sleep(500 * time.Millisecond)
	}
	return false
}
