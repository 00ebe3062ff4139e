// Package terminal provides a narrow, deterministic interface to a tmux
// session acting as the host for a fleet of agent panes (spec.md §4.1).
package terminal

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// PaneInfo describes one enumerated pane (spec.md §4.1 "enumerating panes").
type PaneInfo struct {
	Index      int
	Width      int
	Height     int
	Active     bool
	Title      string
	Annotation map[string]string
}

// Adapter drives a single named tmux session via the tmux binary. The
// post-text send delay before Enter is a hard requirement: it defeats a
// race against the child's input tokenizer (spec.md §4.1).
type Adapter struct {
	sessionName string
	log         *slog.Logger

	mu          sync.Mutex
	annotations map[int]map[string]string
}

// sendKeyDelay is the minimum pause between injecting literal text and
// injecting Enter. Do not lower this below 50ms; it is part of the contract.
const sendKeyDelay = 50 * time.Millisecond

func New(sessionName string, log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		sessionName: sessionName,
		log:         log,
		annotations: make(map[int]map[string]string),
	}
}

func (a *Adapter) target(pane int) string {
	return fmt.Sprintf("%s:0.%d", a.sessionName, pane)
}

// SessionExists reports whether the named session is currently live.
func (a *Adapter) SessionExists(ctx context.Context) bool {
	_, err := a.run(ctx, "tmux", "has-session", "-t", a.sessionName)
	return err == nil
}

// CreateSession creates a session with numPanes panes arranged per layout.
// If the session exists and force is false, it fails without mutation.
func (a *Adapter) CreateSession(ctx context.Context, numPanes int, force bool, splits []string) error {
	if a.SessionExists(ctx) {
		if !force {
			return fmt.Errorf("tmux session %q already exists", a.sessionName)
		}
		a.log.Warn("force mode: killing existing session", slog.String("session", a.sessionName))
		_, _ = a.run(ctx, "tmux", "kill-session", "-t", a.sessionName)
		time.Sleep(300 * time.Millisecond)
	}

	args := []string{"new-session", "-d", "-s", a.sessionName}
	if numPanes >= 5 {
		args = append(args, "-x", "120", "-y", "40")
	}
	args = append(args, "bash")
	if _, err := a.run(ctx, "tmux", args...); err != nil {
		return fmt.Errorf("create tmux session: %w", err)
	}
	time.Sleep(100 * time.Millisecond)

	if !a.SessionExists(ctx) {
		return fmt.Errorf("tmux session %q did not come up", a.sessionName)
	}

	for _, split := range splits {
		fields := strings.Fields(split)
		if _, err := a.run(ctx, "tmux", append([]string{"split-window"}, fields...)...); err != nil {
			return fmt.Errorf("apply layout split %q: %w", split, err)
		}
	}

	a.configureWindow(ctx)
	return nil
}

func (a *Adapter) configureWindow(ctx context.Context) {
	_, _ = a.run(ctx, "tmux", "set-option", "-t", a.sessionName, "pane-border-status", "top")
	_, _ = a.run(ctx, "tmux", "set-option", "-w", "-t", a.sessionName, "pane-border-format",
		"#{?@agent_name,#{?pane_active,#[reverse],}[#{@agent_name}#{?@state_dot,#{@state_dot},}]#[default]#{?@msg_count, (#{@msg_count} msgs),} ,}#{pane_title}")
	_, _ = a.run(ctx, "tmux", "set-option", "-w", "-t", a.sessionName, "pane-border-style", "fg=blue")
	_, _ = a.run(ctx, "tmux", "set-option", "-w", "-t", a.sessionName, "pane-active-border-style", "fg=blue")
	_, _ = a.run(ctx, "tmux", "set-option", "-g", "mouse", "on")
	for i := 1; i <= 3; i++ {
		_, _ = a.run(ctx, "tmux", "bind-key", "-n", fmt.Sprintf("F%d", i), "select-pane", "-t", fmt.Sprintf("%s:0.%d", a.sessionName, i-1))
	}
	for i := 1; i <= 9; i++ {
		_, _ = a.run(ctx, "tmux", "bind-key", "-n", fmt.Sprintf("M-%d", i), "select-pane", "-t", fmt.Sprintf("%s:0.%d", a.sessionName, i-1))
	}
}

// SendToPane injects text literally, sleeps sendKeyDelay, then injects Enter.
func (a *Adapter) SendToPane(ctx context.Context, pane int, text string) error {
	target := a.target(pane)
	if _, err := a.run(ctx, "tmux", "send-keys", "-t", target, "-l", text); err != nil {
		return fmt.Errorf("send to pane %d: %w", pane, err)
	}
	time.Sleep(sendKeyDelay)
	if _, err := a.run(ctx, "tmux", "send-keys", "-t", target, "Enter"); err != nil {
		return fmt.Errorf("send Enter to pane %d: %w", pane, err)
	}
	return nil
}

// TypeInPane injects text without a trailing Enter.
func (a *Adapter) TypeInPane(ctx context.Context, pane int, text string) error {
	if _, err := a.run(ctx, "tmux", "send-keys", "-t", a.target(pane), "-l", text); err != nil {
		return fmt.Errorf("type in pane %d: %w", pane, err)
	}
	return nil
}

// CapturePane returns the visible screen, plus historyLimit scrollback
// lines if non-zero.
func (a *Adapter) CapturePane(pane int, historyLimit int) (string, error) {
	args := []string{"capture-pane", "-t", a.target(pane), "-p"}
	if historyLimit != 0 {
		args = append(args, "-S", strconv.Itoa(historyLimit))
	}
	out, err := a.run(context.Background(), "tmux", args...)
	if err != nil {
		return "", fmt.Errorf("capture pane %d: %w", pane, err)
	}
	return out, nil
}

// SetPaneTitle sets the pane's user-visible title.
func (a *Adapter) SetPaneTitle(ctx context.Context, pane int, title string) error {
	if _, err := a.run(ctx, "tmux", "select-pane", "-t", a.target(pane), "-T", title); err != nil {
		return fmt.Errorf("set pane %d title: %w", pane, err)
	}
	return nil
}

// SetPaneAnnotation stores a key/value annotation as a tmux pane option,
// and locally so ListPanes can report it back without a round trip.
func (a *Adapter) SetPaneAnnotation(ctx context.Context, pane int, key, value string) error {
	optName := "@" + key
	if _, err := a.run(ctx, "tmux", "set-option", "-p", "-t", a.target(pane), optName, value); err != nil {
		return fmt.Errorf("annotate pane %d (%s): %w", pane, key, err)
	}
	a.mu.Lock()
	if a.annotations[pane] == nil {
		a.annotations[pane] = make(map[string]string)
	}
	a.annotations[pane][key] = value
	a.mu.Unlock()
	return nil
}

// ListPanes enumerates panes in the session.
func (a *Adapter) ListPanes(ctx context.Context) ([]PaneInfo, error) {
	out, err := a.run(ctx, "tmux", "list-panes", "-t", a.sessionName,
		"-F", "#{pane_index}:#{pane_width}:#{pane_height}:#{pane_active}:#{pane_title}")
	if err != nil {
		return nil, fmt.Errorf("list panes: %w", err)
	}
	var panes []PaneInfo
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ":", 5)
		if len(parts) < 5 {
			continue
		}
		idx, _ := strconv.Atoi(parts[0])
		w, _ := strconv.Atoi(parts[1])
		h, _ := strconv.Atoi(parts[2])
		a.mu.Lock()
		ann := a.annotations[idx]
		a.mu.Unlock()
		panes = append(panes, PaneInfo{
			Index:      idx,
			Width:      w,
			Height:     h,
			Active:     parts[3] == "1",
			Title:      parts[4],
			Annotation: ann,
		})
	}
	return panes, nil
}

// GetLayoutInfo reports the invoking terminal's current size, for the
// Layout Planner's pre-flight size validation against
// CalculateTerminalRequirements. Deliberately queries the attached client
// rather than -t sessionName: the session does not exist yet the first time
// this runs, grounded on tmux_manager.py's bare display-message
// #{window_width}x#{window_height} probe.
func (a *Adapter) GetLayoutInfo(ctx context.Context) (width, height int, err error) {
	out, err := a.run(ctx, "tmux", "display-message", "-p", "#{window_width}x#{window_height}")
	if err != nil {
		return 0, 0, fmt.Errorf("get layout info: %w", err)
	}
	dims := strings.TrimSpace(out)
	w, h, found := strings.Cut(dims, "x")
	if !found {
		return 0, 0, fmt.Errorf("get layout info: unexpected tmux output %q", dims)
	}
	width, err = strconv.Atoi(w)
	if err != nil {
		return 0, 0, fmt.Errorf("get layout info: parse width %q: %w", w, err)
	}
	height, err = strconv.Atoi(h)
	if err != nil {
		return 0, 0, fmt.Errorf("get layout info: parse height %q: %w", h, err)
	}
	return width, height, nil
}

// KillSession force-kills the multiplexer session.
func (a *Adapter) KillSession(ctx context.Context) error {
	if _, err := a.run(ctx, "tmux", "kill-session", "-t", a.sessionName); err != nil {
		return fmt.Errorf("kill session %q: %w", a.sessionName, err)
	}
	return nil
}

func (a *Adapter) run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		a.log.Debug("tmux command failed",
			slog.String("args", strings.Join(args, " ")),
			slog.String("stderr", stderr.String()))
		return stdout.String(), fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, stderr.String())
	}
	return stdout.String(), nil
}
