package state

import (
	"testing"
	"time"
)

func TestClassify_Empty(t *testing.T) {
	if got := Classify(nil, time.Second); got != Unknown {
		t.Errorf("Classify(nil) = %v, want Unknown", got)
	}
}

func TestClassify_Idle(t *testing.T) {
	lines := []string{
		"╭──────────╮",
		"│ >        │",
		"╰──────────╯",
	}
	if got := Classify(lines, 10*time.Second); got != Idle {
		t.Errorf("Classify() = %v, want Idle", got)
	}
}

func TestClassify_Writing(t *testing.T) {
	lines := []string{
		"╭──────────╮",
		"│ > hello  │",
		"╰──────────╯",
	}
	if got := Classify(lines, 10*time.Second); got != Writing {
		t.Errorf("Classify() = %v, want Writing", got)
	}
}

func TestClassify_Busy(t *testing.T) {
	lines := []string{
		"✻ Thinking…",
		"",
		"╭──────────╮",
		"│ >        │",
		"╰──────────╯",
	}
	if got := Classify(lines, 10*time.Second); got != Busy {
		t.Errorf("Classify() = %v, want Busy", got)
	}
}

func TestClassify_Quit(t *testing.T) {
	lines := []string{"Goodbye!"}
	if got := Classify(lines, 10*time.Second); got != Quit {
		t.Errorf("Classify() = %v, want Quit", got)
	}
}

func TestClassify_Error(t *testing.T) {
	lines := []string{"Error: something bad happened"}
	if got := Classify(lines, 10*time.Second); got != Error {
		t.Errorf("Classify() = %v, want Error", got)
	}
}

func TestClassify_Initializing(t *testing.T) {
	lines := []string{"Starting Claude...", "Loading configuration"}
	if got := Classify(lines, time.Second); got != Initializing {
		t.Errorf("Classify() = %v, want Initializing", got)
	}
}

// Real captured panes carry preceding scrollback; the bracketed-termination
// quit patterns must match per-line, not only when they happen to anchor the
// whole captured string.
func TestClassify_Quit_ProcessTerminatedAmidScrollback(t *testing.T) {
	lines := []string{
		"some earlier shell output",
		"[Process completed and terminated]",
		"",
	}
	if got := Classify(lines, 10*time.Second); got != Quit {
		t.Errorf("Classify() = %v, want Quit", got)
	}
}

func TestClassify_Quit_ProcessExitedWithAmidScrollback(t *testing.T) {
	lines := []string{
		"some earlier shell output",
		"Process exited with code 1",
		"",
	}
	if got := Classify(lines, 10*time.Second); got != Quit {
		t.Errorf("Classify() = %v, want Quit", got)
	}
}
