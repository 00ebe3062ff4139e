// Package layout plans pane arrangements for a tmux session and translates
// them into an ordered sequence of low-level split commands (spec.md §4.2).
package layout

import (
	"fmt"
	"math"
)

// Kind selects a layout strategy.
type Kind string

const (
	Horizontal    Kind = "horizontal"
	Vertical      Kind = "vertical"
	Grid          Kind = "grid"
	MainHorizontal Kind = "main_horizontal"
	MainVertical  Kind = "main_vertical"
	Custom        Kind = "custom"
)

// Split is a user-ordered custom split operation.
type Split struct {
	Target    int
	Direction string // "horizontal" or "vertical"
	SizePct   int
}

// Config describes the requested layout. Only the fields relevant to Kind
// need be set.
type Config struct {
	Kind       Kind
	Rows, Cols int // Grid
	MainPct    int // MainHorizontal / MainVertical
	Splits     []Split
}

// Command is one abstract split step, in application order.
type Command struct {
	TargetPane int
	Direction  string // "horizontal" or "vertical"
	SizePct    int
}

const (
	minPaneWidth  = 80
	minPaneHeight = 24
)

// Validate checks the configuration against agentCount per spec.md §4.2.
func (c Config) Validate(agentCount int) error {
	if agentCount < 1 {
		return fmt.Errorf("layout: agentCount must be >= 1, got %d", agentCount)
	}
	switch c.Kind {
	case MainHorizontal, MainVertical:
		if c.MainPct <= 0 || c.MainPct >= 100 {
			return fmt.Errorf("layout: mainPct must be in (0,100), got %d", c.MainPct)
		}
	case Grid:
		if c.Rows > 0 && c.Cols > 0 && c.Rows*c.Cols < agentCount {
			return fmt.Errorf("layout: grid capacity %dx%d insufficient for %d agents", c.Rows, c.Cols, agentCount)
		}
	case Custom:
		if len(c.Splits) == 0 {
			return fmt.Errorf("layout: custom layout requires at least one split")
		}
		for _, s := range c.Splits {
			if s.SizePct <= 0 || s.SizePct > 100 {
				return fmt.Errorf("layout: split sizePct must be in (0,100], got %d", s.SizePct)
			}
			if s.Direction != "horizontal" && s.Direction != "vertical" {
				return fmt.Errorf("layout: split direction must be horizontal or vertical, got %q", s.Direction)
			}
		}
	}
	return nil
}

// gridDims auto-dimensions a grid when Rows/Cols are unspecified:
// cols = ceil(sqrt(n)), rows = ceil(n/cols).
func gridDims(c Config, n int) (rows, cols int) {
	if c.Rows > 0 && c.Cols > 0 {
		return c.Rows, c.Cols
	}
	cols = int(math.Ceil(math.Sqrt(float64(n))))
	if cols < 1 {
		cols = 1
	}
	rows = int(math.Ceil(float64(n) / float64(cols)))
	return rows, cols
}

// Plan validates the config and emits an ordered sequence of split commands
// to reach agentCount panes.
func Plan(c Config, agentCount int) ([]Command, error) {
	if err := c.Validate(agentCount); err != nil {
		return nil, err
	}

	var cmds []Command
	switch c.Kind {
	case Horizontal:
		for i := 1; i < agentCount; i++ {
			cmds = append(cmds, Command{TargetPane: 0, Direction: "horizontal", SizePct: 100 / (i + 1)})
		}
	case Vertical:
		for i := 1; i < agentCount; i++ {
			cmds = append(cmds, Command{TargetPane: 0, Direction: "vertical", SizePct: 100 / (i + 1)})
		}
	case Grid:
		rows, cols := gridDims(c, agentCount)
		if rows*cols < agentCount {
			return nil, fmt.Errorf("layout: grid capacity %dx%d insufficient for %d agents", rows, cols, agentCount)
		}
		remaining := agentCount - 1
		for r := 0; r < rows && remaining > 0; r++ {
			if r > 0 {
				cmds = append(cmds, Command{TargetPane: 0, Direction: "vertical", SizePct: 100 / (r + 1)})
				remaining--
			}
			for col := 1; col < cols && remaining > 0; col++ {
				cmds = append(cmds, Command{TargetPane: r, Direction: "horizontal", SizePct: 100 / (col + 1)})
				remaining--
			}
		}
	case MainHorizontal:
		others := agentCount - 1
		cmds = append(cmds, Command{TargetPane: 0, Direction: "vertical", SizePct: 100 - c.MainPct})
		for i := 1; i < others; i++ {
			cmds = append(cmds, Command{TargetPane: 1, Direction: "horizontal", SizePct: 100 / (i + 1)})
		}
	case MainVertical:
		others := agentCount - 1
		cmds = append(cmds, Command{TargetPane: 0, Direction: "horizontal", SizePct: 100 - c.MainPct})
		for i := 1; i < others; i++ {
			cmds = append(cmds, Command{TargetPane: 1, Direction: "vertical", SizePct: 100 / (i + 1)})
		}
	case Custom:
		for _, s := range c.Splits {
			cmds = append(cmds, Command{TargetPane: s.Target, Direction: s.Direction, SizePct: s.SizePct})
		}
	default:
		return nil, fmt.Errorf("layout: unknown kind %q", c.Kind)
	}
	return cmds, nil
}

// KeyboardShortcuts returns the pane-select shortcut map: function keys
// F1-F3 for the first three panes, Alt+digit for all up to nine.
func KeyboardShortcuts(agentCount int) map[int]string {
	shortcuts := make(map[int]string)
	for i := 0; i < agentCount && i < 9; i++ {
		if i < 3 {
			shortcuts[i] = fmt.Sprintf("F%d", i+1)
		}
		shortcuts[i] = fmt.Sprintf("%s (Alt+%d)", shortcutOrEmpty(shortcuts[i]), i+1)
	}
	return shortcuts
}

func shortcutOrEmpty(s string) string {
	if s == "" {
		return ""
	}
	return s + " / "
}

// CalculateTerminalRequirements returns the minimum terminal size needed to
// host agentCount panes under the given layout, grounded in the original's
// MIN_PANE_WIDTH=80 / MIN_PANE_HEIGHT=24 constants.
func CalculateTerminalRequirements(c Config, agentCount int) (minWidth, minHeight int) {
	switch c.Kind {
	case Horizontal:
		return minPaneWidth * agentCount, minPaneHeight
	case Vertical:
		return minPaneWidth, minPaneHeight * agentCount
	case Grid:
		rows, cols := gridDims(c, agentCount)
		return minPaneWidth * cols, minPaneHeight * rows
	case MainHorizontal:
		return minPaneWidth * (agentCount - 1), minPaneHeight * 2
	case MainVertical:
		return minPaneWidth * 2, minPaneHeight * (agentCount - 1)
	default:
		return minPaneWidth * agentCount, minPaneHeight
	}
}

// Template is a named, pre-built layout for common agent counts.
type Template struct {
	Name   string
	Config Config
}

// Templates is the named layout lookup table, grounded in LAYOUT_TEMPLATES.
var Templates = map[string]Config{
	"horizontal": {Kind: Horizontal},
	"vertical":   {Kind: Vertical},
	"2x2":        {Kind: Grid, Rows: 2, Cols: 2},
	"3x3":        {Kind: Grid, Rows: 3, Cols: 3},
	"2x3":        {Kind: Grid, Rows: 2, Cols: 3},
	"main-left":  {Kind: MainVertical, MainPct: 60},
	"main-top":   {Kind: MainHorizontal, MainPct: 60},
}
