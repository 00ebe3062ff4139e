package state

import (
	"regexp"
	"strings"
	"time"
)

// busyPattern matches the spinner vocabulary Claude Code cycles through while
// processing. The leading character class matches any single spinner glyph;
// do not narrow it, Unicode spinner frames vary by terminal font.
var busyPattern = regexp.MustCompile(
	`(?i)^.\s+(Accomplishing|Actioning|Actualizing|Analyzing|Baking|Booping|Brewing|Calculating|Cerebrating|Channelling|Churning|Clauding|Coalescing|Cogitating|Combobulating|Computing|Concocting|Conjuring|Considering|Contemplating|Cooking|Crafting|Creating|Crunching|Deciphering|Deliberating|Determining|Discombobulating|Divining|Doing|Effecting|Elucidating|Enchanting|Envisioning|Finagling|Flibbertigibbeting|Forging|Forming|Frolicking|Generating|Germinating|Hatching|Herding|Honking|Hustling|Ideating|Imagining|Incubating|Inferring|Jiving|Manifesting|Marinating|Meandering|Moseying|Mulling|Mustering|Musing|Noodling|Percolating|Perusing|Philosophising|Polishing|Pondering|Pontificating|Processing|Puttering|Puzzling|Reticulating|Reviewing|Ruminating|Scheming|Schlepping|Shimmying|Shucking|Simmering|Smooshing|Spelunking|Spinning|Stewing|Sussing|Synthesizing|Thinking|Tinkering|Transmuting|Unfurling|Unravelling|Vibing|Wandering|Whirring|Wibbling|Wizarding|Working|Wrangling)…`)

var errorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Error:`),
	regexp.MustCompile(`(?i)Failed:`),
	regexp.MustCompile(`(?i)Exception:`),
	regexp.MustCompile(`(?i)Traceback`),
	regexp.MustCompile(`(?i)MCP error`),
	regexp.MustCompile(`(?i)Cannot connect`),
}

var quitPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Goodbye!`),
	regexp.MustCompile(`(?i)Session ended`),
	regexp.MustCompile(`(?i)Claude exited`),
	regexp.MustCompile(`(?m)^\[Process.*terminated\]$`),
	regexp.MustCompile(`(?m)^Process exited with`),
}

var feedbackUIPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)How is Claude doing this session\?`),
	regexp.MustCompile(`(?i)1:\s*Bad\s+2:\s*Fine\s+3:\s*Good\s+0:\s*Dismiss`),
	regexp.MustCompile(`(?i)✓ Thanks for helping make Claude better!`),
	regexp.MustCompile(`(?i)Thanks for helping make Claude better`),
}

var initializingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Starting Claude`),
	regexp.MustCompile(`(?i)Initializing`),
	regexp.MustCompile(`(?i)Loading`),
	regexp.MustCompile(`(?i)Connecting`),
	regexp.MustCompile(`(?i)Welcome to Claude`),
	regexp.MustCompile(`(?i)Claude Code v\d+\.\d+`),
}

var activePromptBoxPattern = regexp.MustCompile(`(?s)╭.*╮.*\n.*│.*>.*│.*\n.*╰.*╯`)
var bashPromptPattern = regexp.MustCompile(`(?m)^[\w.-]+@[\w.-]+:[^\n]*[$#]\s*$`)

var processingAfterQuitWords = []string{"Accomplishing", "Working", "Processing", "Thinking", "Analyzing"}

var allowedFillerSubstrings = []string{
	"tokens", "interrupt", "↓", "esc",
	"[MESSAGE]", "check_messages", "You have a new message",
	"Reminder:", "⎿", "Tip:", "/statusline",
}

// Classify applies the multi-phase classification algorithm described in
// the busy/idle/writing contract. lines is the captured pane text already
// split by newline, most recent line last. agentAge is the time elapsed
// since the agent was first registered.
func Classify(lines []string, agentAge time.Duration) AgentState {
	if len(lines) == 0 {
		return Unknown
	}

	recent := lastN(lines, 20)
	lastFew := lastN(lines, 5)

	recentText := strings.Join(recent, "\n")
	lastFewText := strings.Join(lastFew, "\n")

	filteredRecent := stripAll(recentText, feedbackUIPatterns)
	filteredLastFew := stripAll(lastFewText, feedbackUIPatterns)

	// 1. Quit, with recovery.
	for _, p := range quitPatterns {
		loc := p.FindStringIndex(recentText)
		if loc == nil {
			continue
		}
		after := recentText[loc[0]:]
		if activePromptBoxPattern.MatchString(after) {
			continue
		}
		recovered := false
		for _, w := range processingAfterQuitWords {
			if regexp.MustCompile(regexp.QuoteMeta(w) + `…`).MatchString(after) {
				recovered = true
				break
			}
		}
		if recovered {
			continue
		}
		return Quit
	}

	// 2. Error, only if no recovery prompt in the same window.
	for _, p := range errorPatterns {
		if p.MatchString(filteredLastFew) && !regexp.MustCompile(`│\s*>`).MatchString(filteredLastFew) {
			return Error
		}
	}

	// 3. Initializing.
	if agentAge >= 0 && agentAge < 3*time.Second {
		for _, p := range initializingPatterns {
			if p.MatchString(recentText) && !activePromptBoxPattern.MatchString(recentText) {
				return Initializing
			}
		}
		if containsOnlyBashPrompts(recentText) {
			return Initializing
		}
	}

	// 4/5. Busy / Writing / Idle via structural prompt-box scan.
	scanLines := strings.Split(filteredRecent, "\n")
	topIdx := findLastInputBoxTop(scanLines)
	if topIdx >= 0 {
		if state, ok := classifyBusy(scanLines, topIdx); ok {
			return state
		}
		if state, ok := classifyWritingOrIdle(scanLines, topIdx); ok {
			return state
		}
	}

	// 6. Fallback minimal prompt scan.
	if strings.Contains(filteredLastFew, "│") && strings.Contains(filteredLastFew, ">") {
		if m := regexp.MustCompile(`│\s*>\s*(.+)`).FindStringSubmatch(filteredLastFew); m != nil {
			text := strings.TrimSpace(m[1])
			if text != "" && !strings.HasPrefix(text, `Try "`) {
				return Writing
			}
		}
		if regexp.MustCompile(`│\s*>\s*│`).MatchString(filteredLastFew) {
			return Idle
		}
	}

	return Unknown
}

func lastN(lines []string, n int) []string {
	if len(lines) <= n {
		return lines
	}
	return lines[len(lines)-n:]
}

func stripAll(s string, patterns []*regexp.Regexp) string {
	for _, p := range patterns {
		s = p.ReplaceAllString(s, "")
	}
	return s
}

func containsOnlyBashPrompts(s string) bool {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return false
	}
	for _, line := range strings.Split(trimmed, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !bashPromptPattern.MatchString(line) {
			return false
		}
	}
	return true
}

// findLastInputBoxTop returns the index of the last box-top line
// (╭─…─╮) whose next up-to-3 lines contain a `│...>` prompt marker, or -1.
func findLastInputBoxTop(lines []string) int {
	top := -1
	for i, line := range lines {
		if strings.Contains(line, "╭") && strings.Contains(line, "╮") && strings.Contains(line, "─") {
			isInput := false
			for j := i + 1; j < len(lines) && j < i+4; j++ {
				if strings.Contains(lines[j], "│") && strings.Contains(lines[j], ">") {
					isInput = true
					break
				}
			}
			if isInput {
				top = i
			}
		}
	}
	return top
}

// classifyBusy implements phase 4: empty line above the box, a spinner
// indicator within 4 lines above that, and only allowed filler in between.
func classifyBusy(lines []string, topIdx int) (AgentState, bool) {
	if topIdx < 2 {
		return Unknown, false
	}
	if strings.TrimSpace(lines[topIdx-1]) != "" {
		return Unknown, false
	}

	indicatorLine := -1
	start := topIdx - 5
	if start < 0 {
		start = 0
	}
	for idx := start; idx < topIdx-1; idx++ {
		if busyPattern.MatchString(strings.TrimSpace(lines[idx])) {
			indicatorLine = idx
			break
		}
	}
	if indicatorLine < 0 {
		return Unknown, false
	}

	for idx := indicatorLine + 1; idx < topIdx-1; idx++ {
		line := strings.TrimSpace(lines[idx])
		if line == "" {
			continue
		}
		allowed := false
		for _, f := range allowedFillerSubstrings {
			if strings.Contains(line, f) {
				allowed = true
				break
			}
		}
		if !allowed {
			return Unknown, false
		}
	}
	return Busy, true
}

var continuationContentPattern = regexp.MustCompile(`│\s*([^│]+)\s*│`)
var promptTextPattern = regexp.MustCompile(`>\s*(.*?)\s*(?:│|$)`)

// classifyWritingOrIdle implements phase 5: scan the box interior for
// non-empty content.
func classifyWritingOrIdle(lines []string, topIdx int) (AgentState, bool) {
	bottomIdx := -1
	for i := topIdx + 1; i < len(lines); i++ {
		if strings.Contains(lines[i], "╰") && strings.Contains(lines[i], "╯") {
			bottomIdx = i
			break
		}
	}
	if bottomIdx <= topIdx {
		return Unknown, false
	}

	for i := topIdx + 1; i < bottomIdx; i++ {
		line := lines[i]
		if strings.Contains(line, "│") && strings.Contains(line, ">") {
			if m := promptTextPattern.FindStringSubmatch(line); m != nil {
				text := strings.TrimSpace(m[1])
				if strings.HasPrefix(text, `Try "`) {
					continue
				}
				if text != "" {
					return Writing, true
				}
			}
			continue
		}
		if strings.Contains(line, "│") {
			if m := continuationContentPattern.FindStringSubmatch(line); m != nil && strings.TrimSpace(m[1]) != "" {
				return Writing, true
			}
		}
	}
	return Idle, true
}
