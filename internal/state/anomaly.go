package state

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
)

// AnomalyType classifies a recorded AnomalyRecord by the structural defect
// that produced it.
type AnomalyType string

const (
	AnomalyMultipleInputBoxes AnomalyType = "multiple_input_boxes"
	AnomalyIncompleteBox      AnomalyType = "incomplete_box"
	AnomalyUnknownBoxType     AnomalyType = "unknown_box_type"
	AnomalyTooManyBoxes       AnomalyType = "too_many_boxes"
	AnomalyOther              AnomalyType = "other"
)

func classifyAnomalyType(content string) AnomalyType {
	switch {
	case strings.Contains(content, "Multiple input boxes"):
		return AnomalyMultipleInputBoxes
	case strings.Contains(content, "Incomplete prompt box"):
		return AnomalyIncompleteBox
	case strings.Contains(content, "Unrecognized box type"):
		return AnomalyUnknownBoxType
	case strings.Contains(content, "Too many prompt boxes"):
		return AnomalyTooManyBoxes
	default:
		return AnomalyOther
	}
}

// AnomalyRecord is an individual recorded anomaly (spec.md §3).
type AnomalyRecord struct {
	Timestamp   time.Time
	AgentName   string
	AnomalyType AnomalyType
	LineNumber  int
	Content     string
	Context     []string
	PaneState   AgentState
}

// rawAnomaly is the pre-classification scan result.
type rawAnomaly struct {
	LineNumber int
	Content    string
	Context    []string
}

var (
	boxTopPattern    = regexp.MustCompile(`^╭[─]+╮`)
	boxMiddlePattern = regexp.MustCompile(`│.*│`)
	boxBottomPattern = regexp.MustCompile(`^╰[─]+╯`)

	welcomeContentPattern     = regexp.MustCompile(`Welcome to Claude Code`)
	inputContentPattern       = regexp.MustCompile(`^\s*>\s*`)
	permissionsDialogPattern  = regexp.MustCompile(`Permissions:`)
	orphanBoxGlyphsPattern    = regexp.MustCompile(`[┌┐└┘├┤┬┴┼]`)
	// unusualSeparatorsPattern only flags a line that consists solely of
	// these separator runes; a single stray glyph amid real text is not an
	// orphan separator line.
	unusualSeparatorsPattern = regexp.MustCompile(`^[═━┃┏┓┗┛]+$`)
)

// minUnusualSeparatorLineLen is the shortest line unusualSeparatorsPattern
// will flag; shorter runs are too common in legitimate narrow borders.
const minUnusualSeparatorLineLen = 10

var dialogKeywords = []string{
	"Settings", "Configure Claude Code", "Agents", "Create new agent",
	"Hook Configuration", "Select Model",
}

var infoKeywords = []string{"Tip:", "Note:", "Warning:", "Error:"}

type scannedBox struct {
	top, bottom int
	middle      []int
	boxType     BoxType
}

// ClassifyBoxType determines what kind of prompt box a scanned box is,
// from the joined text of its interior lines.
func ClassifyBoxType(lines []string, middle []int) BoxType {
	var sb strings.Builder
	for _, idx := range middle {
		if idx >= len(lines) {
			continue
		}
		content := strings.TrimSpace(lines[idx])
		content = strings.TrimPrefix(content, "│")
		content = strings.TrimSuffix(content, "│")
		sb.WriteString(strings.TrimSpace(content))
		sb.WriteString(" ")
	}
	full := sb.String()

	switch {
	case welcomeContentPattern.MatchString(full):
		return BoxWelcome
	case inputContentPattern.MatchString(full):
		return BoxInput
	case strings.Contains(full, "MESSAGE") || strings.Contains(full, "message"):
		return BoxMessage
	case containsAny(full, infoKeywords):
		return BoxInfo
	case permissionsDialogPattern.MatchString(full) && (strings.Contains(full, "Allow") || strings.Contains(full, "Deny")):
		return BoxDialog
	case containsAny(full, dialogKeywords):
		return BoxDialog
	case strings.TrimSpace(full) == "":
		return BoxEmpty
	default:
		return BoxUnknown
	}
}

// borderWidthsMatch compares a box's top and bottom border by rendered
// column width rather than byte or rune count, since wide glyphs in agent
// output can otherwise make a well-formed border look ragged.
func borderWidthsMatch(top, bottom string) bool {
	return runewidth.StringWidth(strings.TrimRight(top, " ")) == runewidth.StringWidth(strings.TrimRight(bottom, " "))
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// DetectAnomalies scans captured pane text for structural UI defects
// independent of state classification (spec.md §4.4).
func DetectAnomalies(paneContent string) []rawAnomaly {
	lines := strings.Split(paneContent, "\n")
	var anomalies []rawAnomaly
	var boxes []scannedBox

	i := 0
	for i < len(lines) {
		if !boxTopPattern.MatchString(lines[i]) {
			i++
			continue
		}
		box := scannedBox{top: i, bottom: -1}
		j := i + 1
	scan:
		for j < len(lines) && j < box.top+10 {
			switch {
			case boxMiddlePattern.MatchString(lines[j]):
				box.middle = append(box.middle, j)
				j++
			case boxBottomPattern.MatchString(lines[j]):
				box.bottom = j
				j++
				break scan
			default:
				break scan
			}
		}
		if box.bottom >= 0 {
			box.boxType = ClassifyBoxType(lines, box.middle)
			boxes = append(boxes, box)
			if !borderWidthsMatch(lines[box.top], lines[box.bottom]) {
				anomalies = append(anomalies, rawAnomaly{
					LineNumber: box.top,
					Content:    "Ragged prompt box border",
					Context:    contextWindow(lines, box.top, 2),
				})
			}
		} else {
			boxType := ClassifyBoxType(lines, box.middle)
			if boxType != BoxDialog {
				anomalies = append(anomalies, rawAnomaly{
					LineNumber: box.top,
					Content:    "Incomplete prompt box",
					Context:    contextWindow(lines, box.top, 2),
				})
			}
		}
		i = j
	}

	inputBoxCount := 0
	for _, b := range boxes {
		if b.boxType == BoxInput {
			inputBoxCount++
		}
		if b.boxType == BoxUnknown {
			anomalies = append(anomalies, rawAnomaly{
				LineNumber: b.top,
				Content:    "Unrecognized box type",
				Context:    contextWindow(lines, b.top, 2),
			})
		}
	}
	if inputBoxCount > 1 {
		anomalies = append(anomalies, rawAnomaly{
			LineNumber: 0,
			Content:    "Multiple input boxes detected",
			Context:    nil,
		})
	}

	trackedLines := make(map[int]bool)
	for _, b := range boxes {
		trackedLines[b.top] = true
		trackedLines[b.bottom] = true
		for _, m := range b.middle {
			trackedLines[m] = true
		}
	}
	for idx, line := range lines {
		if trackedLines[idx] {
			continue
		}
		trimmed := strings.TrimSpace(line)
		isUnusualSeparatorLine := utf8.RuneCountInString(trimmed) >= minUnusualSeparatorLineLen && unusualSeparatorsPattern.MatchString(trimmed)
		if orphanBoxGlyphsPattern.MatchString(line) || isUnusualSeparatorLine {
			anomalies = append(anomalies, rawAnomaly{
				LineNumber: idx,
				Content:    "Orphan box-drawing characters outside tracked box",
				Context:    contextWindow(lines, idx, 2),
			})
		}
	}

	return anomalies
}

func contextWindow(lines []string, idx, radius int) []string {
	lo := idx - radius
	if lo < 0 {
		lo = 0
	}
	hi := idx + radius + 1
	if hi > len(lines) {
		hi = len(lines)
	}
	return append([]string(nil), lines[lo:hi]...)
}
