package state

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// HistoryConfig bounds AnomalyHistory retention (spec.md §4.4).
type HistoryConfig struct {
	MaxRecordsPerAgent int
	MaxTotalRecords    int
	RetentionHours     float64
}

// DefaultHistoryConfig matches the values named in spec.md §4.4.
func DefaultHistoryConfig() HistoryConfig {
	return HistoryConfig{
		MaxRecordsPerAgent: 1000,
		MaxTotalRecords:    5000,
		RetentionHours:     24,
	}
}

// AnomalyHistory holds bounded per-agent anomaly records with a global cap
// and time-based retention. Safe for concurrent use.
type AnomalyHistory struct {
	mu      sync.Mutex
	cfg     HistoryConfig
	records map[string][]AnomalyRecord
	total   int
	now     func() time.Time
}

func NewAnomalyHistory(cfg HistoryConfig) *AnomalyHistory {
	return &AnomalyHistory{
		cfg:     cfg,
		records: make(map[string][]AnomalyRecord),
		now:     time.Now,
	}
}

// Record appends freshly detected anomalies for an agent, classifying each
// and then applying retention.
func (h *AnomalyHistory) Record(agentName string, anomalies []rawAnomaly, paneState AgentState) {
	if len(anomalies) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	for _, a := range anomalies {
		rec := AnomalyRecord{
			Timestamp:   now,
			AgentName:   agentName,
			AnomalyType: classifyAnomalyType(a.Content),
			LineNumber:  a.LineNumber,
			Content:     a.Content,
			Context:     a.Context,
			PaneState:   paneState,
		}
		h.records[agentName] = append(h.records[agentName], rec)
		h.total++
		if len(h.records[agentName]) > h.cfg.MaxRecordsPerAgent {
			h.records[agentName] = h.records[agentName][1:]
			h.total--
		}
	}
	h.applyRetention(now)
}

func (h *AnomalyHistory) applyRetention(now time.Time) {
	if h.cfg.RetentionHours > 0 {
		cutoff := now.Add(-time.Duration(h.cfg.RetentionHours * float64(time.Hour)))
		for agent, recs := range h.records {
			idx := 0
			for idx < len(recs) && recs[idx].Timestamp.Before(cutoff) {
				idx++
			}
			if idx > 0 {
				h.total -= idx
				h.records[agent] = recs[idx:]
			}
		}
	}

	if h.total <= h.cfg.MaxTotalRecords {
		return
	}

	type entry struct {
		agent string
		idx   int
		ts    time.Time
	}
	var all []entry
	for agent, recs := range h.records {
		for i, r := range recs {
			all = append(all, entry{agent, i, r.Timestamp})
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ts.Before(all[j].ts) })

	toRemove := h.total - h.cfg.MaxTotalRecords
	removedPerAgent := make(map[string]int)
	for i := 0; i < toRemove && i < len(all); i++ {
		removedPerAgent[all[i].agent]++
	}
	for agent, n := range removedPerAgent {
		if n >= len(h.records[agent]) {
			h.total -= len(h.records[agent])
			h.records[agent] = nil
		} else {
			h.total -= n
			h.records[agent] = h.records[agent][n:]
		}
	}
}

// QueryFilter narrows Query results.
type QueryFilter struct {
	AgentName   string
	AnomalyType AnomalyType
	Start, End  time.Time
	Limit       int
}

// Query returns records matching filter, grouped by agent in name order and
// oldest first within each agent, stopping after Limit records (0 = 100).
func (h *AnomalyHistory) Query(f QueryFilter) []AnomalyRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	var agents []string
	if f.AgentName != "" {
		if _, ok := h.records[f.AgentName]; ok {
			agents = []string{f.AgentName}
		}
	} else {
		for a := range h.records {
			agents = append(agents, a)
		}
		sort.Strings(agents)
	}

	var out []AnomalyRecord
	for _, a := range agents {
		for _, r := range h.records[a] {
			if f.AnomalyType != "" && r.AnomalyType != f.AnomalyType {
				continue
			}
			if !f.Start.IsZero() && r.Timestamp.Before(f.Start) {
				continue
			}
			if !f.End.IsZero() && r.Timestamp.After(f.End) {
				continue
			}
			out = append(out, r)
			if len(out) >= limit {
				return out
			}
		}
	}
	return out
}

// Summary returns counts by anomaly type and by agent.
func (h *AnomalyHistory) Summary() (byType map[AnomalyType]int, byAgent map[string]int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	byType = make(map[AnomalyType]int)
	byAgent = make(map[string]int)
	for agent, recs := range h.records {
		byAgent[agent] = len(recs)
		for _, r := range recs {
			byType[r.AnomalyType]++
		}
	}
	return byType, byAgent
}

// ExportFormat selects the export encoding for Export.
type ExportFormat string

const (
	ExportJSON ExportFormat = "json"
	ExportCSV  ExportFormat = "csv"
	ExportText ExportFormat = "text"
)

// Export renders the full history (subject to f) in the requested format.
func (h *AnomalyHistory) Export(format ExportFormat, f QueryFilter) (string, error) {
	if f.Limit == 0 {
		f.Limit = 1 << 30
	}
	records := h.Query(f)

	switch format {
	case ExportJSON:
		b, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			return "", fmt.Errorf("export anomalies as json: %w", err)
		}
		return string(b), nil
	case ExportCSV:
		var sb strings.Builder
		w := csv.NewWriter(&sb)
		_ = w.Write([]string{"timestamp", "agent", "type", "line", "content"})
		for _, r := range records {
			_ = w.Write([]string{
				r.Timestamp.Format(time.RFC3339),
				r.AgentName,
				string(r.AnomalyType),
				fmt.Sprintf("%d", r.LineNumber),
				r.Content,
			})
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return "", fmt.Errorf("export anomalies as csv: %w", err)
		}
		return sb.String(), nil
	case ExportText:
		var sb strings.Builder
		for _, r := range records {
			fmt.Fprintf(&sb, "[%s] %s (%s) line %d: %s\n",
				r.Timestamp.Format(time.RFC3339), r.AgentName, r.AnomalyType, r.LineNumber, r.Content)
		}
		return sb.String(), nil
	default:
		return "", fmt.Errorf("unsupported export format: %s", format)
	}
}
