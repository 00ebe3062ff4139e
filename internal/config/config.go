// Package config is the orchestrator's root configuration: supervisor
// timing, tmux session shape, broker networking, and context registry
// location.
package config

import (
	"encoding/json"
	"fmt"
)

// Config is the root orchestrator configuration.
type Config struct {
	Supervisor SupervisorConfig `json:"supervisor"`
	Tmux       TmuxConfig       `json:"tmux"`
	Broker     BrokerConfig     `json:"broker"`
	Registry   RegistryConfig   `json:"registry"`
	Telemetry  TelemetryConfig  `json:"telemetry,omitempty"`
}

// SupervisorConfig governs poll cadence and shutdown behavior (spec.md §4.8, §5).
type SupervisorConfig struct {
	PollIntervalMS       int  `json:"poll_interval_ms"`
	MonitorIntervalMS    int  `json:"monitor_interval_ms"`
	StabilizationSeconds int  `json:"stabilization_seconds"`
	AgentIdleTimeoutSecs int  `json:"agent_idle_timeout_seconds"`
	ShutdownTimeoutSecs  int  `json:"shutdown_timeout_seconds"`
	Enhanced             bool `json:"enhanced"`
	LauncherPath         string `json:"launcher_path"`
}

// TmuxConfig governs the multiplexer session the Supervisor drives.
type TmuxConfig struct {
	SessionName string       `json:"session_name"`
	Layout      FlexibleLayout `json:"layout"`
	Force       bool         `json:"force"`
}

// BrokerConfig governs the JSON-RPC broker's HTTP listener.
type BrokerConfig struct {
	PreferredPort int `json:"preferred_port"`
	MaxPortProbe  int `json:"max_port_probe"`
}

// RegistryConfig locates the context registry's backing store.
type RegistryConfig struct {
	Path            string `json:"path"`
	HistoryDBPath   string `json:"history_db_path,omitempty"`
}

// TelemetryConfig governs OpenTelemetry export for supervisor poll spans.
type TelemetryConfig struct {
	Enabled        bool   `json:"enabled"`
	OTLPEndpoint   string `json:"otlp_endpoint,omitempty"`
	ServiceName    string `json:"service_name,omitempty"`
	ExportSchedule string `json:"export_schedule,omitempty"` // cron expression for periodic AnomalyHistory export
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Supervisor: SupervisorConfig{
			PollIntervalMS:       500,
			MonitorIntervalMS:    500,
			StabilizationSeconds: 5,
			AgentIdleTimeoutSecs: 30,
			ShutdownTimeoutSecs:  5,
			Enhanced:             true,
			LauncherPath:         "claude-launcher",
		},
		Tmux: TmuxConfig{
			SessionName: "orcd",
			Layout:      FlexibleLayout{TemplateName: "horizontal"},
		},
		Broker: BrokerConfig{
			PreferredPort: 8765,
			MaxPortProbe:  10,
		},
		Registry: RegistryConfig{
			Path: "~/.claude-orc/team_contexts.json",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "orcd",
		},
	}
}

// FlexibleStringSlice accepts both ["str"] and [123] in JSON.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}
