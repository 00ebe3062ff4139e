package supervisor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

type mcpServerEntry struct {
	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Env     map[string]string `json:"env"`
}

type mcpConfigFile struct {
	MCPServers map[string]mcpServerEntry `json:"mcpServers"`
}

// writeMCPConfig synthesizes a per-agent MCP proxy configuration pointing
// at the broker, per spec.md §6's MCP proxy configuration shape.
func writeMCPConfig(scratchDir, agentName string, port int) (string, error) {
	cfg := mcpConfigFile{
		MCPServers: map[string]mcpServerEntry{
			"orchestrator": {
				Command: "python3",
				Args:    []string{filepath.Join(scratchDir, "bin", "proxy.py")},
				Env: map[string]string{
					"AGENT_NAME":       agentName,
					"ORCHESTRATOR_URL": fmt.Sprintf("http://localhost:%d", port),
				},
			},
		},
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal mcp config for %s: %w", agentName, err)
	}
	path := filepath.Join(scratchDir, "mcp_configs", fmt.Sprintf("mcp_%s_%s.json", agentName, uuid.NewString()[:8]))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write mcp config for %s: %w", agentName, err)
	}
	return path, nil
}
