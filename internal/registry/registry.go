// Package registry is a durable, file-backed store of team contexts
// (spec.md §4.10), keyed by context name.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/titanous/json5"

	"github.com/nextlevelbuilder/orcd/internal/fork"
)

// AgentInfo is one agent's recorded launch state within a TeamContext.
type AgentInfo struct {
	Name         string `json:"name"`
	Role         string `json:"role"`
	Model        string `json:"model"`
	PaneIndex    int    `json:"paneIndex"`
	TranscriptId string `json:"transcriptId"`
}

// TeamContext is one registered orchestration run.
type TeamContext struct {
	ContextName       string         `json:"contextName"`
	TmuxSession       string         `json:"tmuxSession"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
	WorkingDir        string         `json:"workingDir"`
	Agents            []AgentInfo    `json:"agents"`
	OrchestratorConfig map[string]any `json:"orchestratorConfig"`
}

type fileSchema struct {
	Contexts map[string]TeamContext `json:"contexts"`
}

// Registry is a JSON-file-backed map of TeamContext, serialized through a
// single in-process lock and rewritten atomically on every write.
type Registry struct {
	path string
	log  *slog.Logger

	mu       sync.Mutex
	contexts map[string]TeamContext
}

// DefaultPath returns ~/.claude-orc/team_contexts.json.
func DefaultPath(homeDir string) string {
	return filepath.Join(homeDir, ".claude-orc", "team_contexts.json")
}

func New(path string, log *slog.Logger) (*Registry, error) {
	if log == nil {
		log = slog.Default()
	}
	r := &Registry{path: path, log: log, contexts: make(map[string]TeamContext)}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

// load reads the backing file. A corrupted file is treated as empty and
// logged, never surfaced as an error (spec.md §4.10).
func (r *Registry) load() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read registry %s: %w", r.path, err)
	}

	var schema fileSchema
	if err := json5.Unmarshal(data, &schema); err != nil {
		r.log.Warn("context registry file corrupted, treating as empty", slog.String("path", r.path), slog.Any("error", err))
		return nil
	}
	if schema.Contexts == nil {
		schema.Contexts = make(map[string]TeamContext)
	}
	r.contexts = schema.Contexts
	return nil
}

func (r *Registry) saveLocked() error {
	schema := fileSchema{Contexts: r.contexts}
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("mkdir registry dir: %w", err)
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write registry tmp file: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("rename registry tmp file: %w", err)
	}
	return nil
}

// Create adds a new context. Fails if contextName is already registered.
func (r *Registry) Create(ctx TeamContext) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.contexts[ctx.ContextName]; exists {
		return fmt.Errorf("context %q already exists", ctx.ContextName)
	}
	now := time.Now()
	ctx.CreatedAt = now
	ctx.UpdatedAt = now
	r.contexts[ctx.ContextName] = ctx
	return r.saveLocked()
}

// Get returns a context by name.
func (r *Registry) Get(name string) (TeamContext, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contexts[name]
	return c, ok
}

// List returns every registered context.
func (r *Registry) List() []TeamContext {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TeamContext, 0, len(r.contexts))
	for _, c := range r.contexts {
		out = append(out, c)
	}
	return out
}

// Update applies a partial update described by fields; unknown keys are
// refused.
func (r *Registry) Update(name string, fields map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contexts[name]
	if !ok {
		return fmt.Errorf("context %q not found", name)
	}
	for k, v := range fields {
		switch k {
		case "workingDir":
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("update %q: workingDir must be a string", name)
			}
			c.WorkingDir = s
		case "agents":
			b, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("update %q: invalid agents value: %w", name, err)
			}
			var agents []AgentInfo
			if err := json.Unmarshal(b, &agents); err != nil {
				return fmt.Errorf("update %q: invalid agents value: %w", name, err)
			}
			c.Agents = agents
		case "orchestratorConfig":
			m, ok := v.(map[string]any)
			if !ok {
				return fmt.Errorf("update %q: orchestratorConfig must be an object", name)
			}
			c.OrchestratorConfig = m
		default:
			return fmt.Errorf("update %q: unknown field %q", name, k)
		}
	}
	c.UpdatedAt = time.Now()
	r.contexts[name] = c
	return r.saveLocked()
}

// Delete removes a context by name.
func (r *Registry) Delete(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.contexts[name]; !ok {
		return fmt.Errorf("context %q not found", name)
	}
	delete(r.contexts, name)
	return r.saveLocked()
}

// Resume loads a context, failing if any expected agent has an empty
// TranscriptId (the container/transcript is considered missing), then
// reconciles every recorded TranscriptId with the filesystem via the
// Session-Fork Detector (spec.md §4.9's data-flow requirement that C8
// reconciles stored transcript identifiers at launch/resume): an agent
// resumed by the Claude CLI into a new session file is forked forward to
// that file's id. Any resulting changes are persisted back to the registry.
func (r *Registry) Resume(name string) (TeamContext, error) {
	r.mu.Lock()
	c, ok := r.contexts[name]
	r.mu.Unlock()
	if !ok {
		return TeamContext{}, fmt.Errorf("context %q not found", name)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return TeamContext{}, fmt.Errorf("resolve home dir: %w", err)
	}

	changed := false
	for i := range c.Agents {
		a := &c.Agents[i]
		if a.TranscriptId == "" {
			return TeamContext{}, fmt.Errorf("context %q: agent %q has no recorded transcript", name, a.Name)
		}
		dir := fork.TranscriptDir(homeDir, c.ContextName, a.Name, c.WorkingDir)
		resolved, err := fork.Resolve(dir, a.TranscriptId)
		if err != nil {
			if errors.Is(err, fork.ErrNoDescendant) {
				return TeamContext{}, fmt.Errorf("context %q: agent %q transcript %q not found and no fork descendant: %w", name, a.Name, a.TranscriptId, err)
			}
			return TeamContext{}, fmt.Errorf("context %q: agent %q: %w", name, a.Name, err)
		}
		if resolved != a.TranscriptId {
			a.TranscriptId = resolved
			changed = true
		}
	}

	if changed {
		r.mu.Lock()
		r.contexts[name] = c
		err := r.saveLocked()
		r.mu.Unlock()
		if err != nil {
			return TeamContext{}, err
		}
	}

	return c, nil
}

// Cleanup logs what would be torn down for a context and removes the
// registry entry, without actually killing resources — real teardown is
// the Supervisor's job via Stop, grounded on cleanup_context.
func (r *Registry) Cleanup(name string) error {
	r.mu.Lock()
	c, ok := r.contexts[name]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("context %q not found", name)
	}
	r.log.Info("would tear down context resources",
		slog.String("context", name),
		slog.String("tmux_session", c.TmuxSession),
		slog.Int("agent_count", len(c.Agents)))
	return r.Delete(name)
}
