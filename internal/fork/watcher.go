package fork

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ResolveFunc is invoked with (agentName, dir, storedId) whenever a
// directory event (or poll tick) suggests the active transcript may have
// forked.
type ResolveFunc func(agentName, dir, storedId string)

// WatchTarget is one agent's transcript directory under observation.
type WatchTarget struct {
	AgentName string
	Dir       string
	StoredId  string
}

const pollInterval = 30 * time.Second
const debounce = 500 * time.Millisecond

// Watch observes each target's directory for create/modify/rename events
// of .jsonl files via inotify (through fsnotify), calling onChange after a
// 500ms debounce. Falls back to fixed-interval polling if the watcher
// cannot be created (e.g. no inotify support on the platform).
func Watch(ctx context.Context, targets []WatchTarget, onChange ResolveFunc, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn("falling back to polling: fsnotify unavailable", slog.Any("error", err))
		pollLoop(ctx, targets, onChange)
		return
	}
	defer watcher.Close()

	byDir := make(map[string]WatchTarget)
	for _, t := range targets {
		if err := watcher.Add(t.Dir); err != nil {
			log.Warn("could not watch transcript dir, will rely on polling", slog.String("dir", t.Dir), slog.Any("error", err))
			continue
		}
		byDir[t.Dir] = t
	}

	pollTicker := time.NewTicker(pollInterval)
	defer pollTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(ev.Name, ".jsonl") {
				continue
			}
			if !(ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Rename)) {
				continue
			}
			dir := dirOf(ev.Name)
			t, ok := byDir[dir]
			if !ok {
				continue
			}
			time.Sleep(debounce)
			onChange(t.AgentName, t.Dir, t.StoredId)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Warn("fsnotify error", slog.Any("error", err))
		case <-pollTicker.C:
			for _, t := range targets {
				onChange(t.AgentName, t.Dir, t.StoredId)
			}
		}
	}
}

func pollLoop(ctx context.Context, targets []WatchTarget, onChange ResolveFunc) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, t := range targets {
				onChange(t.AgentName, t.Dir, t.StoredId)
			}
		}
	}
}

func dirOf(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return path
	}
	return path[:idx]
}
