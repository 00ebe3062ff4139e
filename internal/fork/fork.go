// Package fork resolves which transcript file is the live descendant of a
// previously recorded session id, after an agent's child process is
// resumed into a new transcript file (spec.md §4.9).
package fork

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNoDescendant is returned when the stored id is never found and no
// descendant transcript can be identified — callers must not guess.
var ErrNoDescendant = errors.New("fork: stored transcript id not found and no descendant identified")

// EscapeWorkingDir renders a working directory path into the directory-name
// convention's path segment: slashes become dashes, with no special-casing
// of the leading dash this produces for an absolute path.
func EscapeWorkingDir(workingDir string) string {
	return strings.ReplaceAll(workingDir, "/", "-")
}

// sanitizeAgentName mirrors the convention's agent-name sanitization: only
// alphanumerics, dash, and underscore survive.
func sanitizeAgentName(name string) string {
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	return sb.String()
}

// TranscriptDir returns the directory holding context/agent transcripts per
// the convention: ~/.claude/projects/ccbox-{context}-{agent}-{workdir}.
func TranscriptDir(homeDir, contextName, agentName, workingDir string) string {
	dirName := fmt.Sprintf("ccbox-%s-%s-%s", contextName, sanitizeAgentName(agentName), EscapeWorkingDir(workingDir))
	return filepath.Join(homeDir, ".claude", "projects", dirName)
}

type candidateFile struct {
	path    string
	modTime int64
}

// listJSONLByMTimeDesc enumerates *.jsonl under dir, newest first.
func listJSONLByMTimeDesc(dir string) ([]candidateFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read transcript dir %s: %w", dir, err)
	}
	var files []candidateFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, candidateFile{path: filepath.Join(dir, e.Name()), modTime: info.ModTime().UnixNano()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].modTime > files[j].modTime })
	return files, nil
}

// earlySessionIds returns the distinct sessionId values observed across the
// first 10 lines of f, in order of first appearance.
func earlySessionIds(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var ids []string
	seen := make(map[string]bool)
	for i := 0; i < 10 && scanner.Scan(); i++ {
		var rec struct {
			SessionId string `json:"sessionId"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		if rec.SessionId == "" || seen[rec.SessionId] {
			continue
		}
		seen[rec.SessionId] = true
		ids = append(ids, rec.SessionId)
	}
	return ids, nil
}

// isDescendantOf reports whether f is a descendant of the stored session id
// S: S appears among the distinct sessionIds observed in f's first 10 lines
// (whether S is the sole id, or S changed to a new one — both surface S in
// the observed set).
func isDescendantOf(path, storedId string) (bool, error) {
	ids, err := earlySessionIds(path)
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		if id == storedId {
			return true, nil
		}
	}
	return false, nil
}

// Resolve walks dir's *.jsonl files newest-to-oldest. If the newest file's
// stem equals storedId, it is still current. Otherwise each newer file is
// tested as a descendant of storedId; the first descendant found is the new
// active transcript id. If storedId is never encountered and no descendant
// is found, ErrNoDescendant is returned.
func Resolve(dir, storedId string) (string, error) {
	files, err := listJSONLByMTimeDesc(dir)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", ErrNoDescendant
	}

	stem := func(path string) string {
		base := filepath.Base(path)
		return strings.TrimSuffix(base, ".jsonl")
	}

	if stem(files[0].path) == storedId {
		return storedId, nil
	}

	for _, f := range files {
		if stem(f.path) == storedId {
			// storedId itself found further down the list with no newer
			// descendant preceding it: still current.
			return storedId, nil
		}
		ok, err := isDescendantOf(f.path, storedId)
		if err != nil {
			continue
		}
		if ok {
			return stem(f.path), nil
		}
	}

	return "", ErrNoDescendant
}
