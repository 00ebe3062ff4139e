package transcript

import (
	"os"
	"path/filepath"
	"testing"
)

func writeLines(t *testing.T, path string, lines []string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	for _, l := range lines {
		if _, err := f.WriteString(l + "\n"); err != nil {
			t.Fatal(err)
		}
	}
}

func TestMonitor_GetNewMessages_IncrementalAndDedup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcript.jsonl")
	writeLines(t, path, []string{
		`{"uuid":"1","type":"user","message":{"content":"hello"}}`,
	})

	m := NewMonitor(path, "alice")
	first, err := m.GetNewMessages()
	if err != nil {
		t.Fatalf("GetNewMessages() error: %v", err)
	}
	if len(first) != 1 || first[0].Content != "hello" {
		t.Fatalf("first read = %+v, want one message with content 'hello'", first)
	}

	second, err := m.GetNewMessages()
	if err != nil {
		t.Fatalf("GetNewMessages() error: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("second read (no new lines) = %+v, want empty", second)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(`{"uuid":"1","type":"user","message":{"content":"hello"}}` + "\n"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(`{"uuid":"2","type":"assistant","message":{"content":[{"type":"text","text":"hi there"}]}}` + "\n"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	third, err := m.GetNewMessages()
	if err != nil {
		t.Fatalf("GetNewMessages() error: %v", err)
	}
	if len(third) != 1 || third[0].UUID != "2" {
		t.Fatalf("third read = %+v, want only the new uuid=2 message (uuid=1 is a dup)", third)
	}
}

func TestMonitor_GetNewMessages_MissingFile(t *testing.T) {
	m := NewMonitor(filepath.Join(t.TempDir(), "nonexistent.jsonl"), "alice")
	msgs, err := m.GetNewMessages()
	if err != nil {
		t.Fatalf("GetNewMessages() on missing file: error = %v, want nil", err)
	}
	if msgs != nil {
		t.Errorf("GetNewMessages() on missing file = %v, want nil", msgs)
	}
}

func TestMonitor_GetNewMessages_TruncationResets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcript.jsonl")
	writeLines(t, path, []string{
		`{"uuid":"1","type":"user","message":{"content":"one"}}`,
		`{"uuid":"2","type":"user","message":{"content":"two"}}`,
	})
	m := NewMonitor(path, "alice")
	if _, err := m.GetNewMessages(); err != nil {
		t.Fatal(err)
	}

	writeLines(t, path, []string{
		`{"uuid":"3","type":"user","message":{"content":"three"}}`,
	})
	msgs, err := m.GetNewMessages()
	if err != nil {
		t.Fatalf("GetNewMessages() after truncation: error = %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "three" {
		t.Fatalf("after truncation got %+v, want just the new shorter file's content", msgs)
	}
}

func TestExtractContent_UserToolResult(t *testing.T) {
	content := extractContent("user", []byte(`{"content":[{"type":"tool_result","content":"42"}]}`))
	if content != "[Tool Result: 42]" {
		t.Errorf("extractContent() = %q, want [Tool Result: 42]", content)
	}
}

func TestExtractContent_SystemString(t *testing.T) {
	content := extractContent("system", []byte(`{"content":"system note"}`))
	if content != "system note" {
		t.Errorf("extractContent() = %q, want %q", content, "system note")
	}
}

func TestExtractCommands_AttributeForm(t *testing.T) {
	text := `<orc-command name="send_message" to="bob" priority="high">Please review</orc-command>`
	cmds := ExtractCommands(text, "alice")
	if len(cmds) != 1 {
		t.Fatalf("got %d commands, want 1", len(cmds))
	}
	c := cmds[0]
	if c.Name != "send_message" || c.To != "bob" || c.Priority != "high" || c.From != "alice" {
		t.Errorf("parsed command = %+v, want {send_message bob alice high}", c)
	}
	if c.Content != "Please review" {
		t.Errorf("Content = %q, want %q", c.Content, "Please review")
	}
}

func TestExtractCommands_NestedTagForm(t *testing.T) {
	text := `<orc-command type="send_message"><to>carol</to><title>Status</title><content>All done</content></orc-command>`
	cmds := ExtractCommands(text, "alice")
	if len(cmds) != 1 {
		t.Fatalf("got %d commands, want 1", len(cmds))
	}
	c := cmds[0]
	if c.To != "carol" || c.Title != "Status" || c.Content != "All done" || c.Priority != "normal" {
		t.Errorf("parsed command = %+v", c)
	}
}

func TestExtractCommands_AttributeWinsOverNestedTag(t *testing.T) {
	text := `<orc-command name="send_message" to="bob"><to>carol</to></orc-command>`
	cmds := ExtractCommands(text, "alice")
	if len(cmds) != 1 || cmds[0].To != "bob" {
		t.Fatalf("attribute form should win: got %+v", cmds)
	}
}

func TestExtractCommands_NoCommands(t *testing.T) {
	if cmds := ExtractCommands("just plain text", "alice"); cmds != nil {
		t.Errorf("ExtractCommands() on plain text = %v, want nil", cmds)
	}
}
