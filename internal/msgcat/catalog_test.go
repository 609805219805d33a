package msgcat

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEmbeddedDefaultsRender(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	got, err := c.Render("game.engine_move", map[string]string{"SAN": "Nf3", "Ponder": "d7d5"})
	if err != nil || got != "engine: Nf3 (expects d7d5)" {
		t.Fatalf("render %q err=%v", got, err)
	}
	got = c.Text("game.engine_move", map[string]string{"SAN": "e5", "Ponder": ""})
	if got != "engine: e5" {
		t.Fatalf("render without ponder %q", got)
	}
	if !strings.Contains(c.Text("console.help", nil), "resign") {
		t.Fatalf("help text missing commands")
	}
}

func TestRenderErrors(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := c.Render("no.such.key", nil); err == nil {
		t.Fatalf("expected missing template error")
	}
	if _, err := c.Render("game.over", map[string]string{"Result": "1-0"}); err == nil {
		t.Fatalf("expected missing data key error")
	}
	if got := c.Text("no.such.key", nil); got != "no.such.key" {
		t.Fatalf("fallback %q", got)
	}
}

func TestOverrideDirectory(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	write("a.yaml", "game:\n  over: \"끝: {{.Result}}\"\n")
	write("notes.txt", "ignored")

	c, err := New(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if got := c.Text("game.over", map[string]string{"Result": "0-1", "Method": "x"}); got != "끝: 0-1" {
		t.Fatalf("override %q", got)
	}

	write("b.yml", "game:\n  over: dup\n")
	if _, err := New(dir); err == nil {
		t.Fatalf("expected duplicate key error")
	}

	bad := t.TempDir()
	if err := os.WriteFile(filepath.Join(bad, "x.yaml"), []byte("game:\n  count: 3\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := New(bad); err == nil {
		t.Fatalf("expected non-string leaf error")
	}
}
