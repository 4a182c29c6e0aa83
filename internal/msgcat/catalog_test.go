package msgcat

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEmbeddedMessagesRender(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	got, err := c.Render("move.committed", map[string]any{"Ply": 1, "Side": "white", "SAN": "e4"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if got != "1. white e4" {
		t.Fatalf("got %q", got)
	}

	got, err = c.Render("prompt.choice", map[string]any{"Choices": []string{"d1a4", "d1d7"}})
	if err != nil {
		t.Fatalf("render choice: %v", err)
	}
	if !strings.HasSuffix(got, "1=d1a4 2=d1d7") {
		t.Fatalf("choice = %q", got)
	}
}

func TestMissingDataIsAnError(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := c.Render("move.committed", map[string]any{"Ply": 1}); err == nil {
		t.Fatalf("expected missing key error")
	}
	if got := c.Text("no.such.key", nil); got != "no.such.key" {
		t.Fatalf("fallback = %q", got)
	}
}

func TestOverrideDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("reject:\n  illegal: \"Nope.\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := New(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if got := c.Text("reject.illegal", nil); got != "Nope." {
		t.Fatalf("override = %q", got)
	}

	if err := os.WriteFile(filepath.Join(dir, "b.yaml"), []byte("reject:\n  illegal: \"Again.\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := New(dir); err == nil {
		t.Fatalf("expected duplicate key error")
	}
}
