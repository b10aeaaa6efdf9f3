package persona

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultPersonaIsValid(t *testing.T) {
	p := Default()
	if p.Name == "" || p.SystemPrompt == "" || p.Greeting == "" {
		t.Fatalf("embedded default persona incomplete: %+v", p)
	}
}

func TestLoadByName(t *testing.T) {
	dir := t.TempDir()
	data := `{"name":"Tester","system_prompt":"You are a test persona.","greeting":"hi"}`
	if err := os.WriteFile(filepath.Join(dir, "tester.json"), []byte(data), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	p, err := LoadByName(dir, "tester")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name != "Tester" {
		t.Fatalf("expected Tester, got %q", p.Name)
	}
}

func TestLoadRejectsIncompletePersona(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(path, []byte(`{"name":"NoPrompt"}`), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for persona without system_prompt")
	}
}
