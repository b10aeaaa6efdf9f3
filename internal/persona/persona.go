// Package persona loads persona definitions from JSON files. Persona content
// is data, not logic: the workflow only reads the name, system prompt and
// greeting.
package persona

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

//go:embed curie.json
var defaultPersonaJSON []byte

// Persona describes one assistant personality.
type Persona struct {
	Name         string   `json:"name"`
	SystemPrompt string   `json:"system_prompt"`
	Greeting     string   `json:"greeting"`
	Phrases      []string `json:"phrases"`
}

// Load reads a persona JSON file.
func Load(path string) (*Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona: %w", err)
	}
	var p Persona
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse persona %s: %w", path, err)
	}
	if p.Name == "" || p.SystemPrompt == "" {
		return nil, fmt.Errorf("persona %s: name and system_prompt are required", path)
	}
	return &p, nil
}

// LoadByName looks up <name>.json inside dir.
func LoadByName(dir, name string) (*Persona, error) {
	return Load(filepath.Join(dir, name+".json"))
}

// Default returns the embedded default persona.
func Default() *Persona {
	var p Persona
	if err := json.Unmarshal(defaultPersonaJSON, &p); err != nil {
		// The embedded asset is validated by tests; reaching this means a
		// broken build, not a runtime condition.
		panic(fmt.Sprintf("persona: embedded default is invalid: %v", err))
	}
	return &p
}
