// Package connector defines the external chat adapter interface and a
// global registry the adapters self-register into.
package connector

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"curie/internal/config"
	"curie/internal/proactive"
	"curie/internal/workflow"
)

// Runtime carries the shared services a connector needs to serve traffic.
type Runtime struct {
	Workflow  *workflow.Workflow
	Proactive *proactive.Service
	Config    *config.Config
}

// Connector is an external chat adapter (telegram, discord, HTTP API).
type Connector interface {
	// ID returns the unique name of the connector (e.g. "telegram").
	ID() string

	// Start begins listening for events and routing them through the
	// workflow. It blocks until the context is canceled or an error occurs.
	Start(ctx context.Context, rt *Runtime) error
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Connector{}
)

// Register records a connector under its ID. Each adapter package calls this
// from init(), so importing the package is what makes it available. A nil or
// duplicate registration is a programming error and panics at startup.
func Register(c Connector) {
	if c == nil {
		panic("connector: nil registration")
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[c.ID()]; exists {
		panic(fmt.Sprintf("connector: duplicate registration for %q", c.ID()))
	}
	registry[c.ID()] = c
}

// Get looks up a connector by ID, failing with the known IDs listed so the
// --connector flag error is self-explanatory.
func Get(id string) (Connector, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if c, ok := registry[id]; ok {
		return c, nil
	}
	known := make([]string, 0, len(registry))
	for k := range registry {
		known = append(known, k)
	}
	sort.Strings(known)
	return nil, fmt.Errorf("unknown connector %q (have: %s)", id, strings.Join(known, ", "))
}

// All returns the registered connectors in a stable order.
func All() []Connector {
	registryMu.RLock()
	defer registryMu.RUnlock()

	list := make([]Connector, 0, len(registry))
	for _, c := range registry {
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID() < list[j].ID() })
	return list
}
