package connector

import (
	"context"
	"strings"
	"testing"
)

type stubConnector struct{ id string }

func (s *stubConnector) ID() string { return s.id }

func (s *stubConnector) Start(ctx context.Context, rt *Runtime) error { return nil }

func TestRegistryLookup(t *testing.T) {
	t.Cleanup(func() {
		registryMu.Lock()
		registry = map[string]Connector{}
		registryMu.Unlock()
	})

	Register(&stubConnector{id: "beta"})
	Register(&stubConnector{id: "alpha"})

	c, err := Get("alpha")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if c.ID() != "alpha" {
		t.Fatalf("expected alpha, got %q", c.ID())
	}

	if _, err := Get("nope"); err == nil {
		t.Fatal("expected error for unknown id")
	} else if !strings.Contains(err.Error(), "alpha, beta") {
		t.Fatalf("error should list known ids, got %q", err.Error())
	}

	all := All()
	if len(all) != 2 || all[0].ID() != "alpha" || all[1].ID() != "beta" {
		t.Fatalf("expected sorted [alpha beta], got %#v", all)
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	t.Cleanup(func() {
		registryMu.Lock()
		registry = map[string]Connector{}
		registryMu.Unlock()
	})

	Register(&stubConnector{id: "dup"})

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	Register(&stubConnector{id: "dup"})
}
