package proactive

import (
	"context"
	"sync"
	"testing"
	"time"

	"curie/internal/persona"
)

type recordingSender struct {
	mu    sync.Mutex
	sent  []string
	calls int
}

func (r *recordingSender) Platform() string { return "telegram" }

func (r *recordingSender) Send(_ context.Context, chatID, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, chatID)
	r.calls = len(r.sent)
	return nil
}

func (r *recordingSender) sentTo() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sent...)
}

func TestSweepSendsAfterIdleThreshold(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := New(30*time.Minute, persona.Default())
	svc.SetClock(func() time.Time { return now })
	snd := &recordingSender{}
	svc.RegisterSender(snd)

	svc.Touch("telegram", "chat1")

	svc.Sweep()
	if got := snd.sentTo(); len(got) != 0 {
		t.Fatalf("sent %v before threshold", got)
	}

	now = now.Add(31 * time.Minute)
	svc.Sweep()
	if got := snd.sentTo(); len(got) != 1 || got[0] != "chat1" {
		t.Fatalf("sent %v, want [chat1]", got)
	}
}

func TestSweepNotifiesOncePerIdlePeriod(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := New(time.Minute, persona.Default())
	svc.SetClock(func() time.Time { return now })
	snd := &recordingSender{}
	svc.RegisterSender(snd)

	svc.Touch("telegram", "chat1")
	now = now.Add(2 * time.Minute)
	svc.Sweep()
	svc.Sweep()
	if got := snd.sentTo(); len(got) != 1 {
		t.Fatalf("sent %d check-ins, want 1", len(got))
	}

	// Activity re-arms the chat.
	svc.Touch("telegram", "chat1")
	now = now.Add(2 * time.Minute)
	svc.Sweep()
	if got := snd.sentTo(); len(got) != 2 {
		t.Fatalf("sent %d check-ins after re-arm, want 2", len(got))
	}
}

func TestSweepSkipsPlatformsWithoutSender(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := New(time.Minute, persona.Default())
	svc.SetClock(func() time.Time { return now })
	snd := &recordingSender{}
	svc.RegisterSender(snd)

	svc.Touch("http", "req1")
	svc.Touch("telegram", "chat1")
	now = now.Add(2 * time.Minute)
	svc.Sweep()

	if got := snd.sentTo(); len(got) != 1 || got[0] != "chat1" {
		t.Fatalf("sent %v, want only chat1", got)
	}
}

func TestCheckinTextPrefersPhrases(t *testing.T) {
	p := &persona.Persona{Name: "Curie", Greeting: "hello", Phrases: []string{"a", "b", "c"}}
	svc := New(time.Minute, p)
	svc.pick = func(int) int { return 2 }
	if got := svc.checkinText(); got != "c" {
		t.Fatalf("got %q, want c", got)
	}

	svc = New(time.Minute, &persona.Persona{Name: "Curie", Greeting: "hello"})
	if got := svc.checkinText(); got != "hello" {
		t.Fatalf("got %q, want greeting fallback", got)
	}
}

func TestTouchBoundsTrackedChats(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := New(time.Minute, persona.Default())
	svc.SetClock(func() time.Time {
		now = now.Add(time.Second)
		return now
	})
	for i := 0; i < maxTracked+50; i++ {
		svc.Touch("telegram", string(rune('a'+i%26))+time.Duration(i).String())
	}
	svc.mu.Lock()
	n := len(svc.contacts)
	svc.mu.Unlock()
	if n > maxTracked {
		t.Fatalf("tracked %d chats, bound is %d", n, maxTracked)
	}
}

func TestStartDisabledWithoutThreshold(t *testing.T) {
	svc := New(0, persona.Default())
	svc.Start()
	if svc.cron != nil {
		t.Fatal("scheduler started with check-ins disabled")
	}
	svc.Stop()
}
