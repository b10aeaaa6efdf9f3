// Package proactive sends unprompted check-in messages to chats that have
// gone quiet. Connectors report activity; a cron job scans for chats idle
// past the configured threshold and sends a persona greeting through the
// connector's outbound side.
package proactive

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"curie/internal/persona"
)

// OutboundSender delivers a message to a chat outside the request/reply
// cycle. Connectors that can push (telegram, discord) implement it; the HTTP
// API does not.
type OutboundSender interface {
	Platform() string
	Send(ctx context.Context, chatID, text string) error
}

// maxTracked bounds the activity map so a long-lived process with churning
// chats does not grow without limit.
const maxTracked = 10000

type contact struct {
	platform string
	chatID   string
	lastSeen time.Time
	notified bool
}

// Service tracks last-contact times per chat and fires idle check-ins.
type Service struct {
	idleAfter time.Duration
	persona   *persona.Persona

	mu       sync.Mutex
	senders  map[string]OutboundSender
	contacts map[string]*contact
	clock    func() time.Time
	pick     func(n int) int

	cron *cron.Cron
}

// New builds a Service; idleAfter <= 0 disables check-ins entirely.
func New(idleAfter time.Duration, p *persona.Persona) *Service {
	if p == nil {
		p = persona.Default()
	}
	return &Service{
		idleAfter: idleAfter,
		persona:   p,
		senders:   make(map[string]OutboundSender),
		contacts:  make(map[string]*contact),
		clock:     time.Now,
		pick:      rand.Intn,
	}
}

// SetClock replaces the time source for tests.
func (s *Service) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

// RegisterSender makes a connector's outbound side available for check-ins.
func (s *Service) RegisterSender(snd OutboundSender) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.senders[snd.Platform()] = snd
}

// Touch records activity on a chat and re-arms its check-in.
func (s *Service) Touch(platform, chatID string) {
	if platform == "" || chatID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := platform + ":" + chatID
	if c, ok := s.contacts[key]; ok {
		c.lastSeen = s.clock()
		c.notified = false
		return
	}
	if len(s.contacts) >= maxTracked {
		s.evictOldest()
	}
	s.contacts[key] = &contact{platform: platform, chatID: chatID, lastSeen: s.clock()}
}

// evictOldest drops the stalest entry; caller holds the lock.
func (s *Service) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for k, c := range s.contacts {
		if oldestKey == "" || c.lastSeen.Before(oldest) {
			oldestKey, oldest = k, c.lastSeen
		}
	}
	delete(s.contacts, oldestKey)
}

// Start schedules the idle sweep every minute. It is a no-op when check-ins
// are disabled.
func (s *Service) Start() {
	if s.idleAfter <= 0 {
		log.Println("[Proactive] check-ins disabled")
		return
	}
	s.cron = cron.New()
	if _, err := s.cron.AddFunc("* * * * *", s.Sweep); err != nil {
		log.Printf("[Proactive] failed to schedule sweep: %v", err)
		return
	}
	s.cron.Start()
	log.Printf("[Proactive] check-ins enabled, idle threshold %s", s.idleAfter)
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (s *Service) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Sweep sends one check-in to each chat idle past the threshold. Each chat
// is notified at most once per idle period; activity re-arms it.
func (s *Service) Sweep() {
	s.mu.Lock()
	now := s.clock()
	type target struct {
		c    *contact
		snd  OutboundSender
		text string
	}
	var due []target
	for _, c := range s.contacts {
		if c.notified || now.Sub(c.lastSeen) < s.idleAfter {
			continue
		}
		snd, ok := s.senders[c.platform]
		if !ok {
			continue
		}
		c.notified = true
		due = append(due, target{c: c, snd: snd, text: s.checkinText()})
	}
	s.mu.Unlock()

	for _, t := range due {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := t.snd.Send(ctx, t.c.chatID, t.text); err != nil {
			log.Printf("[Proactive] check-in to %s:%s failed: %v", t.c.platform, t.c.chatID, err)
		}
		cancel()
	}
}

// checkinText picks a persona phrase, falling back to the greeting. Caller
// holds the lock.
func (s *Service) checkinText() string {
	if len(s.persona.Phrases) > 0 {
		return s.persona.Phrases[s.pick(len(s.persona.Phrases))]
	}
	return s.persona.Greeting
}
