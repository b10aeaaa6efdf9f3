// Package telegram runs Curie as a Telegram bot over long polling.
package telegram

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"
	"unicode/utf8"

	tele "gopkg.in/telebot.v3"

	"curie/internal/bus"
	"curie/internal/cache"
	"curie/internal/connector"
)

func init() {
	connector.Register(&Adapter{})
}

// Adapter bridges Telegram updates to the chat workflow.
type Adapter struct {
	bot *tele.Bot
	rt  *connector.Runtime

	// Telegram re-delivers updates after restarts and poller hiccups; the
	// workflow dedupes too, but catching them here skips the typing
	// indicator and the store round trip.
	seen *cache.TTL[struct{}]
}

func (a *Adapter) ID() string { return "telegram" }

// Platform implements proactive.OutboundSender.
func (a *Adapter) Platform() string { return "telegram" }

// Send implements proactive.OutboundSender for idle check-ins.
func (a *Adapter) Send(_ context.Context, chatID, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: bad chat id %q: %w", chatID, err)
	}
	_, err = a.bot.Send(tele.ChatID(id), text)
	return err
}

// Start connects to Telegram and blocks until the context is canceled.
func (a *Adapter) Start(ctx context.Context, rt *connector.Runtime) error {
	token := rt.Config.TelegramToken
	if token == "" {
		return fmt.Errorf("telegram: bot token is required (TELEGRAM_BOT_TOKEN)")
	}

	b, err := tele.NewBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return fmt.Errorf("telegram: failed to create bot: %w", err)
	}

	seen, err := cache.NewTTL[struct{}](10*time.Minute, 5000)
	if err != nil {
		return err
	}

	a.bot = b
	a.rt = rt
	a.seen = seen
	a.setupHandlers(ctx)

	if rt.Proactive != nil {
		rt.Proactive.RegisterSender(a)
	}

	log.Printf("[Telegram] starting bot @%s", b.Me.Username)

	go func() {
		<-ctx.Done()
		log.Println("[Telegram] shutting down")
		b.Stop()
	}()

	b.Start()
	return nil
}

func (a *Adapter) setupHandlers(ctx context.Context) {
	a.bot.Handle("/start", func(c tele.Context) error {
		return c.Send(a.rt.Workflow.Persona().Greeting)
	})

	a.bot.Handle("/stats", func(c tele.Context) error {
		s := a.rt.Workflow.Stats()
		return c.Send(fmt.Sprintf("Prompt cache: %d/%d hits (%.1f%%)\nDedupe entries: %d\nPersona: %s",
			s.PromptCache.Hits, s.PromptCache.Total, s.PromptCache.HitRatePercent,
			s.DedupeSize, s.Persona))
	})

	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		return a.handleMessage(ctx, c)
	})
}

func (a *Adapter) handleMessage(ctx context.Context, c tele.Context) error {
	chatID := strconv.FormatInt(c.Chat().ID, 10)
	userID := strconv.FormatInt(c.Sender().ID, 10)
	msgID := strconv.Itoa(c.Message().ID)

	if a.seen.Check("telegram:" + chatID + ":" + msgID) {
		return nil
	}

	_ = c.Notify(tele.Typing)

	if a.rt.Proactive != nil {
		a.rt.Proactive.Touch("telegram", chatID)
	}

	turnCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	reply := a.rt.Workflow.Process(turnCtx, bus.NormalizedMessage{
		Platform:       "telegram",
		ExternalUserID: userID,
		ExternalChatID: chatID,
		MessageID:      msgID,
		Text:           c.Text(),
		Timestamp:      c.Message().Time(),
	})

	if reply.Text == "" {
		return nil
	}
	return sendLongMessage(c, reply.Text)
}

// sendLongMessage splits and sends text if it exceeds Telegram's 4096 char limit.
func sendLongMessage(c tele.Context, text string) error {
	const maxLen = 4000 // leave a little buffer
	for _, chunk := range splitMessage(text, maxLen) {
		if err := c.Send(chunk); err != nil {
			return err
		}
	}
	return nil
}

// splitMessage cuts text into pieces of at most limit bytes without cutting
// through a multi-byte rune.
func splitMessage(text string, limit int) []string {
	var chunks []string
	for len(text) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		if cut == 0 {
			cut = limit
		}
		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	return append(chunks, text)
}
