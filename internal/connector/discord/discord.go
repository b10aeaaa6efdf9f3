// Package discord runs Curie as a Discord bot over the gateway WebSocket.
package discord

import (
	"context"
	"fmt"
	"log"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"curie/internal/bus"
	"curie/internal/connector"
)

func init() {
	connector.Register(&Adapter{})
}

// Adapter bridges Discord message events to the chat workflow.
type Adapter struct {
	session *discordgo.Session
	rt      *connector.Runtime
}

func (a *Adapter) ID() string { return "discord" }

// Platform implements proactive.OutboundSender.
func (a *Adapter) Platform() string { return "discord" }

// Send implements proactive.OutboundSender for idle check-ins.
func (a *Adapter) Send(_ context.Context, channelID, text string) error {
	_, err := a.session.ChannelMessageSend(channelID, text)
	return err
}

// Start connects to the Discord gateway and blocks until the context is
// canceled.
func (a *Adapter) Start(ctx context.Context, rt *connector.Runtime) error {
	token := rt.Config.DiscordToken
	if token == "" {
		return fmt.Errorf("discord: bot token is required (DISCORD_BOT_TOKEN)")
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return fmt.Errorf("discord: creating session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	a.session = session
	a.rt = rt
	session.AddHandler(a.onMessageCreate)

	if err := session.Open(); err != nil {
		return fmt.Errorf("discord: opening gateway: %w", err)
	}

	if rt.Proactive != nil {
		rt.Proactive.RegisterSender(a)
	}

	log.Printf("[Discord] connected as %s", session.State.User.Username)

	<-ctx.Done()
	log.Println("[Discord] shutting down")
	return session.Close()
}

func (a *Adapter) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author.ID == s.State.User.ID || m.Author.Bot {
		return
	}

	if a.rt.Proactive != nil {
		a.rt.Proactive.Touch("discord", m.ChannelID)
	}

	_ = s.ChannelTyping(m.ChannelID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	reply := a.rt.Workflow.Process(ctx, bus.NormalizedMessage{
		Platform:       "discord",
		ExternalUserID: m.Author.ID,
		ExternalChatID: m.ChannelID,
		MessageID:      m.ID,
		Text:           m.Content,
		Timestamp:      m.Timestamp,
	})

	if reply.Text == "" {
		return
	}
	for _, chunk := range splitMessage(reply.Text, 2000) {
		if _, err := s.ChannelMessageSend(m.ChannelID, chunk); err != nil {
			log.Printf("[Discord] send to %s failed: %v", m.ChannelID, err)
			return
		}
	}
}

// splitMessage chunks text to Discord's per-message limit, backing cut points
// off to rune boundaries so accented or CJK output never arrives mangled.
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
