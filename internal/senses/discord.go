// Package senses connects outside channels to the response engine. A sense
// owns its transport connection, filters traffic down to the messages that
// deserve a turn, and hands each one to a callback as a plain Message.
package senses

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/axo-lotto/dae-gov-sub013/internal/logging"
)

// Message is one inbound message after filtering. Content has the bot
// mention stripped so organ scoring sees only the user's words.
type Message struct {
	ChannelID   string
	MessageID   string
	AuthorID    string
	AuthorName  string
	Content     string
	DM          bool
	MentionsBot bool
	FromOwner   bool
}

// DiscordSense listens to Discord and forwards messages for processing
type DiscordSense struct {
	session   *discordgo.Session
	channelID string
	ownerID   string
	botID     string
	onMessage func(Message)
}

// DiscordConfig holds Discord connection settings
type DiscordConfig struct {
	Token     string
	ChannelID string
	OwnerID   string
}

// NewDiscordSense creates a new Discord sense
func NewDiscordSense(cfg DiscordConfig, onMessage func(Message)) (*DiscordSense, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	sense := &DiscordSense{
		session:   session,
		channelID: cfg.ChannelID,
		ownerID:   cfg.OwnerID,
		onMessage: onMessage,
	}

	// Register message handler
	session.AddHandler(sense.handleMessage)

	// We only need message content
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent

	return sense, nil
}

// Start connects to Discord and begins listening
func (d *DiscordSense) Start() error {
	if err := d.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	// Get bot's user ID for self-filtering
	d.botID = d.session.State.User.ID
	logging.Info("discord-sense", "Connected as %s", d.session.State.User.Username)

	return nil
}

// Stop disconnects from Discord
func (d *DiscordSense) Stop() error {
	return d.session.Close()
}

// Session returns the underlying Discord session (for sharing with the effector)
func (d *DiscordSense) Session() *discordgo.Session {
	return d.session
}

// handleMessage filters incoming Discord messages and forwards the survivors
func (d *DiscordSense) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	// Ignore messages from self
	if m.Author == nil || m.Author.ID == d.botID {
		return
	}

	if !d.shouldProcess(m) {
		return
	}

	// Attachment-only messages carry no text to score
	content := d.stripMention(m.Content)
	if content == "" {
		return
	}

	msg := Message{
		ChannelID:   m.ChannelID,
		MessageID:   m.ID,
		AuthorID:    m.Author.ID,
		AuthorName:  m.Author.Username,
		Content:     content,
		DM:          m.GuildID == "",
		MentionsBot: d.mentionsBot(m),
		FromOwner:   d.ownerID != "" && m.Author.ID == d.ownerID,
	}

	logging.Debug("discord-sense", "Message from %s: %s", msg.AuthorName, logging.Truncate(msg.Content, 50))

	if d.onMessage != nil {
		d.onMessage(msg)
	}
}

// shouldProcess decides whether a message deserves a turn. DMs always pass.
// With a channel filter configured, guild traffic must be in that channel.
// Without one, guild traffic must mention the bot or come from the owner.
func (d *DiscordSense) shouldProcess(m *discordgo.MessageCreate) bool {
	if m.GuildID == "" {
		return true
	}
	if d.channelID != "" {
		return m.ChannelID == d.channelID
	}
	return d.mentionsBot(m) || (d.ownerID != "" && m.Author.ID == d.ownerID)
}

// stripMention removes the bot's own mention tokens from message content
func (d *DiscordSense) stripMention(content string) string {
	if d.botID != "" {
		content = strings.ReplaceAll(content, "<@"+d.botID+">", "")
		content = strings.ReplaceAll(content, "<@!"+d.botID+">", "")
	}
	return strings.TrimSpace(content)
}

// mentionsBot checks if the message mentions the bot
func (d *DiscordSense) mentionsBot(m *discordgo.MessageCreate) bool {
	for _, mention := range m.Mentions {
		if mention.ID == d.botID {
			return true
		}
	}
	return false
}
