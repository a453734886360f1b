// Package effectors carries emitted phrases back out to the channels the
// senses listen on.
package effectors

import (
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/axo-lotto/dae-gov-sub013/internal/logging"
)

const (
	// Discord rejects messages over 2000 characters
	maxMessageLength = 2000

	sendAttempts   = 3
	retryBaseDelay = 1 * time.Second
)

// DiscordEffector sends messages to Discord. Sends happen inline on the
// caller's goroutine; the pipeline has already finished its turn by the
// time a send starts, so a retry delays only the reply.
type DiscordEffector struct {
	session *discordgo.Session
}

// NewDiscordEffector creates a Discord effector sharing the sense's session
func NewDiscordEffector(session *discordgo.Session) *DiscordEffector {
	return &DiscordEffector{session: session}
}

// Send delivers content to a channel, splitting it into chunks when it
// exceeds the Discord message limit. Transient failures are retried with
// backoff; client errors fail immediately.
func (e *DiscordEffector) Send(channelID, content string) error {
	for _, chunk := range chunkMessage(content, maxMessageLength) {
		if err := e.sendChunk(channelID, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (e *DiscordEffector) sendChunk(channelID, chunk string) error {
	var err error
	for attempt := 1; attempt <= sendAttempts; attempt++ {
		if attempt > 1 {
			time.Sleep(retryBaseDelay << (attempt - 2))
		}
		_, err = e.session.ChannelMessageSend(channelID, chunk)
		if err == nil {
			return nil
		}
		if isNonRetryableError(err) {
			return err
		}
		logging.Warn("discord-effector", "Send to %s failed (attempt %d): %v", channelID, attempt, err)
	}
	return err
}

// React adds an emoji reaction to a message
func (e *DiscordEffector) React(channelID, messageID, emoji string) error {
	return e.session.MessageReactionAdd(channelID, messageID, emoji)
}

// Typing shows the typing indicator while a turn is being processed.
// Failures are ignored; the indicator is cosmetic.
func (e *DiscordEffector) Typing(channelID string) {
	if err := e.session.ChannelTyping(channelID); err != nil {
		logging.Debug("discord-effector", "Typing indicator failed: %v", err)
	}
}

// isNonRetryableError reports whether a send error is a client error that
// retrying cannot fix. discordgo handles rate limits internally, so a 429
// that surfaces here has already exhausted its waiting.
func isNonRetryableError(err error) bool {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) {
		if restErr.Response != nil && restErr.Response.StatusCode >= 400 && restErr.Response.StatusCode < 500 {
			return true
		}
	}
	return false
}

// chunkMessage splits content into pieces within maxLen. Chunks concatenate
// back to the original content.
func chunkMessage(content string, maxLen int) []string {
	if len(content) <= maxLen {
		return []string{content}
	}

	var chunks []string
	for len(content) > maxLen {
		pt := findSplitPoint(content, maxLen)
		chunks = append(chunks, content[:pt])
		content = content[pt:]
	}
	return append(chunks, content)
}

// findSplitPoint picks where to cut an over-long message: after the last
// paragraph break in the window, then the last line break, then the last
// space, then a hard cut. Breaks in the first half of the window are
// ignored so no chunk comes out tiny.
func findSplitPoint(content string, maxLen int) int {
	if len(content) <= maxLen {
		return len(content)
	}

	window := content[:maxLen]
	if idx := strings.LastIndex(window, "\n\n"); idx > maxLen/2 {
		return idx + 2
	}
	if idx := strings.LastIndex(window, "\n"); idx > maxLen/2 {
		return idx + 1
	}
	if idx := strings.LastIndex(window, " "); idx > maxLen/2 {
		return idx + 1
	}
	return maxLen
}
