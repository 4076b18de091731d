package notify

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/listingbot/internal/domain"
)

// ChatSender posts notifications into the review channel.
type ChatSender struct {
	chat domain.ChatClient
}

// NewChatSender wraps a chat client.
func NewChatSender(chat domain.ChatClient) *ChatSender {
	return &ChatSender{chat: chat}
}

// Send posts a header block with title and a text block with message.
func (c *ChatSender) Send(ctx context.Context, title, message string) error {
	_, err := c.chat.Post(ctx, domain.ChatMessage{
		Text: title,
		Blocks: []domain.ChatBlock{
			{Kind: domain.BlockHeader, Text: title},
			{Kind: domain.BlockText, Text: message},
		},
	})
	if err != nil {
		return fmt.Errorf("chat: post notification: %w", err)
	}
	return nil
}

// Name returns the sender identifier.
func (c *ChatSender) Name() string {
	return "chat"
}
