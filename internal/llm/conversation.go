package llm

import (
	"context"
	"fmt"
)

// Conversation keeps a system prompt and message history for multi-turn
// exchanges, such as asking the model to correct its previous reply.
type Conversation struct {
	client       Completer
	systemPrompt string
	messages     []Message
	maxHistory   int
}

type ConversationOption func(*Conversation)

// NewConversation creates a conversation. maxHistory defaults to 100 messages.
//
// Example:
//
//	conv := llm.NewConversation(client, llm.WithSystemPrompt("You are a subtitle translator."))
//	resp, err := conv.SendMessage(ctx, "Translate this")
func NewConversation(client Completer, opts ...ConversationOption) *Conversation {
	conv := &Conversation{
		client:     client,
		messages:   make([]Message, 0),
		maxHistory: 100,
	}

	for _, opt := range opts {
		opt(conv)
	}

	return conv
}

// WithSystemPrompt sets the system prompt for the conversation
func WithSystemPrompt(prompt string) ConversationOption {
	return func(c *Conversation) {
		c.systemPrompt = prompt
	}
}

// WithMaxHistory sets the maximum number of messages to keep in history
func WithMaxHistory(maxHistory int) ConversationOption {
	return func(c *Conversation) {
		if maxHistory > 0 {
			c.maxHistory = maxHistory
		}
	}
}

// WithInitialMessages seeds the history, e.g. with an earlier prompt and reply.
func WithInitialMessages(messages ...Message) ConversationOption {
	return func(c *Conversation) {
		c.messages = append(c.messages, messages...)
	}
}

// SendMessage appends a user message, sends the whole history and records
// the assistant's reply. The full response is returned so callers can read
// finish reason and usage.
func (c *Conversation) SendMessage(ctx context.Context, content string) (*ChatResponse, error) {
	return c.SendMessageWithOptions(ctx, content, nil)
}

// SendMessageWithOptions is SendMessage with per-request options.
func (c *Conversation) SendMessageWithOptions(ctx context.Context, content string, opts *ChatCompletionOptions) (*ChatResponse, error) {
	c.addMessage(Message{Role: "user", Content: content})

	if opts == nil {
		opts = NewChatCompletionOptions()
	}

	response, err := c.client.ChatCompletion(ctx, c.prepareMessages(), opts)
	if err != nil {
		return response, fmt.Errorf("chat completion failed: %w", err)
	}

	if len(response.Choices) == 0 {
		return response, fmt.Errorf("no choices in response")
	}

	c.addMessage(Message{Role: "assistant", Content: response.Content()})

	return response, nil
}

// ClearHistory removes all messages but keeps the system prompt
func (c *Conversation) ClearHistory() {
	c.messages = make([]Message, 0)
}

// GetHistory returns a copy of the conversation history
func (c *Conversation) GetHistory() []Message {
	history := make([]Message, len(c.messages))
	copy(history, c.messages)
	return history
}

func (c *Conversation) GetMessageCount() int {
	return len(c.messages)
}

func (c *Conversation) addMessage(msg Message) {
	c.messages = append(c.messages, msg)

	if len(c.messages) > c.maxHistory {
		excess := len(c.messages) - c.maxHistory
		c.messages = c.messages[excess:]
	}
}

func (c *Conversation) prepareMessages() []Message {
	messages := make([]Message, 0, len(c.messages)+1)

	if c.systemPrompt != "" {
		messages = append(messages, Message{
			Role:    "system",
			Content: c.systemPrompt,
		})
	}

	return append(messages, c.messages...)
}
