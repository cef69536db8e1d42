// Package summarize is the external collaborator boundary: it formats the
// kept messages into a transcript, calls the summarization model and
// reports the actual token counts for the budget ledger to commit.
package summarize

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/comigor/recap/internal/config"
	"github.com/comigor/recap/internal/store"
)

// Client is the minimal subset of openai.Client used here; it is easy to
// mock in tests.
type Client interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// NewClient creates the real chat-completion client.
func NewClient(cfg config.LLMConfig) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientCfg)
}

// Summary is the model's answer plus the observed token usage.
type Summary struct {
	Text        string
	InputUnits  int64
	OutputUnits int64
}

// Summarizer turns a message set into a bullet-point summary.
type Summarizer struct {
	client Client
	model  string
}

// New builds a Summarizer around the given client.
func New(client Client, model string) *Summarizer {
	return &Summarizer{client: client, model: model}
}

const promptHeader = `You are a helpful assistant that summarizes group chat conversations.

Please analyze the following chat messages and create a concise summary in bullet point format.

Focus on:
- Main topics discussed
- Key decisions or conclusions
- Important questions or concerns
- Action items or tasks mentioned
- Notable announcements

Chat messages:
`

const promptFooter = `

Please provide a brief summary in bullet points (maximum 8 points).`

// Summarize sends the transcript to the model. rangeLabel identifies the
// requested period in errors.
func (s *Summarizer) Summarize(ctx context.Context, msgs []store.Message, rangeLabel string) (Summary, error) {
	if len(msgs) == 0 {
		return Summary{}, fmt.Errorf("no messages to summarize for %s", rangeLabel)
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     s.model,
		MaxTokens: 500,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: promptHeader + Transcript(msgs) + promptFooter},
		},
	})
	if err != nil {
		return Summary{}, fmt.Errorf("summarization call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Summary{}, fmt.Errorf("summarization call returned no choices")
	}

	return Summary{
		Text:        strings.TrimSpace(resp.Choices[0].Message.Content),
		InputUnits:  int64(resp.Usage.PromptTokens),
		OutputUnits: int64(resp.Usage.CompletionTokens),
	}, nil
}

// Transcript renders messages one per line as "[HH:MM:SS] author: text".
func Transcript(msgs []store.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		if m.Text == "" {
			continue
		}
		name := m.AuthorName
		if name == "" {
			name = "unknown"
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", m.OccurredAt.UTC().Format("15:04:05"), name, m.Text)
	}
	return b.String()
}
