package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"inbox_monitor/internal/domain/inbound"
	"inbox_monitor/internal/domain/monitor"
)

const (
	maxBodyRunes   = 4000
	maxReplyTokens = 400
)

var ErrEmptyCompletion = errors.New("completion returned no text")

type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAI writes replies with a chat completion model. When the API fails
// the fallback generator is used instead.
type OpenAI struct {
	client      chatCompleter
	model       string
	temperature float32
	fallback    inbound.Generator
	log         *logrus.Entry
}

func NewOpenAI(apiKey, model string, fallback inbound.Generator, log *logrus.Entry) *OpenAI {
	return newOpenAI(openai.NewClient(apiKey), model, fallback, log)
}

func newOpenAI(client chatCompleter, model string, fallback inbound.Generator, log *logrus.Entry) *OpenAI {
	return &OpenAI{
		client:      client,
		model:       model,
		temperature: 0.3,
		fallback:    fallback,
		log:         log.WithField("component", "openai_generator"),
	}
}

func (g *OpenAI) Generate(ctx context.Context, m monitor.Monitor, item inbound.Item) (string, error) {
	reply, err := g.complete(ctx, m, item)
	if err == nil {
		return reply, nil
	}
	if g.fallback == nil {
		return "", err
	}
	g.log.WithError(err).WithFields(logrus.Fields{"monitor_id": m.ID, "item_id": item.ID}).
		Warn("Completion failed; using template reply")
	return g.fallback.Generate(ctx, m, item)
}

func (g *OpenAI) complete(ctx context.Context, m monitor.Monitor, item inbound.Item) (string, error) {
	d := dataFor(m, item)
	guidance := strings.TrimSpace(m.ReplyTemplate)
	if guidance == "" {
		guidance = DefaultReplyTemplate
	}
	system := "You write short, polite automatic email replies on behalf of the mailbox owner. " +
		"Do not promise anything the guidance does not promise. Reply with the message body only.\n\n" +
		"Guidance:\n" + guidance
	user := fmt.Sprintf("From: %s <%s>\nSubject: %s\n\n%s", d.SenderName, d.SenderAddress, item.Subject, truncateRunes(item.Body, maxBodyRunes))

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		MaxTokens:   maxReplyTokens,
		Temperature: g.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
