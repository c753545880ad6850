package summary

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/nijaru/yt-summarizer/config"
	"github.com/pkg/errors"
)

const anthropicVersion = "2023-06-01"

type Anthropic struct {
	url    string
	client *http.Client
}

func NewAnthropic(url string, client *http.Client) *Anthropic {
	if client == nil {
		client = http.DefaultClient
	}
	return &Anthropic{url: url, client: client}
}

func (a *Anthropic) Name() string { return config.ProviderAnthropic }

func (a *Anthropic) CheckKey(string) error { return nil }

type anthropicRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type anthropicReply struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (a *Anthropic) Complete(ctx context.Context, apiKey, model, prompt string) (string, error) {
	status, body, err := postJSON(ctx, a.client, a.url, map[string]string{
		"x-api-key":         apiKey,
		"anthropic-version": anthropicVersion,
	}, anthropicRequest{
		Model:     model,
		MaxTokens: maxTokens,
		Messages:  []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", err
	}
	if !statusOK(status) {
		return "", replyError(status, body, "API request failed")
	}

	var reply anthropicReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return "", errors.Wrap(err, "failed to decode anthropic reply")
	}
	if len(reply.Content) == 0 || reply.Content[0].Text == "" {
		return "", errors.New("anthropic reply has no content")
	}
	return reply.Content[0].Text, nil
}
