package summary

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nijaru/yt-summarizer/config"
	"github.com/pkg/errors"
)

const (
	glmTemperature = 0.7
	glmTokenTTL    = time.Hour
)

var ErrInvalidGLMKey = errors.New("Invalid GLM API key format. Expected: id.secret")

type GLM struct {
	url    string
	client *http.Client
	now    func() time.Time
}

func NewGLM(url string, client *http.Client) *GLM {
	if client == nil {
		client = http.DefaultClient
	}
	return &GLM{url: url, client: client, now: time.Now}
}

func (g *GLM) Name() string { return config.ProviderGLM }

func (g *GLM) CheckKey(apiKey string) error {
	_, _, err := splitGLMKey(apiKey)
	return err
}

func splitGLMKey(apiKey string) (string, string, error) {
	parts := strings.Split(apiKey, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", ErrInvalidGLMKey
	}
	return parts[0], parts[1], nil
}

// GLMToken signs the short-lived bearer token the GLM API expects. Times are
// in milliseconds.
func GLMToken(apiKey string, now time.Time) (string, error) {
	id, secret, err := splitGLMKey(apiKey)
	if err != nil {
		return "", err
	}
	ms := now.UnixMilli()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"api_key":   id,
		"exp":       ms + glmTokenTTL.Milliseconds(),
		"timestamp": ms,
	})
	token.Header["sign_type"] = "SIGN"

	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", errors.Wrap(err, "failed to sign glm token")
	}
	return signed, nil
}

type glmRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

type glmReply struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

func (g *GLM) Complete(ctx context.Context, apiKey, model, prompt string) (string, error) {
	token, err := GLMToken(apiKey, g.now())
	if err != nil {
		return "", err
	}

	status, body, err := postJSON(ctx, g.client, g.url, map[string]string{
		"Authorization": "Bearer " + token,
	}, glmRequest{
		Model:       model,
		Messages:    []message{{Role: "user", Content: prompt}},
		MaxTokens:   maxTokens,
		Temperature: glmTemperature,
	})
	if err != nil {
		return "", err
	}
	if !statusOK(status) {
		return "", replyError(status, body, "GLM API request failed")
	}

	var reply glmReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return "", errors.Wrap(err, "failed to decode glm reply")
	}
	if len(reply.Choices) == 0 || reply.Choices[0].Message.Content == "" {
		return "", errors.New("glm reply has no choices")
	}
	return reply.Choices[0].Message.Content, nil
}
