// Package summary turns transcript text into a summary through an LLM provider.
package summary

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/nijaru/yt-summarizer/config"
	apperrors "github.com/nijaru/yt-summarizer/errors"
	"github.com/nijaru/yt-summarizer/metrics"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const DefaultTitle = "YouTube Video Summary"

// ProviderConfig selects the provider and how the summary is written.
type ProviderConfig struct {
	Provider          string
	APIKey            string
	Model             string
	Language          string
	IncludeTimestamps bool
}

func ConfigFrom(cfg config.SummaryConfig) ProviderConfig {
	return ProviderConfig{
		Provider:          cfg.Provider,
		APIKey:            cfg.APIKey(),
		Model:             cfg.Model(),
		Language:          cfg.Language,
		IncludeTimestamps: cfg.IncludeTimestamps,
	}
}

// Provider sends one prompt to an LLM and returns the reply text.
type Provider interface {
	Name() string
	CheckKey(apiKey string) error
	Complete(ctx context.Context, apiKey, model, prompt string) (string, error)
}

// apiError is a failure reported by the provider API itself; its message is
// safe to show to users.
type apiError struct {
	StatusCode int
	Message    string
}

func (e *apiError) Error() string { return e.Message }

type SummaryService struct {
	providers map[string]Provider
	timeout   time.Duration
}

func NewSummaryService(timeout time.Duration, providers ...Provider) *SummaryService {
	s := &SummaryService{providers: make(map[string]Provider, len(providers)), timeout: timeout}
	for _, p := range providers {
		s.providers[p.Name()] = p
	}
	return s
}

func NewSummaryServiceFromConfig(cfg config.SummaryConfig, client *http.Client) *SummaryService {
	return NewSummaryService(cfg.Timeout,
		NewAnthropic(cfg.AnthropicURL, client),
		NewGLM(cfg.GLMURL, client),
	)
}

var missingKeyMessages = map[string]string{
	config.ProviderAnthropic: "API key is required. Please set it in Options.",
	config.ProviderGLM:       "Zhipu AI API key is required. Please set it in Options.",
}

// CheckConfig fails with ConfigurationMissing when pc cannot be used.
func (s *SummaryService) CheckConfig(pc ProviderConfig) error {
	const op = "summary.CheckConfig"

	p, ok := s.providers[pc.Provider]
	if !ok {
		return apperrors.ConfigurationMissing(op, "Unknown API provider: "+pc.Provider)
	}
	if strings.TrimSpace(pc.APIKey) == "" {
		return apperrors.ConfigurationMissing(op, missingKeyMessages[pc.Provider])
	}
	if err := p.CheckKey(pc.APIKey); err != nil {
		return apperrors.ConfigurationMissing(op, err.Error())
	}
	return nil
}

// Summarize builds the prompt for transcript and asks the configured provider.
func (s *SummaryService) Summarize(ctx context.Context, transcript string, pc ProviderConfig) (string, error) {
	const op = "summary.Summarize"

	if err := s.CheckConfig(pc); err != nil {
		return "", err
	}
	if strings.TrimSpace(transcript) == "" {
		return "", apperrors.TranscriptUnavailable(op, nil, "Could not fetch transcript for this video")
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	log := logrus.WithFields(logrus.Fields{
		"provider": pc.Provider,
		"model":    pc.Model,
		"language": pc.Language,
		"api_key":  Redact(pc.APIKey),
	})
	log.Info("Requesting summary")

	start := time.Now()
	text, err := s.providers[pc.Provider].Complete(ctx, pc.APIKey, pc.Model, BuildPrompt(transcript, pc.Language, pc.IncludeTimestamps))
	metrics.SummaryDuration.WithLabelValues(pc.Provider).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SummariesTotal.WithLabelValues(pc.Provider, metrics.StatusFailed).Inc()
		log.WithError(err).Error("Summary generation failed")
		return "", generationError(op, err)
	}
	metrics.SummariesTotal.WithLabelValues(pc.Provider, metrics.StatusSuccess).Inc()
	log.WithField("length", len(text)).Info("Summary generated")
	return text, nil
}

func generationError(op string, err error) error {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return apperrors.SummaryGenerationFailed(op, err, "Summary generation failed: "+apiErr.Message)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.SummaryGenerationFailed(op, err, "Summary generation timed out. Please try again later.")
	}
	return apperrors.SummaryGenerationFailed(op, err, "Summary generation failed. Please try again later.")
}

// Redact keeps only enough of a credential to tell keys apart in logs.
func Redact(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + "..." + key[len(key)-4:]
}
