// Package transcription acquires transcript text for a video by walking an
// ordered chain of sources and caching the first confirmed result.
package transcription

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/nijaru/yt-summarizer/captions"
	"github.com/nijaru/yt-summarizer/config"
	apperrors "github.com/nijaru/yt-summarizer/errors"
	"github.com/nijaru/yt-summarizer/messaging"
	"github.com/nijaru/yt-summarizer/metrics"
	"github.com/nijaru/yt-summarizer/validation"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const unavailableMessage = "Could not fetch transcript: the video may lack captions, or all sources are blocked."

type TranscriptionService struct {
	cache         *Cache
	sources       []Source
	sourceTimeout time.Duration
}

func NewTranscriptionService(cache *Cache, sourceTimeout time.Duration, sources ...Source) *TranscriptionService {
	if cache == nil {
		cache = NewCache()
	}
	return &TranscriptionService{
		cache:         cache,
		sources:       sources,
		sourceTimeout: sourceTimeout,
	}
}

// NewSources builds the chain in its fixed order. agents may be nil when no
// page agent transport is configured.
func NewSources(cfg *config.Config, agents messaging.Client, fetcher captions.Fetcher, client *http.Client) []Source {
	var sources []Source
	if agents != nil {
		sources = append(sources, NewPageAgentSource(agents, cfg.Agent.Transport, cfg.Agent.Timeout, cfg.Agent.PingTimeout, cfg.Agent.InjectWait))
	}
	if cfg.Sources.UseLocalServer && cfg.Sources.LocalServerURL != "" {
		sources = append(sources, NewCompanionSource(cfg.Sources.LocalServerURL, client))
	}
	sources = append(sources,
		NewTimedTextSource(fetcher, cfg.Sources.TimedTextURL, captions.DefaultLanguages, false),
		NewTimedTextSource(fetcher, cfg.Sources.TimedTextURL, captions.DefaultLanguages, true),
	)
	if cfg.Sources.MirrorURL != "" {
		sources = append(sources, NewMirrorSource(fetcher, cfg.Sources.MirrorURL, cfg.Sources.WatchURL))
	}
	return sources
}

// SourceNames lists the chain in order.
func (s *TranscriptionService) SourceNames() []string {
	names := make([]string, 0, len(s.sources))
	for _, src := range s.sources {
		names = append(names, src.Name())
	}
	return names
}

// HandleTranscription returns the transcript for req.VideoID from the cache
// or from the first source that succeeds. Per-source failures are logged and
// never returned; exhausting the chain yields TranscriptUnavailable.
func (s *TranscriptionService) HandleTranscription(ctx context.Context, req Request) (string, error) {
	const op = "transcription.HandleTranscription"

	if err := validation.ValidateVideoID(req.VideoID); err != nil {
		return "", apperrors.InvalidInput(op, err, "Invalid YouTube URL or video ID")
	}

	log := logrus.WithField("video_id", req.VideoID)
	if text, ok := s.cache.Get(req.VideoID); ok {
		log.Info("Transcript found in cache")
		return text, nil
	}

	reasons := make([]string, 0, len(s.sources))
	for _, src := range s.sources {
		if err := ctx.Err(); err != nil {
			reasons = append(reasons, err.Error())
			break
		}
		res := s.try(ctx, src, req)
		if res.OK() {
			s.cache.Set(req.VideoID, res.Text)
			log.WithFields(logrus.Fields{
				"source": src.Name(),
				"length": len(res.Text),
			}).Info("Transcript acquired")
			return res.Text, nil
		}
		reasons = append(reasons, src.Name()+": "+res.Reason)
	}

	err := errors.New(strings.Join(reasons, "; "))
	log.WithError(err).Warn("Every transcript source failed")
	return "", apperrors.TranscriptUnavailable(op, err, unavailableMessage)
}

// budget is the longest a single source may run.
func (s *TranscriptionService) budget(src Source) time.Duration {
	if b, ok := src.(budgeted); ok {
		return b.Budget()
	}
	return s.sourceTimeout
}

// Budget is the longest HandleTranscription can take when every source
// runs to its deadline.
func (s *TranscriptionService) Budget() time.Duration {
	var total time.Duration
	for _, src := range s.sources {
		total += s.budget(src)
	}
	return total
}

func (s *TranscriptionService) try(ctx context.Context, src Source, req Request) captions.Result {
	timeout := s.budget(src)
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	res := src.Fetch(sctx, req)
	if !res.OK() && errors.Is(sctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		res = captions.Failedf("timed out after %s", timeout)
	}
	metrics.SourceDuration.WithLabelValues(src.Name()).Observe(time.Since(start).Seconds())
	metrics.SourceAttemptsTotal.WithLabelValues(src.Name(), res.Status.String()).Inc()

	if !res.OK() {
		err := apperrors.SourceFailed("transcription.try", errors.New(res.Reason), src.Name()+" produced no transcript")
		logrus.WithError(err).WithFields(logrus.Fields{
			"source":   src.Name(),
			"video_id": req.VideoID,
			"status":   res.Status.String(),
		}).Warn("Transcript source failed, trying next")
	}
	return res
}

// ClearCache drops every cached transcript.
func (s *TranscriptionService) ClearCache() int {
	n := s.cache.Clear()
	logrus.WithField("entries", n).Info("Transcript cache cleared")
	return n
}
