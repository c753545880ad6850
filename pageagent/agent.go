package pageagent

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nijaru/yt-summarizer/captions"
	"github.com/nijaru/yt-summarizer/messaging"
	"github.com/nijaru/yt-summarizer/metrics"
	"github.com/nijaru/yt-summarizer/validation"
)

const DefaultTimedTextURL = "https://www.youtube.com/api/timedtext"

type options struct {
	timedTextURL   string
	panelAttempts  int
	panelInterval  time.Duration
	panelMinLines  int
	frameTimeout   time.Duration
	frameResend    time.Duration
	cleanupTimeout time.Duration
}

func defaultOptions() options {
	return options{
		timedTextURL:   DefaultTimedTextURL,
		panelAttempts:  20,
		panelInterval:  300 * time.Millisecond,
		panelMinLines:  1,
		frameTimeout:   15 * time.Second,
		frameResend:    500 * time.Millisecond,
		cleanupTimeout: 2 * time.Second,
	}
}

type Option func(*options)

// WithTimedTextURL sets the captions endpoint used for tracks that carry no
// URL of their own.
func WithTimedTextURL(u string) Option {
	return func(o *options) {
		if u != "" {
			o.timedTextURL = u
		}
	}
}

// WithPanelPolling bounds how long the transcript panel is waited on.
func WithPanelPolling(attempts int, interval time.Duration, minLines int) Option {
	return func(o *options) {
		if attempts > 0 {
			o.panelAttempts = attempts
		}
		if interval > 0 {
			o.panelInterval = interval
		}
		if minLines > 0 {
			o.panelMinLines = minLines
		}
	}
}

func WithFrameTimeout(timeout, resend time.Duration) Option {
	return func(o *options) {
		if timeout > 0 {
			o.frameTimeout = timeout
		}
		if resend > 0 {
			o.frameResend = resend
		}
	}
}

// Agent answers coordinator messages for one page.
type Agent struct {
	page Page
	opts options
}

func NewAgent(page Page, opts ...Option) *Agent {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Agent{page: page, opts: o}
}

func (a *Agent) Handle(ctx context.Context, req messaging.Request) (messaging.Response, error) {
	switch req.Action {
	case messaging.ActionPing:
		return messaging.Response{Success: true}, nil
	case messaging.ActionGetVideoInfo:
		return messaging.Response{VideoInfo: a.VideoInfo(ctx)}, nil
	case messaging.ActionGetTranscript:
		res := a.Transcript(ctx)
		if !res.OK() {
			return messaging.Response{}, nil
		}
		return messaging.TranscriptResponse(res.Text), nil
	case messaging.ActionShowSidebar, messaging.ActionCloseSidebar:
		return a.sidebar(ctx, req), nil
	default:
		return messaging.Response{}, errors.Wrap(messaging.ErrUnknownAction, string(req.Action))
	}
}

// Transcript runs the in-page strategies in order and returns the first
// success. Failures of individual strategies are logged, never returned.
func (a *Agent) Transcript(ctx context.Context) captions.Result {
	at := &attempt{page: a.page}
	if id, ok := validation.ExtractVideoID(a.page.URL()); ok {
		at.videoID = id
	}
	log := logrus.WithFields(logrus.Fields{
		"video_id": at.videoID,
		"url":      a.page.URL(),
	})

	last := captions.NotFound("no strategy ran")
	for _, s := range a.strategies() {
		if ctx.Err() != nil {
			return captions.Failed(ctx.Err().Error())
		}
		res := s.run(ctx, at)
		metrics.PageStrategyAttemptsTotal.WithLabelValues(s.name, res.Status.String()).Inc()
		if res.OK() {
			log.WithFields(logrus.Fields{
				"strategy": s.name,
				"length":   len(res.Text),
			}).Info("Extracted transcript in page")
			return res
		}
		log.WithFields(logrus.Fields{
			"strategy": s.name,
			"status":   res.Status.String(),
			"reason":   res.Reason,
		}).Debug("Page strategy produced no transcript")
		last = res
	}
	return last
}

// VideoInfo describes the page's video, or nil off video pages.
func (a *Agent) VideoInfo(ctx context.Context) *messaging.VideoInfo {
	id, ok := validation.ExtractVideoID(a.page.URL())
	if !ok {
		return nil
	}
	info := &messaging.VideoInfo{VideoID: id, Thumbnail: captions.ThumbnailURL(id)}
	snap, err := a.page.Snapshot(ctx)
	if err != nil {
		logrus.WithError(err).WithField("video_id", id).Debug("Failed to read page title")
		return info
	}
	info.Title = snap.Title
	if info.Title == "" {
		if title, ok := snap.PlayerResponse.Title(); ok {
			info.Title = title
		}
	}
	return info
}

func (a *Agent) sidebar(ctx context.Context, req messaging.Request) messaging.Response {
	sp, ok := a.page.(SidebarPage)
	if !ok {
		return messaging.Response{Error: ErrSidebarAbsent.Error()}
	}
	var err error
	if req.Action == messaging.ActionShowSidebar {
		err = sp.ShowSidebar(ctx, req.Summary, req.Title)
	} else {
		err = sp.CloseSidebar(ctx)
	}
	if err != nil {
		logrus.WithError(err).WithField("action", req.Action).Warn("Sidebar update failed")
		return messaging.Response{Error: err.Error()}
	}
	return messaging.Response{Success: true}
}

func (a *Agent) Close() error {
	return a.page.Close()
}
