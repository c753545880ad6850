// Package coordinator ties transcript acquisition, summarisation and the
// page agent together behind the operations the presentation layer calls.
package coordinator

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nijaru/yt-summarizer/captions"
	"github.com/nijaru/yt-summarizer/db"
	apperrors "github.com/nijaru/yt-summarizer/errors"
	"github.com/nijaru/yt-summarizer/messaging"
	"github.com/nijaru/yt-summarizer/summary"
	"github.com/nijaru/yt-summarizer/transcription"
	"github.com/nijaru/yt-summarizer/validation"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// derivedTabPrefix names the tab opened for a request that did not come from
// a browser tab. Derived tabs are single-use and released when the request
// ends, so a later request always loads a fresh page.
const derivedTabPrefix = "video:"

type Transcriber interface {
	HandleTranscription(ctx context.Context, req transcription.Request) (string, error)
	ClearCache() int
}

type Summarizer interface {
	CheckConfig(pc summary.ProviderConfig) error
	Summarize(ctx context.Context, transcript string, pc summary.ProviderConfig) (string, error)
}

type SummaryStore interface {
	SetSummary(ctx context.Context, s db.Summary) error
	GetSummary(ctx context.Context, videoID string) (*db.Summary, error)
}

type Options struct {
	Provider summary.ProviderConfig
	// Agents is nil when no page agent transport is configured.
	Agents       messaging.Client
	AgentTimeout time.Duration
	WatchURL     string
	// Store is optional.
	Store      SummaryStore
	HTTPClient *http.Client
}

type Coordinator struct {
	transcripts Transcriber
	summaries   Summarizer
	opts        Options
}

func New(transcripts Transcriber, summaries Summarizer, opts Options) *Coordinator {
	if opts.AgentTimeout <= 0 {
		opts.AgentTimeout = 15 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &Coordinator{transcripts: transcripts, summaries: summaries, opts: opts}
}

type SummarizeRequest struct {
	VideoURL    string `json:"video_url"`
	VideoID     string `json:"video_id"`
	TabID       string `json:"tab_id"`
	ShowSidebar bool   `json:"show_sidebar"`
}

type SummarizeResult struct {
	Summary string `json:"summary"`
	Title   string `json:"title"`
	VideoID string `json:"videoId"`
}

// Summarize checks the provider configuration, acquires the transcript,
// summarises it and looks up the video title.
func (c *Coordinator) Summarize(ctx context.Context, req SummarizeRequest) (*SummarizeResult, error) {
	const op = "coordinator.Summarize"

	pc := c.opts.Provider
	if err := c.summaries.CheckConfig(pc); err != nil {
		return nil, err
	}

	videoID, err := resolveVideoID(req)
	if err != nil {
		return nil, apperrors.InvalidInput(op, err, "Could not extract video ID from the current page")
	}
	log := logrus.WithFields(logrus.Fields{
		"video_id": videoID,
		"tab_id":   req.TabID,
	})

	handle := c.agentHandle(videoID, req)
	if handle != nil && req.TabID == "" {
		defer c.release(ctx, handle.TabID)
	}
	transcript, err := c.transcripts.HandleTranscription(ctx, transcription.Request{VideoID: videoID, Agent: handle})
	if err != nil {
		return nil, err
	}

	text, err := c.summaries.Summarize(ctx, transcript, pc)
	if err != nil {
		return nil, err
	}

	result := &SummarizeResult{
		Summary: text,
		Title:   c.videoTitle(ctx, handle),
		VideoID: videoID,
	}

	if c.opts.Store != nil {
		err := c.opts.Store.SetSummary(ctx, db.Summary{
			VideoID:  videoID,
			Title:    result.Title,
			Summary:  text,
			Provider: pc.Provider,
			Model:    pc.Model,
			Language: pc.Language,
		})
		if err != nil {
			log.WithError(err).Error("Failed to save summary")
		}
	}

	if req.ShowSidebar && req.TabID != "" && handle != nil {
		c.sendBestEffort(ctx, handle.TabID, messaging.Request{
			Action:  messaging.ActionShowSidebar,
			Summary: text,
			Title:   result.Title,
		})
	}

	log.WithField("title", result.Title).Info("Summary ready")
	return result, nil
}

func resolveVideoID(req SummarizeRequest) (string, error) {
	for _, in := range []string{req.VideoID, req.VideoURL} {
		if strings.TrimSpace(in) == "" {
			continue
		}
		if id, ok := validation.ResolveVideoID(in); ok {
			return id, nil
		}
		return "", &validation.ValidationError{Message: "error: unrecognised video reference"}
	}
	return "", &validation.ValidationError{Message: "error: video_url or video_id is required"}
}

// agentHandle addresses the requesting tab, or a tab derived from the video
// id when the request did not come from one.
func (c *Coordinator) agentHandle(videoID string, req SummarizeRequest) *transcription.AgentHandle {
	if c.opts.Agents == nil {
		return nil
	}
	pageURL := captions.WatchURL(c.opts.WatchURL, videoID)
	if _, ok := validation.ExtractVideoID(req.VideoURL); ok {
		pageURL = req.VideoURL
	}
	tabID := req.TabID
	if tabID == "" {
		tabID = derivedTabPrefix + videoID + ":" + uuid.NewString()
	}
	return &transcription.AgentHandle{TabID: tabID, URL: pageURL}
}

func (c *Coordinator) videoTitle(ctx context.Context, handle *transcription.AgentHandle) string {
	if handle == nil {
		return summary.DefaultTitle
	}
	resp, err := c.send(ctx, handle.TabID, messaging.Request{Action: messaging.ActionGetVideoInfo})
	if err != nil {
		logrus.WithError(err).WithField("tab_id", handle.TabID).Debug("Could not get video title")
		return summary.DefaultTitle
	}
	if resp.VideoInfo == nil || strings.TrimSpace(resp.VideoInfo.Title) == "" {
		return summary.DefaultTitle
	}
	return resp.VideoInfo.Title
}

func (c *Coordinator) send(ctx context.Context, tabID string, req messaging.Request) (messaging.Response, error) {
	sctx, cancel := context.WithTimeout(ctx, c.opts.AgentTimeout)
	defer cancel()
	return c.opts.Agents.Send(sctx, tabID, req)
}

func (c *Coordinator) release(ctx context.Context, tabID string) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.AgentTimeout)
	defer cancel()
	if err := c.opts.Agents.Release(rctx, tabID); err != nil {
		logrus.WithError(err).WithField("tab_id", tabID).Warn("Failed to release page agent")
	}
}

func (c *Coordinator) sendBestEffort(ctx context.Context, tabID string, req messaging.Request) {
	resp, err := c.send(ctx, tabID, req)
	if err == nil && resp.Error != "" {
		err = errors.New(resp.Error)
	}
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"tab_id": tabID,
			"action": req.Action,
		}).Warn("Page agent message failed")
	}
}

// CloseSidebar asks the page agent in tabID to hide the summary.
func (c *Coordinator) CloseSidebar(ctx context.Context, tabID string) error {
	if c.opts.Agents == nil {
		return apperrors.PageAgentUnreachable("coordinator.CloseSidebar", messaging.ErrNoAgent)
	}
	resp, err := c.send(ctx, tabID, messaging.Request{Action: messaging.ActionCloseSidebar})
	if err != nil {
		return apperrors.PageAgentUnreachable("coordinator.CloseSidebar", err)
	}
	if resp.Error != "" {
		return apperrors.SourceFailed("coordinator.CloseSidebar", errors.New(resp.Error), resp.Error)
	}
	return nil
}

func (c *Coordinator) ClearCache() int {
	return c.transcripts.ClearCache()
}

type LocalServerStatus struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// TestLocalServer probes a companion service's health endpoint.
func (c *Coordinator) TestLocalServer(ctx context.Context, serverURL string) LocalServerStatus {
	if err := validation.ValidateURL(serverURL); err != nil {
		return LocalServerStatus{Error: err.Error()}
	}
	if err := transcription.ProbeCompanion(ctx, c.opts.HTTPClient, serverURL); err != nil {
		return LocalServerStatus{Error: err.Error()}
	}
	return LocalServerStatus{Success: true}
}

// LastSummary returns the most recent summary stored for videoID.
func (c *Coordinator) LastSummary(ctx context.Context, videoID string) (*db.Summary, error) {
	const op = "coordinator.LastSummary"

	if err := validation.ValidateVideoID(videoID); err != nil {
		return nil, apperrors.InvalidInput(op, err, "Invalid YouTube URL or video ID")
	}
	if c.opts.Store == nil {
		return nil, apperrors.NotFound(op, db.ErrNotFound, "No summary stored for this video")
	}
	s, err := c.opts.Store.GetSummary(ctx, videoID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperrors.NotFound(op, err, "No summary stored for this video")
	}
	if err != nil {
		return nil, apperrors.Internal(op, err, "Failed to load summary")
	}
	return s, nil
}
