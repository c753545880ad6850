package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nijaru/yt-summarizer/captions"
	apperrors "github.com/nijaru/yt-summarizer/errors"
	"github.com/nijaru/yt-summarizer/messaging"
	"github.com/nijaru/yt-summarizer/metrics"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	SourcePageAgent       = "page_agent"
	SourceCompanion       = "companion"
	SourceTimedTextManual = "timedtext_manual"
	SourceTimedTextAuto   = "timedtext_auto"
	SourceMirror          = "mirror"
)

// Source is one step of the transcript chain. Fetch never returns an error;
// every failure is folded into the Result so the chain can move on.
type Source interface {
	Name() string
	Fetch(ctx context.Context, req Request) captions.Result
}

// budgeted sources need a different time allowance than the default.
type budgeted interface {
	Budget() time.Duration
}

// AgentHandle addresses the page agent living in a tab.
type AgentHandle struct {
	TabID string
	URL   string
}

type Request struct {
	VideoID string
	Agent   *AgentHandle
}

// PageAgentSource asks the page agent for the transcript, probing and
// re-injecting it first when it does not answer.
type PageAgentSource struct {
	client      messaging.Client
	transport   string
	timeout     time.Duration
	pingTimeout time.Duration
	injectWait  time.Duration
}

func NewPageAgentSource(client messaging.Client, transport string, timeout, pingTimeout, injectWait time.Duration) *PageAgentSource {
	return &PageAgentSource{
		client:      client,
		transport:   transport,
		timeout:     timeout,
		pingTimeout: pingTimeout,
		injectWait:  injectWait,
	}
}

func (s *PageAgentSource) Name() string { return SourcePageAgent }

// Budget covers the ping, a re-injection, the settle wait and the transcript
// round trip.
func (s *PageAgentSource) Budget() time.Duration {
	return s.pingTimeout + s.timeout + s.injectWait + s.timeout
}

func (s *PageAgentSource) Fetch(ctx context.Context, req Request) captions.Result {
	if req.Agent == nil || req.Agent.TabID == "" {
		return captions.NotFound("no page agent handle")
	}
	s.ensureAgent(ctx, req)

	resp, err := s.send(ctx, req.Agent.TabID, messaging.Request{Action: messaging.ActionGetTranscript}, s.timeout)
	if err != nil {
		return captions.Failed(apperrors.PageAgentUnreachable("transcription.PageAgentSource.Fetch", err).Error())
	}
	if resp.Error != "" {
		return captions.Failed(resp.Error)
	}
	text, ok := resp.TranscriptText()
	if !ok {
		return captions.NotFound("page agent found no transcript")
	}
	return captions.Success(text)
}

// ensureAgent pings the tab and, when that fails, re-injects the agent and
// waits for it to settle. The outcome is ignored either way.
func (s *PageAgentSource) ensureAgent(ctx context.Context, req Request) {
	if _, err := s.send(ctx, req.Agent.TabID, messaging.Request{Action: messaging.ActionPing}, s.pingTimeout); err == nil {
		return
	}

	log := logrus.WithFields(logrus.Fields{
		"tab_id":   req.Agent.TabID,
		"video_id": req.VideoID,
	})
	if req.Agent.URL == "" {
		log.Debug("Page agent did not answer ping and no URL to inject")
		return
	}

	ictx, cancel := context.WithTimeout(ctx, s.timeout)
	err := s.client.Inject(ictx, req.Agent.TabID, req.Agent.URL)
	cancel()
	if err != nil {
		log.WithError(err).Debug("Page agent injection failed")
	} else {
		log.Debug("Page agent injected")
	}

	select {
	case <-time.After(s.injectWait):
	case <-ctx.Done():
	}
}

// Send forwards a message to the tab with its own timeout and records it.
func (s *PageAgentSource) Send(ctx context.Context, tabID string, req messaging.Request) (messaging.Response, error) {
	return s.send(ctx, tabID, req, s.timeout)
}

func (s *PageAgentSource) send(ctx context.Context, tabID string, req messaging.Request, timeout time.Duration) (messaging.Response, error) {
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := s.client.Send(sctx, tabID, req)
	status := metrics.StatusOK
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		status = metrics.StatusTimeout
	default:
		status = metrics.StatusError
	}
	metrics.AgentMessagesTotal.WithLabelValues(string(req.Action), s.transport, status).Inc()
	return resp, err
}

// CompanionSource posts the video id to a self-hosted transcript service.
type CompanionSource struct {
	baseURL string
	client  *http.Client
	retry   retryPolicy
}

func NewCompanionSource(baseURL string, client *http.Client) *CompanionSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &CompanionSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		retry:   defaultRetry,
	}
}

func (s *CompanionSource) Name() string { return SourceCompanion }

type companionReply struct {
	Transcript string `json:"transcript"`
	Error      string `json:"error"`
}

func (s *CompanionSource) Fetch(ctx context.Context, req Request) captions.Result {
	payload, err := json.Marshal(map[string]string{"video_id": req.VideoID})
	if err != nil {
		return captions.Failed(err.Error())
	}

	var reply companionReply
	log := logrus.WithFields(logrus.Fields{"source": SourceCompanion, "video_id": req.VideoID})
	err = s.retry.do(ctx, log, func(ctx context.Context) error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/transcript", bytes.NewReader(payload))
		if err != nil {
			return errors.Wrap(err, "failed to build request")
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(httpReq)
		if err != nil {
			return transportError(ctx, errors.Wrap(err, "companion request failed"))
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
		if err != nil {
			return errors.Wrap(err, "failed to read companion response")
		}
		reply = companionReply{}
		_ = json.Unmarshal(body, &reply)

		if resp.StatusCode != http.StatusOK {
			err := errors.Errorf("companion returned status %d: %s", resp.StatusCode, reply.Error)
			if retryableStatus(resp.StatusCode) {
				return temporary(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return captions.Failed(err.Error())
	}
	return captions.Success(reply.Transcript)
}

// ProbeCompanion checks that a companion service answers its health endpoint.
func ProbeCompanion(ctx context.Context, client *http.Client, baseURL string) error {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/health", nil)
	if err != nil {
		return errors.Wrap(err, "invalid server url")
	}
	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrap(err, "server unreachable")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("server returned status %d", resp.StatusCode)
	}
	return nil
}

// TimedTextSource walks the language list against the direct captions
// endpoint, either for manual or for auto-generated captions.
type TimedTextSource struct {
	fetcher   captions.Fetcher
	baseURL   string
	languages []string
	auto      bool
}

func NewTimedTextSource(fetcher captions.Fetcher, baseURL string, languages []string, auto bool) *TimedTextSource {
	if len(languages) == 0 {
		languages = captions.DefaultLanguages
	}
	return &TimedTextSource{fetcher: fetcher, baseURL: baseURL, languages: languages, auto: auto}
}

func (s *TimedTextSource) Name() string {
	if s.auto {
		return SourceTimedTextAuto
	}
	return SourceTimedTextManual
}

func (s *TimedTextSource) Fetch(ctx context.Context, req Request) captions.Result {
	log := logrus.WithFields(logrus.Fields{"source": s.Name(), "video_id": req.VideoID})
	for _, lang := range s.languages {
		if err := ctx.Err(); err != nil {
			return captions.Failed(err.Error())
		}
		res := s.fetchLanguage(ctx, req.VideoID, lang)
		if res.OK() {
			log.WithField("lang", lang).Debug("Direct captions endpoint answered")
			return res
		}
		log.WithFields(logrus.Fields{
			"lang":   lang,
			"status": res.Status.String(),
			"reason": res.Reason,
		}).Debug("No captions for language")
	}
	return captions.NotFound(fmt.Sprintf("no captions in %d languages", len(s.languages)))
}

func (s *TimedTextSource) fetchLanguage(ctx context.Context, videoID, lang string) captions.Result {
	resp, err := s.fetcher.Get(ctx, captions.TimedTextURL(s.baseURL, videoID, lang, s.auto))
	if err != nil {
		return captions.Failed(err.Error())
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return captions.NotFound("status 404")
	case resp.StatusCode != http.StatusOK:
		return captions.Failedf("status %d", resp.StatusCode)
	}
	segments, err := captions.DecodeCaptionBody(resp.Body)
	if err != nil {
		return captions.Failed(err.Error())
	}
	return captions.FromDocument(captions.JoinSegments(segments))
}

// MirrorSource asks the legacy third-party transcript mirror.
type MirrorSource struct {
	fetcher   captions.Fetcher
	baseURL   string
	watchBase string
	retry     retryPolicy
}

func NewMirrorSource(fetcher captions.Fetcher, baseURL, watchBase string) *MirrorSource {
	return &MirrorSource{fetcher: fetcher, baseURL: baseURL, watchBase: watchBase, retry: defaultRetry}
}

func (s *MirrorSource) Name() string { return SourceMirror }

func (s *MirrorSource) Fetch(ctx context.Context, req Request) captions.Result {
	var text string
	log := logrus.WithFields(logrus.Fields{"source": SourceMirror, "video_id": req.VideoID})
	err := s.retry.do(ctx, log, func(ctx context.Context) error {
		resp, err := s.fetcher.Get(ctx, captions.MirrorURL(s.baseURL, s.watchBase, req.VideoID))
		if err != nil {
			return transportError(ctx, err)
		}
		if resp.StatusCode != http.StatusOK {
			err := errors.Errorf("mirror returned status %d", resp.StatusCode)
			if retryableStatus(resp.StatusCode) {
				return temporary(err)
			}
			return err
		}
		text, err = captions.ParseMirror(resp.Body)
		return err
	})
	if err != nil {
		return captions.Failed(err.Error())
	}
	return captions.Success(text)
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
