package main

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nijaru/yt-summarizer/captions"
	"github.com/nijaru/yt-summarizer/config"
	"github.com/nijaru/yt-summarizer/coordinator"
	"github.com/nijaru/yt-summarizer/db"
	"github.com/nijaru/yt-summarizer/messaging"
	"github.com/nijaru/yt-summarizer/pageagent"
	"github.com/nijaru/yt-summarizer/summary"
	"github.com/nijaru/yt-summarizer/transcription"
)

// closers releases resources in reverse order of acquisition.
type closers []io.Closer

func (c closers) Close() error {
	var first error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func newFetcher(cfg *config.Config) *captions.HTTPFetcher {
	return captions.NewHTTPFetcher(&http.Client{Timeout: cfg.Sources.HTTPTimeout}, cfg.Sources.HostRateLimit)
}

// newOpener picks the headless browser when enabled and the static page
// reader otherwise.
func newOpener(cfg *config.Config, fetcher captions.Fetcher) pageagent.Opener {
	if cfg.Agent.Browser {
		return pageagent.NewBrowserOpener(pageagent.BrowserOptions{
			Bin:      cfg.Agent.BrowserBin,
			Headless: cfg.Agent.BrowserHeadless,
		})
	}
	return pageagent.NewStaticOpener(fetcher)
}

// newHost returns a host whose Close also releases the opener.
func newHost(cfg *config.Config, fetcher captions.Fetcher) *pageagent.Host {
	return pageagent.NewHost(newOpener(cfg, fetcher), pageagent.WithTimedTextURL(cfg.Sources.TimedTextURL))
}

// newAgentClient connects to page agents over the configured transport.
func newAgentClient(cfg *config.Config, fetcher captions.Fetcher) (messaging.Client, io.Closer, error) {
	switch cfg.Agent.Transport {
	case config.TransportLocal:
		host := newHost(cfg, fetcher)
		client := messaging.NewLoopback(host)
		return client, closers{host, client}, nil
	case config.TransportHTTP:
		client := messaging.NewHTTPClient(cfg.Agent.URL, &http.Client{Timeout: cfg.Agent.Timeout + cfg.Agent.InjectWait})
		return client, client, nil
	case config.TransportAMQP:
		client, err := messaging.NewAMQPClient(messaging.AMQPConfig{URL: cfg.Agent.AMQPURL, Queue: cfg.Agent.AMQPQueue})
		if err != nil {
			return nil, nil, errors.Wrap(err, "connect to amqp broker")
		}
		return client, client, nil
	}
	return nil, nil, errors.Errorf("unknown agent transport %q", cfg.Agent.Transport)
}

type stack struct {
	coordinator *coordinator.Coordinator
	store       *db.Store
	closer      io.Closer
	// requestTimeout covers a summarize call whose every step runs to its
	// own deadline.
	requestTimeout time.Duration
}

// buildStack wires the transcript chain, the summary service and the
// coordinator. The store is skipped when withStore is false.
func buildStack(cfg *config.Config, withStore bool) (*stack, error) {
	var cs closers
	fetcher := newFetcher(cfg)

	agents, agentCloser, err := newAgentClient(cfg, fetcher)
	if err != nil {
		return nil, err
	}
	cs = append(cs, agentCloser)

	var store *db.Store
	opts := coordinator.Options{
		Provider:     summary.ConfigFrom(cfg.Summary),
		Agents:       agents,
		AgentTimeout: cfg.Agent.Timeout,
		WatchURL:     cfg.Sources.WatchURL,
	}
	if withStore {
		store, err = db.InitializeDB(cfg.DBPath)
		if err != nil {
			cs.Close()
			return nil, errors.Wrap(err, "initialize database")
		}
		cs = append(cs, store)
		opts.Store = store
	}

	client := &http.Client{Timeout: cfg.Sources.HTTPTimeout}
	sources := transcription.NewSources(cfg, agents, fetcher, client)
	transcripts := transcription.NewTranscriptionService(transcription.NewCache(), cfg.Sources.SourceTimeout, sources...)
	summaries := summary.NewSummaryServiceFromConfig(cfg.Summary, &http.Client{Timeout: cfg.Summary.Timeout})

	logrus.WithFields(logrus.Fields{
		"budget":    transcripts.Budget(),
		"sources":   transcripts.SourceNames(),
		"transport": cfg.Agent.Transport,
		"provider":  cfg.Summary.Provider,
		"model":     cfg.Summary.Model(),
	}).Info("Transcript chain ready")

	return &stack{
		coordinator:    coordinator.New(transcripts, summaries, opts),
		store:          store,
		closer:         cs,
		requestTimeout: requestTimeout(cfg, transcripts.Budget()),
	}, nil
}

// requestTimeout adds the summary timeout and the two page agent round
// trips that follow the transcript (title lookup, sidebar) to the chain's
// budget.
func requestTimeout(cfg *config.Config, chain time.Duration) time.Duration {
	return chain + cfg.Summary.Timeout + 2*cfg.Agent.Timeout
}

// probeCompanion logs whether the companion server answers; it is never fatal.
func probeCompanion(ctx context.Context, cfg *config.Config) {
	if !cfg.Sources.UseLocalServer || cfg.Sources.LocalServerURL == "" {
		return
	}
	client := &http.Client{Timeout: cfg.Sources.HTTPTimeout}
	log := logrus.WithField("url", cfg.Sources.LocalServerURL)
	if err := transcription.ProbeCompanion(ctx, client, cfg.Sources.LocalServerURL); err != nil {
		log.WithError(err).Warn("Companion server not reachable")
		return
	}
	log.Info("Companion server reachable")
}
