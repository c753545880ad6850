package pageagent

import (
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nijaru/yt-summarizer/messaging"
)

// Opener opens a page context for a URL.
type Opener interface {
	Open(ctx context.Context, rawURL string) (Page, error)
}

// Host keeps one agent per tab.
type Host struct {
	opener Opener
	opts   []Option

	mu     sync.Mutex
	agents map[string]*Agent
}

var _ messaging.Agents = (*Host)(nil)

func NewHost(opener Opener, opts ...Option) *Host {
	return &Host{
		opener: opener,
		opts:   opts,
		agents: make(map[string]*Agent),
	}
}

// Inject opens rawURL in tabID and installs a fresh agent there. An agent
// already present in the tab is replaced and its page closed.
func (h *Host) Inject(ctx context.Context, tabID, rawURL string) error {
	page, err := h.opener.Open(ctx, rawURL)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", rawURL)
	}
	agent := NewAgent(page, h.opts...)

	h.mu.Lock()
	old := h.agents[tabID]
	h.agents[tabID] = agent
	h.mu.Unlock()

	log := logrus.WithFields(logrus.Fields{
		"tab_id": tabID,
		"url":    rawURL,
	})
	if old != nil {
		if err := old.Close(); err != nil {
			log.WithError(err).Warn("Failed to close replaced page agent")
		}
		log.Info("Replaced page agent")
		return nil
	}
	log.Info("Injected page agent")
	return nil
}

func (h *Host) Handle(ctx context.Context, tabID string, req messaging.Request) (messaging.Response, error) {
	h.mu.Lock()
	agent := h.agents[tabID]
	h.mu.Unlock()
	if agent == nil {
		return messaging.Response{}, messaging.ErrNoAgent
	}
	return agent.Handle(ctx, req)
}

// Release closes and forgets the agent in tabID.
func (h *Host) Release(ctx context.Context, tabID string) error {
	h.mu.Lock()
	agent := h.agents[tabID]
	delete(h.agents, tabID)
	h.mu.Unlock()
	if agent == nil {
		return nil
	}
	logrus.WithField("tab_id", tabID).Debug("Released page agent")
	return agent.Close()
}

// Close closes every agent and, when it holds resources, the opener.
func (h *Host) Close() error {
	h.mu.Lock()
	agents := h.agents
	h.agents = make(map[string]*Agent)
	h.mu.Unlock()

	var first error
	for tabID, agent := range agents {
		if err := agent.Close(); err != nil {
			logrus.WithError(err).WithField("tab_id", tabID).Warn("Failed to close page agent")
			if first == nil {
				first = err
			}
		}
	}
	if c, ok := h.opener.(io.Closer); ok {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
