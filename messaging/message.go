// Package messaging carries request/response messages between the
// coordinator and page agents.
package messaging

import (
	"context"

	"github.com/pkg/errors"
)

type Action string

const (
	ActionPing          Action = "ping"
	ActionGetVideoInfo  Action = "getVideoInfo"
	ActionGetTranscript Action = "getTranscript"
	ActionShowSidebar   Action = "showSidebar"
	ActionCloseSidebar  Action = "closeSidebar"
)

func (a Action) Valid() bool {
	switch a {
	case ActionPing, ActionGetVideoInfo, ActionGetTranscript, ActionShowSidebar, ActionCloseSidebar:
		return true
	}
	return false
}

var (
	ErrNoAgent       = errors.New("no page agent in tab")
	ErrUnknownAction = errors.New("unknown action")
)

type Request struct {
	Action  Action `json:"action"`
	Summary string `json:"summary,omitempty"`
	Title   string `json:"title,omitempty"`
}

type VideoInfo struct {
	VideoID   string `json:"videoId"`
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail"`
}

// Response is the reply to a Request. Transcript is nil when the agent
// found nothing; VideoInfo is nil off video pages.
type Response struct {
	Success    bool       `json:"success,omitempty"`
	Transcript *string    `json:"transcript,omitempty"`
	VideoInfo  *VideoInfo `json:"videoInfo,omitempty"`
	Error      string     `json:"error,omitempty"`
}

func TranscriptResponse(text string) Response {
	if text == "" {
		return Response{}
	}
	return Response{Transcript: &text}
}

// TranscriptText returns the transcript carried by the response, if any.
func (r Response) TranscriptText() (string, bool) {
	if r.Transcript == nil || *r.Transcript == "" {
		return "", false
	}
	return *r.Transcript, true
}

// Handler answers messages addressed to a tab.
type Handler interface {
	Handle(ctx context.Context, tabID string, req Request) (Response, error)
}

// Injector (re-)installs a page agent into a tab showing rawURL.
type Injector interface {
	Inject(ctx context.Context, tabID, rawURL string) error
}

// Releaser closes the agent in a tab and its page. Releasing a tab with no
// agent is not an error.
type Releaser interface {
	Release(ctx context.Context, tabID string) error
}

// Agents is the page agent side of a transport.
type Agents interface {
	Handler
	Injector
	Releaser
}

// Client is the coordinator side of a transport.
type Client interface {
	Send(ctx context.Context, tabID string, req Request) (Response, error)
	Inject(ctx context.Context, tabID, rawURL string) error
	Release(ctx context.Context, tabID string) error
	Close() error
}
