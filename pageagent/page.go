// Package pageagent runs transcript extraction inside a page context and
// answers coordinator messages for the tabs it manages.
package pageagent

import (
	"context"

	"github.com/pkg/errors"

	"github.com/nijaru/yt-summarizer/captions"
)

var (
	ErrNoPlayer      = errors.New("page has no video player")
	ErrNoControl     = errors.New("page has no show-transcript control")
	ErrUnsupported   = errors.New("capability not supported by page")
	ErrFrameTimeout  = errors.New("embedded frame did not deliver caption tracks in time")
	ErrSidebarAbsent = errors.New("page cannot display a sidebar")
)

// Snapshot is a read-only view of page state at one moment.
type Snapshot struct {
	URL string
	// Title is the rendered video title, empty when not found.
	Title string
	// PlayerResponse is the host's player configuration global; nil when the
	// page was reached without a full load.
	PlayerResponse captions.PlayerResponse
	Scripts        []string
}

// Page is one open page context. Optional capabilities are discovered by
// asserting PlayerPage, PanelPage, FramePage and SidebarPage.
type Page interface {
	URL() string
	Snapshot(ctx context.Context) (*Snapshot, error)
	// Fetcher issues requests from inside the page, with its cookies.
	Fetcher() captions.Fetcher
	Close() error
}

// Player is the page's embedded video player element. Its caption API is
// probed through TrackLister and TrackSetter before use.
type Player interface {
	VideoID(ctx context.Context) (string, error)
}

type TrackLister interface {
	ListTracks(ctx context.Context) ([]captions.Track, error)
}

type TrackSetter interface {
	SetTrack(ctx context.Context, track captions.Track) error
}

type PlayerPage interface {
	Player(ctx context.Context) (Player, error)
}

// TranscriptPanel drives the host's own transcript UI.
type TranscriptPanel interface {
	// Open invokes the show-transcript control, ErrNoControl when absent.
	Open(ctx context.Context) error
	// Lines returns the visible text of each rendered transcript line.
	Lines(ctx context.Context) ([]string, error)
	Close(ctx context.Context) error
}

type PanelPage interface {
	TranscriptPanel() TranscriptPanel
}

// Frame is an embedded player frame plus the listener receiving its
// messages. Close releases both.
type Frame interface {
	Post(ctx context.Context, msg []byte) error
	Messages() <-chan []byte
	Close() error
}

type FrameHost interface {
	OpenFrame(ctx context.Context, videoID string) (Frame, error)
}

type FramePage interface {
	FrameHost() FrameHost
}

type SidebarPage interface {
	ShowSidebar(ctx context.Context, summary, title string) error
	CloseSidebar(ctx context.Context) error
}
