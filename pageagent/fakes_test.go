package pageagent

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/nijaru/yt-summarizer/captions"
)

const (
	watchURL     = "https://www.youtube.com/watch?v=abc123"
	timedTextURL = "https://tt.test/api/timedtext"
)

func captionDoc(text string) []byte {
	doc := map[string]any{
		"events": []any{
			map[string]any{
				"tStartMs":    0,
				"dDurationMs": 1000,
				"segs":        []any{map[string]any{"utf8": text}},
			},
		},
	}
	b, _ := json.Marshal(doc)
	return b
}

type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string]*captions.Response
	requests  []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{responses: make(map[string]*captions.Response)}
}

func (f *fakeFetcher) serve(url string, status int, body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[url] = &captions.Response{StatusCode: status, Body: body}
}

func (f *fakeFetcher) Get(ctx context.Context, url string) (*captions.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, url)
	if r, ok := f.responses[url]; ok {
		return r, nil
	}
	return &captions.Response{StatusCode: http.StatusNotFound}, nil
}

func (f *fakeFetcher) Requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

// fakePage implements every optional capability; unset fields behave as if
// the capability found nothing.
type fakePage struct {
	url     string
	snap    Snapshot
	fetcher *fakeFetcher
	player  Player
	panel   TranscriptPanel
	frames  FrameHost

	mu       sync.Mutex
	closed   bool
	sidebar  string
	sidebarV bool
}

func newFakePage() *fakePage {
	return &fakePage{url: watchURL, snap: Snapshot{URL: watchURL}, fetcher: newFakeFetcher()}
}

func (p *fakePage) URL() string { return p.url }

func (p *fakePage) Snapshot(ctx context.Context) (*Snapshot, error) {
	s := p.snap
	return &s, nil
}

func (p *fakePage) Fetcher() captions.Fetcher { return p.fetcher }

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePage) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePage) Player(ctx context.Context) (Player, error) {
	if p.player == nil {
		return nil, ErrNoPlayer
	}
	return p.player, nil
}

func (p *fakePage) TranscriptPanel() TranscriptPanel { return p.panel }

func (p *fakePage) FrameHost() FrameHost { return p.frames }

func (p *fakePage) ShowSidebar(ctx context.Context, summary, title string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sidebar = title + ": " + summary
	p.sidebarV = true
	return nil
}

func (p *fakePage) CloseSidebar(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sidebarV = false
	return nil
}

type idOnlyPlayer struct{}

func (idOnlyPlayer) VideoID(ctx context.Context) (string, error) { return "abc123", nil }

type fakePlayer struct {
	id        string
	lists     [][]captions.Track
	listCalls int
	setCalls  []string
}

func (p *fakePlayer) VideoID(ctx context.Context) (string, error) { return p.id, nil }

func (p *fakePlayer) ListTracks(ctx context.Context) ([]captions.Track, error) {
	i := p.listCalls
	if i >= len(p.lists) {
		i = len(p.lists) - 1
	}
	p.listCalls++
	if i < 0 {
		return nil, nil
	}
	return p.lists[i], nil
}

func (p *fakePlayer) SetTrack(ctx context.Context, track captions.Track) error {
	p.setCalls = append(p.setCalls, track.LanguageCode)
	return nil
}

type fakePanel struct {
	openErr    error
	onOpen     func()
	lines      []string
	readyAfter int

	mu          sync.Mutex
	calls       int
	closed      int
	closeCtxErr error
}

func (p *fakePanel) Open(ctx context.Context) error {
	if p.onOpen != nil {
		p.onOpen()
	}
	return p.openErr
}

func (p *fakePanel) Lines(ctx context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls < p.readyAfter {
		return nil, nil
	}
	return p.lines, nil
}

func (p *fakePanel) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	p.closeCtxErr = ctx.Err()
	return nil
}

type fakeFrame struct {
	msgs    chan []byte
	respond func(msg map[string]any) [][]byte
	postErr error

	mu     sync.Mutex
	posted []map[string]any
	closed bool
}

func (f *fakeFrame) Post(ctx context.Context, raw []byte) error {
	if f.postErr != nil {
		return f.postErr
	}
	var msg map[string]any
	_ = json.Unmarshal(raw, &msg)
	f.mu.Lock()
	f.posted = append(f.posted, msg)
	f.mu.Unlock()
	if f.respond != nil {
		for _, reply := range f.respond(msg) {
			select {
			case f.msgs <- reply:
			default:
			}
		}
	}
	return nil
}

func (f *fakeFrame) Messages() <-chan []byte { return f.msgs }

func (f *fakeFrame) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeFrame) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeFrameHost struct {
	frame   *fakeFrame
	openErr error
	videoID string
}

func (h *fakeFrameHost) OpenFrame(ctx context.Context, videoID string) (Frame, error) {
	h.videoID = videoID
	if h.openErr != nil {
		return nil, h.openErr
	}
	return h.frame, nil
}

type fakeOpener struct {
	mu    sync.Mutex
	pages []*fakePage
}

func (o *fakeOpener) Open(ctx context.Context, rawURL string) (Page, error) {
	p := newFakePage()
	p.url = rawURL
	o.mu.Lock()
	o.pages = append(o.pages, p)
	o.mu.Unlock()
	return p, nil
}
