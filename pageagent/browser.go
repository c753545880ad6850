package pageagent

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nijaru/yt-summarizer/captions"
)

type BrowserOptions struct {
	Bin      string
	Headless bool
	// FramePoll is how often embedded frame messages are drained.
	FramePoll time.Duration
}

// BrowserOpener opens pages as tabs of a headless browser launched on first
// use.
type BrowserOpener struct {
	opts BrowserOptions

	mu      sync.Mutex
	browser *rod.Browser
}

func NewBrowserOpener(opts BrowserOptions) *BrowserOpener {
	if opts.FramePoll <= 0 {
		opts.FramePoll = 200 * time.Millisecond
	}
	return &BrowserOpener{opts: opts}
}

func (o *BrowserOpener) connect() (*rod.Browser, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.browser != nil {
		return o.browser, nil
	}

	l := launcher.New().
		Headless(o.opts.Headless).
		Set("mute-audio").
		Set("disable-blink-features", "AutomationControlled")
	if o.opts.Bin != "" {
		l = l.Bin(o.opts.Bin)
	}
	u, err := l.Launch()
	if err != nil {
		return nil, errors.Wrap(err, "failed to launch browser")
	}
	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		return nil, errors.Wrap(err, "failed to connect to browser")
	}
	o.browser = b
	logrus.WithField("headless", o.opts.Headless).Info("Browser launched")
	return b, nil
}

func (o *BrowserOpener) Open(ctx context.Context, rawURL string) (Page, error) {
	b, err := o.connect()
	if err != nil {
		return nil, err
	}
	p, err := b.Page(proto.TargetCreateTarget{URL: rawURL})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open tab")
	}
	if err := p.Context(ctx).WaitLoad(); err != nil {
		_ = p.Close()
		return nil, errors.Wrap(err, "page did not load")
	}
	return &rodPage{page: p, url: rawURL, framePoll: o.opts.FramePoll}, nil
}

func (o *BrowserOpener) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.browser == nil {
		return nil
	}
	err := o.browser.Close()
	o.browser = nil
	return err
}

type rodPage struct {
	page      *rod.Page
	url       string
	framePoll time.Duration
}

var (
	_ Page        = (*rodPage)(nil)
	_ PlayerPage  = (*rodPage)(nil)
	_ PanelPage   = (*rodPage)(nil)
	_ FramePage   = (*rodPage)(nil)
	_ SidebarPage = (*rodPage)(nil)
)

// eval runs a JS function in the page and returns its string result; ok is
// false when the function returned null or undefined.
func eval(ctx context.Context, p *rod.Page, js string, args ...interface{}) (string, bool, error) {
	res, err := p.Context(ctx).Eval(js, args...)
	if err != nil {
		return "", false, err
	}
	if res.Value.Nil() {
		return "", false, nil
	}
	return res.Value.Str(), true, nil
}

func evalBool(ctx context.Context, p *rod.Page, js string, args ...interface{}) (bool, error) {
	res, err := p.Context(ctx).Eval(js, args...)
	if err != nil {
		return false, err
	}
	return res.Value.Bool(), nil
}

func (p *rodPage) URL() string { return p.url }

const snapshotJS = `() => JSON.stringify({
	url: location.href,
	title: ((document.querySelector('h1.ytd-watch-metadata yt-formatted-string, h1.ytd-video-primary-info-renderer') || {}).textContent || '').trim(),
	playerResponse: window.ytInitialPlayerResponse || null,
	scripts: Array.from(document.querySelectorAll('script'))
		.map(s => s.textContent || '')
		.filter(t => t.includes('captionTracks'))
})`

func (p *rodPage) Snapshot(ctx context.Context) (*Snapshot, error) {
	raw, _, err := eval(ctx, p.page, snapshotJS)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read page state")
	}
	var out struct {
		URL            string                 `json:"url"`
		Title          string                 `json:"title"`
		PlayerResponse map[string]interface{} `json:"playerResponse"`
		Scripts        []string               `json:"scripts"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, errors.Wrap(err, "failed to decode page state")
	}
	if out.URL != "" {
		p.url = out.URL
	}
	return &Snapshot{
		URL:            p.url,
		Title:          out.Title,
		PlayerResponse: captions.PlayerResponse(out.PlayerResponse),
		Scripts:        out.Scripts,
	}, nil
}

func (p *rodPage) Fetcher() captions.Fetcher { return &rodFetcher{page: p.page} }

func (p *rodPage) Close() error { return p.page.Close() }

// rodFetcher fetches through the page so requests carry its cookies and
// origin.
type rodFetcher struct {
	page *rod.Page
}

const fetchJS = `async (u) => {
	const r = await fetch(u, {credentials: 'include'});
	return JSON.stringify({status: r.status, body: await r.text()});
}`

func (f *rodFetcher) Get(ctx context.Context, rawURL string) (*captions.Response, error) {
	raw, _, err := eval(ctx, f.page, fetchJS, rawURL)
	if err != nil {
		return nil, errors.Wrap(err, "in-page fetch failed")
	}
	var out struct {
		Status int    `json:"status"`
		Body   string `json:"body"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, errors.Wrap(err, "failed to decode in-page fetch")
	}
	return &captions.Response{StatusCode: out.Status, Body: []byte(out.Body)}, nil
}

const playerJS = `() => {
	const p = document.getElementById('movie_player');
	return !!p && typeof p.getVideoData === 'function';
}`

func (p *rodPage) Player(ctx context.Context) (Player, error) {
	ok, err := evalBool(ctx, p.page, playerJS)
	if err != nil {
		return nil, errors.Wrap(err, "failed to probe player")
	}
	if !ok {
		return nil, ErrNoPlayer
	}
	return &rodPlayer{page: p.page}, nil
}

type rodPlayer struct {
	page *rod.Page
}

const (
	videoIDJS = `() => {
	const p = document.getElementById('movie_player');
	const d = p && typeof p.getVideoData === 'function' ? p.getVideoData() : null;
	return d ? d.video_id : null;
}`
	listTracksJS = `() => {
	const p = document.getElementById('movie_player');
	if (!p || typeof p.getOption !== 'function') return null;
	return JSON.stringify(p.getOption('captions', 'tracklist') || []);
}`
	setTrackJS = `(lang) => {
	const p = document.getElementById('movie_player');
	if (!p || typeof p.setOption !== 'function') return false;
	if (typeof p.loadModule === 'function') p.loadModule('captions');
	p.setOption('captions', 'track', {languageCode: lang});
	return true;
}`
)

func (pl *rodPlayer) VideoID(ctx context.Context) (string, error) {
	id, ok, err := eval(ctx, pl.page, videoIDJS)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrNoPlayer
	}
	return id, nil
}

func (pl *rodPlayer) ListTracks(ctx context.Context) ([]captions.Track, error) {
	raw, ok, err := eval(ctx, pl.page, listTracksJS)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list player tracks")
	}
	if !ok {
		return nil, ErrUnsupported
	}
	var list []interface{}
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, errors.Wrap(err, "failed to decode player tracks")
	}
	return captions.TracksFromList(list), nil
}

func (pl *rodPlayer) SetTrack(ctx context.Context, track captions.Track) error {
	ok, err := evalBool(ctx, pl.page, setTrackJS, track.LanguageCode)
	if err != nil {
		return errors.Wrap(err, "failed to set player track")
	}
	if !ok {
		return ErrUnsupported
	}
	return nil
}

func (p *rodPage) TranscriptPanel() TranscriptPanel { return &rodPanel{page: p.page} }

type rodPanel struct {
	page *rod.Page
}

const (
	openPanelJS = `() => {
	const direct = document.querySelector('ytd-video-description-transcript-section-renderer button');
	const btn = direct || Array.from(document.querySelectorAll('button, yt-button-shape, tp-yt-paper-item'))
		.find(el => /transcript/i.test(el.getAttribute('aria-label') || el.textContent || ''));
	if (!btn) return false;
	btn.click();
	return true;
}`
	panelLinesJS = `() => JSON.stringify(Array.from(document.querySelectorAll(
	'ytd-transcript-segment-renderer .segment-text, #segments-container [class*="segment-text"], transcript-segment-view-model .yt-core-attributed-string'
)).map(el => el.textContent || ''))`
	closePanelJS = `() => {
	const panel = document.querySelector('ytd-engagement-panel-section-list-renderer[target-id*="transcript"]');
	const btn = (panel && panel.querySelector('#visibility-button button, button[aria-label*="Close"]'))
		|| document.querySelector('button[aria-label*="Close transcript"]');
	if (btn) { btn.click(); return true; }
	if (panel) { panel.setAttribute('visibility', 'ENGAGEMENT_PANEL_VISIBILITY_HIDDEN'); return true; }
	return false;
}`
)

func (pn *rodPanel) Open(ctx context.Context) error {
	ok, err := evalBool(ctx, pn.page, openPanelJS)
	if err != nil {
		return errors.Wrap(err, "failed to open transcript panel")
	}
	if !ok {
		return ErrNoControl
	}
	return nil
}

func (pn *rodPanel) Lines(ctx context.Context) ([]string, error) {
	raw, _, err := eval(ctx, pn.page, panelLinesJS)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read transcript panel")
	}
	var lines []string
	if err := json.Unmarshal([]byte(raw), &lines); err != nil {
		return nil, errors.Wrap(err, "failed to decode transcript panel")
	}
	return lines, nil
}

func (pn *rodPanel) Close(ctx context.Context) error {
	_, err := evalBool(ctx, pn.page, closePanelJS)
	return err
}

func (p *rodPage) FrameHost() FrameHost {
	return &rodFrameHost{page: p.page, poll: p.framePoll}
}

type rodFrameHost struct {
	page *rod.Page
	poll time.Duration
}

const (
	openFrameJS = `(key, videoID) => {
	window.__ytsumFrames = window.__ytsumFrames || {};
	const f = document.createElement('iframe');
	f.id = key;
	f.src = 'https://www.youtube.com/embed/' + encodeURIComponent(videoID) +
		'?enablejsapi=1&origin=' + encodeURIComponent(location.origin);
	f.style.cssText = 'position:absolute;left:-10000px;top:-10000px;width:640px;height:360px;';
	const queue = [];
	const listener = (e) => {
		if (e.source !== f.contentWindow) return;
		queue.push(typeof e.data === 'string' ? e.data : JSON.stringify(e.data));
	};
	window.addEventListener('message', listener);
	window.__ytsumFrames[key] = {frame: f, queue: queue, listener: listener};
	document.body.appendChild(f);
	return true;
}`
	postFrameJS = `(key, msg) => {
	const e = window.__ytsumFrames && window.__ytsumFrames[key];
	if (!e || !e.frame.contentWindow) return false;
	e.frame.contentWindow.postMessage(msg, '*');
	return true;
}`
	drainFrameJS = `(key) => {
	const e = window.__ytsumFrames && window.__ytsumFrames[key];
	if (!e) return null;
	return JSON.stringify(e.queue.splice(0));
}`
	closeFrameJS = `(key) => {
	const e = window.__ytsumFrames && window.__ytsumFrames[key];
	if (!e) return false;
	window.removeEventListener('message', e.listener);
	e.frame.remove();
	delete window.__ytsumFrames[key];
	return true;
}`
)

func (h *rodFrameHost) OpenFrame(ctx context.Context, videoID string) (Frame, error) {
	key := "ytsum-" + uuid.NewString()
	if _, err := evalBool(ctx, h.page, openFrameJS, key, videoID); err != nil {
		return nil, errors.Wrap(err, "failed to create embedded frame")
	}
	f := &rodFrame{
		page: h.page,
		key:  key,
		msgs: make(chan []byte, 16),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go f.pump(h.poll)
	return f, nil
}

type rodFrame struct {
	page *rod.Page
	key  string
	msgs chan []byte

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// pump moves queued frame messages from the page into msgs until Close.
func (f *rodFrame) pump(poll time.Duration) {
	defer close(f.done)
	defer close(f.msgs)
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-f.stop
		cancel()
	}()

	for {
		select {
		case <-f.stop:
			return
		case <-ticker.C:
			raw, ok, err := eval(ctx, f.page, drainFrameJS, f.key)
			if err != nil || !ok {
				if err != nil && ctx.Err() == nil {
					logrus.WithError(err).Debug("Failed to drain frame messages")
				}
				continue
			}
			var batch []string
			if err := json.Unmarshal([]byte(raw), &batch); err != nil {
				continue
			}
			for _, m := range batch {
				select {
				case f.msgs <- []byte(m):
				case <-f.stop:
					return
				}
			}
		}
	}
}

func (f *rodFrame) Post(ctx context.Context, msg []byte) error {
	ok, err := evalBool(ctx, f.page, postFrameJS, f.key, string(msg))
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("embedded frame is gone")
	}
	return nil
}

func (f *rodFrame) Messages() <-chan []byte { return f.msgs }

func (f *rodFrame) Close() error {
	var err error
	f.closeOnce.Do(func() {
		close(f.stop)
		<-f.done
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, err = evalBool(ctx, f.page, closeFrameJS, f.key)
	})
	return err
}

const (
	showSidebarJS = `(summary, title) => {
	let root = document.getElementById('yt-ai-summarizer-sidebar');
	if (!root) {
		root = document.createElement('div');
		root.id = 'yt-ai-summarizer-sidebar';
		root.style.cssText = 'position:fixed;top:0;right:0;width:420px;height:100%;overflow:auto;z-index:9999;background:#fff;color:#111;padding:16px;white-space:pre-wrap;font:14px/1.5 sans-serif;';
		document.body.appendChild(root);
	}
	root.textContent = (title ? title + '\n\n' : '') + summary;
	root.style.display = 'block';
	return true;
}`
	closeSidebarJS = `() => {
	const root = document.getElementById('yt-ai-summarizer-sidebar');
	if (root) root.style.display = 'none';
	return true;
}`
)

func (p *rodPage) ShowSidebar(ctx context.Context, summary, title string) error {
	_, err := evalBool(ctx, p.page, showSidebarJS, summary, title)
	return errors.Wrap(err, "failed to show sidebar")
}

func (p *rodPage) CloseSidebar(ctx context.Context) error {
	_, err := evalBool(ctx, p.page, closeSidebarJS)
	return errors.Wrap(err, "failed to close sidebar")
}
