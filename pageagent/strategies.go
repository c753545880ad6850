package pageagent

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nijaru/yt-summarizer/captions"
)

type strategy struct {
	name string
	run  func(ctx context.Context, at *attempt) captions.Result
}

// attempt carries per-request state shared by strategies.
type attempt struct {
	page    Page
	videoID string

	once     sync.Once
	snapshot *Snapshot
	snapErr  error
}

func (at *attempt) loadSnapshot(ctx context.Context) (*Snapshot, error) {
	at.once.Do(func() {
		at.snapshot, at.snapErr = at.page.Snapshot(ctx)
	})
	return at.snapshot, at.snapErr
}

func (a *Agent) strategies() []strategy {
	return []strategy{
		{name: "global", run: a.fromGlobal},
		{name: "scripts", run: a.fromScripts},
		{name: "player", run: a.fromPlayer},
		{name: "panel", run: a.fromPanel},
		{name: "frame", run: a.fromFrame},
	}
}

func (a *Agent) fromGlobal(ctx context.Context, at *attempt) captions.Result {
	snap, err := at.loadSnapshot(ctx)
	if err != nil {
		return captions.Failed(err.Error())
	}
	if snap.PlayerResponse == nil {
		return captions.NotFound("player response global absent")
	}
	tracks, ok := snap.PlayerResponse.CaptionTracks()
	if !ok {
		return captions.NotFound("no caption tracks in player response")
	}
	return a.fetchSelected(ctx, at, tracks)
}

func (a *Agent) fromScripts(ctx context.Context, at *attempt) captions.Result {
	snap, err := at.loadSnapshot(ctx)
	if err != nil {
		return captions.Failed(err.Error())
	}
	tracks, ok := captions.ScanScripts(snap.Scripts)
	if !ok {
		return captions.NotFound("no caption tracks in inline scripts")
	}
	return a.fetchSelected(ctx, at, tracks)
}

func (a *Agent) fromPlayer(ctx context.Context, at *attempt) captions.Result {
	pp, ok := at.page.(PlayerPage)
	if !ok {
		return captions.NotFound("page has no player")
	}
	player, err := pp.Player(ctx)
	if err != nil {
		return captions.NotFound(err.Error())
	}
	lister, ok := player.(TrackLister)
	if !ok {
		return captions.NotFound("player exposes no track list")
	}

	tracks, err := lister.ListTracks(ctx)
	if err == nil && len(tracks) == 0 {
		// The track list is populated once the captions module loads.
		if setter, ok := player.(TrackSetter); ok {
			if err := setter.SetTrack(ctx, captions.Track{LanguageCode: "en"}); err == nil {
				tracks, err = lister.ListTracks(ctx)
			}
		}
	}
	if err != nil {
		return captions.Failed(err.Error())
	}
	if len(tracks) == 0 {
		return captions.NotFound("player lists no caption tracks")
	}

	if id, err := player.VideoID(ctx); err == nil && id != "" {
		at.videoID = id
	}
	return a.fetchSelected(ctx, at, tracks)
}

func (a *Agent) fromFrame(ctx context.Context, at *attempt) captions.Result {
	fp, ok := at.page.(FramePage)
	if !ok {
		return captions.NotFound("page cannot embed frames")
	}
	host := fp.FrameHost()
	if host == nil {
		return captions.NotFound("page cannot embed frames")
	}
	if at.videoID == "" {
		return captions.NotFound("no video id for embedded frame")
	}

	tracks, err := negotiateFrame(ctx, host, at.videoID, a.opts.frameTimeout, a.opts.frameResend)
	if err != nil {
		return captions.NotFound(err.Error())
	}
	return a.fetchSelected(ctx, at, tracks)
}

// fetchSelected applies the track tie-break and downloads the winner.
// Tracks read from the live player carry no URL and are fetched from the
// captions endpoint instead.
func (a *Agent) fetchSelected(ctx context.Context, at *attempt, tracks []captions.Track) captions.Result {
	track, ok := captions.SelectTrack(tracks)
	if !ok {
		return captions.NotFound("no caption tracks")
	}
	if track.FetchURL == "" {
		if at.videoID == "" {
			return captions.NotFound("track has no url and video id is unknown")
		}
		track.FetchURL = captions.TimedTextURL(a.opts.timedTextURL, at.videoID, track.LanguageCode, track.AutoGenerated())
	}

	logrus.WithFields(logrus.Fields{
		"video_id": at.videoID,
		"track":    captions.DescribeTrack(track),
	}).Debug("Fetching selected caption track")
	return captions.FetchTrack(ctx, at.page.Fetcher(), track)
}

// sleepCtx waits for d or until ctx ends, reporting whether d elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
