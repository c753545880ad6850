// Package companion is the self-hosted transcript service the coordinator
// can consult when page extraction is unavailable.
package companion

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nijaru/yt-summarizer/captions"
	"github.com/nijaru/yt-summarizer/pageagent"
)

const (
	ServiceName = "YouTube Summarizer Backend"
	Version     = "1.0.0"
)

var ErrNoTracks = errors.New("no caption tracks found for video")

type Transcript struct {
	VideoID    string             `json:"video_id"`
	Transcript string             `json:"transcript"`
	Segments   []captions.Segment `json:"segments"`
	Duration   float64            `json:"duration"`
}

// Transcriber fetches a full transcript with its timed segments.
type Transcriber interface {
	Transcript(ctx context.Context, videoID string) (*Transcript, error)
}

// Service reads caption tracks from the watch page and downloads the one
// best matching its language preference.
type Service struct {
	opener    pageagent.Opener
	watchURL  string
	languages []string
}

func NewService(opener pageagent.Opener, watchURL string, languages []string) *Service {
	return &Service{opener: opener, watchURL: watchURL, languages: languages}
}

func (s *Service) Transcript(ctx context.Context, videoID string) (*Transcript, error) {
	page, err := s.opener.Open(ctx, captions.WatchURL(s.watchURL, videoID))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open watch page")
	}
	defer page.Close()

	snap, err := page.Snapshot(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read watch page")
	}
	tracks, ok := snap.PlayerResponse.CaptionTracks()
	if !ok {
		tracks, ok = captions.ScanScripts(snap.Scripts)
	}
	if !ok || len(tracks) == 0 {
		return nil, ErrNoTracks
	}

	track, _ := captions.SelectByLanguage(tracks, s.languages)
	logrus.WithFields(logrus.Fields{
		"video_id": videoID,
		"track":    captions.DescribeTrack(track),
	}).Debug("Selected caption track")

	if track.FetchURL == "" {
		return nil, errors.New("selected caption track has no url")
	}
	resp, err := page.Fetcher().Get(ctx, captions.EnsureJSONFormat(track.FetchURL))
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch caption track")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("caption track returned status %d", resp.StatusCode)
	}
	segments, err := captions.DecodeCaptionBody(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, errors.New("caption track is empty")
	}

	return &Transcript{
		VideoID:    videoID,
		Transcript: captions.JoinSegments(segments),
		Segments:   segments,
		Duration:   captions.Duration(segments),
	}, nil
}
