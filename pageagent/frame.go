package pageagent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nijaru/yt-summarizer/captions"
)

type frameMessage struct {
	Event   string        `json:"event"`
	Func    string        `json:"func,omitempty"`
	Args    []interface{} `json:"args,omitempty"`
	ID      string        `json:"id"`
	Channel string        `json:"channel"`
}

type frameReply struct {
	Event string                 `json:"event"`
	ID    string                 `json:"id"`
	Info  map[string]interface{} `json:"info"`
}

// negotiateFrame opens an embedded player for videoID and asks it for its
// caption tracks. The frame and its listener are released on every return.
func negotiateFrame(ctx context.Context, host FrameHost, videoID string, timeout, resend time.Duration) ([]captions.Track, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	frame, err := host.OpenFrame(ctx, videoID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open embedded frame")
	}
	defer func() {
		if err := frame.Close(); err != nil {
			logrus.WithError(err).Debug("Failed to release embedded frame")
		}
	}()

	id := uuid.NewString()
	listening, _ := json.Marshal(frameMessage{Event: "listening", ID: id, Channel: "widget"})
	request, _ := json.Marshal(frameMessage{
		Event:   "command",
		Func:    "getOption",
		Args:    []interface{}{"captions", "tracklist"},
		ID:      id,
		Channel: "widget",
	})
	// The frame ignores messages until its API is ready, so the handshake is
	// repeated until something answers.
	announce := func() error {
		if err := frame.Post(ctx, listening); err != nil {
			return errors.Wrap(err, "frame handshake failed")
		}
		return errors.Wrap(frame.Post(ctx, request), "frame info request failed")
	}
	if err := announce(); err != nil {
		return nil, err
	}

	ticker := time.NewTicker(resend)
	defer ticker.Stop()
	msgs := frame.Messages()
	for {
		select {
		case <-ctx.Done():
			return nil, ErrFrameTimeout
		case <-ticker.C:
			if err := announce(); err != nil {
				return nil, err
			}
		case raw, ok := <-msgs:
			if !ok {
				return nil, errors.New("embedded frame closed its channel")
			}
			if tracks, ok := tracksFromReply(raw, id); ok {
				return tracks, nil
			}
		}
	}
}

func tracksFromReply(raw []byte, id string) ([]captions.Track, bool) {
	var reply frameReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, false
	}
	if reply.ID != "" && reply.ID != id {
		return nil, false
	}
	if reply.Info == nil {
		return nil, false
	}
	return captions.PlayerResponse(reply.Info).CaptionTracks()
}
