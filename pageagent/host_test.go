package pageagent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nijaru/yt-summarizer/captions"
	"github.com/nijaru/yt-summarizer/messaging"
)

func TestHostInjectAndReplace(t *testing.T) {
	ctx := context.Background()
	opener := &fakeOpener{}
	host := NewHost(opener)

	_, err := host.Handle(ctx, "tab-1", messaging.Request{Action: messaging.ActionPing})
	assert.ErrorIs(t, err, messaging.ErrNoAgent)

	require.NoError(t, host.Inject(ctx, "tab-1", watchURL))
	resp, err := host.Handle(ctx, "tab-1", messaging.Request{Action: messaging.ActionPing})
	require.NoError(t, err)
	assert.True(t, resp.Success)

	require.NoError(t, host.Inject(ctx, "tab-1", "https://www.youtube.com/watch?v=other"))
	require.Len(t, opener.pages, 2)
	assert.True(t, opener.pages[0].isClosed(), "replaced agent's page must be closed")
	assert.False(t, opener.pages[1].isClosed())

	resp, err = host.Handle(ctx, "tab-1", messaging.Request{Action: messaging.ActionGetVideoInfo})
	require.NoError(t, err)
	require.NotNil(t, resp.VideoInfo)
	assert.Equal(t, "other", resp.VideoInfo.VideoID)

	require.NoError(t, host.Inject(ctx, "tab-2", watchURL))
	require.NoError(t, host.Release(ctx, "tab-2"))
	assert.True(t, opener.pages[2].isClosed())
	_, err = host.Handle(ctx, "tab-2", messaging.Request{Action: messaging.ActionPing})
	assert.ErrorIs(t, err, messaging.ErrNoAgent)
	require.NoError(t, host.Release(ctx, "tab-2"))

	require.NoError(t, host.Close())
	assert.True(t, opener.pages[1].isClosed())
	_, err = host.Handle(ctx, "tab-1", messaging.Request{Action: messaging.ActionPing})
	assert.ErrorIs(t, err, messaging.ErrNoAgent)
}

const watchPage = `<!DOCTYPE html>
<html>
<head>
	<title>Static Title - YouTube</title>
	<meta property="og:title" content="Static Title">
</head>
<body>
<script>var ytcfg = {"EXPERIMENT_FLAGS":{}};</script>
<script>var ytInitialPlayerResponse = {"captions":{"playerCaptionsTracklistRenderer":{"captionTracks":[{"baseUrl":"BASE/api/timedtext?v=abc123&lang=en","languageCode":"en","kind":"asr"}]}},"videoDetails":{"title":"Static Title"}};</script>
</body>
</html>`

func TestStaticOpenerEndToEnd(t *testing.T) {
	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/watch":
			_, _ = w.Write([]byte(strings.ReplaceAll(watchPage, "BASE", srvURL)))
		case "/api/timedtext":
			if r.URL.Query().Get("lang") != "en" || r.URL.Query().Get("fmt") != "json3" {
				http.NotFound(w, r)
				return
			}
			_, _ = w.Write(captionDoc("static page caption text"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	srvURL = srv.URL

	ctx := context.Background()
	host := NewHost(NewStaticOpener(captions.NewHTTPFetcher(srv.Client(), 0)))
	defer host.Close()

	require.NoError(t, host.Inject(ctx, "tab", srv.URL+"/watch?v=abc123"))

	resp, err := host.Handle(ctx, "tab", messaging.Request{Action: messaging.ActionGetTranscript})
	require.NoError(t, err)
	text, ok := resp.TranscriptText()
	require.True(t, ok)
	assert.Equal(t, "static page caption text", text)

	resp, err = host.Handle(ctx, "tab", messaging.Request{Action: messaging.ActionGetVideoInfo})
	require.NoError(t, err)
	require.NotNil(t, resp.VideoInfo)
	assert.Equal(t, "Static Title", resp.VideoInfo.Title)

	resp, err = host.Handle(ctx, "tab", messaging.Request{Action: messaging.ActionShowSidebar, Summary: "x"})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, ErrSidebarAbsent.Error(), resp.Error)

	err = host.Inject(ctx, "tab-missing", srv.URL+"/nope")
	assert.Error(t, err)
}
