package companion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nijaru/yt-summarizer/captions"
	"github.com/nijaru/yt-summarizer/pageagent"
)

const watchPage = `<html><head><title>Video - YouTube</title></head><body>
<script>var ytInitialPlayerResponse = {"captions":{"playerCaptionsTracklistRenderer":{"captionTracks":[
{"baseUrl":"BASE/api/timedtext?v=abc123&lang=de","languageCode":"de"},
{"baseUrl":"BASE/api/timedtext?v=abc123&lang=en&kind=asr","languageCode":"en","kind":"asr"},
{"baseUrl":"BASE/api/timedtext?v=abc123&lang=ja","languageCode":"ja"}
]}}};</script>
</body></html>`

const json3Body = `{"events":[
{"tStartMs":0,"dDurationMs":1500,"segs":[{"utf8":"こんにちは"}]},
{"tStartMs":1500,"dDurationMs":2000,"segs":[{"utf8":"世界"},{"utf8":"です"}]},
{"tStartMs":3500,"dDurationMs":500}
]}`

func newWatchServer(t *testing.T) *httptest.Server {
	t.Helper()
	var base string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/watch":
			if r.URL.Query().Get("v") != "abc123" {
				http.NotFound(w, r)
				return
			}
			_, _ = w.Write([]byte(strings.ReplaceAll(watchPage, "BASE", base)))
		case "/api/timedtext":
			if r.URL.Query().Get("lang") != "ja" || r.URL.Query().Get("fmt") != "json3" {
				http.NotFound(w, r)
				return
			}
			_, _ = w.Write([]byte(json3Body))
		default:
			http.NotFound(w, r)
		}
	}))
	base = srv.URL
	t.Cleanup(srv.Close)
	return srv
}

func newService(srv *httptest.Server) *Service {
	opener := pageagent.NewStaticOpener(captions.NewHTTPFetcher(srv.Client(), 0))
	return NewService(opener, srv.URL+"/watch", []string{"en", "zh-CN", "zh-Hans", "zh-TW", "ja", "ko"})
}

func TestServicePrefersManualTrackInPreferredLanguage(t *testing.T) {
	srv := newWatchServer(t)

	got, err := newService(srv).Transcript(context.Background(), "abc123")
	require.NoError(t, err)

	assert.Equal(t, "abc123", got.VideoID)
	assert.Equal(t, "こんにちは 世界です", got.Transcript)
	require.Len(t, got.Segments, 2)
	assert.Equal(t, 1.5, got.Segments[1].Start)
	assert.Equal(t, 3.5, got.Duration)
}

func TestServiceWithoutTracks(t *testing.T) {
	srv := newWatchServer(t)

	_, err := newService(srv).Transcript(context.Background(), "zzz999")
	assert.Error(t, err)
}

type stubTranscriber struct {
	got string
	err error
}

func (s *stubTranscriber) Transcript(ctx context.Context, videoID string) (*Transcript, error) {
	s.got = videoID
	if s.err != nil {
		return nil, s.err
	}
	return &Transcript{
		VideoID:    videoID,
		Transcript: "hello there",
		Segments:   []captions.Segment{{Start: 0, Duration: 2, Text: "hello there"}},
		Duration:   2,
	}, nil
}

func TestTranscriptEndpoint(t *testing.T) {
	stub := &stubTranscriber{}
	handler := NewHandler(stub)

	tests := []struct {
		name   string
		req    *http.Request
		code   int
		wantID string
		errMsg string
	}{
		{
			name:   "post video id",
			req:    httptest.NewRequest(http.MethodPost, "/api/transcript", strings.NewReader(`{"video_id":"abc123"}`)),
			code:   http.StatusOK,
			wantID: "abc123",
		},
		{
			name:   "post url",
			req:    httptest.NewRequest(http.MethodPost, "/api/transcript", strings.NewReader(`{"url":"https://youtu.be/xyz789?t=3"}`)),
			code:   http.StatusOK,
			wantID: "xyz789",
		},
		{
			name:   "get shorts url",
			req:    httptest.NewRequest(http.MethodGet, "/api/transcript?url=https://www.youtube.com/shorts/xyz789", nil),
			code:   http.StatusOK,
			wantID: "xyz789",
		},
		{
			name:   "missing input",
			req:    httptest.NewRequest(http.MethodPost, "/api/transcript", strings.NewReader(`{}`)),
			code:   http.StatusBadRequest,
			errMsg: "URL or video_id is required",
		},
		{
			name:   "invalid url",
			req:    httptest.NewRequest(http.MethodGet, "/api/transcript?url=https://example.com/about", nil),
			code:   http.StatusBadRequest,
			errMsg: "Invalid YouTube URL or video ID",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, tt.req)
			require.Equal(t, tt.code, rr.Code, rr.Body.String())

			if tt.errMsg != "" {
				assert.JSONEq(t, `{"error":"`+tt.errMsg+`"}`, rr.Body.String())
				return
			}
			var got Transcript
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
			assert.Equal(t, tt.wantID, got.VideoID)
			assert.Equal(t, "hello there", got.Transcript)
			assert.Equal(t, 2.0, got.Duration)
		})
	}
}

func TestTranscriptEndpointFailure(t *testing.T) {
	handler := NewHandler(&stubTranscriber{err: errors.New("no caption tracks found for video")})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/transcript", strings.NewReader(`{"video_id":"abc123"}`)))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":"no caption tracks found for video"}`, rr.Body.String())
}

func TestStatusEndpoints(t *testing.T) {
	handler := NewHandler(&stubTranscriber{})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.JSONEq(t, `{"status":"healthy"}`, rr.Body.String())

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.JSONEq(t, `{"service":"YouTube Summarizer Backend","version":"1.0.0","youtube_transcript_available":true}`, rr.Body.String())
}
