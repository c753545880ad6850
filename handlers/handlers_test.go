package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nijaru/yt-summarizer/coordinator"
	"github.com/nijaru/yt-summarizer/db"
	apperrors "github.com/nijaru/yt-summarizer/errors"
)

type mockService struct {
	mu        sync.Mutex
	requests  []coordinator.SummarizeRequest
	err       error
	block     bool
	cleared   int
	testedURL string
	closed    string
}

func (m *mockService) Summarize(ctx context.Context, req coordinator.SummarizeRequest) (*coordinator.SummarizeResult, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if m.err != nil {
		return nil, m.err
	}
	return &coordinator.SummarizeResult{Summary: "## Summary", Title: "Title", VideoID: "abc123"}, nil
}

func (m *mockService) ClearCache() int {
	m.cleared++
	return 2
}

func (m *mockService) TestLocalServer(ctx context.Context, serverURL string) coordinator.LocalServerStatus {
	m.testedURL = serverURL
	return coordinator.LocalServerStatus{Success: true}
}

func (m *mockService) LastSummary(ctx context.Context, videoID string) (*db.Summary, error) {
	if videoID != "abc123" {
		return nil, apperrors.NotFound("test", db.ErrNotFound, "No summary stored for this video")
	}
	return &db.Summary{VideoID: videoID, Summary: "stored"}, nil
}

func (m *mockService) CloseSidebar(ctx context.Context, tabID string) error {
	m.closed = tabID
	return nil
}

func newRouter(svc Service) http.Handler {
	return NewRouter(svc, Options{
		RequestTimeout:    time.Second,
		RateLimit:         10,
		RateLimitInterval: time.Second,
	})
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestSummarizeHandler(t *testing.T) {
	svc := &mockService{}
	rr := post(t, newRouter(svc), "/api/summarize", `{"video_url":"https://www.youtube.com/watch?v=abc123","tab_id":"7","show_sidebar":true}`)

	if status := rr.Code; status != http.StatusOK {
		t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusOK)
	}
	assert.JSONEq(t, `{"summary":"## Summary","title":"Title","videoId":"abc123"}`, rr.Body.String())
	require.Len(t, svc.requests, 1)
	assert.Equal(t, coordinator.SummarizeRequest{
		VideoURL:    "https://www.youtube.com/watch?v=abc123",
		TabID:       "7",
		ShowSidebar: true,
	}, svc.requests[0])
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestSummarizeHandlerErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		body string
	}{
		{
			name: "configuration missing",
			err:  apperrors.ConfigurationMissing("test", "API key is required. Please set it in Options."),
			code: http.StatusPreconditionFailed,
			body: `{"error":"API key is required. Please set it in Options."}`,
		},
		{
			name: "transcript unavailable",
			err:  apperrors.TranscriptUnavailable("test", nil, "Could not fetch transcript: the video may lack captions, or all sources are blocked."),
			code: http.StatusNotFound,
			body: `{"error":"Could not fetch transcript: the video may lack captions, or all sources are blocked."}`,
		},
		{
			name: "internal detail is hidden",
			err:  context.Canceled,
			code: http.StatusInternalServerError,
			body: `{"error":"An error occurred while processing your request. Please try again later."}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := post(t, newRouter(&mockService{err: tt.err}), "/api/summarize", `{"video_id":"abc123"}`)
			assert.Equal(t, tt.code, rr.Code)
			assert.JSONEq(t, tt.body, rr.Body.String())
		})
	}
}

func TestSummarizeHandlerBadBody(t *testing.T) {
	rr := post(t, newRouter(&mockService{}), "/api/summarize", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t, `{"error":"Invalid request body"}`, rr.Body.String())
}

func TestSummarizeHandlerTimeout(t *testing.T) {
	h := NewRouter(&mockService{block: true}, Options{
		RequestTimeout:    20 * time.Millisecond,
		RateLimit:         1,
		RateLimitInterval: time.Second,
	})
	rr := post(t, h, "/api/summarize", `{"video_id":"abc123"}`)

	assert.Equal(t, http.StatusGatewayTimeout, rr.Code)
	assert.JSONEq(t, `{"error":"Request timed out"}`, rr.Body.String())
}

func TestSummarizeHandlerRateLimit(t *testing.T) {
	h := NewRouter(&mockService{}, Options{RateLimit: 1, RateLimitInterval: time.Hour})

	rr := post(t, h, "/api/summarize", `{"video_id":"abc123"}`)
	if status := rr.Code; status != http.StatusOK {
		t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusOK)
	}

	rr = post(t, h, "/api/summarize", `{"video_id":"abc123"}`)
	if status := rr.Code; status != http.StatusTooManyRequests {
		t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusTooManyRequests)
	}
	assert.JSONEq(t, `{"error":"Rate limit exceeded"}`, rr.Body.String())

	// Other endpoints are not throttled.
	rr = post(t, h, "/api/cache/clear", ``)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestConcurrentSummaries(t *testing.T) {
	svc := &mockService{}
	h := NewRouter(svc, Options{RequestTimeout: time.Second, RateLimit: 10, RateLimitInterval: time.Second})

	var wg sync.WaitGroup
	codes := make([]int, 5)
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/api/summarize", strings.NewReader(`{"video_id":"abc123"}`))
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			codes[i] = rr.Code
		}(i)
	}
	wg.Wait()

	for i, code := range codes {
		assert.Equal(t, http.StatusOK, code, "request %d", i)
	}
	assert.Len(t, svc.requests, 5)
}

func TestClearCacheHandler(t *testing.T) {
	svc := &mockService{}
	rr := post(t, newRouter(svc), "/api/cache/clear", ``)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"success":true,"cleared":2}`, rr.Body.String())
	assert.Equal(t, 1, svc.cleared)
}

func TestLocalServerHandler(t *testing.T) {
	svc := &mockService{}
	rr := post(t, newRouter(svc), "/api/local-server/test", `{"server_url":"http://127.0.0.1:5000"}`)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"success":true}`, rr.Body.String())
	assert.Equal(t, "http://127.0.0.1:5000", svc.testedURL)
}

func TestLastSummaryHandler(t *testing.T) {
	h := newRouter(&mockService{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/summaries/abc123", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var got db.Summary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "stored", got.Summary)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/summaries/zzz", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.JSONEq(t, `{"error":"No summary stored for this video"}`, rr.Body.String())
}

func TestCloseSidebarHandler(t *testing.T) {
	svc := &mockService{}
	rr := post(t, newRouter(svc), "/api/tabs/tab-9/sidebar/close", ``)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "tab-9", svc.closed)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newRouter(&mockService{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.JSONEq(t, `{"status":"healthy"}`, rr.Body.String())

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "ytsum_http_requests_total")
}
