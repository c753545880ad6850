package messaging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAgents struct {
	mu       sync.Mutex
	handle   func(ctx context.Context, tabID string, req Request) (Response, error)
	injected map[string]string
	injectFn func(ctx context.Context, tabID, rawURL string) error
}

func newFakeAgents() *fakeAgents {
	return &fakeAgents{injected: make(map[string]string)}
}

func (f *fakeAgents) Handle(ctx context.Context, tabID string, req Request) (Response, error) {
	if f.handle != nil {
		return f.handle(ctx, tabID, req)
	}
	if !req.Action.Valid() {
		return Response{}, errors.Wrap(ErrUnknownAction, string(req.Action))
	}
	f.mu.Lock()
	_, ok := f.injected[tabID]
	f.mu.Unlock()
	if !ok {
		return Response{}, ErrNoAgent
	}
	switch req.Action {
	case ActionGetTranscript:
		return TranscriptResponse("Hello world this is a test transcript."), nil
	case ActionGetVideoInfo:
		return Response{VideoInfo: &VideoInfo{VideoID: "abc123", Title: "A title"}}, nil
	}
	return Response{Success: true}, nil
}

func (f *fakeAgents) Inject(ctx context.Context, tabID, rawURL string) error {
	if f.injectFn != nil {
		return f.injectFn(ctx, tabID, rawURL)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.injected[tabID] = rawURL
	return nil
}

func (f *fakeAgents) Release(ctx context.Context, tabID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.injected, tabID)
	return nil
}

// expiredAgents fail every message the way an agent whose own deadline ran
// out does.
func expiredAgents() *fakeAgents {
	f := newFakeAgents()
	f.handle = func(ctx context.Context, tabID string, req Request) (Response, error) {
		return Response{}, context.DeadlineExceeded
	}
	return f
}

func blockingAgents() *fakeAgents {
	f := newFakeAgents()
	f.handle = func(ctx context.Context, tabID string, req Request) (Response, error) {
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case <-time.After(5 * time.Second):
			return Response{Success: true}, nil
		}
	}
	return f
}

// exerciseClient runs the same conversation against every transport.
func exerciseClient(t *testing.T, c Client) {
	t.Helper()
	ctx := context.Background()

	_, err := c.Send(ctx, "tab-1", Request{Action: ActionPing})
	assert.ErrorIs(t, err, ErrNoAgent)

	require.NoError(t, c.Inject(ctx, "tab-1", "https://www.youtube.com/watch?v=abc123"))

	resp, err := c.Send(ctx, "tab-1", Request{Action: ActionPing})
	require.NoError(t, err)
	assert.True(t, resp.Success)

	resp, err = c.Send(ctx, "tab-1", Request{Action: ActionGetTranscript})
	require.NoError(t, err)
	text, ok := resp.TranscriptText()
	require.True(t, ok)
	assert.Equal(t, "Hello world this is a test transcript.", text)

	resp, err = c.Send(ctx, "tab-1", Request{Action: ActionGetVideoInfo})
	require.NoError(t, err)
	require.NotNil(t, resp.VideoInfo)
	assert.Equal(t, "abc123", resp.VideoInfo.VideoID)

	_, err = c.Send(ctx, "tab-1", Request{Action: "selfDestruct"})
	assert.ErrorIs(t, err, ErrUnknownAction)

	require.NoError(t, c.Release(ctx, "tab-1"))
	_, err = c.Send(ctx, "tab-1", Request{Action: ActionPing})
	assert.ErrorIs(t, err, ErrNoAgent)
	require.NoError(t, c.Release(ctx, "tab-1"))
}

func TestTranscriptResponse(t *testing.T) {
	_, ok := TranscriptResponse("").TranscriptText()
	assert.False(t, ok)

	text, ok := TranscriptResponse("some text").TranscriptText()
	assert.True(t, ok)
	assert.Equal(t, "some text", text)
}

func TestActionValid(t *testing.T) {
	assert.True(t, ActionGetTranscript.Valid())
	assert.False(t, Action("nope").Valid())
}

func TestLoopback(t *testing.T) {
	exerciseClient(t, NewLoopback(newFakeAgents()))
}

func TestLoopbackHonoursDeadline(t *testing.T) {
	c := NewLoopback(blockingAgents())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Send(ctx, "tab-1", Request{Action: ActionGetTranscript})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestHTTPTransport(t *testing.T) {
	srv := httptest.NewServer(NewHTTPHandler(newFakeAgents()))
	defer srv.Close()

	c := NewHTTPClient(srv.URL+"/", srv.Client())
	defer c.Close()
	exerciseClient(t, c)
}

func TestHTTPTransportRejectsBadBodies(t *testing.T) {
	srv := httptest.NewServer(NewHTTPHandler(newFakeAgents()))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/tabs/t/messages", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/tabs/t/inject", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHTTPTransportInjectFailure(t *testing.T) {
	agents := newFakeAgents()
	agents.injectFn = func(ctx context.Context, tabID, rawURL string) error {
		return errors.New("browser crashed")
	}
	srv := httptest.NewServer(NewHTTPHandler(agents))
	defer srv.Close()

	err := NewHTTPClient(srv.URL, nil).Inject(context.Background(), "t", "https://www.youtube.com/watch?v=x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "browser crashed")
}

func TestHTTPTransportKeepsAgentTimeout(t *testing.T) {
	srv := httptest.NewServer(NewHTTPHandler(expiredAgents()))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL, srv.Client()).Send(context.Background(), "tab-1", Request{Action: ActionGetTranscript})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCodeErrorRoundTrip(t *testing.T) {
	tests := []struct {
		err    error
		target error
	}{
		{ErrNoAgent, ErrNoAgent},
		{errors.Wrap(ErrUnknownAction, "dance"), ErrUnknownAction},
		{errors.Wrap(context.DeadlineExceeded, "getTranscript"), context.DeadlineExceeded},
	}
	for _, tt := range tests {
		_, code := classify(tt.err)
		assert.ErrorIs(t, codeError(code, tt.err.Error()), tt.target, code)
	}

	_, code := classify(errors.New("browser crashed"))
	assert.Equal(t, codeInternal, code)
	assert.NoError(t, codeError(code, "browser crashed"))
}
