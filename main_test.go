package main

import (
	"os"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nijaru/yt-summarizer/config"
	"github.com/nijaru/yt-summarizer/messaging"
)

type recordingCloser struct {
	name  string
	order *[]string
	err   error
}

func (c recordingCloser) Close() error {
	*c.order = append(*c.order, c.name)
	return c.err
}

func TestClosersReverseOrder(t *testing.T) {
	var order []string
	cs := closers{
		recordingCloser{name: "first", order: &order, err: errors.New("first failed")},
		recordingCloser{name: "second", order: &order, err: errors.New("second failed")},
	}

	err := cs.Close()

	assert.Equal(t, []string{"second", "first"}, order)
	assert.EqualError(t, err, "second failed")
}

func TestNewAgentClient(t *testing.T) {
	cfg := config.LoadConfig()

	client, closer, err := newAgentClient(cfg, newFetcher(cfg))
	require.NoError(t, err)
	assert.IsType(t, &messaging.Loopback{}, client)
	assert.NoError(t, closer.Close())

	cfg.Agent.Transport = config.TransportHTTP
	client, _, err = newAgentClient(cfg, newFetcher(cfg))
	require.NoError(t, err)
	assert.IsType(t, &messaging.HTTPClient{}, client)

	cfg.Agent.Transport = "smoke-signals"
	_, _, err = newAgentClient(cfg, newFetcher(cfg))
	assert.Error(t, err)
}

func TestRequestTimeoutCoversEverySource(t *testing.T) {
	for _, key := range []string{"PAGE_AGENT_TIMEOUT", "PING_TIMEOUT", "INJECT_WAIT", "SOURCE_TIMEOUT",
		"SUMMARY_TIMEOUT", "USE_LOCAL_SERVER", "LOCAL_SERVER_URL", "MIRROR_URL", "AGENT_TRANSPORT"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	cfg := config.LoadConfig()

	st, err := buildStack(cfg, false)
	require.NoError(t, err)
	defer st.closer.Close()

	// page agent 2s+15s+1.5s+15s, then companion, two timedtext passes and
	// the mirror at 20s each.
	chain := 33500*time.Millisecond + 4*20*time.Second
	assert.Equal(t, chain+2*time.Minute+2*15*time.Second, st.requestTimeout)
	assert.Greater(t, st.requestTimeout-chain, cfg.Summary.Timeout)
}

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "agent", "companion", "summarize"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
}
