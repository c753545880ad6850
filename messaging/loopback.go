package messaging

import (
	"context"

	"github.com/pkg/errors"
)

// Loopback delivers messages to in-process agents. Calls still honour ctx
// so a wedged agent cannot hold the caller past its deadline.
type Loopback struct {
	agents Agents
}

var _ Client = (*Loopback)(nil)

func NewLoopback(agents Agents) *Loopback {
	return &Loopback{agents: agents}
}

func (l *Loopback) Send(ctx context.Context, tabID string, req Request) (Response, error) {
	type result struct {
		resp Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := l.agents.Handle(ctx, tabID, req)
		done <- result{resp, err}
	}()

	select {
	case <-ctx.Done():
		return Response{}, errors.Wrapf(ctx.Err(), "page agent did not answer %s", req.Action)
	case r := <-done:
		return r.resp, r.err
	}
}

func (l *Loopback) Inject(ctx context.Context, tabID, rawURL string) error {
	done := make(chan error, 1)
	go func() {
		done <- l.agents.Inject(ctx, tabID, rawURL)
	}()

	select {
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "page agent injection did not finish")
	case err := <-done:
		return err
	}
}

func (l *Loopback) Release(ctx context.Context, tabID string) error {
	return l.agents.Release(ctx, tabID)
}

func (l *Loopback) Close() error {
	return nil
}
