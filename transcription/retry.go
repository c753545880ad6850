package transcription

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// temporaryError marks a failure worth another attempt: throttling, gateway
// errors and requests that never got a response.
type temporaryError struct {
	err error
}

func (e *temporaryError) Error() string { return e.err.Error() }
func (e *temporaryError) Unwrap() error { return e.err }

func temporary(err error) error {
	if err == nil {
		return nil
	}
	return &temporaryError{err: err}
}

// transportError classifies a request that got no response. It is
// temporary unless ctx ended it.
func transportError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return err
	}
	return temporary(err)
}

func isTemporary(err error) bool {
	var t *temporaryError
	return errors.As(err, &t)
}

// retryPolicy bounds a source to maxAttempts calls in total.
type retryPolicy struct {
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	backoffFactor  float64
}

var defaultRetry = retryPolicy{
	maxAttempts:    3,
	initialBackoff: 500 * time.Millisecond,
	maxBackoff:     4 * time.Second,
	backoffFactor:  2.0,
}

func (p retryPolicy) backoff(attempt int) time.Duration {
	backoff := time.Duration(float64(p.initialBackoff) * math.Pow(p.backoffFactor, float64(attempt-1)))
	if backoff > p.maxBackoff {
		backoff = p.maxBackoff
	}
	if half := int64(backoff / 2); half > 0 {
		backoff += time.Duration(rand.Int63n(half))
	}
	return backoff
}

// do runs fn until it succeeds, returns a non-temporary error, the attempts
// run out, or ctx is done.
func (p retryPolicy) do(ctx context.Context, log *logrus.Entry, fn func(context.Context) error) error {
	attempts := p.maxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil || !isTemporary(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		log.WithError(err).WithFields(logrus.Fields{
			"attempt":      attempt,
			"max_attempts": attempts,
		}).Debug("Source attempt failed, retrying")

		select {
		case <-time.After(p.backoff(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return errors.Wrapf(err, "failed after %d attempts", attempts)
}
