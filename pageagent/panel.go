package pageagent

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nijaru/yt-summarizer/captions"
)

var timestampOnly = regexp.MustCompile(`^[\d:\[\]().\s]*$`)

// chromePhrases are labels rendered inside the transcript panel that are
// not spoken text.
var chromePhrases = map[string]struct{}{
	"transcript":                        {},
	"show transcript":                   {},
	"hide transcript":                   {},
	"search in video":                   {},
	"search transcript":                 {},
	"chapters":                          {},
	"close":                             {},
	"close transcript":                  {},
	"more actions":                      {},
	"no results":                        {},
	"sync to video time":                {},
	"toggle timestamps":                 {},
	"follow along using the transcript": {},
}

func usableLine(line string) bool {
	if timestampOnly.MatchString(line) {
		return false
	}
	key := strings.TrimRight(strings.ToLower(line), ".")
	_, chrome := chromePhrases[key]
	return !chrome
}

// joinPanelLines filters chrome and bare timestamps and joins the rest with
// single spaces.
func joinPanelLines(lines []string) string {
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		line = captions.NormalizeText(line)
		if usableLine(line) {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, " ")
}

// waitForLines polls the panel a bounded number of times, returning the
// lines once at least min are rendered.
func waitForLines(ctx context.Context, panel TranscriptPanel, attempts int, interval time.Duration, min int) ([]string, bool) {
	for i := 0; i < attempts; i++ {
		lines, err := panel.Lines(ctx)
		if err == nil && len(lines) >= min {
			return lines, true
		}
		if i == attempts-1 || !sleepCtx(ctx, interval) {
			break
		}
	}
	return nil, false
}

func (a *Agent) fromPanel(ctx context.Context, at *attempt) (result captions.Result) {
	pp, ok := at.page.(PanelPage)
	if !ok {
		return captions.NotFound("page has no transcript panel")
	}
	panel := pp.TranscriptPanel()
	if panel == nil {
		return captions.NotFound("page has no transcript panel")
	}

	// The panel is closed on every exit, including cancellation.
	defer func() {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.opts.cleanupTimeout)
		defer cancel()
		if err := panel.Close(cctx); err != nil {
			logrus.WithError(err).Debug("Failed to close transcript panel")
		}
	}()

	if err := panel.Open(ctx); err != nil {
		if errors.Is(err, ErrNoControl) {
			return captions.NotFound(err.Error())
		}
		return captions.Failed(err.Error())
	}

	lines, ready := waitForLines(ctx, panel, a.opts.panelAttempts, a.opts.panelInterval, a.opts.panelMinLines)
	if !ready {
		return captions.NotFound("transcript panel did not populate")
	}
	return captions.Success(joinPanelLines(lines))
}
